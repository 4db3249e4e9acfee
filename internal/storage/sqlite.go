package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nuvos/nuvos-index/internal/retry"
	"github.com/nuvos/nuvos-index/internal/vectorstore"
	"github.com/nuvos/nuvos-index/pkg/types"
)

// maxIDsPerStatement keeps IN lists below SQLite's variable limit
const maxIDsPerStatement = 500

// Options configures a SQLiteStore
type Options struct {
	Path       string
	VectorSize int
	Distance   vectorstore.Distance
	Logger     *slog.Logger
}

// SQLiteStore implements vectorstore.Gateway on an embedded SQLite database
type SQLiteStore struct {
	db         *sql.DB
	vectorSize int
	distance   vectorstore.Distance
	logger     *slog.Logger

	mu          sync.Mutex
	initialized map[string]bool
}

var _ vectorstore.Gateway = (*SQLiteStore)(nil)

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens or creates the database at opts.Path and applies migrations
func Open(ctx context.Context, opts Options) (*SQLiteStore, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", types.ErrConfig)
	}
	if opts.VectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive, got %d", types.ErrConfig, opts.VectorSize)
	}
	if opts.Distance == "" {
		opts.Distance = vectorstore.DistanceCosine
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := openDatabase(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{
		db:          db,
		vectorSize:  opts.VectorSize,
		distance:    opts.Distance,
		logger:      logger,
		initialized: make(map[string]bool),
	}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// collectionInfo returns the stored vector size and metric of a collection
func (s *SQLiteStore) collectionInfo(ctx context.Context, q querier, collection string) (int, vectorstore.Distance, error) {
	var size int
	var distance string
	err := q.QueryRowContext(ctx, "SELECT vector_size, distance FROM collections WHERE name = ?", collection).Scan(&size, &distance)
	if err == sql.ErrNoRows {
		return 0, "", fmt.Errorf("collection %q: %w", collection, vectorstore.ErrNotFound)
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to read collection %q: %w", collection, err)
	}
	return size, vectorstore.Distance(distance), nil
}

// EnsureInitialized implements vectorstore.Gateway
func (s *SQLiteStore) EnsureInitialized(ctx context.Context, collection string) error {
	if collection == "" {
		return fmt.Errorf("%w: collection name is empty", types.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized[collection] {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, vector_size, distance) VALUES (?, ?, ?)",
		collection, s.vectorSize, string(s.distance))
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("created collection",
			slog.String("collection", collection),
			slog.Int("vector_size", s.vectorSize),
			slog.String("distance", string(s.distance)))
	}

	size, _, err := s.collectionInfo(ctx, tx, collection)
	if err != nil {
		return err
	}
	if size != s.vectorSize {
		return fmt.Errorf("%w: collection %q has vector size %d, configured %d", types.ErrConfig, collection, size, s.vectorSize)
	}

	for _, idx := range vectorstore.RequiredIndexes {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO payload_indexes (collection, field, field_type) VALUES (?, ?, ?)",
			collection, idx.Field, string(idx.Type)); err != nil {
			return fmt.Errorf("failed to create payload index %s: %w", idx.Field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.initialized[collection] = true
	return nil
}

// PayloadIndexes lists the indexed payload fields of a collection
func (s *SQLiteStore) PayloadIndexes(ctx context.Context, collection string) ([]vectorstore.PayloadIndex, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT field, field_type FROM payload_indexes WHERE collection = ? ORDER BY field", collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []vectorstore.PayloadIndex
	for rows.Next() {
		var idx vectorstore.PayloadIndex
		var t string
		if err := rows.Scan(&idx.Field, &t); err != nil {
			return nil, err
		}
		idx.Type = vectorstore.IndexType(t)
		out = append(out, idx)
	}
	return out, rows.Err()
}

// Upsert implements vectorstore.Gateway
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	size, _, err := s.collectionInfo(ctx, tx, collection)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, doc_id, vector, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(collection, id) DO UPDATE SET
			doc_id = excluded.doc_id,
			vector = excluded.vector,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("%w: point id is empty", types.ErrInvalidArgument)
		}
		if len(p.Vector) != size {
			return fmt.Errorf("%w: point %s has %d dimensions, collection expects %d",
				types.ErrInvalidArgument, p.ID, len(p.Vector), size)
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", p.ID, err)
		}
		docID := vectorstore.PayloadString(p.Payload, vectorstore.FieldDocID)
		if _, err := stmt.ExecContext(ctx, collection, p.ID, docID, serializeVector(p.Vector), string(payload)); err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// UpsertInBatches implements vectorstore.Gateway. The embedded store has no
// request size limit, but batching keeps each transaction bounded.
func (s *SQLiteStore) UpsertInBatches(ctx context.Context, collection string, points []vectorstore.Point, vectorDims, maxPerBatch int) error {
	opts := vectorstore.BatchOptions{
		VectorDims:  vectorDims,
		MaxPerBatch: maxPerBatch,
		Retry:       retry.Config{MaxRetries: 1},
		Logger:      s.logger,
	}
	return vectorstore.UploadInBatches(ctx, points, opts, func(ctx context.Context, batch []vectorstore.Point) error {
		return s.Upsert(ctx, collection, batch)
	})
}

// storedPoint is a decoded row of the points table
type storedPoint struct {
	id      string
	vector  []float32
	payload map[string]any
}

// scan streams every point of a collection through fn
func (s *SQLiteStore) scan(ctx context.Context, q querier, collection string, withVector bool, fn func(storedPoint) error) error {
	query := "SELECT id, payload FROM points WHERE collection = ?"
	if withVector {
		query = "SELECT id, payload, vector FROM points WHERE collection = ?"
	}
	rows, err := q.QueryContext(ctx, query, collection)
	if err != nil {
		return fmt.Errorf("failed to query points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p storedPoint
		var payload string
		var blob []byte
		dest := []any{&p.id, &payload}
		if withVector {
			dest = append(dest, &blob)
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan point: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &p.payload); err != nil {
			return fmt.Errorf("failed to decode payload of %s: %w", p.id, err)
		}
		if withVector {
			p.vector = deserializeVector(blob)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Search implements vectorstore.Gateway
func (s *SQLiteStore) Search(ctx context.Context, collection string, vector []float32, filter *vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: search vector is empty", types.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 10
	}

	size, distance, err := s.collectionInfo(ctx, s.db, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != size {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection expects %d", types.ErrInvalidArgument, len(vector), size)
	}

	var hits []vectorstore.ScoredPoint
	err = s.scan(ctx, s.db, collection, true, func(p storedPoint) error {
		if !filter.Matches(p.payload) {
			return nil
		}
		hits = append(hits, vectorstore.ScoredPoint{
			ID:      p.id,
			Score:   score(distance, vector, p.vector),
			Payload: p.payload,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortScored(distance, hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// deleteWhereIn deletes rows of a collection whose column is in values
func deleteWhereIn(ctx context.Context, q querier, collection, column string, values []string) (int64, error) {
	var total int64
	for start := 0; start < len(values); start += maxIDsPerStatement {
		end := min(start+maxIDsPerStatement, len(values))
		chunk := values[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, collection)
		for _, v := range chunk {
			args = append(args, v)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		res, err := q.ExecContext(ctx,
			"DELETE FROM points WHERE collection = ? AND "+column+" IN ("+placeholders+")", args...)
		if err != nil {
			return total, fmt.Errorf("failed to delete points: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// DeleteByIDs implements vectorstore.Gateway
func (s *SQLiteStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	_, err := deleteWhereIn(ctx, s.db, collection, "id", ids)
	return err
}

// DeleteByDocID implements vectorstore.Gateway
func (s *SQLiteStore) DeleteByDocID(ctx context.Context, collection, docID string) error {
	if docID == "" {
		return fmt.Errorf("%w: doc id is empty", types.ErrInvalidArgument)
	}
	return s.DeleteByDocIDs(ctx, collection, []string{docID})
}

// DeleteByDocIDs implements vectorstore.Gateway
func (s *SQLiteStore) DeleteByDocIDs(ctx context.Context, collection string, docIDs []string) error {
	n, err := deleteWhereIn(ctx, s.db, collection, "doc_id", docIDs)
	if err != nil {
		return err
	}
	s.logger.Debug("deleted points by doc id",
		slog.String("collection", collection),
		slog.Int("docs", len(docIDs)),
		slog.Int64("points", n))
	return nil
}

// DeleteByFilter implements vectorstore.Gateway. An empty filter is rejected.
func (s *SQLiteStore) DeleteByFilter(ctx context.Context, collection string, filter *vectorstore.Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("%w: delete filter is empty", types.ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var ids []string
	err = s.scan(ctx, tx, collection, false, func(p storedPoint) error {
		if filter.Matches(p.payload) {
			ids = append(ids, p.id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := deleteWhereIn(ctx, tx, collection, "id", ids); err != nil {
		return err
	}
	return tx.Commit()
}

// Count implements vectorstore.Gateway
func (s *SQLiteStore) Count(ctx context.Context, collection string, filter *vectorstore.Filter) (int, error) {
	if _, _, err := s.collectionInfo(ctx, s.db, collection); err != nil {
		return 0, err
	}

	if filter.IsEmpty() {
		var n int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE collection = ?", collection).Scan(&n)
		return n, err
	}

	n := 0
	err := s.scan(ctx, s.db, collection, false, func(p storedPoint) error {
		if filter.Matches(p.payload) {
			n++
		}
		return nil
	})
	return n, err
}

// DropCollection removes a collection and all its points
func (s *SQLiteStore) DropCollection(ctx context.Context, collection string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", collection)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("collection %q: %w", collection, vectorstore.ErrNotFound)
	}

	s.mu.Lock()
	delete(s.initialized, collection)
	s.mu.Unlock()
	return nil
}
