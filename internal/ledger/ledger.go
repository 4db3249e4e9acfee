package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nuvos/nuvos-index/pkg/types"
)

const (
	// DirName is the per-project state directory
	DirName = ".nuvos"

	// FileName is the ledger file inside <root>/.nuvos/index
	FileName = "local-index.json"

	corruptTimeLayout = "20060102_150405"
)

// ErrRecordNotFound is returned when mutating an untracked path
var ErrRecordNotFound = errors.New("ledger record not found")

// Ledger tracks per-file indexing state across runs. It is safe for
// concurrent use; records are only reachable through its methods.
type Ledger struct {
	mu      sync.Mutex
	saveMu  sync.Mutex
	path    string
	records map[string]*Record

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithLogger sets the logger used for recovery warnings
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// PathFor returns the ledger file location for a project root
func PathFor(root string) string {
	return filepath.Join(root, DirName, "index", FileName)
}

// Load reads the ledger for root. A missing file yields an empty ledger.
// An unparsable file is renamed aside with a ".corrupt" suffix and the
// ledger starts empty; only an unreadable file is returned as an error.
func Load(root string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:    PathFor(root),
		records: make(map[string]*Record),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		l.quarantine(err)
		return l, nil
	}

	for i := range records {
		rec := records[i]
		rec.FilePath = normalizePath(rec.FilePath)
		if rec.FilePath == "" {
			continue
		}
		l.records[keyOf(rec.FilePath)] = &rec
	}

	return l, nil
}

// quarantine moves a corrupt ledger out of the way. Failure to rename is
// logged and otherwise ignored.
func (l *Ledger) quarantine(cause error) {
	target := fmt.Sprintf("%s.%s.corrupt", l.path, l.now().UTC().Format(corruptTimeLayout))
	if err := os.Rename(l.path, target); err != nil {
		l.logger.Warn("ledger corrupt, quarantine failed",
			slog.String("path", l.path),
			slog.String("error", err.Error()))
		return
	}
	l.logger.Warn("ledger corrupt, starting empty",
		slog.String("path", l.path),
		slog.String("moved_to", target),
		slog.String("cause", cause.Error()))
}

// Path returns the ledger file location
func (l *Ledger) Path() string {
	return l.path
}

// Len returns the number of tracked files
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Get returns a copy of the record for path
func (l *Ledger) Get(path string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[keyOf(path)]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// GetOrAdd returns the record for path, creating it with docID when absent.
// An existing record keeps its DocId. The bool reports whether it was created.
func (l *Ledger) GetOrAdd(path, docID string) (Record, bool, error) {
	norm := normalizePath(path)
	if norm == "" {
		return Record{}, false, fmt.Errorf("%w: ledger path is empty", types.ErrInvalidArgument)
	}
	if docID == "" {
		return Record{}, false, fmt.Errorf("%w: doc id is empty", types.ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := keyOf(norm)
	if rec, ok := l.records[key]; ok {
		return *rec, false, nil
	}

	rec := &Record{
		FilePath: norm,
		DocID:    docID,
		Reindex:  ReindexNone,
	}
	l.records[key] = rec
	return *rec, true, nil
}

// update applies fn to the record for path under the lock
func (l *Ledger) update(path string, fn func(*Record)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[keyOf(path)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, path)
	}
	fn(rec)
	return nil
}

// SetActiveHash records the hash observed on disk during this run
func (l *Ledger) SetActiveHash(path, hash string) error {
	return l.update(path, func(r *Record) {
		r.ActiveContentHash = hash
	})
}

// SetDocID replaces the record's DocId
func (l *Ledger) SetDocID(path, docID string) error {
	if docID == "" {
		return fmt.Errorf("%w: doc id is empty", types.ErrInvalidArgument)
	}
	return l.update(path, func(r *Record) {
		r.DocID = docID
	})
}

// SetReindex sets the forced reindex mode for one record
func (l *Ledger) SetReindex(path string, mode ReindexMode) error {
	return l.update(path, func(r *Record) {
		r.Reindex = mode
	})
}

// SetReindexAll sets the forced reindex mode on every record
func (l *Ledger) SetReindexAll(mode ReindexMode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		rec.Reindex = mode
	}
}

// NeedsReindex reports whether path must be processed. Untracked paths always do.
func (l *Ledger) NeedsReindex(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[keyOf(path)]
	if !ok {
		return true
	}
	return rec.NeedsReindex()
}

// MarkIndexed advances the record after a completed upload of content with hash
func (l *Ledger) MarkIndexed(path, hash string, subKind types.SubKind, flagForReview bool) error {
	now := l.now().UTC()
	return l.update(path, func(r *Record) {
		r.ContentHash = hash
		r.ActiveContentHash = hash
		r.SubKind = string(subKind)
		r.FlagForReview = flagForReview
		r.LastIndexedUtc = now
		r.Reindex = ReindexNone
	})
}

// Remove drops the record for path
func (l *Ledger) Remove(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := keyOf(path)
	if _, ok := l.records[key]; !ok {
		return false
	}
	delete(l.records, key)
	return true
}

// GetMissingFiles returns every tracked record whose path is absent from
// currentPaths, compared case-insensitively, sorted by path.
func (l *Ledger) GetMissingFiles(currentPaths []string) []Record {
	present := make(map[string]struct{}, len(currentPaths))
	for _, p := range currentPaths {
		present[keyOf(p)] = struct{}{}
	}

	l.mu.Lock()
	missing := make([]Record, 0)
	for key, rec := range l.records {
		if _, ok := present[key]; !ok {
			missing = append(missing, *rec)
		}
	}
	l.mu.Unlock()

	sortRecords(missing)
	return missing
}

// Records returns a sorted snapshot of all records
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, *rec)
	}
	l.mu.Unlock()

	sortRecords(out)
	return out
}

// Save writes all records sorted by FilePath to a temporary file next to
// the ledger and renames it over the target, so readers only ever see a
// complete ledger.
func (l *Ledger) Save() error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	records := l.Records()
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp ledger: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		cleanup()
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Summary aggregates ledger state for status reporting
type Summary struct {
	Files          int
	Pending        int
	FlaggedReview  int
	LastIndexedUtc time.Time
}

// Summarize returns counts over the current records
func (l *Ledger) Summarize() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{Files: len(l.records)}
	for _, rec := range l.records {
		if rec.NeedsReindex() || !rec.IsIndexed() {
			s.Pending++
		}
		if rec.FlagForReview {
			s.FlaggedReview++
		}
		if rec.LastIndexedUtc.After(s.LastIndexedUtc) {
			s.LastIndexedUtc = rec.LastIndexedUtc
		}
	}
	return s
}

// sortRecords orders records by FilePath, ordinal and case-insensitive
func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := strings.ToUpper(records[i].FilePath), strings.ToUpper(records[j].FilePath)
		if a != b {
			return a < b
		}
		return records[i].FilePath < records[j].FilePath
	})
}

func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "./")
	return strings.Trim(p, "/")
}

func keyOf(p string) string {
	return strings.ToUpper(normalizePath(p))
}

// Key returns the case-insensitive key a path is stored under. Paths with
// the same key share one record.
func Key(p string) string {
	return keyOf(p)
}
