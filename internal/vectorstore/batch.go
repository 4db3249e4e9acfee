package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nuvos/nuvos-index/internal/retry"
)

const (
	// TargetBatchBytes is the request size batches are sized for (2.5 MiB)
	TargetBatchBytes = 2621440

	// DefaultPayloadOverheadBytes is the assumed JSON size of one point's
	// id and payload, excluding the vector
	DefaultPayloadOverheadBytes = 1024

	// MinInitialBatch and MaxInitialBatch clamp the estimated batch size
	MinInitialBatch = 8
	MaxInitialBatch = 128
)

// BatchOptions configures UploadInBatches
type BatchOptions struct {
	VectorDims           int
	MaxPerBatch          int
	PayloadOverheadBytes int
	Retry                retry.Config
	Logger               *slog.Logger
}

// WriteFunc uploads one batch of points
type WriteFunc func(ctx context.Context, batch []Point) error

// InitialBatchSize estimates how many points fit in TargetBatchBytes,
// clamped to [MinInitialBatch, MaxInitialBatch] and capped by maxPerBatch
func InitialBatchSize(vectorDims, overheadBytes, maxPerBatch int) int {
	if overheadBytes <= 0 {
		overheadBytes = DefaultPayloadOverheadBytes
	}
	perPoint := vectorDims*4 + overheadBytes
	if perPoint < 1 {
		perPoint = 1
	}

	size := TargetBatchBytes / perPoint
	if size < MinInitialBatch {
		size = MinInitialBatch
	}
	if size > MaxInitialBatch {
		size = MaxInitialBatch
	}
	if maxPerBatch > 0 && size > maxPerBatch {
		size = maxPerBatch
	}
	return size
}

// UploadInBatches writes points in order. When a batch is too large it is
// halved and the same slice is retried; transient failures retry the same
// slice after a backoff. No point is skipped: the call either delivers
// every point or returns an error.
func UploadInBatches(ctx context.Context, points []Point, opts BatchOptions, write WriteFunc) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Retry
	if cfg.MaxRetries <= 0 {
		cfg = retry.DefaultConfig()
	}

	size := InitialBatchSize(opts.VectorDims, opts.PayloadOverheadBytes, opts.MaxPerBatch)
	attempts := 0

	for offset := 0; offset < len(points); {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(offset+size, len(points))
		err := write(ctx, points[offset:end])

		switch {
		case err == nil:
			offset = end
			attempts = 0

		case errors.Is(err, ErrPayloadTooLarge):
			if end-offset <= 1 {
				return fmt.Errorf("single point %s exceeds the request limit: %w", points[offset].ID, err)
			}
			size = max(1, (end-offset)/2)
			logger.Debug("batch too large, shrinking",
				slog.Int("offset", offset),
				slog.Int("batch_size", size))

		case IsTransient(err):
			attempts++
			if attempts >= cfg.MaxRetries {
				return fmt.Errorf("upload batch at offset %d after %d attempts: %w", offset, attempts, err)
			}
			delay := max(retry.Backoff(cfg, attempts-1), retryAfter(err))
			logger.Debug("transient upload failure, retrying",
				slog.Int("offset", offset),
				slog.Int("attempt", attempts),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()))
			if err := retry.Sleep(ctx, delay); err != nil {
				return err
			}

		default:
			return err
		}
	}

	return nil
}
