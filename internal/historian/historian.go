// Package historian drains the room event queue into durable storage.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/coderoom/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Popper is the slice of the Redis client the historian reads with.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Writer persists a batch of records atomically.
type Writer interface {
	WriteBatch(ctx context.Context, recs []cache.RoomEventRecord) error
}

type Options struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// PopTimeout bounds each BLPop so cancellation is noticed.
	PopTimeout time.Duration
	// MaxPending caps the records held while flushes keep failing; the oldest
	// are dropped first.
	MaxPending int
}

// Service accumulates queued records and flushes them when the batch fills up
// or the flush delay passes.
type Service struct {
	queue  Popper
	writer Writer
	opts   Options
	logger *logrus.Logger

	batchMu sync.Mutex
	batch   []cache.RoomEventRecord
}

func New(q Popper, w Writer, opts Options, logger *logrus.Logger) *Service {
	if opts.Queue == "" {
		opts.Queue = cache.DefaultQueueName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	if opts.MaxPending < opts.BatchSize {
		opts.MaxPending = opts.BatchSize * 50
	}
	return &Service{
		queue:  q,
		writer: w,
		opts:   opts,
		logger: logger,
		batch:  make([]cache.RoomEventRecord, 0, opts.BatchSize),
	}
}

// Run pops until ctx is cancelled, then flushes whatever is left.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushDelay)
	defer ticker.Stop()

	s.logger.WithField("queue", s.opts.Queue).Info("historian started")
	for {
		select {
		case <-ctx.Done():
			s.Flush(context.Background())
			s.logger.Info("historian stopped")
			return
		case <-ticker.C:
			s.Flush(ctx)
		default:
			s.pollOnce(ctx)
		}
	}
}

// pollOnce waits for one record and batches it.
func (s *Service) pollOnce(ctx context.Context) {
	res, err := s.queue.BLPop(ctx, s.opts.PopTimeout, s.opts.Queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			s.logger.WithError(err).Error("BLPop failed")
		}
		return
	}
	// res[0] is the queue name, res[1] the payload
	if len(res) < 2 {
		return
	}
	var rec cache.RoomEventRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		s.logger.WithError(err).Warn("dropping malformed room event")
		return
	}
	s.append(ctx, rec)
}

func (s *Service) append(ctx context.Context, rec cache.RoomEventRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	if over := len(s.batch) - s.opts.MaxPending; over > 0 {
		s.batch = append(s.batch[:0:0], s.batch[over:]...)
		s.logger.WithField("dropped", over).Warn("pending room events over limit, oldest dropped")
	}
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()
	if full {
		s.Flush(ctx)
	}
}

// Pending returns the number of records not yet written.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

// Flush writes the current batch. On failure the records are put back so the
// next flush retries them.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	if len(s.batch) == 0 {
		return
	}
	out := make([]cache.RoomEventRecord, len(s.batch))
	copy(out, s.batch)

	if err := s.writer.WriteBatch(ctx, out); err != nil {
		s.logger.WithError(err).WithField("count", len(out)).Error("failed to flush room events")
		return
	}
	s.batch = s.batch[:0]
	s.logger.WithField("count", len(out)).Debug("flushed room events")
}
