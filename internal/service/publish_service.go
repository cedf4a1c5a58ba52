package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/pkg/jobs"
)

// Publisher signs and transmits a record to the relay network. Signing keys
// never enter this process; the implementation talks to an external signer
// and relay pool.
type Publisher interface {
	Publish(ctx context.Context, rec models.Record) error
}

// PublishConfig tunes the publish worker pool.
type PublishConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// PublishService drains locally built records to the relay publisher
// through a background worker queue with retries.
type PublishService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewPublishService constructs a PublishService around the given publisher.
func NewPublishService(publisher Publisher, cfg PublishConfig, logger *zap.Logger) *PublishService {
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		rec, ok := job.Payload.(models.Record)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return publisher.Publish(ctx, rec)
	}

	queue := jobs.NewQueue("publish", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return &PublishService{queue: queue, logger: logger}
}

// Start launches the publish workers.
func (s *PublishService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *PublishService) Stop() {
	s.queue.Stop()
}

// Enqueue hands a record to the publish workers.
func (s *PublishService) Enqueue(rec models.Record) error {
	return s.queue.Enqueue(jobs.Job{
		ID:      rec.ID,
		Type:    fmt.Sprintf("record:%d", rec.Kind),
		Payload: rec,
	})
}
