package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/florrin/calagenda/internal/engine"
	"github.com/florrin/calagenda/internal/models"
)

type recordSource interface {
	FetchRecent(ctx context.Context, kinds []int, limit int) ([]models.Record, error)
	PollSince(ctx context.Context, kinds []int, cursor int64, batch int) ([]models.Record, error)
	MaxSeq(ctx context.Context) (int64, error)
}

type syncObserver interface {
	ObserveIngest(result engine.BatchResult)
	ObservePoll(duration time.Duration, fetched int)
	SetPendingRSVPs(count int)
}

// SyncConfig tunes the store polling loop.
type SyncConfig struct {
	PollInterval time.Duration
	BatchSize    int
	FetchLimit   int
}

// SyncService owns the reconciliation engine and serializes every access to
// it: the poll loop, local submissions and snapshot reads all go through
// the one lock here, because the engine itself is not safe for concurrent
// use.
type SyncService struct {
	repo    recordSource
	metrics syncObserver
	logger  *zap.Logger
	cfg     SyncConfig

	mu     sync.RWMutex
	engine *engine.Engine
	cursor int64

	cron *cron.Cron
}

// NewSyncService constructs a sync service around a fresh engine.
func NewSyncService(repo recordSource, metrics syncObserver, logger *zap.Logger, cfg SyncConfig) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 1024
	}
	return &SyncService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		engine:  engine.New(),
	}
}

// Start performs the initial load and schedules the poll loop.
func (s *SyncService) Start(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
	if _, err := s.cron.AddFunc(spec, func() {
		pollCtx, cancel := context.WithTimeout(context.Background(), s.cfg.PollInterval)
		defer cancel()
		if err := s.Poll(pollCtx); err != nil {
			s.logger.Warn("record poll failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule poll: %w", err)
	}
	s.cron.Start()
	s.logger.Info("sync started",
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Int("batch_size", s.cfg.BatchSize))
	return nil
}

// Stop halts the poll loop and waits for an in-flight poll to finish.
func (s *SyncService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Load replays the newest records from the store into the engine. The
// cursor is captured before the fetch so anything arriving mid-load is
// picked up again by the next poll; re-ingesting is harmless.
func (s *SyncService) Load(ctx context.Context) error {
	cursor, err := s.repo.MaxSeq(ctx)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	records, err := s.repo.FetchRecent(ctx, models.RecordKinds, s.cfg.FetchLimit)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	// FetchRecent returns newest first; ingest in arrival order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	s.mu.Lock()
	result := s.engine.IngestBatch(records)
	s.engine.ReconcileAfterSync(result.ConfirmedRsvpIDs)
	s.cursor = cursor
	pending := s.engine.PendingCount()
	s.mu.Unlock()

	s.observe(result, pending)
	s.logger.Info("initial load complete",
		zap.Int("records", len(records)),
		zap.Int("events", result.Events),
		zap.Int("calendars", result.Calendars),
		zap.Int("rsvps", result.Rsvps))
	return nil
}

// Poll drains newly arrived records in batches until the store has nothing
// newer than the cursor.
func (s *SyncService) Poll(ctx context.Context) error {
	started := time.Now()
	total := 0
	for {
		s.mu.RLock()
		cursor := s.cursor
		s.mu.RUnlock()

		records, err := s.repo.PollSince(ctx, models.RecordKinds, cursor, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("poll since %d: %w", cursor, err)
		}
		if len(records) == 0 {
			break
		}

		s.mu.Lock()
		result := s.engine.IngestBatch(records)
		s.engine.ReconcileAfterSync(result.ConfirmedRsvpIDs)
		s.cursor = records[len(records)-1].Seq
		pending := s.engine.PendingCount()
		s.mu.Unlock()

		total += len(records)
		s.observe(result, pending)

		if len(records) < s.cfg.BatchSize {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.ObservePoll(time.Since(started), total)
	}
	if total > 0 {
		s.logger.Debug("poll ingested records", zap.Int("count", total))
	}
	return nil
}

// ApplyLocal feeds a locally built event or calendar record straight into
// the engine so reads reflect it before the store round-trip.
func (s *SyncService) ApplyLocal(rec models.Record) {
	s.mu.Lock()
	result := s.engine.IngestBatch([]models.Record{rec})
	s.mu.Unlock()
	s.observe(result, -1)
}

// SubmitLocalRSVP merges a local RSVP as both confirmed and pending.
func (s *SyncService) SubmitLocalRSVP(rsvp *models.CalendarRsvp) {
	s.mu.Lock()
	s.engine.SubmitLocalRSVP(rsvp)
	pending := s.engine.PendingCount()
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetPendingRSVPs(pending)
	}
}

// Events returns the current reconciled event snapshot.
func (s *SyncService) Events() []*models.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Events()
}

// EventByID looks an event up by record id.
func (s *SyncService) EventByID(id string) (*models.CalendarEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.EventByID(id)
}

// Calendars returns all known calendar definitions.
func (s *SyncService) Calendars() []*models.CalendarDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Calendars()
}

// CalendarByCoordinate looks a definition up by coordinate.
func (s *SyncService) CalendarByCoordinate(coord string) (*models.CalendarDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.CalendarByCoordinate(coord)
}

// IsPending reports whether an RSVP id still awaits store confirmation.
func (s *SyncService) IsPending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.IsPending(id)
}

// Version returns the engine's snapshot version counter.
func (s *SyncService) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Version()
}

func (s *SyncService) observe(result engine.BatchResult, pending int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveIngest(result)
	if pending >= 0 {
		s.metrics.SetPendingRSVPs(pending)
	}
}
