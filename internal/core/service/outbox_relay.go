package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rl1809/zlagoda/internal/port"
	"github.com/rl1809/zlagoda/pkg/metrics"
)

// OutboxRelay moves committed receipt events to the broker in id order.
type OutboxRelay struct {
	repo      port.OutboxRepository
	publisher port.EventPublisher
	metrics   *metrics.OutboxMetrics
	logger    *zap.Logger
	batchSize int
	timeout   time.Duration

	cron *cron.Cron
	mu   sync.Mutex
}

func NewOutboxRelay(repo port.OutboxRepository, publisher port.EventPublisher, batchSize int, m *metrics.OutboxMetrics, logger *zap.Logger) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		batchSize: batchSize,
		timeout:   30 * time.Second,
		cron:      cron.New(cron.WithSeconds()),
	}
}

// Start schedules the relay, e.g. "*/5 * * * * *" for every five seconds.
func (r *OutboxRelay) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, r.tick)
	if err != nil {
		return err
	}
	r.logger.Info("starting outbox relay", zap.String("schedule", schedule))
	r.cron.Start()
	return nil
}

// Stop waits for a running batch to finish.
func (r *OutboxRelay) Stop() {
	r.logger.Info("stopping outbox relay")
	<-r.cron.Stop().Done()
}

func (r *OutboxRelay) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.RelayOnce(ctx); err != nil {
		r.logger.Warn("outbox relay batch stopped", zap.Error(err))
	}
}

// RelayOnce publishes one batch and stops at the first failure so later events
// never overtake an earlier one. It returns how many events were marked sent.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	// overlapping ticks would publish the same rows twice
	if !r.mu.TryLock() {
		return 0, nil
	}
	defer r.mu.Unlock()

	events, err := r.repo.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, ev := range events {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			if r.metrics != nil {
				r.metrics.Failures.Inc()
			}
			return sent, err
		}
		if err := r.repo.MarkSent(ctx, ev.ID); err != nil {
			return sent, err
		}
		if r.metrics != nil {
			r.metrics.Published.Inc()
		}
		sent++
	}

	if sent > 0 {
		r.logger.Debug("outbox events published", zap.Int("count", sent))
	}
	return sent, nil
}
