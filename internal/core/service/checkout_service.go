package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/port"
	"github.com/rl1809/zlagoda/pkg/metrics"
)

const cacheInvalidateTimeout = time.Second

// CheckoutService records a sale as one unit of work: every requested row is
// locked and checked before anything is written, and any failure rolls the
// whole receipt back.
type CheckoutService struct {
	tx      port.Transactor
	cache   port.StockCache
	metrics *metrics.CheckoutMetrics
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration
	outbox  bool
}

type CheckoutOption func(*CheckoutService)

// WithStockCache invalidates cached inventory snapshots after every commit.
func WithStockCache(c port.StockCache) CheckoutOption {
	return func(s *CheckoutService) { s.cache = c }
}

// WithOutbox appends a receipt.created event to the same unit of work.
func WithOutbox(enabled bool) CheckoutOption {
	return func(s *CheckoutService) { s.outbox = enabled }
}

// WithCheckoutTimeout bounds a whole checkout, lock waits included.
func WithCheckoutTimeout(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) { s.timeout = d }
}

func WithCheckoutMetrics(m *metrics.CheckoutMetrics) CheckoutOption {
	return func(s *CheckoutService) { s.metrics = m }
}

func WithCheckoutLogger(l *zap.Logger) CheckoutOption {
	return func(s *CheckoutService) { s.logger = l }
}

func WithClock(now func() time.Time) CheckoutOption {
	return func(s *CheckoutService) { s.now = now }
}

func NewCheckoutService(tx port.Transactor, opts ...CheckoutOption) *CheckoutService {
	s := &CheckoutService{
		tx:     tx,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CheckoutService) SubmitCheckout(ctx context.Context, req domain.CheckoutRequest) (header domain.ReceiptHeader, err error) {
	start := s.now()
	state := domain.CheckoutReceived
	defer func() { s.observe(req, state, err, start) }()

	req.Normalize(start)
	state = domain.CheckoutValidating
	if err := req.Validate(); err != nil {
		state = domain.CheckoutRejected
		return domain.ReceiptHeader{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	uow, err := s.tx.Begin(ctx)
	if err != nil {
		state = domain.CheckoutRolledBack
		return domain.ReceiptHeader{}, storageError("begin checkout", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := uow.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed",
				zap.String("receipt_number", req.Header.Number),
				zap.Error(rbErr))
		}
	}()

	state = domain.CheckoutLockingAndVerifying
	if err := s.lockAndVerify(ctx, uow, req); err != nil {
		state = domain.CheckoutRolledBack
		return domain.ReceiptHeader{}, storageError("verify stock", err)
	}

	state = domain.CheckoutWriting
	if err := s.write(ctx, uow, req); err != nil {
		state = domain.CheckoutRolledBack
		return domain.ReceiptHeader{}, storageError("write receipt", err)
	}

	if err := uow.Commit(); err != nil {
		state = domain.CheckoutRolledBack
		return domain.ReceiptHeader{}, storageError("commit checkout", err)
	}
	committed = true
	state = domain.CheckoutCommitted

	s.invalidate(ctx, req)
	return req.Header, nil
}

// lockAndVerify locks rows in ascending product code order so two checkouts
// sharing products always queue on the same first row.
func (s *CheckoutService) lockAndVerify(ctx context.Context, uow port.UnitOfWork, req domain.CheckoutRequest) error {
	items := make([]domain.LineItem, len(req.Items))
	copy(items, req.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductCode < items[j].ProductCode })

	for _, it := range items {
		rec, err := uow.Inventory().LockForUpdate(ctx, it.ProductCode)
		if err != nil {
			return err
		}
		if rec.Quantity < it.Quantity {
			return fmt.Errorf("product %s: requested %d, available %d: %w",
				it.ProductCode, it.Quantity, rec.Quantity, domain.ErrInsufficientStock)
		}
	}

	if card := req.Header.CardNumber; card != nil {
		ok, err := uow.Ledger().CardExists(ctx, *card)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("card %s: %w", *card, domain.ErrNotFound)
		}
	}
	return nil
}

func (s *CheckoutService) write(ctx context.Context, uow port.UnitOfWork, req domain.CheckoutRequest) error {
	if err := uow.Ledger().InsertReceipt(ctx, req.Header); err != nil {
		return err
	}

	lines := req.Lines()
	for _, l := range lines {
		if err := uow.Ledger().InsertSaleLine(ctx, l); err != nil {
			return err
		}
		if err := uow.Inventory().Decrement(ctx, l.ProductCode, l.Quantity); err != nil {
			return err
		}
	}

	if !s.outbox {
		return nil
	}

	payload, err := json.Marshal(domain.Receipt{Header: req.Header, Lines: lines})
	if err != nil {
		return fmt.Errorf("encode receipt event: %w", err)
	}
	return uow.Ledger().AppendEvent(ctx, domain.OutboxEvent{
		EventID:   uuid.NewString(),
		Topic:     domain.TopicReceiptCreated,
		Key:       req.Header.Number,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	})
}

// invalidate runs after commit; a failure only leaves a snapshot to expire by TTL.
func (s *CheckoutService) invalidate(ctx context.Context, req domain.CheckoutRequest) {
	if s.cache == nil {
		return
	}

	codes := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		codes = append(codes, it.ProductCode)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheInvalidateTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, codes...); err != nil {
		s.logger.Warn("stock cache invalidation failed",
			zap.Strings("product_codes", codes),
			zap.Error(err))
	}
}

func (s *CheckoutService) observe(req domain.CheckoutRequest, state domain.CheckoutState, err error, start time.Time) {
	elapsed := s.now().Sub(start)
	reason := ErrorReason(err)

	if s.metrics != nil {
		s.metrics.Outcomes.WithLabelValues(string(state), reason).Inc()
		s.metrics.LatencyMS.Observe(float64(elapsed.Microseconds()) / 1000)
		s.metrics.Items.Observe(float64(len(req.Items)))
	}

	fields := []zap.Field{
		zap.String("receipt_number", req.Header.Number),
		zap.String("employee_id", req.Header.EmployeeID),
		zap.Int("items", len(req.Items)),
		zap.String("state", string(state)),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case err == nil:
		s.logger.Info("checkout committed", fields...)
	case errors.Is(err, domain.ErrStorage):
		s.logger.Error("checkout failed", append(fields, zap.String("reason", reason), zap.Error(err))...)
	default:
		s.logger.Info("checkout refused", append(fields, zap.String("reason", reason), zap.Error(err))...)
	}
}

// storageError keeps domain errors as they are and files everything else
// under ErrStorage. A blown deadline means we waited too long on a lock.
func storageError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrStorage):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrLockTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

// ErrorReason names the error kind for metrics and logs.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrDuplicateReceipt):
		return "duplicate_receipt"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	}
	return "storage"
}
