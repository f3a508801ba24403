package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/port"
)

// memRow is live while rows maps its code to it; deleted and rolled back
// inserts are simply unreachable.
type memRow struct {
	code string
	rec  domain.InventoryRecord
	// lock holds one token while a unit of work owns the row
	lock chan struct{}
}

func newMemRow(rec domain.InventoryRecord) *memRow {
	return &memRow{code: rec.ProductCode, rec: rec, lock: make(chan struct{}, 1)}
}

// MemoryAdapter keeps everything in process. Rows are locked exclusively per
// unit of work and writes are staged until Commit, so readers never observe
// a half-applied checkout.
type MemoryAdapter struct {
	mu          sync.Mutex
	rows        map[string]*memRow
	pending     map[string]*memRow
	receipts    map[string]domain.Receipt
	reserved    map[string]struct{}
	cards       map[string]domain.LoyaltyCard
	categories  map[int64]domain.Category
	products    map[int64]domain.Product
	outbox      []domain.OutboxEvent
	nextEventID int64
	lockTimeout time.Duration
}

var (
	_ port.Transactor          = (*MemoryAdapter)(nil)
	_ port.InventoryRepository = (*MemoryAdapter)(nil)
	_ port.ReceiptRepository   = (*MemoryAdapter)(nil)
	_ port.CatalogRepository   = (*MemoryAdapter)(nil)
	_ port.OutboxRepository    = (*MemoryAdapter)(nil)
)

func NewMemoryAdapter(lockTimeout time.Duration) *MemoryAdapter {
	return &MemoryAdapter{
		rows:        make(map[string]*memRow),
		pending:     make(map[string]*memRow),
		receipts:    make(map[string]domain.Receipt),
		reserved:    make(map[string]struct{}),
		cards:       make(map[string]domain.LoyaltyCard),
		categories:  make(map[int64]domain.Category),
		products:    make(map[int64]domain.Product),
		lockTimeout: lockTimeout,
	}
}

func (m *MemoryAdapter) row(productCode string) (*memRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[productCode]
	return r, ok
}

func (m *MemoryAdapter) acquire(ctx context.Context, r *memRow) error {
	var timeout <-chan time.Time
	if m.lockTimeout > 0 {
		timer := time.NewTimer(m.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r.lock <- struct{}{}:
		return nil
	case <-timeout:
		return fmt.Errorf("product %s: %w", r.code, domain.ErrLockTimeout)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("product %s: %w: %w", r.code, domain.ErrLockTimeout, ctx.Err())
		}
		return ctx.Err()
	}
}

func release(r *memRow) {
	<-r.lock
}

// live reports whether r is still the committed row for its code. Callers hold mu.
func (m *MemoryAdapter) live(r *memRow) bool {
	return m.rows[r.code] == r
}

// lockRow acquires a committed row, failing with ErrNotFound if it was deleted while waiting.
func (m *MemoryAdapter) lockRow(ctx context.Context, productCode string) (*memRow, error) {
	r, ok := m.row(productCode)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productCode, domain.ErrNotFound)
	}
	if err := m.acquire(ctx, r); err != nil {
		return nil, err
	}

	m.mu.Lock()
	ok = m.live(r)
	m.mu.Unlock()
	if !ok {
		release(r)
		return nil, fmt.Errorf("product %s: %w", productCode, domain.ErrNotFound)
	}
	return r, nil
}

func (m *MemoryAdapter) Begin(ctx context.Context) (port.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memUnitOfWork{
		store:      m,
		held:       make(map[string]*memRow),
		inserts:    make(map[string]*memRow),
		updates:    make(map[string]domain.InventoryRecord),
		decrements: make(map[string]int),
	}, nil
}

func (m *MemoryAdapter) GetInventory(_ context.Context, productCode string) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[productCode]
	if !ok {
		return domain.InventoryRecord{}, fmt.Errorf("product %s: %w", productCode, domain.ErrNotFound)
	}
	return r.rec, nil
}

func (m *MemoryAdapter) ListInventory(_ context.Context, filter domain.InventoryFilter) ([]domain.InventoryListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.InventoryListing, 0, len(m.rows))
	for _, r := range m.rows {
		if filter.Promotional != nil && r.rec.Promotional != *filter.Promotional {
			continue
		}
		out = append(out, domain.InventoryListing{InventoryRecord: r.rec, ProductName: m.products[r.rec.ProductID].Name})
	}
	sortListings(out, filter.SortBy)
	return out, nil
}

func sortListings(out []domain.InventoryListing, by domain.InventorySort) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch by {
		case domain.SortByName:
			if a.ProductName != b.ProductName {
				return a.ProductName < b.ProductName
			}
		case domain.SortByQuantity:
			if a.Quantity != b.Quantity {
				return a.Quantity > b.Quantity
			}
		}
		return a.ProductCode < b.ProductCode
	})
}

func (m *MemoryAdapter) SaveInventory(ctx context.Context, rec domain.InventoryRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	for {
		m.mu.Lock()
		r, ok := m.rows[rec.ProductCode]
		if !ok {
			r, ok = m.pending[rec.ProductCode]
		}
		if !ok {
			m.rows[rec.ProductCode] = newMemRow(rec)
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		if err := m.acquire(ctx, r); err != nil {
			return err
		}
		m.mu.Lock()
		replaced := m.live(r)
		if replaced {
			r.rec = rec
		}
		m.mu.Unlock()
		release(r)

		// the row was deleted or its insert rolled back while we waited
		if replaced {
			return nil
		}
	}
}

func (m *MemoryAdapter) Restock(ctx context.Context, productCode string, quantity int) (domain.InventoryRecord, error) {
	r, err := m.lockRow(ctx, productCode)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	defer release(r)

	m.mu.Lock()
	defer m.mu.Unlock()
	if r.rec.Quantity > domain.MaxQuantity-quantity {
		return domain.InventoryRecord{}, restockOverflow(productCode)
	}
	r.rec.Quantity += quantity
	r.rec.UpdatedAt = time.Now().UTC()
	return r.rec, nil
}

func restockOverflow(productCode string) error {
	return &domain.ValidationError{
		Field:   "quantity",
		Message: fmt.Sprintf("would take product %s past %d", productCode, domain.MaxQuantity),
	}
}

// DeleteInventory clears the regular row's link when the deleted row is its promotional entry.
func (m *MemoryAdapter) DeleteInventory(ctx context.Context, productCode string) error {
	r, err := m.lockRow(ctx, productCode)
	if err != nil {
		return err
	}
	defer release(r)

	m.mu.Lock()
	rec := r.rec
	var regular *memRow
	if rec.Promotional {
		for _, o := range m.rows {
			if o.rec.PromoCode != nil && *o.rec.PromoCode == productCode {
				regular = o
				break
			}
		}
	}
	m.mu.Unlock()

	if rec.PromoCode != nil {
		return fmt.Errorf("product %s is linked to promotional %s: %w", productCode, *rec.PromoCode, domain.ErrConflict)
	}
	if regular != nil {
		if err := m.acquire(ctx, regular); err != nil {
			return err
		}
		defer release(regular)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rc := range m.receipts {
		for _, l := range rc.Lines {
			if l.ProductCode == productCode {
				return fmt.Errorf("product %s is sold on receipt %s: %w", productCode, rc.Header.Number, domain.ErrConflict)
			}
		}
	}
	delete(m.rows, productCode)
	if regular != nil && m.live(regular) && regular.rec.PromoCode != nil && *regular.rec.PromoCode == productCode {
		regular.rec.PromoCode = nil
		regular.rec.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemoryAdapter) GetReceipt(_ context.Context, number string) (domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.receipts[number]
	if !ok {
		return domain.Receipt{}, fmt.Errorf("receipt %s: %w", number, domain.ErrNotFound)
	}
	rc.Lines = append([]domain.SaleLine(nil), rc.Lines...)
	sort.Slice(rc.Lines, func(i, j int) bool { return rc.Lines[i].ProductCode < rc.Lines[j].ProductCode })
	return rc, nil
}

func (m *MemoryAdapter) ListReceipts(_ context.Context, filter domain.ReceiptFilter) ([]domain.ReceiptHeader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ReceiptHeader
	for _, rc := range m.receipts {
		h := rc.Header
		if filter.EmployeeID != "" && h.EmployeeID != filter.EmployeeID {
			continue
		}
		if !filter.From.IsZero() && h.IssuedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !h.IssuedAt.Before(filter.To) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (m *MemoryAdapter) DeleteReceipt(_ context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receipts[number]; !ok {
		return fmt.Errorf("receipt %s: %w", number, domain.ErrNotFound)
	}
	delete(m.receipts, number)
	return nil
}

func (m *MemoryAdapter) GetCard(_ context.Context, cardNumber string) (domain.LoyaltyCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[cardNumber]
	if !ok {
		return domain.LoyaltyCard{}, fmt.Errorf("card %s: %w", cardNumber, domain.ErrNotFound)
	}
	return c, nil
}

// ListCards orders by surname, then card number.
func (m *MemoryAdapter) ListCards(_ context.Context, filter domain.CardFilter) ([]domain.LoyaltyCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	search := strings.ToLower(filter.Search)
	out := make([]domain.LoyaltyCard, 0, len(m.cards))
	for _, c := range m.cards {
		if search != "" && !strings.Contains(strings.ToLower(c.Surname), search) && !strings.Contains(strings.ToLower(c.Name), search) {
			continue
		}
		if filter.Percent != nil && c.Percent != *filter.Percent {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Surname != out[j].Surname {
			return out[i].Surname < out[j].Surname
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (m *MemoryAdapter) SaveCard(_ context.Context, card domain.LoyaltyCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[card.Number] = card
	return nil
}

func (m *MemoryAdapter) DeleteCard(_ context.Context, cardNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[cardNumber]; !ok {
		return fmt.Errorf("card %s: %w", cardNumber, domain.ErrNotFound)
	}
	for _, rc := range m.receipts {
		if rc.Header.CardNumber != nil && *rc.Header.CardNumber == cardNumber {
			return fmt.Errorf("card %s is used by receipt %s: %w", cardNumber, rc.Header.Number, domain.ErrConflict)
		}
	}
	delete(m.cards, cardNumber)
	return nil
}

func (m *MemoryAdapter) FetchPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.OutboxEvent
	for _, ev := range m.outbox {
		if len(out) == limit {
			break
		}
		if ev.SentAt == nil {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) MarkSent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.outbox {
		if m.outbox[i].ID == id {
			now := time.Now().UTC()
			m.outbox[i].SentAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox event %d: %w", id, domain.ErrNotFound)
}

type memUnitOfWork struct {
	store   *MemoryAdapter
	held    map[string]*memRow
	inserts map[string]*memRow
	// updates replace the whole row; decrements apply on top
	updates    map[string]domain.InventoryRecord
	decrements map[string]int
	receipt    *domain.ReceiptHeader
	lines      []domain.SaleLine
	events     []domain.OutboxEvent
	done       bool
}

func (u *memUnitOfWork) Inventory() port.InventoryStore { return u }
func (u *memUnitOfWork) Ledger() port.ReceiptLedger     { return u }

// view is the row as this unit of work sees it, staged decrements included.
func (u *memUnitOfWork) view(r *memRow) domain.InventoryRecord {
	u.store.mu.Lock()
	rec := r.rec
	u.store.mu.Unlock()
	if up, ok := u.updates[r.code]; ok {
		rec = up
	}
	rec.Quantity -= u.decrements[r.code]
	return rec
}

func (u *memUnitOfWork) LockForUpdate(ctx context.Context, productCode string) (domain.InventoryRecord, error) {
	if u.done {
		return domain.InventoryRecord{}, errors.New("unit of work already finished")
	}
	if r, ok := u.held[productCode]; ok {
		return u.view(r), nil
	}

	r, err := u.store.lockRow(ctx, productCode)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	u.held[productCode] = r
	return u.view(r), nil
}

func (u *memUnitOfWork) Decrement(_ context.Context, productCode string, quantity int) error {
	r, ok := u.held[productCode]
	if !ok {
		return fmt.Errorf("decrement %s without row lock: %w", productCode, domain.ErrStorage)
	}
	if u.view(r).Quantity < quantity {
		return fmt.Errorf("product %s: %w", productCode, domain.ErrInsufficientStock)
	}
	u.decrements[productCode] += quantity
	return nil
}

func (u *memUnitOfWork) InsertInventory(_ context.Context, rec domain.InventoryRecord) error {
	if u.done {
		return errors.New("unit of work already finished")
	}

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[rec.ProductCode]; ok {
		return fmt.Errorf("product %s already exists: %w", rec.ProductCode, domain.ErrConflict)
	}
	if _, ok := s.pending[rec.ProductCode]; ok {
		return fmt.Errorf("product %s already exists: %w", rec.ProductCode, domain.ErrConflict)
	}

	rec.UpdatedAt = time.Now().UTC()
	r := newMemRow(rec)
	r.lock <- struct{}{}
	s.pending[rec.ProductCode] = r
	u.inserts[rec.ProductCode] = r
	u.held[rec.ProductCode] = r
	return nil
}

func (u *memUnitOfWork) UpdateInventory(_ context.Context, rec domain.InventoryRecord) error {
	if _, ok := u.held[rec.ProductCode]; !ok {
		return fmt.Errorf("update %s without row lock: %w", rec.ProductCode, domain.ErrStorage)
	}
	u.updates[rec.ProductCode] = rec
	delete(u.decrements, rec.ProductCode)
	return nil
}

func (u *memUnitOfWork) InsertReceipt(_ context.Context, h domain.ReceiptHeader) error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.receipts[h.Number]; ok {
		return fmt.Errorf("receipt %s: %w", h.Number, domain.ErrDuplicateReceipt)
	}
	if _, ok := s.reserved[h.Number]; ok {
		return fmt.Errorf("receipt %s: %w", h.Number, domain.ErrDuplicateReceipt)
	}
	if h.CardNumber != nil {
		if _, ok := s.cards[*h.CardNumber]; !ok {
			return fmt.Errorf("card %s: %w", *h.CardNumber, domain.ErrNotFound)
		}
	}

	s.reserved[h.Number] = struct{}{}
	u.receipt = &h
	return nil
}

func (u *memUnitOfWork) InsertSaleLine(_ context.Context, l domain.SaleLine) error {
	if u.receipt == nil || u.receipt.Number != l.ReceiptNumber {
		return fmt.Errorf("receipt %s: %w", l.ReceiptNumber, domain.ErrNotFound)
	}
	if _, ok := u.store.row(l.ProductCode); !ok {
		return fmt.Errorf("product %s: %w", l.ProductCode, domain.ErrNotFound)
	}
	for _, existing := range u.lines {
		if existing.ProductCode == l.ProductCode {
			return fmt.Errorf("sale line %s/%s: %w", l.ProductCode, l.ReceiptNumber, domain.ErrConflict)
		}
	}
	u.lines = append(u.lines, l)
	return nil
}

func (u *memUnitOfWork) CardExists(_ context.Context, cardNumber string) (bool, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	_, ok := u.store.cards[cardNumber]
	return ok, nil
}

func (u *memUnitOfWork) AppendEvent(_ context.Context, ev domain.OutboxEvent) error {
	u.events = append(u.events, ev)
	return nil
}

func (u *memUnitOfWork) Commit() error {
	if u.done {
		return errors.New("unit of work already finished")
	}

	s := u.store
	s.mu.Lock()
	for code, qty := range u.decrements {
		base, ok := u.updates[code]
		if !ok {
			base = u.held[code].rec
		}
		if base.Quantity < qty {
			s.mu.Unlock()
			u.finish()
			return fmt.Errorf("product %s: %w", code, domain.ErrInsufficientStock)
		}
	}
	if h := u.receipt; h != nil && h.CardNumber != nil {
		if _, ok := s.cards[*h.CardNumber]; !ok {
			s.mu.Unlock()
			u.finish()
			return fmt.Errorf("card %s: %w", *h.CardNumber, domain.ErrNotFound)
		}
	}

	now := time.Now().UTC()
	for code, rec := range u.updates {
		r := u.held[code]
		rec.UpdatedAt = now
		r.rec = rec
	}
	for code, qty := range u.decrements {
		r := u.held[code]
		r.rec.Quantity -= qty
		r.rec.UpdatedAt = now
	}
	for code, r := range u.inserts {
		delete(s.pending, code)
		s.rows[code] = r
	}
	if u.receipt != nil {
		s.receipts[u.receipt.Number] = domain.Receipt{
			Header: *u.receipt,
			Lines:  append([]domain.SaleLine(nil), u.lines...),
		}
	}
	for _, ev := range u.events {
		s.nextEventID++
		ev.ID = s.nextEventID
		s.outbox = append(s.outbox, ev)
	}
	s.mu.Unlock()

	u.finish()
	return nil
}

func (u *memUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.finish()
	return nil
}

// finish drops the receipt and insert reservations and releases row locks.
func (u *memUnitOfWork) finish() {
	u.done = true
	u.store.mu.Lock()
	if u.receipt != nil {
		delete(u.store.reserved, u.receipt.Number)
	}
	for code, r := range u.inserts {
		if u.store.pending[code] == r {
			delete(u.store.pending, code)
		}
	}
	u.store.mu.Unlock()
	for code, r := range u.held {
		release(r)
		delete(u.held, code)
	}
}
