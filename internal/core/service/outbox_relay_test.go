package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/pkg/metrics"
)

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	keys   []string
	failAt string
}

func (p *mockPublisher) Publish(_ context.Context, ev domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Key == p.failAt {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, ev.Key)
	return nil
}

func TestOutboxRelay_PublishesInOrder(t *testing.T) {
	store := newStore(t, time.Second, map[string]int{codeA: 10})
	svc := NewCheckoutService(store, WithOutbox(true))
	ctx := context.Background()
	for _, num := range []string{"CHECK001", "CHECK002", "CHECK003"} {
		if _, err := svc.SubmitCheckout(ctx, checkout(num, item(codeA, 1))); err != nil {
			t.Fatalf("checkout %s failed: %v", num, err)
		}
	}

	pub := &mockPublisher{}
	m := metrics.NewOutboxMetrics(prometheus.NewRegistry())
	relay := NewOutboxRelay(store, pub, 2, m, nil)

	sent, err := relay.RelayOnce(ctx)
	if err != nil || sent != 2 {
		t.Fatalf("expected 2 sent, got %d (%v)", sent, err)
	}
	sent, err = relay.RelayOnce(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("expected 1 sent, got %d (%v)", sent, err)
	}

	want := []string{"CHECK001", "CHECK002", "CHECK003"}
	for i, k := range want {
		if pub.keys[i] != k {
			t.Errorf("position %d: expected %s, got %s", i, k, pub.keys[i])
		}
	}
	if got := testutil.ToFloat64(m.Published); got != 3 {
		t.Errorf("expected 3 published, got %v", got)
	}

	pending, _ := store.FetchPending(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("expected empty outbox, got %d", len(pending))
	}
}

func TestOutboxRelay_StopsAtFirstFailure(t *testing.T) {
	store := newStore(t, time.Second, map[string]int{codeA: 10})
	svc := NewCheckoutService(store, WithOutbox(true))
	ctx := context.Background()
	for _, num := range []string{"CHECK001", "CHECK002", "CHECK003"} {
		svc.SubmitCheckout(ctx, checkout(num, item(codeA, 1)))
	}

	pub := &mockPublisher{failAt: "CHECK002"}
	relay := NewOutboxRelay(store, pub, 10, nil, nil)

	sent, err := relay.RelayOnce(ctx)
	if err == nil {
		t.Fatal("expected publish error")
	}
	if sent != 1 || len(pub.keys) != 1 {
		t.Errorf("expected only CHECK001 delivered, got %v", pub.keys)
	}

	pending, _ := store.FetchPending(ctx, 10)
	if len(pending) != 2 || pending[0].Key != "CHECK002" {
		t.Errorf("failed event and its successors must stay pending: %+v", pending)
	}

	pub.failAt = ""
	if sent, err := relay.RelayOnce(ctx); err != nil || sent != 2 {
		t.Errorf("expected the rest delivered, got %d (%v)", sent, err)
	}
}

func TestOutboxRelay_StartRejectsBadSchedule(t *testing.T) {
	relay := NewOutboxRelay(newStore(t, time.Second, nil), &mockPublisher{}, 0, nil, nil)
	if err := relay.Start("every now and then"); err == nil {
		relay.Stop()
		t.Fatal("expected schedule parse error")
	}

	if err := relay.Start("@every 1s"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	relay.Stop()
}
