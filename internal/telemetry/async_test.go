package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	EmitAsync(nil, context.Background(), &domain.Event{EventType: "test"})

	emitter := &mockEventEmitter{}
	EmitAsync(emitter, context.Background(), nil)
	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_Emits(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 1)}
	event := &domain.Event{EventType: "http.request", Source: domain.SourceHTTP, DesktopAppID: "desk-1"}

	EmitAsync(emitter, context.Background(), event)

	select {
	case <-emitter.done:
	case <-time.After(time.Second):
		t.Fatal("emit did not run")
	}
	events := emitter.getEvents()
	if len(events) != 1 || events[0].DesktopAppID != "desk-1" {
		t.Fatalf("events = %+v", events)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestEmitAsync_SurvivesCancelledRequestContext(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	EmitAsync(emitter, ctx, &domain.Event{EventType: "late"})

	select {
	case <-emitter.done:
	case <-time.After(time.Second):
		t.Fatal("emit should run even when the request context is cancelled")
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: errors.New("kafka down"), done: make(chan struct{}, 1)}
	EmitAsync(emitter, context.Background(), &domain.Event{EventType: "x"})
	select {
	case <-emitter.done:
	case <-time.After(time.Second):
		t.Fatal("emit did not run")
	}
}

type blockingEmitter struct {
	release chan struct{}
}

func (b *blockingEmitter) Emit(ctx context.Context, event *domain.Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDrain_WaitsForInflightEmits(t *testing.T) {
	emitter := &blockingEmitter{release: make(chan struct{})}
	EmitAsync(emitter, context.Background(), &domain.Event{EventType: "slow"})

	if Drain(20 * time.Millisecond) {
		t.Fatal("Drain should time out while an emit is blocked")
	}
	close(emitter.release)
	if !Drain(time.Second) {
		t.Fatal("Drain should return once the emit finishes")
	}
}

func TestDrain_NothingInflight(t *testing.T) {
	if !Drain(time.Second) {
		t.Error("Drain with no emits should return true")
	}
}

func TestFanout(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: errors.New("b failed")}
	f := Fanout{a, nil, b}
	err := f.Emit(context.Background(), &domain.Event{EventType: "x"})
	if err == nil {
		t.Fatal("Fanout should surface the failing emitter's error")
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Error("every emitter should receive the event")
	}
	if err := (Fanout{}).Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("empty Fanout: %v", err)
	}
}
