package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vmledger/services/inventory"
)

type countingEngine struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (e *countingEngine) StartSync(_ context.Context, platform inventory.Platform, resource inventory.ResourceType) (inventory.SyncRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[string(platform)+"/"+string(resource)]++
	if e.err != nil {
		return inventory.SyncRun{}, e.err
	}
	return inventory.SyncRun{Platform: platform, ResourceType: resource, Status: inventory.RunSuccess}, nil
}

func TestSweepCoversAllPairs(t *testing.T) {
	engine := &countingEngine{}
	s, err := New(engine, time.Hour, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.sweep(context.Background())

	pairs := inventory.SupportedPairs()
	if len(engine.calls) != len(pairs) {
		t.Fatalf("calls = %v, want one per pair", engine.calls)
	}
	for _, pair := range pairs {
		key := string(pair.Platform) + "/" + string(pair.Resource)
		if engine.calls[key] != 1 {
			t.Fatalf("pair %s called %d times, want 1", key, engine.calls[key])
		}
	}
}

func TestSweepContinuesPastBusyPairs(t *testing.T) {
	engine := &countingEngine{err: inventory.ErrSyncAlreadyInProgress}
	s, err := New(engine, time.Hour, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.sweep(context.Background())

	if len(engine.calls) != len(inventory.SupportedPairs()) {
		t.Fatalf("busy pair stopped the sweep: %v", engine.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	engine := &countingEngine{}
	s, err := New(engine, time.Hour, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The initial sweep happens before the first tick.
	deadline := time.After(2 * time.Second)
	for {
		engine.mu.Lock()
		n := len(engine.calls)
		engine.mu.Unlock()
		if n == len(inventory.SupportedPairs()) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial sweep never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
