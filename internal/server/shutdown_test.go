package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/efebarandurmaz/bigsmall/internal/graph"
)

func TestNewShutdownHandler_Defaults(t *testing.T) {
	h := NewShutdownHandler(nil)
	if h.timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %v", h.timeout)
	}
	if len(h.signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(h.signals))
	}

	h = NewShutdownHandler(&ShutdownConfig{Timeout: 10 * time.Second})
	if h.timeout != 10*time.Second {
		t.Fatalf("expected 10s timeout, got %v", h.timeout)
	}
	if len(h.signals) != 2 {
		t.Fatal("missing signals should fall back to the defaults")
	}
}

func TestShutdownHandler_HookOrder(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: 5 * time.Second})

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	h.Add(TracingShutdownHook(record("tracing")))
	h.Add(TemporalWorkerShutdownHook(func() { record("worker")(context.Background()) }))
	h.Add(GraphShutdownHook(record("graph")))
	h.RegisterHook("health-server", 5, record("health-server"))

	h.Start()
	h.Shutdown()
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("shutdown timed out")
	}

	want := []string{"health-server", "worker", "graph", "tracing"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestShutdownHandler_HookWithError(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: 5 * time.Second})

	var called bool
	h.RegisterHook("failing", 10, func(context.Context) error { return errors.New("hook failed") })
	h.RegisterHook("after", 20, func(context.Context) error {
		called = true
		return nil
	})

	h.Start()
	h.Shutdown()
	h.Wait()

	if !called {
		t.Fatal("expected second hook to run despite the first failing")
	}
}

func TestShutdownHandler_WaitWithTimeout_Timeout(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: 10 * time.Second})
	release := make(chan struct{})
	h.RegisterHook("slow", 10, func(context.Context) error {
		<-release
		return nil
	})

	h.Start()
	h.Shutdown()
	if h.WaitWithTimeout(50 * time.Millisecond) {
		t.Fatal("expected timeout")
	}
	close(release)
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("expected completion after the hook returns")
	}
}

func TestShutdownHandler_ShutdownBeforeStart(t *testing.T) {
	h := NewShutdownHandler(nil)
	h.Shutdown()
	select {
	case <-h.ShutdownCh():
		t.Fatal("shutdown before Start should be ignored")
	default:
	}
}

func TestShutdownHandler_DoubleStartAndShutdown(t *testing.T) {
	h := NewShutdownHandler(nil)
	h.Start()
	h.Start()
	h.Shutdown()
	h.Shutdown()
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("shutdown timed out")
	}
}

func TestGraphShutdownHook_ClosesRepository(t *testing.T) {
	repo := graph.NewMemory()
	hook := GraphShutdownHook(repo.Close)
	if hook.Name != "graph" {
		t.Fatalf("unexpected hook name %s", hook.Name)
	}
	if err := hook.Fn(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestGracefulServer_NotReadyAfterShutdown(t *testing.T) {
	g := NewGracefulServer(nil, &ShutdownConfig{Timeout: time.Second})
	g.Health.SetReady(true)
	g.Start("127.0.0.1:0")
	g.Shutdown.Shutdown()
	g.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.Health.mu.RLock()
		ready := g.Health.ready
		g.Health.mu.RUnlock()
		if !ready {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected readiness to drop once shutdown starts")
}
