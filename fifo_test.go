package fairlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fastFifoConfig() FifoConfig {
	return FifoConfig{
		Config: Config{
			RetryCount: 1,
			RetryDelay: 10 * time.Millisecond,
		},
		FifoRetryCount: 100,
		FifoRetryDelay: 10 * time.Millisecond,
		QueueLength:    3,
		EphemeralTTL:   5 * time.Second,
	}
}

func TestPositionName(t *testing.T) {
	tests := []struct {
		resource string
		position int
		want     string
	}{
		{"pants", 0, "pants"},
		{"pants", 1, "pants__1"},
		{"pants", 10, "pants__10"},
		{"pants", 64, "pants__64"},
	}

	for _, tt := range tests {
		if got := positionName(tt.resource, tt.position); got != tt.want {
			t.Errorf("positionName(%q, %d) = %q, want %q", tt.resource, tt.position, got, tt.want)
		}
	}
}

// TestFIFO_SingleWaiterWalksToHead checks the degenerate queue: one waiter
// joins at the tail and walks straight to position 0
func TestFIFO_SingleWaiterWalksToHead(t *testing.T) {
	f := newFleet(t, 1, 0)
	fifo := newTestFIFOLocker(t, f, fastFifoConfig())
	ctx := context.Background()

	lock, err := fifo.Lock(ctx, "pants", 10*time.Second)
	if err != nil {
		t.Fatalf("acquisition failed: %v", err)
	}

	if lock.Resource != "pants" {
		t.Errorf("returned lock should name the bare resource, got %q", lock.Resource)
	}
	if got := f.holders("pants", lock.Key); got != 1 {
		t.Errorf("position 0 should hold the lock key, holders = %d", got)
	}

	// The walk released every intermediate slot behind it.
	for position := 1; position <= 3; position++ {
		if f.servers[0].Exists(positionName("pants", position)) {
			t.Errorf("slot %d should have been released during the walk", position)
		}
	}

	fifo.Unlock(ctx, lock)
	if f.servers[0].Exists("pants") {
		t.Error("resource key should be gone after release")
	}
}

// TestFIFO_HeadGetsRequestedTTL checks that only the head slot carries the
// caller's ttl, waiting slots stay ephemeral
func TestFIFO_HeadGetsRequestedTTL(t *testing.T) {
	f := newFleet(t, 1, 0)
	fifo := newTestFIFOLocker(t, f, fastFifoConfig())

	lock, err := fifo.Lock(context.Background(), "pants", time.Minute)
	if err != nil {
		t.Fatalf("acquisition failed: %v", err)
	}
	defer fifo.Unlock(context.Background(), lock)

	if ttl := f.servers[0].TTL("pants"); ttl <= 5*time.Second {
		t.Errorf("head slot ttl = %v, want the requested minute, not the ephemeral ttl", ttl)
	}
}

// TestFIFO_ArrivalOrder ports the fairness scenario: staggered waiters
// acquire the resource in arrival order
func TestFIFO_ArrivalOrder(t *testing.T) {
	f := newFleet(t, 1, 0)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	for _, name := range []string{"A", "B", "C"} {
		// A separate locker per waiter mirrors separate client processes.
		fifo := newTestFIFOLocker(t, f, fastFifoConfig())

		wg.Add(1)
		go func(name string, fifo *FIFOLocker) {
			defer wg.Done()
			lock, err := fifo.Lock(ctx, "pants", 10*time.Second)
			if err != nil {
				t.Errorf("waiter %s failed to acquire: %v", name, err)
				return
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			time.Sleep(150 * time.Millisecond)
			fifo.Unlock(ctx, lock)
		}(name, fifo)

		time.Sleep(60 * time.Millisecond)
	}
	wg.Wait()

	if got := len(order); got != 3 {
		t.Fatalf("all three waiters should acquire, got %d", got)
	}
	for i, want := range []string{"A", "B", "C"} {
		if order[i] != want {
			t.Fatalf("completion order = %v, want [A B C]", order)
		}
	}
}

// TestFIFO_AbortReleasesSlots ports: a waiter that never reaches position 0
// leaves no keys behind
func TestFIFO_AbortReleasesSlots(t *testing.T) {
	f := newFleet(t, 1, 0)
	cfg := fastFifoConfig()
	cfg.FifoRetryCount = 2
	cfg.FifoRetryDelay = 5 * time.Millisecond
	fifo := newTestFIFOLocker(t, f, cfg)
	ctx := context.Background()

	lockA, err := fifo.Lock(ctx, "pants", 10*time.Second)
	if err != nil {
		t.Fatalf("first acquisition failed: %v", err)
	}

	_, err = fifo.Lock(ctx, "pants", 10*time.Second)
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("blocked acquisition should fail with ErrNotAcquired, got: %v", err)
	}

	// The aborted waiter's slots are gone; only the holder's key remains.
	keys := f.servers[0].Keys()
	if len(keys) != 1 || keys[0] != "pants" {
		t.Errorf("only the held resource key should remain, got %v", keys)
	}

	fifo.Unlock(ctx, lockA)
	if keys := f.servers[0].Keys(); len(keys) != 0 {
		t.Errorf("no keys should remain after release, got %v", keys)
	}
}

// TestFIFO_DeadWaiterExpires checks liveness behind a crashed waiter: its
// ephemeral slot expires and the successor advances through it
func TestFIFO_DeadWaiterExpires(t *testing.T) {
	f := newFleet(t, 1, 0)
	cfg := fastFifoConfig()
	fifo := newTestFIFOLocker(t, f, cfg)
	ctx := context.Background()

	// A dead waiter occupies position 3 (the join position) with some
	// remaining ephemeral ttl and will never advance or renew it.
	dead := positionName("pants", 3)
	if err := f.servers[0].Set(dead, "deadbeef"); err != nil {
		t.Fatalf("failed to plant dead waiter: %v", err)
	}
	f.servers[0].SetTTL(dead, 5*time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Give the live waiter time to stall behind the corpse, then let
		// the ephemeral ttl run out.
		time.Sleep(50 * time.Millisecond)
		f.fastForward(6 * time.Second)
	}()

	lock, err := fifo.Lock(ctx, "pants", 10*time.Second)
	<-done
	if err != nil {
		t.Fatalf("acquisition behind a dead waiter failed: %v", err)
	}
	defer fifo.Unlock(ctx, lock)

	if got := f.holders("pants", lock.Key); got != 1 {
		t.Errorf("live waiter should reach position 0, holders = %d", got)
	}
}

// TestFIFO_DelegatesToPositionZero checks Extend/IsValid/auto-extend act on
// the bare resource key
func TestFIFO_DelegatesToPositionZero(t *testing.T) {
	f := newFleet(t, 1, 0)
	fifo := newTestFIFOLocker(t, f, fastFifoConfig())
	ctx := context.Background()

	lock, err := fifo.Lock(ctx, "pants", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("acquisition failed: %v", err)
	}

	if !fifo.Extend(ctx, lock, time.Second) {
		t.Error("extension through the fifo layer should succeed")
	}
	f.fastForward(600 * time.Millisecond)
	if !fifo.IsValid(ctx, lock) {
		t.Error("lock should be valid after extension")
	}

	err = fifo.AutoExtend(lock, 50*time.Millisecond, time.Second, func() error {
		return nil
	})
	if err != nil {
		t.Fatalf("autoextend through the fifo layer failed: %v", err)
	}

	fifo.Unlock(ctx, lock)
	if f.servers[0].Exists("pants") {
		t.Error("resource key should be gone after release")
	}
}

// TestFIFO_RetryBudgetResetsOnProgress: a waiter advancing through a long
// queue must not trip the stall budget
func TestFIFO_RetryBudgetResetsOnProgress(t *testing.T) {
	f := newFleet(t, 1, 0)
	cfg := fastFifoConfig()
	cfg.QueueLength = 10
	cfg.FifoRetryCount = 2 // far fewer retries than queue positions
	fifo := newTestFIFOLocker(t, f, cfg)

	lock, err := fifo.Lock(context.Background(), "pants", 10*time.Second)
	if err != nil {
		t.Fatalf("walking 10 positions should not exhaust a stall budget of 2: %v", err)
	}
	fifo.Unlock(context.Background(), lock)
}

func TestNewFIFOLocker_BadConfig(t *testing.T) {
	_, err := NewFIFOLocker(nil, FifoConfig{}, nil, nil)
	if !errors.Is(err, ErrNoInstances) {
		t.Errorf("empty instance set should fail with ErrNoInstances, got: %v", err)
	}

	f := newFleet(t, 1, 0)
	_, err = NewFIFOLockerWithInstances(f.instances, FifoConfig{QueueLength: -1}, nil, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("negative queue length should fail with ErrInvalidConfig, got: %v", err)
	}
}
