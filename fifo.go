package fairlock

import (
	"context"
	"strconv"
	"time"
)

// FIFOLocker serves concurrent requesters of the same resource in arrival
// order. Waiters take positional sub-locks forming a queue: a new waiter
// joins at the tail position and advances one slot at a time toward position
// 0, which is the lock on the resource itself. Non-head slots carry a short
// ephemeral TTL and are kept alive by the waiter between attempts, so a
// crashed waiter drops out of the queue quickly instead of starving its
// successors.
//
// Release and extension bypass the queue and act on the position-0 lock
// directly.
type FIFOLocker struct {
	locker  *Locker
	cfg     FifoConfig
	logger  Logger
	metrics Metrics
}

// NewFIFOLocker creates a FIFOLocker from connection descriptors.
// Pass nil for logger or metrics to disable them.
//
// The underlying quorum lock defaults to a single attempt per positional
// slot; the FIFO retry budget is what drives waiting.
func NewFIFOLocker(cfgs []InstanceConfig, cfg FifoConfig, logger Logger, metrics Metrics) (*FIFOLocker, error) {
	instances, err := NewInstances(cfgs)
	if err != nil {
		return nil, err
	}
	return NewFIFOLockerWithInstances(instances, cfg, logger, metrics)
}

// NewFIFOLockerWithInstances creates a FIFOLocker over pre-built instances
func NewFIFOLockerWithInstances(instances []Instance, cfg FifoConfig, logger Logger, metrics Metrics) (*FIFOLocker, error) {
	// Single-shot inner acquisitions unless the caller asked otherwise:
	// retrying a positional slot inside the quorum layer would fight the
	// FIFO budget and hold the walk back.
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 1
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	locker, err := NewLockerWithInstances(instances, cfg.Config, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &FIFOLocker{
		locker:  locker,
		cfg:     cfg,
		logger:  locker.logger,
		metrics: locker.metrics,
	}, nil
}

// positionName maps a logical resource and queue position to the physical
// key. Position 0 is the resource itself. The rule is a cross-client
// contract: clients with different configurations must produce identical
// names for the chain to line up.
func positionName(resource string, position int) string {
	if position == 0 {
		return resource
	}
	return resource + "__" + strconv.Itoa(position)
}

// Lock acquires the resource FIFO-fairly. The waiter joins the queue at the
// tail position and walks forward one slot per successful acquisition,
// releasing the previous slot behind it. The retry budget counts stalled
// attempts only and resets on every advance, so a waiter making progress
// never times out. On success the returned Lock names the bare resource, whose
// key was set with the caller's requested TTL; on abort any held slot is released and
// ErrNotAcquired is returned.
func (f *FIFOLocker) Lock(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	f.logger.Debug("fifo locking resource", "resource", resource, "ttl", ttl)
	waitStart := time.Now()

	currentPosition := -1 // not in the queue yet
	var held *Lock
	retries := 0

	for currentPosition != 0 && retries < f.cfg.FifoRetryCount {
		var nextPosition int
		if currentPosition < 0 {
			nextPosition = f.cfg.QueueLength
		} else {
			nextPosition = currentPosition - 1
		}

		// Keep the slot we stand on alive while we attempt the next one.
		if held != nil {
			f.locker.Extend(ctx, held, f.cfg.EphemeralTTL)
		}

		// Only the head position gets the caller's TTL; waiting slots are
		// short-lived placeholders.
		nextTTL := f.cfg.EphemeralTTL
		if nextPosition == 0 {
			nextTTL = ttl
		}

		f.logger.Debug("trying queue position",
			"resource", resource,
			"position", nextPosition,
			"retry", retries,
		)
		nextLock, err := f.locker.Lock(ctx, positionName(resource, nextPosition), nextTTL)

		if err == nil {
			retries = 0
			if held != nil {
				f.locker.Unlock(ctx, held)
			}
			held = nextLock
			currentPosition = nextPosition
			f.metrics.Gauge(MetricFifoPosition, float64(currentPosition), "resource", resource)
			f.logger.Debug("queue position acquired", "resource", resource, "position", currentPosition)
			continue
		}

		if ctx.Err() != nil {
			if held != nil {
				// The caller's context is gone; release with a fresh one.
				f.locker.Unlock(context.Background(), held)
			}
			return nil, ctx.Err()
		}

		retries++
		select {
		case <-ctx.Done():
			if held != nil {
				f.locker.Unlock(context.Background(), held)
			}
			return nil, ctx.Err()
		case <-time.After(f.cfg.FifoRetryDelay):
		}
	}

	if currentPosition == 0 {
		f.metrics.Timing(MetricFifoWaitTime, time.Since(waitStart), "resource", resource)
		return held, nil
	}

	f.logger.Debug("could not reach queue head",
		"resource", resource,
		"retries", retries,
	)
	if held != nil {
		f.locker.Unlock(ctx, held)
	}
	f.metrics.Increment(MetricFifoAborted, "resource", resource)
	return nil, WithContext(ErrNotAcquired, map[string]interface{}{
		"resource": resource,
		"retries":  retries,
	})
}

// Unlock releases a lock acquired through the queue. Acts on the position-0
// key directly.
func (f *FIFOLocker) Unlock(ctx context.Context, lock *Lock) {
	f.locker.Unlock(ctx, lock)
}

// Extend refreshes the TTL of a held lock. Acts on the position-0 key.
func (f *FIFOLocker) Extend(ctx context.Context, lock *Lock, newTTL time.Duration) bool {
	return f.locker.Extend(ctx, lock, newTTL)
}

// IsValid reports whether the position-0 lock is still held on a quorum
func (f *FIFOLocker) IsValid(ctx context.Context, lock *Lock) bool {
	return f.locker.IsValid(ctx, lock)
}

// StartAutoExtend launches a background renewer for a held lock
func (f *FIFOLocker) StartAutoExtend(lock *Lock, every, newTTL time.Duration) error {
	return f.locker.StartAutoExtend(lock, every, newTTL)
}

// StopAutoExtend stops the background renewer for a held lock
func (f *FIFOLocker) StopAutoExtend(lock *Lock) error {
	return f.locker.StopAutoExtend(lock)
}

// AutoExtend runs fn with a background renewer keeping the lock alive
func (f *FIFOLocker) AutoExtend(lock *Lock, every, newTTL time.Duration, fn func() error) error {
	return f.locker.AutoExtend(lock, every, newTTL, fn)
}

// Locker returns the underlying quorum locker
func (f *FIFOLocker) Locker() *Locker {
	return f.locker
}
