package fairlock

import (
	"context"
	"time"
)

// lockIdentity keys the auto-extend registry. Two Lock values naming the same
// resource with the same token are the same lock.
type lockIdentity struct {
	resource string
	key      string
}

// autoExtender is a cooperatively stoppable background renewer for one lock
type autoExtender struct {
	stop chan struct{}
	done chan struct{}
}

// StartAutoExtend launches a background renewer that repeatedly extends the
// lock to newTTL, then sleeps for every. The first renewal fires immediately.
// Renewal is best-effort: a failed extension is not retried early and is not
// surfaced, the lock simply expires and the caller observes it via IsValid.
//
// There is no guarantee renewal outpaces expiry. Choose every well under
// newTTL (half or less) to leave room for slow instances and drift.
//
// Returns ErrAutoExtendRunning when a renewer is already registered for this
// lock. Concurrent StartAutoExtend/StopAutoExtend on the same lock must be
// serialized by the caller; operations on different locks are safe.
func (l *Locker) StartAutoExtend(lock *Lock, every, newTTL time.Duration) error {
	id := lockIdentity{resource: lock.Resource, key: lock.Key}

	l.autoMu.Lock()
	if _, running := l.auto[id]; running {
		l.autoMu.Unlock()
		return WithContext(ErrAutoExtendRunning, map[string]interface{}{
			"resource": lock.Resource,
		})
	}
	extender := &autoExtender{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	l.auto[id] = extender
	l.autoMu.Unlock()

	go l.autoExtendLoop(lock, every, newTTL, extender)
	return nil
}

// autoExtendLoop extends, then sleeps, until stopped. An in-flight extension
// completes naturally after stop is signaled.
func (l *Locker) autoExtendLoop(lock *Lock, every, newTTL time.Duration, extender *autoExtender) {
	defer close(extender.done)

	for {
		l.Extend(context.Background(), lock, newTTL)
		l.metrics.Increment(MetricAutoExtendTick, "resource", lock.Resource)

		select {
		case <-extender.stop:
			return
		case <-time.After(every):
		}
	}
}

// StopAutoExtend signals the renewer for this lock to stop and waits for it
// to exit. After it returns the lock is no longer renewed and may expire
// naturally. Returns ErrAutoExtendNotRunning when no renewer is registered.
func (l *Locker) StopAutoExtend(lock *Lock) error {
	id := lockIdentity{resource: lock.Resource, key: lock.Key}

	l.autoMu.Lock()
	extender, running := l.auto[id]
	if !running {
		l.autoMu.Unlock()
		return WithContext(ErrAutoExtendNotRunning, map[string]interface{}{
			"resource": lock.Resource,
		})
	}
	delete(l.auto, id)
	l.autoMu.Unlock()

	close(extender.stop)
	<-extender.done
	return nil
}

// AutoExtend runs fn with a background renewer keeping the lock alive, and
// stops the renewer on every exit path, including a panic in fn.
//
// Example:
//
//	lock, err := locker.Lock(ctx, "reports", 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer locker.Unlock(ctx, lock)
//
//	err = locker.AutoExtend(lock, 2*time.Second, 5*time.Second, func() error {
//	    return generateReports(ctx)
//	})
func (l *Locker) AutoExtend(lock *Lock, every, newTTL time.Duration, fn func() error) error {
	if err := l.StartAutoExtend(lock, every, newTTL); err != nil {
		return err
	}
	defer l.StopAutoExtend(lock) //nolint:errcheck // registered above, cannot be missing

	return fn()
}
