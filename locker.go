package fairlock

import (
	"context"
	"sync"
	"time"
)

// Server-side scripts. The script text is part of the external protocol:
// different clients must run byte-identical scripts for the store-side
// script cache to line up.

// unlockScript deletes the lock key only if it still holds our token
const unlockScript = `if redis.call("get",KEYS[1]) == ARGV[1] then
    return redis.call("del",KEYS[1])
else
    return 0
end`

// extendScript refreshes the TTL only if the key still holds our token, so a
// stale extender cannot refresh a lock re-acquired by another client
const extendScript = `if redis.call("get",KEYS[1]) == ARGV[1] then
    return redis.call("pexpire",KEYS[1],ARGV[2])
else
    return 0
end`

// Locker is a quorum-based distributed lock over a set of independent Redis
// replicas, with CAS-guarded extension and validity re-checks on top of the
// classic acquire/release algorithm.
//
// Acquisition succeeds when a majority of instances accept the lock within
// the validity window (requested TTL minus acquisition time minus a clock
// drift budget). Per-instance communication errors never abort an operation;
// the instance simply counts as a non-success.
type Locker struct {
	instances []Instance
	quorum    int
	cfg       Config
	logger    Logger
	metrics   Metrics

	autoMu sync.Mutex
	auto   map[lockIdentity]*autoExtender
}

// NewLocker creates a Locker from connection descriptors.
// Pass nil for logger or metrics to disable them.
func NewLocker(cfgs []InstanceConfig, cfg Config, logger Logger, metrics Metrics) (*Locker, error) {
	instances, err := NewInstances(cfgs)
	if err != nil {
		return nil, err
	}
	return NewLockerWithInstances(instances, cfg, logger, metrics)
}

// NewLockerWithInstances creates a Locker over pre-built instances.
// Useful for custom Instance implementations and tests.
func NewLockerWithInstances(instances []Instance, cfg Config, logger Logger, metrics Metrics) (*Locker, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	return &Locker{
		instances: instances,
		quorum:    len(instances)/2 + 1,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		metrics:   metrics,
		auto:      make(map[lockIdentity]*autoExtender),
	}, nil
}

// Quorum returns the majority threshold for the configured instance set
func (l *Locker) Quorum() int {
	return l.quorum
}

// drift is the clock skew budget subtracted from validity, proportional to
// the TTL plus a constant covering the store's expiry precision
func (l *Locker) drift(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl)*l.cfg.DriftFactor) + driftConstant
}

// Lock acquires a quorum lock on resource for the given TTL.
// Returns ErrNotAcquired when no retry round reached a majority within the
// validity window. Partial acquisitions are rolled back best-effort before
// each retry and before giving up.
func (l *Locker) Lock(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	key, err := mintKey()
	if err != nil {
		return nil, err
	}

	l.logger.Debug("locking resource", "resource", resource, "ttl", ttl)
	acquireStart := time.Now()

	for retry := 0; retry < l.cfg.RetryCount; retry++ {
		start := time.Now()
		n := 0
		for _, instance := range l.instances {
			if l.lockInstance(ctx, instance, resource, key, ttl) {
				n++
			}
		}
		elapsed := time.Since(start)
		validity := ttl - elapsed - l.drift(ttl)

		if n >= l.quorum && validity > 0 {
			l.metrics.Increment(MetricAcquireSuccess, "resource", resource)
			l.metrics.Timing(MetricAcquireDuration, time.Since(acquireStart), "resource", resource)
			return &Lock{
				Resource: resource,
				Key:      key,
				Validity: validity,
			}, nil
		}

		// No majority, or the acquisition ate the whole validity window.
		// Release whatever was taken so other clients are not blocked by
		// a partial acquisition.
		for _, instance := range l.instances {
			l.unlockInstance(ctx, instance, resource, key)
		}
		l.metrics.Increment(MetricRollback, "resource", resource)

		if retry < l.cfg.RetryCount-1 {
			l.metrics.Increment(MetricAcquireRetries, "resource", resource)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.cfg.RetryDelay):
			}
		}
	}

	l.metrics.Increment(MetricAcquireFailed, "resource", resource)
	l.logger.Debug("could not acquire resource", "resource", resource, "retries", l.cfg.RetryCount)
	return nil, WithContext(ErrNotAcquired, map[string]interface{}{
		"resource": resource,
		"retries":  l.cfg.RetryCount,
	})
}

// Unlock releases the lock on every instance, best-effort. Instances that
// no longer hold this lock's token are left untouched, so releasing a stale
// lock never removes another client's acquisition.
func (l *Locker) Unlock(ctx context.Context, lock *Lock) {
	for _, instance := range l.instances {
		l.unlockInstance(ctx, instance, lock.Resource, lock.Key)
	}
	l.metrics.Increment(MetricReleaseSuccess, "resource", lock.Resource)
}

// Extend refreshes the lock TTL on every instance via the CAS script and
// reports whether a majority accepted. Extension is monotone: a partial
// extension is not rolled back.
func (l *Locker) Extend(ctx context.Context, lock *Lock, newTTL time.Duration) bool {
	n := 0
	for _, instance := range l.instances {
		if l.extendInstance(ctx, instance, lock.Resource, lock.Key, newTTL) {
			n++
		}
	}

	if n >= l.quorum {
		l.metrics.Increment(MetricExtendSuccess, "resource", lock.Resource)
		return true
	}
	l.metrics.Increment(MetricExtendFailed, "resource", lock.Resource)
	return false
}

// IsValid reports whether a majority of instances still hold this lock's
// token. Read-only.
func (l *Locker) IsValid(ctx context.Context, lock *Lock) bool {
	n := 0
	for _, instance := range l.instances {
		value, err := instance.Get(ctx, lock.Resource)
		if err != nil {
			l.instanceError(instance, "get", err)
			continue
		}
		if value == lock.Key {
			n++
		}
	}
	return n >= l.quorum
}

// lockInstance attempts the conditional create on a single instance
func (l *Locker) lockInstance(ctx context.Context, instance Instance, resource, key string, ttl time.Duration) bool {
	ok, err := instance.SetNX(ctx, resource, key, ttl)
	if err != nil {
		l.instanceError(instance, "setnx", err)
		return false
	}
	return ok
}

// unlockInstance runs the CAS-delete script on a single instance, best-effort
func (l *Locker) unlockInstance(ctx context.Context, instance Instance, resource, key string) bool {
	result, err := instance.Eval(ctx, unlockScript, []string{resource}, key)
	if err != nil {
		l.instanceError(instance, "unlock", err)
		return false
	}
	return scriptSucceeded(result)
}

// extendInstance runs the CAS-pexpire script on a single instance
func (l *Locker) extendInstance(ctx context.Context, instance Instance, resource, key string, newTTL time.Duration) bool {
	result, err := instance.Eval(ctx, extendScript, []string{resource}, key, newTTL.Milliseconds())
	if err != nil {
		l.instanceError(instance, "extend", err)
		return false
	}
	return scriptSucceeded(result)
}

func (l *Locker) instanceError(instance Instance, operation string, err error) {
	l.metrics.Increment(MetricInstanceError, "operation", operation)
	l.logger.Debug("instance error", "addr", instance.Addr(), "operation", operation, "error", err)
}

// scriptSucceeded treats any nonzero integer script result as success.
// DEL returns the delete count, PEXPIRE returns 1 when the timeout was set.
func scriptSucceeded(result interface{}) bool {
	switch v := result.(type) {
	case int64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}
