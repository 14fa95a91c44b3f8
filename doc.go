// Package fairlock provides fair (FIFO-ordered), fault-tolerant, extendable
// distributed locking over a set of independent Redis replicas.
//
// # Overview
//
// fairlock builds on the quorum-based distributed locking algorithm: a lock
// is held when a majority of replicas accept it within the validity window.
// On top of the classic acquire/release primitive it adds:
//
//   - Extension: the holder of a valid lock can atomically prolong its TTL,
//     guarded by a compare-and-swap script so a stale holder cannot refresh
//     a lock re-acquired by someone else
//   - Auto-extension: a background renewer with start/stop lifecycle and a
//     scoped helper that guarantees cleanup
//   - FIFO queuing: concurrent requesters for the same resource are served
//     in arrival order via a chain of positional sub-locks, instead of
//     winning by chance on retry
//   - Full observability (Prometheus metrics + structured logging)
//
// # Quick Start
//
// Quorum locking over three replicas:
//
//	locker, err := fairlock.NewLocker([]fairlock.InstanceConfig{
//	    {Addr: "redis-1:6379"},
//	    {Addr: "redis-2:6379"},
//	    {Addr: "redis-3:6379"},
//	}, fairlock.DefaultConfig(), nil, nil)
//	if err != nil {
//	    panic(err)
//	}
//
//	ctx := context.Background()
//	lock, err := locker.Lock(ctx, "deploys", 10*time.Second)
//	if err != nil {
//	    return err // fairlock.ErrNotAcquired when the quorum was not reached
//	}
//	defer locker.Unlock(ctx, lock)
//
// FIFO-fair locking with observability:
//
//	logger, _ := fairlock.NewProductionZapLogger()
//	metrics := fairlock.NewPrometheusMetrics(nil)
//
//	fifo, err := fairlock.NewFIFOLocker(configs, fairlock.DefaultFifoConfig(), logger, metrics)
//	lock, err := fifo.Lock(ctx, "deploys", 30*time.Second)
//
// Keeping a long critical section alive:
//
//	err = locker.AutoExtend(lock, 2*time.Second, 10*time.Second, func() error {
//	    return runMigration(ctx)
//	})
//
// # Core Concepts
//
// Instance: one independent Redis replica. Replica failures are independent;
// per-instance communication errors never abort an operation, the instance
// just counts as a non-success toward the quorum.
//
// Lock: the immutable value returned by a successful acquisition. Carries
// the resource name, a random ownership token, and the estimated validity
// remaining at acquisition time (TTL minus acquisition time minus a clock
// drift budget).
//
// FIFO queue: waiters hold positional sub-locks named resource__N and walk
// toward position 0, which is the lock on the resource itself. Waiting slots
// carry a short ephemeral TTL and are kept alive by their waiter, so dead
// waiters drop out quickly and never starve their successors.
package fairlock
