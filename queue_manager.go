package fairlock

import (
	"context"
	"time"
)

// SlotInfo describes one positional slot of a FIFO queue as seen across the
// instance set.
type SlotInfo struct {
	Position     int           // Queue position, 0 is the head
	Key          string        // Physical key for the slot
	Holder       string        // Token seen on the most instances
	HeldByQuorum bool          // Whether that token is held on a majority
	TTL          time.Duration // Smallest remaining TTL among holding instances
}

// QueueManager provides administrative visibility into FIFO queues: which
// slots are occupied, by whom, and for how long. Useful for operating stuck
// queues where a waiter died without its slot expiring yet.
type QueueManager struct {
	instances   []Instance
	quorum      int
	queueLength int
	logger      Logger
	metrics     Metrics
}

// NewQueueManager creates a queue manager for administrative operations.
// queueLength must match the FifoConfig of the clients using the queue.
func NewQueueManager(instances []Instance, queueLength int, logger Logger, metrics Metrics) (*QueueManager, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	if queueLength < 1 {
		return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "queueLength",
			"value":  queueLength,
			"reason": "must be at least 1",
		})
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	return &QueueManager{
		instances:   instances,
		quorum:      len(instances)/2 + 1,
		queueLength: queueLength,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// ListSlots returns the occupied slots of the queue for resource, head first.
// Unreachable instances are skipped; a slot is reported when any instance
// holds it, and HeldByQuorum tells whether its holder reached a majority.
//
// Example:
//
//	slots, err := qm.ListSlots(ctx, "deploys")
//	for _, slot := range slots {
//	    fmt.Printf("position %d held for another %s (quorum=%v)\n",
//	        slot.Position, slot.TTL, slot.HeldByQuorum)
//	}
func (qm *QueueManager) ListSlots(ctx context.Context, resource string) ([]SlotInfo, error) {
	var slots []SlotInfo

	for position := 0; position <= qm.queueLength; position++ {
		key := positionName(resource, position)

		holders := make(map[string]int)
		minTTL := time.Duration(-1)

		for _, instance := range qm.instances {
			value, err := instance.Get(ctx, key)
			if err != nil {
				qm.logger.Warn("failed to read slot", "addr", instance.Addr(), "key", key, "error", err)
				continue
			}
			if value == "" {
				continue
			}
			holders[value]++

			ttl, err := instance.PTTL(ctx, key)
			if err != nil {
				qm.logger.Warn("failed to read slot ttl", "addr", instance.Addr(), "key", key, "error", err)
				continue
			}
			if ttl > 0 && (minTTL < 0 || ttl < minTTL) {
				minTTL = ttl
			}
		}

		if len(holders) == 0 {
			continue
		}

		holder, count := "", 0
		for value, n := range holders {
			if n > count {
				holder, count = value, n
			}
		}

		slots = append(slots, SlotInfo{
			Position:     position,
			Key:          key,
			Holder:       holder,
			HeldByQuorum: count >= qm.quorum,
			TTL:          minTTL,
		})
	}

	qm.metrics.Gauge(MetricQueueDepth, float64(len(slots)), "resource", resource)
	return slots, nil
}

// ForceRelease removes the slot at position on every instance and returns
// how many instances dropped it.
//
// Only use when the slot holder is known to have crashed: releasing a live
// waiter's slot lets its successor jump the queue.
func (qm *QueueManager) ForceRelease(ctx context.Context, resource string, position int) (int, error) {
	key := positionName(resource, position)

	removed := 0
	for _, instance := range qm.instances {
		n, err := instance.Del(ctx, key)
		if err != nil {
			qm.logger.Warn("failed to delete slot", "addr", instance.Addr(), "key", key, "error", err)
			continue
		}
		removed += int(n)
	}

	if removed > 0 {
		qm.logger.Info("forcefully released slot", "resource", resource, "position", position, "instances", removed)
	}
	return removed, nil
}
