package fairlock

import "time"

// Configuration constants for fairlock operations
const (
	// Quorum lock retry configuration
	DefaultRetryCount = 3
	DefaultRetryDelay = 200 * time.Millisecond

	// Drift accounting. Validity is computed as ttl - elapsed - drift where
	// drift = ttl*DriftFactor + 2ms. The constant covers the store's 1ms
	// expiry precision plus 1ms minimum drift for small TTLs.
	DefaultDriftFactor = 0.01
	driftConstant      = 2 * time.Millisecond

	// FIFO queue configuration
	DefaultFifoRetryCount   = 30
	DefaultFifoRetryDelay   = 200 * time.Millisecond
	DefaultFifoQueueLength  = 64
	DefaultFifoEphemeralTTL = 5 * time.Second

	// Instance circuit breaker configuration
	DefaultBreakerMaxFailures  = 5
	DefaultBreakerResetTimeout = 30 * time.Second
)

// Config holds tuning knobs for a Locker.
// The zero value is usable; zero fields fall back to package defaults.
type Config struct {
	// RetryCount is the number of acquisition rounds before giving up.
	RetryCount int

	// RetryDelay is the pause between acquisition rounds.
	RetryDelay time.Duration

	// DriftFactor is the clock drift factor subtracted from validity,
	// proportional to the requested TTL.
	DriftFactor float64
}

// DefaultConfig returns the default quorum lock configuration
func DefaultConfig() Config {
	return Config{
		RetryCount:  DefaultRetryCount,
		RetryDelay:  DefaultRetryDelay,
		DriftFactor: DefaultDriftFactor,
	}
}

// withDefaults fills zero fields with package defaults
func (c Config) withDefaults() Config {
	if c.RetryCount == 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.DriftFactor == 0 {
		c.DriftFactor = DefaultDriftFactor
	}
	return c
}

// Validate checks if the Config is valid
func (c Config) Validate() error {
	if c.RetryCount < 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "RetryCount",
			"value":  c.RetryCount,
			"reason": "must be non-negative",
		})
	}
	if c.RetryDelay < 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "RetryDelay",
			"value":  c.RetryDelay,
			"reason": "must be non-negative",
		})
	}
	if c.DriftFactor < 0 || c.DriftFactor >= 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "DriftFactor",
			"value":  c.DriftFactor,
			"reason": "must be in [0, 1)",
		})
	}
	return nil
}

// FifoConfig holds tuning knobs for a FIFOLocker on top of Config.
// The zero value is usable; zero fields fall back to package defaults.
type FifoConfig struct {
	Config

	// FifoRetryCount is the number of stalled attempts tolerated before the
	// acquisition aborts. Attempts that advance the queue position reset
	// the budget.
	FifoRetryCount int

	// FifoRetryDelay is the pause after a stalled attempt.
	FifoRetryDelay time.Duration

	// QueueLength is the tail position new waiters join at. All clients of
	// the same resource must agree on it for the chain to line up.
	QueueLength int

	// EphemeralTTL is the short TTL on non-head positional slots, so that
	// dead waiters drop out of the queue quickly.
	EphemeralTTL time.Duration
}

// DefaultFifoConfig returns the default FIFO queue configuration
func DefaultFifoConfig() FifoConfig {
	return FifoConfig{
		Config:         DefaultConfig(),
		FifoRetryCount: DefaultFifoRetryCount,
		FifoRetryDelay: DefaultFifoRetryDelay,
		QueueLength:    DefaultFifoQueueLength,
		EphemeralTTL:   DefaultFifoEphemeralTTL,
	}
}

func (c FifoConfig) withDefaults() FifoConfig {
	c.Config = c.Config.withDefaults()
	if c.FifoRetryCount == 0 {
		c.FifoRetryCount = DefaultFifoRetryCount
	}
	if c.FifoRetryDelay == 0 {
		c.FifoRetryDelay = DefaultFifoRetryDelay
	}
	if c.QueueLength == 0 {
		c.QueueLength = DefaultFifoQueueLength
	}
	if c.EphemeralTTL == 0 {
		c.EphemeralTTL = DefaultFifoEphemeralTTL
	}
	return c
}

// Validate checks if the FifoConfig is valid
func (c FifoConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.FifoRetryCount < 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "FifoRetryCount",
			"value":  c.FifoRetryCount,
			"reason": "must be non-negative",
		})
	}
	if c.FifoRetryDelay < 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "FifoRetryDelay",
			"value":  c.FifoRetryDelay,
			"reason": "must be non-negative",
		})
	}
	if c.QueueLength < 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "QueueLength",
			"value":  c.QueueLength,
			"reason": "must be at least 1",
		})
	}
	if c.EphemeralTTL <= 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "EphemeralTTL",
			"value":  c.EphemeralTTL,
			"reason": "must be positive",
		})
	}
	return nil
}
