package fairlock

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Instance is a single key-value store replica participating in the quorum.
// Implementations must report communication failures as errors; the lockers
// swallow them and count the instance as a non-success.
type Instance interface {
	// SetNX atomically creates key with the given TTL, only if absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value at key, or "" if the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Del removes key and reports how many keys were removed.
	Del(ctx context.Context, key string) (int64, error)

	// PExpire sets the TTL on an existing key.
	PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// PTTL returns the remaining TTL on key. Negative when the key does not
	// exist or has no expiry.
	PTTL(ctx context.Context, key string) (time.Duration, error)

	// Eval runs a server-side atomic script and returns its result.
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)

	// Addr identifies the replica, for logging.
	Addr() string
}

// InstanceConfig is the connection descriptor for one Redis replica.
type InstanceConfig struct {
	Addr     string
	Password string
	DB       int

	// DialTimeout bounds connection establishment. Keep it short: a dead
	// replica is dialed once per quorum round.
	DialTimeout time.Duration

	// TLSEnabled forces TLS. TLS is also auto-enabled for managed Redis
	// deployments on port 25061.
	TLSEnabled bool
}

// Validate checks if the InstanceConfig is valid
func (c InstanceConfig) Validate() error {
	if c.Addr == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Addr",
			"reason": "must not be empty",
		})
	}
	if c.DB < 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "DB",
			"value":  c.DB,
			"reason": "must be non-negative",
		})
	}
	return nil
}

// options converts the descriptor into go-redis client options
func (c InstanceConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}

	if c.TLSEnabled || strings.HasSuffix(c.Addr, ":25061") {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: extractHostname(c.Addr),
		}
	}

	return opts
}

// extractHostname returns the host portion of an addr for TLS server name
func extractHostname(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// RedisInstance is the production Instance implementation over go-redis.
// Every call is guarded by a circuit breaker so that a dead replica fails
// fast instead of stalling each quorum round on dial timeouts.
type RedisInstance struct {
	client  *redis.Client
	addr    string
	breaker *CircuitBreaker
}

// NewRedisInstance creates an Instance from a connection descriptor
func NewRedisInstance(cfg InstanceConfig) (*RedisInstance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &RedisInstance{
		client:  redis.NewClient(cfg.options()),
		addr:    cfg.Addr,
		breaker: NewCircuitBreaker(DefaultBreakerMaxFailures, DefaultBreakerResetTimeout),
	}, nil
}

// NewRedisInstanceFromClient wraps an existing go-redis client
func NewRedisInstanceFromClient(client *redis.Client) *RedisInstance {
	return &RedisInstance{
		client:  client,
		addr:    client.Options().Addr,
		breaker: NewCircuitBreaker(DefaultBreakerMaxFailures, DefaultBreakerResetTimeout),
	}
}

// NewInstances builds the instance set from connection descriptors.
// A malformed descriptor fails the whole construction.
func NewInstances(cfgs []InstanceConfig) ([]Instance, error) {
	if len(cfgs) == 0 {
		return nil, ErrNoInstances
	}

	instances := make([]Instance, 0, len(cfgs))
	for i, cfg := range cfgs {
		inst, err := NewRedisInstance(cfg)
		if err != nil {
			return nil, WithContext(err, map[string]interface{}{
				"descriptor": i,
			})
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (r *RedisInstance) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var ok bool
	err := r.breaker.Execute(ctx, func() error {
		var err error
		ok, err = r.client.SetNX(ctx, key, value, ttl).Result()
		return err
	})
	return ok, err
}

func (r *RedisInstance) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.breaker.Execute(ctx, func() error {
		v, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		value = v
		return err
	})
	return value, err
}

func (r *RedisInstance) Del(ctx context.Context, key string) (int64, error) {
	var n int64
	err := r.breaker.Execute(ctx, func() error {
		var err error
		n, err = r.client.Del(ctx, key).Result()
		return err
	})
	return n, err
}

func (r *RedisInstance) PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool
	err := r.breaker.Execute(ctx, func() error {
		var err error
		ok, err = r.client.PExpire(ctx, key, ttl).Result()
		return err
	})
	return ok, err
}

func (r *RedisInstance) PTTL(ctx context.Context, key string) (time.Duration, error) {
	var ttl time.Duration
	err := r.breaker.Execute(ctx, func() error {
		var err error
		ttl, err = r.client.PTTL(ctx, key).Result()
		return err
	})
	return ttl, err
}

func (r *RedisInstance) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	var result interface{}
	err := r.breaker.Execute(ctx, func() error {
		v, err := r.client.Eval(ctx, script, keys, args...).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		result = v
		return err
	})
	return result, err
}

func (r *RedisInstance) Addr() string {
	return r.addr
}

// Close releases the underlying client connection pool
func (r *RedisInstance) Close() error {
	return r.client.Close()
}
