package fairlock

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fleet is a set of in-process Redis servers for quorum tests. Inactive
// members are servers that were shut down: their addresses refuse
// connections, mimicking unreachable replicas.
type fleet struct {
	instances []Instance
	servers   []*miniredis.Miniredis // active servers only
}

// newFleet starts active live servers and inactive dead ones
func newFleet(t *testing.T, active, inactive int) *fleet {
	t.Helper()

	f := &fleet{}
	for i := 0; i < active; i++ {
		mr := miniredis.RunT(t)
		f.servers = append(f.servers, mr)
		f.instances = append(f.instances, newTestInstance(t, mr.Addr()))
	}
	for i := 0; i < inactive; i++ {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		f.instances = append(f.instances, newTestInstance(t, addr))
	}
	return f
}

func newTestInstance(t *testing.T, addr string) Instance {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return NewRedisInstanceFromClient(client)
}

// fastForward advances time on every active server
func (f *fleet) fastForward(d time.Duration) {
	for _, mr := range f.servers {
		mr.FastForward(d)
	}
}

// flushAll wipes every active server
func (f *fleet) flushAll() {
	for _, mr := range f.servers {
		mr.FlushAll()
	}
}

// holders counts active servers whose value at key equals token
func (f *fleet) holders(key, token string) int {
	n := 0
	for _, mr := range f.servers {
		if v, err := mr.Get(key); err == nil && v == token {
			n++
		}
	}
	return n
}

func newTestLocker(t *testing.T, f *fleet, cfg Config) *Locker {
	t.Helper()

	locker, err := NewLockerWithInstances(f.instances, cfg, nil, nil)
	if err != nil {
		t.Fatalf("failed to build locker: %v", err)
	}
	return locker
}

func newTestFIFOLocker(t *testing.T, f *fleet, cfg FifoConfig) *FIFOLocker {
	t.Helper()

	locker, err := NewFIFOLockerWithInstances(f.instances, cfg, nil, nil)
	if err != nil {
		t.Fatalf("failed to build fifo locker: %v", err)
	}
	return locker
}
