package depman

import (
	"context"
	"sync"

	"github.com/junioryono/depman/internal/pool"
)

// partition is one object pool plus the lock that guards it.
type partition struct {
	mu        sync.Locker
	pool      *pool.Pool
	closed    bool
	closedErr error
}

func newPartition(mu sync.Locker, release pool.ReleaseFunc, closedErr error) *partition {
	return &partition{
		mu:        mu,
		pool:      pool.New(release),
		closedErr: closedErr,
	}
}

// noLock is the locker of SingleThread pools. The caller guarantees that
// no two goroutines use the pool at the same time.
type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// resolvePolicy substitutes the configured default for DefaultPolicy.
func (r *Registry) resolvePolicy(policy ThreadingPolicy) ThreadingPolicy {
	if policy == DefaultPolicy {
		return r.DefaultThreadingPolicy()
	}
	return policy
}

// route selects the partition serving policy for the caller identified by
// ctx. ThreadLocal uses the thread attached to ctx, or the root thread if
// ctx carries none from this registry.
func (r *Registry) route(ctx context.Context, policy ThreadingPolicy) (*partition, ThreadingPolicy, error) {
	if r.closed.Load() {
		return nil, policy, ErrRegistryClosed
	}

	resolved := r.resolvePolicy(policy)
	switch resolved {
	case ApplicationGlobal:
		return r.global, resolved, nil
	case SingleThread:
		return r.single, resolved, nil
	case ThreadLocal:
		return r.threadFor(ctx).part, resolved, nil
	default:
		return nil, resolved, PolicyError{Value: int(policy)}
	}
}

// threadFor returns the thread of this registry attached to ctx.
func (r *Registry) threadFor(ctx context.Context) *Thread {
	if ctx != nil {
		if t, ok := ctx.Value(threadContextKey{}).(*Thread); ok && t != nil && t.registry == r {
			return t
		}
	}
	return r.root
}
