package depman

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/junioryono/depman/internal/pool"
)

// Thread is a ThreadLocal partition of a Registry. Objects stored with the
// ThreadLocal policy through a context carrying the Thread live in the
// Thread's own pool and are released when the Thread is closed.
//
// In a server a Thread is typically attached per request:
//
//	ctx, thread := registry.Attach(r.Context())
//	defer thread.Close()
//
//	mailer := depman.Get[*Mailer](ctx, registry, "mailer")
type Thread struct {
	id       string
	registry *Registry
	part     *partition
	root     bool
}

func newThread(r *Registry, root bool) *Thread {
	t := &Thread{
		id:       uuid.NewString(),
		registry: r,
		root:     root,
	}
	t.part = newPartition(&sync.Mutex{}, t.release, ErrThreadClosed)
	return t
}

// Attach creates a new Thread and returns a context carrying it. Calls made
// with the returned context resolve ThreadLocal objects in the new Thread.
// Attaching to a closed registry yields a closed Thread.
func (r *Registry) Attach(ctx context.Context) (context.Context, *Thread) {
	if ctx == nil {
		ctx = context.Background()
	}

	t := newThread(r, false)

	r.threadsMu.Lock()
	if r.closed.Load() {
		t.part.closed = true
	} else {
		r.threads[t] = struct{}{}
	}
	r.threadsMu.Unlock()

	r.logger.Debug().Str("thread", t.id).Msg("thread attached")
	return contextWithThread(ctx, t), t
}

// ID returns the unique ID of this thread.
func (t *Thread) ID() string {
	return t.id
}

// Registry returns the registry the thread belongs to.
func (t *Thread) Registry() *Registry {
	return t.registry
}

// IsRoot reports whether t is the registry's root thread, used by callers
// whose context carries no thread.
func (t *Thread) IsRoot() bool {
	return t.root
}

// IsClosed reports whether the thread has ended.
func (t *Thread) IsClosed() bool {
	t.part.mu.Lock()
	defer t.part.mu.Unlock()
	return t.part.closed
}

// Len returns the number of objects held by the thread.
func (t *Thread) Len() int {
	t.part.mu.Lock()
	defer t.part.mu.Unlock()
	return t.part.pool.Len()
}

// Close ends the thread. Objects stored in it are released, except
// persistent ones which move to the registry's teardown list. Closing the
// root thread is only possible by closing the registry. Close is idempotent.
func (t *Thread) Close() error {
	if t.root {
		return nil
	}
	return t.close()
}

func (t *Thread) close() error {
	t.part.mu.Lock()
	if t.part.closed {
		t.part.mu.Unlock()
		return nil
	}
	t.part.closed = true
	kept, err := t.part.pool.Drain(func(e pool.Entry) bool { return e.Persistent })
	t.part.mu.Unlock()

	r := t.registry
	r.threadsMu.Lock()
	delete(r.threads, t)
	var lateErr error
	if r.closed.Load() && !t.root {
		// The registry's teardown list may already be gone.
		lateErr = pool.ReleaseAll(kept, r.releaseEntry)
	} else {
		r.teardown.track(kept...)
	}
	r.threadsMu.Unlock()

	r.logger.Debug().
		Str("thread", t.id).
		Int("persistent", len(kept)).
		Msg("thread closed")

	if err == nil && lateErr == nil {
		return nil
	}

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	if lateErr != nil {
		errs = append(errs, lateErr)
	}
	return DisposalError{Context: "thread", Errors: errs}
}

func (t *Thread) release(e pool.Entry) error {
	return t.registry.releaseEntry(e)
}

// threadContextKey is the key for storing the current thread in context.
type threadContextKey struct{}

// contextWithThread returns a context with the current thread.
func contextWithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadContextKey{}, t)
}

// ThreadFromContext gets the thread attached to ctx.
func ThreadFromContext(ctx context.Context) (*Thread, error) {
	if ctx == nil {
		return nil, ErrThreadNotInContext
	}

	t, ok := ctx.Value(threadContextKey{}).(*Thread)
	if !ok || t == nil {
		return nil, ErrThreadNotInContext
	}

	if t.IsClosed() {
		return nil, ErrThreadClosed
	}

	return t, nil
}
