// Package live keeps a consumer's view of a value current. A Refresher
// re-reads the value whenever any of its triggers fires and hands it to the
// consumer only when it changed.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrStarted is returned by Start on a Refresher that was already started.
var ErrStarted = errors.New("refresher already started")

// Trigger opens a subscription that lasts until ctx is done. Each value
// received on the returned channel asks for a refresh.
type Trigger func(ctx context.Context) <-chan struct{}

// Every fires on a fixed interval.
func Every(d time.Duration) Trigger {
	return func(ctx context.Context) <-chan struct{} {
		out := make(chan struct{})
		go func() {
			defer close(out)
			t := time.NewTicker(d)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					select {
					case out <- struct{}{}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out
	}
}

// On fires for every event from subscribe that match accepts. A nil match
// accepts everything.
func On[E any](subscribe func(context.Context) <-chan E, match func(E) bool) Trigger {
	return func(ctx context.Context) <-chan struct{} {
		events := subscribe(ctx)
		out := make(chan struct{})
		go func() {
			defer close(out)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					if match != nil && !match(ev) {
						continue
					}
					select {
					case out <- struct{}{}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out
	}
}

// Refresher delivers the current value once on start and again each time a
// trigger observes a different version.
type Refresher[T any] struct {
	load     func() T
	version  func(T) uint64
	deliver  func(T)
	triggers []Trigger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New[T any](load func() T, version func(T) uint64, deliver func(T), triggers ...Trigger) *Refresher[T] {
	return &Refresher[T]{
		load:     load,
		version:  version,
		deliver:  deliver,
		triggers: triggers,
		done:     make(chan struct{}),
	}
}

// Start subscribes to every trigger and runs until Stop is called or ctx is
// done. It returns after the initial value has been delivered.
func (r *Refresher[T]) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrStarted
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)

	v := r.load()
	last := r.version(v)
	r.deliver(v)

	kick := make(chan struct{}, 1)
	var wg sync.WaitGroup
	for _, trig := range r.triggers {
		ch := trig(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
				select {
				case kick <- struct{}{}:
				default:
				}
			}
		}()
	}

	go func() {
		defer close(r.done)
		defer wg.Wait()
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
				v := r.load()
				if ver := r.version(v); ver != last {
					last = ver
					r.deliver(v)
				}
			}
		}
	}()
	return nil
}

// Stop cancels both subscriptions and waits for the refresh loop to exit.
// It is safe to call more than once, and before Start.
func (r *Refresher[T]) Stop() {
	r.mu.Lock()
	started, cancel := r.started, r.cancel
	r.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-r.done
}

// Done is closed once the refresh loop has exited.
func (r *Refresher[T]) Done() <-chan struct{} { return r.done }
