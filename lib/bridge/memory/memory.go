// Package memory is an in-process bridge joining one host and one remote
// peer. It is used by tests and by applications embedding both sides in one
// binary.
//
// Every subscription owns a queue and a goroutine, so callbacks of one
// subscription run one at a time in emit order and never block Emit.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/photovoltex/interop/lib/bridge"
)

// ErrNoHost is returned by Invoke before Serve attached a host.
var ErrNoHost = errors.New("memory bridge: no host attached")

// Bridge implements bridge.Remote for the remote side and bridge.Emitter for
// the host side.
type Bridge struct {
	mu     sync.RWMutex
	host   bridge.Invoker
	subs   map[string]map[uint64]*subscription
	nextID uint64
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

type subscription struct {
	event string
	fn    func([]byte)
	q     *queue
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// New returns a bridge with no host attached.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		subs:   make(map[string]map[uint64]*subscription),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Serve attaches the host's dispatcher.
func (b *Bridge) Serve(host bridge.Invoker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.host = host
}

// Invoke forwards a command to the attached host.
func (b *Bridge) Invoke(ctx context.Context, command string, args []byte) ([]byte, error) {
	b.mu.RLock()
	host, closed := b.host, b.closed
	b.mu.RUnlock()

	if closed {
		return nil, bridge.ErrClosed
	}
	if host == nil {
		return nil, ErrNoHost
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return host.Invoke(ctx, command, args)
}

// Listen registers fn for event. fn is called from the subscription's
// goroutine; after the returned Detach runs no further calls start.
func (b *Bridge) Listen(ctx context.Context, event string, fn func([]byte)) (bridge.Detach, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, bridge.ErrClosed
	}

	b.nextID++
	id := b.nextID
	sub := &subscription{event: event, fn: fn, q: newQueue()}
	if b.subs[event] == nil {
		b.subs[event] = make(map[uint64]*subscription)
	}
	b.subs[event][id] = sub

	b.wg.Add(1)
	go b.drain(sub)

	return func() { b.detach(event, id) }, nil
}

func (b *Bridge) drain(sub *subscription) {
	defer b.wg.Done()
	for {
		for {
			item, ok := sub.q.TryDequeue()
			if !ok {
				break
			}
			if sub.q.Closed() {
				return
			}
			sub.fn(item)
		}
		if _, open := <-sub.q.Wait(); !open {
			return
		}
	}
}

func (b *Bridge) detach(event string, id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[event][id]
	if ok {
		delete(b.subs[event], id)
		if len(b.subs[event]) == 0 {
			delete(b.subs, event)
		}
	}
	b.mu.Unlock()

	if ok {
		sub.q.Close()
	}
}

// Emit queues envelope for every current listener of event. Emitting with no
// listeners is not an error.
func (b *Bridge) Emit(event string, envelope []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return bridge.ErrClosed
	}
	for _, sub := range b.subs[event] {
		sub.q.Enqueue(envelope)
	}
	b.logger.Debug("event emitted", "event", event, "listeners", len(b.subs[event]))
	return nil
}

// Listeners returns the number of subscriptions registered for event.
func (b *Bridge) Listeners(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Close detaches every subscription and waits for their goroutines.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.q.Close()
		}
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
