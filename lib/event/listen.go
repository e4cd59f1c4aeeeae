package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/photovoltex/interop/lib/bridge"
	"github.com/photovoltex/interop/lib/codec"
)

// Source is the remote side of a bridge as seen by listeners.
// *remote.Client implements it.
type Source interface {
	bridge.Subscriber
	Codec() codec.Codec
	Logger() *slog.Logger
}

// ErrNotDetachable means the bridge accepted a registration but returned
// nothing to cancel it with.
var ErrNotDetachable = errors.New("registration returned no detach function")

// ListenError is a failed subscription registration.
type ListenError struct {
	Event string
	Err   error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("listen %s: %v", e.Event, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}

// IsNotDetachable reports whether err is a registration without a detach
// function.
func IsNotDetachable(err error) bool {
	return errors.Is(err, ErrNotDetachable)
}

// Handle keeps a subscription alive until Close.
type Handle struct {
	event  string
	detach bridge.Detach
	once   sync.Once
	active atomic.Bool
}

// Event returns the subscribed event name.
func (h *Handle) Event() string {
	return h.event
}

// Active reports whether callbacks may still fire.
func (h *Handle) Active() bool {
	return h.active.Load()
}

// Close detaches the subscription. It is safe to call more than once and
// from inside the callback. No callback starts after Close returns.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.active.Store(false)
		h.detach()
	})
}

// Listen subscribes cb to every value published for f. A payload that fails
// to decode is logged and cb receives the zero value.
func Listen[P, T any](ctx context.Context, src Source, f Field[P, T], cb func(T)) (*Handle, error) {
	return listen(ctx, src, f.EventName(), func(v T, _ int64) { cb(v) })
}

func listen[T any](ctx context.Context, src Source, event string, cb func(v T, seq int64)) (*Handle, error) {
	h := &Handle{event: event}
	h.active.Store(true)

	detach, err := src.Listen(ctx, event, func(raw []byte) {
		if !h.active.Load() {
			return
		}
		var env Envelope[T]
		if err := src.Codec().Unmarshal(raw, &env); err != nil {
			src.Logger().Error("event payload decode failed, using zero value",
				"event", event, "error", err)
			var zero T
			cb(zero, 0)
			return
		}
		cb(env.Payload, env.Seq)
	})
	if err != nil {
		return nil, &ListenError{Event: event, Err: err}
	}
	if detach == nil {
		return nil, &ListenError{Event: event, Err: ErrNotDetachable}
	}
	h.detach = detach
	return h, nil
}
