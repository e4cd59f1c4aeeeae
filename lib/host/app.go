// Package host is the serving side of generated commands: a dispatch table
// keyed by command name, the App handle handlers receive, and the storage
// strategies for host-managed aggregates.
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/photovoltex/interop/lib/bridge"
	"github.com/photovoltex/interop/lib/codec"
	"github.com/photovoltex/interop/lib/event"
)

// ErrNoEmitter is returned by EmitEvent on an App built without an emitter.
var ErrNoEmitter = errors.New("app has no event emitter")

// App is the host application handle. It publishes events and holds managed
// state for injection into handlers.
type App struct {
	emitter bridge.Emitter
	codec   codec.Codec
	clock   *Clock
	logger  *slog.Logger

	mu         sync.RWMutex
	managed    map[reflect.Type]any
	strategies map[reflect.Type]any
}

// Option configures an App.
type Option func(*App)

// WithCodec sets the codec for replies and events. Defaults to codec.JSON.
func WithCodec(c codec.Codec) Option {
	return func(a *App) {
		a.codec = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithClock sets the event sequence clock.
func WithClock(c *Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// NewApp returns an App publishing through em.
func NewApp(em bridge.Emitter, opts ...Option) *App {
	a := &App{
		emitter:    em,
		codec:      codec.JSON,
		clock:      NewClock(),
		logger:     slog.Default(),
		managed:    make(map[reflect.Type]any),
		strategies: make(map[reflect.Type]any),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Codec returns the App's codec.
func (a *App) Codec() codec.Codec {
	return a.codec
}

// Logger returns the App's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Seq returns the sequence of the last emitted event.
func (a *App) Seq() int64 {
	return a.clock.Current()
}

// EmitEvent wraps payload in a sequence-stamped envelope and publishes it.
func (a *App) EmitEvent(name string, payload any) error {
	if a.emitter == nil {
		return ErrNoEmitter
	}
	data, err := a.codec.Marshal(event.Envelope[any]{
		Payload: payload,
		Event:   name,
		Seq:     a.clock.Next(),
	})
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", name, err)
	}
	return a.emitter.Emit(name, data)
}

// Manage attaches state for injection. v is a *P for the direct strategy,
// or an *Optional[P], *Locked[P] or *RWLocked[P]. Managing a second value of
// the same type replaces the first.
func (a *App) Manage(v any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.managed[reflect.TypeOf(v)] = v
}

// Managed returns the managed value of type S.
func Managed[S any](a *App) (S, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.managed[reflect.TypeFor[S]()]
	if !ok {
		var zero S
		return zero, false
	}
	s, ok := v.(S)
	return s, ok
}

// StateError is a handler asking for state the App does not hold.
type StateError struct {
	Type  string
	Unset bool
}

func (e *StateError) Error() string {
	if e.Unset {
		return "state not set: " + e.Type
	}
	return "state not registered: " + e.Type
}

// IsStateError reports whether err is a missing-state error.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

func stateError[P any](unset bool) error {
	return &StateError{Type: reflect.TypeFor[P]().String(), Unset: unset}
}
