package host

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/photovoltex/interop/lib/bridge"
)

// Handler serves one command. The returned value is encoded as the reply.
type Handler func(ctx context.Context, call *Call) (any, error)

// Call is one incoming invocation.
type Call struct {
	Command string
	args    []byte
	app     *App
}

// Decode decodes the argument aggregate into v. Empty arguments leave v
// untouched.
func (c *Call) Decode(v any) error {
	if len(c.args) == 0 {
		return nil
	}
	if err := c.app.codec.Unmarshal(c.args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", c.Command, err)
	}
	return nil
}

// App returns the App serving the call.
func (c *Call) App() *App {
	return c.app
}

// Rejection is a handler failure carrying a typed error value. Generated
// fallible commands send Value to the remote as the declared error type.
type Rejection struct {
	Value any
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected: %v", r.Value)
}

// Reject returns a handler error carrying v.
func Reject(v any) error {
	return &Rejection{Value: v}
}

// Fallible adapts a handler error for a command declaring error type E. A
// Rejection holding an E passes through. Other errors become their message
// when E is string and pass through unchanged otherwise.
func Fallible[E any](err error) error {
	if err == nil {
		return nil
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		if _, ok := rej.Value.(E); ok {
			return err
		}
	}
	var zero E
	if _, ok := any(zero).(string); ok {
		return &Rejection{Value: err.Error()}
	}
	return err
}

// Dispatcher is the host's dispatch table. It implements bridge.Invoker.
type Dispatcher struct {
	app      *App
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher returns an empty table serving app.
func NewDispatcher(app *App) *Dispatcher {
	return &Dispatcher{
		app:      app,
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for command. Registering a command twice is a
// programming error and panics.
func (d *Dispatcher) Handle(command string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[command]; exists {
		panic(fmt.Sprintf("host: duplicate handler for command %q", command))
	}
	d.handlers[command] = h
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// App returns the App handlers receive.
func (d *Dispatcher) App() *App {
	return d.app
}

// Invoke runs the handler for command. Unknown commands are rejected with
// the "command X not found" diagnostic; handler errors are rejected with
// their Rejection value or their message.
func (d *Dispatcher) Invoke(ctx context.Context, command string, args []byte) (reply []byte, err error) {
	d.mu.RLock()
	h, ok := d.handlers[command]
	d.mu.RUnlock()

	logger := d.app.logger.With("command", command)
	if !ok {
		logger.Warn("command not found")
		return nil, d.reject(bridge.NotFound(command))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "panic", r)
			reply, err = nil, d.reject(fmt.Sprintf("handler %s panicked: %v", command, r))
		}
	}()

	v, herr := h(ctx, &Call{Command: command, args: args, app: d.app})
	if herr != nil {
		logger.Debug("handler failed", "error", herr)
		var rej *Rejection
		if errors.As(herr, &rej) {
			return nil, d.reject(rej.Value)
		}
		return nil, d.reject(herr.Error())
	}

	data, merr := d.app.codec.Marshal(v)
	if merr != nil {
		logger.Error("reply encode failed", "error", merr)
		return nil, d.reject(fmt.Sprintf("encode %s reply: %v", command, merr))
	}
	return data, nil
}

func (d *Dispatcher) reject(v any) error {
	payload, err := d.app.codec.Marshal(v)
	if err != nil {
		payload, _ = d.app.codec.Marshal(fmt.Sprint(v))
	}
	return bridge.Reject(payload)
}

var _ bridge.Invoker = (*Dispatcher)(nil)
