package host

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photovoltex/interop/lib/bridge"
)

type counter struct {
	N int
}

type counterN struct{}

func (counterN) EventName() string     { return "Counter::N" }
func (counterN) Get(p *counter) int    { return p.N }
func (counterN) Set(p *counter, v int) { p.N = v }

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
	bodies [][]byte
}

func (r *recordingEmitter) Emit(event string, envelope []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.bodies = append(r.bodies, envelope)
	return nil
}

func rejectionPayload(t *testing.T, err error) string {
	t.Helper()
	rej, ok := bridge.AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	return string(rej.Payload)
}

func TestDispatcherUnknownCommand(t *testing.T) {
	d := NewDispatcher(NewApp(nil))

	_, err := d.Invoke(context.Background(), "greet", nil)
	assert.Equal(t, `"command greet not found"`, rejectionPayload(t, err))
}

func TestDispatcherEncodesReplies(t *testing.T) {
	d := NewDispatcher(NewApp(nil))
	d.Handle("greet", func(ctx context.Context, call *Call) (any, error) {
		var args struct {
			NameToGreet string `json:"name_to_greet"`
		}
		if err := call.Decode(&args); err != nil {
			return nil, err
		}
		return "Hello, " + args.NameToGreet + "!", nil
	})
	d.Handle("empty_invoke", func(ctx context.Context, call *Call) (any, error) {
		return nil, nil
	})

	reply, err := d.Invoke(context.Background(), "greet", []byte(`{"name_to_greet":"world"}`))
	require.NoError(t, err)
	assert.Equal(t, `"Hello, world!"`, string(reply))

	reply, err = d.Invoke(context.Background(), "empty_invoke", nil)
	require.NoError(t, err)
	assert.Equal(t, `null`, string(reply))

	assert.Equal(t, []string{"empty_invoke", "greet"}, d.Commands())
}

func TestDispatcherBadArgs(t *testing.T) {
	d := NewDispatcher(NewApp(nil))
	d.Handle("greet", func(ctx context.Context, call *Call) (any, error) {
		var args struct {
			Name string `json:"name"`
		}
		return nil, call.Decode(&args)
	})

	_, err := d.Invoke(context.Background(), "greet", []byte(`{"name":1}`))
	assert.Contains(t, rejectionPayload(t, err), "decode greet args")
}

func TestDispatcherHandlerErrors(t *testing.T) {
	d := NewDispatcher(NewApp(nil))
	d.Handle("plain", func(ctx context.Context, call *Call) (any, error) {
		return nil, errors.New("boom")
	})
	d.Handle("typed", func(ctx context.Context, call *Call) (any, error) {
		return nil, Reject(map[string]int{"limit": 3})
	})
	d.Handle("panics", func(ctx context.Context, call *Call) (any, error) {
		panic("oops")
	})

	_, err := d.Invoke(context.Background(), "plain", nil)
	assert.Equal(t, `"boom"`, rejectionPayload(t, err))

	_, err = d.Invoke(context.Background(), "typed", nil)
	assert.JSONEq(t, `{"limit":3}`, rejectionPayload(t, err))

	_, err = d.Invoke(context.Background(), "panics", nil)
	assert.Contains(t, rejectionPayload(t, err), "panicked: oops")
}

func TestDispatcherDuplicatePanics(t *testing.T) {
	d := NewDispatcher(NewApp(nil))
	h := func(ctx context.Context, call *Call) (any, error) { return nil, nil }
	d.Handle("greet", h)
	assert.Panics(t, func() { d.Handle("greet", h) })
}

func TestFallible(t *testing.T) {
	assert.NoError(t, Fallible[string](nil))

	var rej *Rejection
	require.ErrorAs(t, Fallible[string](errors.New("bad input")), &rej)
	assert.Equal(t, "bad input", rej.Value)

	typed := Reject(7)
	assert.Same(t, typed, Fallible[int](typed))

	plain := errors.New("io")
	assert.Same(t, plain, Fallible[int](plain))
}

func TestEmitEventStampsEnvelope(t *testing.T) {
	em := &recordingEmitter{}
	app := NewApp(em, WithClock(NewClockAt(41)))

	require.NoError(t, app.EmitEvent("Counter::N", 5))

	require.Equal(t, []string{"Counter::N"}, em.events)
	var env struct {
		Payload int    `json:"payload"`
		Event   string `json:"event"`
		Seq     int64  `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(em.bodies[0], &env))
	assert.Equal(t, 5, env.Payload)
	assert.Equal(t, "Counter::N", env.Event)
	assert.Equal(t, int64(42), env.Seq)
	assert.Equal(t, int64(42), app.Seq())
}

func TestEmitEventWithoutEmitter(t *testing.T) {
	assert.ErrorIs(t, NewApp(nil).EmitEvent("x", 1), ErrNoEmitter)
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		name     string
		manage   func(a *App)
		strategy Strategy[counter]
	}{
		{"direct", func(a *App) { a.Manage(&counter{N: 1}) }, Directly[counter]},
		{"optional", func(a *App) { a.Manage(NewOptional(&counter{N: 1})) }, Optionally[counter]},
		{"mutex", func(a *App) { a.Manage(NewLocked(counter{N: 1})) }, Mutexed[counter]},
		{"rwlock", func(a *App) { a.Manage(NewRWLocked(counter{N: 1})) }, ReadWrite[counter]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApp(nil)
			_, err := StateOf(app, tt.strategy)
			require.Error(t, err)
			assert.True(t, IsStateError(err))
			assert.Contains(t, err.Error(), "state not registered")

			tt.manage(app)
			state, err := StateOf(app, tt.strategy)
			require.NoError(t, err)

			require.NoError(t, state.Write(func(c *counter) error {
				c.N++
				return nil
			}))
			var got int
			require.NoError(t, state.Read(func(c *counter) error {
				got = c.N
				return nil
			}))
			assert.Equal(t, 2, got)
		})
	}
}

func TestOptionalUnset(t *testing.T) {
	app := NewApp(nil)
	opt := NewOptional[counter](nil)
	app.Manage(opt)

	_, err := StateOf(app, Optionally[counter])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state not set")

	opt.Set(&counter{})
	_, err = StateOf(app, Optionally[counter])
	assert.NoError(t, err)
}

func TestUseStrategyOverride(t *testing.T) {
	app := NewApp(nil)
	app.Manage(NewLocked(counter{N: 9}))

	_, err := StateOf(app, Directly[counter])
	require.Error(t, err)

	UseStrategy(app, Mutexed[counter])
	state, err := StateOf(app, Directly[counter])
	require.NoError(t, err)
	require.NoError(t, state.Read(func(c *counter) error {
		assert.Equal(t, 9, c.N)
		return nil
	}))
}

func TestSnapshotCarriesSequence(t *testing.T) {
	app := NewApp(&recordingEmitter{})
	app.Manage(NewRWLocked(counter{N: 3}))
	require.NoError(t, app.EmitEvent("Counter::N", 3))

	snap, err := Snapshot[counter, int](app, ReadWrite[counter], counterN{})
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Value)
	assert.Equal(t, int64(1), snap.Seq)

	_, err = Snapshot[counter, int](NewApp(nil), ReadWrite[counter], counterN{})
	assert.True(t, IsStateError(err))
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
