package event_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photovoltex/interop/lib/bridge"
	"github.com/photovoltex/interop/lib/bridge/memory"
	"github.com/photovoltex/interop/lib/codec"
	"github.com/photovoltex/interop/lib/event"
	"github.com/photovoltex/interop/lib/host"
	"github.com/photovoltex/interop/lib/remote"
)

type testState struct {
	Foo string `json:"foo"`
	Bar bool   `json:"bar"`
}

type testStateFoo struct{}

func (testStateFoo) EventName() string          { return "TestState::Foo" }
func (testStateFoo) Get(p *testState) string    { return p.Foo }
func (testStateFoo) Set(p *testState, v string) { p.Foo = v }

type testStateBar struct{}

func (testStateBar) EventName() string        { return "TestState::Bar" }
func (testStateBar) Get(p *testState) bool    { return p.Bar }
func (testStateBar) Set(p *testState, v bool) { p.Bar = v }

func (p *testState) EmitAll(em event.Emitter) error {
	if err := event.Emit[testState, string](em, p, testStateFoo{}); err != nil {
		return err
	}
	if err := event.Emit[testState, bool](em, p, testStateBar{}); err != nil {
		return err
	}
	return nil
}

type recordingEmitter struct {
	failOn   string
	events   []string
	payloads []any
}

func (r *recordingEmitter) EmitEvent(name string, payload any) error {
	if name == r.failOn {
		return errors.New("bridge gone")
	}
	r.events = append(r.events, name)
	r.payloads = append(r.payloads, payload)
	return nil
}

func TestUpdateAssignsEvenWhenEmitFails(t *testing.T) {
	state := &testState{Foo: "old"}
	em := &recordingEmitter{failOn: "TestState::Foo"}

	err := event.Update[testState, string](em, state, testStateFoo{}, "new")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "emit TestState::Foo")
	assert.Equal(t, "new", state.Foo)
}

func TestEmitAllDeclarationOrder(t *testing.T) {
	em := &recordingEmitter{}
	require.NoError(t, (&testState{Foo: "x", Bar: true}).EmitAll(em))
	assert.Equal(t, []string{"TestState::Foo", "TestState::Bar"}, em.events)
	assert.Equal(t, []any{"x", true}, em.payloads)
}

func TestEmitAllStopsAtFirstFailure(t *testing.T) {
	em := &recordingEmitter{failOn: "TestState::Foo"}
	require.Error(t, (&testState{}).EmitAll(em))
	assert.Empty(t, em.events, "fields after the failing one are not attempted")

	em = &recordingEmitter{failOn: "TestState::Bar"}
	require.Error(t, (&testState{}).EmitAll(em))
	assert.Equal(t, []string{"TestState::Foo"}, em.events)
}

type peers struct {
	bridge *memory.Bridge
	app    *host.App
	client *remote.Client
	logs   *bytes.Buffer
}

func newPeers(t *testing.T) *peers {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	b := memory.New()
	t.Cleanup(func() { b.Close() })
	return &peers{
		bridge: b,
		app:    host.NewApp(b),
		client: remote.NewClient(b, remote.WithLogger(logger)),
		logs:   &logs,
	}
}

func TestListenReceivesUpdates(t *testing.T) {
	p := newPeers(t)
	got := make(chan string, 1)

	h, err := event.Listen[testState, string](context.Background(), p.client, testStateFoo{}, func(v string) { got <- v })
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, "TestState::Foo", h.Event())

	state := &testState{}
	require.NoError(t, event.Update[testState, string](p.app, state, testStateFoo{}, "hello"))

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestListenDecodeFailureDeliversZeroValue(t *testing.T) {
	p := newPeers(t)
	got := make(chan string, 1)

	h, err := event.Listen[testState, string](context.Background(), p.client, testStateFoo{}, func(v string) { got <- v })
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, p.bridge.Emit("TestState::Foo", []byte(`{"payload":42,"event":"TestState::Foo"}`)))

	select {
	case v := <-got:
		assert.Equal(t, "", v)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	assert.Contains(t, p.logs.String(), "decode failed")
}

func TestHandleCloseIsIdempotent(t *testing.T) {
	p := newPeers(t)
	var mu sync.Mutex
	calls := 0

	h, err := event.Listen[testState, bool](context.Background(), p.client, testStateBar{}, func(bool) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.True(t, h.Active())

	h.Close()
	h.Close()
	assert.False(t, h.Active())
	assert.Equal(t, 0, p.bridge.Listeners("TestState::Bar"))

	require.NoError(t, event.Emit[testState, bool](p.app, &testState{Bar: true}, testStateBar{}))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

// fakeSource hands callbacks to the test so delivery is synchronous.
type fakeSource struct {
	listenErr error
	noDetach  bool
	fn        func([]byte)
	detached  bool
}

func (f *fakeSource) Listen(ctx context.Context, name string, fn func([]byte)) (bridge.Detach, error) {
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	f.fn = fn
	if f.noDetach {
		return nil, nil
	}
	return func() { f.detached = true }, nil
}

func (f *fakeSource) Codec() codec.Codec { return codec.JSON }
func (f *fakeSource) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func (f *fakeSource) fire(t *testing.T, value string, seq int64) {
	t.Helper()
	data, err := codec.JSON.Marshal(event.Envelope[string]{Payload: value, Event: "TestState::Foo", Seq: seq})
	require.NoError(t, err)
	f.fn(data)
}

func TestListenRegistrationErrors(t *testing.T) {
	_, err := event.Listen[testState, string](context.Background(), &fakeSource{listenErr: errors.New("promise failed")}, testStateFoo{}, func(string) {})
	var le *event.ListenError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "TestState::Foo", le.Event)
	assert.Contains(t, err.Error(), "promise failed")

	_, err = event.Listen[testState, string](context.Background(), &fakeSource{noDetach: true}, testStateFoo{}, func(string) {})
	require.Error(t, err)
	assert.True(t, event.IsNotDetachable(err))
}

func TestBindWithInitialValueSkipsFetch(t *testing.T) {
	src := &fakeSource{}
	initial := "from caller"
	fetch := func(context.Context) (event.Snapshot[string], error) {
		t.Fatal("fetch must not run with an initial value")
		return event.Snapshot[string]{}, nil
	}
	var changes []string

	r, err := event.Bind[testState, string](context.Background(), src, testStateFoo{}, &initial, fetch, func(v string) { changes = append(changes, v) })
	require.NoError(t, err)
	assert.Equal(t, "from caller", r.Value())

	src.fire(t, "pushed", 1)
	assert.Equal(t, "pushed", r.Value())
	assert.Equal(t, []string{"pushed"}, changes)
}

func TestBindWithoutFetchStartsAtZero(t *testing.T) {
	r, err := event.Bind[testState, string](context.Background(), &fakeSource{}, testStateFoo{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "", r.Value())
}

func TestBindReplaysEventsNewerThanSnapshot(t *testing.T) {
	src := &fakeSource{}
	fetch := func(context.Context) (event.Snapshot[string], error) {
		// Events racing the read arrive while the snapshot is in flight.
		src.fire(t, "already in snapshot", 3)
		src.fire(t, "after snapshot", 5)
		return event.Snapshot[string]{Value: "snapshot", Seq: 4}, nil
	}

	r, err := event.Bind[testState, string](context.Background(), src, testStateFoo{}, nil, fetch, nil)
	require.NoError(t, err)
	assert.Equal(t, "after snapshot", r.Value())
	assert.Equal(t, int64(5), r.Seq())
}

func TestBindReportsBootstrappedValueOnce(t *testing.T) {
	src := &fakeSource{}
	fetch := func(context.Context) (event.Snapshot[string], error) {
		src.fire(t, "after snapshot", 5)
		src.fire(t, "latest", 6)
		return event.Snapshot[string]{Value: "snapshot", Seq: 4}, nil
	}
	var changes []string

	r, err := event.Bind[testState, string](context.Background(), src, testStateFoo{}, nil, fetch, func(v string) { changes = append(changes, v) })
	require.NoError(t, err)
	assert.Equal(t, "latest", r.Value())
	assert.Equal(t, []string{"latest"}, changes, "replayed events collapse into one bootstrap notification")
}

func TestBindKeepsSnapshotOverStaleEvents(t *testing.T) {
	src := &fakeSource{}
	fetch := func(context.Context) (event.Snapshot[string], error) {
		src.fire(t, "stale", 2)
		return event.Snapshot[string]{Value: "snapshot", Seq: 4}, nil
	}
	var changes []string

	r, err := event.Bind[testState, string](context.Background(), src, testStateFoo{}, nil, fetch, func(v string) { changes = append(changes, v) })
	require.NoError(t, err)
	assert.Equal(t, "snapshot", r.Value())

	src.fire(t, "late stale", 3)
	assert.Equal(t, "snapshot", r.Value())
	src.fire(t, "fresh", 6)
	assert.Equal(t, "fresh", r.Value())
	assert.Equal(t, []string{"snapshot", "fresh"}, changes)

	r.Close()
	assert.True(t, src.detached)
}

func TestBindFetchFailureDetaches(t *testing.T) {
	src := &fakeSource{}
	fetch := func(context.Context) (event.Snapshot[string], error) {
		return event.Snapshot[string]{}, errors.New("state not registered: cmd.TestState")
	}

	_, err := event.Bind[testState, string](context.Background(), src, testStateFoo{}, nil, fetch, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap TestState::Foo")
	assert.True(t, src.detached)
}

func TestBindOverBridgeWithHostSnapshot(t *testing.T) {
	p := newPeers(t)
	state := host.NewRWLocked(testState{Foo: "initial"})
	p.app.Manage(state)

	fetch := func(context.Context) (event.Snapshot[string], error) {
		return host.Snapshot[testState, string](p.app, host.ReadWrite[testState], testStateFoo{})
	}
	changed := make(chan string, 2)
	r, err := event.Bind[testState, string](context.Background(), p.client, testStateFoo{}, nil, fetch, func(v string) { changed <- v })
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "initial", r.Value())
	assert.Equal(t, "initial", <-changed)

	s, err := host.StateOf(p.app, host.ReadWrite[testState])
	require.NoError(t, err)
	require.NoError(t, s.Write(func(ts *testState) error {
		return event.Update[testState, string](p.app, ts, testStateFoo{}, "updated")
	}))

	select {
	case v := <-changed:
		assert.Equal(t, "updated", v)
	case <-time.After(2 * time.Second):
		t.Fatal("replica not updated")
	}
	assert.Equal(t, "updated", r.Value())
}
