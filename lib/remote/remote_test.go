package remote

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
	"github.com/photovoltex/interop/lib/codec"
)

type recordedCall struct {
	command string
	args    []byte
}

// fakeInvoker records calls and answers with reply.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []recordedCall
	reply   func(command string, args []byte) ([]byte, error)
	release chan struct{}
}

func (f *fakeInvoker) Invoke(ctx context.Context, command string, args []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{command: command, args: args})
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.reply == nil {
		return []byte("null"), nil
	}
	return f.reply(command, args)
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func replyWith(payload string, err error) func(string, []byte) ([]byte, error) {
	return func(string, []byte) ([]byte, error) {
		if err != nil {
			return nil, err
		}
		return []byte(payload), nil
	}
}

type greetArgs struct {
	NameToGreet string `json:"name_to_greet"`
}

func newTestClient(inv bridge.Invoker) (*Client, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	return NewClient(inv, WithLogger(logger)), &logs
}

func TestFireAndForgetDoesNotWait(t *testing.T) {
	inv := &fakeInvoker{release: make(chan struct{})}
	c, _ := newTestClient(inv)

	returned := make(chan struct{})
	go func() {
		FireAndForget(c, "empty_invoke", struct{}{})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("FireAndForget blocked on the host")
	}

	require.Eventually(t, func() bool { return inv.callCount() == 1 }, time.Second, time.Millisecond)
	close(inv.release)
	c.Drain()
	assert.Equal(t, 1, inv.callCount())
}

func TestFireAndForgetLogsHostFailure(t *testing.T) {
	inv := &fakeInvoker{reply: replyWith("", bridge.Reject([]byte(`"disk full"`)))}
	c, logs := newTestClient(inv)

	FireAndForget(c, "save", struct{}{})
	c.Drain()

	assert.Contains(t, logs.String(), "disk full")
}

func TestWaitReturnsAfterCompletion(t *testing.T) {
	var done bool
	inv := &fakeInvoker{reply: func(string, []byte) ([]byte, error) {
		done = true
		return []byte("null"), nil
	}}
	c, _ := newTestClient(inv)

	require.NoError(t, Wait(context.Background(), c, "await_heavy_computing", struct{}{}))
	assert.True(t, done)
}

func TestWaitSurfacesHostError(t *testing.T) {
	inv := &fakeInvoker{reply: replyWith("", bridge.Reject([]byte(`"state not registered: TestState"`)))}
	c, _ := newTestClient(inv)

	err := Wait(context.Background(), c, "emit", struct{}{})
	ae, ok := AsAppError[string](err)
	require.True(t, ok)
	assert.Equal(t, "state not registered: TestState", ae.Value)
}

func TestReturnDecodesValueAndEncodesArgs(t *testing.T) {
	inv := &fakeInvoker{reply: replyWith(`"Hello, world!"`, nil)}
	c, _ := newTestClient(inv)

	got, err := Return[string](context.Background(), c, "greet", greetArgs{NameToGreet: "world"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", got)

	require.Len(t, inv.calls, 1)
	assert.Equal(t, "greet", inv.calls[0].command)
	assert.JSONEq(t, `{"name_to_greet":"world"}`, string(inv.calls[0].args))
}

func TestReturnDecodeFailureFailsCall(t *testing.T) {
	inv := &fakeInvoker{reply: replyWith(`{"not":"a string"}`, nil)}
	c, _ := newTestClient(inv)

	got, err := Return[string](context.Background(), c, "greet", greetArgs{})
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Equal(t, "", got)
}

func TestCatchOk(t *testing.T) {
	inv := &fakeInvoker{reply: replyWith(`42`, nil)}
	c, _ := newTestClient(inv)

	got, err := Catch[int32, string](context.Background(), c, "result_test", struct{}{})
	require.NoError(t, err)
	assert.Equal(t, int32(42), got)
}

func TestCatchTypedError(t *testing.T) {
	type quotaErr struct {
		Limit int `json:"limit"`
	}
	inv := &fakeInvoker{reply: replyWith("", bridge.Reject([]byte(`{"limit":3}`)))}
	c, _ := newTestClient(inv)

	_, err := Catch[int32, quotaErr](context.Background(), c, "result_test", struct{}{})
	ae, ok := AsAppError[quotaErr](err)
	require.True(t, ok)
	assert.Equal(t, 3, ae.Value.Limit)
	assert.Equal(t, "result_test", ae.Command)
}

func TestNotRegisteredYieldsZeroValue(t *testing.T) {
	notFound := replyWith("", bridge.Reject([]byte(`"command greet not found"`)))

	t.Run("return", func(t *testing.T) {
		c, logs := newTestClient(&fakeInvoker{reply: notFound})
		got, err := Return[string](context.Background(), c, "greet", greetArgs{})
		require.NoError(t, err)
		assert.Equal(t, "", got)
		assert.Contains(t, logs.String(), "not registered")
	})

	t.Run("catch", func(t *testing.T) {
		c, _ := newTestClient(&fakeInvoker{reply: notFound})
		got, err := Catch[int32, string](context.Background(), c, "greet", struct{}{})
		require.NoError(t, err)
		assert.Equal(t, int32(0), got)
	})

	t.Run("wait", func(t *testing.T) {
		c, _ := newTestClient(&fakeInvoker{reply: notFound})
		require.NoError(t, Wait(context.Background(), c, "greet", struct{}{}))
	})
}

func TestTransportErrorIsSurfaced(t *testing.T) {
	closed := errors.New("socket closed")
	c, _ := newTestClient(&fakeInvoker{reply: replyWith("", closed)})

	_, err := Return[string](context.Background(), c, "greet", greetArgs{})
	require.ErrorIs(t, err, closed)
	_, isApp := AsAppError[string](err)
	assert.False(t, isApp)
	assert.Contains(t, err.Error(), "invoke greet")
}

func TestClassify(t *testing.T) {
	out, err := Classify(codec.JSON, "a", []byte(`1`), nil)
	require.NoError(t, err)
	assert.Equal(t, OK, out.Kind)

	out, err = Classify(codec.JSON, "a", nil, bridge.Reject([]byte(`"command a not found"`)))
	require.NoError(t, err)
	assert.Equal(t, NotRegistered, out.Kind)

	out, err = Classify(codec.JSON, "a", nil, bridge.Reject([]byte(`{"code":1}`)))
	require.NoError(t, err)
	assert.Equal(t, ApplicationError, out.Kind)
	assert.Equal(t, "application_error", out.Kind.String())

	_, err = Classify(codec.JSON, "a", nil, bridge.ErrClosed)
	assert.ErrorIs(t, err, bridge.ErrClosed)
}

func TestClassifyWithCBOR(t *testing.T) {
	payload, err := codec.CBOR.Marshal(bridge.NotFound("greet"))
	require.NoError(t, err)

	out, err := Classify(codec.CBOR, "greet", nil, bridge.Reject(payload))
	require.NoError(t, err)
	assert.Equal(t, NotRegistered, out.Kind)
}

func TestListenWithoutSubscriber(t *testing.T) {
	c, _ := newTestClient(&fakeInvoker{})
	_, err := c.Listen(context.Background(), "TestState::Foo", func([]byte) {})
	assert.ErrorIs(t, err, ErrNoSubscriber)
}
