// Package remote is the caller side of generated command stubs. A Client
// encodes arguments, invokes the bridge and classifies the reply; the
// category functions (FireAndForget, Wait, Return, Catch) decode it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/photovoltex/interop/lib/bridge"
	"github.com/photovoltex/interop/lib/codec"
)

// ErrNoSubscriber is returned by Listen when the bridge cannot carry events.
var ErrNoSubscriber = errors.New("bridge does not support events")

// Client is the remote peer's handle on a bridge.
type Client struct {
	invoker    bridge.Invoker
	subscriber bridge.Subscriber
	codec      codec.Codec
	logger     *slog.Logger
	base       context.Context
	inflight   sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithCodec sets the codec. Defaults to codec.JSON.
func WithCodec(c codec.Codec) Option {
	return func(cl *Client) {
		cl.codec = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithContext sets the context fire-and-forget invocations run under.
func WithContext(ctx context.Context) Option {
	return func(cl *Client) {
		cl.base = ctx
	}
}

// NewClient wraps b. Events are available when b also implements
// bridge.Subscriber.
func NewClient(b bridge.Invoker, opts ...Option) *Client {
	c := &Client{
		invoker: b,
		codec:   codec.JSON,
		logger:  slog.Default(),
		base:    context.Background(),
	}
	if s, ok := b.(bridge.Subscriber); ok {
		c.subscriber = s
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Codec returns the client's codec.
func (c *Client) Codec() codec.Codec {
	return c.codec
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Listen registers fn with the underlying bridge.
func (c *Client) Listen(ctx context.Context, event string, fn func([]byte)) (bridge.Detach, error) {
	if c.subscriber == nil {
		return nil, ErrNoSubscriber
	}
	return c.subscriber.Listen(ctx, event, fn)
}

// Drain blocks until every fire-and-forget invocation started so far has
// finished.
func (c *Client) Drain() {
	c.inflight.Wait()
}

// Call encodes args, invokes command and classifies the reply. Transport
// failures are returned as errors; host rejections are outcomes.
func (c *Client) Call(ctx context.Context, command string, args any) (Outcome, error) {
	data, err := c.codec.Marshal(args)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode %s args: %w", command, err)
	}
	reply, err := c.invoker.Invoke(ctx, command, data)
	out, err := Classify(c.codec, command, reply, err)
	if err != nil {
		return Outcome{}, err
	}
	if out.Kind == NotRegistered {
		c.logger.Error("command is not registered on the host, using zero value", "command", command)
	}
	return out, nil
}
