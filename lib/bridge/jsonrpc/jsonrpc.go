// Package jsonrpc carries commands over HTTP using JSON-RPC 2.0. It is
// invoke-only: a remote built on Client has no event subscription.
package jsonrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/photovoltex/interop/lib/bridge"
)

// ServiceName is the JSON-RPC service the host registers.
const ServiceName = "Bridge"

const invokeMethod = ServiceName + ".Invoke"

// InvokeArgs are the parameters of Bridge.Invoke.
type InvokeArgs struct {
	Command string `json:"command"`
	Args    []byte `json:"args,omitempty"`
}

// InvokeReply is the result of Bridge.Invoke. A host rejection is a
// successful RPC with Rejected set.
type InvokeReply struct {
	Data     []byte `json:"data,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
}

// Service exposes a bridge.Invoker as a gorilla/rpc service.
type Service struct {
	invoker bridge.Invoker
}

// Invoke forwards one command to the host.
func (s *Service) Invoke(r *http.Request, args *InvokeArgs, reply *InvokeReply) error {
	data, err := s.invoker.Invoke(r.Context(), args.Command, args.Args)
	if rej, ok := bridge.AsRejection(err); ok {
		reply.Rejected = true
		reply.Data = rej.Payload
		return nil
	}
	if err != nil {
		return err
	}
	reply.Data = data
	return nil
}

// NewHandler returns an http.Handler serving Bridge.Invoke for inv.
func NewHandler(inv bridge.Invoker) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&Service{invoker: inv}, ServiceName); err != nil {
		return nil, fmt.Errorf("register %s: %w", ServiceName, err)
	}
	return s, nil
}

// Client calls a host served by NewHandler. It implements bridge.Invoker.
type Client struct {
	url  string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient returns a client posting to url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{url: url, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke sends command to the host and returns its encoded reply.
func (c *Client) Invoke(ctx context.Context, command string, args []byte) ([]byte, error) {
	body, err := json2.EncodeClientRequest(invokeMethod, &InvokeArgs{Command: command, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", command, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("invoke %s: http %d: %s", command, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var reply InvokeReply
	if err := json2.DecodeClientResponse(resp.Body, &reply); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", command, err)
	}
	if reply.Rejected {
		return nil, bridge.Reject(reply.Data)
	}
	return reply.Data, nil
}

var _ bridge.Invoker = (*Client)(nil)
