package remote

import (
	"context"
)

// FireAndForget invokes command without waiting for the host. The call runs
// on its own goroutine under the client's base context; failures are only
// logged.
func FireAndForget(c *Client, command string, args any) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		out, err := c.Call(c.base, command, args)
		if err != nil {
			c.logger.Error("fire-and-forget invoke failed", "command", command, "error", err)
			return
		}
		if out.Kind == ApplicationError {
			c.logger.Error("fire-and-forget command failed on the host",
				"command", command, "error", c.hostError(command, out.Payload))
		}
	}()
}

// Wait invokes command and waits for completion. The reply is discarded.
func Wait(ctx context.Context, c *Client, command string, args any) error {
	out, err := c.Call(ctx, command, args)
	if err != nil {
		return err
	}
	if out.Kind == ApplicationError {
		return c.hostError(command, out.Payload)
	}
	return nil
}

// Return invokes command and decodes its reply into T. A command missing on
// the host yields the zero T.
func Return[T any](ctx context.Context, c *Client, command string, args any) (T, error) {
	var zero T
	out, err := c.Call(ctx, command, args)
	if err != nil {
		return zero, err
	}
	switch out.Kind {
	case NotRegistered:
		return zero, nil
	case ApplicationError:
		return zero, c.hostError(command, out.Payload)
	}

	var v T
	if err := c.codec.Unmarshal(out.Payload, &v); err != nil {
		return zero, &DecodeError{Command: command, Err: err}
	}
	return v, nil
}

// Catch invokes a fallible command. A host error decodes into E and is
// returned as *AppError[E]. A command missing on the host yields the zero T
// and no error.
func Catch[T, E any](ctx context.Context, c *Client, command string, args any) (T, error) {
	var zero T
	out, err := c.Call(ctx, command, args)
	if err != nil {
		return zero, err
	}
	switch out.Kind {
	case NotRegistered:
		return zero, nil
	case ApplicationError:
		var e E
		if err := c.codec.Unmarshal(out.Payload, &e); err != nil {
			return zero, &DecodeError{Command: command, Err: err}
		}
		return zero, &AppError[E]{Command: command, Value: e}
	}

	var v T
	if err := c.codec.Unmarshal(out.Payload, &v); err != nil {
		return zero, &DecodeError{Command: command, Err: err}
	}
	return v, nil
}

// hostError decodes the message of a non-fallible handler failure.
func (c *Client) hostError(command string, payload []byte) error {
	var msg string
	if err := c.codec.Unmarshal(payload, &msg); err != nil {
		msg = string(payload)
	}
	return &AppError[string]{Command: command, Value: msg}
}
