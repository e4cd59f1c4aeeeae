package remote

import (
	"errors"
	"fmt"

	"github.com/photovoltex/interop/lib/bridge"
	"github.com/photovoltex/interop/lib/codec"
)

// OutcomeKind classifies a completed invocation.
type OutcomeKind int

const (
	// OK carries the encoded reply.
	OK OutcomeKind = iota
	// ApplicationError carries the host's encoded error value.
	ApplicationError
	// NotRegistered means the host has no handler for the command.
	NotRegistered
)

func (k OutcomeKind) String() string {
	switch k {
	case OK:
		return "ok"
	case ApplicationError:
		return "application_error"
	case NotRegistered:
		return "not_registered"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is a classified reply.
type Outcome struct {
	Kind    OutcomeKind
	Command string
	Payload []byte
}

// Classify turns a raw invoke result into an Outcome. A rejection whose
// payload decodes to the host's "command X not found" diagnostic is
// NotRegistered; other rejections are application errors; any other error
// is a transport failure and is returned wrapped.
func Classify(c codec.Codec, command string, reply []byte, err error) (Outcome, error) {
	if err == nil {
		return Outcome{Kind: OK, Command: command, Payload: reply}, nil
	}
	rej, ok := bridge.AsRejection(err)
	if !ok {
		return Outcome{}, fmt.Errorf("invoke %s: %w", command, err)
	}
	var msg string
	if c.Unmarshal(rej.Payload, &msg) == nil {
		if _, notFound := bridge.MatchNotFound(msg); notFound {
			return Outcome{Kind: NotRegistered, Command: command, Payload: rej.Payload}, nil
		}
	}
	return Outcome{Kind: ApplicationError, Command: command, Payload: rej.Payload}, nil
}

// AppError is an error value returned by a host handler.
type AppError[E any] struct {
	Command string
	Value   E
}

func (e *AppError[E]) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Value)
}

// AsAppError unwraps an *AppError[E] from err.
func AsAppError[E any](err error) (*AppError[E], bool) {
	var ae *AppError[E]
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// DecodeError is a reply the client could not decode into the declared type.
type DecodeError struct {
	Command string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s reply: %v", e.Command, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a reply decode failure.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
