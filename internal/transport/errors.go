package transport

import (
	"errors"
	"fmt"
)

// Kind classifies transport failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindAddressInUse
	KindPermissionDenied
	KindConnectionLost
)

func (k Kind) String() string {
	switch k {
	case KindAddressInUse:
		return "address in use"
	case KindPermissionDenied:
		return "permission denied"
	case KindConnectionLost:
		return "connection lost"
	default:
		return "unknown"
	}
}

// Error is returned by Listen and recorded on connection loss.
type Error struct {
	Kind Kind
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport: %s %s: %s: %v", e.Op, e.Addr, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a transport *Error of kind k.
func IsKind(err error, k Kind) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == k
}

func newError(op, addr string, err error) *Error {
	return &Error{Kind: classify(err), Op: op, Addr: addr, Err: err}
}
