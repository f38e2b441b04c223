package harness

import (
	"errors"
	"fmt"
)

// Kind classifies a node failure.
type Kind int

const (
	ConnectionError Kind = iota + 1
	QueryError
	DecodeError
)

func (k Kind) String() string {
	switch k {
	case ConnectionError:
		return "connection error"
	case QueryError:
		return "query error"
	case DecodeError:
		return "decode error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrConnection = errors.New("connection error")
	ErrQuery      = errors.New("query error")
	ErrDecode     = errors.New("decode error")

	// ErrNotReady is returned by WaitReady when the attempt bound is exhausted
	// before the node reports ready.
	ErrNotReady = errors.New("node not ready")
)

// Error is a failure talking to a node. It matches ErrConnection, ErrQuery or
// ErrDecode with errors.Is, depending on its Kind.
type Error struct {
	Kind Kind
	Node string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", e.Node, e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnection:
		return e.Kind == ConnectionError
	case ErrQuery:
		return e.Kind == QueryError
	case ErrDecode:
		return e.Kind == DecodeError
	}
	return false
}

func nodeError(kind Kind, node, op string, err error) error {
	return &Error{Kind: kind, Node: node, Op: op, Err: err}
}
