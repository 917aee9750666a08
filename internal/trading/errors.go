// internal/trading/errors.go
package trading

import (
	"errors"
	"fmt"
)

// Kind classifies trading failures for the chat layer.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindRemoteCallFailure   Kind = "remote_call_failure"
	KindNoMatchingPosition  Kind = "no_matching_position"
)

// Sentinel errors, usable with errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRemoteCallFailure   = errors.New("remote call failed")
	ErrNoMatchingPosition  = errors.New("no matching open position")
)

// Error описывает ошибку торговой операции.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrInsufficientBalance:
		return e.Kind == KindInsufficientBalance
	case ErrRemoteCallFailure:
		return e.Kind == KindRemoteCallFailure
	case ErrNoMatchingPosition:
		return e.Kind == KindNoMatchingPosition
	}
	return false
}

func invalidInput(op string, err error) error {
	return &Error{Op: op, Kind: KindInvalidInput, Err: err}
}

func remoteFailure(op string, err error) error {
	return &Error{Op: op, Kind: KindRemoteCallFailure, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a trading error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
