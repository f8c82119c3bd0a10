// Package storeerr defines the error taxonomy shared by every storage-core
// component: IoError, CorruptError, LockedError, ArgError and ClosedError.
package storeerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel kinds. Callers match with errors.Is(err, storeerr.IO) etc.
var (
	IO      = errors.New("io error")
	Corrupt = errors.New("corrupt data")
	Locked  = errors.New("data directory locked")
	Arg     = errors.New("invalid argument")
	Closed  = errors.New("engine closed")
)

// StoreError carries a kind sentinel plus a human message and, where
// available, the underlying OS/library error with a captured stack.
type StoreError struct {
	Kind error
	Msg  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap lets errors.Is/errors.As match against the Kind sentinel.
func (e *StoreError) Unwrap() error { return e.Kind }

// Cause implements the pkg/errors Causer interface so pkgerrors.Cause and
// %+v stack-trace formatting keep working across this boundary.
func (e *StoreError) Cause() error { return e.Err }

func wrap(kind error, msg string, err error) error {
	if err != nil {
		err = pkgerrors.WithStack(err)
	}
	return &StoreError{Kind: kind, Msg: msg, Err: err}
}

func IOErr(msg string, err error) error      { return wrap(IO, msg, err) }
func CorruptErr(msg string, err error) error { return wrap(Corrupt, msg, err) }
func LockedErr(msg string, err error) error  { return wrap(Locked, msg, err) }
func ArgErr(msg string) error                { return wrap(Arg, msg, nil) }
func ClosedErr(msg string) error             { return wrap(Closed, msg, nil) }
