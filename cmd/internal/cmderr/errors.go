package cmderr

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes of the storage tools.
const (
	CodeFailure = 1
	// CodeInconsistent means the storage was read successfully but its
	// contents violate structural rules and must be rebuilt.
	CodeInconsistent = 2
)

// ExitErr specific error for ExitOnErr function that passes the exit code and error caused.
type ExitErr struct {
	Code  int
	Cause error
}

func (x ExitErr) Error() string { return x.Cause.Error() }

func (x ExitErr) Unwrap() error { return x.Cause }

// Code returns the exit code carried by err or CodeFailure.
func Code(err error) int {
	var e ExitErr
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return CodeFailure
}

// ExitOnErr writes error to os.Stderr and calls os.Exit with the code
// carried by err. Does nothing if err is nil.
func ExitOnErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(Code(err))
	}
}
