package blocks

import (
	"errors"
	"fmt"
)

// Error codes for conversion failures. They double as protocol error codes.
const (
	CodeInvalidInput     = "E_INVALID_INPUT"
	CodePaletteExhausted = "E_PALETTE_EXHAUSTED"
	CodeIndexOutOfRange  = "E_INDEX_OUT_OF_RANGE"
	CodeLengthMismatch   = "E_LENGTH_MISMATCH"
)

// Error is a conversion failure. Every failure of the conversion core is a
// local invariant violation: there is nothing to retry.
type Error struct {
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + ": " + e.Msg
}

// Is matches any *Error with the same code, so errors.Is(err, ErrInvalidInput)
// works for every invalid-input error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidInput     = &Error{Code: CodeInvalidInput}
	ErrPaletteExhausted = &Error{Code: CodePaletteExhausted}
	ErrIndexOutOfRange  = &Error{Code: CodeIndexOutOfRange}
	ErrLengthMismatch   = &Error{Code: CodeLengthMismatch}
)

func InvalidInput(format string, args ...any) error {
	return &Error{Code: CodeInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func PaletteExhausted(format string, args ...any) error {
	return &Error{Code: CodePaletteExhausted, Msg: fmt.Sprintf(format, args...)}
}

func IndexOutOfRange(format string, args ...any) error {
	return &Error{Code: CodeIndexOutOfRange, Msg: fmt.Sprintf(format, args...)}
}

func LengthMismatch(format string, args ...any) error {
	return &Error{Code: CodeLengthMismatch, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the error code carried by err, or "" if err is not a
// conversion error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
