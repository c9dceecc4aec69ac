package protocol

import "pixelcraft.ai/internal/blocks"

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Conversion core.
	ErrInvalidInput     = blocks.CodeInvalidInput
	ErrPaletteExhausted = blocks.CodePaletteExhausted
	ErrIndexOutOfRange  = blocks.CodeIndexOutOfRange
	ErrLengthMismatch   = blocks.CodeLengthMismatch

	// Service layer.
	ErrNotFound  = "E_NOT_FOUND"
	ErrTooLarge  = "E_TOO_LARGE"
	ErrRateLimit = "E_RATE_LIMIT"
	ErrBusy      = "E_BUSY"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrProtoVersion:     {},
	ErrInvalidInput:     {},
	ErrPaletteExhausted: {},
	ErrIndexOutOfRange:  {},
	ErrLengthMismatch:   {},
	ErrNotFound:         {},
	ErrTooLarge:         {},
	ErrRateLimit:        {},
	ErrBusy:             {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an error to the code sent to clients. Errors that carry no
// conversion code are internal.
func CodeFor(err error) string {
	if err == nil {
		return ""
	}
	if c := blocks.CodeOf(err); c != "" {
		return c
	}
	return ErrInternal
}
