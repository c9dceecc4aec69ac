package service

import (
	"context"
	"errors"

	"pixelcraft.ai/internal/protocol"
)

// Code maps an error to the code reported to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrClosed),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrBusy
	}
	return protocol.CodeFor(err)
}
