package main

import (
	"errors"

	"github.com/srg/swbot/internal/dispatch"
)

// FormatUserError turns protocol errors into messages that tell the
// user what to do next rather than which byte came back.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrNotStarted):
		return "radio not started - run 'swbotd start' first"
	case errors.Is(err, dispatch.ErrNoDataYet):
		return "no sensor has completed a reading yet - keep the daemon scanning and retry"
	case errors.Is(err, dispatch.ErrNotFound):
		return "no completed reading for that device id"
	case errors.Is(err, dispatch.ErrRadioInitFailed):
		return "radio bring-up failed on the daemon - check adapter permissions and retry"
	default:
		return err.Error()
	}
}
