package dispatch

import (
	"errors"
	"fmt"

	"github.com/srg/swbot/internal/protocol"
)

// ProtocolError is a protocol-level failure carrying its wire code.
// Every one of these is a normal, recoverable reply; none terminates
// the process.
type ProtocolError struct {
	Code byte
	Msg  string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return fmt.Sprintf("protocol error 0x%02X", e.Code)
	}
	return e.Msg
}

// Is allows errors.Is to compare ProtocolError values by code.
func (e *ProtocolError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Predefined sentinel errors, one per wire code.
var (
	ErrMalformedRequest = &ProtocolError{Code: protocol.CodeMalformedRequest, Msg: "malformed request"}
	ErrUnknownOpcode    = &ProtocolError{Code: protocol.CodeUnknownOpcode, Msg: "unknown opcode"}
	ErrRadioInitFailed  = &ProtocolError{Code: protocol.CodeRadioInitFailed, Msg: "radio bring-up failed"}
	ErrNotStarted       = &ProtocolError{Code: protocol.CodeNotStarted, Msg: "radio not started"}
	ErrNoDataYet        = &ProtocolError{Code: protocol.CodeNoDataYet, Msg: "no completed reading yet"}
	ErrNotFound         = &ProtocolError{Code: protocol.CodeNotFound, Msg: "no device with that id"}
)

// ErrorFromCode maps a wire code back to its sentinel, or to a generic
// ProtocolError for codes this build does not know.
func ErrorFromCode(code byte) error {
	for _, sentinel := range []*ProtocolError{
		ErrMalformedRequest,
		ErrUnknownOpcode,
		ErrRadioInitFailed,
		ErrNotStarted,
		ErrNoDataYet,
		ErrNotFound,
	} {
		if sentinel.Code == code {
			return sentinel
		}
	}
	return &ProtocolError{Code: code}
}

// CodeOf extracts the wire code from err, if it is a ProtocolError.
func CodeOf(err error) (byte, bool) {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr.Code, true
	}
	return 0, false
}
