// Package protocol defines the binary command protocol: opcodes, the
// reply envelope, error codes, and the snapshot wire codec. Both the
// dispatcher (server side) and the client helpers build on it.
package protocol

import (
	"fmt"

	"github.com/srg/swbot/internal/registry"
)

// Request opcodes. Every request starts with one of these bytes.
const (
	OpPing       byte = 0x01
	OpEcho       byte = 0x02
	OpRadioStart byte = 0x10
	OpRadioStop  byte = 0x11
	OpLatest     byte = 0x12
	OpLatestFor  byte = 0x13
)

// Reply envelope tags: a success byte followed by the payload, or an
// error byte followed by a single error code.
const (
	StatusOK    byte = 0x00
	StatusError byte = 0x01
)

// Error codes carried in error replies.
const (
	CodeMalformedRequest byte = 0x11
	CodeUnknownOpcode    byte = 0x12
	CodeRadioInitFailed  byte = 0x30
	CodeNotStarted       byte = 0x40
	CodeNoDataYet        byte = 0x41
	CodeNotFound         byte = 0x43
)

// PongToken is the fixed payload of a successful PING reply.
var PongToken = []byte{'P', 'O', 'N', 'G'}

// OK wraps payload in a success envelope.
func OK(payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, StatusOK)
	return append(out, payload...)
}

// Error builds an error envelope for the given code.
func Error(code byte) []byte {
	return []byte{StatusError, code}
}

// EncodeSnapshot serializes a device snapshot as
// addr(6) ++ rssi(1) ++ svcLen(1) ++ svc ++ mfgLen(1) ++ mfg.
func EncodeSnapshot(s registry.Snapshot) []byte {
	out := make([]byte, 0, 6+1+1+len(s.Service)+1+len(s.Manufacturer))
	out = append(out, s.Addr[:]...)
	out = append(out, byte(s.RSSI))
	out = append(out, byte(len(s.Service)))
	out = append(out, s.Service...)
	out = append(out, byte(len(s.Manufacturer)))
	return append(out, s.Manufacturer...)
}

// DecodeSnapshot parses the wire form produced by EncodeSnapshot. The
// device id is re-derived from the manufacturer bytes since it is not
// carried on the wire.
func DecodeSnapshot(b []byte) (registry.Snapshot, error) {
	var s registry.Snapshot

	if len(b) < 8 {
		return s, fmt.Errorf("snapshot too short: %d bytes", len(b))
	}
	copy(s.Addr[:], b[:6])
	s.RSSI = int8(b[6])

	rest := b[7:]
	svcLen := int(rest[0])
	if len(rest) < 1+svcLen+1 {
		return s, fmt.Errorf("snapshot service payload truncated")
	}
	s.Service = append([]byte(nil), rest[1:1+svcLen]...)

	rest = rest[1+svcLen:]
	mfgLen := int(rest[0])
	if len(rest) != 1+mfgLen {
		return s, fmt.Errorf("snapshot manufacturer payload truncated")
	}
	s.Manufacturer = append([]byte(nil), rest[1:1+mfgLen]...)

	if mfgLen >= 8 {
		s.DeviceID = uint16(s.Manufacturer[6])<<8 | uint16(s.Manufacturer[7])
		s.HasDeviceID = true
	}
	return s, nil
}
