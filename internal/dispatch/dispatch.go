// Package dispatch interprets the binary command protocol against the
// device registry and the radio collaborator, producing reply
// envelopes. It never blocks on I/O: registry access is bounded by the
// registry's own lock and radio calls only flip discovery on and off.
package dispatch

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/swbot/internal/protocol"
	"github.com/srg/swbot/internal/registry"
)

// Radio is the radio-stack collaborator boundary. Start performs
// one-time bring-up and begins discovery; Restart reissues the
// discovery request on an already-started stack; Stop cancels the
// active discovery request without tearing the stack down.
type Radio interface {
	Start() error
	Restart() error
	Stop() error
}

var okPayload = []byte{0x01}

// Dispatcher routes opcode requests to the registry and radio.
type Dispatcher struct {
	reg    *registry.Registry
	radio  Radio
	logger *logrus.Logger

	// started gates the radio-dependent opcodes; startMu serializes
	// start/stop transitions without making queries wait on bring-up.
	started atomic.Bool
	startMu sync.Mutex
}

// New creates a dispatcher over the given registry and radio.
func New(reg *registry.Registry, radio Radio, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		reg:    reg,
		radio:  radio,
		logger: logger,
	}
}

// Handle interprets one request and always returns a reply envelope;
// every failure becomes an error reply, never a panic or a dropped
// request.
func (d *Dispatcher) Handle(req []byte) []byte {
	if len(req) < 1 {
		return protocol.Error(protocol.CodeMalformedRequest)
	}

	switch opcode := req[0]; opcode {
	case protocol.OpPing:
		return protocol.OK(protocol.PongToken)

	case protocol.OpEcho:
		return protocol.OK(req[1:])

	case protocol.OpRadioStart:
		return d.handleRadioStart()

	case protocol.OpRadioStop:
		return d.handleRadioStop()

	case protocol.OpLatest:
		if !d.started.Load() {
			return protocol.Error(protocol.CodeNotStarted)
		}
		snap, ok := d.reg.ReadLatest()
		if !ok {
			return protocol.Error(protocol.CodeNoDataYet)
		}
		return protocol.OK(protocol.EncodeSnapshot(snap))

	case protocol.OpLatestFor:
		if !d.started.Load() {
			return protocol.Error(protocol.CodeNotStarted)
		}
		if len(req) < 3 {
			return protocol.Error(protocol.CodeMalformedRequest)
		}
		id := binary.BigEndian.Uint16(req[1:3])
		snap, ok := d.reg.ReadByDeviceID(id)
		if !ok {
			return protocol.Error(protocol.CodeNotFound)
		}
		return protocol.OK(protocol.EncodeSnapshot(snap))

	default:
		d.logger.WithField("opcode", opcode).Debug("unknown opcode")
		return protocol.Error(protocol.CodeUnknownOpcode)
	}
}

// handleRadioStart is idempotent: the first call brings the radio up
// and begins discovery, later calls merely reissue the discovery
// request.
func (d *Dispatcher) handleRadioStart() []byte {
	d.startMu.Lock()
	defer d.startMu.Unlock()

	if !d.started.Load() {
		if err := d.radio.Start(); err != nil {
			d.logger.WithError(err).Error("radio bring-up failed")
			return protocol.Error(protocol.CodeRadioInitFailed)
		}
		d.started.Store(true)
	} else if err := d.radio.Restart(); err != nil {
		// Discovery restart failures are logged, not surfaced; the
		// stack itself is still up.
		d.logger.WithError(err).Warn("discovery restart failed")
	}

	return protocol.OK(okPayload)
}

func (d *Dispatcher) handleRadioStop() []byte {
	d.startMu.Lock()
	defer d.startMu.Unlock()

	if !d.started.Load() {
		return protocol.Error(protocol.CodeNotStarted)
	}
	if err := d.radio.Stop(); err != nil {
		d.logger.WithError(err).Warn("discovery cancel failed")
	}
	return protocol.OK(okPayload)
}

// Started reports whether RADIO_START has succeeded.
func (d *Dispatcher) Started() bool {
	return d.started.Load()
}
