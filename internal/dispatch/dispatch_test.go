package dispatch_test

import (
	"errors"
	"testing"

	"github.com/srg/swbot/internal/dispatch"
	"github.com/srg/swbot/internal/protocol"
	"github.com/srg/swbot/internal/registry"
	"github.com/srg/swbot/internal/testutils"
	"github.com/srg/swbot/pkg/adv"
	"github.com/stretchr/testify/assert"
	suitelib "github.com/stretchr/testify/suite"
)

// fakeRadio counts collaborator calls and can be told to fail
// bring-up.
type fakeRadio struct {
	startCalls   int
	restartCalls int
	stopCalls    int
	startErr     error
}

func (f *fakeRadio) Start() error   { f.startCalls++; return f.startErr }
func (f *fakeRadio) Restart() error { f.restartCalls++; return nil }
func (f *fakeRadio) Stop() error    { f.stopCalls++; return nil }

type DispatchTestSuite struct {
	suitelib.Suite

	reg   *registry.Registry
	radio *fakeRadio
	disp  *dispatch.Dispatcher
}

func (suite *DispatchTestSuite) SetupTest() {
	helper := testutils.NewTestHelper(suite.T())
	suite.reg = registry.New(0x0969, helper.Logger)
	suite.radio = &fakeRadio{}
	suite.disp = dispatch.New(suite.reg, suite.radio, helper.Logger)
}

// ingestMerged feeds both advertisement halves for one device so the
// registry holds a completed reading.
func (suite *DispatchTestSuite) ingestMerged(last byte, id uint16) [6]byte {
	a := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, last}
	suite.reg.Ingest(a, -60, adv.Extract{
		Manufacturer:    []byte{0x69, 0x09, 0, 0, 0, 0, byte(id >> 8), byte(id)},
		HasManufacturer: true,
	})
	suite.reg.Ingest(a, -58, adv.Extract{Service: []byte{0xAA, 0xBB}, HasService: true})
	return a
}

func (suite *DispatchTestSuite) start() {
	reply := suite.disp.Handle([]byte{protocol.OpRadioStart})
	suite.Require().Equal([]byte{0x00, 0x01}, reply)
}

func (suite *DispatchTestSuite) TestPing() {
	reply := suite.disp.Handle([]byte{protocol.OpPing})
	suite.Equal([]byte{0x00, 'P', 'O', 'N', 'G'}, reply)
}

func (suite *DispatchTestSuite) TestEcho() {
	reply := suite.disp.Handle([]byte{protocol.OpEcho, 0xDE, 0xAD, 0xBE, 0xEF})
	suite.Equal([]byte{0x00, 0xDE, 0xAD, 0xBE, 0xEF}, reply)
}

func (suite *DispatchTestSuite) TestEchoEmptyBody() {
	reply := suite.disp.Handle([]byte{protocol.OpEcho})
	suite.Equal([]byte{0x00}, reply)
}

func (suite *DispatchTestSuite) TestEmptyRequest() {
	reply := suite.disp.Handle(nil)
	suite.Equal(protocol.Error(protocol.CodeMalformedRequest), reply)
}

func (suite *DispatchTestSuite) TestUnknownOpcode() {
	reply := suite.disp.Handle([]byte{0x7F})
	suite.Equal(protocol.Error(protocol.CodeUnknownOpcode), reply)
}

func (suite *DispatchTestSuite) TestRadioStartIsIdempotent() {
	suite.start()
	suite.Equal(1, suite.radio.startCalls)
	suite.Equal(0, suite.radio.restartCalls)
	suite.True(suite.disp.Started())

	// Second start reissues discovery instead of bringing up again.
	suite.start()
	suite.Equal(1, suite.radio.startCalls)
	suite.Equal(1, suite.radio.restartCalls)
}

func (suite *DispatchTestSuite) TestRadioStartFailureIsRetriable() {
	suite.radio.startErr = errors.New("hci socket unavailable")

	reply := suite.disp.Handle([]byte{protocol.OpRadioStart})
	suite.Equal(protocol.Error(protocol.CodeRadioInitFailed), reply)
	suite.False(suite.disp.Started())

	// A later start may succeed.
	suite.radio.startErr = nil
	suite.start()
	suite.Equal(2, suite.radio.startCalls)
}

func (suite *DispatchTestSuite) TestRadioStopBeforeStart() {
	reply := suite.disp.Handle([]byte{protocol.OpRadioStop})
	suite.Equal(protocol.Error(protocol.CodeNotStarted), reply)
	suite.Equal(0, suite.radio.stopCalls)
}

func (suite *DispatchTestSuite) TestRadioStop() {
	suite.start()

	reply := suite.disp.Handle([]byte{protocol.OpRadioStop})
	suite.Equal([]byte{0x00, 0x01}, reply)
	suite.Equal(1, suite.radio.stopCalls)

	// Stop cancels discovery, it does not reset the started state.
	reply = suite.disp.Handle([]byte{protocol.OpRadioStop})
	suite.Equal([]byte{0x00, 0x01}, reply)
}

func (suite *DispatchTestSuite) TestLatestRequiresStart() {
	reply := suite.disp.Handle([]byte{protocol.OpLatest})
	suite.Equal(protocol.Error(protocol.CodeNotStarted), reply)
}

func (suite *DispatchTestSuite) TestLatestNoDataYet() {
	suite.start()

	reply := suite.disp.Handle([]byte{protocol.OpLatest})
	suite.Equal(protocol.Error(protocol.CodeNoDataYet), reply)
}

func (suite *DispatchTestSuite) TestLatest() {
	suite.start()
	a := suite.ingestMerged(0x55, 0x1234)

	reply := suite.disp.Handle([]byte{protocol.OpLatest})
	suite.Require().NotEmpty(reply)
	suite.Equal(protocol.StatusOK, reply[0])

	snap, err := protocol.DecodeSnapshot(reply[1:])
	suite.Require().NoError(err)
	suite.Equal(a, snap.Addr)
	suite.Equal(int8(-58), snap.RSSI)
	suite.Equal([]byte{0xAA, 0xBB}, snap.Service)
	suite.Equal(uint16(0x1234), snap.DeviceID)
}

func (suite *DispatchTestSuite) TestLatestForRequiresStart() {
	reply := suite.disp.Handle([]byte{protocol.OpLatestFor, 0x12, 0x34})
	suite.Equal(protocol.Error(protocol.CodeNotStarted), reply)
}

func (suite *DispatchTestSuite) TestLatestForMalformedBody() {
	suite.start()

	reply := suite.disp.Handle([]byte{protocol.OpLatestFor, 0x12})
	suite.Equal(protocol.Error(protocol.CodeMalformedRequest), reply)
}

func (suite *DispatchTestSuite) TestLatestForNotFound() {
	suite.start()
	suite.ingestMerged(0x55, 0x1234)

	reply := suite.disp.Handle([]byte{protocol.OpLatestFor, 0xBE, 0xEF})
	suite.Equal(protocol.Error(protocol.CodeNotFound), reply)
}

func (suite *DispatchTestSuite) TestLatestForFindsDevice() {
	suite.start()
	suite.ingestMerged(0x55, 0x1234)
	b := suite.ingestMerged(0x66, 0xBEEF)

	reply := suite.disp.Handle([]byte{protocol.OpLatestFor, 0xBE, 0xEF})
	suite.Require().Equal(protocol.StatusOK, reply[0])

	snap, err := protocol.DecodeSnapshot(reply[1:])
	suite.Require().NoError(err)
	suite.Equal(b, snap.Addr)
	suite.Equal(uint16(0xBEEF), snap.DeviceID)
}

func TestDispatchTestSuite(t *testing.T) {
	suitelib.Run(t, new(DispatchTestSuite))
}

func TestProtocolErrorIs(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), dispatch.ErrNotStarted)
	assert.True(t, errors.Is(wrapped, dispatch.ErrNotStarted))
	assert.False(t, errors.Is(wrapped, dispatch.ErrNoDataYet))

	code, ok := dispatch.CodeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, protocol.CodeNotStarted, code)
}

func TestErrorFromCode(t *testing.T) {
	assert.ErrorIs(t, dispatch.ErrorFromCode(protocol.CodeNotFound), dispatch.ErrNotFound)

	unknown := dispatch.ErrorFromCode(0x7E)
	code, ok := dispatch.CodeOf(unknown)
	assert.True(t, ok)
	assert.Equal(t, byte(0x7E), code)
}
