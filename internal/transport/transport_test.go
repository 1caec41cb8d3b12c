package transport_test

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/srg/swbot/internal/dispatch"
	"github.com/srg/swbot/internal/registry"
	"github.com/srg/swbot/internal/testutils"
	"github.com/srg/swbot/internal/transport"
	"github.com/srg/swbot/pkg/adv"
	suitelib "github.com/stretchr/testify/suite"
)

type nopRadio struct{}

func (nopRadio) Start() error   { return nil }
func (nopRadio) Restart() error { return nil }
func (nopRadio) Stop() error    { return nil }

type TransportTestSuite struct {
	suitelib.Suite

	reg    *registry.Registry
	server *transport.Server
	addr   string

	serveErr chan error
}

func (suite *TransportTestSuite) SetupTest() {
	helper := testutils.NewTestHelper(suite.T())

	suite.reg = registry.New(0x0969, helper.Logger)
	disp := dispatch.New(suite.reg, nopRadio{}, helper.Logger)
	suite.server = transport.NewServer(disp, helper.Logger)

	suite.Require().NoError(suite.server.Listen("127.0.0.1:0"))
	suite.addr = suite.server.Addr().String()

	suite.serveErr = make(chan error, 1)
	go func() { suite.serveErr <- suite.server.Serve() }()
}

func (suite *TransportTestSuite) TearDownTest() {
	suite.Require().NoError(suite.server.Shutdown())
	suite.Require().NoError(<-suite.serveErr)
}

func (suite *TransportTestSuite) dial() *transport.Client {
	client, err := transport.Dial(suite.addr, time.Second)
	suite.Require().NoError(err)
	suite.T().Cleanup(func() { _ = client.Close() })
	return client
}

func (suite *TransportTestSuite) TestPing() {
	client := suite.dial()

	pong, err := client.Ping()
	suite.NoError(err)
	suite.Equal([]byte("PONG"), pong)
}

func (suite *TransportTestSuite) TestEchoRoundTrip() {
	client := suite.dial()

	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	got, err := client.Echo(body)
	suite.NoError(err)
	suite.Equal(body, got)
}

func (suite *TransportTestSuite) TestErrorCodesMapToSentinels() {
	client := suite.dial()

	_, err := client.Latest()
	suite.ErrorIs(err, dispatch.ErrNotStarted)

	suite.Require().NoError(client.Start())

	_, err = client.Latest()
	suite.ErrorIs(err, dispatch.ErrNoDataYet)

	_, err = client.LatestFor(0x1234)
	suite.ErrorIs(err, dispatch.ErrNotFound)
}

func (suite *TransportTestSuite) TestStopBeforeStart() {
	client := suite.dial()

	suite.ErrorIs(client.Stop(), dispatch.ErrNotStarted)
}

func (suite *TransportTestSuite) TestLatestEndToEnd() {
	a := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	mfg := []byte{0x69, 0x09, 0, 0, 0, 0, 0x12, 0x34}
	suite.reg.Ingest(a, -60, adv.Extract{Manufacturer: mfg, HasManufacturer: true})
	suite.reg.Ingest(a, -58, adv.Extract{Service: []byte{0xAA, 0xBB}, HasService: true})

	client := suite.dial()
	suite.Require().NoError(client.Start())

	snap, err := client.Latest()
	suite.Require().NoError(err)
	suite.Equal(a, snap.Addr)
	suite.Equal(int8(-58), snap.RSSI)
	suite.Equal([]byte{0xAA, 0xBB}, snap.Service)
	suite.Equal(mfg, snap.Manufacturer)

	byID, err := client.LatestFor(0x1234)
	suite.Require().NoError(err)
	suite.Equal(snap, byID)
}

func (suite *TransportTestSuite) TestUnknownOpcodeOverWire() {
	client := suite.dial()

	reply, err := client.Call([]byte{0x7F})
	suite.Require().NoError(err)
	suite.Equal([]byte{0x01, 0x12}, reply)
}

func (suite *TransportTestSuite) TestOversizedFrameClosesConnection() {
	conn, err := net.Dial("tcp", suite.addr)
	suite.Require().NoError(err)
	defer func() { _ = conn.Close() }()

	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(transport.MaxFrame+1))
	_, err = conn.Write(hdr[:])
	suite.Require().NoError(err)

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, err = conn.Read(make([]byte, 1))
	suite.ErrorIs(err, io.EOF)
}

func (suite *TransportTestSuite) TestZeroLengthFrameClosesConnection() {
	conn, err := net.Dial("tcp", suite.addr)
	suite.Require().NoError(err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte{0x00, 0x00})
	suite.Require().NoError(err)

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, err = conn.Read(make([]byte, 1))
	suite.ErrorIs(err, io.EOF)
}

func (suite *TransportTestSuite) TestConcurrentClients() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		client := suite.dial()
		wg.Add(1)
		go func(n byte) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				body := []byte{n, byte(j)}
				got, err := client.Echo(body)
				suite.NoError(err)
				suite.Equal(body, got)
			}
		}(byte(i))
	}
	wg.Wait()
}

func TestTransportTestSuite(t *testing.T) {
	suitelib.Run(t, new(TransportTestSuite))
}
