package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/srg/swbot/internal/dispatch"
	"github.com/srg/swbot/internal/protocol"
	"github.com/srg/swbot/internal/registry"
)

// Client is a synchronous command-protocol client. Calls are
// serialized per connection, matching the one-request one-reply frame
// discipline.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a command server.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call performs one raw frame round-trip and returns the reply
// envelope bytes.
func (c *Client) Call(req []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFrame(c.conn, req); err != nil {
		return nil, err
	}
	return readFrame(c.r)
}

// do performs one request and unwraps the reply envelope, mapping
// error codes back to their sentinels.
func (c *Client) do(req []byte) ([]byte, error) {
	reply, err := c.Call(req)
	if err != nil {
		return nil, err
	}

	switch {
	case reply[0] == protocol.StatusOK:
		return reply[1:], nil
	case reply[0] == protocol.StatusError && len(reply) >= 2:
		return nil, dispatch.ErrorFromCode(reply[1])
	default:
		return nil, errors.New("transport: malformed reply envelope")
	}
}

// Ping returns the server's acknowledgement token.
func (c *Client) Ping() ([]byte, error) {
	return c.do([]byte{protocol.OpPing})
}

// Echo returns body exactly as the server received it.
func (c *Client) Echo(body []byte) ([]byte, error) {
	req := append([]byte{protocol.OpEcho}, body...)
	return c.do(req)
}

// Start issues RADIO_START.
func (c *Client) Start() error {
	_, err := c.do([]byte{protocol.OpRadioStart})
	return err
}

// Stop issues RADIO_STOP.
func (c *Client) Stop() error {
	_, err := c.do([]byte{protocol.OpRadioStop})
	return err
}

// Latest fetches the most recently completed reading.
func (c *Client) Latest() (registry.Snapshot, error) {
	payload, err := c.do([]byte{protocol.OpLatest})
	if err != nil {
		return registry.Snapshot{}, err
	}
	return protocol.DecodeSnapshot(payload)
}

// LatestFor fetches the completed reading for one device id.
func (c *Client) LatestFor(id uint16) (registry.Snapshot, error) {
	req := make([]byte, 3)
	req[0] = protocol.OpLatestFor
	binary.BigEndian.PutUint16(req[1:], id)

	payload, err := c.do(req)
	if err != nil {
		return registry.Snapshot{}, err
	}
	return protocol.DecodeSnapshot(payload)
}
