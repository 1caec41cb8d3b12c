// Package transport carries the command protocol over TCP. Frames are
// a big-endian u16 length followed by the body, in both directions;
// each request frame is handed to the dispatcher and its reply framed
// back on the same connection.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// MaxFrame bounds a frame body. Requests are an opcode plus a short
// payload and replies top out at an envelope plus one snapshot, so
// anything near the limit is a broken or hostile peer.
const MaxFrame = 4096

// Handler processes one request body and returns the reply body.
type Handler interface {
	Handle(req []byte) []byte
}

// Server accepts command connections and pumps frames through the
// handler, one goroutine per connection.
type Server struct {
	handler Handler
	logger  *logrus.Logger

	mu sync.Mutex
	ln net.Listener

	conns *hashmap.Map[string, net.Conn]
	wg    sync.WaitGroup
}

// NewServer creates a server that serves handler on addr once started.
func NewServer(handler Handler, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		handler: handler,
		logger:  logger,
		conns:   hashmap.New[string, net.Conn](),
	}
}

// Listen binds addr. It is separate from Serve so callers can learn
// the bound address (":0" in tests) before serving.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.WithField("addr", ln.Addr().String()).Info("command server listening")
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("transport: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		remote := conn.RemoteAddr().String()
		s.conns.Set(remote, conn)
		s.logger.WithFields(logrus.Fields{
			"remote": remote,
			"conns":  s.conns.Len(),
		}).Debug("connection accepted")

		s.wg.Add(1)
		go s.serveConn(conn, remote)
	}
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown closes the listener and every live connection, then waits
// for the connection goroutines to drain.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.conns.Range(func(_ string, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	s.wg.Wait()
	return err
}

func (s *Server) serveConn(conn net.Conn, remote string) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		s.conns.Del(remote)
		s.logger.WithField("remote", remote).Debug("connection closed")
	}()

	r := bufio.NewReader(conn)
	for {
		req, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.WithError(err).WithField("remote", remote).
					Debug("dropping connection")
			}
			return
		}

		reply := s.handler.Handle(req)
		if err := writeFrame(conn, reply); err != nil {
			s.logger.WithError(err).WithField("remote", remote).
				Debug("reply write failed")
			return
		}
	}
}

// readFrame reads one length-prefixed frame. Zero-length and oversized
// frames are errors; the caller closes the connection.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n == 0 {
		return nil, errors.New("transport: zero-length frame")
	}
	if n > MaxFrame {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds limit", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrame {
		return fmt.Errorf("transport: frame of %d bytes exceeds limit", len(body))
	}

	buf := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(buf, uint16(len(body)))
	copy(buf[2:], body)

	_, err := w.Write(buf)
	return err
}
