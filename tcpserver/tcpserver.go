// Package tcpserver runs the coordinator's length-prefixed protocol
// listener: accept loop, one goroutine per connection, graceful
// shutdown via a context-based drain over a WaitGroup of in-flight
// connections.
package tcpserver

import (
	"context"
	"net"
	"sync"

	"renderfarm/dispatcher"
	"renderfarm/logger"
	"renderfarm/protocol"
)

// Server accepts TCP connections and serves one request per connection
// through a Dispatcher.
type Server struct {
	addr     string
	disp     *dispatcher.Dispatcher
	ln       net.Listener
	wg       sync.WaitGroup
	closed   chan struct{}
	stopOnce sync.Once
}

// New returns a Server bound to addr, not yet listening.
func New(addr string, disp *dispatcher.Dispatcher) *Server {
	return &Server{addr: addr, disp: disp, closed: make(chan struct{})}
}

// ListenAndServe binds the listener and runs the accept loop until
// Stop is called or the listener errors. It blocks until the accept
// loop exits.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln

	logger.Infof("tcpserver: listening on %s", s.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				logger.Errorf("tcpserver: accept: %v", err)
				return err
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	payload, err := protocol.ReadFrame(conn)
	if err != nil {
		logger.Warnf("tcpserver: read frame from %s: %v", conn.RemoteAddr(), err)
		return
	}

	resp, ok := s.disp.Handle(payload)
	if !ok {
		return
	}

	data, err := protocol.Encode(resp)
	if err != nil {
		logger.Errorf("tcpserver: encode response: %v", err)
		return
	}
	if err := protocol.WriteFrame(conn, data); err != nil {
		logger.Warnf("tcpserver: write frame to %s: %v", conn.RemoteAddr(), err)
	}
}

// Stop closes the listener, unblocking ListenAndServe, and waits (up to
// ctx's deadline) for every in-flight connection handler to finish. It
// is safe to call more than once; only the first call closes anything.
func (s *Server) Stop(ctx context.Context) error {
	var closeErr error
	s.stopOnce.Do(func() {
		close(s.closed)
		if s.ln != nil {
			closeErr = s.ln.Close()
		}
	})
	if closeErr != nil {
		return closeErr
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
