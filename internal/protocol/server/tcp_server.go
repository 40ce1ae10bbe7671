package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"devicegateway/internal/broadcast"
)

type TCPServer struct {
	cfg       Config
	publisher broadcast.Publisher
	log       *logrus.Entry
	listener  net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	stopped bool
	wg      sync.WaitGroup

	stopOnce sync.Once
}

func NewTCPServer(cfg Config, publisher broadcast.Publisher, logger *logrus.Entry) *TCPServer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TCPServer{
		cfg:       cfg,
		publisher: publisher,
		log:       logger.WithField("component", "tcp"),
		conns:     make(map[net.Conn]struct{}),
	}
}

// Start binds the listening address and runs the accept loop in the background.
func (s *TCPServer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = listener

	s.log.WithField("addr", listener.Addr().String()).Info("TCP server listening")

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open device connection, then waits for
// their sessions to finish.
func (s *TCPServer) Stop() {
	s.stopOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Lock()
		s.stopped = true
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		s.log.Info("TCP server stopped")
	})
}

func (s *TCPServer) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.log.WithError(err).WithField("retry_in", backoff).Error("Error accepting connection")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.track(conn) {
			conn.Close()
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	NewSession(conn, s.publisher, s.cfg, s.log).Run()
}

// track registers conn unless the server is stopping.
func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}
