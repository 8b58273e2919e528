package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/pocketnode/core/internal/ports"
)

// SocketServer accepts channel sessions over a unix domain socket.
type SocketServer struct {
	core       *Core
	socketPath string
	logger     ports.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewSocketServer creates a socket server for the given path.
func NewSocketServer(core *Core, socketPath string, logger ports.Logger) *SocketServer {
	return &SocketServer{
		core:       core,
		socketPath: socketPath,
		logger:     logger,
	}
}

// Start begins listening for connections.
func (s *SocketServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("server is closed")
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove a stale socket file from a previous run.
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// Stop stops the server and waits for sessions to finish.
func (s *SocketServer) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	_ = os.RemoveAll(s.socketPath)
	return nil
}

// SocketPath returns the socket path.
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// acceptLoop accepts incoming connections.
func (s *SocketServer) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { _ = conn.Close() }()

			if err := s.core.Serve(ctx, conn, conn); err != nil {
				s.logger.Debug(ctx, "channel session ended",
					ports.F("error", err.Error()))
			}
		}()
	}
}
