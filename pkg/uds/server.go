package uds

import (
	"context"
	"errors"
	"net"
	"os"

	"bookcore/pkg/exception"
)

// Handler consumes one accepted feed connection. The connection is closed
// after the handler returns.
type Handler func(ctx context.Context, conn *net.UnixConn) error

// Server accepts feed connections on a Unix domain socket.
type Server struct {
	addr net.UnixAddr
	ln   *net.UnixListener
}

// NewServer creates a server for the provided socket path.
func NewServer(path string) (*Server, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Server{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

// Path returns the configured socket path.
func (s *Server) Path() string {
	if s == nil {
		return ""
	}
	return s.addr.Name
}

// Listen binds the socket, replacing a stale socket file left at the path.
func (s *Server) Listen() error {
	switch {
	case s == nil:
		return exception.ErrNilServerUDS
	case s.ln != nil:
		return exception.ErrAlreadyListeningUDS
	}
	if err := RemoveIfExists(s.addr.Name); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &s.addr)
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)
	s.ln = ln
	return nil
}

// Accept waits for the next incoming connection.
func (s *Server) Accept() (*net.UnixConn, error) {
	switch {
	case s == nil:
		return nil, exception.ErrNilServerUDS
	case s.ln == nil:
		return nil, exception.ErrNotListeningUDS
	}
	return s.ln.AcceptUnix()
}

// Serve handles connections one at a time until ctx is done, keeping a
// single writer behind the socket. Cancelling ctx closes the listener and
// the active connection. A handler error ends Serve.
func (s *Server) Serve(ctx context.Context, handle Handler) error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	ln := s.ln
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := serveConn(ctx, conn, handle); err != nil {
			return err
		}
	}
}

func serveConn(ctx context.Context, conn *net.UnixConn, handle Handler) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	return handle(ctx, conn)
}

// Close stops the listener and unlinks the socket file.
func (s *Server) Close() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// RemoveIfExists removes the socket file if it exists.
func RemoveIfExists(path string) error {
	if path == "" {
		return exception.ErrEmptyPathUDS
	}
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return exception.ErrPathNotSocketUDS
	}
	return os.Remove(path)
}
