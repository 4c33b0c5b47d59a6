package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

const (
	// DefaultSocketPath is the well-known control socket location.
	DefaultSocketPath = "/tmp/duomic.sock"

	// acceptInterval bounds how long the accept loop waits before
	// re-checking for shutdown.
	acceptInterval = time.Second

	// connDeadline bounds the single read/write of one connection.
	connDeadline = 5 * time.Second

	maxCommandBytes = 1024
)

// Server accepts local control connections and applies commands to the
// registry. One command per connection: read once, dispatch, write once,
// close.
type Server struct {
	path string
	reg  Registry
	ln   *net.UnixListener
}

// NewServer creates a control server for the socket at path. An empty
// path selects DefaultSocketPath.
func NewServer(path string, reg Registry) *Server {
	if path == "" {
		path = DefaultSocketPath
	}
	return &Server{path: path, reg: reg}
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Listen binds the socket, replacing a stale one from a previous run.
// A bind failure here is the operator's startup diagnostic; the caller
// decides whether to continue without a control plane.
func (s *Server) Listen() error {
	// A leftover socket from an unclean shutdown would fail the bind.
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("control: remove stale socket %s: %w", s.path, err)
	}

	addr := &net.UnixAddr{Name: s.path, Net: "unix"}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("control: bind %s: %w", s.path, err)
	}
	// Local operators of any uid may manage devices.
	if err := os.Chmod(s.path, 0o666); err != nil {
		slog.Warn("control: could not chmod socket", "path", s.path, "err", err)
	}

	s.ln = ln
	slog.Info("control: listening", "socket", s.path)
	return nil
}

// Serve runs the accept loop until ctx is cancelled, then closes and
// unlinks the socket. Each connection is handled fully before the next
// accept. Listen must have succeeded first.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("control: Serve before Listen")
	}
	defer func() {
		s.ln.Close()
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("control: could not unlink socket", "path", s.path, "err", err)
		}
		slog.Info("control: stopped", "socket", s.path)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		// Bounded wait so cancellation is observed within one interval.
		if err := s.ln.SetDeadline(time.Now().Add(acceptInterval)); err != nil {
			return fmt.Errorf("control: set accept deadline: %w", err)
		}
		conn, err := s.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("control: accept failed", "err", err)
			continue
		}
		s.handle(ctx, conn)
	}
}

// handle runs one connection: Accepted → CommandRead → Dispatched →
// ResponseWritten → Closed. No pipelining, no partial-command buffering
// beyond the single fixed-size read.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connDeadline))

	buf := make([]byte, maxCommandBytes)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}

	resp := Dispatch(ctx, s.reg, string(buf[:n]))
	if _, err := conn.Write([]byte(resp)); err != nil {
		slog.Debug("control: response write failed", "err", err)
	}
}
