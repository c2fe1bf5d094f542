// Package tftpserver implements the TFTP listener/dispatcher: it owns
// the well-known rendezvous socket, decodes inbound RRQ/WRQ packets,
// opens the requested file stream, and spawns one tftpengine.Engine per
// accepted transfer on a fresh ephemeral socket.
package tftpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/gotftp/gotftp/pkg/tftpengine"
	"github.com/gotftp/gotftp/pkg/tftpstore"
	"github.com/gotftp/gotftp/pkg/tftpwire"
)

// Config holds the listener's tunables, independent of any one transfer.
type Config struct {
	// ListenAddr is the rendezvous address, e.g. ":69" or "127.0.0.1:6969".
	ListenAddr string

	// Engine is forwarded verbatim to every spawned transfer engine.
	Engine tftpengine.Config

	// ReusePort enables SO_REUSEPORT on the rendezvous socket so several
	// listener processes can share one port, as the teacher's server did.
	ReusePort bool
}

// Server is the TFTP listener/dispatcher.
type Server struct {
	cfg   Config
	store tftpstore.Store
	log   *zap.SugaredLogger

	rendezvous net.PacketConn
	locks      *pathLockTable
	metrics    *Metrics

	group    *errgroup.Group
	groupCtx context.Context

	ready chan struct{}
	addr  net.Addr
}

// New builds a Server. metrics may be nil to disable Prometheus
// instrumentation.
func New(cfg Config, store tftpstore.Store, log *zap.SugaredLogger, metrics *Metrics) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Server{cfg: cfg, store: store, log: log, locks: newPathLockTable(), metrics: metrics, ready: make(chan struct{})}
}

// Addr blocks until the rendezvous socket is bound (or ctx is done) and
// returns its address. Useful in tests that bind to ":0" and need the
// chosen ephemeral port.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		return s.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListenAndServe opens the rendezvous socket and dispatches inbound
// requests until ctx is cancelled or the socket is closed (e.g. by
// Shutdown); other read errors are logged and skipped. It blocks until
// every in-flight transfer has drained.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{}
	if s.cfg.ReusePort {
		lc.Control = controlReusePort
	}

	conn, err := lc.ListenPacket(ctx, "udp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("tftpserver: listen on %s: %w", s.cfg.ListenAddr, err)
	}

	s.rendezvous = conn
	s.addr = conn.LocalAddr()
	close(s.ready)

	group, groupCtx := errgroup.WithContext(ctx)
	s.group = group
	s.groupCtx = groupCtx

	stopClose := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopClose()

	buf := make([]byte, tftpwire.MaxBlksize+tftpwire.HeaderSize)

	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}

			s.log.Errorf("rendezvous read failed: %s", err.Error())

			continue
		}

		if n == 0 {
			continue
		}

		datagram := append([]byte(nil), buf[:n]...)
		peer := addr

		group.Go(func() error {
			s.dispatch(groupCtx, peer, datagram)

			return nil
		})
	}

	return group.Wait()
}

// Shutdown requests a graceful stop: in-flight transfers are allowed to
// finish (their engines observe ctx cancellation individually) and
// ListenAndServe's errgroup drains before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rendezvous != nil {
		if err := s.rendezvous.Close(); err != nil {
			return err
		}
	}

	if s.group != nil {
		return s.group.Wait()
	}

	return nil
}

func controlReusePort(_, _ string, c syscall.RawConn) error {
	var opErr error

	err := c.Control(func(fd uintptr) {
		opErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}

	return opErr
}
