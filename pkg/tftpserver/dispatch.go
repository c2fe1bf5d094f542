package tftpserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/gotftp/gotftp/pkg/tftpengine"
	"github.com/gotftp/gotftp/pkg/tftpstore"
	"github.com/gotftp/gotftp/pkg/tftpwire"
)

// dispatch decodes one inbound datagram and, if it is a well-formed
// RRQ/WRQ, runs a full transfer for it on a fresh per-transfer socket.
// A malformed datagram is dropped silently; there is no transfer yet to
// reply on. A cleanly-decoded packet that is not a request (a stray
// ACK/DATA/ERROR/OACK with no matching transfer) gets ERROR(4) on the
// rendezvous socket, per RFC 1350 §4.
func (s *Server) dispatch(ctx context.Context, peer net.Addr, datagram []byte) {
	pkt, err := tftpwire.Decode(datagram)
	if err != nil {
		s.log.Debugf("dropping malformed datagram from %s: %s", peer, err.Error())

		return
	}

	req, ok := pkt.(*tftpwire.Request)
	if !ok {
		s.log.Debugf("rejecting unexpected %s from %s outside any transfer", pkt.Opcode(), peer)
		_, _ = s.rendezvous.WriteTo(tftpwire.EncodeError(tftpwire.ErrCodeIllegalOperation, "unexpected "+pkt.Opcode().String()+" outside any transfer"), peer)

		return
	}

	sessionID := uuid.NewString()
	log := s.log.With("session", sessionID, "peer", peer.String(), "op", req.Op.String(), "file", req.Filename)

	xfer, err := net.ListenPacket("udp", ":0")
	if err != nil {
		log.Errorf("could not open transfer socket: %s", err.Error())

		return
	}
	defer func() { _ = xfer.Close() }()

	if req.Mode != tftpwire.ModeNetASCII && req.Mode != tftpwire.ModeOctet {
		log.Infof("rejecting %s for %s: unsupported mode %q", req.Op, req.Filename, req.Mode)
		_, _ = xfer.WriteTo(tftpwire.EncodeError(tftpwire.ErrCodeIllegalOperation, "unsupported mode: "+string(req.Mode)), peer)

		return
	}

	var engine *tftpengine.Engine
	var unlock func()

	switch req.Op {
	case tftpwire.OpRRQ:
		reader, openErr := s.store.OpenReader(ctx, req.Filename)
		if openErr != nil {
			log.Infof("RRQ rejected: %s", openErr.Error())
			sendOpenError(xfer, peer, openErr)

			return
		}

		engine = tftpengine.NewReaderResponder(xfer, peer, reader, s.cfg.Engine, log)

	case tftpwire.OpWRQ:
		if !s.locks.tryLock(req.Filename) {
			log.Infof("WRQ rejected: %s is already being written", req.Filename)
			sendBusy(xfer, peer, req.Filename)

			return
		}

		unlock = func() { s.locks.unlock(req.Filename) }

		writer, openErr := s.store.OpenWriter(ctx, req.Filename)
		if openErr != nil {
			unlock()
			log.Infof("WRQ rejected: %s", openErr.Error())
			sendOpenError(xfer, peer, openErr)

			return
		}

		engine = tftpengine.NewWriterResponder(xfer, peer, writer, s.cfg.Engine, log)

	default:
		log.Debugf("dropping request with unsupported opcode %s", req.Op.String())

		return
	}

	start := time.Now()
	s.metrics.RequestStarted(req.Op.String())

	runErr := engine.RunResponder(ctx, req.Options)

	if unlock != nil {
		unlock()
	}

	s.metrics.RequestFinished(req.Op.String(), time.Since(start), runErr)
	s.metrics.RecordBytes(req.Op.String(), engine.BytesTransferred())

	switch {
	case runErr == nil:
		log.Infow("transfer completed", "duration", time.Since(start))
	case errors.Is(runErr, tftpengine.ErrPeerUnreachable):
		log.Warnf("transfer abandoned: %s", runErr.Error())
	default:
		log.Errorf("transfer failed: %s", runErr.Error())
	}
}

func sendOpenError(conn net.PacketConn, peer net.Addr, err error) {
	code := tftpwire.ErrCodeNotDefined

	switch {
	case errors.Is(err, tftpstore.ErrNotFound):
		code = tftpwire.ErrCodeFileNotFound
	case errors.Is(err, tftpstore.ErrExists):
		code = tftpwire.ErrCodeFileAlreadyExists
	case errors.Is(err, tftpstore.ErrInvalidPath):
		code = tftpwire.ErrCodeAccessViolation
	}

	_, _ = conn.WriteTo(tftpwire.EncodeError(code, err.Error()), peer)
}

func sendBusy(conn net.PacketConn, peer net.Addr, filename string) {
	_, _ = conn.WriteTo(tftpwire.EncodeError(tftpwire.ErrCodeFileAlreadyExists, "file is locked by a concurrent write: "+filename), peer)
}
