// Package tftpengine implements the per-connection TFTP protocol state
// machine: option negotiation, lock-step DATA/ACK exchange, timeout-driven
// retransmission, 16-bit block-number wrap and error translation. One
// Engine drives exactly one transfer, server-side or client-side.
package tftpengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gotftp/gotftp/pkg/tftpwire"
)

// Role identifies which direction of the transfer this engine drives.
// It is independent of client/server: a client doing GET is a WRITER
// (it receives DATA), a client doing PUT is a READER (it sends DATA).
type Role int

const (
	RoleReader Role = iota // engine sends DATA
	RoleWriter             // engine receives DATA
)

func (r Role) String() string {
	if r == RoleReader {
		return "reader"
	}

	return "writer"
}

// Phase is the coarse transfer lifecycle state from the data model.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseAwaitingOack
	PhaseTransferring
	PhaseDraining
	PhaseTerminated
)

// Config holds the per-engine tunables. Zero values fall back to sane
// defaults in New*.
type Config struct {
	// Blocksize is the engine's own default/offered blksize before
	// negotiation (512 if zero).
	Blocksize uint16

	// MaxBlocksize is the ceiling a requested blksize is clamped to
	// (tftpwire.MaxBlksize if zero).
	MaxBlocksize uint16

	// Timeout is the default per-packet retransmission timeout
	// (3s if zero), overridden by a negotiated timeout option.
	Timeout time.Duration

	// RetryLimit is the number of retransmissions attempted before
	// giving up on an unresponsive peer (5 if zero).
	RetryLimit int

	// HardCeiling caps the wall-clock duration of the whole transfer.
	// Zero disables the cap.
	HardCeiling time.Duration

	// MaxTsize rejects a WRQ tsize option above this many bytes with
	// ERROR(3). Zero disables the check.
	MaxTsize int64
}

// Aborter is implemented by a Writer that wants a chance to discard a
// partially-written stream on cancellation instead of merely Close()ing
// it. See the WRQ cancellation policy in SPEC_FULL.md §5.
type Aborter interface {
	Abort() error
}

var errTimeout = errors.New("tftpengine: timeout waiting for reply")

// Engine drives a single transfer to completion.
type Engine struct {
	role Role
	conn net.PacketConn
	log  *zap.SugaredLogger
	cfg  Config

	blksize    uint16
	timeout    time.Duration
	retryCount int

	reader Reader
	writer Writer

	// requestAddr is where an initiator sends its RRQ/WRQ before the
	// peer's TID is known. peer/peerLocked track the locked TID once
	// the first reply arrives (immediately, for a responder).
	requestAddr net.Addr
	peer        net.Addr
	peerLocked  bool

	expected uint16
	lastSent []byte
	recvBuf  []byte
	bytesXferred int64

	phase Phase
}

// BytesTransferred reports the number of payload bytes sent or received
// so far, for metrics.
func (e *Engine) BytesTransferred() int64 { return e.bytesXferred }

func newEngine(conn net.PacketConn, role Role, cfg Config, log *zap.SugaredLogger) *Engine {
	blk := cfg.Blocksize
	if blk == 0 {
		blk = tftpwire.DefaultBlksize
	}

	maxBlk := cfg.MaxBlocksize
	if maxBlk == 0 {
		maxBlk = tftpwire.MaxBlksize
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	retryLimit := cfg.RetryLimit
	if retryLimit == 0 {
		retryLimit = 5
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Engine{
		role: role,
		conn: conn,
		log:  log,
		cfg: Config{
			Blocksize: blk, MaxBlocksize: maxBlk, Timeout: timeout,
			RetryLimit: retryLimit, HardCeiling: cfg.HardCeiling, MaxTsize: cfg.MaxTsize,
		},
		blksize: blk,
		timeout: timeout,
		recvBuf: make([]byte, int(maxBlk)+tftpwire.HeaderSize),
		phase:   PhaseInit,
	}
}

// NewReaderResponder builds the server-side engine for an accepted RRQ:
// it will send DATA read from reader.
func NewReaderResponder(conn net.PacketConn, peer net.Addr, reader Reader, cfg Config, log *zap.SugaredLogger) *Engine {
	e := newEngine(conn, RoleReader, cfg, log)
	e.peer, e.peerLocked = peer, true
	e.reader = reader

	return e
}

// NewWriterResponder builds the server-side engine for an accepted WRQ:
// it will receive DATA and write it to writer.
func NewWriterResponder(conn net.PacketConn, peer net.Addr, writer Writer, cfg Config, log *zap.SugaredLogger) *Engine {
	e := newEngine(conn, RoleWriter, cfg, log)
	e.peer, e.peerLocked = peer, true
	e.writer = writer

	return e
}

// NewReaderInitiator builds the client-side engine for a PUT: it issues
// the WRQ itself and then sends DATA read from reader.
func NewReaderInitiator(conn net.PacketConn, serverAddr net.Addr, reader Reader, cfg Config, log *zap.SugaredLogger) *Engine {
	e := newEngine(conn, RoleReader, cfg, log)
	e.requestAddr = serverAddr
	e.reader = reader

	return e
}

// NewWriterInitiator builds the client-side engine for a GET: it issues
// the RRQ itself and then receives DATA into writer.
func NewWriterInitiator(conn net.PacketConn, serverAddr net.Addr, writer Writer, cfg Config, log *zap.SugaredLogger) *Engine {
	e := newEngine(conn, RoleWriter, cfg, log)
	e.requestAddr = serverAddr
	e.writer = writer

	return e
}

// Phase reports the engine's current lifecycle phase.
func (e *Engine) Phase() Phase { return e.phase }

// Peer reports the locked peer address, or nil before it is known.
func (e *Engine) Peer() net.Addr { return e.peer }

// RunResponder negotiates and runs a transfer for an already-received
// RRQ/WRQ whose option list is reqOpts. The engine releases its socket
// and file handle before returning, per invariant.
func (e *Engine) RunResponder(ctx context.Context, reqOpts []tftpwire.Option) error {
	stop := context.AfterFunc(ctx, func() { _ = e.conn.Close() })
	defer stop()
	defer func() { e.release(ctx.Err() != nil) }()

	e.phase = PhaseAwaitingOack

	ackOpts, err := e.negotiateResponder(reqOpts)
	if err != nil {
		return e.failLocal(err)
	}

	if len(ackOpts) == 0 {
		e.phase = PhaseTransferring
		e.expected = 1

		if e.role == RoleWriter {
			if err := e.transmit(tftpwire.EncodeAck(0)); err != nil {
				return err
			}
		}

		return e.runLoop(ctx, nil)
	}

	oack := tftpwire.EncodeOack(ackOpts)

	if e.role == RoleWriter {
		// OACK doubles as the ACK(0) the WRITER would otherwise send;
		// the peer replies with DATA(1) directly (RFC 2347).
		if err := e.transmit(oack); err != nil {
			return err
		}

		e.phase = PhaseTransferring
		e.expected = 1

		return e.runLoop(ctx, nil)
	}

	pkt, err := e.exchangeWithRetry(func() error { return e.transmit(oack) })
	if err != nil {
		return e.translateNegotiationErr(err)
	}

	ack, ok := pkt.(*tftpwire.Ack)
	if !ok || ack.Block != 0 {
		return e.protocolViolation()
	}

	e.phase = PhaseTransferring
	e.expected = 1

	return e.runLoop(ctx, nil)
}

// RunInitiator sends an RRQ/WRQ for filename/mode with opts and then
// runs the negotiated transfer. Used by the client.
func (e *Engine) RunInitiator(ctx context.Context, filename string, mode tftpwire.Mode, opts []tftpwire.Option) error {
	stop := context.AfterFunc(ctx, func() { _ = e.conn.Close() })
	defer stop()
	defer func() { e.release(ctx.Err() != nil) }()

	e.phase = PhaseAwaitingOack

	op := tftpwire.OpRRQ
	if e.role == RoleReader {
		op = tftpwire.OpWRQ
	}

	reqBytes := tftpwire.EncodeRequest(op, filename, mode, opts)

	pkt, err := e.exchangeWithRetry(func() error { return e.transmit(reqBytes) })
	if err != nil {
		return e.translateNegotiationErr(err)
	}

	switch p := pkt.(type) {
	case *tftpwire.Oack:
		e.applyNegotiatedOptions(p.Options)

		if e.role == RoleWriter {
			// GET: ack the OACK, then the server streams DATA(1).
			if err := e.transmit(tftpwire.EncodeAck(0)); err != nil {
				return err
			}
		}

		e.phase = PhaseTransferring
		e.expected = 1

		return e.runLoop(ctx, nil)

	case *tftpwire.Ack:
		if e.role != RoleReader || p.Block != 0 {
			return e.protocolViolation()
		}

		e.phase = PhaseTransferring
		e.expected = 1

		return e.runLoop(ctx, nil)

	case *tftpwire.Data:
		if e.role != RoleWriter {
			return e.protocolViolation()
		}

		e.phase = PhaseTransferring
		e.expected = 1

		return e.runLoop(ctx, p)

	default:
		return e.protocolViolation()
	}
}

// runLoop dispatches to the role-specific DataXfer loop. pending, when
// non-nil, is a DATA packet already received during negotiation fallback
// (a peer that ignored our options and replied with DATA(1) directly).
func (e *Engine) runLoop(ctx context.Context, pending *tftpwire.Data) error {
	if e.role == RoleReader {
		return e.readerLoop(ctx)
	}

	return e.writerLoop(ctx, pending)
}

// negotiateResponder computes the option values to use for this transfer
// from the peer's requested options, returning the subset to echo back
// in an OACK. Unrecognized or malformed option values are silently
// ignored, per spec.
func (e *Engine) negotiateResponder(reqOpts []tftpwire.Option) ([]tftpwire.Option, error) {
	var ack []tftpwire.Option

	for _, o := range reqOpts {
		switch strings.ToLower(o.Name) {
		case tftpwire.OptBlksize:
			n, err := strconv.ParseUint(o.Value, 10, 64)
			if err != nil {
				continue
			}

			if n > uint64(e.cfg.MaxBlocksize) {
				n = uint64(e.cfg.MaxBlocksize)
			}

			size := clampBlksize(uint16(n), e.cfg.MaxBlocksize)
			e.blksize = size
			ack = append(ack, tftpwire.Option{Name: tftpwire.OptBlksize, Value: strconv.FormatUint(uint64(size), 10)})

		case tftpwire.OptTimeout:
			n, err := strconv.ParseUint(o.Value, 10, 8)
			if err != nil || n < tftpwire.MinTimeoutSeconds || n > tftpwire.MaxTimeoutSeconds {
				continue
			}

			e.timeout = time.Duration(n) * time.Second
			ack = append(ack, tftpwire.Option{Name: tftpwire.OptTimeout, Value: o.Value})

		case tftpwire.OptTsize:
			switch e.role {
			case RoleReader:
				if size, ok := e.reader.SizeHint(); ok {
					ack = append(ack, tftpwire.Option{Name: tftpwire.OptTsize, Value: strconv.FormatInt(size, 10)})
				}
			case RoleWriter:
				n, err := strconv.ParseInt(o.Value, 10, 64)
				if err != nil {
					continue
				}

				if e.cfg.MaxTsize > 0 && n > e.cfg.MaxTsize {
					return nil, &LocalError{
						Code:    tftpwire.ErrCodeDiskFull,
						Message: fmt.Sprintf("requested tsize %d exceeds policy limit %d", n, e.cfg.MaxTsize),
					}
				}

				if err := e.writer.Preallocate(n); err != nil {
					return nil, &LocalError{Code: tftpwire.ErrCodeDiskFull, Message: "preallocate failed", Cause: err}
				}

				ack = append(ack, tftpwire.Option{Name: tftpwire.OptTsize, Value: o.Value})
			}

		default:
			// unrecognized option: silently ignored, omitted from OACK
		}
	}

	return ack, nil
}

// applyNegotiatedOptions updates engine state from an OACK the peer sent
// us in response to our own RRQ/WRQ.
func (e *Engine) applyNegotiatedOptions(opts []tftpwire.Option) {
	for _, o := range opts {
		switch strings.ToLower(o.Name) {
		case tftpwire.OptBlksize:
			if n, err := strconv.ParseUint(o.Value, 10, 16); err == nil {
				e.blksize = uint16(n)
			}
		case tftpwire.OptTimeout:
			if n, err := strconv.ParseUint(o.Value, 10, 8); err == nil {
				e.timeout = time.Duration(n) * time.Second
			}
		case tftpwire.OptTsize:
			// informational only; nothing to apply mechanically
		}
	}
}

func clampBlksize(requested, max uint16) uint16 {
	if requested < tftpwire.MinBlksize {
		return tftpwire.MinBlksize
	}

	if requested > max {
		return max
	}

	return requested
}

func (e *Engine) hardCeilingExceeded(start time.Time) bool {
	return e.cfg.HardCeiling > 0 && time.Since(start) > e.cfg.HardCeiling
}

// release closes the file stream and socket. When cancelled is true and
// the writer supports it, the partially-written stream is aborted
// instead of merely closed (see SPEC_FULL.md §5 cancellation policy).
func (e *Engine) release(cancelled bool) {
	if e.reader != nil {
		if err := e.reader.Close(); err != nil {
			e.log.Debugf("error closing reader stream: %s", err.Error())
		}
	}

	if e.writer != nil {
		var err error
		if cancelled {
			if a, ok := e.writer.(Aborter); ok {
				err = a.Abort()
			} else {
				err = e.writer.Close()
			}
		} else {
			err = e.writer.Close()
		}

		if err != nil {
			e.log.Debugf("error closing writer stream: %s", err.Error())
		}
	}

	if e.conn != nil {
		if err := e.conn.Close(); err != nil {
			e.log.Debugf("error closing socket: %s", err.Error())
		}
	}

	e.phase = PhaseTerminated
}
