package tftpengine

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gotftp/gotftp/pkg/tftpwire"
)

// transmit records b as the last-sent datagram (for retransmission) and
// writes it to the current target address.
func (e *Engine) transmit(b []byte) error {
	e.lastSent = append(e.lastSent[:0], b...)

	return e.writeLastSent()
}

// resend rewrites the last-sent datagram unchanged. It is called on a
// read timeout, and by the WRITER when a duplicate DATA shows its ACK was
// lost. A duplicate ACK never triggers it (Sorcerer's Apprentice rule:
// DATA is retransmitted only on our own timeout).
func (e *Engine) resend() error {
	return e.writeLastSent()
}

func (e *Engine) writeLastSent() error {
	target := e.peer
	if target == nil {
		target = e.requestAddr
	}

	_, err := e.conn.WriteTo(e.lastSent, target)

	return err
}

// sendUnknownTID answers a datagram from an address other than the
// locked peer with ERROR(5), without otherwise touching engine state.
func (e *Engine) sendUnknownTID(addr net.Addr) {
	b := tftpwire.EncodeError(tftpwire.ErrCodeUnknownTransferID, "unknown transfer ID")

	if _, err := e.conn.WriteTo(b, addr); err != nil {
		e.log.Debugf("failed to send unknown-TID reply to %s: %s", addr, err.Error())
	}
}

// awaitReply blocks for a single packet from the locked peer, applying
// the engine's current timeout. Packets from any other address receive
// an ERROR(5) reply and are otherwise ignored. Before the peer is
// locked (client awaiting its first reply), unparseable noise is
// dropped rather than surfaced, since there is nothing yet to validate
// its source against.
func (e *Engine) awaitReply() (tftpwire.Packet, error) {
	for {
		if err := e.conn.SetReadDeadline(time.Now().Add(e.timeout)); err != nil {
			return nil, err
		}

		n, addr, err := e.conn.ReadFrom(e.recvBuf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, errTimeout
			}

			return nil, err
		}

		if e.peerLocked && addr.String() != e.peer.String() {
			e.sendUnknownTID(addr)
			continue
		}

		pkt, err := tftpwire.Decode(e.recvBuf[:n])
		if err != nil {
			if !e.peerLocked {
				continue
			}

			return nil, err
		}

		if !e.peerLocked {
			e.peer = addr
			e.peerLocked = true
		}

		return pkt, nil
	}
}

// exchangeWithRetry sends via send, then waits for a reply, retransmitting
// the same datagram on each timeout up to RetryLimit. It is used for the
// two exchanges that must behave this way regardless of role: the
// initiator's request, and the READER responder's OACK awaiting ACK(0).
func (e *Engine) exchangeWithRetry(send func() error) (tftpwire.Packet, error) {
	if err := send(); err != nil {
		return nil, err
	}

	for {
		pkt, err := e.awaitReply()
		if err != nil {
			if errors.Is(err, errTimeout) {
				e.retryCount++
				if e.retryCount > e.cfg.RetryLimit {
					return nil, ErrPeerUnreachable
				}

				if err := e.resend(); err != nil {
					return nil, err
				}

				continue
			}

			return nil, err
		}

		if ep, ok := pkt.(*tftpwire.ErrorPacket); ok {
			return nil, fmt.Errorf("%w: code=%d msg=%q", ErrPeerAborted, ep.Code, ep.Message)
		}

		e.retryCount = 0

		return pkt, nil
	}
}

func (e *Engine) protocolViolation() error {
	_ = e.transmit(tftpwire.EncodeError(tftpwire.ErrCodeIllegalOperation, "unexpected block number"))
	e.phase = PhaseDraining

	return ErrProtocolViolation
}

func (e *Engine) illegalOperation(cause error) error {
	_ = e.transmit(tftpwire.EncodeError(tftpwire.ErrCodeIllegalOperation, "malformed packet"))
	e.phase = PhaseDraining

	return fmt.Errorf("tftpengine: illegal operation: %w", cause)
}

func (e *Engine) failLocal(err error) error {
	var le *LocalError
	if errors.As(err, &le) {
		_ = e.transmit(tftpwire.EncodeError(le.Code, le.Message))
	}

	e.phase = PhaseDraining

	return err
}

func (e *Engine) translateNegotiationErr(err error) error {
	switch {
	case errors.Is(err, ErrPeerUnreachable), errors.Is(err, ErrPeerAborted):
		e.phase = PhaseDraining

		return err
	default:
		return e.illegalOperation(err)
	}
}
