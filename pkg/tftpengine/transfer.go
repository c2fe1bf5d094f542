package tftpengine

import (
	"context"
	"fmt"
	"time"

	"github.com/gotftp/gotftp/pkg/tftpwire"
)

// readerLoop drives a READER-role transfer: read a block, send DATA,
// wait for its ACK, repeat until a short block's ACK completes it.
func (e *Engine) readerLoop(_ context.Context) error {
	start := time.Now()
	buf := make([]byte, e.blksize)

blockLoop:
	for {
		n, err := e.reader.ReadFull(buf)
		if err != nil {
			return e.failLocal(&LocalError{Code: tftpwire.ErrCodeFileNotFound, Message: "read failed", Cause: err})
		}

		data, err := tftpwire.EncodeData(e.expected, buf[:n])
		if err != nil {
			return e.failLocal(&LocalError{Code: tftpwire.ErrCodeNotDefined, Message: "encode failed", Cause: err})
		}

		if err := e.transmit(data); err != nil {
			return err
		}

		e.bytesXferred += int64(n)
		short := n < int(e.blksize)

		for {
			pkt, err := e.awaitReply()
			if err != nil {
				if err == errTimeout {
					e.retryCount++
					if e.retryCount > e.cfg.RetryLimit {
						return ErrPeerUnreachable
					}

					if err := e.resend(); err != nil {
						return err
					}

					if e.hardCeilingExceeded(start) {
						return ErrHardCeiling
					}

					continue
				}

				return e.illegalOperation(err)
			}

			if e.hardCeilingExceeded(start) {
				return ErrHardCeiling
			}

			switch p := pkt.(type) {
			case *tftpwire.Ack:
				switch {
				case p.Block == e.expected:
					e.retryCount = 0
					e.expected++

					if short {
						e.phase = PhaseDraining

						return nil
					}

					continue blockLoop

				case p.Block == e.expected-1:
					// duplicate ACK: drop silently, no retransmit
					continue

				default:
					return e.protocolViolation()
				}

			case *tftpwire.ErrorPacket:
				return fmt.Errorf("%w: code=%d msg=%q", ErrPeerAborted, p.Code, p.Message)

			default:
				return e.protocolViolation()
			}
		}
	}
}

// writerLoop drives a WRITER-role transfer: wait for DATA, write it,
// send its ACK, repeat until a short block completes it. pending, when
// non-nil, is a DATA(1) packet already received during negotiation and
// consumed as the first iteration instead of calling awaitReply again.
func (e *Engine) writerLoop(_ context.Context, pending *tftpwire.Data) error {
	start := time.Now()

	for {
		var data *tftpwire.Data

		if pending != nil {
			data, pending = pending, nil
		} else {
			pkt, err := e.awaitReply()
			if err != nil {
				if err == errTimeout {
					e.retryCount++
					if e.retryCount > e.cfg.RetryLimit {
						return ErrPeerUnreachable
					}

					if err := e.resend(); err != nil {
						return err
					}

					if e.hardCeilingExceeded(start) {
						return ErrHardCeiling
					}

					continue
				}

				return e.illegalOperation(err)
			}

			if e.hardCeilingExceeded(start) {
				return ErrHardCeiling
			}

			switch p := pkt.(type) {
			case *tftpwire.Data:
				data = p
			case *tftpwire.ErrorPacket:
				return fmt.Errorf("%w: code=%d msg=%q", ErrPeerAborted, p.Code, p.Message)
			default:
				return e.protocolViolation()
			}
		}

		switch {
		case data.Block == e.expected:
			if _, err := e.writer.Write(data.Payload); err != nil {
				return e.failLocal(&LocalError{Code: tftpwire.ErrCodeDiskFull, Message: "write failed", Cause: err})
			}

			if err := e.transmit(tftpwire.EncodeAck(data.Block)); err != nil {
				return err
			}

			e.bytesXferred += int64(len(data.Payload))
			e.retryCount = 0
			short := len(data.Payload) < int(e.blksize)
			e.expected++

			if short {
				e.phase = PhaseDraining

				return nil
			}

		case data.Block == e.expected-1:
			// duplicate DATA: peer lost our ACK, resend it
			if err := e.resend(); err != nil {
				return err
			}

		default:
			return e.protocolViolation()
		}
	}
}
