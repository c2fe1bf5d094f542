package tftpengine

import (
	"errors"

	"github.com/gotftp/gotftp/pkg/tftpwire"
)

var (
	// ErrPeerUnreachable is returned when retry_limit is exhausted
	// waiting for a reply; no ERROR packet is sent in this case, per
	// spec, since the peer is presumed gone.
	ErrPeerUnreachable = errors.New("tftpengine: peer did not respond, retry limit exceeded")

	// ErrPeerAborted is returned when the peer sent an ERROR packet.
	ErrPeerAborted = errors.New("tftpengine: peer sent ERROR, transfer aborted")

	// ErrProtocolViolation is returned when the peer sends a packet
	// that violates the lock-step block sequence; the engine sends
	// ERROR(4) before returning this.
	ErrProtocolViolation = errors.New("tftpengine: unexpected block number from peer")

	// ErrHardCeiling is returned when the transfer's overall wall-clock
	// budget is exceeded.
	ErrHardCeiling = errors.New("tftpengine: transfer exceeded hard ceiling timeout")
)

// LocalError is a local resource fault (file open/read/write, socket
// send) that the engine translates to a TFTP error code and sends once
// before terminating, per spec.md band 2.
type LocalError struct {
	Code    tftpwire.ErrorCode
	Message string
	Cause   error
}

func (e *LocalError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}

	return e.Message
}

func (e *LocalError) Unwrap() error { return e.Cause }
