package tftpwire

import "errors"

var (
	// ErrTruncated is returned when a buffer is shorter than the wire
	// format requires for its apparent kind.
	ErrTruncated = errors.New("tftpwire: truncated packet")

	// ErrMissingNUL is returned when a NUL-terminated string field runs
	// off the end of the buffer without a terminator.
	ErrMissingNUL = errors.New("tftpwire: missing NUL terminator")

	// ErrBadOpcode is returned when the opcode is not one of the six
	// known kinds.
	ErrBadOpcode = errors.New("tftpwire: unknown opcode")

	// ErrNonASCII is returned when a string field contains a byte
	// outside the 7-bit ASCII range.
	ErrNonASCII = errors.New("tftpwire: non-ASCII byte in string field")

	// ErrMalformedOption is returned when a trailing option pair is
	// incomplete (a name with no terminated value).
	ErrMalformedOption = errors.New("tftpwire: malformed option pair")

	// ErrPayloadTooLarge is returned by EncodeData when the payload
	// exceeds the maximum blksize.
	ErrPayloadTooLarge = errors.New("tftpwire: DATA payload exceeds max blksize")
)
