package tftpwire

import "encoding/binary"

// Decode parses a raw datagram into a typed Packet. A DATA packet's
// Payload borrows from buf, so buf must not be reused while that payload
// is still needed. String fields (filename, mode, option names and
// values, error message) are copied out of buf and do not borrow from it.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}

	op := Opcode(binary.BigEndian.Uint16(buf[:2]))
	rest := buf[2:]

	switch op {
	case OpRRQ, OpWRQ:
		return decodeRequest(op, rest)
	case OpDATA:
		return decodeData(rest)
	case OpACK:
		return decodeAck(rest)
	case OpError:
		return decodeError(rest)
	case OpOACK:
		return decodeOack(rest)
	default:
		return nil, ErrBadOpcode
	}
}

// readCString reads an ASCII, NUL-terminated string from the front of buf
// and returns the string (without the NUL), the remainder of buf, and an
// error if no terminator is found or a non-ASCII byte is present.
func readCString(buf []byte) (s string, rest []byte, err error) {
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i]), buf[i+1:], nil
		}

		if c >= 0x80 {
			return "", nil, ErrNonASCII
		}
	}

	return "", nil, ErrMissingNUL
}

// parseOptions consumes zero or more NUL-terminated (name, value) pairs
// until buf is exhausted. A trailing partial pair is an error.
func parseOptions(buf []byte) ([]Option, error) {
	var opts []Option

	for len(buf) > 0 {
		name, rest, err := readCString(buf)
		if err != nil {
			return nil, err
		}

		value, rest2, err := readCString(rest)
		if err != nil {
			if err == ErrMissingNUL {
				return nil, ErrMalformedOption
			}

			return nil, err
		}

		opts = append(opts, Option{Name: name, Value: value})
		buf = rest2
	}

	return opts, nil
}

func decodeRequest(op Opcode, buf []byte) (*Request, error) {
	filename, rest, err := readCString(buf)
	if err != nil {
		return nil, err
	}

	mode, rest, err := readCString(rest)
	if err != nil {
		return nil, err
	}

	opts, err := parseOptions(rest)
	if err != nil {
		return nil, err
	}

	return &Request{Op: op, Filename: filename, Mode: Mode(mode), Options: opts}, nil
}

func decodeData(buf []byte) (*Data, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}

	block := binary.BigEndian.Uint16(buf[:2])

	return &Data{Block: block, Payload: buf[2:]}, nil
}

func decodeAck(buf []byte) (*Ack, error) {
	if len(buf) != 2 {
		return nil, ErrTruncated
	}

	return &Ack{Block: binary.BigEndian.Uint16(buf)}, nil
}

func decodeError(buf []byte) (*ErrorPacket, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}

	code := ErrorCode(binary.BigEndian.Uint16(buf[:2]))

	msg, _, err := readCString(buf[2:])
	if err != nil {
		return nil, err
	}

	return &ErrorPacket{Code: code, Message: msg}, nil
}

func decodeOack(buf []byte) (*Oack, error) {
	opts, err := parseOptions(buf)
	if err != nil {
		return nil, err
	}

	return &Oack{Options: opts}, nil
}
