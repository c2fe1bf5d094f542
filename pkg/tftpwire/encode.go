package tftpwire

import (
	"bytes"
	"encoding/binary"
)

func putOpcode(b *bytes.Buffer, op Opcode) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(op))
	b.Write(tmp[:])
}

func putUint16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}

func putCString(b *bytes.Buffer, s string) {
	b.WriteString(s)
	b.WriteByte(0)
}

func putOptions(b *bytes.Buffer, opts []Option) {
	for _, o := range opts {
		putCString(b, o.Name)
		putCString(b, o.Value)
	}
}

func optionsLen(opts []Option) int {
	n := 0
	for _, o := range opts {
		n += len(o.Name) + 1 + len(o.Value) + 1
	}

	return n
}

// EncodeRequest encodes an RRQ or WRQ packet. op must be OpRRQ or OpWRQ.
func EncodeRequest(op Opcode, filename string, mode Mode, opts []Option) []byte {
	size := 2 + len(filename) + 1 + len(mode) + 1 + optionsLen(opts)
	b := bytes.NewBuffer(make([]byte, 0, size))

	putOpcode(b, op)
	putCString(b, filename)
	putCString(b, string(mode))
	putOptions(b, opts)

	return b.Bytes()
}

// EncodeData encodes a DATA packet. It fails if payload exceeds MaxBlksize.
func EncodeData(block uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxBlksize {
		return nil, ErrPayloadTooLarge
	}

	b := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(payload)))
	putOpcode(b, OpDATA)
	putUint16(b, block)
	b.Write(payload)

	return b.Bytes(), nil
}

// EncodeAck encodes an ACK packet.
func EncodeAck(block uint16) []byte {
	b := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	putOpcode(b, OpACK)
	putUint16(b, block)

	return b.Bytes()
}

// EncodeError encodes an ERROR packet.
func EncodeError(code ErrorCode, message string) []byte {
	b := bytes.NewBuffer(make([]byte, 0, 4+len(message)+1))
	putOpcode(b, OpError)
	putUint16(b, uint16(code))
	putCString(b, message)

	return b.Bytes()
}

// EncodeOack encodes an option-acknowledgement packet. Options are
// emitted in the order supplied.
func EncodeOack(opts []Option) []byte {
	b := bytes.NewBuffer(make([]byte, 0, 2+optionsLen(opts)))
	putOpcode(b, OpOACK)
	putOptions(b, opts)

	return b.Bytes()
}
