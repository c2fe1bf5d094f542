package tftpwire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripRequest(t *testing.T) {
	cases := []struct {
		name string
		op   Opcode
		opts []Option
	}{
		{"no options", OpRRQ, nil},
		{"wrq with options", OpWRQ, []Option{
			{Name: OptBlksize, Value: "1024"},
			{Name: OptTsize, Value: "0"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := EncodeRequest(tc.op, "hello.txt", ModeOctet, tc.opts)

			pkt, err := Decode(b)
			require.NoError(t, err)

			req, ok := pkt.(*Request)
			require.True(t, ok)
			require.Equal(t, tc.op, req.Op)
			require.Equal(t, "hello.txt", req.Filename)
			require.Equal(t, ModeOctet, req.Mode)
			require.Equal(t, tc.opts, req.Options)
		})
	}
}

func TestRoundTripData(t *testing.T) {
	payload := []byte("hello")

	b, err := EncodeData(5, payload)
	require.NoError(t, err)

	pkt, err := Decode(b)
	require.NoError(t, err)

	data, ok := pkt.(*Data)
	require.True(t, ok)
	require.EqualValues(t, 5, data.Block)
	require.Equal(t, payload, data.Payload)
}

func TestRoundTripEmptyData(t *testing.T) {
	b, err := EncodeData(1, nil)
	require.NoError(t, err)

	pkt, err := Decode(b)
	require.NoError(t, err)

	data, ok := pkt.(*Data)
	require.True(t, ok)
	require.Empty(t, data.Payload)
}

func TestEncodeDataTooLarge(t *testing.T) {
	_, err := EncodeData(1, make([]byte, MaxBlksize+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestRoundTripAck(t *testing.T) {
	b := EncodeAck(65535)

	pkt, err := Decode(b)
	require.NoError(t, err)

	ack, ok := pkt.(*Ack)
	require.True(t, ok)
	require.EqualValues(t, 65535, ack.Block)
}

func TestRoundTripError(t *testing.T) {
	b := EncodeError(ErrCodeFileNotFound, "not found")

	pkt, err := Decode(b)
	require.NoError(t, err)

	e, ok := pkt.(*ErrorPacket)
	require.True(t, ok)
	require.Equal(t, ErrCodeFileNotFound, e.Code)
	require.Equal(t, "not found", e.Message)
}

func TestRoundTripOack(t *testing.T) {
	opts := []Option{{Name: "blksize", Value: "1024"}, {Name: "tsize", Value: "42"}}

	b := EncodeOack(opts)

	pkt, err := Decode(b)
	require.NoError(t, err)

	oack, ok := pkt.(*Oack)
	require.True(t, ok)
	require.Equal(t, opts, oack.Options)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		_, err := Decode([]byte{0})
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("bad opcode", func(t *testing.T) {
		_, err := Decode([]byte{0, 9})
		require.ErrorIs(t, err, ErrBadOpcode)
	})

	t.Run("missing filename terminator", func(t *testing.T) {
		_, err := Decode([]byte{0, 1, 'a', 'b', 'c'})
		require.ErrorIs(t, err, ErrMissingNUL)
	})

	t.Run("ack wrong length", func(t *testing.T) {
		_, err := Decode([]byte{0, 4, 0})
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("data too short", func(t *testing.T) {
		_, err := Decode([]byte{0, 3, 0})
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("trailing partial option pair", func(t *testing.T) {
		b := EncodeRequest(OpRRQ, "f", ModeOctet, nil)
		b = append(b, []byte("blksize")...) // name with no terminator, no value
		_, err := Decode(b)
		require.ErrorIs(t, err, ErrMissingNUL)
	})

	t.Run("non ascii filename", func(t *testing.T) {
		b := []byte{0, 1}
		b = append(b, 0xFF, 0)
		b = append(b, []byte("octet")...)
		b = append(b, 0)
		_, err := Decode(b)
		require.ErrorIs(t, err, ErrNonASCII)
	})
}

func TestFindOptionCaseInsensitive(t *testing.T) {
	opts := []Option{{Name: "BlkSize", Value: "1024"}}

	v, ok := FindOption(opts, "blksize")
	require.True(t, ok)
	require.Equal(t, "1024", v)

	_, ok = FindOption(opts, "tsize")
	require.False(t, ok)
}
