package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roundTripLengths = []int{0, 1, 125, 126, 127, 65535, 65536, 1000000}

func payloadOfLength(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	for _, n := range roundTripLengths {
		payload := payloadOfLength(n)

		t.Run("unmasked", func(t *testing.T) {
			encoded, err := Encode(OpcodeText, payload, false)
			require.NoError(t, err)

			f, err := Decode(bytes.NewReader(encoded))
			require.NoError(t, err)
			assert.Equal(t, OpcodeText, f.Opcode)
			assert.True(t, f.Fin)
			assert.False(t, f.Masked)
			assert.Equal(t, uint64(n), f.PayloadLength)
			assert.True(t, bytes.Equal(payload, f.Payload), "payload mismatch for length %d", n)
		})

		t.Run("masked", func(t *testing.T) {
			encoded, err := Encode(OpcodeBinary, payload, true)
			require.NoError(t, err)

			f, err := Decode(bytes.NewReader(encoded))
			require.NoError(t, err)
			assert.Equal(t, OpcodeBinary, f.Opcode)
			assert.True(t, f.Masked)
			assert.True(t, bytes.Equal(payload, f.Payload), "payload mismatch for length %d", n)
		})
	}
}

func TestEncodeHeader(t *testing.T) {
	t.Run("short length", func(t *testing.T) {
		encoded, err := Encode(OpcodeText, []byte("hello"), false)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x81, 0x05, 'h', 'e', 'l', 'l', 'o'}, encoded)
	})

	t.Run("16-bit length", func(t *testing.T) {
		encoded, err := Encode(OpcodeText, payloadOfLength(300), false)
		require.NoError(t, err)
		assert.Equal(t, byte(0x81), encoded[0])
		assert.Equal(t, byte(126), encoded[1])
		assert.Equal(t, uint16(300), binary.BigEndian.Uint16(encoded[2:4]))
		assert.Len(t, encoded, 4+300)
	})

	t.Run("64-bit length", func(t *testing.T) {
		encoded, err := Encode(OpcodeBinary, payloadOfLength(70000), false)
		require.NoError(t, err)
		assert.Equal(t, byte(0x82), encoded[0])
		assert.Equal(t, byte(127), encoded[1])
		assert.Equal(t, uint64(70000), binary.BigEndian.Uint64(encoded[2:10]))
		assert.Len(t, encoded, 10+70000)
	})

	t.Run("masked frame layout", func(t *testing.T) {
		key := [MaskKeySize]byte{0x37, 0xfa, 0x21, 0x3d}
		encoded := EncodeWithKey(OpcodeText, []byte("Hello"), key)

		// RFC 6455 section 5.7 example.
		expected := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
		assert.Equal(t, expected, encoded)
	})

	t.Run("mask keys differ between frames", func(t *testing.T) {
		a, err := Encode(OpcodeText, []byte("same payload"), true)
		require.NoError(t, err)
		b, err := Encode(OpcodeText, []byte("same payload"), true)
		require.NoError(t, err)
		assert.NotEqual(t, a[2:6], b[2:6])
	})

	t.Run("does not modify the payload", func(t *testing.T) {
		payload := []byte("keep me")
		_, err := Encode(OpcodeText, payload, true)
		require.NoError(t, err)
		assert.Equal(t, []byte("keep me"), payload)
	})
}

func TestDecodeShortRead(t *testing.T) {
	full, err := Encode(OpcodeText, payloadOfLength(300), false)
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":                 {},
		"half header":           full[:1],
		"missing extended len":  full[:3],
		"truncated payload":     full[:100],
		"missing last byte":     full[:len(full)-1],
		"missing mask key":      {0x81, 0x85, 0x37, 0xfa},
		"64-bit len, truncated": {0x82, 127, 0, 0, 0},
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(data))
			assert.ErrorIs(t, err, ErrShortRead)
		})
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestDecodePropagatesReaderErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Decode(failingReader{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrShortRead)
}

func TestDecodeLimit(t *testing.T) {
	encoded, err := Encode(OpcodeText, payloadOfLength(1000), false)
	require.NoError(t, err)

	_, err = DecodeLimit(bytes.NewReader(encoded), 999)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	f, err := DecodeLimit(bytes.NewReader(encoded), 1000)
	require.NoError(t, err)
	assert.Len(t, f.Payload, 1000)
}

func TestDecodeRejectsAbsurdLength(t *testing.T) {
	header := []byte{0x82, 127, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	_, err := Decode(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeLimitAboveMaxPayload(t *testing.T) {
	header := []byte{0x81, 127, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.BigEndian.PutUint64(header[2:], 1<<62)

	for _, limit := range []uint64{math.MaxUint64, math.MaxInt64, MaxPayload + 1} {
		assert.NotPanics(t, func() {
			_, err := DecodeLimit(bytes.NewReader(header), limit)
			assert.ErrorIs(t, err, ErrFrameTooLarge)
		})
	}
}

func TestDecodeConsumesExactlyOneFrame(t *testing.T) {
	var stream bytes.Buffer
	first, err := Encode(OpcodeText, []byte(`[0,"a"]`), false)
	require.NoError(t, err)
	second, err := Encode(OpcodePing, []byte("p"), false)
	require.NoError(t, err)
	stream.Write(first)
	stream.Write(second)

	f, err := Decode(&stream)
	require.NoError(t, err)
	assert.Equal(t, `[0,"a"]`, string(f.Payload))

	f, err = Decode(&stream)
	require.NoError(t, err)
	assert.Equal(t, OpcodePing, f.Opcode)
	assert.Equal(t, "p", string(f.Payload))

	_, err = Decode(&stream)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestOpcode(t *testing.T) {
	assert.True(t, OpcodeClose.IsControl())
	assert.True(t, OpcodePing.IsControl())
	assert.True(t, OpcodePong.IsControl())
	assert.False(t, OpcodeText.IsControl())
	assert.False(t, OpcodeContinuation.IsControl())

	assert.True(t, OpcodeText.IsData())
	assert.True(t, OpcodeBinary.IsData())
	assert.False(t, OpcodePing.IsData())

	assert.Equal(t, "text", OpcodeText.String())
	assert.Equal(t, "close", OpcodeClose.String())
	assert.Equal(t, "opcode(0x3)", Opcode(3).String())
}
