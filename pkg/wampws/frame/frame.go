// Package frame implements the RFC 6455 WebSocket frame codec used by the
// WAMP session: a pure Encode for outbound frames and a streaming Decode
// for inbound ones.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

/*
  0                   1                   2                   3
  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
 +-+-+-+-+-------+-+-------------+-------------------------------+
 |F|R|R|R| opcode|M| Payload len |    Extended payload length    |
 |I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
 |N|V|V|V|       |S|             |   (if payload len==126/127)   |
 | |1|2|3|       |K|             |                               |
 +-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
 |     Extended payload length continued, if payload len == 127  |
 + - - - - - - - - - - - - - - - +-------------------------------+
 |                               |Masking-key, if MASK set to 1  |
 +-------------------------------+-------------------------------+
 | Masking-key (continued)       |          Payload Data         |
 +-------------------------------- - - - - - - - - - - - - - - - +
*/

var (
	// ErrShortRead means the stream ended before a whole frame was read.
	ErrShortRead = errors.New("short read")
	// ErrFrameTooLarge is returned by DecodeLimit for oversized payloads.
	ErrFrameTooLarge = errors.New("frame payload too large")
)

const (
	finBit  = 0x80
	maskBit = 0x80

	opcodeMask = 0x0f
	lengthMask = 0x7f

	// 7-bit length field markers for the extended encodings.
	length16 = 126
	length64 = 127

	MaxShortPayload  = 125
	MaxMediumPayload = 65535

	// MaxPayload is the largest payload Decode will allocate.
	MaxPayload = math.MaxInt32

	MaskKeySize = 4
)

// Frame is one decoded (or about to be encoded) WebSocket frame.
type Frame struct {
	Fin           bool
	Opcode        Opcode
	Masked        bool
	PayloadLength uint64
	Payload       []byte
}

// Encode builds a complete frame with FIN set. When mask is true a fresh
// random masking key is generated and applied, as required for every
// client-to-server frame.
func Encode(opcode Opcode, payload []byte, mask bool) ([]byte, error) {
	if !mask {
		return encode(opcode, payload, nil), nil
	}

	key, err := NewMaskKey()
	if err != nil {
		return nil, err
	}
	return encode(opcode, payload, key[:]), nil
}

// EncodeWithKey is Encode with a caller supplied masking key.
func EncodeWithKey(opcode Opcode, payload []byte, key [MaskKeySize]byte) []byte {
	return encode(opcode, payload, key[:])
}

func encode(opcode Opcode, payload []byte, key []byte) []byte {
	length := uint64(len(payload))

	size := 2 + len(payload) + len(key)
	switch {
	case length > MaxMediumPayload:
		size += 8
	case length > MaxShortPayload:
		size += 2
	}

	buf := make([]byte, 0, size)
	buf = append(buf, finBit|byte(opcode)&opcodeMask)

	var maskFlag byte
	if key != nil {
		maskFlag = maskBit
	}

	switch {
	case length <= MaxShortPayload:
		buf = append(buf, maskFlag|byte(length))
	case length <= MaxMediumPayload:
		buf = append(buf, maskFlag|length16)
		buf = binary.BigEndian.AppendUint16(buf, uint16(length))
	default:
		buf = append(buf, maskFlag|length64)
		buf = binary.BigEndian.AppendUint64(buf, length)
	}

	if key == nil {
		return append(buf, payload...)
	}

	buf = append(buf, key...)
	start := len(buf)
	buf = append(buf, payload...)
	applyMask(buf[start:], key)
	return buf
}

// Decode reads exactly one frame from r. Masked payloads are unmasked
// before they are returned. Payloads above MaxPayload bytes are rejected
// with ErrFrameTooLarge rather than allocated.
func Decode(r io.Reader) (*Frame, error) {
	return DecodeLimit(r, 0)
}

// DecodeLimit is Decode with an upper bound on the payload length. A limit
// of zero, or one above MaxPayload, means MaxPayload.
func DecodeLimit(r io.Reader, limit uint64) (*Frame, error) {
	var header [2]byte
	if err := readFull(r, header[:], "header"); err != nil {
		return nil, err
	}

	f := &Frame{
		Fin:    header[0]&finBit != 0,
		Opcode: Opcode(header[0] & opcodeMask),
		Masked: header[1]&maskBit != 0,
	}

	switch length := header[1] & lengthMask; length {
	case length16:
		var ext [2]byte
		if err := readFull(r, ext[:], "extended length"); err != nil {
			return nil, err
		}
		f.PayloadLength = uint64(binary.BigEndian.Uint16(ext[:]))
	case length64:
		var ext [8]byte
		if err := readFull(r, ext[:], "extended length"); err != nil {
			return nil, err
		}
		f.PayloadLength = binary.BigEndian.Uint64(ext[:])
	default:
		f.PayloadLength = uint64(length)
	}

	if limit == 0 || limit > MaxPayload {
		limit = MaxPayload
	}
	if f.PayloadLength > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, f.PayloadLength, limit)
	}

	var key [MaskKeySize]byte
	if f.Masked {
		if err := readFull(r, key[:], "masking key"); err != nil {
			return nil, err
		}
	}

	f.Payload = make([]byte, f.PayloadLength)
	if err := readFull(r, f.Payload, "payload"); err != nil {
		return nil, err
	}

	if f.Masked {
		applyMask(f.Payload, key[:])
	}

	return f, nil
}

func readFull(r io.Reader, buf []byte, what string) error {
	n, err := io.ReadFull(r, buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: got %d of %d bytes", ErrShortRead, what, n, len(buf))
	}
	return fmt.Errorf("reading frame %s: %w", what, err)
}
