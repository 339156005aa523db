package frame

import "fmt"

type Opcode uint8

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// IsControl reports whether the opcode is a control frame (close, ping, pong
// or a reserved control opcode).
func (o Opcode) IsControl() bool {
	return o >= OpcodeClose
}

// IsData reports whether the opcode carries application data.
func (o Opcode) IsData() bool {
	return o == OpcodeText || o == OpcodeBinary
}

func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(%#x)", uint8(o))
	}
}
