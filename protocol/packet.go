// Package protocol encodes and decodes the binary packets spoken by the
// machine firmware.
//
// A frame on the wire is
//
//	[0xD5][length][payload...][crc8]
//
// where payload is a command code (or response status) followed by
// little-endian fixed-width fields, length counts the payload bytes, and the
// checksum is the iButton CRC-8 of the payload.
package protocol

import (
	"encoding/binary"
)

const (
	// StartByte begins every frame.
	StartByte = 0xD5
	// MaxPayload is the largest payload a single frame can carry.
	MaxPayload = 32
)

// CRC8 is the iButton/Maxim CRC of data.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8C
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Packet is a complete framed command, immutable once built.
type Packet []byte

// Code returns the command code of the packet.
func (p Packet) Code() byte {
	if len(p) < 3 {
		return 0
	}
	return p[2]
}

// Payload returns the command code and fields without framing.
func (p Packet) Payload() []byte {
	if len(p) < 3 {
		return nil
	}
	return p[2 : len(p)-1]
}

// Builder assembles a packet field by field.
type Builder struct {
	payload []byte
}

// NewBuilder starts a packet with the given command code.
func NewBuilder(code byte) *Builder {
	b := &Builder{payload: make([]byte, 0, MaxPayload)}
	b.payload = append(b.payload, code)
	return b
}

func (b *Builder) Add8(v uint8) *Builder {
	b.payload = append(b.payload, v)
	return b
}

func (b *Builder) Add16(v uint16) *Builder {
	b.payload = binary.LittleEndian.AppendUint16(b.payload, v)
	return b
}

func (b *Builder) Add32(v uint32) *Builder {
	b.payload = binary.LittleEndian.AppendUint32(b.payload, v)
	return b
}

// AddInt32 appends a signed 32-bit field.
func (b *Builder) AddInt32(v int32) *Builder {
	return b.Add32(uint32(v))
}

// AddBytes appends a raw block.
func (b *Builder) AddBytes(data []byte) *Builder {
	b.payload = append(b.payload, data...)
	return b
}

// AddString appends s followed by a terminating NUL.
func (b *Builder) AddString(s string) *Builder {
	b.payload = append(b.payload, s...)
	b.payload = append(b.payload, 0)
	return b
}

// Packet frames the payload. It returns a malformed error if the payload
// does not fit in a single frame.
func (b *Builder) Packet() (Packet, error) {
	return Frame(b.payload)
}

// Frame wraps a payload with start byte, length and checksum.
func Frame(payload []byte) (Packet, error) {
	if len(payload) == 0 {
		return nil, malformed("empty payload")
	}
	if len(payload) > MaxPayload {
		return nil, malformed("payload too large")
	}
	p := make(Packet, 0, len(payload)+3)
	p = append(p, StartByte, byte(len(payload)))
	p = append(p, payload...)
	p = append(p, CRC8(payload))
	return p, nil
}

// MustFrame is Frame for payloads known to be valid.
func MustFrame(payload []byte) Packet {
	p, err := Frame(payload)
	if err != nil {
		panic(err)
	}
	return p
}
