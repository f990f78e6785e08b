package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Decode validates a complete frame and returns a reader over its payload.
// The first field of the payload is the command code or response status.
func Decode(frame []byte) (*Reader, error) {
	if len(frame) < 4 {
		return nil, malformed("short frame")
	}
	if frame[0] != StartByte {
		return nil, malformed(fmt.Sprintf("bad start byte 0x%02x", frame[0]))
	}
	n := int(frame[1])
	if n == 0 || n > MaxPayload || len(frame) != n+3 {
		return nil, malformed(fmt.Sprintf("length %d does not match frame of %d bytes", n, len(frame)))
	}
	payload := frame[2 : 2+n]
	if err := checkCRC(payload, frame[2+n]); err != nil {
		return nil, err
	}
	return NewReader(payload), nil
}

func checkCRC(payload []byte, crc byte) error {
	if want := CRC8(payload); want != crc {
		return &Error{Kind: KindChecksum, Msg: fmt.Sprintf("crc 0x%02x, expected 0x%02x", crc, want)}
	}
	return nil
}

// Reader reads fixed-width fields in order. The first short read sets a
// sticky malformed error; later reads return zero values.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(payload []byte) *Reader {
	return &Reader{data: payload}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = malformed(fmt.Sprintf("need %d bytes at offset %d, have %d", n, r.off, len(r.data)))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Int8() int8 { return int8(r.Uint8()) }

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) Int16() int16 { return int16(r.Uint16()) }

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

// Bytes reads a raw block of n bytes.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// String reads a NUL-terminated string.
func (r *Reader) String() string {
	if r.err != nil {
		return ""
	}
	for i := r.off; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.off:i])
			r.off = i + 1
			return s
		}
	}
	r.err = malformed("unterminated string")
	return ""
}

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Err returns the first read error.
func (r *Reader) Err() error { return r.err }

// Response is a decoded firmware reply.
type Response struct {
	Status byte
	*Reader
}

// ParseResponse splits a response payload into status and fields.
// A non-OK status is returned as a KindStatus error alongside the response.
func ParseResponse(payload []byte) (*Response, error) {
	if len(payload) == 0 {
		return nil, malformed("empty response")
	}
	resp := &Response{Status: payload[0], Reader: NewReader(payload[1:])}
	if resp.Status != StatusOK {
		return resp, &Error{Kind: KindStatus, Status: resp.Status, Msg: fmt.Sprintf("response status 0x%02x", resp.Status)}
	}
	return resp, nil
}

// FrameReader extracts frames from a byte stream, skipping noise between
// frames.
type FrameReader struct {
	br *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &FrameReader{br: br}
	}
	return &FrameReader{br: bufio.NewReader(r)}
}

// ReadFrame returns the payload of the next frame.
//
// Errors from the underlying reader are returned unchanged. A frame with a
// bad length or checksum yields a *Error; the stream stays usable.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	for {
		b, err := f.br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == StartByte {
			break
		}
	}

	n, err := f.br.ReadByte()
	if err != nil {
		return nil, err
	}
	if n == 0 || n > MaxPayload {
		return nil, malformed(fmt.Sprintf("invalid length %d", n))
	}

	buf := make([]byte, int(n)+1)
	if _, err := io.ReadFull(f.br, buf); err != nil {
		return nil, err
	}
	payload := buf[:n]
	if err := checkCRC(payload, buf[n]); err != nil {
		return nil, err
	}
	return payload, nil
}
