package protocol

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_RoundTrip(t *testing.T) {
	values := []int32{0, math.MaxInt32, -1, math.MinInt32, -12345}

	b := NewBuilder(CodeQueuePointExt)
	for _, v := range values {
		b.AddInt32(v)
	}
	b.Add32(math.MaxUint32)
	p, err := b.Packet()
	require.NoError(t, err)

	assert.Equal(t, byte(StartByte), p[0])
	assert.Equal(t, byte(len(values)*4+5), p[1])
	assert.Equal(t, CodeQueuePointExt, p.Code())

	r, err := Decode(p)
	require.NoError(t, err)
	assert.Equal(t, CodeQueuePointExt, r.Uint8())
	for _, v := range values {
		assert.Equal(t, v, r.Int32())
	}
	assert.Equal(t, uint32(math.MaxUint32), r.Uint32())
	assert.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())
}

func TestBuilder_RoundTrip_Variants(t *testing.T) {
	values := []int32{0, math.MaxInt32, -1, math.MinInt32}

	for _, v := range []*Variant{Sanguino3G, Makerbot4G} {
		for op, l := range v.Table() {
			for _, val := range values {
				t.Run(v.Name+"/"+op.String(), func(t *testing.T) {
					b := NewBuilder(l.Code)
					for i := 0; i < l.Axes; i++ {
						b.AddInt32(val)
					}
					if l.Timing != TimingNone {
						b.Add32(uint32(val))
					}
					if l.Axes == 0 {
						b.Add8(uint8(val)).Add16(uint16(val)).AddInt32(val)
					}
					p, err := b.Packet()
					require.NoError(t, err)

					r, err := Decode(p)
					require.NoError(t, err)
					assert.Equal(t, l.Code, r.Uint8())
					for i := 0; i < l.Axes; i++ {
						assert.Equal(t, val, r.Int32())
					}
					if l.Timing != TimingNone {
						assert.Equal(t, uint32(val), r.Uint32())
					}
					if l.Axes == 0 {
						assert.Equal(t, uint8(val), r.Uint8())
						assert.Equal(t, uint16(val), r.Uint16())
						assert.Equal(t, val, r.Int32())
					}
					assert.NoError(t, r.Err())
					assert.Equal(t, 0, r.Remaining())
				})
			}
		}
	}
}

func TestBuilder_SmallFields(t *testing.T) {
	p, err := NewBuilder(CodeToolCommand).
		Add8(1).
		Add8(ToolSetTemperature).
		Add8(2).
		Add16(math.MaxUint16).
		AddBytes([]byte{0xAA, 0xBB}).
		AddString("part.s3g").
		Packet()
	require.NoError(t, err)

	r, err := Decode(p)
	require.NoError(t, err)
	assert.Equal(t, CodeToolCommand, r.Uint8())
	assert.Equal(t, int8(1), r.Int8())
	assert.Equal(t, ToolSetTemperature, r.Uint8())
	assert.Equal(t, uint8(2), r.Uint8())
	assert.Equal(t, uint16(math.MaxUint16), r.Uint16())
	assert.Equal(t, []byte{0xAA, 0xBB}, r.Bytes(2))
	assert.Equal(t, "part.s3g", r.String())
	assert.NoError(t, r.Err())
}

func TestBuilder_TooLarge(t *testing.T) {
	_, err := NewBuilder(CodeCaptureToFile).AddBytes(make([]byte, MaxPayload)).Packet()
	assert.True(t, IsKind(err, KindMalformed))
}

func TestDecode_Checksum(t *testing.T) {
	p := MustFrame([]byte{StatusOK, 1, 2, 3})
	bad := append(Packet(nil), p...)
	bad[3] ^= 0xFF

	_, err := Decode(bad)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindChecksum))
	assert.True(t, IsTransient(err))
}

func TestDecode_Malformed(t *testing.T) {
	p := MustFrame([]byte{StatusOK, 1, 2, 3})

	_, err := Decode(p[:3])
	assert.True(t, IsKind(err, KindMalformed))

	wrongStart := append(Packet(nil), p...)
	wrongStart[0] = 0
	_, err = Decode(wrongStart)
	assert.True(t, IsKind(err, KindMalformed))
}

func TestReader_Short(t *testing.T) {
	r := NewReader([]byte{1, 2})
	assert.Equal(t, uint8(1), r.Uint8())
	assert.Equal(t, int32(0), r.Int32())
	assert.True(t, IsKind(r.Err(), KindMalformed))

	// sticky
	assert.Equal(t, uint8(0), r.Uint8())
	assert.True(t, IsKind(r.Err(), KindMalformed))
}

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte{StatusOK, 0x10, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint16(16), resp.Uint16())

	_, err = ParseResponse([]byte{StatusCRCMismatch})
	assert.True(t, IsKind(err, KindStatus))
	assert.True(t, IsTransient(err))

	_, err = ParseResponse([]byte{StatusUnsupported})
	assert.True(t, IsKind(err, KindStatus))
	assert.False(t, IsTransient(err))
}

func TestFrameReader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x42}) // noise
	buf.Write(MustFrame([]byte{StatusOK, 7}))
	corrupt := MustFrame([]byte{StatusOK, 8})
	corrupt[len(corrupt)-1] ^= 0x01
	buf.Write(corrupt)
	buf.Write(MustFrame([]byte{StatusOK, 9}))

	fr := NewFrameReader(&buf)

	payload, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{StatusOK, 7}, payload)

	_, err = fr.ReadFrame()
	assert.True(t, IsKind(err, KindChecksum))

	payload, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{StatusOK, 9}, payload)

	_, err = fr.ReadFrame()
	assert.Equal(t, io.EOF, err)
}
