// Package s3gtest provides an in-memory machine speaking the packet
// protocol, for tests.
package s3gtest

import (
	"io"
	"sync"

	"github.com/magnomatos822/replicatorg/protocol"
)

// Firmware answers packets the way a Makerbot4G or Sanguino3G board does,
// keeping position in steps and recording every payload it receives.
type Firmware struct {
	// Version reported during the handshake.
	Version uint16

	mx       sync.Mutex
	received [][]byte
	position [5]int32
	corrupt  int
	statuses []byte
	pending  int
	hook     func(payload []byte)

	capturing string
	captured  uint32
	files     map[string]uint32
	paused    bool

	hostR *io.PipeReader
	hostW *io.PipeWriter
	fwR   *io.PipeReader
	fwW   *io.PipeWriter
	done  chan struct{}
}

// New starts a firmware. Use Conn as the driver's byte stream.
func New() *Firmware {
	f := &Firmware{
		Version: 200,
		files:   make(map[string]uint32),
		done:    make(chan struct{}),
	}
	f.fwR, f.hostW = io.Pipe()
	f.hostR, f.fwW = io.Pipe()
	go f.loop()
	return f
}

type hostConn struct {
	io.Reader
	io.Writer
	f *Firmware
}

func (c hostConn) Close() error {
	c.f.hostW.Close()
	c.f.hostR.Close()
	return nil
}

// Conn returns the host end of the link.
func (f *Firmware) Conn() io.ReadWriteCloser {
	return hostConn{Reader: f.hostR, Writer: f.hostW, f: f}
}

// Done is closed once the host has closed the link.
func (f *Firmware) Done() <-chan struct{} { return f.done }

// CorruptNext damages the checksum of the next n responses.
func (f *Firmware) CorruptNext(n int) {
	f.mx.Lock()
	f.corrupt = n
	f.mx.Unlock()
}

// RespondStatus answers the next packets with the given statuses instead
// of OK, in order, without executing them.
func (f *Firmware) RespondStatus(statuses ...byte) {
	f.mx.Lock()
	f.statuses = append(f.statuses, statuses...)
	f.mx.Unlock()
}

// BusyFor makes IS_FINISHED report false for the next n polls.
func (f *Firmware) BusyFor(n int) {
	f.mx.Lock()
	f.pending = n
	f.mx.Unlock()
}

// OnPacket registers fn to be called with each payload before it is
// answered. fn may block to stall the machine.
func (f *Firmware) OnPacket(fn func(payload []byte)) {
	f.mx.Lock()
	f.hook = fn
	f.mx.Unlock()
}

// Received returns a copy of every payload received so far.
func (f *Firmware) Received() [][]byte {
	f.mx.Lock()
	defer f.mx.Unlock()
	res := make([][]byte, len(f.received))
	copy(res, f.received)
	return res
}

// Codes returns the command code of every payload received so far.
func (f *Firmware) Codes() []byte {
	var res []byte
	for _, p := range f.Received() {
		res = append(res, p[0])
	}
	return res
}

// Position returns the machine position in steps.
func (f *Firmware) Position() [5]int32 {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.position
}

// SetPosition moves the machine without telling the host.
func (f *Firmware) SetPosition(steps [5]int32) {
	f.mx.Lock()
	f.position = steps
	f.mx.Unlock()
}

// Paused reports whether the firmware pause toggle is set.
func (f *Firmware) Paused() bool {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.paused
}

// Captured returns the size of a file captured to the card.
func (f *Firmware) Captured(name string) (uint32, bool) {
	f.mx.Lock()
	defer f.mx.Unlock()
	n, ok := f.files[name]
	return n, ok
}

func (f *Firmware) loop() {
	defer close(f.done)
	defer f.fwW.Close()

	fr := protocol.NewFrameReader(f.fwR)
	for {
		payload, err := fr.ReadFrame()
		if protocol.IsKind(err, protocol.KindChecksum) {
			if f.respond([]byte{protocol.StatusCRCMismatch}) != nil {
				return
			}
			continue
		}
		if err != nil {
			return
		}

		f.mx.Lock()
		f.received = append(f.received, append([]byte(nil), payload...))
		hook := f.hook
		f.mx.Unlock()
		if hook != nil {
			hook(payload)
		}

		if f.respond(f.handle(payload)) != nil {
			return
		}
	}
}

func (f *Firmware) respond(resp []byte) error {
	p := protocol.MustFrame(resp)

	f.mx.Lock()
	if f.corrupt > 0 {
		f.corrupt--
		p[len(p)-1] ^= 0xFF
	}
	f.mx.Unlock()

	_, err := f.fwW.Write(p)
	return err
}

func ok(fields ...byte) []byte {
	return append([]byte{protocol.StatusOK}, fields...)
}

func le32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func (f *Firmware) positionFields(n int) []byte {
	var res []byte
	for _, v := range f.position[:n] {
		res = append(res, le32(v)...)
	}
	return res
}

func (f *Firmware) readPosition(r *protocol.Reader, n int) {
	for i := 0; i < n; i++ {
		f.position[i] = r.Int32()
	}
}

func (f *Firmware) handle(payload []byte) []byte {
	f.mx.Lock()
	defer f.mx.Unlock()

	if len(f.statuses) > 0 {
		s := f.statuses[0]
		f.statuses = f.statuses[1:]
		return []byte{s}
	}

	r := protocol.NewReader(payload)
	code := r.Uint8()

	if f.capturing != "" && code >= 128 {
		f.captured += uint32(len(payload))
		return ok()
	}

	switch code {
	case protocol.CodeVersion:
		return ok(byte(f.Version), byte(f.Version>>8))
	case protocol.CodeGetPosition:
		return ok(append(f.positionFields(3), 0)...)
	case protocol.CodeGetPositionExt:
		return ok(append(f.positionFields(5), 0, 0)...)
	case protocol.CodeQueuePointAbs, protocol.CodeSetPosition:
		f.readPosition(r, 3)
	case protocol.CodeQueuePointExt, protocol.CodeSetPositionExt:
		f.readPosition(r, 5)
	case protocol.CodePause:
		f.paused = !f.paused
	case protocol.CodeAbort:
		f.paused = false
		f.pending = 0
	case protocol.CodeReset:
		f.paused = false
		f.pending = 0
		f.position = [5]int32{}
	case protocol.CodeIsFinished:
		if f.pending > 0 {
			f.pending--
			return ok(0)
		}
		return ok(1)
	case protocol.CodeCaptureToFile:
		f.capturing = r.String()
		f.captured = 0
		return ok(protocol.SDSuccess)
	case protocol.CodeEndCapture:
		n := f.captured
		f.files[f.capturing] = n
		f.capturing = ""
		return ok(le32(int32(n))...)
	case protocol.CodePlaybackCapture:
		if _, found := f.files[r.String()]; !found {
			return ok(protocol.SDFileNotFound)
		}
		return ok(protocol.SDSuccess)
	case protocol.CodeToolQuery:
		r.Uint8()
		switch r.Uint8() {
		case protocol.ToolGetTemperature:
			return ok(220, 0)
		case protocol.ToolIsReady:
			return ok(1)
		}
	}
	return ok()
}
