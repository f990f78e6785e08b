// Package s3g drives machines speaking the Sanguino3G family of packet
// protocols, either over a live connection or by capturing packets to a
// file.
package s3g

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/model"
	"github.com/magnomatos822/replicatorg/protocol"
)

// HostVersion is sent to the firmware during the handshake.
const HostVersion = 25

// Options configures a Driver.
type Options struct {
	// Variant defaults to protocol.Makerbot4G.
	Variant *protocol.Variant
	// Timeout for a single response. Defaults to one second.
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

func (o *Options) defaults() {
	if o.Variant == nil {
		o.Variant = protocol.Makerbot4G
	}
	if o.Timeout == 0 {
		o.Timeout = time.Second
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// Driver implements driver.Driver and driver.Capturer.
type Driver struct {
	driver.Base

	variant *protocol.Variant
	log     logrus.FieldLogger
	version uint16

	conn    *Conn
	capture io.Writer
	closer  io.Closer
}

var (
	_ driver.Driver   = &Driver{}
	_ driver.Capturer = &Driver{}
)

func newDriver(m *model.Machine, opts Options) *Driver {
	base, errs := driver.NewBase(m)
	d := &Driver{
		Base:    base,
		variant: opts.Variant,
		log:     opts.Logger.WithField("driver", opts.Variant.Name),
	}
	for _, err := range errs {
		d.log.WithError(err).Error("tool configuration")
	}
	return d
}

// New creates a driver talking to a machine over rwc.
func New(rwc io.ReadWriteCloser, m *model.Machine, opts Options) *Driver {
	opts.defaults()
	d := newDriver(m, opts)
	d.conn = NewConn(rwc, opts.Timeout, d.log)
	d.closer = d.conn
	return d
}

// NewCapture creates a driver that writes command payloads to w instead of
// a machine. Queries are answered locally: the position is the origin and
// the machine is always finished.
func NewCapture(w io.Writer, m *model.Machine, opts Options) *Driver {
	opts.defaults()
	d := newDriver(m, opts)
	d.capture = w
	if c, ok := w.(io.Closer); ok {
		d.closer = c
	}
	return d
}

func (d *Driver) Name() string { return d.variant.Name }

func (d *Driver) Version() uint16 { return d.version }

// Initialize exchanges versions with the firmware and reads the current
// position. Transient failures are retried until ctx is done.
func (d *Driver) Initialize(ctx context.Context) error {
	if d.capture != nil {
		d.CommitPosition(coord.Point{})
		return nil
	}
	for {
		err := d.handshake()
		if err == nil {
			return nil
		}
		if !driver.IsRetryable(err) {
			return err
		}
		d.log.WithError(err).Warn("handshake failed, retrying")
		select {
		case <-ctx.Done():
			return fmt.Errorf("handshake: %w", err)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (d *Driver) handshake() error {
	resp, err := d.query(protocol.NewBuilder(d.variant.Code(protocol.OpVersion)).Add16(HostVersion))
	if err != nil {
		return err
	}
	v := resp.Uint16()
	if err := resp.Err(); err != nil {
		return err
	}
	d.version = v
	d.log.WithField("version", v).Info("firmware connected")

	_, err = d.ReconcilePosition()
	return err
}

// query sends a packet that must be answered by the machine.
func (d *Driver) query(b *protocol.Builder) (*protocol.Response, error) {
	p, err := b.Packet()
	if err != nil {
		return nil, driver.Fatal("encode", err)
	}
	if d.conn == nil {
		return nil, driver.ErrUnsupported
	}
	return d.conn.RoundTrip(p)
}

// command sends a buffered command. In capture mode the payload is written
// to the capture instead.
func (d *Driver) command(b *protocol.Builder) error {
	p, err := b.Packet()
	if err != nil {
		return driver.Fatal("encode", err)
	}
	if d.capture != nil {
		if _, err := d.capture.Write(p.Payload()); err != nil {
			return driver.Fatal("capture", err)
		}
		return nil
	}
	_, err = d.conn.RoundTrip(p)
	return err
}

func (d *Driver) layout(op protocol.Op) protocol.Layout {
	l, _ := d.variant.Lookup(op)
	return l
}

// addAxes writes n step counts. A count that does not fit the 32-bit field
// is a fatal encoding error.
func addAxes(b *protocol.Builder, steps coord.Point, n int) error {
	for _, a := range coord.Axes[:n] {
		v := steps.Axis(a)
		if v > math.MaxInt32 || v < math.MinInt32 {
			return driver.Fatal("encode", fmt.Errorf("axis %s: %.0f steps out of range", a, v))
		}
		b.AddInt32(int32(v))
	}
	return nil
}

func (d *Driver) QueuePoint(target coord.Point, feedrate float64) error {
	plan, ok := d.PlanMove(target, feedrate)
	if !ok {
		return nil
	}

	l := d.layout(protocol.OpQueuePoint)
	b := protocol.NewBuilder(l.Code)
	if err := addAxes(b, plan.Steps, l.Axes); err != nil {
		return err
	}
	switch l.Timing {
	case protocol.TimingDDA:
		b.Add32(plan.DDA)
	case protocol.TimingMicros:
		b.Add32(plan.Micros())
	}

	d.log.WithFields(logrus.Fields{"steps": plan.Steps, "duration": plan.Duration}).Debug("queue point")
	if err := d.command(b); err != nil {
		return err
	}
	d.CommitPosition(plan.Target)
	return nil
}

// SetCurrentPosition always sends the position, even if it matches the
// cached one, and commits it only after the send succeeds.
func (d *Driver) SetCurrentPosition(p coord.Point) error {
	l := d.layout(protocol.OpSetPosition)
	b := protocol.NewBuilder(l.Code)
	steps := d.Machine().MMToSteps(p)
	if err := addAxes(b, steps, l.Axes); err != nil {
		return err
	}

	d.log.WithFields(logrus.Fields{"position": p, "steps": steps}).Debug("set position")
	if err := d.command(b); err != nil {
		return err
	}
	d.CommitPosition(p)
	return nil
}

// ReconcilePosition reads the machine position and makes it the cached
// position. A capture driver has no hardware and reports the origin.
func (d *Driver) ReconcilePosition() (coord.Point, error) {
	if d.capture != nil {
		d.CommitPosition(coord.Point{})
		return coord.Point{}, nil
	}
	l := d.layout(protocol.OpGetPosition)
	resp, err := d.query(protocol.NewBuilder(l.Code))
	if err != nil {
		return coord.Point{}, err
	}
	var steps coord.Point
	for _, a := range coord.Axes[:l.Axes] {
		steps = steps.SetAxis(a, float64(resp.Int32()))
	}
	if err := resp.Err(); err != nil {
		return coord.Point{}, err
	}
	p := d.Machine().StepsToMM(steps)
	d.CommitPosition(p)
	return p, nil
}

// Delay pauses the machine queue. Negative durations are sent as zero.
func (d *Driver) Delay(dur time.Duration) error {
	ms := dur.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > math.MaxUint32 {
		return driver.Fatal("encode", fmt.Errorf("delay %s out of range", dur))
	}
	return d.command(protocol.NewBuilder(d.variant.Code(protocol.OpDelay)).Add32(uint32(ms)))
}

func (d *Driver) SelectTool(index int) error {
	if _, err := d.Tool(index); err != nil {
		return driver.Fatal("select tool", err)
	}
	if err := d.command(protocol.NewBuilder(d.variant.Code(protocol.OpChangeTool)).Add8(uint8(index))); err != nil {
		return err
	}
	return d.Machine().SelectTool(index)
}

func (d *Driver) toolCommand(tool int, sub byte, data []byte) error {
	if _, err := d.Tool(tool); err != nil {
		return driver.Fatal("tool command", err)
	}
	b := protocol.NewBuilder(d.variant.Code(protocol.OpToolCommand)).
		Add8(uint8(tool)).
		Add8(sub).
		Add8(uint8(len(data))).
		AddBytes(data)
	return d.command(b)
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func celsius(v float64) uint16 {
	return uint16(math.Max(0, math.Min(math.Round(v), math.MaxUint16)))
}

func (d *Driver) SetTemperature(tool int, c float64) error {
	if err := d.toolCommand(tool, protocol.ToolSetTemperature, le16(celsius(c))); err != nil {
		return err
	}
	return d.UpdateTool(tool, func(t *model.Tool) { t.TargetTemperature = c })
}

func (d *Driver) SetPlatformTemperature(tool int, c float64) error {
	if err := d.toolCommand(tool, protocol.ToolSetPlatformTemperature, le16(celsius(c))); err != nil {
		return err
	}
	return d.UpdateTool(tool, func(t *model.Tool) { t.PlatformTargetTemperature = c })
}

// motorFlags packs the enable bit and the clockwise bit.
func motorFlags(enabled bool, dir model.Direction) []byte {
	var f byte
	if enabled {
		f |= 1
	}
	if dir == model.Clockwise {
		f |= 2
	}
	return []byte{f}
}

func (d *Driver) setMotor(tool int, enabled bool) error {
	t, err := d.Tool(tool)
	if err != nil {
		return driver.Fatal("motor", err)
	}
	if err := d.toolCommand(tool, protocol.ToolToggleMotor, motorFlags(enabled, t.MotorDirection)); err != nil {
		return err
	}
	t.MotorEnabled = enabled
	return nil
}

func (d *Driver) EnableMotor(tool int) error  { return d.setMotor(tool, true) }
func (d *Driver) DisableMotor(tool int) error { return d.setMotor(tool, false) }

func (d *Driver) SetMotorDirection(tool int, dir model.Direction) error {
	var v byte
	if dir == model.Clockwise {
		v = 1
	}
	if err := d.toolCommand(tool, protocol.ToolSetMotorDirection, []byte{v}); err != nil {
		return err
	}
	return d.UpdateTool(tool, func(t *model.Tool) { t.MotorDirection = dir })
}

// SetMotorRPM sends the motor speed as microseconds per revolution.
func (d *Driver) SetMotorRPM(tool int, rpm float64) error {
	var micros uint32
	if rpm > 0 {
		micros = uint32(math.Round(60e6 / rpm))
	}
	if err := d.toolCommand(tool, protocol.ToolSetMotorRPM, le32(micros)); err != nil {
		return err
	}
	return d.UpdateTool(tool, func(t *model.Tool) { t.MotorSpeedRPM = rpm })
}

func (d *Driver) SetFan(tool int, on bool) error {
	var v byte
	if on {
		v = 1
	}
	if err := d.toolCommand(tool, protocol.ToolToggleFan, []byte{v}); err != nil {
		return err
	}
	return d.UpdateTool(tool, func(t *model.Tool) { t.FanEnabled = on })
}

// WaitForTool blocks the machine queue until the tool is ready, polling
// every 100ms for at most timeout.
func (d *Driver) WaitForTool(tool int, timeout time.Duration) error {
	b := protocol.NewBuilder(d.variant.Code(protocol.OpWaitForTool)).
		Add8(uint8(tool)).
		Add16(100).
		Add16(uint16(math.Min(timeout.Seconds(), math.MaxUint16)))
	return d.command(b)
}

// ReadTemperature queries the current temperature of a tool. A capture
// driver has nothing to ask and leaves the model alone.
func (d *Driver) ReadTemperature(tool int) error {
	t, err := d.Tool(tool)
	if err != nil {
		return driver.Fatal("read temperature", err)
	}
	if d.capture != nil {
		return nil
	}
	resp, err := d.query(protocol.NewBuilder(d.variant.Code(protocol.OpToolQuery)).
		Add8(uint8(tool)).
		Add8(protocol.ToolGetTemperature))
	if err != nil {
		return err
	}
	v := resp.Uint16()
	if err := resp.Err(); err != nil {
		return err
	}
	t.Temperature = float64(v)
	return nil
}

func (d *Driver) simple(op protocol.Op) error {
	if d.capture != nil {
		return nil
	}
	_, err := d.query(protocol.NewBuilder(d.variant.Code(op)))
	return err
}

func (d *Driver) Abort() error { return d.simple(protocol.OpAbort) }
func (d *Driver) Pause() error { return d.simple(protocol.OpPause) }
func (d *Driver) Reset() error { return d.simple(protocol.OpReset) }

func sdError(op string, code byte) error {
	if code == protocol.SDSuccess {
		return nil
	}
	return driver.Fatal(op, fmt.Errorf("sd card error %d", code))
}

func (d *Driver) BeginCapture(name string) error {
	resp, err := d.query(protocol.NewBuilder(d.variant.Code(protocol.OpCaptureToFile)).AddString(name))
	if err != nil {
		return err
	}
	code := resp.Uint8()
	if err := resp.Err(); err != nil {
		return err
	}
	return sdError("begin capture", code)
}

func (d *Driver) EndCapture() (uint32, error) {
	resp, err := d.query(protocol.NewBuilder(d.variant.Code(protocol.OpEndCapture)))
	if err != nil {
		return 0, err
	}
	n := resp.Uint32()
	return n, resp.Err()
}

func (d *Driver) Playback(name string) error {
	resp, err := d.query(protocol.NewBuilder(d.variant.Code(protocol.OpPlaybackCapture)).AddString(name))
	if err != nil {
		return err
	}
	code := resp.Uint8()
	if err := resp.Err(); err != nil {
		return err
	}
	return sdError("playback", code)
}

func (d *Driver) IsFinished() (bool, error) {
	if d.capture != nil {
		return true, nil
	}
	resp, err := d.query(protocol.NewBuilder(d.variant.Code(protocol.OpIsFinished)))
	if err != nil {
		return false, err
	}
	v := resp.Uint8()
	return v != 0, resp.Err()
}

func (d *Driver) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
