package machine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnomatos822/replicatorg/coord"
	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/driver/s3g/s3gtest"
	"github.com/magnomatos822/replicatorg/gcode"
	"github.com/magnomatos822/replicatorg/model"
	"github.com/magnomatos822/replicatorg/protocol"
)

const waitFor = 3 * time.Second

func testModel() *model.Machine {
	m := model.NewMachine("bot", coord.X, coord.Y, coord.Z, coord.A, coord.B)
	m.StepsPerMM = coord.Point{X: 100, Y: 100, Z: 400, A: 50, B: 50}
	m.AddTool(&model.Tool{Index: 0, Name: "extruder"})
	return m
}

type recorder struct {
	mx       sync.Mutex
	states   []StateChangeEvent
	progress []ProgressEvent
	tools    []model.Tool
}

func (r *recorder) listener() Listener {
	return &ListenerFuncs{
		OnState: func(ev StateChangeEvent) {
			r.mx.Lock()
			r.states = append(r.states, ev)
			r.mx.Unlock()
		},
		OnProgress: func(ev ProgressEvent) {
			r.mx.Lock()
			r.progress = append(r.progress, ev)
			r.mx.Unlock()
		},
		OnTool: func(ev ToolStatusEvent) {
			r.mx.Lock()
			r.tools = append(r.tools, ev.Tool)
			r.mx.Unlock()
		},
	}
}

// entered counts transitions into s.
func (r *recorder) entered(s State) int {
	r.mx.Lock()
	defer r.mx.Unlock()
	var n int
	for _, ev := range r.states {
		if ev.Current.State == s && ev.Previous.State != s {
			n++
		}
	}
	return n
}

func (r *recorder) statuses() []Status {
	r.mx.Lock()
	defer r.mx.Unlock()
	res := make([]Status, len(r.states))
	for i, ev := range r.states {
		res[i] = ev.Current
	}
	return res
}

func (r *recorder) progressEvents() []ProgressEvent {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]ProgressEvent(nil), r.progress...)
}

func (r *recorder) toolEvents() []model.Tool {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]model.Tool(nil), r.tools...)
}

func (r *recorder) wait(t *testing.T, s State, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.entered(s) >= n }, waitFor, 2*time.Millisecond,
		"waiting to enter %s %d time(s)", s, n)
}

type harness struct {
	*Controller
	fw   *s3gtest.Firmware
	rec  *recorder
	link *trackedLink
}

// trackedLink counts reads in progress on the machine link.
type trackedLink struct {
	io.ReadWriteCloser
	reading atomic.Int32
	closed  atomic.Bool
}

func (l *trackedLink) Read(p []byte) (int, error) {
	l.reading.Add(1)
	defer l.reading.Add(-1)
	return l.ReadWriteCloser.Read(p)
}

func (l *trackedLink) Close() error {
	l.closed.Store(true)
	return l.ReadWriteCloser.Close()
}

func (l *trackedLink) idle() bool { return l.closed.Load() && l.reading.Load() == 0 }

func newHarness(t *testing.T, tweak func(o *Options)) *harness {
	h := &harness{fw: s3gtest.New(), rec: &recorder{}}
	logger, _ := test.NewNullLogger()
	opts := Options{
		Dial: func(context.Context) (io.ReadWriteCloser, error) {
			h.link = &trackedLink{ReadWriteCloser: h.fw.Conn()}
			return h.link, nil
		},
		Model:              testModel(),
		RetryDelay:         time.Millisecond,
		ResponseTimeout:    2 * time.Second,
		ConnectTimeout:     2 * time.Second,
		DisposeTimeout:     time.Second,
		RemotePollInterval: 5 * time.Millisecond,
		Logger:             logger,
	}
	if tweak != nil {
		tweak(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	c.AddListener(h.rec.listener())
	h.Controller = c
	t.Cleanup(c.Dispose)
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, h.Connect())
	h.rec.wait(t, Ready, 1)
}

// holdAt stalls the firmware on the nth packet with the given code until
// release is called.
func (h *harness) holdAt(t *testing.T, code byte, n int) (reached <-chan struct{}, release func()) {
	hit := make(chan struct{})
	gate := make(chan struct{})
	var seen int
	h.fw.OnPacket(func(p []byte) {
		if p[0] != code {
			return
		}
		seen++
		if seen == n {
			close(hit)
			<-gate
		}
	})
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return hit, release
}

func (h *harness) moves() int {
	var n int
	for _, c := range h.fw.Codes() {
		if c == protocol.CodeQueuePointExt {
			n++
		}
	}
	return n
}

func source(lines ...string) gcode.Source {
	return &gcode.StringSource{Label: "test", Lines: lines}
}

func within(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestController_Connect(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, NotConnected, h.State())

	h.connect(t)
	st := h.Status()
	assert.Equal(t, "Makerbot4G", st.Driver)
	assert.Equal(t, uint16(200), st.Version)
	assert.Equal(t, 1, h.rec.entered(Connecting))
	assert.Equal(t, "bot", h.MachineName())
}

func TestController_ConnectFailure(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Dial = func(context.Context) (io.ReadWriteCloser, error) {
			return nil, errors.New("no such port")
		}
	})

	require.NoError(t, h.Connect())
	h.rec.wait(t, NotConnected, 1)

	st := h.Status()
	assert.Equal(t, NotConnected, st.State)
	require.Error(t, st.Err)
	assert.Contains(t, st.Message(), "no such port")
}

func TestController_Reconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	require.NoError(t, h.Disconnect())
	h.rec.wait(t, NotConnected, 1)
	within(t, h.fw.Done(), "link close")

	h.fw = s3gtest.New()
	h.connect(t)
	h.rec.wait(t, Ready, 2)
}

func TestController_Reset(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	require.NoError(t, h.Reset())
	require.Eventually(t, func() bool {
		codes := h.fw.Codes()
		n := len(codes)
		return n >= 3 &&
			codes[n-3] == protocol.CodeReset &&
			codes[n-2] == protocol.CodeVersion &&
			codes[n-1] == protocol.CodeGetPositionExt
	}, waitFor, 2*time.Millisecond)
	assert.Equal(t, Ready, h.State())
	assert.Equal(t, 0, h.rec.entered(NotConnected))
}

func TestController_Execute(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	h.SetSource(source(
		"G21 G90",
		"G1 X10 F600",
		"G1 Y5.55",
		"G1 X12.5 Z2",
	))
	require.NoError(t, h.Execute())
	h.rec.wait(t, Ready, 2)

	assert.Equal(t, [5]int32{1250, 555, 800, 0, 0}, h.fw.Position())
	assert.Equal(t, 4, h.LinesProcessed())
	assert.Equal(t, TargetNone, h.Target())

	st := h.Status()
	assert.InDelta(t, 12.5, st.Position.X, 0.01)
	assert.InDelta(t, 5.55, st.Position.Y, 0.01)
	assert.NoError(t, st.Err)

	var building *Status
	for _, s := range h.rec.statuses() {
		if s.State == Building {
			s := s
			building = &s
		}
	}
	require.NotNil(t, building)
	assert.Equal(t, TargetMachine, building.Target)
	assert.NotEmpty(t, building.JobID)

	require.Eventually(t, func() bool { return len(h.rec.progressEvents()) == 4 }, waitFor, time.Millisecond)
	prog := h.rec.progressEvents()
	for i, p := range prog {
		assert.Equal(t, i+1, p.LinesProcessed)
		assert.Equal(t, 4, p.LinesTotal)
		assert.Equal(t, building.JobID, p.JobID)
	}
	assert.Greater(t, prog[0].Estimated, time.Duration(0))
}

func TestController_RunCommandIsOrdered(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	reached, release := h.holdAt(t, protocol.CodeQueuePointExt, 1)

	h.SetSource(source("G1 X1 F600", "G1 X2", "G1 X3"))
	require.NoError(t, h.Execute())
	within(t, reached, "first move")

	require.NoError(t, h.RunCommand(driver.SetTemperature{Tool: 0, Celsius: 200}))
	release()
	h.rec.wait(t, Ready, 2)

	codes := h.fw.Codes()
	require.Len(t, codes, 6)
	assert.Equal(t, []byte{
		protocol.CodeQueuePointExt,
		protocol.CodeToolCommand,
		protocol.CodeQueuePointExt,
		protocol.CodeQueuePointExt,
	}, codes[2:])
	assert.Equal(t, Ready, h.State())
}

func TestController_PauseBetweenLines(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	reached, release := h.holdAt(t, protocol.CodeQueuePointExt, 2)

	h.SetSource(source("G1 X1 F6000", "G1 X2", "G1 X3", "G1 X4"))
	require.NoError(t, h.Execute())
	within(t, reached, "second move")

	require.NoError(t, h.Pause())
	release()
	h.rec.wait(t, Paused, 1)
	assert.True(t, h.IsPaused())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, h.moves())
	assert.Equal(t, 2, h.LinesProcessed())
	assert.False(t, h.fw.Paused(), "a direct build pauses on the host")

	require.NoError(t, h.Unpause())
	h.rec.wait(t, Ready, 2)

	assert.Equal(t, 4, h.moves())
	assert.Equal(t, int32(400), h.fw.Position()[0])
	assert.Equal(t, 4, h.LinesProcessed())
}

func TestController_Stop(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	reached, release := h.holdAt(t, protocol.CodeQueuePointExt, 2)

	h.SetSource(source("G1 X1 F6000", "G1 X2", "G1 X3", "G1 X4"))
	require.NoError(t, h.Execute())
	within(t, reached, "second move")

	require.NoError(t, h.Stop())
	release()
	h.rec.wait(t, Ready, 2)

	assert.Equal(t, 1, h.rec.entered(Stopping))
	assert.Equal(t, 2, h.moves())
	codes := h.fw.Codes()
	assert.Equal(t, []byte{protocol.CodeAbort, protocol.CodeGetPositionExt}, codes[len(codes)-2:])
	assert.InDelta(t, 2, h.Status().Position.X, 0.01)
	assert.NoError(t, h.Status().Err)
}

func TestController_RetriesExhausted(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxRetries = 2 })
	h.connect(t)

	h.fw.CorruptNext(3)
	h.SetSource(source("G1 X10 F600", "G1 X20"))
	require.NoError(t, h.Execute())
	h.rec.wait(t, Ready, 2)

	assert.Equal(t, 3, h.moves(), "one attempt plus two retries")
	assert.Equal(t, 0, h.rec.entered(Error))

	var stopping *Status
	for _, s := range h.rec.statuses() {
		if s.State == Stopping {
			s := s
			stopping = &s
		}
	}
	require.NotNil(t, stopping)
	require.Error(t, stopping.Err)
	assert.Contains(t, stopping.Message(), "giving up after 3 attempts")

	var se *driver.StopError
	assert.ErrorAs(t, stopping.Err, &se)

	// the connection survives for the next build
	st := h.Status()
	assert.Equal(t, Ready, st.State)
	assert.Error(t, st.Err)
}

func TestController_TransientFailureRecovers(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	h.fw.CorruptNext(2)
	h.SetSource(source("G1 X10 F600", "G1 X20"))
	require.NoError(t, h.Execute())
	h.rec.wait(t, Ready, 2)

	assert.Equal(t, 0, h.rec.entered(Stopping))
	assert.Equal(t, 4, h.moves())
	assert.Equal(t, int32(2000), h.fw.Position()[0])
}

func TestController_DisposeWhileBuilding(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	lines := make([]string, 2000)
	for i := range lines {
		if i%2 == 0 {
			lines[i] = "G1 X10 F60000"
		} else {
			lines[i] = "G1 X0"
		}
	}
	h.SetSource(source(lines...))
	require.NoError(t, h.Execute())
	h.rec.wait(t, Building, 1)

	done := h.Done()
	h.Dispose()
	within(t, done, "worker exit")
	within(t, h.events.done, "dispatcher exit")
	within(t, h.fw.Done(), "link close")
	require.Eventually(t, func() bool { return h.link.idle() }, waitFor, time.Millisecond, "reader still blocked")

	assert.Equal(t, NotConnected, h.State())
	assert.ErrorIs(t, h.Connect(), ErrDisposed)
	assert.ErrorIs(t, h.Execute(), ErrDisposed)
}

func TestController_BlockingListener(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	block := make(chan struct{})
	var release sync.Once
	unblock := func() { release.Do(func() { close(block) }) }
	t.Cleanup(unblock)
	h.AddListener(&ListenerFuncs{
		OnState: func(StateChangeEvent) { <-block },
	})

	h.SetSource(source("G1 X1 F600", "G1 X2", "G1 X3", "G1 X4"))
	require.NoError(t, h.Execute())
	require.Eventually(t, func() bool {
		st := h.Status()
		return h.moves() == 4 && st.State == Ready && st.LinesProcessed == 4
	}, waitFor, time.Millisecond)

	// delivery resumes once the listener returns
	unblock()
	h.rec.wait(t, Ready, 2)
}

func TestController_Simulate(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	h.SetSource(source("G1 X10 F600", "G1 Y10", "M104 S210 T0"))
	require.NoError(t, h.Simulate())
	h.rec.wait(t, Ready, 2)

	assert.Equal(t, 1, h.rec.entered(Simulating))
	assert.Len(t, h.fw.Codes(), 2, "only the handshake reaches the machine")
	assert.Equal(t, 3, h.LinesProcessed())
	assert.Equal(t, coord.Point{}, h.Status().Position)
	assert.Zero(t, h.Model().Tool(0).TargetTemperature)
}

func TestController_BuildToFile(t *testing.T) {
	h := newHarness(t, nil)
	path := filepath.Join(t.TempDir(), "out.s3g")

	h.SetSource(source("G1 X1 F600", "G4 P1000"))
	require.NoError(t, h.BuildToFile(path))
	h.rec.wait(t, NotConnected, 1)

	assert.Equal(t, 1, h.rec.entered(Building))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, (1+5*4+4)+(1+4))
	assert.Equal(t, protocol.CodeQueuePointExt, data[0])
	assert.Equal(t, protocol.CodeDelay, data[25])
}

func TestController_UploadAndBuildRemote(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	h.SetSource(source("G1 X1 F600", "G1 X2"))
	require.NoError(t, h.Upload("job.s3g"))
	h.rec.wait(t, Ready, 2)

	n, ok := h.fw.Captured("job.s3g")
	require.True(t, ok)
	assert.Equal(t, uint32(2*(1+5*4+4)), n)
	assert.Equal(t, [5]int32{}, h.fw.Position())
	assert.Equal(t, coord.Point{}, h.Status().Position)

	h.fw.BusyFor(3)
	require.NoError(t, h.BuildRemote("job.s3g"))
	h.rec.wait(t, Ready, 3)

	var polls int
	for _, c := range h.fw.Codes() {
		if c == protocol.CodeIsFinished {
			polls++
		}
	}
	assert.Equal(t, 4, polls)
	assert.Contains(t, h.fw.Codes(), protocol.CodePlaybackCapture)

	var remote bool
	for _, s := range h.rec.statuses() {
		remote = remote || (s.State == Building && s.Target == TargetRemote)
	}
	assert.True(t, remote)
	assert.NoError(t, h.Status().Err)
}

func TestController_BuildRemoteMissingFile(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	require.NoError(t, h.BuildRemote("nope.s3g"))
	h.rec.wait(t, Ready, 2)

	assert.Equal(t, 1, h.rec.entered(Stopping))
	require.Error(t, h.Status().Err)
	assert.True(t, strings.Contains(h.Status().Message(), "playback"), h.Status().Message())
}

func TestController_PauseRemote(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	h.SetSource(source("G1 X1 F600"))
	require.NoError(t, h.Upload("job.s3g"))
	h.rec.wait(t, Ready, 2)

	h.fw.BusyFor(1 << 20)
	require.NoError(t, h.BuildRemote("job.s3g"))
	h.rec.wait(t, Building, 2)

	require.NoError(t, h.Pause())
	h.rec.wait(t, Paused, 1)
	assert.True(t, h.fw.Paused())

	require.NoError(t, h.Unpause())
	h.rec.wait(t, Building, 3)
	assert.False(t, h.fw.Paused())

	require.NoError(t, h.Stop())
	h.rec.wait(t, Ready, 3)
	assert.Contains(t, h.fw.Codes(), protocol.CodeAbort)
}

func TestController_RunCommandTool(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	require.NoError(t, h.RunCommand(driver.EnableMotor{Tool: 0}))
	require.Eventually(t, func() bool { return len(h.rec.toolEvents()) == 1 }, waitFor, time.Millisecond)

	assert.True(t, h.rec.toolEvents()[0].MotorEnabled)
	assert.True(t, h.Model().Tool(0).MotorEnabled)
	assert.Equal(t, Ready, h.State())

	require.NoError(t, h.RunCommand(driver.ReadTemperature{Tool: 0}))
	require.Eventually(t, func() bool { return len(h.rec.toolEvents()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, 220.0, h.rec.toolEvents()[1].Temperature)
	assert.Equal(t, 220.0, h.Model().Tool(0).Temperature)
}

func TestController_RunCommandNotConnected(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.RunCommand(driver.Delay{Duration: time.Second}))
	require.Eventually(t, func() bool { return len(h.rec.statuses()) == 1 }, waitFor, time.Millisecond)

	st := h.rec.statuses()[0]
	assert.Equal(t, NotConnected, st.State)
	assert.Contains(t, st.Message(), "not connected")
}

func TestController_Estimate(t *testing.T) {
	h := newHarness(t, nil)

	d, lines, err := h.Estimate(source("G1 X10 F600", "G1 X10 Y10", "; done"))
	require.NoError(t, err)
	assert.Equal(t, 3, lines)
	assert.InDelta(t, 2*time.Second, d, float64(time.Millisecond))
}

func TestController_NoSource(t *testing.T) {
	h := newHarness(t, nil)
	assert.Error(t, h.Execute())
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
