package machine

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/magnomatos822/replicatorg/model"
)

// StateChangeEvent is sent on every state transition, and when a queued
// operation fails without changing state.
type StateChangeEvent struct {
	Previous Status
	Current  Status
}

// ProgressEvent is sent after every processed line, and on every poll of a
// remote build.
type ProgressEvent struct {
	JobID          string        `json:"job_id"`
	Target         JobTarget     `json:"target"`
	LinesProcessed int           `json:"lines_processed"`
	LinesTotal     int           `json:"lines_total"`
	Elapsed        time.Duration `json:"elapsed"`
	Estimated      time.Duration `json:"estimated"`
}

// ToolStatusEvent carries a copy of a tool after a tool command succeeded.
type ToolStatusEvent struct {
	Tool model.Tool
}

// Listener receives machine events. Methods are called from a dispatcher
// goroutine, never the worker, in the order the events happened.
type Listener interface {
	MachineStateChanged(StateChangeEvent)
	MachineProgress(ProgressEvent)
	ToolStatusChanged(ToolStatusEvent)
}

// dispatcher delivers events to listeners on its own goroutine so a slow
// listener cannot stall the worker.
type dispatcher struct {
	events    *queue[any]
	listeners func() []Listener
	log       logrus.FieldLogger
	done      chan struct{}
}

func newDispatcher(listeners func() []Listener, log logrus.FieldLogger) *dispatcher {
	d := &dispatcher{
		events:    newQueue[any](),
		listeners: listeners,
		log:       log,
		done:      make(chan struct{}),
	}
	go d.loop()
	return d
}

// Send queues ev without blocking. Events sent after Close are dropped.
func (d *dispatcher) Send(ev any) {
	d.events.Push(ev)
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for {
		ev, ok := d.events.Pop()
		if !ok {
			return
		}
		for _, l := range d.listeners() {
			d.deliver(l, ev)
		}
	}
}

func (d *dispatcher) deliver(l Listener, ev any) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("listener panicked")
		}
	}()
	switch ev := ev.(type) {
	case StateChangeEvent:
		l.MachineStateChanged(ev)
	case ProgressEvent:
		l.MachineProgress(ev)
	case ToolStatusEvent:
		l.ToolStatusChanged(ev)
	}
}

// Close stops accepting events; queued events are still delivered.
func (d *dispatcher) Close() { d.events.Close() }

func (d *dispatcher) closed() bool { return d.events.Closed() }

// listenerSet is a copy-on-write list of listeners.
type listenerSet struct {
	mx   sync.Mutex
	list []Listener
}

func (s *listenerSet) add(l Listener) {
	s.mx.Lock()
	defer s.mx.Unlock()
	list := make([]Listener, 0, len(s.list)+1)
	list = append(list, s.list...)
	s.list = append(list, l)
}

func (s *listenerSet) remove(l Listener) {
	s.mx.Lock()
	defer s.mx.Unlock()
	list := make([]Listener, 0, len(s.list))
	for _, x := range s.list {
		if x != l {
			list = append(list, x)
		}
	}
	s.list = list
}

func (s *listenerSet) snapshot() []Listener {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.list
}

// ListenerFuncs adapts functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnState    func(StateChangeEvent)
	OnProgress func(ProgressEvent)
	OnTool     func(ToolStatusEvent)
}

func (f *ListenerFuncs) MachineStateChanged(ev StateChangeEvent) {
	if f.OnState != nil {
		f.OnState(ev)
	}
}

func (f *ListenerFuncs) MachineProgress(ev ProgressEvent) {
	if f.OnProgress != nil {
		f.OnProgress(ev)
	}
}

func (f *ListenerFuncs) ToolStatusChanged(ev ToolStatusEvent) {
	if f.OnTool != nil {
		f.OnTool(ev)
	}
}
