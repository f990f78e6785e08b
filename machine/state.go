package machine

import (
	"fmt"

	"github.com/magnomatos822/replicatorg/coord"
)

// State is the operational mode of a machine.
type State int

const (
	NotConnected State = iota
	Connecting
	Ready
	Building
	Simulating
	Paused
	Stopping
	Error
)

var stateNames = [...]string{
	NotConnected: "NOT_CONNECTED",
	Connecting:   "CONNECTING",
	Ready:        "READY",
	Building:     "BUILDING",
	Simulating:   "SIMULATING",
	Paused:       "PAUSED",
	Stopping:     "STOPPING",
	Error:        "ERROR",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Connected reports whether a driver session is open.
func (s State) Connected() bool {
	switch s {
	case Ready, Building, Simulating, Paused, Stopping:
		return true
	}
	return false
}

// Running reports whether a job is in progress.
func (s State) Running() bool {
	switch s {
	case Building, Simulating, Paused:
		return true
	}
	return false
}

// JobTarget is where a build's commands go.
type JobTarget int

const (
	TargetNone JobTarget = iota
	TargetMachine
	TargetSimulator
	TargetFile
	TargetRemoteFile
	TargetRemote
)

var targetNames = [...]string{
	TargetNone:       "NONE",
	TargetMachine:    "MACHINE",
	TargetSimulator:  "SIMULATOR",
	TargetFile:       "FILE",
	TargetRemoteFile: "REMOTE_FILE",
	TargetRemote:     "REMOTE",
}

func (t JobTarget) String() string {
	if t >= 0 && int(t) < len(targetNames) {
		return targetNames[t]
	}
	return fmt.Sprintf("JobTarget(%d)", int(t))
}

func (t JobTarget) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// usesMachine reports whether the job drives the connected machine.
func (t JobTarget) usesMachine() bool {
	switch t {
	case TargetMachine, TargetRemoteFile, TargetRemote:
		return true
	}
	return false
}

// Status is a snapshot of the worker. It is a value copy and never changes
// after being handed out.
type Status struct {
	State  State     `json:"state"`
	Target JobTarget `json:"target"`
	JobID  string    `json:"job_id,omitempty"`

	LinesProcessed int `json:"lines_processed"`
	LinesTotal     int `json:"lines_total"`

	Position coord.Point `json:"position"`
	Driver   string      `json:"driver,omitempty"`
	Version  uint16      `json:"version,omitempty"`

	// Err is the failure that caused the last transition, if any.
	Err error `json:"-"`
}

// Message is the text of Err, or empty.
func (s Status) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
