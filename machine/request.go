package machine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/gcode"
)

// RequestType tags a Request.
type RequestType int

const (
	RequestConnect RequestType = iota
	RequestDisconnect
	RequestReset
	RequestSimulate
	RequestBuildDirect
	RequestBuildToFile
	RequestBuildToRemoteFile
	RequestBuildRemote
	RequestPause
	RequestUnpause
	RequestStop
	RequestDisconnectRemoteBuild
	RequestRunCommand
)

var requestNames = [...]string{
	RequestConnect:               "CONNECT",
	RequestDisconnect:            "DISCONNECT",
	RequestReset:                 "RESET",
	RequestSimulate:              "SIMULATE",
	RequestBuildDirect:           "BUILD_DIRECT",
	RequestBuildToFile:           "BUILD_TO_FILE",
	RequestBuildToRemoteFile:     "BUILD_TO_REMOTE_FILE",
	RequestBuildRemote:           "BUILD_REMOTE",
	RequestPause:                 "PAUSE",
	RequestUnpause:               "UNPAUSE",
	RequestStop:                  "STOP",
	RequestDisconnectRemoteBuild: "DISCONNECT_REMOTE_BUILD",
	RequestRunCommand:            "RUN_COMMAND",
}

func (t RequestType) String() string {
	if t >= 0 && int(t) < len(requestNames) {
		return requestNames[t]
	}
	return fmt.Sprintf("RequestType(%d)", int(t))
}

func (t RequestType) isBuild() bool {
	switch t {
	case RequestSimulate, RequestBuildDirect, RequestBuildToFile, RequestBuildToRemoteFile, RequestBuildRemote:
		return true
	}
	return false
}

// Request is an operation handed to the worker. Only the fields its Type
// needs are set.
type Request struct {
	Type RequestType

	// Source for builds that read a command source.
	Source gcode.Source
	// Path of the local file for RequestBuildToFile.
	Path string
	// Remote is the card file name for RequestBuildToRemoteFile and
	// RequestBuildRemote.
	Remote string
	// Command for RequestRunCommand.
	Command driver.Command

	// Estimate and LinesTotal come from a dry run on the caller.
	Estimate   time.Duration
	LinesTotal int
}

func (r Request) target() JobTarget {
	switch r.Type {
	case RequestBuildDirect:
		return TargetMachine
	case RequestSimulate:
		return TargetSimulator
	case RequestBuildToFile:
		return TargetFile
	case RequestBuildToRemoteFile:
		return TargetRemoteFile
	case RequestBuildRemote:
		return TargetRemote
	}
	return TargetNone
}

// BuildJob is one execution of a source against a target.
type BuildJob struct {
	ID       string
	Target   JobTarget
	Source   gcode.Source
	Path     string
	Remote   string
	Estimate time.Duration
	Lines    int
	Started  time.Time
}

func newJob(r Request) *BuildJob {
	return &BuildJob{
		ID:       uuid.NewString(),
		Target:   r.target(),
		Source:   r.Source,
		Path:     r.Path,
		Remote:   r.Remote,
		Estimate: r.Estimate,
		Lines:    r.LinesTotal,
		Started:  time.Now(),
	}
}

func (j *BuildJob) String() string {
	name := j.Remote
	if j.Source != nil {
		name = j.Source.Name()
	}
	return fmt.Sprintf("%s %s (%s)", j.Target, name, j.ID)
}
