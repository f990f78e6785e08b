package protocol

// Host query command codes. These return data immediately.
const (
	CodeVersion         byte = 0
	CodeInit            byte = 1
	CodeBufferSize      byte = 2
	CodeClearBuffer     byte = 3
	CodeGetPosition     byte = 4
	CodeAbort           byte = 7
	CodePause           byte = 8
	CodeToolQuery       byte = 10
	CodeIsFinished      byte = 11
	CodeCaptureToFile   byte = 14
	CodeEndCapture      byte = 15
	CodePlaybackCapture byte = 16
	CodeReset           byte = 17
	CodeGetPositionExt  byte = 21
	CodeExtendedStop    byte = 22
)

// Buffered command codes. These are queued by the firmware.
const (
	CodeQueuePointAbs  byte = 129
	CodeSetPosition    byte = 130
	CodeDelay          byte = 133
	CodeChangeTool     byte = 134
	CodeWaitForTool    byte = 135
	CodeToolCommand    byte = 136
	CodeEnableAxes     byte = 137
	CodeQueuePointExt  byte = 139
	CodeSetPositionExt byte = 140
)

// Tool sub-commands carried inside CodeToolCommand / CodeToolQuery.
const (
	ToolGetTemperature         byte = 2
	ToolSetTemperature         byte = 3
	ToolSetMotorRPM            byte = 6
	ToolSetMotorDirection      byte = 8
	ToolToggleMotor            byte = 10
	ToolToggleFan              byte = 12
	ToolIsReady                byte = 22
	ToolSetPlatformTemperature byte = 31
)

// Response status codes.
const (
	StatusGenericError      byte = 0x80
	StatusOK                byte = 0x81
	StatusBufferOverflow    byte = 0x82
	StatusCRCMismatch       byte = 0x83
	StatusQueryOverflow     byte = 0x84
	StatusUnsupported       byte = 0x85
	StatusDownstreamTimeout byte = 0x87
)

// StatusTransient reports whether a response status may be retried.
func StatusTransient(status byte) bool {
	switch status {
	case StatusGenericError, StatusBufferOverflow, StatusCRCMismatch,
		StatusQueryOverflow, StatusDownstreamTimeout:
		return true
	}
	return false
}

// SD card response codes for capture and playback.
const (
	SDSuccess      byte = 0
	SDNoCard       byte = 1
	SDInitFailed   byte = 2
	SDPartition    byte = 3
	SDFilesystem   byte = 4
	SDRootDir      byte = 5
	SDLocked       byte = 6
	SDFileNotFound byte = 7
)
