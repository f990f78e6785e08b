package gcode

// ModalGroup is the set of codes that are mutually exclusive on a line. The
// interpreter keeps the last code of each modal group in effect.
type ModalGroup byte

const (
	ModalGroupNone ModalGroup = iota
	// ModalGroupNonModal codes act once: dwell, set position, temperatures.
	ModalGroupNonModal
	ModalGroupMotion
	ModalGroupPlaneSelection
	ModalGroupDistanceMode
	ModalGroupUnits
	ModalGroupCoordinateSystem
	ModalGroupStopping
	ModalGroupToolChange
	// ModalGroupExtruder is the extruder motor: forward, reverse, off.
	ModalGroupExtruder
	ModalGroupFan
	ModalGroupFeedRate
)

var modalGroupNames = [...]string{
	ModalGroupNone:             "none",
	ModalGroupNonModal:         "non-modal",
	ModalGroupMotion:           "motion",
	ModalGroupPlaneSelection:   "plane",
	ModalGroupDistanceMode:     "distance",
	ModalGroupUnits:            "units",
	ModalGroupCoordinateSystem: "coordinate system",
	ModalGroupStopping:         "stopping",
	ModalGroupToolChange:       "tool change",
	ModalGroupExtruder:         "extruder",
	ModalGroupFan:              "fan",
	ModalGroupFeedRate:         "feed rate",
}

func (m ModalGroup) String() string {
	if int(m) < len(modalGroupNames) {
		return modalGroupNames[m]
	}
	return "unknown"
}

func (w Word) ModalGroup() ModalGroup {
	switch w.W {
	case 'G':
		switch w.Arg {
		case 4, 10, 28, 92:
			return ModalGroupNonModal
		case 0, 1, 2, 3:
			return ModalGroupMotion
		case 17, 18, 19:
			return ModalGroupPlaneSelection
		case 90, 91:
			return ModalGroupDistanceMode
		case 20, 21:
			return ModalGroupUnits
		case 54, 55, 56, 57, 58, 59:
			return ModalGroupCoordinateSystem
		}
	case 'M':
		switch w.Arg {
		case 0, 1, 2, 30:
			return ModalGroupStopping
		case 6:
			return ModalGroupToolChange
		case 101, 102, 103:
			return ModalGroupExtruder
		case 106, 107:
			return ModalGroupFan
		case 18, 104, 105, 108, 109, 140:
			return ModalGroupNonModal
		}
	case 'F':
		return ModalGroupFeedRate
	}
	return ModalGroupNone
}
