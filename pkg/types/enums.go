package types

// ProgressionStatus describes where in a progression attempt an event sits.
type ProgressionStatus int

const (
	ProgressionStart ProgressionStatus = iota + 1
	ProgressionComplete
	ProgressionFail
)

// String returns the wire form of the status, or "" for unknown values.
func (s ProgressionStatus) String() string {
	switch s {
	case ProgressionStart:
		return "Start"
	case ProgressionComplete:
		return "Complete"
	case ProgressionFail:
		return "Fail"
	default:
		return ""
	}
}

// ResourceFlowType describes whether a resource event adds or removes
// virtual currency.
type ResourceFlowType int

const (
	FlowSource ResourceFlowType = iota + 1
	FlowSink
)

func (f ResourceFlowType) String() string {
	switch f {
	case FlowSource:
		return "Source"
	case FlowSink:
		return "Sink"
	default:
		return ""
	}
}

// ErrorSeverity classifies error events.
type ErrorSeverity int

const (
	SeverityDebug ErrorSeverity = iota + 1
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return ""
	}
}

// LevelStatus describes the lifecycle stage of a level event.
type LevelStatus int

const (
	LevelStart LevelStatus = iota + 1
	LevelComplete
	LevelFail
)

func (s LevelStatus) String() string {
	switch s {
	case LevelStart:
		return "Start"
	case LevelComplete:
		return "Complete"
	case LevelFail:
		return "Fail"
	default:
		return ""
	}
}

// Connection type annotation values.
const (
	ConnectionOffline = "offline"
	ConnectionLAN     = "lan"
	ConnectionWifi    = "wifi"
	ConnectionWWAN    = "wwan"
)
