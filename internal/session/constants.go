package session

// Client commands.
const (
	CmdStartAnalysis = "start_analysis"
)

// State of a realtime transcription session.
type State int32

const (
	AwaitingCommand State = iota
	Streaming
	Triggering
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingCommand:
		return "awaiting_command"
	case Streaming:
		return "streaming"
	case Triggering:
		return "triggering"
	case Closed:
		return "closed"
	}
	return "unknown"
}
