package injector

// State is the progress of one LaunchAndInject call
type State int

// Coordinator states
const (
	Idle State = iota
	Launching
	AwaitingHandshake
	Injected
	Failed
)

var stateString = []string{
	"Idle",
	"Launching",
	"AwaitingHandshake",
	"Injected",
	"Failed",
}

func (s State) String() string {
	if s >= Idle && s <= Failed {
		return stateString[s]
	}
	return "Unknown"
}
