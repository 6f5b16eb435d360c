package orchestrator

import "fmt"

// State is the orchestrator's position in the startup sequence.
type State int32

const (
	StateInit State = iota
	StateLinkConfiguring
	StateLinkConnecting
	StateLinkAssociated
	StateSessionEstablishing
	StateSubscribing
	StateMonitoring
	StateReassociating
	StateFailed
	StateStopped
)

var stateNames = map[State]string{
	StateInit:                "init",
	StateLinkConfiguring:     "link-configuring",
	StateLinkConnecting:      "link-connecting",
	StateLinkAssociated:      "link-associated",
	StateSessionEstablishing: "session-establishing",
	StateSubscribing:         "subscribing",
	StateMonitoring:          "monitoring",
	StateReassociating:       "reassociating",
	StateFailed:              "failed",
	StateStopped:             "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}
