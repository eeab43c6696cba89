// Package conn implements C5 of spec.md §4.5: the per-peer TCP socket
// state machine, its orthogonal authentication sub-state, the fast/slow
// link speed probe, and connect throttling, grounded on gcsfuse's
// `fs/fs.go` invariant-guarded top-level state and the pack's ratelimit/
// token-bucket idiom for throttling.
package conn

// State is a peer socket's connection state, spec.md §4.5.
type State int

const (
	StateNone State = iota
	StateConnecting
	StateActive
	StateEstablished
	StatePassive
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEstablished:
		return "established"
	case StatePassive:
		return "passive"
	default:
		return "invalid"
	}
}

// AuthState is the orthogonal authentication sub-state machine, spec.md §4.5.
type AuthState int

const (
	AuthNone AuthState = iota
	AuthQ1
	AuthStage1
	AuthQ3
	AuthFinished
)

func (a AuthState) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthQ1:
		return "q1"
	case AuthStage1:
		return "stage1"
	case AuthQ3:
		return "q3"
	case AuthFinished:
		return "finished"
	default:
		return "invalid"
	}
}

// LinkSpeed classifies a peer's connection for background-traffic
// throttling, spec.md §4.5.
type LinkSpeed int

const (
	SpeedUnknown LinkSpeed = iota
	SpeedFast
	SpeedSlow
)

func (s LinkSpeed) String() string {
	switch s {
	case SpeedFast:
		return "fast"
	case SpeedSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the legal State edges of spec.md §4.5's
// diagram: NONE→CONNECTING→ACTIVE→ESTABLISHED, and accepted sockets start
// PASSIVE then also reach ESTABLISHED.
var validTransitions = map[State][]State{
	StateNone:        {StateConnecting, StatePassive},
	StateConnecting:  {StateActive, StateNone},
	StateActive:      {StateEstablished, StateNone},
	StatePassive:     {StateEstablished, StateNone},
	StateEstablished: {StateNone},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
