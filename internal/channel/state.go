// Package channel implements the per-connection state machine: the
// initialize/active/inactive lifecycle, ping/pong liveness supervision,
// and the post-handshake readiness sequence (login -> directory ->
// dictionaries -> ready) that gates when a session may start producing
// refresh bursts.
package channel

// State is the coarse channel lifecycle state.
type State int

const (
	StateInit State = iota
	StateHandshake
	StateActive
	StateInactive
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHandshake:
		return "handshake"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Readiness is the post-handshake staged readiness sequence a session
// walks through once its transport channel reaches StateActive.
type Readiness int

const (
	ReadyInit Readiness = iota
	ReadyLoginSent
	ReadyLoggedIn
	ReadyDirectorySent
	ReadyHaveDirectory
	ReadyHaveFieldDict
	ReadyHaveEnumDict
	ReadyComplete
)

func (r Readiness) String() string {
	switch r {
	case ReadyInit:
		return "init"
	case ReadyLoginSent:
		return "login_sent"
	case ReadyLoggedIn:
		return "logged_in"
	case ReadyDirectorySent:
		return "directory_sent"
	case ReadyHaveDirectory:
		return "have_directory"
	case ReadyHaveFieldDict:
		return "have_field_dict"
	case ReadyHaveEnumDict:
		return "have_enum_dict"
	case ReadyComplete:
		return "ready"
	default:
		return "unknown"
	}
}
