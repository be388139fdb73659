package state

import "fmt"

// Display is one of the four board columns, in lifecycle order.
type Display int

const (
	Exploring Display = iota
	Active
	Reviewing
	Complete
)

var displayNames = [...]string{"Exploring", "Active", "Reviewing", "Complete"}

func (d Display) String() string {
	if d < Exploring || d > Complete {
		return "Exploring"
	}
	return displayNames[d]
}

// Columns returns the four display states in board order.
func Columns() []Display {
	return []Display{Exploring, Active, Reviewing, Complete}
}

// Next returns the following column, clamped at Complete.
func (d Display) Next() Display {
	if d >= Complete {
		return Complete
	}
	return d + 1
}

// Prev returns the preceding column, clamped at Exploring.
func (d Display) Prev() Display {
	if d <= Exploring {
		return Exploring
	}
	return d - 1
}

// ParseDisplay resolves a user-supplied column name.
func ParseDisplay(s string) (Display, error) {
	for i, name := range displayNames {
		if name == s {
			return Display(i), nil
		}
	}
	return Exploring, fmt.Errorf("unknown state %q (want one of Exploring, Active, Reviewing, Complete)", s)
}

// Remote is the vocabulary the task gateway stores.
type Remote string

const (
	RemoteExploring Remote = "Exploring"
	RemotePlanning  Remote = "Planning"
	RemoteDoing     Remote = "Doing"
	RemoteDone      Remote = "Done"
)

var displayToRemote = map[Display]Remote{
	Exploring: RemoteExploring,
	Active:    RemotePlanning,
	Reviewing: RemoteDoing,
	Complete:  RemoteDone,
}

var remoteToDisplay = map[Remote]Display{
	RemoteExploring: Exploring,
	RemotePlanning:  Active,
	RemoteDoing:     Reviewing,
	RemoteDone:      Complete,
}

// ToDisplay maps a remote value onto a board column. Values outside the
// known set land in Exploring rather than erroring; stale clients and
// server-side experiments must not break the board.
func ToDisplay(r Remote) Display {
	if d, ok := remoteToDisplay[r]; ok {
		return d
	}
	return Exploring
}

// ToRemote maps a board column onto the gateway vocabulary.
func ToRemote(d Display) Remote {
	if r, ok := displayToRemote[d]; ok {
		return r
	}
	return RemoteExploring
}
