package board

import (
	"strings"
	"time"

	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/state"
)

// Task is the board's view of a task. State is the display column; the
// remote vocabulary never leaks past the gateway boundary.
type Task struct {
	ID        string
	Title     string
	Notes     string
	State     state.Display
	CreatedAt time.Time
	UpdatedAt time.Time
}

// tempIDPrefix marks client-generated ids awaiting server confirmation.
const tempIDPrefix = "tmp_"

// IsTempID reports whether id was generated locally and not yet confirmed
// by the gateway.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

func fromWire(t gateway.Task) Task {
	return Task{
		ID:        t.ID,
		Title:     t.Title,
		Notes:     t.Notes,
		State:     state.ToDisplay(t.State),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
