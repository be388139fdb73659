package move

import (
	"github.com/loopydev/flowboard/internal/board"
	"github.com/loopydev/flowboard/internal/state"
)

// Command pairs an optimistic board mutation with its inverse, so the move
// and bulk coordinators share one revert mechanism instead of ad hoc
// inverse assignments.
type Command interface {
	Apply() bool
	Rollback()
}

// moveCommand relocates a task between columns and remembers where it
// came from.
type moveCommand struct {
	svc    *board.Service
	taskID string
	target state.Display
	prev   state.Display
}

func (m *moveCommand) Apply() bool {
	prev, ok := m.svc.ApplyMove(m.taskID, m.target)
	if !ok {
		return false
	}
	m.prev = prev
	return true
}

func (m *moveCommand) Rollback() {
	m.svc.ApplyMove(m.taskID, m.prev)
}

// removeCommand takes a task off the board entirely (archive path).
type removeCommand struct {
	svc     *board.Service
	taskID  string
	removed board.Task
}

func (r *removeCommand) Apply() bool {
	t, ok := r.svc.RemoveTask(r.taskID)
	if !ok {
		return false
	}
	r.removed = t
	return true
}

func (r *removeCommand) Rollback() {
	r.svc.RestoreTask(r.removed)
}
