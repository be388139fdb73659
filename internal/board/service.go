package board

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loopydev/flowboard/internal/eventbus"
	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/state"
	"github.com/loopydev/flowboard/pkg/cerr"
)

// PendingResolver reports the in-flight optimistic move target for a task,
// if any. A refresh must not clobber a column assignment the user is still
// waiting on.
type PendingResolver interface {
	PendingTarget(taskID string) (state.Display, bool)
}

// SnapshotSaver persists the board after a successful refresh so the next
// session can seed itself offline.
type SnapshotSaver interface {
	Save(columns map[state.Display][]Task) error
}

// Service owns the board projection: a mapping from column to an ordered
// task slice. Every task id lives in exactly one column. All mutations
// replace whole column slices under the mutex, so readers always observe
// a consistent snapshot.
type Service struct {
	mu      sync.Mutex
	columns map[state.Display][]Task

	gw      gateway.TaskGateway
	bus     *eventbus.Bus
	pending PendingResolver
	snap    SnapshotSaver
}

type Option func(*Service)

func WithSnapshotSaver(s SnapshotSaver) Option {
	return func(svc *Service) {
		svc.snap = s
	}
}

func NewService(gw gateway.TaskGateway, bus *eventbus.Bus, opts ...Option) *Service {
	svc := &Service{
		columns: emptyColumns(),
		gw:      gw,
		bus:     bus,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SetPendingResolver wires the move coordinator in after construction;
// the coordinator needs the service first.
func (s *Service) SetPendingResolver(r PendingResolver) {
	s.mu.Lock()
	s.pending = r
	s.mu.Unlock()
}

func emptyColumns() map[state.Display][]Task {
	cols := make(map[state.Display][]Task, 4)
	for _, d := range state.Columns() {
		cols[d] = nil
	}
	return cols
}

// Refresh rebuilds the board from the gateway's full list. Fields follow
// the remote copy (last refresh wins), except the column of a task with an
// in-flight move, which keeps its optimistic target until the move settles.
func (s *Service) Refresh(ctx context.Context) error {
	tasks, err := s.gw.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh board: %w", err)
	}

	cols := emptyColumns()
	s.mu.Lock()
	for _, wt := range tasks {
		if wt.IsArchived {
			continue
		}
		t := fromWire(wt)
		if s.pending != nil {
			if target, ok := s.pending.PendingTarget(t.ID); ok {
				t.State = target
			}
		}
		cols[t.State] = append(cols[t.State], t)
	}
	s.columns = cols
	s.mu.Unlock()

	s.bus.PublishNew(eventbus.TypeBoardRefreshed, "", "")
	s.saveSnapshot()
	return nil
}

// Seed loads a previously saved board, typically from the snapshot cache
// when the gateway is unreachable at startup.
func (s *Service) Seed(columns map[state.Display][]Task) {
	cols := emptyColumns()
	for d, tasks := range columns {
		cols[d] = append([]Task(nil), tasks...)
	}
	s.mu.Lock()
	s.columns = cols
	s.mu.Unlock()
	s.bus.PublishNew(eventbus.TypeBoardRefreshed, "", "seed")
}

// Snapshot returns a deep copy of all columns.
func (s *Service) Snapshot() map[state.Display][]Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[state.Display][]Task, len(s.columns))
	for d, tasks := range s.columns {
		out[d] = append([]Task(nil), tasks...)
	}
	return out
}

// Column returns a copy of one column's ordered tasks.
func (s *Service) Column(d state.Display) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.columns[d]...)
}

func (s *Service) Find(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, idx, ok := s.findLocked(id)
	if !ok {
		return Task{}, false
	}
	return s.columns[st][idx], true
}

func (s *Service) StateOf(id string) (state.Display, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _, ok := s.findLocked(id)
	return st, ok
}

func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tasks := range s.columns {
		n += len(tasks)
	}
	return n
}

// findLocked scans all columns for id. Caller holds s.mu.
func (s *Service) findLocked(id string) (state.Display, int, bool) {
	for _, d := range state.Columns() {
		for i, t := range s.columns[d] {
			if t.ID == id {
				return d, i, true
			}
		}
	}
	return state.Exploring, 0, false
}

// ApplyMove reassigns a task's column, returning the column it came from.
// Both columns are replaced wholesale. The same primitive serves the
// optimistic apply and the rollback.
func (s *Service) ApplyMove(id string, to state.Display) (state.Display, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, idx, ok := s.findLocked(id)
	if !ok {
		return state.Exploring, false
	}
	t := s.columns[from][idx]
	t.State = to
	t.UpdatedAt = time.Now()

	src := make([]Task, 0, len(s.columns[from])-1)
	src = append(src, s.columns[from][:idx]...)
	src = append(src, s.columns[from][idx+1:]...)
	dst := append(append([]Task(nil), s.columns[to]...), t)

	s.columns[from] = src
	s.columns[to] = dst
	return from, true
}

// RemoveTask takes a task off the board, returning it for a later
// RestoreTask if the remote call fails.
func (s *Service) RemoveTask(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, idx, ok := s.findLocked(id)
	if !ok {
		return Task{}, false
	}
	t := s.columns[st][idx]
	col := make([]Task, 0, len(s.columns[st])-1)
	col = append(col, s.columns[st][:idx]...)
	col = append(col, s.columns[st][idx+1:]...)
	s.columns[st] = col
	return t, true
}

// RestoreTask puts a removed task back into its column.
func (s *Service) RestoreTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns[t.State] = append(append([]Task(nil), s.columns[t.State]...), t)
}

// CreateTask inserts the task optimistically under a temporary id, then
// confirms it with the gateway. On confirmation the temporary id is swapped
// for the server-assigned one; on failure the task is removed again.
func (s *Service) CreateTask(ctx context.Context, title, notes string, st state.Display) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, cerr.NewError(cerr.InvalidArgument, "title is required", nil)
	}

	now := time.Now()
	tmp := Task{
		ID:        tempIDPrefix + ulid.Make().String(),
		Title:     title,
		Notes:     notes,
		State:     st,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.columns[st] = append(append([]Task(nil), s.columns[st]...), tmp)
	s.mu.Unlock()
	s.bus.PublishNew(eventbus.TypeTaskCreated, tmp.ID, "")

	created, err := s.gw.Create(ctx, gateway.CreateRequest{
		Title: title,
		Notes: notes,
		State: state.ToRemote(st),
	})
	if err != nil {
		if _, ok := s.RemoveTask(tmp.ID); ok {
			s.bus.PublishNew(eventbus.TypeBoardRefreshed, "", "")
		}
		return Task{}, err
	}

	confirmed := fromWire(created)
	confirmed.State = st
	s.mu.Lock()
	if cst, idx, ok := s.findLocked(tmp.ID); ok {
		col := append([]Task(nil), s.columns[cst]...)
		col[idx] = confirmed
		s.columns[cst] = col
	}
	s.mu.Unlock()
	s.bus.PublishNew(eventbus.TypeTaskCreated, confirmed.ID, "")
	return confirmed, nil
}

// EditTask updates title and/or notes optimistically, reverting both if the
// gateway rejects the patch. Dedup locking is not applied here; the caller
// keeps at most one edit in flight per task.
func (s *Service) EditTask(ctx context.Context, id string, title, notes *string) (Task, error) {
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return Task{}, cerr.NewError(cerr.InvalidArgument, "title cannot be empty", nil)
		}
		title = &trimmed
	}

	s.mu.Lock()
	st, idx, ok := s.findLocked(id)
	if !ok {
		s.mu.Unlock()
		return Task{}, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	prev := s.columns[st][idx]
	edited := prev
	if title != nil {
		edited.Title = *title
	}
	if notes != nil {
		edited.Notes = *notes
	}
	edited.UpdatedAt = time.Now()
	s.replaceLocked(st, idx, edited)
	s.mu.Unlock()
	s.bus.PublishNew(eventbus.TypeTaskEdited, id, "")

	if _, err := s.gw.Update(ctx, id, gateway.Patch{Title: title, Notes: notes}); err != nil {
		s.mu.Lock()
		if cst, cidx, ok := s.findLocked(id); ok {
			restored := prev
			restored.State = cst // a concurrent move may have relocated it
			s.replaceLocked(cst, cidx, restored)
		}
		s.mu.Unlock()
		s.bus.PublishNew(eventbus.TypeTaskEdited, id, "")
		return Task{}, err
	}
	return edited, nil
}

// replaceLocked swaps one entry via a fresh slice. Caller holds s.mu.
func (s *Service) replaceLocked(st state.Display, idx int, t Task) {
	col := append([]Task(nil), s.columns[st]...)
	col[idx] = t
	s.columns[st] = col
}

func (s *Service) saveSnapshot() {
	if s.snap == nil {
		return
	}
	if err := s.snap.Save(s.Snapshot()); err != nil {
		slog.Warn("failed to save board snapshot", "error", err)
	}
}
