package move_test

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopydev/flowboard/internal/board"
	"github.com/loopydev/flowboard/internal/eventbus"
	"github.com/loopydev/flowboard/internal/gamification"
	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/move"
	"github.com/loopydev/flowboard/internal/state"
	"github.com/loopydev/flowboard/pkg/cerr"
	"github.com/loopydev/flowboard/pkg/clog"
)

// fakeGateway is a stateful in-memory gateway: updates and archives are
// applied to its store so a later List reflects them.
type fakeGateway struct {
	mu           sync.Mutex
	tasks        map[string]gateway.Task
	updateCalls  int
	archiveCalls int
	failUpdate   map[string]error
	failArchive  map[string]error
	updateGate   chan struct{} // when set, Update blocks until closed
}

func newFakeGateway(tasks ...gateway.Task) *fakeGateway {
	gw := &fakeGateway{
		tasks:       make(map[string]gateway.Task),
		failUpdate:  make(map[string]error),
		failArchive: make(map[string]error),
	}
	for _, t := range tasks {
		gw.tasks[t.ID] = t
	}
	return gw
}

func (f *fakeGateway) List(ctx context.Context) ([]gateway.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.Task
	for _, t := range f.tasks {
		if !t.IsArchived {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeGateway) Create(ctx context.Context, req gateway.CreateRequest) (gateway.Task, error) {
	return gateway.Task{}, errors.New("not used in these tests")
}

func (f *fakeGateway) Update(ctx context.Context, id string, patch gateway.Patch) (gateway.Task, error) {
	f.mu.Lock()
	gate := f.updateGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if err := f.failUpdate[id]; err != nil {
		return gateway.Task{}, err
	}
	t, ok := f.tasks[id]
	if !ok {
		return gateway.Task{}, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if patch.State != nil {
		t.State = *patch.State
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Notes != nil {
		t.Notes = *patch.Notes
	}
	if patch.IsArchived != nil {
		t.IsArchived = *patch.IsArchived
	}
	f.tasks[id] = t
	return t, nil
}

func (f *fakeGateway) Archive(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archiveCalls++
	if err := f.failArchive[id]; err != nil {
		return err
	}
	t, ok := f.tasks[id]
	if !ok {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	t.IsArchived = true
	f.tasks[id] = t
	return nil
}

func (f *fakeGateway) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

func (f *fakeGateway) task(id string) gateway.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

type completionCall struct {
	userID string
	taskID string
	points int
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []completionCall
	fail  error
}

func (f *fakeNotifier) NotifyCompletion(ctx context.Context, userID, taskID string, points int) (*gamification.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completionCall{userID: userID, taskID: taskID, points: points})
	if f.fail != nil {
		return nil, f.fail
	}
	return &gamification.Progress{Phase: 2, Variant: "2A", Advanced: true}, nil
}

func (f *fakeNotifier) callList() []completionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completionCall(nil), f.calls...)
}

type fixture struct {
	gw       *fakeGateway
	bus      *eventbus.Bus
	svc      *board.Service
	coord    *move.Coordinator
	notifier *fakeNotifier
}

func newFixture(t *testing.T, tasks ...gateway.Task) *fixture {
	t.Helper()
	gw := newFakeGateway(tasks...)
	bus := eventbus.New()
	svc := board.NewService(gw, bus)
	notifier := &fakeNotifier{}
	coord := move.NewCoordinator(svc, gw, bus, notifier, "user-1")
	require.NoError(t, svc.Refresh(context.Background()))
	return &fixture{gw: gw, bus: bus, svc: svc, coord: coord, notifier: notifier}
}

func drainAll(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofType(events []eventbus.Event, want eventbus.Type) []eventbus.Event {
	var out []eventbus.Event
	for _, ev := range events {
		if ev.Type == want {
			out = append(out, ev)
		}
	}
	return out
}

func drain(ch <-chan eventbus.Event, want eventbus.Type) []eventbus.Event {
	return ofType(drainAll(ch), want)
}

func TestDuplicateInFlightMoveIsSuppressed(t *testing.T) {
	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteExploring})
	gate := make(chan struct{})
	fx.gw.updateGate = gate

	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Complete))
	assert.False(t, fx.coord.RequestMove(context.Background(), "T1", state.Complete), "second identical request is dropped, not queued")

	close(gate)
	fx.coord.Wait()
	assert.Equal(t, 1, fx.gw.updateCount(), "exactly one remote update for a rapid double request")
}

func TestMoveToCurrentStateIsNoOp(t *testing.T) {
	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteExploring})
	before := fx.svc.Snapshot()

	assert.False(t, fx.coord.RequestMove(context.Background(), "T1", state.Exploring))
	fx.coord.Wait()

	assert.Equal(t, 0, fx.gw.updateCount())
	assert.Equal(t, before, fx.svc.Snapshot())
}

func TestUnknownTaskIsNoOp(t *testing.T) {
	fx := newFixture(t)
	assert.False(t, fx.coord.RequestMove(context.Background(), "ghost", state.Complete))
	assert.Equal(t, 0, fx.gw.updateCount())
}

func TestRollbackOnGatewayFailure(t *testing.T) {
	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteExploring})
	fx.gw.failUpdate["T1"] = cerr.NewError(cerr.Unavailable, "could not reach the task service", nil)

	subID, ch := fx.bus.Subscribe(64)
	defer fx.bus.Unsubscribe(subID)

	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Complete))
	fx.coord.Wait()

	got, ok := fx.svc.Find("T1")
	require.True(t, ok)
	assert.Equal(t, state.Exploring, got.State, "column assignment reverts to the pre-move state")

	failures := drain(ch, eventbus.TypeTaskMoveFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, "T1", failures[0].TaskID)
	assert.Equal(t, "could not reach the task service", failures[0].Payload)

	assert.Empty(t, fx.notifier.callList(), "no completion hook for a failed move")

	// The key returned to Idle: a new request for the same pair is accepted.
	fx.gw.failUpdate = map[string]error{}
	assert.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Complete))
	fx.coord.Wait()
}

func TestCompletionTriggersHookAndCelebration(t *testing.T) {
	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteExploring})

	subID, ch := fx.bus.Subscribe(64)
	defer fx.bus.Unsubscribe(subID)

	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Complete))
	fx.coord.Wait()

	got, ok := fx.svc.Find("T1")
	require.True(t, ok)
	assert.Equal(t, state.Complete, got.State)
	assert.Equal(t, state.RemoteDone, fx.gw.task("T1").State)

	calls := fx.notifier.callList()
	require.Len(t, calls, 1)
	assert.Equal(t, completionCall{userID: "user-1", taskID: "T1", points: 1}, calls[0])

	celebrations := drain(ch, eventbus.TypeCelebration)
	require.Len(t, celebrations, 1)
	assert.Contains(t, celebrations[0].Payload, `"phase":2`)
}

func TestHookFailureNeverRollsBackTheMove(t *testing.T) {
	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteDoing})
	fx.notifier.fail = errors.New("dopamine service down")

	subID, ch := fx.bus.Subscribe(64)
	defer fx.bus.Unsubscribe(subID)

	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Complete))
	fx.coord.Wait()

	got, _ := fx.svc.Find("T1")
	assert.Equal(t, state.Complete, got.State, "secondary effect failures are swallowed")
	events := drainAll(ch)
	assert.Empty(t, ofType(events, eventbus.TypeTaskMoveFailed))
	require.Len(t, ofType(events, eventbus.TypeCelebration), 1, "celebration still fires")
}

func TestNonTerminalMoveDoesNotNotify(t *testing.T) {
	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteExploring})

	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Reviewing))
	fx.coord.Wait()

	assert.Empty(t, fx.notifier.callList())
}

func TestSameTaskDifferentTargetsMayRace(t *testing.T) {
	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteExploring})
	gate := make(chan struct{})
	fx.gw.updateGate = gate

	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Active))
	// Correcting a mis-drop while the first move is still settling.
	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Reviewing))

	close(gate)
	fx.coord.Wait()

	// Both settle; whatever the interleaving, the task lives in exactly
	// one column afterwards.
	seen := 0
	for _, tasks := range fx.svc.Snapshot() {
		for _, task := range tasks {
			if task.ID == "T1" {
				seen++
			}
		}
	}
	assert.Equal(t, 1, seen)
	assert.Equal(t, 2, fx.gw.updateCount())
}

// captureHandler records every log entry as a flat key/value map so tests
// can assert on attributes regardless of output formatting.
type captureHandler struct {
	mu      sync.Mutex
	entries []map[string]string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := map[string]string{"msg": r.Message}
	r.Attrs(func(a slog.Attr) bool {
		entry[a.Key] = a.Value.String()
		return true
	})
	h.mu.Lock()
	h.entries = append(h.entries, entry)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) find(msg string) (map[string]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e["msg"] == msg {
			return e, true
		}
	}
	return nil, false
}

func TestRollbackLogsCarryMoveContext(t *testing.T) {
	rec := &captureHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(clog.NewAttributesHandler(rec)))
	defer slog.SetDefault(prev)

	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteExploring})
	fx.gw.failUpdate["T1"] = cerr.NewError(cerr.Unavailable, "could not reach the task service", nil)

	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Complete))
	fx.coord.Wait()

	entry, ok := rec.find("move rejected by gateway, rolled back")
	require.True(t, ok, "rollback is logged")
	assert.Equal(t, "move", entry["component"])
	assert.Equal(t, "T1", entry["task_id"])
	assert.Equal(t, "Complete", entry["target"])
	assert.Contains(t, entry[clog.ErrorAttributeKey], "could not reach the task service")
}

func TestMovedTaskSurvivesRefreshWhilePending(t *testing.T) {
	fx := newFixture(t, gateway.Task{ID: "T1", Title: "a", State: state.RemoteExploring})
	gate := make(chan struct{})
	fx.gw.updateGate = gate

	require.True(t, fx.coord.RequestMove(context.Background(), "T1", state.Complete))
	// A full refresh lands while the move is in flight; the remote list
	// still says Exploring but the optimistic column must hold.
	require.NoError(t, fx.svc.Refresh(context.Background()))

	got, ok := fx.svc.Find("T1")
	require.True(t, ok)
	assert.Equal(t, state.Complete, got.State)

	close(gate)
	fx.coord.Wait()
}
