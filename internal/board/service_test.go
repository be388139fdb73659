package board_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopydev/flowboard/internal/board"
	"github.com/loopydev/flowboard/internal/eventbus"
	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/state"
	"github.com/loopydev/flowboard/pkg/cerr"
)

type fakeGateway struct {
	mu         sync.Mutex
	listResult []gateway.Task
	failCreate error
	failUpdate error
	creates    int
	updates    int
}

func (f *fakeGateway) List(ctx context.Context) ([]gateway.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Task(nil), f.listResult...), nil
}

func (f *fakeGateway) Create(ctx context.Context, req gateway.CreateRequest) (gateway.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failCreate != nil {
		return gateway.Task{}, f.failCreate
	}
	return gateway.Task{ID: "srv-1", Title: req.Title, Notes: req.Notes, State: req.State}, nil
}

func (f *fakeGateway) Update(ctx context.Context, id string, patch gateway.Patch) (gateway.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.failUpdate != nil {
		return gateway.Task{}, f.failUpdate
	}
	return gateway.Task{ID: id}, nil
}

func (f *fakeGateway) Archive(ctx context.Context, id string) error {
	return nil
}

func newService(gw gateway.TaskGateway) *board.Service {
	return board.NewService(gw, eventbus.New())
}

func TestCreateTaskRejectsEmptyTitle(t *testing.T) {
	gw := &fakeGateway{}
	svc := newService(gw)

	_, err := svc.CreateTask(context.Background(), "   ", "", state.Exploring)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
	assert.Equal(t, 0, gw.creates, "validation failures never reach the gateway")
	assert.Equal(t, 0, svc.Count())
}

func TestCreateTaskSwapsTempID(t *testing.T) {
	gw := &fakeGateway{}
	svc := newService(gw)

	created, err := svc.CreateTask(context.Background(), "Sketch logo", "rough pass", state.Active)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created.ID)
	assert.False(t, board.IsTempID(created.ID))

	col := svc.Column(state.Active)
	require.Len(t, col, 1)
	assert.Equal(t, "srv-1", col[0].ID)
	assert.Equal(t, state.Active, col[0].State)
}

func TestCreateTaskRemovedOnGatewayFailure(t *testing.T) {
	gw := &fakeGateway{failCreate: cerr.NewError(cerr.Unavailable, "could not reach the task service", nil)}
	svc := newService(gw)

	_, err := svc.CreateTask(context.Background(), "Sketch logo", "", state.Exploring)
	require.Error(t, err)
	assert.Equal(t, 0, svc.Count(), "optimistic insert is rolled back")
}

func TestEditTaskRollsBackOnFailure(t *testing.T) {
	gw := &fakeGateway{listResult: []gateway.Task{
		{ID: "T1", Title: "Original", Notes: "keep me", State: state.RemoteDoing},
	}}
	svc := newService(gw)
	require.NoError(t, svc.Refresh(context.Background()))

	gw.failUpdate = cerr.NewError(cerr.Unavailable, "could not reach the task service", nil)
	newTitle := "Renamed"
	_, err := svc.EditTask(context.Background(), "T1", &newTitle, nil)
	require.Error(t, err)

	got, ok := svc.Find("T1")
	require.True(t, ok)
	assert.Equal(t, "Original", got.Title)
	assert.Equal(t, "keep me", got.Notes)
}

func TestEditTaskRejectsEmptyTitleBeforeMutation(t *testing.T) {
	gw := &fakeGateway{listResult: []gateway.Task{
		{ID: "T1", Title: "Original", State: state.RemoteDoing},
	}}
	svc := newService(gw)
	require.NoError(t, svc.Refresh(context.Background()))

	empty := " "
	_, err := svc.EditTask(context.Background(), "T1", &empty, nil)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
	assert.Equal(t, 0, gw.updates)

	got, _ := svc.Find("T1")
	assert.Equal(t, "Original", got.Title)
}

func TestRefreshBuildsColumnsAndSkipsArchived(t *testing.T) {
	gw := &fakeGateway{listResult: []gateway.Task{
		{ID: "T1", Title: "a", State: state.RemoteExploring},
		{ID: "T2", Title: "b", State: state.RemotePlanning},
		{ID: "T3", Title: "c", State: state.RemoteDone},
		{ID: "T4", Title: "d", State: state.RemoteDone, IsArchived: true},
		{ID: "T5", Title: "e", State: state.Remote("Mystery")},
	}}
	svc := newService(gw)
	require.NoError(t, svc.Refresh(context.Background()))

	assert.Len(t, svc.Column(state.Exploring), 2, "unknown remote states land in Exploring")
	assert.Len(t, svc.Column(state.Active), 1)
	assert.Len(t, svc.Column(state.Reviewing), 0)
	assert.Len(t, svc.Column(state.Complete), 1)
	assert.Equal(t, 4, svc.Count())

	// Invariant: every id appears in exactly one column.
	seen := map[string]int{}
	for _, tasks := range svc.Snapshot() {
		for _, task := range tasks {
			seen[task.ID]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s appears %d times", id, n)
	}
}

type fixedResolver struct {
	taskID string
	target state.Display
}

func (r fixedResolver) PendingTarget(taskID string) (state.Display, bool) {
	if taskID == r.taskID {
		return r.target, true
	}
	return state.Exploring, false
}

func TestRefreshPreservesPendingMoveTarget(t *testing.T) {
	gw := &fakeGateway{listResult: []gateway.Task{
		{ID: "T1", Title: "a", State: state.RemoteExploring},
	}}
	svc := newService(gw)
	svc.SetPendingResolver(fixedResolver{taskID: "T1", target: state.Complete})

	require.NoError(t, svc.Refresh(context.Background()))

	got, ok := svc.Find("T1")
	require.True(t, ok)
	assert.Equal(t, state.Complete, got.State, "refresh keeps the optimistic column while the move is in flight")
}

func TestApplyMoveAndRemoveRestore(t *testing.T) {
	gw := &fakeGateway{listResult: []gateway.Task{
		{ID: "T1", Title: "a", State: state.RemoteExploring},
		{ID: "T2", Title: "b", State: state.RemoteExploring},
	}}
	svc := newService(gw)
	require.NoError(t, svc.Refresh(context.Background()))

	from, ok := svc.ApplyMove("T1", state.Reviewing)
	require.True(t, ok)
	assert.Equal(t, state.Exploring, from)
	assert.Len(t, svc.Column(state.Exploring), 1)
	assert.Len(t, svc.Column(state.Reviewing), 1)

	removed, ok := svc.RemoveTask("T1")
	require.True(t, ok)
	assert.Equal(t, state.Reviewing, removed.State)
	assert.Equal(t, 1, svc.Count())

	svc.RestoreTask(removed)
	assert.Len(t, svc.Column(state.Reviewing), 1)

	_, ok = svc.ApplyMove("ghost", state.Complete)
	assert.False(t, ok)
}
