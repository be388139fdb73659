// Package move implements the optimistic update state machine behind
// every column transition on the board.
package move

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/loopydev/flowboard/internal/board"
	"github.com/loopydev/flowboard/internal/eventbus"
	"github.com/loopydev/flowboard/internal/gamification"
	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/state"
	"github.com/loopydev/flowboard/pkg/cerr"
	"github.com/loopydev/flowboard/pkg/clog"
	"github.com/loopydev/flowboard/pkg/panicerr"
)

// moveKey identifies one in-flight transition. Only the exact pair is
// locked: the same task may race toward a different target, and the same
// target may be in flight for other tasks. This lets the user correct a
// mis-drop while the first move is still settling.
type moveKey struct {
	taskID string
	target state.Display
}

// Coordinator applies moves optimistically, deduplicates in-flight
// requests per (task, target) pair, and reconciles or rolls back when the
// gateway answers. Each key walks Idle -> Pending -> (Committed |
// RolledBack) -> Idle; only Pending keys have an entry here.
type Coordinator struct {
	svc      *board.Service
	gw       gateway.TaskGateway
	bus      *eventbus.Bus
	notifier gamification.Notifier
	userID   string

	mu      sync.Mutex
	pending map[moveKey]struct{}
	wg      *conc.WaitGroup
}

var _ board.PendingResolver = (*Coordinator)(nil)

// NewCoordinator wires the coordinator and registers it as the board's
// pending resolver. notifier may be nil when gamification is disabled.
func NewCoordinator(svc *board.Service, gw gateway.TaskGateway, bus *eventbus.Bus, notifier gamification.Notifier, userID string) *Coordinator {
	c := &Coordinator{
		svc:      svc,
		gw:       gw,
		bus:      bus,
		notifier: notifier,
		userID:   userID,
		pending:  make(map[moveKey]struct{}),
		wg:       conc.NewWaitGroup(),
	}
	svc.SetPendingResolver(c)
	return c
}

// RequestMove asks for taskID to land in target. It returns false when the
// request is suppressed: unknown task, task already in target, or an
// identical move still in flight. Suppression is a no-op, never an error;
// a dropped duplicate is not queued and must be re-issued after the first
// settles.
func (c *Coordinator) RequestMove(ctx context.Context, taskID string, target state.Display) bool {
	return c.request(ctx, taskID, target, nil)
}

// request is RequestMove with an optional settlement callback. settled runs
// after the move committed or rolled back, with the gateway error if there
// was one; the bulk coordinator uses it to count failures exactly.
func (c *Coordinator) request(ctx context.Context, taskID string, target state.Display, settled func(error)) bool {
	cur, ok := c.svc.StateOf(taskID)
	if !ok {
		slog.Debug("move requested for unknown task", "task_id", taskID)
		return false
	}
	if cur == target {
		return false
	}

	k := moveKey{taskID: taskID, target: target}
	c.mu.Lock()
	if _, inFlight := c.pending[k]; inFlight {
		c.mu.Unlock()
		return false
	}
	c.pending[k] = struct{}{}
	c.mu.Unlock()

	cmd := &moveCommand{svc: c.svc, taskID: taskID, target: target}
	if !cmd.Apply() {
		// The task vanished between the check and the apply.
		c.release(k)
		return false
	}
	c.bus.PublishNew(eventbus.TypeTaskMoved, taskID, target.String())

	ctx = clog.ContextWithSlog(ctx)
	clog.AddAttribute(ctx, "component", "move")
	clog.AddAttribute(ctx, "task_id", taskID)
	clog.AddAttribute(ctx, "target", target.String())

	panicerr.Go(c.wg, ctx, func(ctx context.Context) error {
		err := c.settle(ctx, k, cmd)
		if settled != nil {
			settled(err)
		}
		return nil
	})
	return true
}

// settle finishes one pending move: commit on success, revert on failure.
// The pending entry is removed either way.
func (c *Coordinator) settle(ctx context.Context, k moveKey, cmd *moveCommand) error {
	remote := state.ToRemote(k.target)
	_, err := c.gw.Update(ctx, k.taskID, gateway.Patch{State: &remote})
	c.release(k)

	if err != nil {
		cmd.Rollback()
		clog.AddError(ctx, err)
		slog.WarnContext(ctx, "move rejected by gateway, rolled back")
		c.bus.PublishNew(eventbus.TypeTaskMoveFailed, k.taskID, cerr.UserMessage(err))
		return err
	}

	if k.target == state.Complete {
		c.bus.PublishNew(eventbus.TypeTaskCompleted, k.taskID, "")
		c.celebrate(ctx, k.taskID)
	}
	return nil
}

// celebrate fires the gamification hook and the celebratory UI signal.
// Hook failures are logged and swallowed; the move stays committed and the
// celebration still happens.
func (c *Coordinator) celebrate(ctx context.Context, taskID string) {
	payload := ""
	if c.notifier != nil {
		progress, err := c.notifier.NotifyCompletion(ctx, c.userID, taskID, 1)
		if err != nil {
			clog.AddError(ctx, err)
			slog.WarnContext(ctx, "completion notify failed")
		} else if data, merr := json.Marshal(progress); merr == nil {
			payload = string(data)
		}
	}
	c.bus.PublishNew(eventbus.TypeCelebration, taskID, payload)
}

func (c *Coordinator) release(k moveKey) {
	c.mu.Lock()
	delete(c.pending, k)
	c.mu.Unlock()
}

// PendingTarget implements board.PendingResolver so a refresh keeps the
// optimistic column of an unsettled move. When the same task races toward
// two targets the returned one is unspecified, matching the racing policy.
func (c *Coordinator) PendingTarget(taskID string) (state.Display, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.pending {
		if k.taskID == taskID {
			return k.target, true
		}
	}
	return state.Exploring, false
}

// Wait blocks until every in-flight settlement has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
