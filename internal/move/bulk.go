package move

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/loopydev/flowboard/internal/board"
	"github.com/loopydev/flowboard/internal/eventbus"
	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/state"
	"github.com/loopydev/flowboard/pkg/cerr"
	"github.com/loopydev/flowboard/pkg/clog"
)

// BulkCoordinator sequences multi-task transitions on top of the move
// coordinator's primitives. Bulk operations are best-effort batches, not
// transactions: failures are isolated per task.
type BulkCoordinator struct {
	svc   *board.Service
	gw    gateway.TaskGateway
	moves *Coordinator
	bus   *eventbus.Bus
}

func NewBulkCoordinator(svc *board.Service, gw gateway.TaskGateway, moves *Coordinator, bus *eventbus.Bus) *BulkCoordinator {
	return &BulkCoordinator{
		svc:   svc,
		gw:    gw,
		moves: moves,
		bus:   bus,
	}
}

// ArchiveCompleted removes every task in the Complete column and archives
// them concurrently at the gateway. Tasks whose archive call fails are put
// back; the rest stay archived. Returns how many were archived.
func (b *BulkCoordinator) ArchiveCompleted(ctx context.Context) (int, error) {
	tasks := b.svc.Column(state.Complete)
	if len(tasks) == 0 {
		return 0, nil
	}

	cmds := make([]*removeCommand, 0, len(tasks))
	for _, t := range tasks {
		cmd := &removeCommand{svc: b.svc, taskID: t.ID}
		if cmd.Apply() {
			cmds = append(cmds, cmd)
		}
	}

	ctx = clog.ContextWithSlog(ctx)
	clog.AddAttribute(ctx, "component", "move")

	var (
		mu     sync.Mutex
		failed []*removeCommand
		errs   []error
	)
	p := pool.New().WithMaxGoroutines(4)
	for _, cmd := range cmds {
		p.Go(func() {
			if err := b.gw.Archive(ctx, cmd.taskID); err != nil {
				mu.Lock()
				failed = append(failed, cmd)
				errs = append(errs, fmt.Errorf("task %s: %w", cmd.taskID, err))
				mu.Unlock()
				return
			}
			b.bus.PublishNew(eventbus.TypeTaskArchived, cmd.taskID, "")
		})
	}
	p.Wait()

	for _, cmd := range failed {
		cmd.Rollback()
	}

	archived := len(cmds) - len(failed)
	if len(errs) > 0 {
		slog.WarnContext(ctx, "bulk archive finished with failures",
			"archived", archived, "failed", len(failed))
		return archived, cerr.NewError(cerr.Unavailable,
			fmt.Sprintf("%d of %d completed tasks could not be archived", len(failed), len(cmds)),
			errors.Join(errs...))
	}
	return archived, nil
}

// Restart runs the fixed end-of-cycle sequence: optionally archive the
// Complete column, promote Reviewing to Complete, reset Active to
// Exploring, then always refresh from the gateway to squash any residual
// optimistic drift. A failing step is reported but never blocks the next.
func (b *BulkCoordinator) Restart(ctx context.Context, archiveCompleted bool) error {
	var stepErrs []error

	if archiveCompleted {
		if _, err := b.ArchiveCompleted(ctx); err != nil {
			stepErrs = append(stepErrs, fmt.Errorf("archive step: %w", err))
		}
	}

	if failures := b.bulkMove(ctx, state.Reviewing, state.Complete); failures > 0 {
		stepErrs = append(stepErrs, fmt.Errorf("%d reviewing tasks could not be completed", failures))
	}
	if failures := b.bulkMove(ctx, state.Active, state.Exploring); failures > 0 {
		stepErrs = append(stepErrs, fmt.Errorf("%d active tasks could not be reset", failures))
	}

	if err := b.svc.Refresh(ctx); err != nil {
		stepErrs = append(stepErrs, fmt.Errorf("final refresh: %w", err))
	}
	return errors.Join(stepErrs...)
}

// bulkMove pushes every task in from toward to through the move
// coordinator and waits for the batch to settle. Each issued move reports
// its outcome on the results channel, so the failure count is exact no
// matter how large the batch is.
func (b *BulkCoordinator) bulkMove(ctx context.Context, from, to state.Display) int {
	tasks := b.svc.Column(from)
	results := make(chan error, len(tasks))
	issued := 0
	for _, t := range tasks {
		if b.moves.request(ctx, t.ID, to, func(err error) { results <- err }) {
			issued++
		}
	}
	b.moves.Wait()

	failures := 0
	for i := 0; i < issued; i++ {
		if <-results != nil {
			failures++
		}
	}
	return failures
}
