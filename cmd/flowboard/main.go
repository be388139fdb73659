package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/loopydev/flowboard/internal/board"
	"github.com/loopydev/flowboard/internal/config"
	"github.com/loopydev/flowboard/internal/eventbus"
	"github.com/loopydev/flowboard/internal/gamification"
	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/move"
	"github.com/loopydev/flowboard/internal/snapshot"
	"github.com/loopydev/flowboard/internal/state"
	"github.com/loopydev/flowboard/internal/tui"
	"github.com/loopydev/flowboard/pkg/cerr"
	"github.com/loopydev/flowboard/pkg/clog"
)

var (
	app = kingpin.New("flowboard", "Personal kanban board with optimistic sync")

	boardCmd = app.Command("board", "Open the interactive board").Default()

	listCmd = app.Command("list", "List tasks by column")

	addCmd    = app.Command("add", "Add a task")
	addTitle  = addCmd.Arg("title", "Task title").Required().String()
	addNotes  = addCmd.Flag("notes", "Task notes").String()
	addColumn = addCmd.Flag("column", "Target column").Default("Exploring").String()

	moveCmd    = app.Command("move", "Move a task to a column")
	moveID     = moveCmd.Arg("id", "Task ID").Required().String()
	moveTarget = moveCmd.Arg("column", "Target column").Required().String()

	doneCmd = app.Command("done", "Mark a task complete")
	doneID  = doneCmd.Arg("id", "Task ID").Required().String()

	editCmd   = app.Command("edit", "Edit a task title")
	editID    = editCmd.Arg("id", "Task ID").Required().String()
	editTitle = editCmd.Arg("title", "New title").Required().String()

	archiveCmd = app.Command("archive-completed", "Archive everything in the Complete column")

	restartCmd       = app.Command("restart", "Run the end-of-cycle restart sequence")
	restartNoArchive = restartCmd.Flag("keep-completed", "Skip archiving the Complete column").Bool()
)

type deps struct {
	env   *config.Env
	bus   *eventbus.Bus
	svc   *board.Service
	coord *move.Coordinator
	bulk  *move.BulkCoordinator
	snap  *snapshot.Store
}

func setup() (*deps, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	snap, err := snapshot.NewStore(env.SnapshotEnv.Dir)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	gw := gateway.NewClient(env.APIEnv.BaseURL, env.APIEnv.Token)
	svc := board.NewService(gw, bus, board.WithSnapshotSaver(snap))
	notifier := gamification.NewClient(env.APIEnv.BaseURL, env.APIEnv.Token)
	coord := move.NewCoordinator(svc, gw, bus, notifier, env.UserID)
	bulk := move.NewBulkCoordinator(svc, gw, coord, bus)

	return &deps{env: env, bus: bus, svc: svc, coord: coord, bulk: bulk, snap: snap}, nil
}

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	d, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = clog.ContextWithSlog(ctx)
	clog.AddAttribute(ctx, "command", command)

	switch command {
	case boardCmd.FullCommand():
		err = runBoard(ctx, d)
	case listCmd.FullCommand():
		err = runList(ctx, d)
	case addCmd.FullCommand():
		err = runAdd(ctx, d, *addTitle, *addNotes, *addColumn)
	case moveCmd.FullCommand():
		err = runMove(ctx, d, *moveID, *moveTarget)
	case doneCmd.FullCommand():
		err = runMove(ctx, d, *doneID, state.Complete.String())
	case editCmd.FullCommand():
		err = runEdit(ctx, d, *editID, *editTitle)
	case archiveCmd.FullCommand():
		err = runArchive(ctx, d)
	case restartCmd.FullCommand():
		err = runRestart(ctx, d, !*restartNoArchive)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cerr.UserMessage(err))
		slog.Debug("command failed", "error", err)
		os.Exit(1)
	}
}

func runBoard(ctx context.Context, d *deps) error {
	// Paint the cached board right away; the model's first refresh
	// replaces it once the gateway answers.
	if cols, err := d.snap.Load(); err == nil {
		d.svc.Seed(cols)
	}

	// External snapshot rewrites (another flowboard session saving a
	// refresh) trigger a reload.
	watcher, err := snapshot.NewWatcher(d.snap.Path())
	if err == nil {
		defer watcher.Close()
		go func() {
			for {
				select {
				case <-watcher.Changes():
					if err := d.svc.Refresh(ctx); err != nil {
						slog.WarnContext(ctx, "refresh after snapshot change failed", "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	model := tui.NewModel(d.svc, d.coord, d.bulk, d.bus,
		tui.WithScrollTuning(d.env.ScrollEnv.EdgeThreshold, d.env.ScrollEnv.BaseStep))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err = p.Run()
	d.coord.Wait()
	return err
}

func runList(ctx context.Context, d *deps) error {
	if err := d.svc.Refresh(ctx); err != nil {
		return err
	}
	for _, col := range state.Columns() {
		tasks := d.svc.Column(col)
		fmt.Printf("%s (%d)\n", col, len(tasks))
		for _, t := range tasks {
			fmt.Printf("  %-26s  %s\n", t.ID, t.Title)
		}
	}
	return nil
}

func runAdd(ctx context.Context, d *deps, title, notes, column string) error {
	target, err := state.ParseDisplay(column)
	if err != nil {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown column %q", column), err)
	}
	if err := d.svc.Refresh(ctx); err != nil {
		return err
	}
	t, err := d.svc.CreateTask(ctx, title, notes, target)
	if err != nil {
		return err
	}
	fmt.Printf("created %s in %s\n", t.ID, target)
	return nil
}

func runMove(ctx context.Context, d *deps, id, column string) error {
	target, err := state.ParseDisplay(column)
	if err != nil {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown column %q", column), err)
	}
	if err := d.svc.Refresh(ctx); err != nil {
		return err
	}
	if !d.coord.RequestMove(ctx, id, target) {
		return cerr.NewError(cerr.InvalidArgument, "nothing to do for that task and column", nil)
	}
	d.coord.Wait()
	if cur, ok := d.svc.StateOf(id); !ok || cur != target {
		return cerr.NewError(cerr.Unavailable, "the move was rejected by the task service", nil)
	}
	fmt.Printf("moved %s to %s\n", id, target)
	return nil
}

func runEdit(ctx context.Context, d *deps, id, title string) error {
	if err := d.svc.Refresh(ctx); err != nil {
		return err
	}
	if _, err := d.svc.EditTask(ctx, id, &title, nil); err != nil {
		return err
	}
	fmt.Printf("updated %s\n", id)
	return nil
}

func runArchive(ctx context.Context, d *deps) error {
	if err := d.svc.Refresh(ctx); err != nil {
		return err
	}
	n, err := d.bulk.ArchiveCompleted(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("archived %d tasks\n", n)
	return nil
}

func runRestart(ctx context.Context, d *deps, archiveCompleted bool) error {
	if err := d.svc.Refresh(ctx); err != nil {
		return err
	}
	if err := d.bulk.Restart(ctx, archiveCompleted); err != nil {
		return err
	}
	fmt.Println("cycle restarted")
	return nil
}
