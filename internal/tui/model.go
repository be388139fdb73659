// Package tui renders the four column board and translates key presses
// into board and move coordinator calls. All mutation flows through the
// coordinators; the model itself only holds view state.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loopydev/flowboard/internal/autoscroll"
	"github.com/loopydev/flowboard/internal/board"
	"github.com/loopydev/flowboard/internal/dropzone"
	"github.com/loopydev/flowboard/internal/eventbus"
	"github.com/loopydev/flowboard/internal/move"
	"github.com/loopydev/flowboard/internal/state"
	"github.com/loopydev/flowboard/pkg/cerr"
)

// boardTop is the row where the column boxes begin: header, help, blank.
const boardTop = 3

type inputMode int

const (
	inputNone inputMode = iota
	inputAdd
	inputEdit
)

type busEventMsg struct{ ev eventbus.Event }

type scrollFrameMsg struct{ offset float64 }

type refreshDoneMsg struct{ err error }

type bulkDoneMsg struct {
	label string
	err   error
}

type columnView struct {
	display state.Display
	cursor  int
	offset  int
}

// Model is the bubbletea model for the board screen.
type Model struct {
	svc   *board.Service
	coord *move.Coordinator
	bulk  *move.BulkCoordinator
	bus   *eventbus.Bus

	subID  string
	events <-chan eventbus.Event

	columns     []columnView
	selectedCol int
	width       int
	height      int

	mode      inputMode
	input     textinput.Model
	editingID string

	zones        *dropzone.Registry
	scroll       *autoscroll.Controller
	scrollFrames chan float64
	dragID       string
	hoverCol     int

	status    string
	statusErr bool
	flash     string
}

// Option tunes a Model at construction time.
type Option func(*tuning)

type tuning struct {
	edgeThreshold float64
	baseStep      float64
}

// WithScrollTuning overrides the drag autoscroll's edge threshold and
// per-frame step, both in rows. Non-positive values keep the defaults.
func WithScrollTuning(edgeThreshold, baseStep int) Option {
	return func(t *tuning) {
		if edgeThreshold > 0 {
			t.edgeThreshold = float64(edgeThreshold)
		}
		if baseStep > 0 {
			t.baseStep = float64(baseStep)
		}
	}
}

func NewModel(svc *board.Service, coord *move.Coordinator, bulk *move.BulkCoordinator, bus *eventbus.Bus, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "task title..."
	ti.CharLimit = 256

	subID, events := bus.Subscribe(256)

	cols := make([]columnView, 0, len(state.Columns()))
	for _, d := range state.Columns() {
		cols = append(cols, columnView{display: d})
	}

	// Autoscroll runs in row units here: engage within 3 rows of an edge,
	// one row per frame at base speed, unless the caller retunes it.
	tune := tuning{edgeThreshold: 3, baseStep: 1}
	for _, opt := range opts {
		opt(&tune)
	}
	speedZone := tune.edgeThreshold - 1
	if speedZone < 1 {
		speedZone = 1
	}
	frames := make(chan float64, 8)
	scroll := autoscroll.New(autoscroll.Config{
		EdgeThreshold: tune.edgeThreshold,
		SpeedZone:     speedZone,
		BaseStep:      tune.baseStep,
		MinMultiplier: 0.5,
		MaxMultiplier: 2.0,
		FrameInterval: 50 * time.Millisecond,
	}, func(offset float64) {
		select {
		case frames <- offset:
		default:
		}
	})

	return Model{
		svc:          svc,
		coord:        coord,
		bulk:         bulk,
		bus:          bus,
		subID:        subID,
		events:       events,
		columns:      cols,
		input:        ti,
		zones:        dropzone.NewRegistry(),
		scroll:       scroll,
		scrollFrames: frames,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.waitForEvent(), m.waitForScrollFrame())
}

func (m Model) refreshCmd() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return refreshDoneMsg{err: svc.Refresh(context.Background())}
	}
}

// waitForEvent blocks on the bus subscription and re-arms itself after
// each delivery.
func (m Model) waitForEvent() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return busEventMsg{ev: ev}
	}
}

func (m Model) waitForScrollFrame() tea.Cmd {
	ch := m.scrollFrames
	return func() tea.Msg {
		return scrollFrameMsg{offset: <-ch}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutZones()
		for i := range m.columns {
			m.clampCursor(&m.columns[i])
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)

	case tea.MouseMsg:
		return m.updateMouse(msg)

	case scrollFrameMsg:
		col := &m.columns[m.hoverCol]
		col.offset = int(msg.offset)
		m.clampOffset(col)
		return m, m.waitForScrollFrame()

	case refreshDoneMsg:
		if msg.err != nil {
			m.setError(cerr.UserMessage(msg.err))
		}
		for i := range m.columns {
			m.clampCursor(&m.columns[i])
		}
		return m, nil

	case busEventMsg:
		m.applyEvent(msg.ev)
		for i := range m.columns {
			m.clampCursor(&m.columns[i])
		}
		return m, m.waitForEvent()

	case bulkDoneMsg:
		if msg.err != nil {
			m.setError(cerr.UserMessage(msg.err))
		} else {
			m.status = msg.label
			m.statusErr = false
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) applyEvent(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TypeTaskMoveFailed:
		m.setError(ev.Payload)
	case eventbus.TypeCelebration:
		m.flash = "task complete, nice work"
	case eventbus.TypeBoardRefreshed:
		// Column contents changed under us; the caller re-clamps cursors.
		m.flash = ""
	}
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.scroll.Stop()
		m.bus.Unsubscribe(m.subID)
		return m, tea.Quit

	case "l", "right", "tab":
		m.selectedCol = (m.selectedCol + 1) % len(m.columns)
	case "h", "left", "shift+tab":
		m.selectedCol = (m.selectedCol - 1 + len(m.columns)) % len(m.columns)
	case "j", "down":
		col := &m.columns[m.selectedCol]
		if col.cursor < len(m.tasksOf(col))-1 {
			col.cursor++
			m.clampCursor(col)
		}
	case "k", "up":
		col := &m.columns[m.selectedCol]
		if col.cursor > 0 {
			col.cursor--
			m.clampCursor(col)
		}

	case "L", ">":
		m.moveSelected(+1)
	case "H", "<":
		m.moveSelected(-1)
	case "d":
		if t, ok := m.currentTask(); ok {
			m.requestMove(t.ID, state.Complete)
		}

	case "a":
		m.mode = inputAdd
		m.input.SetValue("")
		m.input.Placeholder = "new task title..."
		m.input.Focus()
	case "e":
		if t, ok := m.currentTask(); ok {
			m.mode = inputEdit
			m.editingID = t.ID
			m.input.SetValue(t.Title)
			m.input.Placeholder = "task title..."
			m.input.Focus()
		}

	case "A":
		bulk := m.bulk
		m.status = "archiving completed tasks..."
		m.statusErr = false
		return m, func() tea.Msg {
			n, err := bulk.ArchiveCompleted(context.Background())
			return bulkDoneMsg{label: fmt.Sprintf("archived %d tasks", n), err: err}
		}
	case "R":
		bulk := m.bulk
		m.status = "restarting cycle..."
		m.statusErr = false
		return m, func() tea.Msg {
			err := bulk.Restart(context.Background(), true)
			return bulkDoneMsg{label: "cycle restarted", err: err}
		}

	case "r":
		return m, m.refreshCmd()
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		title := strings.TrimSpace(m.input.Value())
		mode, editingID := m.mode, m.editingID
		m.mode = inputNone
		m.editingID = ""
		m.input.Blur()

		svc := m.svc
		target := m.columns[m.selectedCol].display
		return m, func() tea.Msg {
			var err error
			switch mode {
			case inputAdd:
				_, err = svc.CreateTask(context.Background(), title, "", target)
			case inputEdit:
				_, err = svc.EditTask(context.Background(), editingID, &title, nil)
			}
			if err != nil {
				return bulkDoneMsg{err: err}
			}
			return bulkDoneMsg{label: "saved"}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// layoutZones re-registers each column's screen rect after a resize. The
// registry keeps registration order, so the leftmost column stays first.
func (m *Model) layoutZones() {
	w := float64(m.colWidth() + 2) // rounded border adds a cell each side
	h := float64(m.itemsWindow() + 4)
	for i := range m.columns {
		m.zones.Register(m.columns[i].display.String(), dropzone.Rect{
			X: float64(i) * w,
			Y: boardTop,
			W: w - 1,
			H: h - 1,
		})
	}
	m.scroll.SetViewport(boardTop+2, float64(m.itemsWindow()), float64(len(m.tasksOf(&m.columns[m.hoverCol]))))
}

func (m *Model) columnAt(x, y int) (int, bool) {
	id, ok := m.zones.Resolve(dropzone.Point{X: float64(x), Y: float64(y)})
	if !ok {
		return 0, false
	}
	for i := range m.columns {
		if m.columns[i].display.String() == id {
			return i, true
		}
	}
	return 0, false
}

// taskRowAt maps a screen row inside a column box to a task index,
// accounting for the border, the title row, and the scroll offset.
func (m *Model) taskRowAt(col *columnView, y int) (int, bool) {
	row := y - (boardTop + 2)
	if row < 0 {
		return 0, false
	}
	if col.offset > 0 {
		row-- // "… N above" indicator occupies the first item row
	}
	idx := col.offset + row
	if idx < 0 || idx >= len(m.tasksOf(col)) {
		return 0, false
	}
	return idx, true
}

func (m Model) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonLeft:
			ci, ok := m.columnAt(msg.X, msg.Y)
			if !ok {
				return m, nil
			}
			m.selectedCol = ci
			m.hoverCol = ci
			col := &m.columns[ci]
			if idx, ok := m.taskRowAt(col, msg.Y); ok {
				col.cursor = idx
				m.clampCursor(col)
				m.dragID = m.tasksOf(col)[idx].ID
			}
		case tea.MouseButtonWheelDown:
			if ci, ok := m.columnAt(msg.X, msg.Y); ok {
				m.columns[ci].offset++
				m.clampOffset(&m.columns[ci])
			}
		case tea.MouseButtonWheelUp:
			if ci, ok := m.columnAt(msg.X, msg.Y); ok {
				m.columns[ci].offset--
				m.clampOffset(&m.columns[ci])
			}
		}

	case tea.MouseActionMotion:
		if m.dragID == "" {
			return m, nil
		}
		if ci, ok := m.columnAt(msg.X, msg.Y); ok && ci != m.hoverCol {
			m.hoverCol = ci
			m.scroll.SetViewport(boardTop+2, float64(m.itemsWindow()), float64(len(m.tasksOf(&m.columns[ci]))))
		}
		m.scroll.Pointer(float64(msg.Y))

	case tea.MouseActionRelease:
		if m.dragID == "" {
			return m, nil
		}
		m.scroll.Stop()
		id := m.dragID
		m.dragID = ""
		if ci, ok := m.columnAt(msg.X, msg.Y); ok {
			m.requestMove(id, m.columns[ci].display)
		}
	}
	return m, nil
}

// moveSelected shifts the highlighted task one column in the given
// direction, clamped at the board's edges.
func (m *Model) moveSelected(dir int) {
	t, ok := m.currentTask()
	if !ok {
		return
	}
	idx := m.selectedCol + dir
	if idx < 0 || idx >= len(m.columns) {
		return
	}
	m.requestMove(t.ID, m.columns[idx].display)
}

func (m *Model) requestMove(taskID string, target state.Display) {
	if m.coord.RequestMove(context.Background(), taskID, target) {
		m.status = ""
		m.statusErr = false
	}
}

func (m *Model) setError(msg string) {
	m.status = msg
	m.statusErr = true
}

func (m Model) tasksOf(c *columnView) []board.Task {
	return m.svc.Column(c.display)
}

func (m Model) currentTask() (board.Task, bool) {
	col := &m.columns[m.selectedCol]
	tasks := m.tasksOf(col)
	if len(tasks) == 0 || col.cursor >= len(tasks) {
		return board.Task{}, false
	}
	return tasks[col.cursor], true
}

// clampOffset bounds the scroll offset without touching the cursor, for
// wheel and autoscroll driven movement.
func (m *Model) clampOffset(c *columnView) {
	maxOffset := len(m.tasksOf(c)) - m.itemsWindow()
	if maxOffset < 0 {
		maxOffset = 0
	}
	if c.offset > maxOffset {
		c.offset = maxOffset
	}
	if c.offset < 0 {
		c.offset = 0
	}
}

func (m *Model) clampCursor(c *columnView) {
	n := len(m.tasksOf(c))
	if n == 0 {
		c.cursor, c.offset = 0, 0
		return
	}
	if c.cursor > n-1 {
		c.cursor = n - 1
	}
	if c.cursor < 0 {
		c.cursor = 0
	}
	vh := m.itemsWindow()
	if c.cursor < c.offset {
		c.offset = c.cursor
	}
	if c.cursor >= c.offset+vh {
		c.offset = c.cursor - vh + 1
	}
	maxOffset := 0
	if n > vh {
		maxOffset = n - vh
	}
	if c.offset > maxOffset {
		c.offset = maxOffset
	}
	if c.offset < 0 {
		c.offset = 0
	}
}

func (m Model) colWidth() int {
	if m.width <= 0 {
		return 20
	}
	w := (m.width - 6) / len(m.columns)
	if w < 16 {
		w = 16
	}
	return w
}

func (m Model) itemsWindow() int {
	reserved := 7
	if m.mode != inputNone {
		reserved += 2
	}
	if m.height-reserved < 1 {
		return 1
	}
	return m.height - reserved
}

var styles = newBoardStyles()

func (m Model) View() string {
	header := styles.header.Render(clip("Flowboard", m.width))
	help := styles.help.Render(clip("(q quit • hjkl move • H/L shift task • d done • a add • e edit • A archive done • R restart • r refresh)", m.width))

	colWidth := m.colWidth()

	window := m.itemsWindow()
	rendered := make([]string, len(m.columns))
	for i := range m.columns {
		c := &m.columns[i]
		tasks := m.tasksOf(c)

		var items []string
		if len(tasks) == 0 {
			items = []string{styles.muted.Render("(empty)")}
		} else {
			start := c.offset
			end := start + window
			if end > len(tasks) {
				end = len(tasks)
			}
			if start > 0 {
				items = append(items, styles.muted.Render(fmt.Sprintf("… %d above", start)))
			}
			for idx := start; idx < end; idx++ {
				t := tasks[idx]
				line := t.Title
				if board.IsTempID(t.ID) {
					line = styles.pending.Render(line + " …")
				}
				if i == m.selectedCol && idx == c.cursor {
					line = styles.selected.Render(clip(line, colWidth-4))
				} else {
					line = clip(line, colWidth-4)
				}
				items = append(items, line)
			}
			if end < len(tasks) {
				items = append(items, styles.muted.Render(fmt.Sprintf("… %d below", len(tasks)-end)))
			}
		}

		box := styles.box
		if i == m.selectedCol {
			box = styles.boxActive
		}
		title := styles.title.Render(fmt.Sprintf("%s (%d)", c.display.String(), len(tasks)))
		rendered[i] = box.Width(colWidth).Render(title + "\n" + strings.Join(items, "\n"))
	}
	boardView := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)

	footer := ""
	if m.flash != "" {
		footer += "\n" + styles.celebrate.Render(m.flash)
	}
	if m.status != "" {
		if m.statusErr {
			footer += "\n" + styles.errLine.Render(m.status)
		} else {
			footer += "\n" + styles.muted.Render(m.status)
		}
	}
	if m.mode != inputNone {
		label := "Add: "
		if m.mode == inputEdit {
			label = "Edit: "
		}
		footer += "\n" + label + m.input.View()
	}

	return header + "\n" + help + "\n\n" + boardView + footer + "\n"
}

// clip truncates on rune boundaries; task titles may be multibyte.
func clip(s string, w int) string {
	if w <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w <= 3 {
		return string(r[:w])
	}
	return string(r[:w-3]) + "..."
}
