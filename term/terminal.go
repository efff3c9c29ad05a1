package term

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Terminal owns the four panes tiled per spec §6.3 (left third Arch,
// middle third split Kernel/Command, right third App) and the depth-one
// keystroke queue that matches the CPU's interrupt latch discipline.
//
// Keystrokes are captured application-wide via tview's InputCapture
// hook rather than through a focused input widget: the Command pane's
// line editing is driven by the kernel's keyboard-interrupt handler
// (kernel.Kernel.handleKeyboard), which echoes characters itself, so
// the terminal's job is only to queue the raw keystroke and otherwise
// get out of the way.
type Terminal struct {
	app *tview.Application

	Arch    *Pane
	Kernel  *Pane
	Command *Pane
	App     *Pane

	mu      sync.Mutex
	pending *rune
}

// New builds the four-pane layout and wires the keystroke capture.
func New() *Terminal {
	arch := NewPane("Arch")
	kern := NewPane("Kernel")
	cmd := NewPane("Command")
	appv := NewPane("App")

	middle := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(kern.View(), 0, 1, false).
		AddItem(cmd.View(), 0, 1, false)

	grid := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(arch.View(), 0, 1, false).
		AddItem(middle, 0, 1, false).
		AddItem(appv.View(), 0, 1, false)

	app := tview.NewApplication().SetRoot(grid, true)

	t := &Terminal{
		app:     app,
		Arch:    arch,
		Kernel:  kern,
		Command: cmd,
		App:     appv,
	}
	app.SetInputCapture(t.captureKey)
	return t
}

// captureKey queues at most one pending keystroke, per spec §5(iii):
// additional keystrokes in the same tick are discarded until the
// simulator drains the queue.
func (t *Terminal) captureKey(event *tcell.EventKey) *tcell.EventKey {
	var r rune
	switch event.Key() {
	case tcell.KeyEnter:
		r = '\n'
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		r = '\b'
	case tcell.KeyRune:
		r = event.Rune()
	case tcell.KeyCtrlC:
		t.app.Stop()
		return event
	default:
		return nil
	}

	t.mu.Lock()
	if t.pending == nil {
		v := r
		t.pending = &v
	}
	t.mu.Unlock()
	return nil
}

// HasChar reports whether a keystroke is queued, without consuming it —
// the non-blocking poll the simulator's main loop performs every tick
// (spec §2a).
func (t *Terminal) HasChar() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// ReadTypedChar consumes and returns the queued keystroke, implementing
// kernel.Keyboard.
func (t *Terminal) ReadTypedChar() (rune, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return 0, false
	}
	r := *t.pending
	t.pending = nil
	return r, true
}

// WriteApp implements kernel.AppWriter.
func (t *Terminal) WriteApp(s string) {
	t.App.Write(s)
	t.redraw()
}

// WriteKernel implements kernel.KernelLog.
func (t *Terminal) WriteKernel(s string) {
	t.Kernel.Println(s)
	t.redraw()
}

// WriteCommand implements kernel.CommandPane.
func (t *Terminal) WriteCommand(s string) {
	t.Command.Write(s)
	t.redraw()
}

// WriteArch appends to the architecture trace pane (instruction/cycle
// diagnostics). It is not part of any collaborator interface, and the
// simulator's main loop (machine.Machine.Run) does not call it.
func (t *Terminal) WriteArch(s string) {
	t.Arch.Write(s)
	t.redraw()
}

func (t *Terminal) redraw() {
	t.app.QueueUpdateDraw(func() {})
}

// Run starts the tview event loop; it blocks until Stop is called.
func (t *Terminal) Run() error {
	return t.app.Run()
}

// Stop tears the terminal down.
func (t *Terminal) Stop() {
	t.app.Stop()
}

// DumpAll captures every pane's scrollback, for the host-fatal
// post-mortem report (spec §7).
func (t *Terminal) DumpAll() map[string][]string {
	return map[string][]string{
		"Arch":    t.Arch.Dump(),
		"Kernel":  t.Kernel.Dump(),
		"Command": t.Command.Dump(),
		"App":     t.App.Dump(),
	}
}
