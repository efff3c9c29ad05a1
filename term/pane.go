// Package term implements the four-pane terminal collaborator (spec
// §4.6, §6.3): independent scrolling log panes plus a line-edited
// Command pane, built on github.com/rivo/tview and
// github.com/gdamore/tcell/v2 — pulled from the retrieval pack's
// lookbusy1344-arm_emulator manifest as the reference for this kind of
// machine-monitor TUI, since the teacher repo itself is a headless
// telnet server with no local TUI of its own.
package term

import (
	"strings"
	"sync"

	"github.com/rivo/tview"
)

// Pane is one append-only scrolling log, backed by a tview.TextView.
// It keeps its own scrollback copy so Dump can be used for diagnostics
// without depending on tview's internal text representation.
type Pane struct {
	view *tview.TextView

	mu        sync.Mutex
	scrollback strings.Builder
}

// NewPane returns a Pane titled with name, configured to auto-scroll.
func NewPane(title string) *Pane {
	view := tview.NewTextView().
		SetDynamicColors(false).
		SetScrollable(true).
		SetChangedFunc(nil)
	view.SetBorder(true).SetTitle(title)
	view.SetMaxLines(4000)

	return &Pane{view: view}
}

// Write appends s to the pane, satisfying the interfaces kernel and
// shell expect (WriteApp, WriteKernel, WriteCommand all ultimately
// call this).
func (p *Pane) Write(s string) {
	p.mu.Lock()
	p.scrollback.WriteString(s)
	p.mu.Unlock()

	// tview.TextView.Write is safe to call from any goroutine; it
	// queues a redraw rather than drawing synchronously.
	_, _ = p.view.Write([]byte(s))
}

// Println appends s followed by a line terminator.
func (p *Pane) Println(s string) {
	p.Write(s + "\n")
}

// Dump returns the pane's scrollback split into lines, for diagnostics
// (the post-mortem dumper, via Terminal.DumpAll), grounded on the
// original prototype's VideoOutput::dump().
func (p *Pane) Dump() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	text := strings.TrimRight(p.scrollback.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// View returns the underlying tview primitive, for layout assembly.
func (p *Pane) View() *tview.TextView {
	return p.view
}
