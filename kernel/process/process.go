// Package process implements the process table and round-robin
// scheduler. Processes live in an append-only slab, with a next-index
// ring replacing the teacher's intrusive linked-list (see DESIGN.md):
// this removes ownership cycles and lifetime hazards. Ids are recycled
// through a free list and need not equal a record's slab index. The
// ring is singly linked, so Destroy walks it to find the predecessor
// and takes time linear in the number of live processes.
package process

import (
	"fmt"

	"github.com/arq-sim/arqsim/arch/cpu"
	"github.com/arq-sim/arqsim/arch/word"
)

// Status is a process's scheduling state.
type Status int

const (
	// Ready processes are queued, waiting for the scheduler.
	Ready Status = iota
	// Executing is the single process currently running on the CPU.
	Executing
)

// IdleID is the id of the distinguished idle process, which always
// exists and is never destroyed.
const IdleID = 0

// idleBase is the physical window idle is loaded at.
const idleBase = 0x1000

// userBase is the first free-region bump pointer for non-idle
// processes (spec §4.5's "simplest" bump-pointer policy).
const userBase = 0x2000

// Record is one process's control block.
type Record struct {
	ID     int
	Name   string
	Status Status

	PC   word.Word
	GPRs [cpu.NumGPRs]word.Word

	Base  word.Word
	Limit word.Word

	next int // index of the next record in the ring; -1 if slot is free
}

// Table is the process ring plus the currently-executing pointer.
type Table struct {
	slab    []*Record
	freeIDs []int
	current int // index into slab of the executing process
	nextBMP word.Word
}

// New returns an empty table with the user bump pointer at userBase;
// Init must be called to install the idle process.
func New() *Table {
	return &Table{nextBMP: userBase}
}

// Init boots the idle process, loading idleImageLen words at idleBase,
// and installs it as current and Executing.
func (t *Table) Init(idleImageLen int) *Record {
	idle := &Record{
		ID:     IdleID,
		Name:   "idle",
		Status: Executing,
		Base:   idleBase,
		Limit:  idleBase + word.Word(idleImageLen),
		next:   0,
	}
	t.slab = []*Record{idle}
	t.current = 0
	return idle
}

// Current returns the currently-executing process record.
func (t *Table) Current() *Record {
	return t.slab[t.current]
}

// Create allocates a new process, appends it to the ring in Ready
// status, and returns it. Per spec §9, create only queues the process;
// it does not run it — the scheduler picks it up at the next Timer
// interrupt.
func (t *Table) Create(name string, entryPC word.Word, imageLen int) *Record {
	id := t.allocID()
	base := t.nextBMP
	t.nextBMP += word.Word(imageLen)

	rec := &Record{
		ID:     id,
		Name:   name,
		Status: Ready,
		PC:     entryPC,
		Base:   base,
		Limit:  base + word.Word(imageLen),
	}

	idx := len(t.slab)
	t.slab = append(t.slab, rec)

	// Splice into the ring right after current.
	curIdx := t.current
	rec.next = t.slab[curIdx].next
	t.slab[curIdx].next = idx
	return rec
}

// Destroy unlinks the current process, unless it is idle (a no-op
// destroy of idle), and switches to the next process in the ring.
// It reports the record that is now current.
func (t *Table) Destroy() *Record {
	cur := t.slab[t.current]
	if cur.ID == IdleID {
		return cur
	}

	// Find predecessor of current in the ring and splice current out.
	predIdx := t.current
	for t.slab[predIdx].next != t.current {
		predIdx = t.slab[predIdx].next
	}
	nextIdx := cur.next
	t.slab[predIdx].next = nextIdx
	cur.next = -1
	t.releaseID(cur.ID)

	t.current = nextIdx
	t.slab[t.current].Status = Executing
	return t.slab[t.current]
}

// Save copies the live CPU pc and gprs into the current record's saved
// slots.
func (t *Table) Save(c *cpu.CPU) {
	cur := t.slab[t.current]
	cur.PC = c.PC()
	for i := 0; i < cpu.NumGPRs; i++ {
		cur.GPRs[i] = c.GPR(i)
	}
}

// Restore writes the current record's saved pc, gprs, base, and limit
// into the CPU.
func (t *Table) Restore(c *cpu.CPU) {
	cur := t.slab[t.current]
	c.SetPC(cur.PC)
	for i := 0; i < cpu.NumGPRs; i++ {
		c.SetGPR(i, cur.GPRs[i])
	}
	c.SetVMemWindow(cur.Base, cur.Limit)
}

// Schedule performs one round-robin step, called from the Timer
// interrupt handler: if more than one process exists, it saves the
// current process's context, marks it Ready, advances to the next
// process in the ring, marks it Executing, and restores its context.
func (t *Table) Schedule(c *cpu.CPU) {
	if len(t.ringMembers()) <= 1 {
		return
	}
	t.Save(c)
	t.slab[t.current].Status = Ready
	t.current = t.slab[t.current].next
	t.slab[t.current].Status = Executing
	t.Restore(c)
}

// ringMembers walks the ring once starting from current, returning the
// indices visited. A single pass bounds the walk even if every process
// is Ready, unlike the teacher's recursive processRun (spec §9).
func (t *Table) ringMembers() []int {
	start := t.current
	members := []int{start}
	for i := t.slab[start].next; i != start; i = t.slab[i].next {
		members = append(members, i)
		if len(members) > len(t.slab) {
			panic("process: ring walk did not terminate")
		}
	}
	return members
}

// ByID returns the record with the given id, if it exists and is live.
func (t *Table) ByID(id int) (*Record, bool) {
	for _, idx := range t.ringMembers() {
		if t.slab[idx].ID == id {
			return t.slab[idx], true
		}
	}
	return nil, false
}

func (t *Table) allocID() int {
	if n := len(t.freeIDs); n > 0 {
		id := t.freeIDs[n-1]
		t.freeIDs = t.freeIDs[:n-1]
		return id
	}
	return len(t.slab)
}

func (t *Table) releaseID(id int) {
	t.freeIDs = append(t.freeIDs, id)
}

// Summary formats a one-line description of rec for the Kernel pane.
func Summary(rec *Record) string {
	status := "Ready"
	if rec.Status == Executing {
		status = "Executing"
	}
	return fmt.Sprintf("#%d %-8s %-9s pc=0x%04x base=0x%04x limit=0x%04x",
		rec.ID, rec.Name, status, rec.PC, rec.Base, rec.Limit)
}
