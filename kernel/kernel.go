// Package kernel implements the interrupt and syscall dispatch protocol
// between the CPU and the operating system: it loads binary programs,
// maintains the process ring, edits the Command pane's line buffer on
// keyboard interrupts, and answers the two callbacks the CPU invokes
// synchronously from CPU.Step. The keyboard-interrupt handling here is
// grounded on original_source/os.cpp's interrupt() function — the
// most-complete surviving kernel draft per spec §9 — with its inverted
// backspace condition fixed per spec §9's explicit instruction.
package kernel

import (
	"fmt"
	"time"

	"github.com/arq-sim/arqsim/arch/cpu"
	"github.com/arq-sim/arqsim/arch/memory"
	"github.com/arq-sim/arqsim/arch/timer"
	"github.com/arq-sim/arqsim/arch/word"
	"github.com/arq-sim/arqsim/kernel/process"
)

// Syscall numbers, per spec §4.4.
const (
	SyscallHalt    = 0
	SyscallPuts    = 1
	SyscallNewline = 2
	SyscallPutU16  = 3
)

// AppWriter receives user-program output (puts, newline, put_u16) and
// the shell's "Unknown command" echo.
type AppWriter interface {
	WriteApp(s string)
}

// KernelLog receives kernel diagnostics: GPF reports, the halt banner,
// scheduling notices, and /status output.
type KernelLog interface {
	WriteKernel(s string)
}

// CommandPane receives the live echo of the line being edited: each
// typed character, and the backspace erase sequence.
type CommandPane interface {
	WriteCommand(s string)
}

// Keyboard is the terminal's depth-one keystroke queue, polled once per
// tick (spec §2a) and drained here on the resulting interrupt.
type Keyboard interface {
	ReadTypedChar() (ch rune, ok bool)
}

// Dispatcher runs a completed Command-pane line. Implemented by
// *shell.Shell; declared here as an interface so this package need not
// import shell (which itself imports kernel).
type Dispatcher interface {
	Process(line string)
}

// Kernel owns the process table and the devices it mediates access to.
// It implements cpu.Kernel.
type Kernel struct {
	Processes *process.Table
	Memory    *memory.Memory
	Timer     *timer.Timer

	App     AppWriter
	Log     KernelLog
	Command CommandPane
	Keys    Keyboard
	Shell   Dispatcher

	buffer []rune

	// HaltDelay is the pause between the halt banner and power-off.
	// Defaults to 2s, matching the original prototype; configurable so
	// tests need not block for real time.
	HaltDelay time.Duration
}

// New returns a Kernel with the default 2-second halt delay. Command,
// Keys, and Shell may be wired after construction (the full TUI build
// wires them once the terminal exists); each may stay nil when no
// terminal is attached, and the kernel then skips that output or input.
func New(procs *process.Table, mem *memory.Memory, t *timer.Timer, app AppWriter, klog KernelLog) *Kernel {
	return &Kernel{
		Processes: procs,
		Memory:    mem,
		Timer:     t,
		App:       app,
		Log:       klog,
		HaltDelay: 2 * time.Second,
	}
}

// OnInterrupt is the CPU's interrupt entry point. The CPU guarantees
// its latch is clear on entry.
func (k *Kernel) OnInterrupt(c *cpu.CPU, code cpu.InterruptCode) {
	switch code {
	case cpu.Timer:
		k.Processes.Schedule(c)
	case cpu.GeneralProtectionFault:
		k.handleFault(c)
	case cpu.Keyboard:
		k.handleKeyboard()
	}
}

// handleKeyboard drains the terminal's single queued keystroke into the
// Command pane's line buffer: ordinary characters are appended and
// echoed, backspace erases the last character (a no-op on an empty
// buffer — spec §9's fix to the prototype's inverted condition), and a
// newline dispatches the accumulated line to the shell and clears the
// buffer.
func (k *Kernel) handleKeyboard() {
	if k.Keys == nil {
		return
	}
	ch, ok := k.Keys.ReadTypedChar()
	if !ok {
		return
	}

	switch {
	case ch == '\b' || ch == 127:
		if len(k.buffer) == 0 {
			return
		}
		k.buffer = k.buffer[:len(k.buffer)-1]
		if k.Command != nil {
			k.Command.WriteCommand("\b \b")
		}
	case ch == '\n' || ch == '\r':
		line := string(k.buffer)
		k.buffer = k.buffer[:0]
		if k.Command != nil {
			k.Command.WriteCommand("\n")
		}
		if k.Shell != nil {
			k.Shell.Process(line)
		}
	default:
		k.buffer = append(k.buffer, ch)
		if k.Command != nil {
			k.Command.WriteCommand(string(ch))
		}
	}
}

// OnSyscall is the CPU's syscall entry point. r0 holds the syscall
// number, r1.. the arguments, per spec §4.4's ABI.
func (k *Kernel) OnSyscall(c *cpu.CPU) {
	switch c.GPR(0) {
	case SyscallHalt:
		k.halt(c)
	case SyscallPuts:
		k.puts(c)
	case SyscallNewline:
		if k.App != nil {
			k.App.WriteApp("\n")
		}
	case SyscallPutU16:
		if k.App != nil {
			k.App.WriteApp(fmt.Sprintf("%d", c.GPR(1)))
		}
	default:
		panic(fmt.Sprintf("kernel: host-fatal: unknown syscall number %d", c.GPR(0)))
	}
}

// halt prints the shutdown banner, pauses, and powers the CPU off.
func (k *Kernel) halt(c *cpu.CPU) {
	if k.Log != nil {
		k.Log.WriteKernel("System halted.")
	}
	if k.HaltDelay > 0 {
		time.Sleep(k.HaltDelay)
	}
	c.TurnOff()
}

// puts prints the zero-terminated string whose first word is at
// virtual address r1, one character per word, low byte.
func (k *Kernel) puts(c *cpu.CPU) {
	addr := c.GPR(1)
	var sb []byte
	for {
		if !k.validateOrFault(c, addr) {
			return
		}
		ch := c.ReadVirtual(addr)
		if ch == 0 {
			break
		}
		sb = append(sb, byte(ch))
		addr++
	}
	if k.App != nil {
		k.App.WriteApp(string(sb))
	}
}

// validateOrFault checks vaddr against the current process's window
// before any memory touch, per spec §4.4. A violation forces the same
// GPF latch the translator would raise and reports that the caller
// must stop; it does not service the fault itself — like the
// translator path, it leaves that to CPU.Step (the post-execute check
// for an in-band syscall instruction, or the next Step's opening check
// when the syscall came from the shell's /syscall), so the offending
// process is destroyed exactly once rather than once here and again
// when Step finds the latch still pending.
func (k *Kernel) validateOrFault(c *cpu.CPU, vaddr word.Word) bool {
	return c.ValidateOrFault(vaddr)
}

// handleFault destroys the current process on a GPF and reports it to
// the Kernel pane. Idle itself cannot fault through ordinary
// user-space execution; Destroy is a no-op for it regardless.
func (k *Kernel) handleFault(c *cpu.CPU) {
	cur := k.Processes.Current()
	if k.Log != nil {
		k.Log.WriteKernel(fmt.Sprintf("GPF in process %s (#%d) at pc=0x%04x; destroying.",
			cur.Name, cur.ID, c.PC()))
	}
	k.Processes.Destroy()
	k.Processes.Restore(c)
}

// Boot initializes the process table with idle loaded at its window
// and installs idle's context into the CPU.
func (k *Kernel) Boot(c *cpu.CPU, idleImage []word.Word) error {
	if err := k.Memory.LoadImage(0x1000, idleImage); err != nil {
		return fmt.Errorf("kernel: loading idle image: %w", err)
	}
	idle := k.Processes.Init(len(idleImage))
	c.SetPC(idle.PC)
	c.SetVMemWindow(idle.Base, idle.Limit)
	return nil
}

// CreateProcess loads image at a freshly allocated window and queues a
// new Ready process for it, per spec §4.5 (create only queues; the
// scheduler runs it at the next Timer interrupt).
func (k *Kernel) CreateProcess(name string, image []word.Word) (*process.Record, error) {
	const entryPC = 0x0001
	rec := k.Processes.Create(name, entryPC, len(image))
	if err := k.Memory.LoadImage(uint32(rec.Base), image); err != nil {
		return nil, fmt.Errorf("kernel: loading image for %s: %w", name, err)
	}
	return rec, nil
}

// DestroyCurrent unlinks the current process (a no-op if it is idle)
// and switches the CPU to the next process in the ring.
func (k *Kernel) DestroyCurrent(c *cpu.CPU) *process.Record {
	rec := k.Processes.Destroy()
	k.Processes.Restore(c)
	return rec
}

// PowerOff is the shell's /exit entry to the power-down path: it runs
// the same halt routine the halt syscall runs, so both end in one way
// of turning the machine off (spec §5's single turn_off cancellation
// signal, supplemented by the /exit alias from original_source/os.cpp).
func (k *Kernel) PowerOff(c *cpu.CPU) {
	k.halt(c)
}
