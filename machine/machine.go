// Package machine assembles the CPU, memory, timer, kernel, terminal,
// and shell into the single explicit value the simulator runs, and
// drives the main tick loop. Earlier drafts threaded these as package
// globals the way small emulators often do; spec §9 calls that out
// explicitly, so everything needed to run more than one machine (tests
// do exactly this) lives on this struct instead.
package machine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arq-sim/arqsim/arch/cpu"
	"github.com/arq-sim/arqsim/arch/memory"
	"github.com/arq-sim/arqsim/arch/timer"
	"github.com/arq-sim/arqsim/arch/word"
	"github.com/arq-sim/arqsim/config"
	"github.com/arq-sim/arqsim/kernel"
	"github.com/arq-sim/arqsim/kernel/process"
	"github.com/arq-sim/arqsim/loader"
	"github.com/arq-sim/arqsim/shell"
	"github.com/arq-sim/arqsim/term"
)

// Machine is one complete, independently runnable simulator instance.
type Machine struct {
	CPU       *cpu.CPU
	Memory    *memory.Memory
	Timer     *timer.Timer
	Processes *process.Table
	Kernel    *kernel.Kernel
	Shell     *shell.Shell
	Terminal  *term.Terminal

	log *slog.Logger
}

// New wires a Machine from a loaded configuration and a Terminal. t may
// be nil (as in tests): the kernel and shell then have no panes and no
// keyboard. The flat debug build does not use a Machine at all.
func New(cfg config.Config, t *term.Terminal, log *slog.Logger, programDir string) *Machine {
	mem := memory.New()
	procs := process.New()
	c := cpu.New(mem)
	tm := timer.New()

	var app kernel.AppWriter
	var klog kernel.KernelLog
	if t != nil {
		app, klog = t, t
	}

	k := kernel.New(procs, mem, tm, app, klog)

	sh := &shell.Shell{
		CPU:       c,
		Kernel:    k,
		Processes: procs,
		LoadImage: func(name string) ([]word.Word, error) {
			return loader.Load(programDir + "/" + name + ".bin")
		},
		App: app,
		Log: klog,
	}
	k.Shell = sh

	if t != nil {
		k.Command = t
		k.Keys = t
	}

	return &Machine{
		CPU:       c,
		Memory:    mem,
		Timer:     tm,
		Processes: procs,
		Kernel:    k,
		Shell:     sh,
		Terminal:  t,
		log:       log,
	}
}

// Boot loads idleImage at idle's window and installs it as the running
// process.
func (m *Machine) Boot(idleImage []word.Word) error {
	return m.Kernel.Boot(m.CPU, idleImage)
}

// Run drives the main tick loop until the CPU powers off, the context
// is cancelled, or a host-fatal condition is recovered. Each tick is,
// in order: poll the terminal for a queued keystroke and raise it as an
// interrupt (spec §2a), advance the timer, then step the CPU exactly
// once — the same ordering the teacher's core loop uses for its device
// poll, clock tick, and instruction step.
func (m *Machine) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = m.postMortem(r)
		}
	}()

	for !m.CPU.Off() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if m.Terminal != nil && m.Terminal.HasChar() {
			m.CPU.Raise(cpu.Keyboard)
		}
		m.Timer.Tick(m.CPU)
		m.CPU.Step(m.Kernel)
	}
	return nil
}

// postMortem renders a host-fatal panic into a diagnostic report (spec
// §7): the panic value, the CPU's register file, a snippet of physical
// memory around the program counter, and each terminal pane's
// scrollback, then returns it as an error so main can log it and exit
// non-zero instead of letting the process crash uninformatively.
func (m *Machine) postMortem(r any) error {
	pc := m.CPU.PC()
	lo, hi := pc, pc+16
	if int(hi) >= memory.Words {
		hi = memory.Words - 1
	}

	fmt.Fprintf(os.Stderr, "host-fatal: %v\n", r)
	fmt.Fprintf(os.Stderr, "pc=0x%04x\n", pc)
	for i := 0; i < cpu.NumGPRs; i++ {
		fmt.Fprintf(os.Stderr, "  r%d=0x%04x\n", i, m.CPU.GPR(i))
	}
	fmt.Fprintf(os.Stderr, "memory[0x%04x:0x%04x]=%v\n", lo, hi, m.Memory.Dump(uint32(lo), uint32(hi)))

	if m.Terminal != nil {
		for name, lines := range m.Terminal.DumpAll() {
			fmt.Fprintf(os.Stderr, "--- %s pane ---\n", name)
			for _, line := range lines {
				fmt.Fprintln(os.Stderr, line)
			}
		}
	}

	if m.log != nil {
		m.log.Error("host-fatal condition", "panic", r, "pc", pc)
	}
	return fmt.Errorf("machine: host-fatal: %v", r)
}
