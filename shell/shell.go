// Package shell implements the Command pane's line grammar (spec §4.6):
// a handful of slash-commands dispatched through a small match table,
// modeled on the teacher's command/parser package but shrunk to the
// five commands this kernel exposes — /load, /kill, /status, /syscall,
// and the /exit alias (there is no device attach/detach grammar — no
// devices beyond the terminal exist here).
package shell

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arq-sim/arqsim/arch/cpu"
	"github.com/arq-sim/arqsim/arch/word"
	"github.com/arq-sim/arqsim/kernel"
	"github.com/arq-sim/arqsim/kernel/process"
)

// command is one entry in the shell's dispatch table.
type command struct {
	name    string
	process func(s *Shell, rest string) error
}

var commandTable = []command{
	{name: "load", process: cmdLoad},
	{name: "kill", process: cmdKill},
	{name: "status", process: cmdStatus},
	{name: "syscall", process: cmdSyscall},
	{name: "exit", process: cmdExit},
}

// Shell dispatches Command-pane lines against the running machine.
type Shell struct {
	CPU       *cpu.CPU
	Kernel    *kernel.Kernel
	Processes *process.Table

	// LoadImage resolves a program name to its binary words, e.g. by
	// reading "<name>.bin" from a programs directory.
	LoadImage func(name string) ([]word.Word, error)

	App kernel.AppWriter
	Log kernel.KernelLog
}

// Process dispatches a single Command-pane line. Any line not starting
// with '/' — or not matching a known command — is echoed as "Unknown
// command" to the App pane, per spec §4.6.
func (s *Shell) Process(line string) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "/") {
		s.unknown(line)
		return
	}

	body := strings.TrimPrefix(line, "/")
	name, rest, _ := strings.Cut(body, " ")

	for _, c := range commandTable {
		if c.name == name {
			if err := c.process(s, strings.TrimSpace(rest)); err != nil && s.Log != nil {
				s.Log.WriteKernel("Error: " + err.Error())
			}
			return
		}
	}
	s.unknown(line)
}

func (s *Shell) unknown(line string) {
	if s.App != nil {
		s.App.WriteApp(fmt.Sprintf("Unknown command: %s\n", line))
	}
}

// cmdLoad implements "/load <name>": processes.create(name, 0x0001).
func cmdLoad(s *Shell, rest string) error {
	name := strings.TrimSpace(rest)
	if name == "" {
		return fmt.Errorf("usage: /load <name>")
	}
	if s.LoadImage == nil {
		return fmt.Errorf("no program loader configured")
	}
	image, err := s.LoadImage(name)
	if err != nil {
		return err
	}
	_, err = s.Kernel.CreateProcess(name, image)
	return err
}

// cmdKill implements "/kill": processes.destroy() (a no-op if only
// idle remains).
func cmdKill(s *Shell, _ string) error {
	s.Kernel.DestroyCurrent(s.CPU)
	return nil
}

// cmdStatus implements "/status": emit current process summary to the
// Kernel pane.
func cmdStatus(s *Shell, _ string) error {
	if s.Log != nil {
		s.Log.WriteKernel(process.Summary(s.Processes.Current()))
	}
	return nil
}

// cmdSyscall implements "/syscall <n>": set r0 = n and invoke
// on_syscall directly.
func cmdSyscall(s *Shell, rest string) error {
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return fmt.Errorf("usage: /syscall <n>: %w", err)
	}
	s.CPU.SetGPR(0, word.Word(n))
	s.Kernel.OnSyscall(s.CPU)
	return nil
}

// cmdExit implements the /exit convenience alias supplemented from
// original_source/os.cpp: route to the kernel's single power-off path.
func cmdExit(s *Shell, _ string) error {
	s.Kernel.PowerOff(s.CPU)
	return nil
}
