package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"
	"github.com/peterh/liner"

	"github.com/arq-sim/arqsim/arch/cpu"
	"github.com/arq-sim/arqsim/arch/memory"
	"github.com/arq-sim/arqsim/config"
	"github.com/arq-sim/arqsim/kernel"
	"github.com/arq-sim/arqsim/loader"
	"github.com/arq-sim/arqsim/machine"
	"github.com/arq-sim/arqsim/term"
	"github.com/arq-sim/arqsim/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "arqsim.cfg", "Configuration file")
	optDebugImage := getopt.StringLong("image", 'i', "", "Run a single flat binary with no kernel, no process table, no TUI")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	// out stays a genuinely nil io.Writer when no log file is
	// configured — passing an unopened *os.File directly would wrap a
	// nil pointer in a non-nil interface and panic the first time the
	// handler tried to write to it.
	var out io.Writer
	if *optLogFile != "" {
		file, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		out = file
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	Logger = slog.New(logger.NewHandler(out, &slog.HandlerOptions{Level: programLevel}, *optDebugImage != ""))
	slog.SetDefault(Logger)

	Logger.Info("arqsim started")

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		Logger.Info("shutting down on signal")
		cancel()
	}()

	if *optDebugImage != "" {
		runDebugImage(ctx, *optDebugImage)
		return
	}
	runTerminal(ctx, *optConfig)
}

// runTerminal boots the full kernel + four-pane TUI from the
// configuration file's idle-image, and runs the simulator on a
// background goroutine while tview owns the main one — the same split
// the teacher uses between its telnet server goroutine and the CPU's
// own Start goroutine.
func runTerminal(ctx context.Context, configPath string) {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	}
	if cfg.IdleImage == "" {
		Logger.Error("no idle process image given (set idle-image in the config file, or pass --image for a flat debug run)")
		os.Exit(1)
	}

	idleImage, err := loader.Load(cfg.IdleImage)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	t := term.New()
	m := machine.New(cfg, t, Logger, ".")

	if err := m.Boot(idleImage); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	runErr := make(chan error, 1)
	go func() {
		err := m.Run(ctx)
		if err != nil {
			Logger.Error(err.Error())
		}
		runErr <- err
		t.Stop()
	}()

	if err := t.Run(); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}
	select {
	case err := <-runErr:
		if err != nil {
			os.Exit(1)
		}
	default:
	}
}

// runDebugImage is the flat debug build (spec §6.2): a single binary is
// loaded at physical address 0 with the CPU's translation window
// covering every word but the last and execution starting at pc=1 — the same
// "skip word 0" convention kernel.CreateProcess uses for user images,
// so a debug-mode binary and a kernel-loaded one share layout. There is
// no kernel, no process table, and no device beyond a minimal syscall
// handler for console output; a GPF or an unknown syscall is fatal,
// since there is no process to destroy. A peterh/liner console
// (grounded on command/reader/reader.go) reports the final status.
func runDebugImage(ctx context.Context, path string) {
	image, err := loader.Load(path)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	mem := memory.New()
	if err := mem.LoadImage(0, image); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	c := cpu.New(mem)
	c.SetVMemWindow(0, memory.Words-1)
	c.SetPC(1)

	runErr := runFlat(ctx, c)

	// liner manages raw terminal mode for the interactive builds
	// (command/reader/reader.go's ConsoleReader); opening and closing
	// it here too keeps the debug build's terminal state consistent
	// with the rest of the program even though its only output is this
	// one status line.
	line := liner.NewLiner()
	defer line.Close()
	if runErr != nil {
		fmt.Printf("Fatal: %v\n", runErr)
		os.Exit(1)
	}
	fmt.Println("CPU halted")
}

// runFlat drives the CPU to completion with no kernel: it recovers a
// host-fatal panic into an error instead of letting the process crash,
// matching machine.Machine.Run's contract without needing a Kernel or
// a process table to exist.
func runFlat(ctx context.Context, c *cpu.CPU) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	fk := &flatKernel{}
	for !c.Off() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.Step(fk)
	}
	return nil
}

// flatKernel is the minimal cpu.Kernel the debug build supplies: a
// general protection fault has no process to destroy, so it is
// host-fatal here rather than simulated, and syscalls are answered
// directly against stdout instead of a Terminal pane.
type flatKernel struct{}

func (f *flatKernel) OnInterrupt(c *cpu.CPU, code cpu.InterruptCode) {
	if code == cpu.GeneralProtectionFault {
		panic("cpu: host-fatal: general protection fault with no kernel to handle it")
	}
}

func (f *flatKernel) OnSyscall(c *cpu.CPU) {
	switch c.GPR(0) {
	case kernel.SyscallHalt:
		c.TurnOff()
	case kernel.SyscallPuts:
		addr := c.GPR(1)
		var sb []byte
		for {
			ch := c.ReadVirtual(addr)
			if ch == 0 {
				break
			}
			sb = append(sb, byte(ch))
			addr++
		}
		fmt.Print(string(sb))
	case kernel.SyscallNewline:
		fmt.Println()
	case kernel.SyscallPutU16:
		fmt.Printf("%d", c.GPR(1))
	default:
		panic(fmt.Sprintf("cpu: host-fatal: unknown syscall number %d", c.GPR(0)))
	}
}
