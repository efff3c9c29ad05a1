package shell

import (
	"strings"
	"testing"

	"github.com/arq-sim/arqsim/arch/cpu"
	"github.com/arq-sim/arqsim/arch/memory"
	"github.com/arq-sim/arqsim/arch/word"
	"github.com/arq-sim/arqsim/kernel"
	"github.com/arq-sim/arqsim/kernel/process"
)

type collector struct {
	app, klog []string
}

func (c *collector) WriteApp(s string)    { c.app = append(c.app, s) }
func (c *collector) WriteKernel(s string) { c.klog = append(c.klog, s) }

func newTestShell(t *testing.T) (*Shell, *collector) {
	t.Helper()
	mem := memory.New()
	procs := process.New()
	c := cpu.New(mem)
	col := &collector{}
	k := kernel.New(procs, mem, nil, col, col)
	k.HaltDelay = 0

	idle := procs.Init(4)
	c.SetPC(idle.PC)
	c.SetVMemWindow(idle.Base, idle.Limit)

	s := &Shell{
		CPU:       c,
		Kernel:    k,
		Processes: procs,
		LoadImage: func(name string) ([]word.Word, error) {
			return []word.Word{0, 0, 0, 0}, nil
		},
		App: col,
		Log: col,
	}
	k.Shell = s
	return s, col
}

func TestUnknownCommand(t *testing.T) {
	s, col := newTestShell(t)
	s.Process("not a command")
	if len(col.app) != 1 || !strings.Contains(col.app[0], "Unknown command") {
		t.Errorf("app = %v, want an Unknown command message", col.app)
	}
}

func TestLoadCreatesProcess(t *testing.T) {
	s, _ := newTestShell(t)
	s.Process("/load prog")
	if _, ok := s.Processes.ByID(1); !ok {
		t.Errorf("process not created by /load")
	}
}

func TestLoadRequiresName(t *testing.T) {
	s, col := newTestShell(t)
	s.Process("/load")
	if len(col.klog) == 0 || !strings.Contains(col.klog[0], "usage") {
		t.Errorf("klog = %v, want a usage error", col.klog)
	}
}

func TestKillIsNoopOnIdleOnly(t *testing.T) {
	s, _ := newTestShell(t)
	s.Process("/kill")
	if s.Processes.Current().ID != process.IdleID {
		t.Errorf("current = %d, want idle after /kill with nothing else running", s.Processes.Current().ID)
	}
}

func TestSyscallDispatchesToKernel(t *testing.T) {
	s, col := newTestShell(t)
	s.Process("/syscall 2") // SyscallNewline
	if len(col.app) != 1 || col.app[0] != "\n" {
		t.Errorf("app = %v, want a newline", col.app)
	}
}

func TestExitPowersOff(t *testing.T) {
	s, _ := newTestShell(t)
	s.Process("/exit")
	if !s.CPU.Off() {
		t.Errorf("CPU not powered off after /exit")
	}
}

func TestStatusWritesSummary(t *testing.T) {
	s, col := newTestShell(t)
	s.Process("/status")
	if len(col.klog) != 1 || !strings.Contains(col.klog[0], "idle") {
		t.Errorf("klog = %v, want a summary mentioning idle", col.klog)
	}
}
