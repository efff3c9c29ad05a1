package cpu

import (
	"testing"

	"github.com/arq-sim/arqsim/arch/memory"
)

// fakeKernel records what the CPU called back, for tests that don't
// need a real kernel/process table.
type fakeKernel struct {
	interrupts []InterruptCode
	syscalls   int
}

func (f *fakeKernel) OnInterrupt(c *CPU, code InterruptCode) {
	f.interrupts = append(f.interrupts, code)
}

func (f *fakeKernel) OnSyscall(c *CPU) {
	f.syscalls++
}

func TestRFormatRoundTrip(t *testing.T) {
	opcodes := []uint8{opAdd, opSub, opMul, opDiv, opCmpEq, opCmpNe, opLoad, opStore, opSyscall}
	for _, op := range opcodes {
		w := encodeR(op, 3, 5, 6)
		f := decodeR(w)
		if f.opcode != op || f.dest != 3 || f.op1 != 5 || f.op2 != 6 {
			t.Errorf("round trip opcode %d: got %+v", op, f)
		}
	}
}

func TestIFormatRoundTrip(t *testing.T) {
	opcodes := []uint8{opJump, opJumpIf, opMov}
	for _, op := range opcodes {
		w := encodeI(op, 2, 0x1FF)
		f := decodeI(w)
		if f.opcode != op || f.reg != 2 || f.imm != 0x1FF {
			t.Errorf("round trip opcode %d: got %+v", op, f)
		}
	}
}

func newTestCPU() *CPU {
	mem := memory.New()
	c := New(mem)
	c.SetVMemWindow(0, 100)
	return c
}

func TestExecuteAdd(t *testing.T) {
	c := newTestCPU()
	c.SetGPR(1, 2)
	c.SetGPR(2, 3)
	c.execute(encodeR(opAdd, 0, 1, 2), &fakeKernel{})
	if got := c.GPR(0); got != 5 {
		t.Errorf("r0 = %d, want 5", got)
	}
}

func TestExecuteDivByZeroPanics(t *testing.T) {
	c := newTestCPU()
	c.SetGPR(1, 10)
	c.SetGPR(2, 0)
	defer func() {
		if recover() == nil {
			t.Errorf("divide by zero did not panic")
		}
	}()
	c.execute(encodeR(opDiv, 0, 1, 2), &fakeKernel{})
}

func TestExecuteUnknownOpcodePanics(t *testing.T) {
	c := newTestCPU()
	defer func() {
		if recover() == nil {
			t.Errorf("unknown opcode did not panic")
		}
	}()
	c.execute(encodeR(31, 0, 1, 2), &fakeKernel{})
}

func TestExecuteSyscallDispatches(t *testing.T) {
	c := newTestCPU()
	k := &fakeKernel{}
	c.execute(encodeR(opSyscall, 0, 0, 0), k)
	if k.syscalls != 1 {
		t.Errorf("syscalls = %d, want 1", k.syscalls)
	}
}

func TestTranslateBoundary(t *testing.T) {
	c := newTestCPU()
	c.SetVMemWindow(10, 20) // [10, 20)

	// limit-base-1 = 9 succeeds.
	c.WriteVirtual(9, 0xABCD)
	if c.latch.pending() {
		t.Errorf("write at limit-1 faulted unexpectedly")
	}

	// limit-base = 10 faults.
	c.WriteVirtual(10, 0xABCD)
	if !c.latch.pending() {
		t.Errorf("write at limit boundary did not fault")
	}
}

func TestStepServicesInterruptBeforeFetch(t *testing.T) {
	c := newTestCPU()
	c.Raise(Timer)
	k := &fakeKernel{}
	c.Step(k)
	if len(k.interrupts) != 1 || k.interrupts[0] != Timer {
		t.Errorf("interrupts = %v, want [Timer]", k.interrupts)
	}
}

func TestStepFaultOnFetchServicesImmediately(t *testing.T) {
	c := newTestCPU()
	c.SetVMemWindow(0, 5)
	c.SetPC(10) // outside window
	k := &fakeKernel{}
	c.Step(k)
	if len(k.interrupts) != 1 || k.interrupts[0] != GeneralProtectionFault {
		t.Errorf("interrupts = %v, want [GeneralProtectionFault]", k.interrupts)
	}
}

func TestStepAdvancesPCAndExecutes(t *testing.T) {
	mem := memory.New()
	c := New(mem)
	c.SetVMemWindow(0, 100)
	mem.Write(0, encodeI(opMov, 1, 42))
	k := &fakeKernel{}
	c.Step(k)
	if got := c.GPR(1); got != 42 {
		t.Errorf("r1 = %d, want 42", got)
	}
	if got := c.PC(); got != 1 {
		t.Errorf("pc = %d, want 1", got)
	}
}
