// Package cpu implements the fetch/decode/execute engine: the register
// file, the interrupt latch, base/limit virtual-memory translation,
// and the two instruction formats of the target ISA.
package cpu

import (
	"fmt"

	"github.com/arq-sim/arqsim/arch/memory"
	"github.com/arq-sim/arqsim/arch/word"
)

// NumGPRs is the number of general-purpose registers.
const NumGPRs = 8

// Kernel is the CPU's synchronous callback contract. Step invokes both
// methods inline; OnSyscall may also be invoked directly outside Step
// (the shell's "/syscall" bypasses fetch/decode entirely). Either way,
// the callback may freely read/write CPU and memory state but must
// never itself trigger another instruction step — a fault it forces
// is left on the latch for the next Step call to service, never
// serviced inline by the callback.
type Kernel interface {
	OnInterrupt(cpu *CPU, code InterruptCode)
	OnSyscall(cpu *CPU)
}

// CPU is the machine's single execution unit.
type CPU struct {
	gpr [NumGPRs]word.Word
	pc  word.Word

	latch latch

	// vmemBase and vmemLimit define the translation window of the
	// currently running process; set by the kernel at context switch.
	vmemBase  word.Word
	vmemLimit word.Word

	mem *memory.Memory

	off bool
}

// New returns a CPU wired to mem, with the translation window set to
// [0, memory.Words-1) — every physical word except the last — and no
// process yet installed.
func New(mem *memory.Memory) *CPU {
	return &CPU{
		mem:       mem,
		vmemLimit: memory.Words - 1,
	}
}

// GPR returns the value of register r.
func (c *CPU) GPR(r int) word.Word {
	return c.gpr[r]
}

// SetGPR sets register r to v.
func (c *CPU) SetGPR(r int, v word.Word) {
	c.gpr[r] = v
}

// PC returns the program counter.
func (c *CPU) PC() word.Word { return c.pc }

// SetPC sets the program counter.
func (c *CPU) SetPC(pc word.Word) { c.pc = pc }

// VMemWindow returns the current translation window.
func (c *CPU) VMemWindow() (base, limit word.Word) {
	return c.vmemBase, c.vmemLimit
}

// SetVMemWindow installs a new translation window, as done by the
// kernel at context switch.
func (c *CPU) SetVMemWindow(base, limit word.Word) {
	c.vmemBase, c.vmemLimit = base, limit
}

// Off reports whether the CPU has been powered down.
func (c *CPU) Off() bool { return c.off }

// TurnOff powers the CPU down; the simulator's main loop stops calling
// Step once this is set.
func (c *CPU) TurnOff() { c.off = true }

// Raise attempts to latch an external interrupt. It returns false and
// drops the interrupt if one is already latched.
func (c *CPU) Raise(code InterruptCode) bool {
	return c.latch.raise(code)
}

// InBounds reports whether vaddr translates to a physical address
// inside the current window, without raising a fault. Used by syscall
// argument validation (spec §4.4), which must check before touching
// memory rather than rely on the translator's fault path.
func (c *CPU) InBounds(vaddr word.Word) bool {
	paddr := uint32(vaddr) + uint32(c.vmemBase)
	return paddr < uint32(c.vmemLimit)
}

// ValidateOrFault checks vaddr against the current window and, if out
// of range, synthesizes the same GeneralProtectionFault the translator
// would raise. It reports whether the address was valid.
func (c *CPU) ValidateOrFault(vaddr word.Word) bool {
	if c.InBounds(vaddr) {
		return true
	}
	c.latch.force(GeneralProtectionFault)
	return false
}

// translate converts a virtual address to physical, faulting the CPU
// if it would fall outside [vmemBase, vmemLimit).
func (c *CPU) translate(vaddr word.Word) (paddr uint32, ok bool) {
	paddr = uint32(vaddr) + uint32(c.vmemBase)
	if paddr >= uint32(c.vmemLimit) {
		c.latch.force(GeneralProtectionFault)
		return 0, false
	}
	return paddr, true
}

// ReadVirtual reads a word through the translator. On fault it raises
// GPF and returns 0.
func (c *CPU) ReadVirtual(vaddr word.Word) word.Word {
	paddr, ok := c.translate(vaddr)
	if !ok {
		return 0
	}
	return c.mem.Read(paddr)
}

// WriteVirtual writes a word through the translator. On fault it
// raises GPF and the write is skipped.
func (c *CPU) WriteVirtual(vaddr, v word.Word) {
	paddr, ok := c.translate(vaddr)
	if !ok {
		return
	}
	c.mem.Write(paddr, v)
}

// Step performs exactly one of: service a latched interrupt, or fetch,
// decode, and execute one instruction. Interrupts are checked before
// every fetch so a pending Keyboard/Timer interrupt can never be
// starved by a tight instruction loop. A fault raised by fetch or
// execute is serviced immediately after the attempt. After an execute
// fault the kernel sees pc pointing one past the faulting instruction;
// after a fetch fault pc is not advanced and still holds the address
// that could not be fetched.
func (c *CPU) Step(k Kernel) {
	if c.latch.pending() {
		code := c.latch.take()
		k.OnInterrupt(c, code)
		return
	}

	instr := c.ReadVirtual(c.pc)
	if c.latch.pending() {
		code := c.latch.take()
		k.OnInterrupt(c, code)
		return
	}
	c.pc++

	c.execute(instr, k)
	if c.latch.pending() {
		code := c.latch.take()
		k.OnInterrupt(c, code)
	}
}

// HostFatalf reports a host-side fatal condition: an unknown opcode,
// host memory out of range (surfaced by memory's own panic), or
// division by zero. These never become simulated faults.
func (c *CPU) HostFatalf(format string, args ...any) error {
	return fmt.Errorf("cpu: host-fatal: "+format, args...)
}
