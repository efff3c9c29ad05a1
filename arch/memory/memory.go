// Package memory implements the simulator's fixed-size main store: a
// flat array of 16-bit words with bounds-checked access. Memory itself
// has no notion of a simulated fault; an out-of-range physical address
// is a host programming error and panics rather than returning one.
package memory

import (
	"fmt"

	"github.com/arq-sim/arqsim/arch/word"
)

// Words is the size of physical memory, MEM_WORDS = 2^15.
const Words = 1 << 15

// Memory is the machine's main store.
type Memory struct {
	cells [Words]word.Word
}

// New returns a zero-initialized memory.
func New() *Memory {
	return &Memory{}
}

// Read returns the word stored at paddr. An out-of-range paddr is a
// host-side programming error and panics.
func (m *Memory) Read(paddr uint32) word.Word {
	m.checkAddr(paddr)
	return m.cells[paddr]
}

// Write stores a word at paddr. An out-of-range paddr panics.
func (m *Memory) Write(paddr uint32, v word.Word) {
	m.checkAddr(paddr)
	m.cells[paddr] = v
}

// LoadImage copies words into memory starting at paddr, provided the
// range fits entirely within the destination window [paddr, paddr+len).
func (m *Memory) LoadImage(paddr uint32, image []word.Word) error {
	if paddr >= Words || uint64(paddr)+uint64(len(image)) > Words {
		return fmt.Errorf("memory: image of %d words at 0x%04x does not fit", len(image), paddr)
	}
	copy(m.cells[paddr:], image)
	return nil
}

// Dump returns the half-open range [lo, hi) for diagnostics.
func (m *Memory) Dump(lo, hi uint32) []word.Word {
	m.checkAddr(lo)
	if hi > Words {
		hi = Words
	}
	if hi < lo {
		hi = lo
	}
	out := make([]word.Word, hi-lo)
	copy(out, m.cells[lo:hi])
	return out
}

// Raw returns a slice aliasing the entire store, for diagnostics; writes
// through it change memory. The CPU and kernel do not use it, and the
// post-mortem dumper reads memory through Dump instead.
func (m *Memory) Raw() []word.Word {
	return m.cells[:]
}

func (m *Memory) checkAddr(paddr uint32) {
	if paddr >= Words {
		panic(fmt.Sprintf("memory: address 0x%04x out of range", paddr))
	}
}
