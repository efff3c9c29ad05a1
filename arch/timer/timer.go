// Package timer implements the machine's free-running periodic timer:
// a counter that raises a Timer interrupt on the CPU once every
// Period+1 ticks (Period increments, then one tick that raises),
// retrying rather than dropping the event if the CPU's interrupt latch
// is already held.
package timer

import "github.com/arq-sim/arqsim/arch/cpu"

// Period is the counter value at which Tick raises a Timer interrupt;
// with the reset to zero, accepted interrupts are Period+1 ticks apart.
const Period = 1024

// Timer is a single free-running counter.
type Timer struct {
	count int
}

// New returns a timer with its counter at zero.
func New() *Timer {
	return &Timer{}
}

// Count returns the current counter value, for diagnostics and tests.
func (t *Timer) Count() int { return t.count }

// Tick is invoked once per host cycle. On overflow it attempts to
// raise Timer on cpu; the counter only resets if the raise is
// accepted, so a latched CPU causes the timer to retry next tick
// rather than lose the event.
func (t *Timer) Tick(c *cpu.CPU) {
	if t.count >= Period {
		if c.Raise(cpu.Timer) {
			t.count = 0
		}
		return
	}
	t.count++
}
