// Package word defines the 16-bit unit of data that flows through the
// simulated machine: instructions, register contents, and memory cells
// are all Words.
package word

// Word is the atomic unit of memory, registers, and instructions.
type Word uint16

// Add wraps modulo 2^16, matching the target ISA's add instruction.
func Add(a, b Word) Word {
	return a + b
}

// Sub wraps modulo 2^16.
func Sub(a, b Word) Word {
	return a - b
}

// Mul wraps modulo 2^16.
func Mul(a, b Word) Word {
	return a * b
}

// Div performs unsigned integer division. Division by zero is a host
// programming error, not a simulated fault, and panics.
func Div(a, b Word) Word {
	if b == 0 {
		panic("word: division by zero")
	}
	return a / b
}

// Bool converts a Go bool into the machine's 0/1 encoding.
func Bool(v bool) Word {
	if v {
		return 1
	}
	return 0
}
