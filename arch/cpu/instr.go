package cpu

import (
	"strconv"

	"github.com/arq-sim/arqsim/arch/word"
)

// Instruction formats. Bit 15 of the encoded word selects the format:
// 0 selects R-format (register/register/register), 1 selects I-format
// (register/immediate).
//
// R-format field layout. The spec's own bit tables disagree with each
// other on where the opcode field ends (one table says bits 9..6, four
// bits, which cannot hold the syscall opcode 63). dest/op1/op2 are
// unambiguous at 3 bits each occupying bits 8..0, so the only encoding
// wide enough for every defined opcode (0..5, 15, 16, 63) is a 6-bit
// opcode in bits 14..9. That is the layout implemented here.
//
//	bit15   bits14..9  bits8..6  bits5..3  bits2..0
//	format  opcode     dest      op1       op2
const (
	rOpcodeShift = 9
	rOpcodeMask  = 0x3F
	rDestShift   = 6
	rDestMask    = 0x7
	rOp1Shift    = 3
	rOp1Mask     = 0x7
	rOp2Shift    = 0
	rOp2Mask     = 0x7
)

// R-format opcodes.
const (
	opAdd    = 0
	opSub    = 1
	opMul    = 2
	opDiv    = 3
	opCmpEq  = 4
	opCmpNe  = 5
	opLoad   = 15
	opStore  = 16
	opSyscall = 63
)

// I-format field layout: bits14..13 opcode, bits12..10 reg, bits9..0 immediate.
const (
	iOpcodeShift = 13
	iOpcodeMask  = 0x3
	iRegShift    = 10
	iRegMask     = 0x7
	iImmMask     = 0x3FF
)

// I-format opcodes.
const (
	opJump   = 0
	opJumpIf = 1
	// opcode 2 is unused.
	opMov = 3
)

type rFields struct {
	opcode   uint8
	dest     uint8
	op1, op2 uint8
}

// decodeR extracts the R-format fields from an instruction word.
func decodeR(instr word.Word) rFields {
	return rFields{
		opcode: uint8((instr >> rOpcodeShift) & rOpcodeMask),
		dest:   uint8((instr >> rDestShift) & rDestMask),
		op1:    uint8((instr >> rOp1Shift) & rOp1Mask),
		op2:    uint8((instr >> rOp2Shift) & rOp2Mask),
	}
}

// encodeR packs an R-format triple back into a word. Used by tests and
// by assembler-style tooling; round-tripping through decodeR must
// yield the original fields for every legal opcode.
func encodeR(opcode, dest, op1, op2 uint8) word.Word {
	var w word.Word
	w |= word.Word(opcode&rOpcodeMask) << rOpcodeShift
	w |= word.Word(dest&rDestMask) << rDestShift
	w |= word.Word(op1&rOp1Mask) << rOp1Shift
	w |= word.Word(op2&rOp2Mask) << rOp2Shift
	return w
}

type iFields struct {
	opcode uint8
	reg    uint8
	imm    word.Word
}

func decodeI(instr word.Word) iFields {
	return iFields{
		opcode: uint8((instr >> iOpcodeShift) & iOpcodeMask),
		reg:    uint8((instr >> iRegShift) & iRegMask),
		imm:    instr & iImmMask,
	}
}

func encodeI(opcode, reg uint8, imm word.Word) word.Word {
	w := word.Word(1) << 15
	w |= word.Word(opcode&iOpcodeMask) << iOpcodeShift
	w |= word.Word(reg&iRegMask) << iRegShift
	w |= imm & iImmMask
	return w
}

// execute decodes and runs a single instruction. Unknown opcodes,
// division by zero, and any condition the host cannot simulate are
// host-fatal and panic with a descriptive message; the caller (the
// simulator's main loop) recovers at the top level and tears the host
// down per spec §7.
func (c *CPU) execute(instr word.Word, k Kernel) {
	if instr&(1<<15) == 0 {
		c.executeR(instr, k)
	} else {
		c.executeI(instr)
	}
}

func (c *CPU) executeR(instr word.Word, k Kernel) {
	f := decodeR(instr)
	op1 := c.gpr[f.op1]
	op2 := c.gpr[f.op2]

	switch f.opcode {
	case opAdd:
		c.gpr[f.dest] = word.Add(op1, op2)
	case opSub:
		c.gpr[f.dest] = word.Sub(op1, op2)
	case opMul:
		c.gpr[f.dest] = word.Mul(op1, op2)
	case opDiv:
		if op2 == 0 {
			panic("cpu: host-fatal: division by zero")
		}
		c.gpr[f.dest] = word.Div(op1, op2)
	case opCmpEq:
		c.gpr[f.dest] = word.Bool(op1 == op2)
	case opCmpNe:
		c.gpr[f.dest] = word.Bool(op1 != op2)
	case opLoad:
		c.gpr[f.dest] = c.ReadVirtual(op1)
	case opStore:
		c.WriteVirtual(op1, op2)
	case opSyscall:
		k.OnSyscall(c)
	default:
		panic("cpu: host-fatal: unknown R-format opcode " + strconv.Itoa(int(f.opcode)))
	}
}

func (c *CPU) executeI(instr word.Word) {
	f := decodeI(instr)

	switch f.opcode {
	case opJump:
		c.pc = f.imm
	case opJumpIf:
		if c.gpr[f.reg] == 1 {
			c.pc = f.imm
		}
	case opMov:
		c.gpr[f.reg] = f.imm
	default:
		panic("cpu: host-fatal: unknown I-format opcode " + strconv.Itoa(int(f.opcode)))
	}
}
