// cpu_x86_alu.go - Width-generic ALU kernels with flag semantics
//
// One kernel per mnemonic, generic over the three guest integer widths.
// The flag rules here are the contract the rest of the emulator (and the
// guest) depends on; the tests in cpu_x86_alu_test.go pin every rule.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import "math/bits"

// guestInt is the set of guest operand widths.
type guestInt interface {
	uint8 | uint16 | uint32
}

// bitsOf returns the operand width in bits.
func bitsOf[T guestInt](v T) uint {
	switch any(v).(type) {
	case uint8:
		return 8
	case uint16:
		return 16
	default:
		return 32
	}
}

// setResultFlags sets ZF/SF/PF from a result.
func setResultFlags[T guestInt](c *CPU_X86, r T) {
	c.setFlag(x86FlagZF, r == 0)
	c.setFlag(x86FlagSF, r>>(bitsOf(r)-1) == 1)
	c.setFlag(x86FlagPF, parity(byte(r)))
}

// aluAdd computes x + y.
func aluAdd[T guestInt](c *CPU_X86, x, y T) T {
	return aluAdc(c, x, y, 0)
}

// aluAdc computes x + y + carry (carry is 0 or 1).
//
// CF is a true unsigned carry out of the top bit: either the sum wrapped
// (result < x), or y+carry itself wrapped all the way to zero. OF is set
// when both addends share a sign and the result has the other one.
func aluAdc[T guestInt](c *CPU_X86, x, y, carry T) T {
	w := bitsOf(x)
	y += carry
	r := x + y
	c.setFlag(x86FlagCF, r < x || (y == 0 && carry != 0))
	c.setFlag(x86FlagOF, ((x^^y)&(x^r))>>(w-1) == 1)
	c.setFlag(x86FlagAF, (x&0xF)+(y&0xF) > 0xF)
	setResultFlags(c, r)
	return r
}

// aluSub computes x - y.
func aluSub[T guestInt](c *CPU_X86, x, y T) T {
	return aluSbb(c, x, y, 0)
}

// aluSbb computes x - (y + borrow) (borrow is 0 or 1).
//
// CF is the unsigned borrow: either y+borrow exceeds x, or y+borrow
// itself wrapped to zero with a borrow pending.
func aluSbb[T guestInt](c *CPU_X86, x, y, borrow T) T {
	w := bitsOf(x)
	y += borrow
	r := x - y
	c.setFlag(x86FlagCF, x < y || (borrow != 0 && y == 0))
	c.setFlag(x86FlagOF, ((x^y)&(x^r))>>(w-1) == 1)
	c.setFlag(x86FlagAF, (x&0xF) < (y&0xF))
	setResultFlags(c, r)
	return r
}

// aluAnd computes x & y; CF and OF are cleared, AF is left alone.
func aluAnd[T guestInt](c *CPU_X86, x, y T) T {
	r := x & y
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	setResultFlags(c, r)
	return r
}

// aluOr computes x | y.
func aluOr[T guestInt](c *CPU_X86, x, y T) T {
	r := x | y
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	setResultFlags(c, r)
	return r
}

// aluXor computes x ^ y.
func aluXor[T guestInt](c *CPU_X86, x, y T) T {
	r := x ^ y
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	setResultFlags(c, r)
	return r
}

// aluShl shifts left. A zero count (after the x86 5-bit mask) changes no
// flags. CF is the last bit shifted out. OF is documented only for
// count 1 ("set if the top two bits of the operand differed"); hardware
// holds that value for larger counts too, so the kernel does the same.
func aluShl[T guestInt](c *CPU_X86, x T, n byte) T {
	n &= 31
	if n == 0 {
		return x
	}
	w := bitsOf(x)
	cf := false
	if uint(n) <= w {
		cf = (x>>(w-uint(n)))&1 == 1
	}
	r := x << n
	c.setFlag(x86FlagCF, cf)
	c.setFlag(x86FlagOF, ((x>>(w-1))^(x>>(w-2)))&1 == 1)
	setResultFlags(c, r)
	return r
}

// aluShr shifts right logically. SF follows the result, which for a
// nonzero count is always clear. OF holds the top bit of the original
// operand, matching both the count-1 documentation and observed hardware
// for larger counts.
func aluShr[T guestInt](c *CPU_X86, x T, n byte) T {
	n &= 31
	if n == 0 {
		return x
	}
	c.setFlag(x86FlagCF, (x>>(n-1))&1 == 1)
	r := x >> n
	c.setFlag(x86FlagOF, x>>(bitsOf(x)-1) == 1)
	setResultFlags(c, r)
	return r
}

// sarShift performs the width's arithmetic right shift.
func sarShift[T guestInt](x T, n byte) T {
	switch v := any(x).(type) {
	case uint8:
		return T(uint8(int8(v) >> n))
	case uint16:
		return T(uint16(int16(v) >> n))
	case uint32:
		return T(uint32(int32(v) >> n))
	}
	return x
}

// aluSar shifts right arithmetically; OF is always cleared.
func aluSar[T guestInt](c *CPU_X86, x T, n byte) T {
	n &= 31
	if n == 0 {
		return x
	}
	c.setFlag(x86FlagCF, (x>>(n-1))&1 == 1)
	r := sarShift(x, n)
	c.setFlag(x86FlagOF, false)
	setResultFlags(c, r)
	return r
}

// rotr rotates x right by n bits within its width.
func rotr[T guestInt](x T, n byte) T {
	switch v := any(x).(type) {
	case uint8:
		return T(bits.RotateLeft8(v, -int(n&7)))
	case uint16:
		return T(bits.RotateLeft16(v, -int(n&15)))
	case uint32:
		return T(bits.RotateLeft32(v, -int(n&31)))
	}
	return x
}

// rotl rotates x left by n bits within its width.
func rotl[T guestInt](x T, n byte) T {
	switch v := any(x).(type) {
	case uint8:
		return T(bits.RotateLeft8(v, int(n&7)))
	case uint16:
		return T(bits.RotateLeft16(v, int(n&15)))
	case uint32:
		return T(bits.RotateLeft32(v, int(n&31)))
	}
	return x
}

// aluRor rotates right. Rotates leave ZF/SF/PF alone; CF receives the new
// top bit and OF is CF xor the next-to-top bit of the result (bit
// 0x40000000 for the 32-bit form).
func aluRor[T guestInt](c *CPU_X86, x T, n byte) T {
	if n&31 == 0 {
		return x
	}
	w := bitsOf(x)
	r := rotr(x, n)
	msb := r>>(w-1) == 1
	c.setFlag(x86FlagCF, msb)
	c.setFlag(x86FlagOF, msb != ((r>>(w-2))&1 == 1))
	return r
}

// aluRol rotates left. CF receives the bit that wrapped around into the
// bottom; OF is the top bit of the result xor CF.
func aluRol[T guestInt](c *CPU_X86, x T, n byte) T {
	if n&31 == 0 {
		return x
	}
	w := bitsOf(x)
	r := rotl(x, n)
	cf := r&1 == 1
	c.setFlag(x86FlagCF, cf)
	c.setFlag(x86FlagOF, (r>>(w-1) == 1) != cf)
	return r
}

// aluInc adds one, preserving CF (the x86 quirk that distinguishes inc
// from add-1). OF is set only on true signed overflow, i.e. when x was
// the maximum positive value for the width.
func aluInc[T guestInt](c *CPU_X86, x T) T {
	sign := T(1) << (bitsOf(x) - 1)
	r := x + 1
	c.setFlag(x86FlagOF, x == sign-1)
	c.setFlag(x86FlagAF, x&0xF == 0xF)
	setResultFlags(c, r)
	return r
}

// aluDec subtracts one, preserving CF. OF fires only when x was the
// minimum negative value.
func aluDec[T guestInt](c *CPU_X86, x T) T {
	sign := T(1) << (bitsOf(x) - 1)
	r := x - 1
	c.setFlag(x86FlagOF, x == sign)
	c.setFlag(x86FlagAF, x&0xF == 0)
	setResultFlags(c, r)
	return r
}

// aluNeg computes two's-complement negation. CF is set for any nonzero
// operand; OF fires for the minimum negative value, whose negation does
// not fit.
func aluNeg[T guestInt](c *CPU_X86, x T) T {
	sign := T(1) << (bitsOf(x) - 1)
	r := -x
	c.setFlag(x86FlagCF, x != 0)
	c.setFlag(x86FlagOF, x == sign)
	c.setFlag(x86FlagAF, x&0xF != 0)
	setResultFlags(c, r)
	return r
}

// aluNot complements all bits; no flags change.
func aluNot[T guestInt](c *CPU_X86, x T) T {
	return ^x
}

// -----------------------------------------------------------------------------
// Multiply / divide (width-specific: the double-width products and the
// EDX:EAX register pairing do not generalize cleanly)
// -----------------------------------------------------------------------------

// setMulFlags sets CF/OF together; the other arithmetic flags are
// undefined after multiplies and left alone.
func (c *CPU_X86) setMulFlags(overflow bool) {
	c.setFlag(x86FlagCF, overflow)
	c.setFlag(x86FlagOF, overflow)
}

// imulUnary8: AX = AL * op (signed). CF/OF set when AH is not the sign
// extension of AL.
func (c *CPU_X86) imulUnary8(op byte) {
	full := int16(int8(c.AL())) * int16(int8(op))
	c.SetAX(uint16(full))
	c.setMulFlags(full != int16(int8(full)))
}

// imulUnary16: DX:AX = AX * op (signed).
func (c *CPU_X86) imulUnary16(op uint16) {
	full := int32(int16(c.AX())) * int32(int16(op))
	c.SetAX(uint16(full))
	c.SetDX(uint16(uint32(full) >> 16))
	c.setMulFlags(full != int32(int16(full)))
}

// imulUnary32: EDX:EAX = EAX * op (signed). CF/OF set when the product
// does not fit in 32 bits, i.e. EDX is not EAX's sign extension.
func (c *CPU_X86) imulUnary32(op uint32) {
	full := int64(int32(c.EAX)) * int64(int32(op))
	c.EAX = uint32(full)
	c.EDX = uint32(uint64(full) >> 32)
	c.setMulFlags(full != int64(int32(full)))
}

// imulTrunc32 is the r32, rm32[, imm] form: a 32-bit truncating signed
// multiply. CF/OF set when the truncation lost information.
func (c *CPU_X86) imulTrunc32(x, y uint32) uint32 {
	full := int64(int32(x)) * int64(int32(y))
	c.setMulFlags(full != int64(int32(full)))
	return uint32(full)
}

func (c *CPU_X86) mulUnary8(op byte) {
	full := uint16(c.AL()) * uint16(op)
	c.SetAX(full)
	c.setMulFlags(full>>8 != 0)
}

func (c *CPU_X86) mulUnary16(op uint16) {
	full := uint32(c.AX()) * uint32(op)
	c.SetAX(uint16(full))
	c.SetDX(uint16(full >> 16))
	c.setMulFlags(full>>16 != 0)
}

func (c *CPU_X86) mulUnary32(op uint32) {
	full := uint64(c.EAX) * uint64(op)
	c.EAX = uint32(full)
	c.EDX = uint32(full >> 32)
	c.setMulFlags(full>>32 != 0)
}

// divUnary32: EDX:EAX / op, quotient to EAX, remainder to EDX. Faults on
// a zero divisor or a quotient that does not fit.
func (c *CPU_X86) divUnary32(op uint32) {
	num := uint64(c.EDX)<<32 | uint64(c.EAX)
	if op == 0 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	q := num / uint64(op)
	if q > 0xFFFFFFFF {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	c.EAX = uint32(q)
	c.EDX = uint32(num % uint64(op))
}

func (c *CPU_X86) idivUnary32(op uint32) {
	num := int64(uint64(c.EDX)<<32 | uint64(c.EAX))
	den := int64(int32(op))
	if den == 0 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	q := num / den
	if q > 0x7FFFFFFF || q < -0x80000000 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	c.EAX = uint32(int32(q))
	c.EDX = uint32(int32(num % den))
}

func (c *CPU_X86) divUnary16(op uint16) {
	num := uint32(c.DX())<<16 | uint32(c.AX())
	if op == 0 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	q := num / uint32(op)
	if q > 0xFFFF {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	c.SetAX(uint16(q))
	c.SetDX(uint16(num % uint32(op)))
}

func (c *CPU_X86) idivUnary16(op uint16) {
	num := int32(uint32(c.DX())<<16 | uint32(c.AX()))
	den := int32(int16(op))
	if den == 0 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	q := num / den
	if q > 0x7FFF || q < -0x8000 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	c.SetAX(uint16(int16(q)))
	c.SetDX(uint16(int16(num % den)))
}

func (c *CPU_X86) divUnary8(op byte) {
	num := uint32(c.AX())
	if op == 0 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	q := num / uint32(op)
	if q > 0xFF {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	c.SetAL(byte(q))
	c.SetAH(byte(num % uint32(op)))
}

func (c *CPU_X86) idivUnary8(op byte) {
	num := int32(int16(c.AX()))
	den := int32(int8(op))
	if den == 0 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	q := num / den
	if q > 0x7F || q < -0x80 {
		c.setFault(&DivideError{EIP: c.startEIP})
		return
	}
	c.SetAL(byte(int8(q)))
	c.SetAH(byte(int8(num % den)))
}
