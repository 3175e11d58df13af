// cpu_x86.go - x86 CPU interpreter (386+ user-mode subset, flat 32-bit model)
//
// Interprets the general-purpose instruction set that 32-bit Windows
// user-mode code uses: mod-r/m, SIB, displacements, segment override and
// 0x66/0x67 size prefixes, with a flat address space plus additive FS/GS
// segment bases (FS reaches the Thread Environment Block).
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import "fmt"

// DecodeError reports bytes at EIP that the decoder does not understand.
type DecodeError struct {
	EIP   uint32
	Bytes []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable instruction at EIP=0x%08X: % X", e.EIP, e.Bytes)
}

// DivideError reports division by zero or quotient overflow in div/idiv.
type DivideError struct {
	EIP uint32
}

func (e *DivideError) Error() string {
	return fmt.Sprintf("divide error at EIP=0x%08X", e.EIP)
}

// Flag bit positions. Only the arithmetic flags and DF are modeled; the
// rest of the word reads as zero.
const (
	x86FlagCF = 1 << 0  // Carry Flag
	x86FlagPF = 1 << 2  // Parity Flag
	x86FlagAF = 1 << 4  // Auxiliary Carry Flag
	x86FlagZF = 1 << 6  // Zero Flag
	x86FlagSF = 1 << 7  // Sign Flag
	x86FlagDF = 1 << 10 // Direction Flag
	x86FlagOF = 1 << 11 // Overflow Flag
)

// Segment register indices
const (
	x86SegES = 0
	x86SegCS = 1
	x86SegSS = 2
	x86SegDS = 3
	x86SegFS = 4
	x86SegGS = 5
)

// CPU_X86 holds the interpreted CPU state.
type CPU_X86 struct {
	// General purpose registers (32-bit)
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
	ESP uint32

	// Instruction pointer
	EIP uint32

	// Segment selectors and their flat-model base addresses. Only FS (and
	// in principle GS) carries a nonzero base; the rest stay zero.
	Segs    [6]uint16
	SegBase [6]uint32

	// Flags register
	Flags uint32

	mem *Mem

	// First fault raised while executing the current instruction. Checked
	// by Step after the handler returns; all guest-visible faults are
	// fatal to the run, so only the first one matters.
	fault error

	// Current instruction state
	startEIP       uint32
	prefixSeg      int  // segment override (-1 = none)
	prefixRep      int  // 0 = none, 1 = REP/REPE, 2 = REPNE
	prefixOpSize   bool // 0x66: 16-bit operand size
	prefixAddrSize bool // 0x67: 16-bit address size
	opcode         byte
	modrm          byte
	modrmLoaded    bool
	sib            byte
	sibLoaded      bool
	ea             uint32 // resolved effective address for the r/m operand
	eaValid        bool

	// Instruction dispatch tables
	baseOps     [256]func(*CPU_X86)
	extendedOps [256]func(*CPU_X86) // 0x0F prefix opcodes

	// Register pointer array for O(1) lookup.
	// Order: EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI
	regs32 [8]*uint32
}

// NewCPU_X86 creates a CPU interpreting code out of mem.
func NewCPU_X86(mem *Mem) *CPU_X86 {
	cpu := &CPU_X86{mem: mem}
	cpu.regs32 = [8]*uint32{
		&cpu.EAX, &cpu.ECX, &cpu.EDX, &cpu.EBX,
		&cpu.ESP, &cpu.EBP, &cpu.ESI, &cpu.EDI,
	}
	cpu.initBaseOps()
	cpu.initExtendedOps()
	cpu.Reset()
	return cpu
}

// Reset returns the CPU to its power-on state.
func (c *CPU_X86) Reset() {
	c.EAX = 0
	c.EBX = 0
	c.ECX = 0
	c.EDX = 0
	c.ESI = 0
	c.EDI = 0
	c.EBP = 0
	c.ESP = 0
	c.EIP = 0

	c.Segs = [6]uint16{}
	c.SegBase = [6]uint32{}
	c.Flags = 0

	c.fault = nil
	c.resetInstrState()
}

func (c *CPU_X86) resetInstrState() {
	c.prefixSeg = -1
	c.prefixRep = 0
	c.prefixOpSize = false
	c.prefixAddrSize = false
	c.modrmLoaded = false
	c.sibLoaded = false
	c.eaValid = false
}

// -----------------------------------------------------------------------------
// Register Access Helpers
// -----------------------------------------------------------------------------

// AX returns the lower 16 bits of EAX
func (c *CPU_X86) AX() uint16 { return uint16(c.EAX) }

// SetAX sets the lower 16 bits of EAX, preserving the high half
func (c *CPU_X86) SetAX(v uint16) { c.EAX = (c.EAX & 0xFFFF0000) | uint32(v) }

// AL returns the lower 8 bits of EAX
func (c *CPU_X86) AL() byte { return byte(c.EAX) }

// SetAL sets the lower 8 bits of EAX
func (c *CPU_X86) SetAL(v byte) { c.EAX = (c.EAX & 0xFFFFFF00) | uint32(v) }

// AH returns bits 8-15 of EAX
func (c *CPU_X86) AH() byte { return byte(c.EAX >> 8) }

// SetAH sets bits 8-15 of EAX
func (c *CPU_X86) SetAH(v byte) { c.EAX = (c.EAX & 0xFFFF00FF) | (uint32(v) << 8) }

func (c *CPU_X86) BX() uint16     { return uint16(c.EBX) }
func (c *CPU_X86) SetBX(v uint16) { c.EBX = (c.EBX & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) BL() byte       { return byte(c.EBX) }
func (c *CPU_X86) SetBL(v byte)   { c.EBX = (c.EBX & 0xFFFFFF00) | uint32(v) }
func (c *CPU_X86) BH() byte       { return byte(c.EBX >> 8) }
func (c *CPU_X86) SetBH(v byte)   { c.EBX = (c.EBX & 0xFFFF00FF) | (uint32(v) << 8) }

func (c *CPU_X86) CX() uint16     { return uint16(c.ECX) }
func (c *CPU_X86) SetCX(v uint16) { c.ECX = (c.ECX & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) CL() byte       { return byte(c.ECX) }
func (c *CPU_X86) SetCL(v byte)   { c.ECX = (c.ECX & 0xFFFFFF00) | uint32(v) }
func (c *CPU_X86) CH() byte       { return byte(c.ECX >> 8) }
func (c *CPU_X86) SetCH(v byte)   { c.ECX = (c.ECX & 0xFFFF00FF) | (uint32(v) << 8) }

func (c *CPU_X86) DX() uint16     { return uint16(c.EDX) }
func (c *CPU_X86) SetDX(v uint16) { c.EDX = (c.EDX & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) DL() byte       { return byte(c.EDX) }
func (c *CPU_X86) SetDL(v byte)   { c.EDX = (c.EDX & 0xFFFFFF00) | uint32(v) }
func (c *CPU_X86) DH() byte       { return byte(c.EDX >> 8) }
func (c *CPU_X86) SetDH(v byte)   { c.EDX = (c.EDX & 0xFFFF00FF) | (uint32(v) << 8) }

func (c *CPU_X86) SI() uint16     { return uint16(c.ESI) }
func (c *CPU_X86) SetSI(v uint16) { c.ESI = (c.ESI & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) DI() uint16     { return uint16(c.EDI) }
func (c *CPU_X86) SetDI(v uint16) { c.EDI = (c.EDI & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) BP() uint16     { return uint16(c.EBP) }
func (c *CPU_X86) SetBP(v uint16) { c.EBP = (c.EBP & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) SP() uint16     { return uint16(c.ESP) }
func (c *CPU_X86) SetSP(v uint16) { c.ESP = (c.ESP & 0xFFFF0000) | uint32(v) }

// getReg8 returns an 8-bit register by index (0-7: AL, CL, DL, BL, AH, CH, DH, BH)
func (c *CPU_X86) getReg8(idx byte) byte {
	r := c.regs32[idx&3]
	if idx&4 != 0 {
		return byte(*r >> 8)
	}
	return byte(*r)
}

// setReg8 sets an 8-bit register by index, preserving the other bytes
func (c *CPU_X86) setReg8(idx byte, v byte) {
	r := c.regs32[idx&3]
	if idx&4 != 0 {
		*r = (*r & 0xFFFF00FF) | (uint32(v) << 8)
	} else {
		*r = (*r & 0xFFFFFF00) | uint32(v)
	}
}

// getReg16 returns a 16-bit register by index (0-7: AX, CX, DX, BX, SP, BP, SI, DI)
func (c *CPU_X86) getReg16(idx byte) uint16 {
	return uint16(*c.regs32[idx&7])
}

// setReg16 sets a 16-bit register by index, preserving the high half
func (c *CPU_X86) setReg16(idx byte, v uint16) {
	r := c.regs32[idx&7]
	*r = (*r & 0xFFFF0000) | uint32(v)
}

// getReg32 returns a 32-bit register by index (0-7: EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI)
func (c *CPU_X86) getReg32(idx byte) uint32 {
	return *c.regs32[idx&7]
}

// setReg32 sets a 32-bit register by index
func (c *CPU_X86) setReg32(idx byte, v uint32) {
	*c.regs32[idx&7] = v
}

func (c *CPU_X86) getSeg(idx int) uint16     { return c.Segs[idx] }
func (c *CPU_X86) setSeg(idx int, v uint16)  { c.Segs[idx] = v }
func (c *CPU_X86) SetFSBase(base uint32)     { c.SegBase[x86SegFS] = base }
func (c *CPU_X86) segBaseFor(seg int) uint32 { return c.SegBase[seg] }

// -----------------------------------------------------------------------------
// Flag Helpers
// -----------------------------------------------------------------------------

func (c *CPU_X86) getFlag(flag uint32) bool {
	return (c.Flags & flag) != 0
}

func (c *CPU_X86) setFlag(flag uint32, set bool) {
	if set {
		c.Flags |= flag
	} else {
		c.Flags &^= flag
	}
}

func (c *CPU_X86) CF() bool { return c.getFlag(x86FlagCF) }
func (c *CPU_X86) ZF() bool { return c.getFlag(x86FlagZF) }
func (c *CPU_X86) SF() bool { return c.getFlag(x86FlagSF) }
func (c *CPU_X86) OF() bool { return c.getFlag(x86FlagOF) }
func (c *CPU_X86) PF() bool { return c.getFlag(x86FlagPF) }
func (c *CPU_X86) AF() bool { return c.getFlag(x86FlagAF) }
func (c *CPU_X86) DF() bool { return c.getFlag(x86FlagDF) }

// parity returns true if the byte has an even number of set bits
func parity(v byte) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return (v & 1) == 0
}

// -----------------------------------------------------------------------------
// Fault latching
// -----------------------------------------------------------------------------

// setFault records the first fault raised by the current instruction.
func (c *CPU_X86) setFault(err error) {
	if c.fault == nil {
		c.fault = err
	}
}

// -----------------------------------------------------------------------------
// Memory Access
// -----------------------------------------------------------------------------

// fetch8 fetches a byte at EIP and increments EIP
func (c *CPU_X86) fetch8() byte {
	v, err := c.mem.Get8(c.EIP)
	if err != nil {
		c.setFault(err)
		return 0
	}
	c.EIP++
	return v
}

// fetch16 fetches a little-endian word at EIP and advances
func (c *CPU_X86) fetch16() uint16 {
	v, err := c.mem.Get16(c.EIP)
	if err != nil {
		c.setFault(err)
		return 0
	}
	c.EIP += 2
	return v
}

// fetch32 fetches a little-endian dword at EIP and advances
func (c *CPU_X86) fetch32() uint32 {
	v, err := c.mem.Get32(c.EIP)
	if err != nil {
		c.setFault(err)
		return 0
	}
	c.EIP += 4
	return v
}

func (c *CPU_X86) read8(addr uint32) byte {
	v, err := c.mem.Get8(addr)
	if err != nil {
		c.setFault(err)
	}
	return v
}

func (c *CPU_X86) read16(addr uint32) uint16 {
	v, err := c.mem.Get16(addr)
	if err != nil {
		c.setFault(err)
	}
	return v
}

func (c *CPU_X86) read32(addr uint32) uint32 {
	v, err := c.mem.Get32(addr)
	if err != nil {
		c.setFault(err)
	}
	return v
}

func (c *CPU_X86) write8(addr uint32, v byte) {
	if err := c.mem.Put8(addr, v); err != nil {
		c.setFault(err)
	}
}

func (c *CPU_X86) write16(addr uint32, v uint16) {
	if err := c.mem.Put16(addr, v); err != nil {
		c.setFault(err)
	}
}

func (c *CPU_X86) write32(addr uint32, v uint32) {
	if err := c.mem.Put32(addr, v); err != nil {
		c.setFault(err)
	}
}

// -----------------------------------------------------------------------------
// Stack Operations
// -----------------------------------------------------------------------------

func (c *CPU_X86) push16(v uint16) {
	c.ESP -= 2
	c.write16(c.ESP, v)
}

func (c *CPU_X86) pop16() uint16 {
	v := c.read16(c.ESP)
	c.ESP += 2
	return v
}

func (c *CPU_X86) push32(v uint32) {
	c.ESP -= 4
	c.write32(c.ESP, v)
}

func (c *CPU_X86) pop32() uint32 {
	v := c.read32(c.ESP)
	c.ESP += 4
	return v
}

// -----------------------------------------------------------------------------
// ModR/M and SIB Decoding
// -----------------------------------------------------------------------------

// fetchModRM fetches and caches the ModR/M byte
func (c *CPU_X86) fetchModRM() byte {
	if !c.modrmLoaded {
		c.modrm = c.fetch8()
		c.modrmLoaded = true
	}
	return c.modrm
}

// getModRMReg returns the reg field of ModR/M (bits 5-3)
func (c *CPU_X86) getModRMReg() byte {
	return (c.fetchModRM() >> 3) & 7
}

// getModRMRM returns the r/m field of ModR/M (bits 2-0)
func (c *CPU_X86) getModRMRM() byte {
	return c.fetchModRM() & 7
}

// getModRMMod returns the mod field of ModR/M (bits 7-6)
func (c *CPU_X86) getModRMMod() byte {
	return (c.fetchModRM() >> 6) & 3
}

func (c *CPU_X86) fetchSIB() byte {
	if !c.sibLoaded {
		c.sib = c.fetch8()
		c.sibLoaded = true
	}
	return c.sib
}

func (c *CPU_X86) getSIBScale() byte { return (c.fetchSIB() >> 6) & 3 }
func (c *CPU_X86) getSIBIndex() byte { return (c.fetchSIB() >> 3) & 7 }
func (c *CPU_X86) getSIBBase() byte  { return c.fetchSIB() & 7 }

// calcEffectiveAddress16 handles the 0x67-prefixed 16-bit addressing forms.
// Win32 code essentially never emits these, but the decoder accepts them.
func (c *CPU_X86) calcEffectiveAddress16() uint32 {
	mod := c.getModRMMod()
	rm := c.getModRMRM()

	var base uint16
	seg := x86SegDS

	switch rm {
	case 0:
		base = c.BX() + c.SI()
	case 1:
		base = c.BX() + c.DI()
	case 2:
		base = c.BP() + c.SI()
		seg = x86SegSS
	case 3:
		base = c.BP() + c.DI()
		seg = x86SegSS
	case 4:
		base = c.SI()
	case 5:
		base = c.DI()
	case 6:
		if mod == 0 {
			base = c.fetch16()
		} else {
			base = c.BP()
			seg = x86SegSS
		}
	case 7:
		base = c.BX()
	}

	switch mod {
	case 1:
		base = uint16(int16(base) + int16(int8(c.fetch8())))
	case 2:
		base += c.fetch16()
	}

	if c.prefixSeg >= 0 {
		seg = c.prefixSeg
	}
	return uint32(base) + c.segBaseFor(seg)
}

// calcEffectiveAddress32 computes base + index*scale + displacement plus
// the selected segment's base.
func (c *CPU_X86) calcEffectiveAddress32() uint32 {
	mod := c.getModRMMod()
	rm := c.getModRMRM()

	var addr uint32
	seg := x86SegDS

	if rm == 4 {
		// SIB byte follows
		scale := c.getSIBScale()
		index := c.getSIBIndex()
		base := c.getSIBBase()

		if base == 5 && mod == 0 {
			addr = c.fetch32()
		} else {
			addr = c.getReg32(base)
			if base == 4 || base == 5 { // ESP or EBP
				seg = x86SegSS
			}
		}

		// index 4 = no index
		if index != 4 {
			addr += c.getReg32(index) << scale
		}
	} else if rm == 5 && mod == 0 {
		// Direct 32-bit address
		addr = c.fetch32()
	} else {
		addr = c.getReg32(rm)
		if rm == 5 { // EBP
			seg = x86SegSS
		}
	}

	switch mod {
	case 1:
		addr = uint32(int32(addr) + int32(int8(c.fetch8())))
	case 2:
		addr += c.fetch32()
	}

	if c.prefixSeg >= 0 {
		seg = c.prefixSeg
	}
	return addr + c.segBaseFor(seg)
}

// getEffectiveAddress resolves the r/m memory operand's address once per
// instruction. The result is cached so read-modify-write handlers resolve
// the same location for the read and the write, and the displacement bytes
// are consumed from the instruction stream exactly once.
func (c *CPU_X86) getEffectiveAddress() uint32 {
	if !c.eaValid {
		if c.prefixAddrSize {
			c.ea = c.calcEffectiveAddress16()
		} else {
			c.ea = c.calcEffectiveAddress32()
		}
		c.eaValid = true
	}
	return c.ea
}

// readRM8 reads the 8-bit r/m operand (register or memory)
func (c *CPU_X86) readRM8() byte {
	if c.getModRMMod() == 3 {
		return c.getReg8(c.getModRMRM())
	}
	return c.read8(c.getEffectiveAddress())
}

// writeRM8 writes the 8-bit r/m operand resolved by readRM8
func (c *CPU_X86) writeRM8(v byte) {
	if c.getModRMMod() == 3 {
		c.setReg8(c.getModRMRM(), v)
	} else {
		c.write8(c.getEffectiveAddress(), v)
	}
}

func (c *CPU_X86) readRM16() uint16 {
	if c.getModRMMod() == 3 {
		return c.getReg16(c.getModRMRM())
	}
	return c.read16(c.getEffectiveAddress())
}

func (c *CPU_X86) writeRM16(v uint16) {
	if c.getModRMMod() == 3 {
		c.setReg16(c.getModRMRM(), v)
	} else {
		c.write16(c.getEffectiveAddress(), v)
	}
}

func (c *CPU_X86) readRM32() uint32 {
	if c.getModRMMod() == 3 {
		return c.getReg32(c.getModRMRM())
	}
	return c.read32(c.getEffectiveAddress())
}

func (c *CPU_X86) writeRM32(v uint32) {
	if c.getModRMMod() == 3 {
		c.setReg32(c.getModRMRM(), v)
	} else {
		c.write32(c.getEffectiveAddress(), v)
	}
}

// -----------------------------------------------------------------------------
// Instruction Execution
// -----------------------------------------------------------------------------

// Step fetches, decodes and executes one instruction. Any fault raised
// while executing (memory, decode, divide) is returned; faults are fatal
// to the run and leave the CPU state as of the faulting point.
func (c *CPU_X86) Step() error {
	c.resetInstrState()
	c.fault = nil
	c.startEIP = c.EIP

	for {
		c.opcode = c.fetch8()
		if c.fault != nil {
			return c.fault
		}

		switch c.opcode {
		case 0x26:
			c.prefixSeg = x86SegES
		case 0x2E:
			c.prefixSeg = x86SegCS
		case 0x36:
			c.prefixSeg = x86SegSS
		case 0x3E:
			c.prefixSeg = x86SegDS
		case 0x64:
			c.prefixSeg = x86SegFS
		case 0x65:
			c.prefixSeg = x86SegGS
		case 0x66:
			c.prefixOpSize = true
		case 0x67:
			c.prefixAddrSize = true
		case 0xF0: // LOCK: single-threaded interpreter, nothing to lock
		case 0xF2:
			c.prefixRep = 2
		case 0xF3:
			c.prefixRep = 1
		default:
			handler := c.baseOps[c.opcode]
			if handler == nil {
				return c.decodeError()
			}
			handler(c)
			return c.fault
		}
	}
}

// decodeError builds a DecodeError showing the raw bytes at the
// instruction start.
func (c *CPU_X86) decodeError() error {
	n := uint32(8)
	if c.startEIP >= c.mem.Len() {
		return &DecodeError{EIP: c.startEIP}
	}
	if c.startEIP+n > c.mem.Len() {
		n = c.mem.Len() - c.startEIP
	}
	raw, err := c.mem.View(c.startEIP, n)
	if err != nil {
		raw = nil
	}
	bytes := make([]byte, len(raw))
	copy(bytes, raw)
	return &DecodeError{EIP: c.startEIP, Bytes: bytes}
}

// opTwoBytePrefix dispatches 0x0F-prefixed opcodes.
func (c *CPU_X86) opTwoBytePrefix() {
	op := c.fetch8()
	if c.fault != nil {
		return
	}
	handler := c.extendedOps[op]
	if handler == nil {
		c.setFault(c.decodeError())
		return
	}
	handler(c)
}
