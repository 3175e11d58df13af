// cpu_x86_test.go - CPU interpreter unit tests
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"errors"
	"testing"
)

// runCode loads code at addr, points EIP at it and steps n instructions.
func runCode(t *testing.T, c *CPU_X86, addr uint32, code []byte, steps int) {
	t.Helper()
	copy(c.mem.Bytes()[addr:], code)
	c.EIP = addr
	for i := 0; i < steps; i++ {
		if err := c.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestX86_RegisterAliases(t *testing.T) {
	c := newTestCPU()

	c.EAX = 0x12345678
	if c.AX() != 0x5678 {
		t.Errorf("AX: got 0x%04X, want 0x5678", c.AX())
	}
	if c.AL() != 0x78 {
		t.Errorf("AL: got 0x%02X, want 0x78", c.AL())
	}
	if c.AH() != 0x56 {
		t.Errorf("AH: got 0x%02X, want 0x56", c.AH())
	}

	// Partial writes preserve the other bytes.
	c.SetAL(0xAB)
	if c.EAX != 0x123456AB {
		t.Errorf("SetAL: EAX got 0x%08X, want 0x123456AB", c.EAX)
	}
	c.SetAH(0xCD)
	if c.EAX != 0x1234CDAB {
		t.Errorf("SetAH: EAX got 0x%08X, want 0x1234CDAB", c.EAX)
	}
	c.SetAX(0x9999)
	if c.EAX != 0x12349999 {
		t.Errorf("SetAX: EAX got 0x%08X, want 0x12349999", c.EAX)
	}

	// Index-based access, including the high-byte registers.
	c.EBX = 0xAABBCCDD
	if c.getReg32(3) != 0xAABBCCDD {
		t.Errorf("getReg32(3): got 0x%08X", c.getReg32(3))
	}
	if c.getReg16(3) != 0xCCDD {
		t.Errorf("getReg16(3): got 0x%04X", c.getReg16(3))
	}
	if c.getReg8(3) != 0xDD { // BL
		t.Errorf("getReg8(3): got 0x%02X", c.getReg8(3))
	}
	if c.getReg8(7) != 0xCC { // BH
		t.Errorf("getReg8(7): got 0x%02X", c.getReg8(7))
	}
	c.setReg8(7, 0x11) // BH
	if c.EBX != 0xAABB11DD {
		t.Errorf("setReg8(BH): EBX got 0x%08X", c.EBX)
	}
}

// Scenario S1/S2: add eax, imm32.
func TestX86_AddImm(t *testing.T) {
	c := newTestCPU()
	c.EAX = 3
	runCode(t, c, 0x100, []byte{0x05, 0x05, 0x00, 0x00, 0x00}, 1) // add eax, 5
	if c.EAX != 8 {
		t.Errorf("EAX: got %d, want 8", c.EAX)
	}
	checkFlags(t, c, false, false, false, false)

	c = newTestCPU()
	c.EAX = 3
	runCode(t, c, 0x100, []byte{0x05, 0xFD, 0xFF, 0xFF, 0xFF}, 1) // add eax, -3
	if c.EAX != 0 {
		t.Errorf("EAX: got %d, want 0", c.EAX)
	}
	if !c.ZF() || !c.CF() || c.OF() {
		t.Errorf("flags: ZF=%t CF=%t OF=%t", c.ZF(), c.CF(), c.OF())
	}
}

// Scenario S3/S4: adc al, imm8 with carry in.
func TestX86_AdcImm(t *testing.T) {
	c := newTestCPU()
	c.EAX = 0xFF
	c.setFlag(x86FlagCF, true)
	runCode(t, c, 0x100, []byte{0x14, 0x01}, 1) // adc al, 1
	if c.AL() != 1 {
		t.Errorf("AL: got 0x%02X, want 1", c.AL())
	}
	if !c.CF() {
		t.Error("CF should remain set")
	}

	c = newTestCPU()
	c.EAX = 0xFF
	c.setFlag(x86FlagCF, true)
	runCode(t, c, 0x100, []byte{0x14, 0xFE}, 1) // adc al, 0xFE
	if c.AL() != 0xFE {
		t.Errorf("AL: got 0x%02X, want 0xFE", c.AL())
	}
	if !c.CF() {
		t.Error("CF should remain set")
	}
}

// Scenario S5: sub eax, 1 at the sign boundary.
func TestX86_SubBoundary(t *testing.T) {
	c := newTestCPU()
	c.EAX = 0x80000000
	runCode(t, c, 0x100, []byte{0x83, 0xE8, 0x01}, 1) // sub eax, 1
	if c.EAX != 0x7FFFFFFF {
		t.Errorf("EAX: got 0x%08X, want 0x7FFFFFFF", c.EAX)
	}
	if c.CF() || !c.OF() || c.SF() {
		t.Errorf("flags: CF=%t OF=%t SF=%t", c.CF(), c.OF(), c.SF())
	}
}

// Scenario S6: mov eax, [moffs32].
func TestX86_MovLoad(t *testing.T) {
	c := newTestCPU()
	c.mem.Put32(0x1000, 0xDEADBEEF)
	runCode(t, c, 0x100, []byte{0xA1, 0x00, 0x10, 0x00, 0x00}, 1)
	if c.EAX != 0xDEADBEEF {
		t.Errorf("EAX: got 0x%08X, want 0xDEADBEEF", c.EAX)
	}
}

func TestX86_EffectiveAddressSIB(t *testing.T) {
	c := newTestCPU()
	c.EBX = 0x1000
	c.ECX = 0x10
	c.mem.Put32(0x1000+0x10*4+8, 0xCAFED00D)
	// mov eax, [ebx + ecx*4 + 8]
	runCode(t, c, 0x100, []byte{0x8B, 0x44, 0x8B, 0x08}, 1)
	if c.EAX != 0xCAFED00D {
		t.Errorf("EAX: got 0x%08X, want 0xCAFED00D", c.EAX)
	}
}

func TestX86_FSOverride(t *testing.T) {
	c := newTestCPU()
	c.SetFSBase(0x2000)
	c.mem.Put32(0x2000+0x18, 0x2000)
	// mov eax, fs:[0x18]
	runCode(t, c, 0x100, []byte{0x64, 0xA1, 0x18, 0x00, 0x00, 0x00}, 1)
	if c.EAX != 0x2000 {
		t.Errorf("EAX: got 0x%08X, want 0x2000", c.EAX)
	}

	// And through a mod-r/m operand.
	c.EBX = 0x8
	runCode(t, c, 0x200, []byte{0x64, 0x8B, 0x43, 0x10}, 1) // mov eax, fs:[ebx+0x10]
	if c.EAX != 0x2000 {
		t.Errorf("modrm with FS base: got 0x%08X", c.EAX)
	}
}

// A read-modify-write on a memory operand must resolve the effective
// address once: the write lands where the read came from.
func TestX86_RMWHandleAliasing(t *testing.T) {
	c := newTestCPU()
	c.EBX = 0x1000
	c.mem.Put32(0x1000, 40)
	// add [ebx], 2
	runCode(t, c, 0x100, []byte{0x83, 0x03, 0x02}, 1)
	v, _ := c.mem.Get32(0x1000)
	if v != 42 {
		t.Errorf("[ebx]: got %d, want 42", v)
	}

	// With displacement bytes in the instruction: inc dword [ebx+0x20].
	c.mem.Put32(0x1020, 7)
	runCode(t, c, 0x200, []byte{0xFF, 0x43, 0x20}, 1)
	v, _ = c.mem.Get32(0x1020)
	if v != 8 {
		t.Errorf("[ebx+0x20]: got %d, want 8", v)
	}
}

func TestX86_PushPopCallRet(t *testing.T) {
	c := newTestCPU()
	c.ESP = 0x8000
	c.EAX = 0x12345678
	runCode(t, c, 0x100, []byte{0x50}, 1) // push eax
	if c.ESP != 0x7FFC {
		t.Errorf("ESP after push: 0x%X", c.ESP)
	}
	v, _ := c.mem.Get32(0x7FFC)
	if v != 0x12345678 {
		t.Errorf("stack top: 0x%X", v)
	}
	runCode(t, c, 0x101, []byte{0x5B}, 1) // pop ebx
	if c.EBX != 0x12345678 || c.ESP != 0x8000 {
		t.Errorf("pop: EBX=0x%X ESP=0x%X", c.EBX, c.ESP)
	}

	// call rel32 / ret
	c = newTestCPU()
	c.ESP = 0x8000
	// 0x100: call +0x10 (to 0x115); 0x115: ret
	copy(c.mem.Bytes()[0x115:], []byte{0xC3})
	runCode(t, c, 0x100, []byte{0xE8, 0x10, 0x00, 0x00, 0x00}, 1)
	if c.EIP != 0x115 {
		t.Fatalf("call: EIP=0x%X, want 0x115", c.EIP)
	}
	ret, _ := c.mem.Get32(c.ESP)
	if ret != 0x105 {
		t.Errorf("return address: 0x%X, want 0x105", ret)
	}
	if err := c.Step(); err != nil { // ret
		t.Fatalf("ret: %v", err)
	}
	if c.EIP != 0x105 || c.ESP != 0x8000 {
		t.Errorf("after ret: EIP=0x%X ESP=0x%X", c.EIP, c.ESP)
	}
}

func TestX86_RetImm(t *testing.T) {
	c := newTestCPU()
	c.ESP = 0x7FF0
	c.mem.Put32(0x7FF0, 0x200) // return address
	runCode(t, c, 0x100, []byte{0xC2, 0x08, 0x00}, 1) // ret 8
	if c.EIP != 0x200 {
		t.Errorf("EIP: 0x%X", c.EIP)
	}
	if c.ESP != 0x7FF0+4+8 {
		t.Errorf("ESP: 0x%X, want 0x%X", c.ESP, 0x7FF0+4+8)
	}
}

func TestX86_CondJumps(t *testing.T) {
	c := newTestCPU()
	c.ECX = 5
	// cmp ecx, 5; jz +5 (skip mov); mov eax, 1; nop
	code := []byte{
		0x83, 0xF9, 0x05, // cmp ecx, 5
		0x74, 0x05, // jz +5
		0xB8, 0x01, 0x00, 0x00, 0x00, // mov eax, 1
		0x90, // nop
	}
	runCode(t, c, 0x100, code, 2)
	if c.EIP != 0x10A {
		t.Errorf("jz taken: EIP=0x%X, want 0x10A", c.EIP)
	}

	c = newTestCPU()
	c.ECX = 4
	runCode(t, c, 0x100, code, 3)
	if c.EAX != 1 {
		t.Error("jz not taken: mov should have run")
	}
}

func TestX86_JmpRel(t *testing.T) {
	c := newTestCPU()
	runCode(t, c, 0x100, []byte{0xEB, 0x10}, 1)
	if c.EIP != 0x112 {
		t.Errorf("jmp rel8: EIP=0x%X", c.EIP)
	}
	c = newTestCPU()
	runCode(t, c, 0x100, []byte{0xE9, 0x00, 0x01, 0x00, 0x00}, 1)
	if c.EIP != 0x205 {
		t.Errorf("jmp rel32: EIP=0x%X", c.EIP)
	}
}

func TestX86_MovzxMovsx(t *testing.T) {
	c := newTestCPU()
	c.EBX = 0xFFFFFF80
	runCode(t, c, 0x100, []byte{0x0F, 0xB6, 0xC3}, 1) // movzx eax, bl
	if c.EAX != 0x80 {
		t.Errorf("movzx: EAX=0x%X", c.EAX)
	}
	runCode(t, c, 0x110, []byte{0x0F, 0xBE, 0xC3}, 1) // movsx eax, bl
	if c.EAX != 0xFFFFFF80 {
		t.Errorf("movsx: EAX=0x%X", c.EAX)
	}
}

func TestX86_Setcc(t *testing.T) {
	c := newTestCPU()
	c.EAX = 1
	c.EBX = 2
	// cmp eax, ebx; setl cl
	runCode(t, c, 0x100, []byte{0x39, 0xD8, 0x0F, 0x9C, 0xC1}, 2)
	if c.CL() != 1 {
		t.Errorf("setl: CL=%d, want 1", c.CL())
	}
}

func TestX86_StringOps(t *testing.T) {
	c := newTestCPU()
	copy(c.mem.Bytes()[0x1000:], "hello")
	c.ESI = 0x1000
	c.EDI = 0x2000
	c.ECX = 5
	runCode(t, c, 0x100, []byte{0xF3, 0xA4}, 1) // rep movsb
	if string(c.mem.Bytes()[0x2000:0x2005]) != "hello" {
		t.Errorf("rep movsb: got %q", c.mem.Bytes()[0x2000:0x2005])
	}
	if c.ECX != 0 || c.ESI != 0x1005 || c.EDI != 0x2005 {
		t.Errorf("rep movsb state: ECX=%d ESI=0x%X EDI=0x%X", c.ECX, c.ESI, c.EDI)
	}

	// rep stosd
	c = newTestCPU()
	c.EAX = 0xAABBCCDD
	c.EDI = 0x3000
	c.ECX = 4
	runCode(t, c, 0x100, []byte{0xF3, 0xAB}, 1)
	for i := uint32(0); i < 4; i++ {
		v, _ := c.mem.Get32(0x3000 + i*4)
		if v != 0xAABBCCDD {
			t.Errorf("stosd[%d]: 0x%X", i, v)
		}
	}
}

func TestX86_Cdq(t *testing.T) {
	c := newTestCPU()
	c.EAX = 0x80000000
	runCode(t, c, 0x100, []byte{0x99}, 1)
	if c.EDX != 0xFFFFFFFF {
		t.Errorf("cdq negative: EDX=0x%X", c.EDX)
	}
	c.EAX = 1
	runCode(t, c, 0x101, []byte{0x99}, 1)
	if c.EDX != 0 {
		t.Errorf("cdq positive: EDX=0x%X", c.EDX)
	}
}

func TestX86_OperandSizePrefix(t *testing.T) {
	c := newTestCPU()
	c.EAX = 0xFFFF0000
	// 66 05 01 00: add ax, 1 (16-bit; must preserve the high half)
	runCode(t, c, 0x100, []byte{0x66, 0x05, 0x01, 0x00}, 1)
	if c.EAX != 0xFFFF0001 {
		t.Errorf("16-bit add: EAX=0x%08X, want 0xFFFF0001", c.EAX)
	}
}

func TestX86_DecodeError(t *testing.T) {
	c := newTestCPU()
	copy(c.mem.Bytes()[0x100:], []byte{0xD8, 0x00}) // x87, not supported
	c.EIP = 0x100
	err := c.Step()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want DecodeError", err)
	}
	if de.EIP != 0x100 {
		t.Errorf("DecodeError.EIP: 0x%X", de.EIP)
	}
	if len(de.Bytes) == 0 || de.Bytes[0] != 0xD8 {
		t.Errorf("DecodeError.Bytes: % X", de.Bytes)
	}
}

func TestX86_MemoryFaultSurfaces(t *testing.T) {
	c := newTestCPU()
	c.EBX = 0xFFFFFF00 // far outside the 64KB test memory
	copy(c.mem.Bytes()[0x100:], []byte{0x8B, 0x03}) // mov eax, [ebx]
	c.EIP = 0x100
	err := c.Step()
	var fault *MemoryFault
	if !errors.As(err, &fault) {
		t.Fatalf("got %v, want MemoryFault", err)
	}
}

func TestX86_DivideErrorSurfaces(t *testing.T) {
	c := newTestCPU()
	c.ECX = 0
	c.EAX = 1
	c.EDX = 0
	copy(c.mem.Bytes()[0x100:], []byte{0xF7, 0xF1}) // div ecx
	c.EIP = 0x100
	err := c.Step()
	var de *DivideError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want DivideError", err)
	}
}

func TestX86_Xchg(t *testing.T) {
	c := newTestCPU()
	c.EAX = 1
	c.EBX = 2
	runCode(t, c, 0x100, []byte{0x93}, 1) // xchg eax, ebx
	if c.EAX != 2 || c.EBX != 1 {
		t.Errorf("xchg: EAX=%d EBX=%d", c.EAX, c.EBX)
	}
}

func TestX86_Lea(t *testing.T) {
	c := newTestCPU()
	c.EBX = 0x1000
	c.ECX = 2
	// lea eax, [ebx + ecx*8 + 0x10]
	runCode(t, c, 0x100, []byte{0x8D, 0x44, 0xCB, 0x10}, 1)
	if c.EAX != 0x1020 {
		t.Errorf("lea: EAX=0x%X, want 0x1020", c.EAX)
	}
}

func TestX86_Leave(t *testing.T) {
	c := newTestCPU()
	c.ESP = 0x7000
	c.EBP = 0x7F00
	c.mem.Put32(0x7F00, 0x12345678) // saved EBP
	runCode(t, c, 0x100, []byte{0xC9}, 1)
	if c.EBP != 0x12345678 {
		t.Errorf("leave: EBP=0x%X", c.EBP)
	}
	if c.ESP != 0x7F04 {
		t.Errorf("leave: ESP=0x%X", c.ESP)
	}
}

func TestX86_Bt(t *testing.T) {
	c := newTestCPU()
	c.EAX = 0x80000000
	c.EBX = 31
	runCode(t, c, 0x100, []byte{0x0F, 0xA3, 0xD8}, 1) // bt eax, ebx
	if !c.CF() {
		t.Error("bt: CF should be set")
	}
	// bts sets the bit.
	c.EAX = 0
	c.EBX = 3
	runCode(t, c, 0x110, []byte{0x0F, 0xAB, 0xD8}, 1)
	if c.EAX != 8 {
		t.Errorf("bts: EAX=0x%X", c.EAX)
	}
}

func TestX86_Bswap(t *testing.T) {
	c := newTestCPU()
	c.EAX = 0x12345678
	runCode(t, c, 0x100, []byte{0x0F, 0xC8}, 1)
	if c.EAX != 0x78563412 {
		t.Errorf("bswap: EAX=0x%X", c.EAX)
	}
}
