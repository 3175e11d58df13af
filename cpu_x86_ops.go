// cpu_x86_ops.go - x86 instruction implementations and dispatch tables
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

// initBaseOps fills the one-byte opcode dispatch table.
func (c *CPU_X86) initBaseOps() {
	// 0x00-0x05: ADD
	c.baseOps[0x00] = (*CPU_X86).opADD_Eb_Gb
	c.baseOps[0x01] = (*CPU_X86).opADD_Ev_Gv
	c.baseOps[0x02] = (*CPU_X86).opADD_Gb_Eb
	c.baseOps[0x03] = (*CPU_X86).opADD_Gv_Ev
	c.baseOps[0x04] = (*CPU_X86).opADD_AL_Ib
	c.baseOps[0x05] = (*CPU_X86).opADD_eAX_Iv

	// 0x08-0x0D: OR
	c.baseOps[0x08] = (*CPU_X86).opOR_Eb_Gb
	c.baseOps[0x09] = (*CPU_X86).opOR_Ev_Gv
	c.baseOps[0x0A] = (*CPU_X86).opOR_Gb_Eb
	c.baseOps[0x0B] = (*CPU_X86).opOR_Gv_Ev
	c.baseOps[0x0C] = (*CPU_X86).opOR_AL_Ib
	c.baseOps[0x0D] = (*CPU_X86).opOR_eAX_Iv

	c.baseOps[0x0F] = (*CPU_X86).opTwoBytePrefix

	// 0x10-0x15: ADC
	c.baseOps[0x10] = (*CPU_X86).opADC_Eb_Gb
	c.baseOps[0x11] = (*CPU_X86).opADC_Ev_Gv
	c.baseOps[0x12] = (*CPU_X86).opADC_Gb_Eb
	c.baseOps[0x13] = (*CPU_X86).opADC_Gv_Ev
	c.baseOps[0x14] = (*CPU_X86).opADC_AL_Ib
	c.baseOps[0x15] = (*CPU_X86).opADC_eAX_Iv

	// 0x18-0x1D: SBB
	c.baseOps[0x18] = (*CPU_X86).opSBB_Eb_Gb
	c.baseOps[0x19] = (*CPU_X86).opSBB_Ev_Gv
	c.baseOps[0x1A] = (*CPU_X86).opSBB_Gb_Eb
	c.baseOps[0x1B] = (*CPU_X86).opSBB_Gv_Ev
	c.baseOps[0x1C] = (*CPU_X86).opSBB_AL_Ib
	c.baseOps[0x1D] = (*CPU_X86).opSBB_eAX_Iv

	// 0x20-0x25: AND
	c.baseOps[0x20] = (*CPU_X86).opAND_Eb_Gb
	c.baseOps[0x21] = (*CPU_X86).opAND_Ev_Gv
	c.baseOps[0x22] = (*CPU_X86).opAND_Gb_Eb
	c.baseOps[0x23] = (*CPU_X86).opAND_Gv_Ev
	c.baseOps[0x24] = (*CPU_X86).opAND_AL_Ib
	c.baseOps[0x25] = (*CPU_X86).opAND_eAX_Iv

	// 0x28-0x2D: SUB
	c.baseOps[0x28] = (*CPU_X86).opSUB_Eb_Gb
	c.baseOps[0x29] = (*CPU_X86).opSUB_Ev_Gv
	c.baseOps[0x2A] = (*CPU_X86).opSUB_Gb_Eb
	c.baseOps[0x2B] = (*CPU_X86).opSUB_Gv_Ev
	c.baseOps[0x2C] = (*CPU_X86).opSUB_AL_Ib
	c.baseOps[0x2D] = (*CPU_X86).opSUB_eAX_Iv

	// 0x30-0x35: XOR
	c.baseOps[0x30] = (*CPU_X86).opXOR_Eb_Gb
	c.baseOps[0x31] = (*CPU_X86).opXOR_Ev_Gv
	c.baseOps[0x32] = (*CPU_X86).opXOR_Gb_Eb
	c.baseOps[0x33] = (*CPU_X86).opXOR_Gv_Ev
	c.baseOps[0x34] = (*CPU_X86).opXOR_AL_Ib
	c.baseOps[0x35] = (*CPU_X86).opXOR_eAX_Iv

	// 0x38-0x3D: CMP
	c.baseOps[0x38] = (*CPU_X86).opCMP_Eb_Gb
	c.baseOps[0x39] = (*CPU_X86).opCMP_Ev_Gv
	c.baseOps[0x3A] = (*CPU_X86).opCMP_Gb_Eb
	c.baseOps[0x3B] = (*CPU_X86).opCMP_Gv_Ev
	c.baseOps[0x3C] = (*CPU_X86).opCMP_AL_Ib
	c.baseOps[0x3D] = (*CPU_X86).opCMP_eAX_Iv

	// 0x40-0x4F: INC/DEC reg
	for i := 0; i < 8; i++ {
		idx := byte(i)
		c.baseOps[0x40+i] = func(cpu *CPU_X86) { cpu.opINC_reg(idx) }
		c.baseOps[0x48+i] = func(cpu *CPU_X86) { cpu.opDEC_reg(idx) }
		c.baseOps[0x50+i] = func(cpu *CPU_X86) { cpu.opPUSH_reg(idx) }
		c.baseOps[0x58+i] = func(cpu *CPU_X86) { cpu.opPOP_reg(idx) }
	}

	c.baseOps[0x60] = (*CPU_X86).opPUSHAD
	c.baseOps[0x61] = (*CPU_X86).opPOPAD

	c.baseOps[0x68] = (*CPU_X86).opPUSH_Iv
	c.baseOps[0x69] = (*CPU_X86).opIMUL_Gv_Ev_Iv
	c.baseOps[0x6A] = (*CPU_X86).opPUSH_Ib
	c.baseOps[0x6B] = (*CPU_X86).opIMUL_Gv_Ev_Ib

	// 0x70-0x7F: Jcc rel8
	for i := 0; i < 16; i++ {
		cc := byte(i)
		c.baseOps[0x70+i] = func(cpu *CPU_X86) { cpu.opJcc_rel8(cc) }
	}

	c.baseOps[0x80] = (*CPU_X86).opGrp1_Eb_Ib
	c.baseOps[0x81] = (*CPU_X86).opGrp1_Ev_Iv
	c.baseOps[0x82] = (*CPU_X86).opGrp1_Eb_Ib // alias
	c.baseOps[0x83] = (*CPU_X86).opGrp1_Ev_Ib

	c.baseOps[0x84] = (*CPU_X86).opTEST_Eb_Gb
	c.baseOps[0x85] = (*CPU_X86).opTEST_Ev_Gv
	c.baseOps[0x86] = (*CPU_X86).opXCHG_Eb_Gb
	c.baseOps[0x87] = (*CPU_X86).opXCHG_Ev_Gv

	c.baseOps[0x88] = (*CPU_X86).opMOV_Eb_Gb
	c.baseOps[0x89] = (*CPU_X86).opMOV_Ev_Gv
	c.baseOps[0x8A] = (*CPU_X86).opMOV_Gb_Eb
	c.baseOps[0x8B] = (*CPU_X86).opMOV_Gv_Ev
	c.baseOps[0x8D] = (*CPU_X86).opLEA_Gv_M
	c.baseOps[0x8F] = (*CPU_X86).opPOP_Ev

	c.baseOps[0x90] = func(cpu *CPU_X86) {} // NOP
	for i := 1; i < 8; i++ {
		idx := byte(i)
		c.baseOps[0x90+i] = func(cpu *CPU_X86) { cpu.opXCHG_eAX_reg(idx) }
	}

	c.baseOps[0x98] = (*CPU_X86).opCWDE
	c.baseOps[0x99] = (*CPU_X86).opCDQ
	c.baseOps[0x9C] = (*CPU_X86).opPUSHFD
	c.baseOps[0x9D] = (*CPU_X86).opPOPFD

	c.baseOps[0xA0] = (*CPU_X86).opMOV_AL_Ob
	c.baseOps[0xA1] = (*CPU_X86).opMOV_eAX_Ov
	c.baseOps[0xA2] = (*CPU_X86).opMOV_Ob_AL
	c.baseOps[0xA3] = (*CPU_X86).opMOV_Ov_eAX

	c.baseOps[0xA4] = (*CPU_X86).opMOVSB
	c.baseOps[0xA5] = (*CPU_X86).opMOVSD
	c.baseOps[0xA6] = (*CPU_X86).opCMPSB
	c.baseOps[0xA8] = (*CPU_X86).opTEST_AL_Ib
	c.baseOps[0xA9] = (*CPU_X86).opTEST_eAX_Iv
	c.baseOps[0xAA] = (*CPU_X86).opSTOSB
	c.baseOps[0xAB] = (*CPU_X86).opSTOSD
	c.baseOps[0xAC] = (*CPU_X86).opLODSB
	c.baseOps[0xAD] = (*CPU_X86).opLODSD
	c.baseOps[0xAE] = (*CPU_X86).opSCASB
	c.baseOps[0xAF] = (*CPU_X86).opSCASD

	// 0xB0-0xBF: MOV reg, imm
	for i := 0; i < 8; i++ {
		idx := byte(i)
		c.baseOps[0xB0+i] = func(cpu *CPU_X86) { cpu.opMOV_r8_Ib(idx) }
		c.baseOps[0xB8+i] = func(cpu *CPU_X86) { cpu.opMOV_r_Iv(idx) }
	}

	c.baseOps[0xC0] = (*CPU_X86).opGrp2_Eb_Ib
	c.baseOps[0xC1] = (*CPU_X86).opGrp2_Ev_Ib
	c.baseOps[0xC2] = (*CPU_X86).opRET_Iw
	c.baseOps[0xC3] = (*CPU_X86).opRET
	c.baseOps[0xC6] = (*CPU_X86).opMOV_Eb_Ib
	c.baseOps[0xC7] = (*CPU_X86).opMOV_Ev_Iv
	c.baseOps[0xC9] = (*CPU_X86).opLEAVE

	c.baseOps[0xD0] = (*CPU_X86).opGrp2_Eb_1
	c.baseOps[0xD1] = (*CPU_X86).opGrp2_Ev_1
	c.baseOps[0xD2] = (*CPU_X86).opGrp2_Eb_CL
	c.baseOps[0xD3] = (*CPU_X86).opGrp2_Ev_CL

	c.baseOps[0xE8] = (*CPU_X86).opCALL_rel32
	c.baseOps[0xE9] = (*CPU_X86).opJMP_rel32
	c.baseOps[0xEB] = (*CPU_X86).opJMP_rel8

	c.baseOps[0xF5] = (*CPU_X86).opCMC
	c.baseOps[0xF6] = (*CPU_X86).opGrp3_Eb
	c.baseOps[0xF7] = (*CPU_X86).opGrp3_Ev
	c.baseOps[0xF8] = (*CPU_X86).opCLC
	c.baseOps[0xF9] = (*CPU_X86).opSTC
	c.baseOps[0xFC] = (*CPU_X86).opCLD
	c.baseOps[0xFD] = (*CPU_X86).opSTD
	c.baseOps[0xFE] = (*CPU_X86).opGrp4_Eb
	c.baseOps[0xFF] = (*CPU_X86).opGrp5_Ev
}

// initExtendedOps fills the 0x0F two-byte opcode table.
func (c *CPU_X86) initExtendedOps() {
	for i := 0; i < 16; i++ {
		cc := byte(i)
		c.extendedOps[0x80+i] = func(cpu *CPU_X86) { cpu.opJcc_rel32(cc) }
		c.extendedOps[0x90+i] = func(cpu *CPU_X86) { cpu.opSETcc_Eb(cc) }
	}

	c.extendedOps[0xA3] = (*CPU_X86).opBT_Ev_Gv
	c.extendedOps[0xA4] = (*CPU_X86).opSHLD_Ib
	c.extendedOps[0xA5] = (*CPU_X86).opSHLD_CL
	c.extendedOps[0xAB] = (*CPU_X86).opBTS_Ev_Gv
	c.extendedOps[0xAC] = (*CPU_X86).opSHRD_Ib
	c.extendedOps[0xAD] = (*CPU_X86).opSHRD_CL
	c.extendedOps[0xAF] = (*CPU_X86).opIMUL_Gv_Ev
	c.extendedOps[0xB3] = (*CPU_X86).opBTR_Ev_Gv
	c.extendedOps[0xB6] = (*CPU_X86).opMOVZX_Gv_Eb
	c.extendedOps[0xB7] = (*CPU_X86).opMOVZX_Gv_Ew
	c.extendedOps[0xBA] = (*CPU_X86).opGrp8_Ev_Ib
	c.extendedOps[0xBB] = (*CPU_X86).opBTC_Ev_Gv
	c.extendedOps[0xBC] = (*CPU_X86).opBSF_Gv_Ev
	c.extendedOps[0xBD] = (*CPU_X86).opBSR_Gv_Ev
	c.extendedOps[0xBE] = (*CPU_X86).opMOVSX_Gv_Eb
	c.extendedOps[0xBF] = (*CPU_X86).opMOVSX_Gv_Ew

	for i := 0; i < 8; i++ {
		idx := byte(i)
		c.extendedOps[0xC8+i] = func(cpu *CPU_X86) { cpu.opBSWAP_reg(idx) }
	}
}

// =============================================================================
// ADD / ADC / SUB / SBB / AND / OR / XOR / CMP (binary ALU forms)
// =============================================================================

func (c *CPU_X86) opADD_Eb_Gb() {
	c.fetchModRM()
	x := c.readRM8()
	y := c.getReg8(c.getModRMReg())
	c.writeRM8(aluAdd(c, x, y))
}

func (c *CPU_X86) opADD_Ev_Gv() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.readRM16()
		y := c.getReg16(c.getModRMReg())
		c.writeRM16(aluAdd(c, x, y))
	} else {
		x := c.readRM32()
		y := c.getReg32(c.getModRMReg())
		c.writeRM32(aluAdd(c, x, y))
	}
}

func (c *CPU_X86) opADD_Gb_Eb() {
	c.fetchModRM()
	x := c.getReg8(c.getModRMReg())
	y := c.readRM8()
	c.setReg8(c.getModRMReg(), aluAdd(c, x, y))
}

func (c *CPU_X86) opADD_Gv_Ev() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.getReg16(c.getModRMReg())
		y := c.readRM16()
		c.setReg16(c.getModRMReg(), aluAdd(c, x, y))
	} else {
		x := c.getReg32(c.getModRMReg())
		y := c.readRM32()
		c.setReg32(c.getModRMReg(), aluAdd(c, x, y))
	}
}

func (c *CPU_X86) opADD_AL_Ib() {
	c.SetAL(aluAdd(c, c.AL(), c.fetch8()))
}

func (c *CPU_X86) opADD_eAX_Iv() {
	if c.prefixOpSize {
		c.SetAX(aluAdd(c, c.AX(), c.fetch16()))
	} else {
		c.EAX = aluAdd(c, c.EAX, c.fetch32())
	}
}

func (c *CPU_X86) carry() uint32 {
	if c.CF() {
		return 1
	}
	return 0
}

func (c *CPU_X86) opADC_Eb_Gb() {
	c.fetchModRM()
	cf := byte(c.carry())
	x := c.readRM8()
	y := c.getReg8(c.getModRMReg())
	c.writeRM8(aluAdc(c, x, y, cf))
}

func (c *CPU_X86) opADC_Ev_Gv() {
	c.fetchModRM()
	cf := c.carry()
	if c.prefixOpSize {
		x := c.readRM16()
		y := c.getReg16(c.getModRMReg())
		c.writeRM16(aluAdc(c, x, y, uint16(cf)))
	} else {
		x := c.readRM32()
		y := c.getReg32(c.getModRMReg())
		c.writeRM32(aluAdc(c, x, y, cf))
	}
}

func (c *CPU_X86) opADC_Gb_Eb() {
	c.fetchModRM()
	cf := byte(c.carry())
	x := c.getReg8(c.getModRMReg())
	y := c.readRM8()
	c.setReg8(c.getModRMReg(), aluAdc(c, x, y, cf))
}

func (c *CPU_X86) opADC_Gv_Ev() {
	c.fetchModRM()
	cf := c.carry()
	if c.prefixOpSize {
		x := c.getReg16(c.getModRMReg())
		y := c.readRM16()
		c.setReg16(c.getModRMReg(), aluAdc(c, x, y, uint16(cf)))
	} else {
		x := c.getReg32(c.getModRMReg())
		y := c.readRM32()
		c.setReg32(c.getModRMReg(), aluAdc(c, x, y, cf))
	}
}

func (c *CPU_X86) opADC_AL_Ib() {
	cf := byte(c.carry())
	c.SetAL(aluAdc(c, c.AL(), c.fetch8(), cf))
}

func (c *CPU_X86) opADC_eAX_Iv() {
	cf := c.carry()
	if c.prefixOpSize {
		c.SetAX(aluAdc(c, c.AX(), c.fetch16(), uint16(cf)))
	} else {
		c.EAX = aluAdc(c, c.EAX, c.fetch32(), cf)
	}
}

func (c *CPU_X86) opSUB_Eb_Gb() {
	c.fetchModRM()
	x := c.readRM8()
	y := c.getReg8(c.getModRMReg())
	c.writeRM8(aluSub(c, x, y))
}

func (c *CPU_X86) opSUB_Ev_Gv() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.readRM16()
		y := c.getReg16(c.getModRMReg())
		c.writeRM16(aluSub(c, x, y))
	} else {
		x := c.readRM32()
		y := c.getReg32(c.getModRMReg())
		c.writeRM32(aluSub(c, x, y))
	}
}

func (c *CPU_X86) opSUB_Gb_Eb() {
	c.fetchModRM()
	x := c.getReg8(c.getModRMReg())
	y := c.readRM8()
	c.setReg8(c.getModRMReg(), aluSub(c, x, y))
}

func (c *CPU_X86) opSUB_Gv_Ev() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.getReg16(c.getModRMReg())
		y := c.readRM16()
		c.setReg16(c.getModRMReg(), aluSub(c, x, y))
	} else {
		x := c.getReg32(c.getModRMReg())
		y := c.readRM32()
		c.setReg32(c.getModRMReg(), aluSub(c, x, y))
	}
}

func (c *CPU_X86) opSUB_AL_Ib() {
	c.SetAL(aluSub(c, c.AL(), c.fetch8()))
}

func (c *CPU_X86) opSUB_eAX_Iv() {
	if c.prefixOpSize {
		c.SetAX(aluSub(c, c.AX(), c.fetch16()))
	} else {
		c.EAX = aluSub(c, c.EAX, c.fetch32())
	}
}

func (c *CPU_X86) opSBB_Eb_Gb() {
	c.fetchModRM()
	b := byte(c.carry())
	x := c.readRM8()
	y := c.getReg8(c.getModRMReg())
	c.writeRM8(aluSbb(c, x, y, b))
}

func (c *CPU_X86) opSBB_Ev_Gv() {
	c.fetchModRM()
	b := c.carry()
	if c.prefixOpSize {
		x := c.readRM16()
		y := c.getReg16(c.getModRMReg())
		c.writeRM16(aluSbb(c, x, y, uint16(b)))
	} else {
		x := c.readRM32()
		y := c.getReg32(c.getModRMReg())
		c.writeRM32(aluSbb(c, x, y, b))
	}
}

func (c *CPU_X86) opSBB_Gb_Eb() {
	c.fetchModRM()
	b := byte(c.carry())
	x := c.getReg8(c.getModRMReg())
	y := c.readRM8()
	c.setReg8(c.getModRMReg(), aluSbb(c, x, y, b))
}

func (c *CPU_X86) opSBB_Gv_Ev() {
	c.fetchModRM()
	b := c.carry()
	if c.prefixOpSize {
		x := c.getReg16(c.getModRMReg())
		y := c.readRM16()
		c.setReg16(c.getModRMReg(), aluSbb(c, x, y, uint16(b)))
	} else {
		x := c.getReg32(c.getModRMReg())
		y := c.readRM32()
		c.setReg32(c.getModRMReg(), aluSbb(c, x, y, b))
	}
}

func (c *CPU_X86) opSBB_AL_Ib() {
	b := byte(c.carry())
	c.SetAL(aluSbb(c, c.AL(), c.fetch8(), b))
}

func (c *CPU_X86) opSBB_eAX_Iv() {
	b := c.carry()
	if c.prefixOpSize {
		c.SetAX(aluSbb(c, c.AX(), c.fetch16(), uint16(b)))
	} else {
		c.EAX = aluSbb(c, c.EAX, c.fetch32(), b)
	}
}

func (c *CPU_X86) opAND_Eb_Gb() {
	c.fetchModRM()
	x := c.readRM8()
	y := c.getReg8(c.getModRMReg())
	c.writeRM8(aluAnd(c, x, y))
}

func (c *CPU_X86) opAND_Ev_Gv() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.readRM16()
		y := c.getReg16(c.getModRMReg())
		c.writeRM16(aluAnd(c, x, y))
	} else {
		x := c.readRM32()
		y := c.getReg32(c.getModRMReg())
		c.writeRM32(aluAnd(c, x, y))
	}
}

func (c *CPU_X86) opAND_Gb_Eb() {
	c.fetchModRM()
	x := c.getReg8(c.getModRMReg())
	y := c.readRM8()
	c.setReg8(c.getModRMReg(), aluAnd(c, x, y))
}

func (c *CPU_X86) opAND_Gv_Ev() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.getReg16(c.getModRMReg())
		y := c.readRM16()
		c.setReg16(c.getModRMReg(), aluAnd(c, x, y))
	} else {
		x := c.getReg32(c.getModRMReg())
		y := c.readRM32()
		c.setReg32(c.getModRMReg(), aluAnd(c, x, y))
	}
}

func (c *CPU_X86) opAND_AL_Ib() {
	c.SetAL(aluAnd(c, c.AL(), c.fetch8()))
}

func (c *CPU_X86) opAND_eAX_Iv() {
	if c.prefixOpSize {
		c.SetAX(aluAnd(c, c.AX(), c.fetch16()))
	} else {
		c.EAX = aluAnd(c, c.EAX, c.fetch32())
	}
}

func (c *CPU_X86) opOR_Eb_Gb() {
	c.fetchModRM()
	x := c.readRM8()
	y := c.getReg8(c.getModRMReg())
	c.writeRM8(aluOr(c, x, y))
}

func (c *CPU_X86) opOR_Ev_Gv() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.readRM16()
		y := c.getReg16(c.getModRMReg())
		c.writeRM16(aluOr(c, x, y))
	} else {
		x := c.readRM32()
		y := c.getReg32(c.getModRMReg())
		c.writeRM32(aluOr(c, x, y))
	}
}

func (c *CPU_X86) opOR_Gb_Eb() {
	c.fetchModRM()
	x := c.getReg8(c.getModRMReg())
	y := c.readRM8()
	c.setReg8(c.getModRMReg(), aluOr(c, x, y))
}

func (c *CPU_X86) opOR_Gv_Ev() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.getReg16(c.getModRMReg())
		y := c.readRM16()
		c.setReg16(c.getModRMReg(), aluOr(c, x, y))
	} else {
		x := c.getReg32(c.getModRMReg())
		y := c.readRM32()
		c.setReg32(c.getModRMReg(), aluOr(c, x, y))
	}
}

func (c *CPU_X86) opOR_AL_Ib() {
	c.SetAL(aluOr(c, c.AL(), c.fetch8()))
}

func (c *CPU_X86) opOR_eAX_Iv() {
	if c.prefixOpSize {
		c.SetAX(aluOr(c, c.AX(), c.fetch16()))
	} else {
		c.EAX = aluOr(c, c.EAX, c.fetch32())
	}
}

func (c *CPU_X86) opXOR_Eb_Gb() {
	c.fetchModRM()
	x := c.readRM8()
	y := c.getReg8(c.getModRMReg())
	c.writeRM8(aluXor(c, x, y))
}

func (c *CPU_X86) opXOR_Ev_Gv() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.readRM16()
		y := c.getReg16(c.getModRMReg())
		c.writeRM16(aluXor(c, x, y))
	} else {
		x := c.readRM32()
		y := c.getReg32(c.getModRMReg())
		c.writeRM32(aluXor(c, x, y))
	}
}

func (c *CPU_X86) opXOR_Gb_Eb() {
	c.fetchModRM()
	x := c.getReg8(c.getModRMReg())
	y := c.readRM8()
	c.setReg8(c.getModRMReg(), aluXor(c, x, y))
}

func (c *CPU_X86) opXOR_Gv_Ev() {
	c.fetchModRM()
	if c.prefixOpSize {
		x := c.getReg16(c.getModRMReg())
		y := c.readRM16()
		c.setReg16(c.getModRMReg(), aluXor(c, x, y))
	} else {
		x := c.getReg32(c.getModRMReg())
		y := c.readRM32()
		c.setReg32(c.getModRMReg(), aluXor(c, x, y))
	}
}

func (c *CPU_X86) opXOR_AL_Ib() {
	c.SetAL(aluXor(c, c.AL(), c.fetch8()))
}

func (c *CPU_X86) opXOR_eAX_Iv() {
	if c.prefixOpSize {
		c.SetAX(aluXor(c, c.AX(), c.fetch16()))
	} else {
		c.EAX = aluXor(c, c.EAX, c.fetch32())
	}
}

func (c *CPU_X86) opCMP_Eb_Gb() {
	c.fetchModRM()
	aluSub(c, c.readRM8(), c.getReg8(c.getModRMReg()))
}

func (c *CPU_X86) opCMP_Ev_Gv() {
	c.fetchModRM()
	if c.prefixOpSize {
		aluSub(c, c.readRM16(), c.getReg16(c.getModRMReg()))
	} else {
		aluSub(c, c.readRM32(), c.getReg32(c.getModRMReg()))
	}
}

func (c *CPU_X86) opCMP_Gb_Eb() {
	c.fetchModRM()
	aluSub(c, c.getReg8(c.getModRMReg()), c.readRM8())
}

func (c *CPU_X86) opCMP_Gv_Ev() {
	c.fetchModRM()
	if c.prefixOpSize {
		aluSub(c, c.getReg16(c.getModRMReg()), c.readRM16())
	} else {
		aluSub(c, c.getReg32(c.getModRMReg()), c.readRM32())
	}
}

func (c *CPU_X86) opCMP_AL_Ib() {
	aluSub(c, c.AL(), c.fetch8())
}

func (c *CPU_X86) opCMP_eAX_Iv() {
	if c.prefixOpSize {
		aluSub(c, c.AX(), c.fetch16())
	} else {
		aluSub(c, c.EAX, c.fetch32())
	}
}

// =============================================================================
// TEST / XCHG
// =============================================================================

func (c *CPU_X86) opTEST_Eb_Gb() {
	c.fetchModRM()
	aluAnd(c, c.readRM8(), c.getReg8(c.getModRMReg()))
}

func (c *CPU_X86) opTEST_Ev_Gv() {
	c.fetchModRM()
	if c.prefixOpSize {
		aluAnd(c, c.readRM16(), c.getReg16(c.getModRMReg()))
	} else {
		aluAnd(c, c.readRM32(), c.getReg32(c.getModRMReg()))
	}
}

func (c *CPU_X86) opTEST_AL_Ib() {
	aluAnd(c, c.AL(), c.fetch8())
}

func (c *CPU_X86) opTEST_eAX_Iv() {
	if c.prefixOpSize {
		aluAnd(c, c.AX(), c.fetch16())
	} else {
		aluAnd(c, c.EAX, c.fetch32())
	}
}

func (c *CPU_X86) opXCHG_Eb_Gb() {
	c.fetchModRM()
	reg := c.getModRMReg()
	a := c.readRM8()
	b := c.getReg8(reg)
	c.writeRM8(b)
	c.setReg8(reg, a)
}

func (c *CPU_X86) opXCHG_Ev_Gv() {
	c.fetchModRM()
	reg := c.getModRMReg()
	if c.prefixOpSize {
		a := c.readRM16()
		b := c.getReg16(reg)
		c.writeRM16(b)
		c.setReg16(reg, a)
	} else {
		a := c.readRM32()
		b := c.getReg32(reg)
		c.writeRM32(b)
		c.setReg32(reg, a)
	}
}

func (c *CPU_X86) opXCHG_eAX_reg(idx byte) {
	if c.prefixOpSize {
		a := c.AX()
		c.SetAX(c.getReg16(idx))
		c.setReg16(idx, a)
	} else {
		a := c.EAX
		c.EAX = c.getReg32(idx)
		c.setReg32(idx, a)
	}
}

// =============================================================================
// MOV / LEA
// =============================================================================

func (c *CPU_X86) opMOV_Eb_Gb() {
	c.fetchModRM()
	c.writeRM8(c.getReg8(c.getModRMReg()))
}

func (c *CPU_X86) opMOV_Ev_Gv() {
	c.fetchModRM()
	if c.prefixOpSize {
		c.writeRM16(c.getReg16(c.getModRMReg()))
	} else {
		c.writeRM32(c.getReg32(c.getModRMReg()))
	}
}

func (c *CPU_X86) opMOV_Gb_Eb() {
	c.fetchModRM()
	c.setReg8(c.getModRMReg(), c.readRM8())
}

func (c *CPU_X86) opMOV_Gv_Ev() {
	c.fetchModRM()
	if c.prefixOpSize {
		c.setReg16(c.getModRMReg(), c.readRM16())
	} else {
		c.setReg32(c.getModRMReg(), c.readRM32())
	}
}

func (c *CPU_X86) opMOV_Eb_Ib() {
	c.fetchModRM()
	if c.getModRMMod() != 3 {
		c.getEffectiveAddress()
	}
	c.writeRM8(c.fetch8())
}

func (c *CPU_X86) opMOV_Ev_Iv() {
	c.fetchModRM()
	if c.getModRMMod() != 3 {
		c.getEffectiveAddress()
	}
	if c.prefixOpSize {
		c.writeRM16(c.fetch16())
	} else {
		c.writeRM32(c.fetch32())
	}
}

func (c *CPU_X86) opMOV_r8_Ib(idx byte) {
	c.setReg8(idx, c.fetch8())
}

func (c *CPU_X86) opMOV_r_Iv(idx byte) {
	if c.prefixOpSize {
		c.setReg16(idx, c.fetch16())
	} else {
		c.setReg32(idx, c.fetch32())
	}
}

func (c *CPU_X86) opMOV_AL_Ob() {
	c.SetAL(c.read8(c.fetch32() + c.moffsBase()))
}

func (c *CPU_X86) opMOV_eAX_Ov() {
	addr := c.fetch32() + c.moffsBase()
	if c.prefixOpSize {
		c.SetAX(c.read16(addr))
	} else {
		c.EAX = c.read32(addr)
	}
}

func (c *CPU_X86) opMOV_Ob_AL() {
	c.write8(c.fetch32()+c.moffsBase(), c.AL())
}

func (c *CPU_X86) opMOV_Ov_eAX() {
	addr := c.fetch32() + c.moffsBase()
	if c.prefixOpSize {
		c.write16(addr, c.AX())
	} else {
		c.write32(addr, c.EAX)
	}
}

// moffsBase returns the segment base applied to moffs-form addresses.
func (c *CPU_X86) moffsBase() uint32 {
	seg := x86SegDS
	if c.prefixSeg >= 0 {
		seg = c.prefixSeg
	}
	return c.segBaseFor(seg)
}

// opLEA_Gv_M stores the effective address itself; the segment base is not
// part of the address computation for lea.
func (c *CPU_X86) opLEA_Gv_M() {
	c.fetchModRM()
	addr := c.getEffectiveAddress()
	if c.prefixSeg >= 0 {
		addr -= c.segBaseFor(c.prefixSeg)
	}
	if c.prefixOpSize {
		c.setReg16(c.getModRMReg(), uint16(addr))
	} else {
		c.setReg32(c.getModRMReg(), addr)
	}
}

// =============================================================================
// INC / DEC / PUSH / POP
// =============================================================================

func (c *CPU_X86) opINC_reg(idx byte) {
	if c.prefixOpSize {
		c.setReg16(idx, aluInc(c, c.getReg16(idx)))
	} else {
		c.setReg32(idx, aluInc(c, c.getReg32(idx)))
	}
}

func (c *CPU_X86) opDEC_reg(idx byte) {
	if c.prefixOpSize {
		c.setReg16(idx, aluDec(c, c.getReg16(idx)))
	} else {
		c.setReg32(idx, aluDec(c, c.getReg32(idx)))
	}
}

func (c *CPU_X86) opPUSH_reg(idx byte) {
	if c.prefixOpSize {
		c.push16(c.getReg16(idx))
	} else {
		c.push32(c.getReg32(idx))
	}
}

func (c *CPU_X86) opPOP_reg(idx byte) {
	if c.prefixOpSize {
		c.setReg16(idx, c.pop16())
	} else {
		c.setReg32(idx, c.pop32())
	}
}

func (c *CPU_X86) opPUSH_Iv() {
	if c.prefixOpSize {
		c.push16(c.fetch16())
	} else {
		c.push32(c.fetch32())
	}
}

func (c *CPU_X86) opPUSH_Ib() {
	v := uint32(int32(int8(c.fetch8())))
	if c.prefixOpSize {
		c.push16(uint16(v))
	} else {
		c.push32(v)
	}
}

func (c *CPU_X86) opPOP_Ev() {
	c.fetchModRM()
	if c.prefixOpSize {
		c.writeRM16(c.pop16())
	} else {
		c.writeRM32(c.pop32())
	}
}

func (c *CPU_X86) opPUSHAD() {
	sp := c.ESP
	c.push32(c.EAX)
	c.push32(c.ECX)
	c.push32(c.EDX)
	c.push32(c.EBX)
	c.push32(sp)
	c.push32(c.EBP)
	c.push32(c.ESI)
	c.push32(c.EDI)
}

func (c *CPU_X86) opPOPAD() {
	c.EDI = c.pop32()
	c.ESI = c.pop32()
	c.EBP = c.pop32()
	c.pop32() // ESP discarded
	c.EBX = c.pop32()
	c.EDX = c.pop32()
	c.ECX = c.pop32()
	c.EAX = c.pop32()
}

func (c *CPU_X86) opPUSHFD() {
	c.push32(c.Flags)
}

func (c *CPU_X86) opPOPFD() {
	const writable = x86FlagCF | x86FlagPF | x86FlagAF | x86FlagZF |
		x86FlagSF | x86FlagDF | x86FlagOF
	c.Flags = c.pop32() & writable
}

// =============================================================================
// Sign extension
// =============================================================================

func (c *CPU_X86) opCWDE() {
	if c.prefixOpSize {
		c.SetAX(uint16(int16(int8(c.AL())))) // cbw
	} else {
		c.EAX = uint32(int32(int16(c.AX())))
	}
}

func (c *CPU_X86) opCDQ() {
	if c.prefixOpSize {
		if c.AX()&0x8000 != 0 { // cwd
			c.SetDX(0xFFFF)
		} else {
			c.SetDX(0)
		}
	} else {
		if c.EAX&0x80000000 != 0 {
			c.EDX = 0xFFFFFFFF
		} else {
			c.EDX = 0
		}
	}
}

// =============================================================================
// Control flow
// =============================================================================

// cond evaluates the x86 condition code cc (the low nibble of Jcc/SETcc).
func (c *CPU_X86) cond(cc byte) bool {
	var r bool
	switch cc >> 1 {
	case 0: // O
		r = c.OF()
	case 1: // B
		r = c.CF()
	case 2: // E
		r = c.ZF()
	case 3: // BE
		r = c.CF() || c.ZF()
	case 4: // S
		r = c.SF()
	case 5: // P
		r = c.PF()
	case 6: // L
		r = c.SF() != c.OF()
	case 7: // LE
		r = c.ZF() || c.SF() != c.OF()
	}
	if cc&1 != 0 {
		r = !r
	}
	return r
}

func (c *CPU_X86) opJcc_rel8(cc byte) {
	disp := int8(c.fetch8())
	if c.cond(cc) {
		c.EIP = uint32(int32(c.EIP) + int32(disp))
	}
}

func (c *CPU_X86) opJcc_rel32(cc byte) {
	disp := int32(c.fetch32())
	if c.cond(cc) {
		c.EIP = uint32(int32(c.EIP) + disp)
	}
}

func (c *CPU_X86) opSETcc_Eb(cc byte) {
	c.fetchModRM()
	if c.cond(cc) {
		c.writeRM8(1)
	} else {
		c.writeRM8(0)
	}
}

func (c *CPU_X86) opJMP_rel8() {
	disp := int8(c.fetch8())
	c.EIP = uint32(int32(c.EIP) + int32(disp))
}

func (c *CPU_X86) opJMP_rel32() {
	disp := int32(c.fetch32())
	c.EIP = uint32(int32(c.EIP) + disp)
}

func (c *CPU_X86) opCALL_rel32() {
	disp := int32(c.fetch32())
	c.push32(c.EIP)
	c.EIP = uint32(int32(c.EIP) + disp)
}

func (c *CPU_X86) opRET() {
	c.EIP = c.pop32()
}

func (c *CPU_X86) opRET_Iw() {
	n := c.fetch16()
	c.EIP = c.pop32()
	c.ESP += uint32(n)
}

func (c *CPU_X86) opLEAVE() {
	c.ESP = c.EBP
	c.EBP = c.pop32()
}

// =============================================================================
// Flag manipulation
// =============================================================================

func (c *CPU_X86) opCLC() { c.setFlag(x86FlagCF, false) }
func (c *CPU_X86) opSTC() { c.setFlag(x86FlagCF, true) }
func (c *CPU_X86) opCMC() { c.setFlag(x86FlagCF, !c.CF()) }
func (c *CPU_X86) opCLD() { c.setFlag(x86FlagDF, false) }
func (c *CPU_X86) opSTD() { c.setFlag(x86FlagDF, true) }

// =============================================================================
// String operations
// =============================================================================

// stringStep returns the per-element pointer adjustment for DF.
func (c *CPU_X86) stringStep(width uint32) uint32 {
	if c.DF() {
		return -width
	}
	return width
}

func (c *CPU_X86) opMOVSB() {
	step := c.stringStep(1)
	if c.prefixRep != 0 {
		for c.ECX != 0 && c.fault == nil {
			c.write8(c.EDI, c.read8(c.ESI))
			c.ESI += step
			c.EDI += step
			c.ECX--
		}
		return
	}
	c.write8(c.EDI, c.read8(c.ESI))
	c.ESI += step
	c.EDI += step
}

func (c *CPU_X86) opMOVSD() {
	if c.prefixOpSize {
		c.movs16()
		return
	}
	step := c.stringStep(4)
	if c.prefixRep != 0 {
		for c.ECX != 0 && c.fault == nil {
			c.write32(c.EDI, c.read32(c.ESI))
			c.ESI += step
			c.EDI += step
			c.ECX--
		}
		return
	}
	c.write32(c.EDI, c.read32(c.ESI))
	c.ESI += step
	c.EDI += step
}

func (c *CPU_X86) movs16() {
	step := c.stringStep(2)
	if c.prefixRep != 0 {
		for c.ECX != 0 && c.fault == nil {
			c.write16(c.EDI, c.read16(c.ESI))
			c.ESI += step
			c.EDI += step
			c.ECX--
		}
		return
	}
	c.write16(c.EDI, c.read16(c.ESI))
	c.ESI += step
	c.EDI += step
}

func (c *CPU_X86) opSTOSB() {
	step := c.stringStep(1)
	if c.prefixRep != 0 {
		for c.ECX != 0 && c.fault == nil {
			c.write8(c.EDI, c.AL())
			c.EDI += step
			c.ECX--
		}
		return
	}
	c.write8(c.EDI, c.AL())
	c.EDI += step
}

func (c *CPU_X86) opSTOSD() {
	if c.prefixOpSize {
		step := c.stringStep(2)
		if c.prefixRep != 0 {
			for c.ECX != 0 && c.fault == nil {
				c.write16(c.EDI, c.AX())
				c.EDI += step
				c.ECX--
			}
			return
		}
		c.write16(c.EDI, c.AX())
		c.EDI += step
		return
	}
	step := c.stringStep(4)
	if c.prefixRep != 0 {
		for c.ECX != 0 && c.fault == nil {
			c.write32(c.EDI, c.EAX)
			c.EDI += step
			c.ECX--
		}
		return
	}
	c.write32(c.EDI, c.EAX)
	c.EDI += step
}

func (c *CPU_X86) opLODSB() {
	c.SetAL(c.read8(c.ESI))
	c.ESI += c.stringStep(1)
}

func (c *CPU_X86) opLODSD() {
	if c.prefixOpSize {
		c.SetAX(c.read16(c.ESI))
		c.ESI += c.stringStep(2)
		return
	}
	c.EAX = c.read32(c.ESI)
	c.ESI += c.stringStep(4)
}

func (c *CPU_X86) opSCASB() {
	step := c.stringStep(1)
	if c.prefixRep != 0 {
		for c.ECX != 0 && c.fault == nil {
			aluSub(c, c.AL(), c.read8(c.EDI))
			c.EDI += step
			c.ECX--
			if c.prefixRep == 1 && !c.ZF() {
				break
			}
			if c.prefixRep == 2 && c.ZF() {
				break
			}
		}
		return
	}
	aluSub(c, c.AL(), c.read8(c.EDI))
	c.EDI += step
}

func (c *CPU_X86) opSCASD() {
	step := c.stringStep(4)
	if c.prefixRep != 0 {
		for c.ECX != 0 && c.fault == nil {
			aluSub(c, c.EAX, c.read32(c.EDI))
			c.EDI += step
			c.ECX--
			if c.prefixRep == 1 && !c.ZF() {
				break
			}
			if c.prefixRep == 2 && c.ZF() {
				break
			}
		}
		return
	}
	aluSub(c, c.EAX, c.read32(c.EDI))
	c.EDI += step
}

func (c *CPU_X86) opCMPSB() {
	step := c.stringStep(1)
	if c.prefixRep != 0 {
		for c.ECX != 0 && c.fault == nil {
			aluSub(c, c.read8(c.ESI), c.read8(c.EDI))
			c.ESI += step
			c.EDI += step
			c.ECX--
			if c.prefixRep == 1 && !c.ZF() {
				break
			}
			if c.prefixRep == 2 && c.ZF() {
				break
			}
		}
		return
	}
	aluSub(c, c.read8(c.ESI), c.read8(c.EDI))
	c.ESI += step
	c.EDI += step
}

// =============================================================================
// IMUL (two- and three-operand forms)
// =============================================================================

func (c *CPU_X86) opIMUL_Gv_Ev() {
	c.fetchModRM()
	x := c.getReg32(c.getModRMReg())
	y := c.readRM32()
	c.setReg32(c.getModRMReg(), c.imulTrunc32(x, y))
}

func (c *CPU_X86) opIMUL_Gv_Ev_Iv() {
	c.fetchModRM()
	x := c.readRM32()
	y := c.fetch32()
	c.setReg32(c.getModRMReg(), c.imulTrunc32(x, y))
}

func (c *CPU_X86) opIMUL_Gv_Ev_Ib() {
	c.fetchModRM()
	x := c.readRM32()
	y := uint32(int32(int8(c.fetch8())))
	c.setReg32(c.getModRMReg(), c.imulTrunc32(x, y))
}

// =============================================================================
// MOVZX / MOVSX / BSWAP / bit scan
// =============================================================================

func (c *CPU_X86) opMOVZX_Gv_Eb() {
	c.fetchModRM()
	c.setReg32(c.getModRMReg(), uint32(c.readRM8()))
}

func (c *CPU_X86) opMOVZX_Gv_Ew() {
	c.fetchModRM()
	c.setReg32(c.getModRMReg(), uint32(c.readRM16()))
}

func (c *CPU_X86) opMOVSX_Gv_Eb() {
	c.fetchModRM()
	c.setReg32(c.getModRMReg(), uint32(int32(int8(c.readRM8()))))
}

func (c *CPU_X86) opMOVSX_Gv_Ew() {
	c.fetchModRM()
	c.setReg32(c.getModRMReg(), uint32(int32(int16(c.readRM16()))))
}

func (c *CPU_X86) opBSWAP_reg(idx byte) {
	v := c.getReg32(idx)
	c.setReg32(idx, v<<24|(v&0xFF00)<<8|(v>>8)&0xFF00|v>>24)
}

func (c *CPU_X86) opBSF_Gv_Ev() {
	c.fetchModRM()
	v := c.readRM32()
	c.setFlag(x86FlagZF, v == 0)
	if v != 0 {
		n := uint32(0)
		for v&1 == 0 {
			v >>= 1
			n++
		}
		c.setReg32(c.getModRMReg(), n)
	}
}

func (c *CPU_X86) opBSR_Gv_Ev() {
	c.fetchModRM()
	v := c.readRM32()
	c.setFlag(x86FlagZF, v == 0)
	if v != 0 {
		n := uint32(31)
		for v&0x80000000 == 0 {
			v <<= 1
			n--
		}
		c.setReg32(c.getModRMReg(), n)
	}
}
