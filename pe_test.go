// pe_test.go - PE loader tests over a synthetic image
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"encoding/binary"
	"testing"
)

// buildTestPE assembles a minimal valid PE32: one section at RVA 0x1000
// holding code at its start and an import table for kernel32!ExitProcess.
//
// Layout inside the section (RVAs):
//
//	0x1000  code
//	0x1100  import descriptor + terminator
//	0x1128  import lookup table
//	0x1130  import address table
//	0x1140  "kernel32.dll"
//	0x1150  hint + "ExitProcess"
func buildTestPE(code []byte) []byte {
	const (
		imageBase = 0x00400000
		secRVA    = 0x1000
		secRaw    = 0x200
		secSize   = 0x200
	)
	file := make([]byte, secRaw+secSize)
	put16 := func(off int, v uint16) { binary.LittleEndian.PutUint16(file[off:], v) }
	put32 := func(off int, v uint32) { binary.LittleEndian.PutUint32(file[off:], v) }

	// DOS header
	put16(0, peDOSMagic)
	put32(0x3C, 0x40) // e_lfanew

	// PE signature + COFF header
	put32(0x40, peSignature)
	coff := 0x44
	put16(coff, peMachineI386)
	put16(coff+2, 1)     // sections
	put16(coff+16, 0xE0) // optional header size
	put16(coff+18, 0x0102)

	// Optional header
	opt := coff + 20
	put16(opt, peMagicPE32)
	put32(opt+16, secRVA)    // entry point
	put32(opt+28, imageBase) // image base
	put32(opt+32, 0x1000)    // section alignment
	put32(opt+36, 0x200)     // file alignment
	put32(opt+56, 0x2000)    // size of image
	put32(opt+60, 0x200)     // size of headers
	put32(opt+92, 16)        // rva/size count
	// DataDirectory[1]: imports
	put32(opt+peImportDirOffset, 0x1100)
	put32(opt+peImportDirOffset+4, 40)

	// Section header
	sect := opt + 0xE0
	copy(file[sect:], ".text")
	put32(sect+8, secSize)  // virtual size
	put32(sect+12, secRVA)  // virtual address
	put32(sect+16, secSize) // raw size
	put32(sect+20, secRaw)  // raw offset

	// Section contents
	copy(file[secRaw:], code)
	imp := secRaw + 0x100 // == RVA 0x1100
	put32(imp, 0x1128)    // OriginalFirstThunk
	put32(imp+12, 0x1140) // Name
	put32(imp+16, 0x1130) // FirstThunk
	// terminator descriptor: already zero

	put32(secRaw+0x128, 0x1150) // ILT entry
	put32(secRaw+0x130, 0x1150) // IAT entry (overwritten by loader)
	copy(file[secRaw+0x140:], "kernel32.dll\x00")
	copy(file[secRaw+0x152:], "ExitProcess\x00") // 2-byte hint before name

	return file
}

func TestPE_LoadAndPatch(t *testing.T) {
	m := newTestMachine(t)
	img, err := LoadPE(m, buildTestPE([]byte{0x90}))
	if err != nil {
		t.Fatalf("LoadPE: %v", err)
	}
	if img.Base != 0x00400000 {
		t.Errorf("base: 0x%X", img.Base)
	}
	if img.EntryPoint != 0x00401000 {
		t.Errorf("entry: 0x%X", img.EntryPoint)
	}
	if m.CPU.EIP != img.EntryPoint {
		t.Errorf("EIP: 0x%X", m.CPU.EIP)
	}
	if img.Imports != 1 {
		t.Errorf("imports patched: %d", img.Imports)
	}

	// The IAT slot now holds the ExitProcess trampoline.
	iat, _ := m.Mem.Get32(0x00401130)
	if iat != m.exports["kernel32.dll"]["ExitProcess"] {
		t.Errorf("IAT: 0x%08X, want the ExitProcess trampoline", iat)
	}

	// Code mapped at its virtual address.
	b, _ := m.Mem.Get8(0x00401000)
	if b != 0x90 {
		t.Errorf("code byte: 0x%X", b)
	}
}

// End to end: the guest pushes an exit code and calls ExitProcess through
// its import address table.
func TestPE_RunToExit(t *testing.T) {
	m := newTestMachine(t)
	code := []byte{
		0x6A, 0x2A, // push 42
		0xFF, 0x15, 0x30, 0x11, 0x40, 0x00, // call [0x00401130]
	}
	if _, err := LoadPE(m, buildTestPE(code)); err != nil {
		t.Fatalf("LoadPE: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.ExitCode != 42 {
		t.Errorf("exit code: %d, want 42", m.ExitCode)
	}
}

func TestPE_Rejections(t *testing.T) {
	m := newTestMachine(t)

	if _, err := LoadPE(m, []byte("not a pe")); err == nil {
		t.Error("garbage should be rejected")
	}

	// Wrong machine type.
	img := buildTestPE([]byte{0x90})
	binary.LittleEndian.PutUint16(img[0x44:], 0x8664) // x86-64
	if _, err := LoadPE(m, img); err == nil {
		t.Error("a 64-bit image should be rejected")
	}

	// PE32+ magic.
	img = buildTestPE([]byte{0x90})
	binary.LittleEndian.PutUint16(img[0x58:], 0x20B)
	if _, err := LoadPE(m, img); err == nil {
		t.Error("a PE32+ optional header should be rejected")
	}

	// Image too large for guest memory.
	img = buildTestPE([]byte{0x90})
	binary.LittleEndian.PutUint32(img[0x58+56:], 0xFF000000)
	if _, err := LoadPE(m, img); err == nil {
		t.Error("an oversized image should be rejected")
	}
}

// A guest store into the mapped image is visible to the host through Mem:
// the byte the guest writes over the import descriptor reads back after
// the run.
func TestPE_GuestWritesVisible(t *testing.T) {
	m := newTestMachine(t)
	code := []byte{
		// mov byte [0x00401100], 0x41; push 0; call [0x00401130]
		0xC6, 0x05, 0x00, 0x11, 0x40, 0x00, 0x41,
		0x6A, 0x00,
		0xFF, 0x15, 0x30, 0x11, 0x40, 0x00,
	}
	if _, err := LoadPE(m, buildTestPE(code)); err != nil {
		t.Fatalf("LoadPE: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, _ := m.Mem.Get8(0x00401100)
	if b != 0x41 {
		t.Errorf("guest write not visible: 0x%X", b)
	}
}
