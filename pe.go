// pe.go - PE32 image loader
//
// Maps a 32-bit PE/COFF executable into guest memory at its ImageBase,
// then walks the import directory and patches every import-address-table
// slot with the trampoline address of the matching shim. Unknown imports
// get a synthetic always-faulting trampoline so loading succeeds and the
// fault fires only on an actual call.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// PEError reports a malformed or unsupported image.
type PEError struct {
	Reason string
}

func (e *PEError) Error() string {
	return "bad PE image: " + e.Reason
}

// PE32 constants, per the COFF spec.
const (
	peDOSMagic         = 0x5A4D     // "MZ"
	peSignature        = 0x00004550 // "PE\0\0"
	peMachineI386      = 0x014C
	peMagicPE32        = 0x010B
	peImportDirOffset  = 96 + 8 // second data directory entry
	peSectionHeaderLen = 40
	peImportDescLen    = 20
	peOrdinalFlag      = 0x80000000
)

// LoadedImage describes what LoadPE mapped.
type LoadedImage struct {
	Base       uint32
	Size       uint32
	EntryPoint uint32
	Imports    int
}

// LoadPE maps the image and prepares the machine to run it: sections
// copied to their virtual addresses, IAT patched, EIP at the entry point.
func LoadPE(m *Machine, data []byte) (*LoadedImage, error) {
	if len(data) < 0x40 || binary.LittleEndian.Uint16(data) != peDOSMagic {
		return nil, &PEError{Reason: "missing MZ header"}
	}
	peOfs := binary.LittleEndian.Uint32(data[0x3C:])
	if int(peOfs)+24 > len(data) || binary.LittleEndian.Uint32(data[peOfs:]) != peSignature {
		return nil, &PEError{Reason: "missing PE signature"}
	}

	coff := peOfs + 4
	machine := binary.LittleEndian.Uint16(data[coff:])
	if machine != peMachineI386 {
		return nil, &PEError{Reason: fmt.Sprintf("machine 0x%04X is not i386", machine)}
	}
	numSections := binary.LittleEndian.Uint16(data[coff+2:])
	optSize := binary.LittleEndian.Uint16(data[coff+16:])

	opt := coff + 20
	if int(opt)+int(optSize) > len(data) {
		return nil, &PEError{Reason: "truncated optional header"}
	}
	if binary.LittleEndian.Uint16(data[opt:]) != peMagicPE32 {
		return nil, &PEError{Reason: "not a PE32 (32-bit) image"}
	}
	entryRVA := binary.LittleEndian.Uint32(data[opt+16:])
	imageBase := binary.LittleEndian.Uint32(data[opt+28:])
	sizeOfImage := binary.LittleEndian.Uint32(data[opt+56:])
	sizeOfHeaders := binary.LittleEndian.Uint32(data[opt+60:])
	importRVA := uint32(0)
	importSize := uint32(0)
	if optSize >= peImportDirOffset+8 {
		importRVA = binary.LittleEndian.Uint32(data[opt+peImportDirOffset:])
		importSize = binary.LittleEndian.Uint32(data[opt+peImportDirOffset+4:])
	}

	end := uint64(imageBase) + uint64(sizeOfImage)
	if end > uint64(m.Mem.Len()) {
		return nil, &PEError{Reason: fmt.Sprintf("image 0x%08X+0x%X exceeds guest memory", imageBase, sizeOfImage)}
	}
	if end > trampolineBase {
		return nil, &PEError{Reason: "image overlaps the trampoline range"}
	}

	// Headers land at the image base, then each section at its RVA.
	if int(sizeOfHeaders) > len(data) {
		sizeOfHeaders = uint32(len(data))
	}
	hdrDst, err := m.Mem.View(imageBase, sizeOfHeaders)
	if err != nil {
		return nil, err
	}
	copy(hdrDst, data[:sizeOfHeaders])

	sect := opt + uint32(optSize)
	for i := 0; i < int(numSections); i++ {
		sh := sect + uint32(i)*peSectionHeaderLen
		if int(sh)+peSectionHeaderLen > len(data) {
			return nil, &PEError{Reason: "truncated section table"}
		}
		va := binary.LittleEndian.Uint32(data[sh+12:])
		rawSize := binary.LittleEndian.Uint32(data[sh+16:])
		rawOfs := binary.LittleEndian.Uint32(data[sh+20:])
		if rawSize == 0 {
			continue
		}
		if uint64(rawOfs)+uint64(rawSize) > uint64(len(data)) {
			return nil, &PEError{Reason: "section raw data outside file"}
		}
		dst, err := m.Mem.View(imageBase+va, rawSize)
		if err != nil {
			return nil, err
		}
		copy(dst, data[rawOfs:rawOfs+rawSize])
	}

	img := &LoadedImage{
		Base:       imageBase,
		Size:       sizeOfImage,
		EntryPoint: imageBase + entryRVA,
	}
	if importRVA != 0 && importSize != 0 {
		n, err := patchImports(m, imageBase, importRVA)
		if err != nil {
			return nil, err
		}
		img.Imports = n
	}

	m.kernel32.imageBase = imageBase
	m.CPU.EIP = img.EntryPoint
	return img, nil
}

// patchImports walks the import descriptors and rewrites each IAT slot
// with the resolved trampoline address.
func patchImports(m *Machine, base, importRVA uint32) (int, error) {
	patched := 0
	for desc := base + importRVA; ; desc += peImportDescLen {
		origFirstThunk, err := m.Mem.Get32(desc)
		if err != nil {
			return patched, err
		}
		nameRVA, _ := m.Mem.Get32(desc + 12)
		firstThunk, _ := m.Mem.Get32(desc + 16)
		if origFirstThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			break
		}

		dllName, err := m.Mem.CString(base + nameRVA)
		if err != nil {
			return patched, err
		}
		dllName = strings.ToLower(dllName)

		// The lookup table names the imports; the address table is what
		// the guest calls through. Some linkers omit the lookup table,
		// in which case the address table starts out as a copy of it.
		lookup := origFirstThunk
		if lookup == 0 {
			lookup = firstThunk
		}

		for i := uint32(0); ; i++ {
			entry, err := m.Mem.Get32(base + lookup + 4*i)
			if err != nil {
				return patched, err
			}
			if entry == 0 {
				break
			}
			var name string
			if entry&peOrdinalFlag != 0 {
				name = fmt.Sprintf("#%d", entry&0xFFFF)
			} else {
				// Skip the 2-byte hint before the name.
				name, err = m.Mem.CString(base + entry + 2)
				if err != nil {
					return patched, err
				}
			}
			addr := m.resolveImport(dllName, name)
			if err := m.Mem.Put32(base+firstThunk+4*i, addr); err != nil {
				return patched, err
			}
			tracef("pe", "import %s!%s -> 0x%08X", dllName, name, addr)
			patched++
		}
	}
	return patched, nil
}
