// mem.go - Flat guest memory for the emulated process
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"encoding/binary"
	"fmt"
)

// MemoryFault reports a guest access that runs past the end of memory.
type MemoryFault struct {
	Addr uint32
	Len  uint32
}

func (e *MemoryFault) Error() string {
	return fmt.Sprintf("memory fault: %d-byte access at 0x%08X", e.Len, e.Addr)
}

// Mem is the guest address space: one contiguous little-endian byte buffer.
// Multi-byte accesses need no alignment, matching real x86. Views returned
// by View/SliceZ alias the backing buffer, so a write through one view is
// immediately visible through any other view of the same bytes; the
// emulator is single-threaded so this aliasing is safe.
type Mem struct {
	buf []byte
}

func NewMem(size uint32) *Mem {
	return &Mem{buf: make([]byte, size)}
}

func (m *Mem) Len() uint32 {
	return uint32(len(m.buf))
}

// Bytes exposes the whole backing buffer (loader and tests only).
func (m *Mem) Bytes() []byte {
	return m.buf
}

func (m *Mem) check(addr, n uint32) error {
	if uint64(addr)+uint64(n) > uint64(len(m.buf)) {
		return &MemoryFault{Addr: addr, Len: n}
	}
	return nil
}

func (m *Mem) Get8(addr uint32) (byte, error) {
	if err := m.check(addr, 1); err != nil {
		return 0, err
	}
	return m.buf[addr], nil
}

func (m *Mem) Get16(addr uint32) (uint16, error) {
	if err := m.check(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.buf[addr:]), nil
}

func (m *Mem) Get32(addr uint32) (uint32, error) {
	if err := m.check(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.buf[addr:]), nil
}

func (m *Mem) Get64(addr uint32) (uint64, error) {
	if err := m.check(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.buf[addr:]), nil
}

func (m *Mem) Put8(addr uint32, v byte) error {
	if err := m.check(addr, 1); err != nil {
		return err
	}
	m.buf[addr] = v
	return nil
}

func (m *Mem) Put16(addr uint32, v uint16) error {
	if err := m.check(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.buf[addr:], v)
	return nil
}

func (m *Mem) Put32(addr uint32, v uint32) error {
	if err := m.check(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.buf[addr:], v)
	return nil
}

func (m *Mem) Put64(addr uint32, v uint64) error {
	if err := m.check(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.buf[addr:], v)
	return nil
}

// View returns a live n-byte window into guest memory.
func (m *Mem) View(addr, n uint32) ([]byte, error) {
	if err := m.check(addr, n); err != nil {
		return nil, err
	}
	return m.buf[addr : addr+n : addr+n], nil
}

// ViewN returns a live window of count records of size bytes each.
func (m *Mem) ViewN(addr, size, count uint32) ([]byte, error) {
	n := uint64(size) * uint64(count)
	if n > uint64(^uint32(0)) {
		return nil, &MemoryFault{Addr: addr, Len: ^uint32(0)}
	}
	return m.View(addr, uint32(n))
}

// SliceZ returns the bytes at addr up to (not including) the first NUL.
// It fails with a MemoryFault covering the scanned range if no NUL occurs
// before the end of memory.
func (m *Mem) SliceZ(addr uint32) ([]byte, error) {
	if err := m.check(addr, 1); err != nil {
		return nil, err
	}
	for i := addr; i < uint32(len(m.buf)); i++ {
		if m.buf[i] == 0 {
			return m.buf[addr:i:i], nil
		}
	}
	return nil, &MemoryFault{Addr: addr, Len: uint32(len(m.buf)) - addr}
}

// CString reads the NUL-terminated string at addr.
func (m *Mem) CString(addr uint32) (string, error) {
	b, err := m.SliceZ(addr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PutString writes s plus a terminating NUL at addr.
func (m *Mem) PutString(addr uint32, s string) error {
	if err := m.check(addr, uint32(len(s))+1); err != nil {
		return err
	}
	copy(m.buf[addr:], s)
	m.buf[addr+uint32(len(s))] = 0
	return nil
}
