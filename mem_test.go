// mem_test.go - Guest memory unit tests
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"errors"
	"testing"
)

func TestMem_RoundTrip(t *testing.T) {
	m := NewMem(0x1000)

	if err := m.Put32(0x100, 0xDEADBEEF); err != nil {
		t.Fatalf("Put32: %v", err)
	}
	v, err := m.Get32(0x100)
	if err != nil {
		t.Fatalf("Get32: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Errorf("Get32: got 0x%08X, want 0xDEADBEEF", v)
	}

	// Little-endian byte order.
	b, _ := m.Get8(0x100)
	if b != 0xEF {
		t.Errorf("low byte: got 0x%02X, want 0xEF", b)
	}

	// Unaligned access.
	if err := m.Put32(0x101, 0x11223344); err != nil {
		t.Fatalf("unaligned Put32: %v", err)
	}
	v, _ = m.Get32(0x101)
	if v != 0x11223344 {
		t.Errorf("unaligned Get32: got 0x%08X, want 0x11223344", v)
	}

	if err := m.Put16(0x200, 0xBEEF); err != nil {
		t.Fatalf("Put16: %v", err)
	}
	w, _ := m.Get16(0x200)
	if w != 0xBEEF {
		t.Errorf("Get16: got 0x%04X, want 0xBEEF", w)
	}

	if err := m.Put64(0x300, 0x1122334455667788); err != nil {
		t.Fatalf("Put64: %v", err)
	}
	q, _ := m.Get64(0x300)
	if q != 0x1122334455667788 {
		t.Errorf("Get64: got 0x%016X", q)
	}
}

func TestMem_Faults(t *testing.T) {
	m := NewMem(0x100)

	_, err := m.Get32(0xFE)
	var fault *MemoryFault
	if !errors.As(err, &fault) {
		t.Fatalf("Get32 past end: got %v, want MemoryFault", err)
	}
	if fault.Addr != 0xFE || fault.Len != 4 {
		t.Errorf("fault fields: got {0x%X, %d}", fault.Addr, fault.Len)
	}

	// Address arithmetic must not wrap around.
	if _, err := m.Get32(0xFFFFFFFE); err == nil {
		t.Error("Get32 near 2^32 should fault, not wrap")
	}
	if _, err := m.View(0xFFFFFFFF, 2); err == nil {
		t.Error("View near 2^32 should fault")
	}

	// Last valid byte is fine.
	if _, err := m.Get8(0xFF); err != nil {
		t.Errorf("Get8 at last byte: %v", err)
	}
}

func TestMem_ViewsAlias(t *testing.T) {
	m := NewMem(0x1000)

	a, err := m.View(0x10, 8)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	b, err := m.View(0x10, 8)
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	a[0] = 0x42
	if b[0] != 0x42 {
		t.Error("write through one view not visible through the other")
	}

	// Typed writes are visible through views and vice versa.
	m.Put32(0x10, 0xCAFEBABE)
	if b[3] != 0xCA {
		t.Errorf("typed write not visible through view: got 0x%02X", b[3])
	}
	b[0] = 0x00
	v, _ := m.Get32(0x10)
	if v != 0xCAFEBA00 {
		t.Errorf("view write not visible to typed read: got 0x%08X", v)
	}
}

func TestMem_CString(t *testing.T) {
	m := NewMem(0x100)
	copy(m.Bytes()[0x10:], "hello\x00world")

	s, err := m.CString(0x10)
	if err != nil {
		t.Fatalf("CString: %v", err)
	}
	if s != "hello" {
		t.Errorf("CString: got %q", s)
	}

	// SliceZ aliases the buffer.
	z, err := m.SliceZ(0x10)
	if err != nil {
		t.Fatalf("SliceZ: %v", err)
	}
	z[0] = 'H'
	if s, _ := m.CString(0x10); s != "Hello" {
		t.Errorf("SliceZ does not alias: got %q", s)
	}

	// No NUL before the end of memory.
	for i := range m.Bytes() {
		m.Bytes()[i] = 'x'
	}
	if _, err := m.CString(0x10); err == nil {
		t.Error("CString with no terminator should fault")
	}
}

func TestMem_PutString(t *testing.T) {
	m := NewMem(0x20)
	if err := m.PutString(0x10, "hi"); err != nil {
		t.Fatalf("PutString: %v", err)
	}
	if s, _ := m.CString(0x10); s != "hi" {
		t.Errorf("round trip: got %q", s)
	}
	if err := m.PutString(0x1E, "xyz"); err == nil {
		t.Error("PutString past end should fault")
	}
}
