// heap_test.go - Guest heap allocator tests
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"errors"
	"testing"
)

func TestHeap_AllocAligned(t *testing.T) {
	h := NewHeap("test", 0x1000, 0x100)

	a, err := h.Alloc(3)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if a != 0x1000 {
		t.Errorf("first alloc: got 0x%X, want 0x1000", a)
	}

	b, err := h.Alloc(8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if b != 0x1008 {
		t.Errorf("second alloc: got 0x%X, want 0x1008 (8-byte aligned)", b)
	}
	if b%heapAlign != 0 {
		t.Errorf("alloc not aligned: 0x%X", b)
	}
}

func TestHeap_Exhausted(t *testing.T) {
	h := NewHeap("small", 0x1000, 0x10)
	if _, err := h.Alloc(8); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	_, err := h.Alloc(16)
	var ex *HeapExhausted
	if !errors.As(err, &ex) {
		t.Fatalf("got %v, want HeapExhausted", err)
	}
	if ex.Heap != "small" {
		t.Errorf("exhausted heap name: got %q", ex.Heap)
	}
}

func TestMachine_NewHeap(t *testing.T) {
	m := newTestMachine(t)

	h1, err := m.NewHeap("a", 0x2000)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	h2, err := m.NewHeap("b", 0x2000)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	if h2.Base < h1.Base+0x2000 {
		t.Errorf("heaps overlap: 0x%X and 0x%X", h1.Base, h2.Base)
	}
	if m.HeapByHandle(h1.Base) != h1 {
		t.Error("HeapByHandle does not resolve")
	}

	// Allocations are valid guest addresses.
	addr, err := h1.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := m.Mem.Put32(addr, 1); err != nil {
		t.Errorf("heap address not writable: %v", err)
	}
}
