// heap.go - Guest-visible heap allocator
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import "fmt"

// HeapExhausted reports an allocation that does not fit in its heap's
// reservation.
type HeapExhausted struct {
	Heap string
	Size uint32
}

func (e *HeapExhausted) Error() string {
	return fmt.Sprintf("heap %q exhausted allocating %d bytes", e.Heap, e.Size)
}

// Heap is a linear bump allocator carved out of guest memory. Addresses it
// returns are ordinary guest addresses, so allocations are visible to both
// shims and interpreted code. Free is a no-op: guest programs of this era
// leak freely and the emulator tolerates it.
type Heap struct {
	Name string
	Base uint32
	Size uint32
	next uint32
}

const heapAlign = 8

func NewHeap(name string, base, size uint32) *Heap {
	return &Heap{Name: name, Base: base, Size: size, next: base}
}

// Alloc reserves size bytes and returns their guest address.
func (h *Heap) Alloc(size uint32) (uint32, error) {
	addr := (h.next + heapAlign - 1) &^ uint32(heapAlign-1)
	if uint64(addr)+uint64(size) > uint64(h.Base)+uint64(h.Size) {
		return 0, &HeapExhausted{Heap: h.Name, Size: size}
	}
	h.next = addr + size
	return addr, nil
}

// Free releases nothing; kept for the HeapFree contract.
func (h *Heap) Free(addr uint32) {}

// Used reports how many bytes have been handed out.
func (h *Heap) Used() uint32 {
	return h.next - h.Base
}
