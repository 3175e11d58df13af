// machine.go - The emulated Windows process: memory, CPU, shims, host
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrCancelled reports that the external cancel flag was observed between
// instructions.
var ErrCancelled = errors.New("cancelled")

// Guest address-space layout. The PE image maps at its own ImageBase
// (conventionally 0x00400000); everything else is carved from these
// regions. The trampoline range sits at the top of the 32-bit address
// space, far above the end of guest memory (see win32_shims.go).
const (
	guestMemorySize = 32 * 1024 * 1024

	stackBase = 0x00200000 // grows down from stackTop
	stackSize = 0x00100000
	stackTop  = stackBase + stackSize - 16

	heapRegionBase = 0x01000000 // heap reservations bump upward from here
)

// Machine owns all state of one emulated process.
type Machine struct {
	Mem *Mem
	CPU *CPU_X86

	// Host capabilities (see host.go).
	Surfaces HostSurfaceFactory
	Stdout   HostStdout
	Clock    HostClock
	Audio    HostAudio
	// Input is optional; the message-queue shims drain it when present.
	Input HostInput

	// Shim dispatch state.
	shims   []*Shim
	dlls    map[string]*BuiltinDLL
	exports map[string]map[string]uint32
	pending *pendingShim

	// Heap reservations inside guest memory.
	heaps   map[uint32]*Heap
	heapBrk uint32

	// Per-DLL subsystem state, owned here and touched only from shim
	// handlers.
	kernel32 *kernel32State
	user32   *user32State
	gdi32    *gdi32State
	ddraw    *ddrawState
	winmm    *winmmState

	cancel   atomic.Bool
	exited   bool
	ExitCode uint32
}

// NewMachine builds a machine wired to the given host backends and
// registers the builtin DLLs.
func NewMachine(surfaces HostSurfaceFactory, stdout HostStdout, clock HostClock, audio HostAudio) *Machine {
	m := &Machine{
		Mem:      NewMem(guestMemorySize),
		Surfaces: surfaces,
		Stdout:   stdout,
		Clock:    clock,
		Audio:    audio,
		dlls:     make(map[string]*BuiltinDLL),
		exports:  make(map[string]map[string]uint32),
		heaps:    make(map[uint32]*Heap),
		heapBrk:  heapRegionBase,
	}
	m.CPU = NewCPU_X86(m.Mem)
	m.CPU.ESP = stackTop

	m.kernel32 = newKernel32State()
	m.user32 = newUser32State()
	m.gdi32 = newGdi32State()
	m.ddraw = newDdrawState()
	m.winmm = newWinmmState()

	m.RegisterDLL(kernel32DLL())
	m.RegisterDLL(user32DLL())
	m.RegisterDLL(gdi32DLL())
	m.RegisterDLL(ddrawDLL())
	m.RegisterDLL(shlwapiDLL())
	m.RegisterDLL(winmmDLL())

	m.kernel32.setup(m)
	return m
}

// NewHeap carves a named heap out of the heap region and registers it
// under its base address, which doubles as the guest-visible handle.
func (m *Machine) NewHeap(name string, size uint32) (*Heap, error) {
	base := (m.heapBrk + 0xFFF) &^ uint32(0xFFF)
	if uint64(base)+uint64(size) > uint64(m.Mem.Len()) {
		return nil, &HeapExhausted{Heap: name, Size: size}
	}
	m.heapBrk = base + size
	h := NewHeap(name, base, size)
	m.heaps[base] = h
	return h, nil
}

// HeapByHandle resolves a guest heap handle.
func (m *Machine) HeapByHandle(handle uint32) *Heap {
	return m.heaps[handle]
}

// Cancel requests that the run loop stop before the next instruction.
func (m *Machine) Cancel() {
	m.cancel.Store(true)
}

// Exit marks the process as exited; the run loop returns after the
// current dispatch.
func (m *Machine) Exit(code uint32) {
	m.exited = true
	m.ExitCode = code
}

// Step advances the machine by one unit: resolving a pending async shim,
// dispatching a trampoline, or interpreting one instruction.
func (m *Machine) Step() error {
	if m.pending != nil {
		ret, done := m.pending.poll()
		if !done {
			// Parked on an async shim; don't burn the host CPU.
			time.Sleep(time.Millisecond)
			return nil
		}
		p := m.pending
		m.pending = nil
		m.finishShim(p.shim, p.retAddr, ret)
		tracef("shim", "%s -> 0x%X (async)", p.shim.Name, ret)
		return nil
	}
	if m.CPU.EIP >= trampolineBase {
		return m.callShim(m.CPU.EIP)
	}
	return m.CPU.Step()
}

// Run interprets until the guest exits, a fault surfaces, or the cancel
// flag is observed.
func (m *Machine) Run() error {
	for !m.exited {
		if m.cancel.Load() {
			return ErrCancelled
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}
