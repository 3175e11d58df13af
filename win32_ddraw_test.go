// win32_ddraw_test.go - DirectDraw COM dispatch end-to-end tests
//
// These drive the synthetic vtables the way the guest would: read the
// vtable pointer out of the object, read the method slot, "call" it by
// pointing EIP at the trampoline with a crafted stack.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import "testing"

// Vtable slot indices compiled into guest code (ABI).
const (
	vtDD7SetCooperativeLevel = 20
	vtDD7SetDisplayMode      = 21
	vtDD7CreateSurface       = 6
	vtSurfBltFast            = 7
	vtSurfFlip               = 11
	vtSurfGetAttachedSurface = 12
	vtSurfGetSurfaceDesc     = 22
	vtSurfRelease            = 2
)

// createDirectDraw7 runs DirectDrawCreateEx the way the guest does and
// returns the object pointer.
func createDirectDraw7(t *testing.T, m *Machine) uint32 {
	t.Helper()
	iidAddr := uint32(0x5800)
	copy(m.Mem.Bytes()[iidAddr:], iidIDirectDraw7[:])
	outAddr := uint32(0x5900)

	pushCall(t, m, 0x00401000, 0, outAddr, iidAddr, 0)
	m.CPU.EIP = m.exports["ddraw.dll"]["DirectDrawCreateEx"]
	if err := m.Step(); err != nil {
		t.Fatalf("DirectDrawCreateEx: %v", err)
	}
	if m.CPU.EAX != ddOK {
		t.Fatalf("DirectDrawCreateEx: HRESULT 0x%X", m.CPU.EAX)
	}
	obj, _ := m.Mem.Get32(outAddr)
	if obj == 0 {
		t.Fatal("DirectDrawCreateEx produced a null object")
	}
	return obj
}

// callMethod performs obj->vtable[slot](args...) through the dispatcher.
func callMethod(t *testing.T, m *Machine, obj uint32, slot int, args ...uint32) uint32 {
	t.Helper()
	vtbl, err := m.Mem.Get32(obj)
	if err != nil {
		t.Fatalf("object vtable pointer: %v", err)
	}
	fn, err := m.Mem.Get32(vtbl + 4*uint32(slot))
	if err != nil {
		t.Fatalf("vtable slot %d: %v", slot, err)
	}
	all := append([]uint32{obj}, args...)
	pushCall(t, m, 0x00401000, all...)
	m.CPU.EIP = fn
	if err := m.Step(); err != nil {
		t.Fatalf("method slot %d: %v", slot, err)
	}
	return m.CPU.EAX
}

// Property: method m_i lives at offset 4*i from *object, and every slot
// holds a distinct trampoline.
func TestDDraw_VtableShape(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)

	vtbl, _ := m.Mem.Get32(obj)
	seen := make(map[uint32]bool)
	methods := iDirectDraw7Methods()
	for i := range methods {
		fn, err := m.Mem.Get32(vtbl + 4*uint32(i))
		if err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
		if fn < trampolineBase {
			t.Errorf("slot %d: 0x%08X is not a trampoline", i, fn)
		}
		if seen[fn] {
			t.Errorf("slot %d: trampoline reused", i)
		}
		seen[fn] = true
		shim := m.shimForAddr(fn)
		if shim == nil {
			t.Fatalf("slot %d: no shim", i)
		}
	}
}

// Scenario S7: SetDisplayMode through the vtable.
func TestDDraw_SetDisplayMode(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)

	espBefore := m.CPU.ESP - 4*7 // return address + 6 args
	ret := callMethod(t, m, obj, vtDD7SetDisplayMode, 640, 480, 32, 60, 0)
	if ret != ddOK {
		t.Errorf("SetDisplayMode: HRESULT 0x%X", ret)
	}
	// Callee popped all 6 argument words plus the return address.
	if m.CPU.ESP != espBefore+4+4*6 {
		t.Errorf("ESP: 0x%X, want 0x%X (24 bytes of args cleaned)", m.CPU.ESP, espBefore+4+4*6)
	}
	if m.ddraw.width != 640 || m.ddraw.height != 480 {
		t.Errorf("display mode: %dx%d", m.ddraw.width, m.ddraw.height)
	}
}

// Scenario S8: CreateSurface with explicit WIDTH|HEIGHT.
func TestDDraw_CreateSurface(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)

	descAddr := uint32(0x6000)
	m.Mem.Put32(descAddr+ddsdSize, ddsdStructSize)
	m.Mem.Put32(descAddr+ddsdFlags, ddsdFlagWidth|ddsdFlagHeight)
	m.Mem.Put32(descAddr+ddsdWidth, 100)
	m.Mem.Put32(descAddr+ddsdHeight, 80)
	outAddr := uint32(0x6100)

	ret := callMethod(t, m, obj, vtDD7CreateSurface, descAddr, outAddr, 0)
	if ret != ddOK {
		t.Fatalf("CreateSurface: HRESULT 0x%X", ret)
	}
	surfObj, _ := m.Mem.Get32(outAddr)
	if surfObj == 0 {
		t.Fatal("no surface pointer written")
	}
	s := m.ddraw.surfaces[surfObj]
	if s == nil {
		t.Fatal("surface not registered")
	}
	if s.width != 100 || s.height != 80 {
		t.Errorf("surface: %dx%d, want 100x80", s.width, s.height)
	}
	if s.host.Width() != 100 || s.host.Height() != 80 {
		t.Errorf("host surface: %dx%d", s.host.Width(), s.host.Height())
	}
}

func TestDDraw_PrimarySurfaceUsesDisplayMode(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)
	callMethod(t, m, obj, vtDD7SetDisplayMode, 320, 200, 8, 0, 0)

	descAddr := uint32(0x6000)
	m.Mem.Put32(descAddr+ddsdSize, ddsdStructSize)
	m.Mem.Put32(descAddr+ddsdFlags, ddsdFlagCaps)
	m.Mem.Put32(descAddr+ddsdCaps, ddscapsPrimarySurface)
	outAddr := uint32(0x6100)

	if ret := callMethod(t, m, obj, vtDD7CreateSurface, descAddr, outAddr, 0); ret != ddOK {
		t.Fatalf("CreateSurface: 0x%X", ret)
	}
	surfObj, _ := m.Mem.Get32(outAddr)
	s := m.ddraw.surfaces[surfObj]
	if s.width != 320 || s.height != 200 {
		t.Errorf("primary surface: %dx%d, want 320x200", s.width, s.height)
	}
}

func TestDDraw_FlipAndGetAttached(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)
	callMethod(t, m, obj, vtDD7SetDisplayMode, 64, 64, 32, 0, 0)

	descAddr := uint32(0x6000)
	m.Mem.Put32(descAddr+ddsdSize, ddsdStructSize)
	m.Mem.Put32(descAddr+ddsdFlags, ddsdFlagCaps)
	m.Mem.Put32(descAddr+ddsdCaps, ddscapsPrimarySurface)
	outAddr := uint32(0x6100)
	callMethod(t, m, obj, vtDD7CreateSurface, descAddr, outAddr, 0)
	surfObj, _ := m.Mem.Get32(outAddr)

	// GetAttachedSurface registers a new guest object.
	capsAddr := uint32(0x6200)
	backOut := uint32(0x6300)
	if ret := callMethod(t, m, surfObj, vtSurfGetAttachedSurface, capsAddr, backOut); ret != ddOK {
		t.Fatalf("GetAttachedSurface: 0x%X", ret)
	}
	backObj, _ := m.Mem.Get32(backOut)
	if backObj == 0 || m.ddraw.surfaces[backObj] == nil {
		t.Fatal("back buffer not registered")
	}

	front := m.ddraw.surfaces[surfObj].host.(*HeadlessSurface)
	if ret := callMethod(t, m, surfObj, vtSurfFlip, 0, 0); ret != ddOK {
		t.Fatalf("Flip: 0x%X", ret)
	}
	if front.Flips != 1 {
		t.Errorf("host flips: %d", front.Flips)
	}
}

func TestDDraw_BltFast(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)

	mkSurf := func(w, h uint32) uint32 {
		descAddr := uint32(0x6000)
		m.Mem.Put32(descAddr+ddsdSize, ddsdStructSize)
		m.Mem.Put32(descAddr+ddsdFlags, ddsdFlagWidth|ddsdFlagHeight)
		m.Mem.Put32(descAddr+ddsdWidth, w)
		m.Mem.Put32(descAddr+ddsdHeight, h)
		outAddr := uint32(0x6100)
		if ret := callMethod(t, m, obj, vtDD7CreateSurface, descAddr, outAddr, 0); ret != ddOK {
			t.Fatalf("CreateSurface: 0x%X", ret)
		}
		surfObj, _ := m.Mem.Get32(outAddr)
		return surfObj
	}

	dst := mkSurf(16, 16)
	src := mkSurf(16, 16)

	// Paint the source's top-left pixel.
	srcHost := m.ddraw.surfaces[src].host.(*HeadlessSurface)
	srcHost.Pixels()[0] = 0xFF

	// RECT {0, 0, 8, 8}
	rectAddr := uint32(0x6200)
	m.Mem.Put32(rectAddr+rectLeft, 0)
	m.Mem.Put32(rectAddr+rectTop, 0)
	m.Mem.Put32(rectAddr+rectRight, 8)
	m.Mem.Put32(rectAddr+rectBottom, 8)

	if ret := callMethod(t, m, dst, vtSurfBltFast, 4, 4, src, rectAddr, 0); ret != ddOK {
		t.Fatalf("BltFast: 0x%X", ret)
	}
	dstHost := m.ddraw.surfaces[dst].host.(*HeadlessSurface)
	off := (4*16 + 4) * 4
	if dstHost.Pixels()[off] != 0xFF {
		t.Error("BltFast did not copy the pixel block")
	}
}

func TestDDraw_GetSurfaceDesc(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)

	descAddr := uint32(0x6000)
	m.Mem.Put32(descAddr+ddsdSize, ddsdStructSize)
	m.Mem.Put32(descAddr+ddsdFlags, ddsdFlagWidth|ddsdFlagHeight)
	m.Mem.Put32(descAddr+ddsdWidth, 33)
	m.Mem.Put32(descAddr+ddsdHeight, 44)
	outAddr := uint32(0x6100)
	callMethod(t, m, obj, vtDD7CreateSurface, descAddr, outAddr, 0)
	surfObj, _ := m.Mem.Get32(outAddr)

	// Ask for width and height back through a fresh descriptor.
	qAddr := uint32(0x6400)
	m.Mem.Put32(qAddr+ddsdSize, ddsdStructSize)
	m.Mem.Put32(qAddr+ddsdFlags, ddsdFlagWidth|ddsdFlagHeight)
	if ret := callMethod(t, m, surfObj, vtSurfGetSurfaceDesc, qAddr); ret != ddOK {
		t.Fatalf("GetSurfaceDesc: 0x%X", ret)
	}
	w, _ := m.Mem.Get32(qAddr + ddsdWidth)
	h, _ := m.Mem.Get32(qAddr + ddsdHeight)
	if w != 33 || h != 44 {
		t.Errorf("desc: %dx%d, want 33x44", w, h)
	}

	// Unsupported flags produce the generic DirectDraw failure.
	m.Mem.Put32(qAddr+ddsdFlags, 0x00001000) // PIXELFORMAT
	if ret := callMethod(t, m, surfObj, vtSurfGetSurfaceDesc, qAddr); ret != ddErrGeneric {
		t.Errorf("GetSurfaceDesc with unsupported flags: 0x%X, want DDERR_GENERIC", ret)
	}
}

// An unimplemented vtable slot faults with interface and method name.
func TestDDraw_UnimplementedSlot(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)

	vtbl, _ := m.Mem.Get32(obj)
	fn, _ := m.Mem.Get32(vtbl + 4*0) // QueryInterface: not implemented
	pushCall(t, m, 0x00401000, obj, 0, 0)
	m.CPU.EIP = fn
	err := m.Step()
	ue, ok := err.(*UnimplementedError)
	if !ok {
		t.Fatalf("got %v, want UnimplementedError", err)
	}
	if ue.DLL != "IDirectDraw7" || ue.Fn != "QueryInterface" {
		t.Errorf("fields: %s!%s", ue.DLL, ue.Fn)
	}
}

func TestDDraw_Release(t *testing.T) {
	m := newTestMachine(t)
	obj := createDirectDraw7(t, m)
	if ret := callMethod(t, m, obj, vtSurfRelease); ret != 0 {
		t.Errorf("Release: %d, want 0", ret)
	}
}

func TestDDraw_LegacyCreate(t *testing.T) {
	m := newTestMachine(t)
	outAddr := uint32(0x5900)
	pushCall(t, m, 0x00401000, 0, outAddr, 0)
	m.CPU.EIP = m.exports["ddraw.dll"]["DirectDrawCreate"]
	if err := m.Step(); err != nil {
		t.Fatalf("DirectDrawCreate: %v", err)
	}
	if m.CPU.EAX != ddOK {
		t.Fatalf("DirectDrawCreate: 0x%X", m.CPU.EAX)
	}
	obj, _ := m.Mem.Get32(outAddr)
	vtbl, _ := m.Mem.Get32(obj)
	if vtbl != m.ddraw.vtblIDirectDraw {
		t.Error("legacy create should hand out the IDirectDraw vtable")
	}
}
