// win32_ddraw.go - ddraw.dll shims and the DirectDraw COM surfaces
//
// Implements DirectDrawCreate/DirectDrawCreateEx plus the IDirectDraw,
// IDirectDraw7 and IDirectDrawSurface7 interfaces as synthetic vtables.
// Per-surface host state is keyed by the object's guest address. Vtable
// slot order is ABI and must not change.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

const (
	ddOK         = 0
	ddErrGeneric = 0x80004005

	// DDSURFACEDESC2 field offsets; total size 0x7C.
	ddsdSize            = 0x00
	ddsdFlags           = 0x04
	ddsdHeight          = 0x08
	ddsdWidth           = 0x0C
	ddsdPitch           = 0x10
	ddsdBackBufferCount = 0x14
	ddsdCaps            = 0x68
	ddsdStructSize      = 0x7C

	// DDSD flag bits
	ddsdFlagCaps            = 0x00000001
	ddsdFlagHeight          = 0x00000002
	ddsdFlagWidth           = 0x00000004
	ddsdFlagPitch           = 0x00000008
	ddsdFlagBackBufferCount = 0x00000020

	// DDSCAPS bits
	ddscapsBackBuffer     = 0x00000004
	ddscapsFlip           = 0x00000010
	ddscapsPrimarySurface = 0x00000200

	// RECT field offsets
	rectLeft   = 0x0
	rectTop    = 0x4
	rectRight  = 0x8
	rectBottom = 0xC
)

// iidIDirectDraw7 is the interface GUID DirectDrawCreateEx is handed.
var iidIDirectDraw7 = [16]byte{
	0xc0, 0x5e, 0xe6, 0x15, 0x9c, 0x3b, 0xd2, 0x11,
	0xb9, 0x2f, 0x00, 0x60, 0x97, 0x97, 0xea, 0x5b,
}

// ddrawSurface pairs a guest surface object with its host backing.
type ddrawSurface struct {
	host   HostSurface
	width  uint32
	height uint32
}

type ddrawState struct {
	heap *Heap

	vtblIDirectDraw         uint32
	vtblIDirectDraw7        uint32
	vtblIDirectDrawSurface7 uint32

	hwnd   uint32
	width  uint32
	height uint32

	surfaces map[uint32]*ddrawSurface
}

func newDdrawState() *ddrawState {
	return &ddrawState{surfaces: make(map[uint32]*ddrawSurface)}
}

// init lazily builds the ddraw heap and vtables the first time the guest
// creates a DirectDraw object.
func (d *ddrawState) init(m *Machine) error {
	if d.heap != nil {
		return nil
	}
	heap, err := m.NewHeap("ddraw.dll heap", 0x1000)
	if err != nil {
		return err
	}
	d.heap = heap
	if d.vtblIDirectDraw7, err = m.BuildVtable("IDirectDraw7", heap, iDirectDraw7Methods()); err != nil {
		return err
	}
	if d.vtblIDirectDraw, err = m.BuildVtable("IDirectDraw", heap, iDirectDrawMethods()); err != nil {
		return err
	}
	if d.vtblIDirectDrawSurface7, err = m.BuildVtable("IDirectDrawSurface7", heap, iDirectDrawSurface7Methods()); err != nil {
		return err
	}
	return nil
}

// newSurfaceObject allocates a guest IDirectDrawSurface7 object and
// registers its host surface.
func (d *ddrawState) newSurfaceObject(m *Machine, host HostSurface, w, h uint32) (uint32, error) {
	obj, err := m.NewComObject(d.heap, d.vtblIDirectDrawSurface7)
	if err != nil {
		return 0, err
	}
	d.surfaces[obj] = &ddrawSurface{host: host, width: w, height: h}
	return obj, nil
}

func ddrawDLL() *BuiltinDLL {
	return &BuiltinDLL{
		FileName: "ddraw.dll",
		Shims: []*Shim{
			{Name: "DirectDrawCreate", ArgWords: 3, Handler: Handler{Sync: shimDirectDrawCreate}},
			{Name: "DirectDrawCreateEx", ArgWords: 4, Handler: Handler{Sync: shimDirectDrawCreateEx}},
		},
	}
}

func shimDirectDrawCreate(m *Machine, args *StackArgs) (uint32, error) {
	return ddrawCreate(m, args.U32(0), args.U32(1), 0, args.U32(2), "DirectDrawCreate")
}

func shimDirectDrawCreateEx(m *Machine, args *StackArgs) (uint32, error) {
	return ddrawCreate(m, args.U32(0), args.U32(1), args.U32(2), args.U32(3), "DirectDrawCreateEx")
}

func ddrawCreate(m *Machine, lpGuid, lplpDD, iid, pUnkOuter uint32, fn string) (uint32, error) {
	if lpGuid != 0 {
		return 0, &BadArgError{Fn: fn, Arg: "lpGUID: only the default driver is supported"}
	}
	if pUnkOuter != 0 {
		return 0, &BadArgError{Fn: fn, Arg: "pUnkOuter: aggregation is not supported"}
	}
	d := m.ddraw
	if err := d.init(m); err != nil {
		return 0, err
	}

	vtbl := d.vtblIDirectDraw
	if iid != 0 {
		raw, err := m.Mem.View(iid, 16)
		if err != nil {
			return 0, err
		}
		if [16]byte(raw) != iidIDirectDraw7 {
			tracef("ddraw", "%s: unknown IID % X", fn, raw)
			return ddErrGeneric, nil
		}
		vtbl = d.vtblIDirectDraw7
	}

	// The caller hands us a pointer to fill in with a pointer to
	// [vtable, ...]; the vtable rows are the shim trampolines.
	obj, err := m.NewComObject(d.heap, vtbl)
	if err != nil {
		return 0, err
	}
	if err := m.Mem.Put32(lplpDD, obj); err != nil {
		return 0, err
	}
	return ddOK, nil
}

// -----------------------------------------------------------------------------
// IDirectDraw / IDirectDraw7
// -----------------------------------------------------------------------------

// iDirectDrawMethods is the legacy interface; it shares the cooperative
// level and display mode handlers with v7.
func iDirectDrawMethods() []VtableMethod {
	return []VtableMethod{
		todoMethod("QueryInterface"),
		todoMethod("AddRef"),
		method("Release", 1, ddRelease),
		todoMethod("Compact"),
		todoMethod("CreateClipper"),
		todoMethod("CreatePalette"),
		method("CreateSurface", 4, ddCreateSurface),
		todoMethod("DuplicateSurface"),
		todoMethod("EnumDisplayModes"),
		todoMethod("EnumSurfaces"),
		todoMethod("FlipToGDISurface"),
		todoMethod("GetCaps"),
		todoMethod("GetDisplayMode"),
		todoMethod("GetFourCCCodes"),
		todoMethod("GetGDISurface"),
		todoMethod("GetMonitorFrequency"),
		todoMethod("GetScanLine"),
		todoMethod("GetVerticalBlankStatus"),
		todoMethod("Initialize"),
		todoMethod("RestoreDisplayMode"),
		method("SetCooperativeLevel", 3, ddSetCooperativeLevel),
		method("SetDisplayMode", 6, ddSetDisplayMode),
		todoMethod("WaitForVerticalBlank"),
	}
}

func iDirectDraw7Methods() []VtableMethod {
	return []VtableMethod{
		todoMethod("QueryInterface"),
		todoMethod("AddRef"),
		method("Release", 1, ddRelease),
		todoMethod("Compact"),
		todoMethod("CreateClipper"),
		todoMethod("CreatePalette"),
		method("CreateSurface", 4, ddCreateSurface),
		todoMethod("DuplicateSurface"),
		todoMethod("EnumDisplayModes"),
		todoMethod("EnumSurfaces"),
		todoMethod("FlipToGDISurface"),
		todoMethod("GetCaps"),
		todoMethod("GetDisplayMode"),
		todoMethod("GetFourCCCodes"),
		todoMethod("GetGDISurface"),
		todoMethod("GetMonitorFrequency"),
		todoMethod("GetScanLine"),
		todoMethod("GetVerticalBlankStatus"),
		todoMethod("Initialize"),
		todoMethod("RestoreDisplayMode"),
		method("SetCooperativeLevel", 3, ddSetCooperativeLevel),
		method("SetDisplayMode", 6, ddSetDisplayMode),
		todoMethod("WaitForVerticalBlank"),
		todoMethod("GetAvailableVidMem"),
		todoMethod("GetSurfaceFromDC"),
		todoMethod("RestoreAllSurfaces"),
		todoMethod("TestCooperativeLevel"),
		todoMethod("GetDeviceIdentifier"),
		todoMethod("StartModeTest"),
		todoMethod("EvaluateMode"),
	}
}

// ddRelease leaks by design; objects live for the whole process.
func ddRelease(m *Machine, args *StackArgs) (uint32, error) {
	tracef("ddraw", "0x%X->Release()", args.U32(0))
	return 0, nil
}

func ddSetCooperativeLevel(m *Machine, args *StackArgs) (uint32, error) {
	m.ddraw.hwnd = args.U32(1)
	return ddOK, nil
}

func ddSetDisplayMode(m *Machine, args *StackArgs) (uint32, error) {
	width := args.U32(1)
	height := args.U32(2)
	tracef("ddraw", "SetDisplayMode(%dx%dx%d@%dhz)", width, height, args.U32(3), args.U32(4))
	m.ddraw.width = width
	m.ddraw.height = height
	return ddOK, nil
}

func ddCreateSurface(m *Machine, args *StackArgs) (uint32, error) {
	d := m.ddraw
	lpDesc := args.U32(1)
	lpOut := args.U32(2)

	size, err := m.Mem.Get32(lpDesc + ddsdSize)
	if err != nil {
		return 0, err
	}
	if size != ddsdStructSize {
		return 0, &BadArgError{Fn: "IDirectDraw7::CreateSurface", Arg: "lpDDSurfaceDesc2: bad dwSize"}
	}
	flags, _ := m.Mem.Get32(lpDesc + ddsdFlags)

	opts := SurfaceOptions{}
	if flags&ddsdFlagWidth != 0 {
		opts.Width, _ = m.Mem.Get32(lpDesc + ddsdWidth)
	}
	if flags&ddsdFlagHeight != 0 {
		opts.Height, _ = m.Mem.Get32(lpDesc + ddsdHeight)
	}
	if flags&ddsdFlagCaps != 0 {
		caps, _ := m.Mem.Get32(lpDesc + ddsdCaps)
		if caps&ddscapsPrimarySurface != 0 {
			opts.Width = d.width
			opts.Height = d.height
			opts.Primary = true
		}
	}
	if flags&ddsdFlagBackBufferCount != 0 {
		count, _ := m.Mem.Get32(lpDesc + ddsdBackBufferCount)
		tracef("ddraw", "CreateSurface back buffers: %d", count)
	}

	host := m.Surfaces.CreateSurface(&opts)
	obj, err := d.newSurfaceObject(m, host, opts.Width, opts.Height)
	if err != nil {
		return 0, err
	}
	if err := m.Mem.Put32(lpOut, obj); err != nil {
		return 0, err
	}
	return ddOK, nil
}

// -----------------------------------------------------------------------------
// IDirectDrawSurface7
// -----------------------------------------------------------------------------

func iDirectDrawSurface7Methods() []VtableMethod {
	return []VtableMethod{
		todoMethod("QueryInterface"),
		todoMethod("AddRef"),
		method("Release", 1, ddRelease),
		todoMethod("AddAttachedSurface"),
		todoMethod("AddOverlayDirtyRect"),
		todoMethod("Blt"),
		todoMethod("BltBatch"),
		method("BltFast", 6, surfBltFast),
		todoMethod("DeleteAttachedSurface"),
		todoMethod("EnumAttachedSurfaces"),
		todoMethod("EnumOverlayZOrders"),
		method("Flip", 3, surfFlip),
		method("GetAttachedSurface", 3, surfGetAttachedSurface),
		todoMethod("GetBltStatus"),
		todoMethod("GetCaps"),
		todoMethod("GetClipper"),
		todoMethod("GetColorKey"),
		method("GetDC", 2, surfGetDC),
		todoMethod("GetFlipStatus"),
		todoMethod("GetOverlayPosition"),
		todoMethod("GetPalette"),
		todoMethod("GetPixelFormat"),
		method("GetSurfaceDesc", 2, surfGetSurfaceDesc),
		todoMethod("Initialize"),
		todoMethod("IsLost"),
		todoMethod("Lock"),
		method("ReleaseDC", 2, surfReleaseDC),
		method("Restore", 1, surfRestore),
		todoMethod("SetClipper"),
		todoMethod("SetColorKey"),
		todoMethod("SetOverlayPosition"),
		todoMethod("SetPalette"),
		todoMethod("Unlock"),
		todoMethod("UpdateOverlay"),
		todoMethod("UpdateOverlayDisplay"),
		todoMethod("UpdateOverlayZOrder"),
		todoMethod("GetDDInterface"),
		todoMethod("PageLock"),
		todoMethod("PageUnlock"),
		todoMethod("SetSurfaceDesc"),
		todoMethod("SetPrivateData"),
		todoMethod("GetPrivateData"),
		todoMethod("FreePrivateData"),
		todoMethod("GetUniquenessValue"),
		todoMethod("ChangeUniquenessValue"),
		todoMethod("SetPriority"),
		todoMethod("GetPriority"),
		todoMethod("SetLOD"),
		todoMethod("GetLOD"),
	}
}

func (d *ddrawState) surface(fn string, this uint32) (*ddrawSurface, error) {
	s := d.surfaces[this]
	if s == nil {
		return nil, &BadArgError{Fn: fn, Arg: "this: not a DirectDraw surface"}
	}
	return s, nil
}

func surfBltFast(m *Machine, args *StackArgs) (uint32, error) {
	this := args.U32(0)
	x := args.U32(1)
	y := args.U32(2)
	lpSrc := args.U32(3)
	lpRect := args.U32(4)
	if flags := args.U32(5); flags != 0 {
		tracef("ddraw", "BltFast flags: 0x%X", flags)
	}
	dst, err := m.ddraw.surface("IDirectDrawSurface7::BltFast", this)
	if err != nil {
		return 0, err
	}
	src, err := m.ddraw.surface("IDirectDrawSurface7::BltFast", lpSrc)
	if err != nil {
		return 0, err
	}
	left, err := m.Mem.Get32(lpRect + rectLeft)
	if err != nil {
		return 0, err
	}
	top, _ := m.Mem.Get32(lpRect + rectTop)
	right, _ := m.Mem.Get32(lpRect + rectRight)
	bottom, _ := m.Mem.Get32(lpRect + rectBottom)
	dst.host.BitBlt(x, y, src.host, left, top, right-left, bottom-top)
	return ddOK, nil
}

func surfFlip(m *Machine, args *StackArgs) (uint32, error) {
	this := args.U32(0)
	if lpSurf, flags := args.U32(1), args.U32(2); lpSurf != 0 || flags != 0 {
		tracef("ddraw", "0x%X->Flip(0x%X, 0x%X)", this, lpSurf, flags)
	}
	s, err := m.ddraw.surface("IDirectDrawSurface7::Flip", this)
	if err != nil {
		return 0, err
	}
	s.host.Flip()
	return ddOK, nil
}

func surfGetAttachedSurface(m *Machine, args *StackArgs) (uint32, error) {
	this := args.U32(0)
	lpOut := args.U32(2)
	s, err := m.ddraw.surface("IDirectDrawSurface7::GetAttachedSurface", this)
	if err != nil {
		return 0, err
	}
	obj, err := m.ddraw.newSurfaceObject(m, s.host.GetAttached(), s.width, s.height)
	if err != nil {
		return 0, err
	}
	if err := m.Mem.Put32(lpOut, obj); err != nil {
		return 0, err
	}
	return ddOK, nil
}

func surfGetDC(m *Machine, args *StackArgs) (uint32, error) {
	this := args.U32(0)
	lpHDC := args.U32(1)
	if _, err := m.ddraw.surface("IDirectDrawSurface7::GetDC", this); err != nil {
		return 0, err
	}
	handle := m.gdi32.newDC(this)
	if err := m.Mem.Put32(lpHDC, handle); err != nil {
		return 0, err
	}
	return ddOK, nil
}

// surfGetSurfaceDesc fills in the fields the caller's flags request,
// directly into the caller's DDSURFACEDESC2.
func surfGetSurfaceDesc(m *Machine, args *StackArgs) (uint32, error) {
	this := args.U32(0)
	lpDesc := args.U32(1)
	s, err := m.ddraw.surface("IDirectDrawSurface7::GetSurfaceDesc", this)
	if err != nil {
		return 0, err
	}
	size, err := m.Mem.Get32(lpDesc + ddsdSize)
	if err != nil {
		return 0, err
	}
	if size != ddsdStructSize {
		return 0, &BadArgError{Fn: "IDirectDrawSurface7::GetSurfaceDesc", Arg: "lpDDSurfaceDesc2: bad dwSize"}
	}
	flags, _ := m.Mem.Get32(lpDesc + ddsdFlags)
	remaining := flags
	if flags&ddsdFlagWidth != 0 {
		m.Mem.Put32(lpDesc+ddsdWidth, s.width)
		remaining &^= uint32(ddsdFlagWidth)
	}
	if flags&ddsdFlagHeight != 0 {
		m.Mem.Put32(lpDesc+ddsdHeight, s.height)
		remaining &^= uint32(ddsdFlagHeight)
	}
	if flags&ddsdFlagPitch != 0 {
		m.Mem.Put32(lpDesc+ddsdPitch, s.width*4)
		remaining &^= uint32(ddsdFlagPitch)
	}
	if remaining != 0 {
		tracef("ddraw", "GetSurfaceDesc: unimplemented flags 0x%X", remaining)
		return ddErrGeneric, nil
	}
	return ddOK, nil
}

func surfReleaseDC(m *Machine, args *StackArgs) (uint32, error) {
	// The DC leaks, like every other object here.
	return ddOK, nil
}

func surfRestore(m *Machine, args *StackArgs) (uint32, error) {
	return ddOK, nil
}
