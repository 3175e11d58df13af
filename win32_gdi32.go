// win32_gdi32.go - gdi32.dll shims
//
// Device contexts are thin handles over DirectDraw surfaces (GetDC on a
// surface attaches it); TextOutA rasterizes with the x/image basicfont
// and uploads the glyphs into the surface.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type deviceContext struct {
	// ddrawSurface is the guest address of the surface this DC draws on,
	// or 0 for the (ignored) screen DC.
	ddrawSurface uint32
}

type gdi32State struct {
	dcs    map[uint32]*deviceContext
	nextDC uint32
}

func newGdi32State() *gdi32State {
	return &gdi32State{
		dcs:    make(map[uint32]*deviceContext),
		nextDC: 0x00D00000,
	}
}

// newDC allocates a DC handle bound to a ddraw surface (0 = none).
func (g *gdi32State) newDC(surface uint32) uint32 {
	handle := g.nextDC
	g.nextDC += 4
	g.dcs[handle] = &deviceContext{ddrawSurface: surface}
	return handle
}

func gdi32DLL() *BuiltinDLL {
	return &BuiltinDLL{
		FileName: "gdi32.dll",
		Shims: []*Shim{
			{Name: "GetStockObject", ArgWords: 1, Handler: Handler{Sync: shimReturn0}},
			{Name: "GetDC", ArgWords: 1, Handler: Handler{Sync: shimGetDC}},
			{Name: "ReleaseDC", ArgWords: 2, Handler: Handler{Sync: shimReturn1}},
			{Name: "SetBkMode", ArgWords: 2, Handler: Handler{Sync: shimReturn1}},
			{Name: "SetTextColor", ArgWords: 2, Handler: Handler{Sync: shimReturn0}},
			{Name: "TextOutA", ArgWords: 5, Handler: Handler{Sync: shimTextOutA}},
		},
	}
}

func shimGetDC(m *Machine, args *StackArgs) (uint32, error) {
	return m.gdi32.newDC(0), nil
}

// shimTextOutA draws with the fixed 7x13 font; a DC without an attached
// DirectDraw surface swallows the text.
func shimTextOutA(m *Machine, args *StackArgs) (uint32, error) {
	hdc := args.U32(0)
	x := args.U32(1)
	y := args.U32(2)
	lpString := args.U32(3)
	n := args.U32(4)

	dc := m.gdi32.dcs[hdc]
	if dc == nil {
		return 0, &BadArgError{Fn: "TextOutA", Arg: "hdc: unknown device context"}
	}
	raw, err := m.Mem.View(lpString, n)
	if err != nil {
		return 0, err
	}
	text := string(raw)
	if dc.ddrawSurface == 0 {
		tracef("gdi32", "TextOutA(%d, %d, %q) on screen DC", x, y, text)
		return 1, nil
	}
	surf := m.ddraw.surfaces[dc.ddrawSurface]
	if surf == nil {
		return 0, &BadArgError{Fn: "TextOutA", Arg: "hdc: stale surface"}
	}

	face := basicfont.Face7x13
	w := uint32(len(text)) * uint32(face.Advance)
	h := uint32(face.Height)
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)
	surf.host.WritePixels(x, y, w, h, img.Pix)
	return 1, nil
}
