// host.go - Host capability interfaces and headless implementations
//
// The core calls the host only through these interfaces; the windowed
// ebiten backend and the oto audio backend implement them for interactive
// runs, and the headless implementations here serve tests and -headless.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"fmt"
	"time"
)

// SurfaceOptions describes a drawing surface the guest asked for.
type SurfaceOptions struct {
	Width   uint32
	Height  uint32
	Primary bool
}

// HostSurface is a 2D pixel surface. Pixels are 4-byte BGRA, the layout
// DirectDraw-era Windows code assumes.
type HostSurface interface {
	Width() uint32
	Height() uint32
	// BitBlt copies a w*h block from src at (sx, sy) to (dx, dy).
	BitBlt(dx, dy uint32, src HostSurface, sx, sy, w, h uint32)
	// Flip presents the surface's contents (back buffer to screen).
	Flip()
	// GetAttached returns the surface's attached back buffer.
	GetAttached() HostSurface
	// WritePixels uploads raw pixel rows into the rectangle; used by the
	// gdi32 text path.
	WritePixels(x, y, w, h uint32, pix []byte)
	// Pixels exposes the backing pixel buffer (row-major, 4 bytes/px).
	Pixels() []byte
}

// HostSurfaceFactory creates surfaces on demand (DirectDraw
// CreateSurface and friends).
type HostSurfaceFactory interface {
	CreateSurface(opts *SurfaceOptions) HostSurface
}

// HostStdout is a line-oriented byte sink for guest console output.
type HostStdout interface {
	Write(p []byte) (int, error)
}

// HostClock supplies monotonic wall-clock milliseconds.
type HostClock interface {
	Millis() uint32
}

// KeyEvent is one host key transition, already translated to a Windows
// virtual-key code.
type KeyEvent struct {
	VK   uint32
	Down bool
}

// HostInput surfaces buffered key events; the user32 message-queue shims
// drain it between polls, keeping the machine single-threaded.
type HostInput interface {
	DrainKeys() []KeyEvent
}

// HostAudio accepts PCM buffers queued by the winmm shims.
type HostAudio interface {
	// Queue submits little-endian 16-bit stereo PCM for playback.
	Queue(pcm []byte)
	// Playing reports whether queued audio is still being rendered.
	Playing() bool
}

// -----------------------------------------------------------------------------
// Headless implementations
// -----------------------------------------------------------------------------

// HeadlessSurface keeps pixels in memory and counts flips; tests assert
// against it directly.
type HeadlessSurface struct {
	width    uint32
	height   uint32
	pix      []byte
	attached *HeadlessSurface
	Flips    int
}

func NewHeadlessSurface(w, h uint32) *HeadlessSurface {
	return &HeadlessSurface{width: w, height: h, pix: make([]byte, w*h*4)}
}

func (s *HeadlessSurface) Width() uint32  { return s.width }
func (s *HeadlessSurface) Height() uint32 { return s.height }
func (s *HeadlessSurface) Pixels() []byte { return s.pix }

func (s *HeadlessSurface) BitBlt(dx, dy uint32, src HostSurface, sx, sy, w, h uint32) {
	srcPix := src.Pixels()
	srcW := src.Width()
	for row := uint32(0); row < h; row++ {
		if dy+row >= s.height || sy+row >= src.Height() || dx >= s.width || sx >= srcW {
			break
		}
		dstOff := ((dy+row)*s.width + dx) * 4
		srcOff := ((sy+row)*srcW + sx) * 4
		n := w * 4
		if dstOff+n > uint32(len(s.pix)) {
			n = uint32(len(s.pix)) - dstOff
		}
		if srcOff+n > uint32(len(srcPix)) {
			n = uint32(len(srcPix)) - srcOff
		}
		copy(s.pix[dstOff:dstOff+n], srcPix[srcOff:srcOff+n])
	}
}

func (s *HeadlessSurface) Flip() {
	s.Flips++
	if s.attached != nil {
		copy(s.pix, s.attached.pix)
	}
}

func (s *HeadlessSurface) GetAttached() HostSurface {
	if s.attached == nil {
		s.attached = NewHeadlessSurface(s.width, s.height)
	}
	return s.attached
}

func (s *HeadlessSurface) WritePixels(x, y, w, h uint32, pix []byte) {
	for row := uint32(0); row < h && y+row < s.height && x < s.width; row++ {
		dstOff := ((y+row)*s.width + x) * 4
		srcOff := row * w * 4
		n := w * 4
		if dstOff+n > uint32(len(s.pix)) {
			n = uint32(len(s.pix)) - dstOff
		}
		if srcOff+n > uint32(len(pix)) {
			n = uint32(len(pix)) - srcOff
		}
		copy(s.pix[dstOff:dstOff+n], pix[srcOff:srcOff+n])
	}
}

// HeadlessSurfaceFactory hands out in-memory surfaces.
type HeadlessSurfaceFactory struct {
	Created []*HeadlessSurface
}

func (f *HeadlessSurfaceFactory) CreateSurface(opts *SurfaceOptions) HostSurface {
	w, h := opts.Width, opts.Height
	if w == 0 {
		w = 640
	}
	if h == 0 {
		h = 480
	}
	s := NewHeadlessSurface(w, h)
	f.Created = append(f.Created, s)
	return s
}

// HeadlessStdout buffers guest output for inspection.
type HeadlessStdout struct {
	Buf []byte
}

func (o *HeadlessStdout) Write(p []byte) (int, error) {
	o.Buf = append(o.Buf, p...)
	return len(p), nil
}

func (o *HeadlessStdout) String() string { return string(o.Buf) }

// SystemClock is the real monotonic clock in milliseconds.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	Now uint32
}

func (c *FakeClock) Millis() uint32 { return c.Now }

// HeadlessAudio records queued PCM without playing it.
type HeadlessAudio struct {
	Queued [][]byte
}

func (a *HeadlessAudio) Queue(pcm []byte) {
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	a.Queued = append(a.Queued, buf)
}

func (a *HeadlessAudio) Playing() bool { return false }

// HostError wraps a backend failure with the operation that hit it.
type HostError struct {
	Operation string
	Err       error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host %s failed: %v", e.Operation, e.Err)
}
