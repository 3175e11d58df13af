// video_backend_ebiten.go - Ebiten windowed backend for guest surfaces
//
// Implements HostSurfaceFactory/HostSurface on top of an ebiten window.
// Guest-side blits happen on the machine goroutine against plain pixel
// buffers; Flip of the primary surface publishes a frame under a mutex,
// and the ebiten game loop uploads the latest published frame. Keyboard
// input is buffered here and drained by the user32 message pump.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

type EbitenOutput struct {
	mu     sync.Mutex
	frame  []byte // RGBA, most recent flipped frame
	width  int
	height int
	keys   []KeyEvent
	title  string
}

func NewEbitenOutput(title string) *EbitenOutput {
	return &EbitenOutput{width: 640, height: 480, title: title}
}

// Run enters the ebiten main loop; it must be called from the main
// goroutine and blocks until the window closes.
func (o *EbitenOutput) Run() error {
	ebiten.SetWindowSize(o.width, o.height)
	ebiten.SetWindowTitle(o.title)
	return ebiten.RunGame(o)
}

// Update collects key transitions for the message pump.
func (o *EbitenOutput) Update() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range inpututil.AppendJustPressedKeys(nil) {
		if vk := ebitenKeyToVK(k); vk != 0 {
			o.keys = append(o.keys, KeyEvent{VK: vk, Down: true})
		}
	}
	for _, k := range inpututil.AppendJustReleasedKeys(nil) {
		if vk := ebitenKeyToVK(k); vk != 0 {
			o.keys = append(o.keys, KeyEvent{VK: vk, Down: false})
		}
	}
	return nil
}

func (o *EbitenOutput) Draw(screen *ebiten.Image) {
	o.mu.Lock()
	frame := o.frame
	w, h := o.width, o.height
	o.mu.Unlock()
	if frame != nil && len(frame) == w*h*4 {
		screen.WritePixels(frame)
	}
}

func (o *EbitenOutput) Layout(outsideWidth, outsideHeight int) (int, int) {
	return o.width, o.height
}

// DrainKeys implements HostInput.
func (o *EbitenOutput) DrainKeys() []KeyEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := o.keys
	o.keys = nil
	return keys
}

// CreateSurface implements HostSurfaceFactory.
func (o *EbitenOutput) CreateSurface(opts *SurfaceOptions) HostSurface {
	w, h := opts.Width, opts.Height
	if w == 0 {
		w = 640
	}
	if h == 0 {
		h = 480
	}
	if opts.Primary {
		o.mu.Lock()
		o.width, o.height = int(w), int(h)
		ebiten.SetWindowSize(o.width, o.height)
		o.mu.Unlock()
	}
	return &ebitenSurface{
		out:     o,
		base:    *NewHeadlessSurface(w, h),
		primary: opts.Primary,
	}
}

// ebitenSurface reuses the headless pixel store and publishes frames to
// the window when the primary surface flips.
type ebitenSurface struct {
	out     *EbitenOutput
	base    HeadlessSurface
	primary bool
}

func (s *ebitenSurface) Width() uint32  { return s.base.Width() }
func (s *ebitenSurface) Height() uint32 { return s.base.Height() }
func (s *ebitenSurface) Pixels() []byte { return s.base.Pixels() }

func (s *ebitenSurface) BitBlt(dx, dy uint32, src HostSurface, sx, sy, w, h uint32) {
	s.base.BitBlt(dx, dy, src, sx, sy, w, h)
}

func (s *ebitenSurface) GetAttached() HostSurface {
	return &ebitenSurface{out: s.out, base: *NewHeadlessSurface(s.base.Width(), s.base.Height())}
}

func (s *ebitenSurface) WritePixels(x, y, w, h uint32, pix []byte) {
	s.base.WritePixels(x, y, w, h, pix)
}

// Flip publishes the surface contents as the next window frame. The
// guest draws BGRA; ebiten wants RGBA, so swizzle while copying.
func (s *ebitenSurface) Flip() {
	s.base.Flip()
	if !s.primary {
		return
	}
	src := s.base.Pixels()
	frame := make([]byte, len(src))
	for i := 0; i+3 < len(src); i += 4 {
		frame[i] = src[i+2]
		frame[i+1] = src[i+1]
		frame[i+2] = src[i]
		frame[i+3] = 0xFF
	}
	s.out.mu.Lock()
	s.out.frame = frame
	s.out.mu.Unlock()
}

// ebitenKeyToVK maps the keys vintage binaries care about onto Windows
// virtual-key codes.
func ebitenKeyToVK(k ebiten.Key) uint32 {
	switch {
	case k >= ebiten.KeyA && k <= ebiten.KeyZ:
		return uint32('A') + uint32(k-ebiten.KeyA)
	case k >= ebiten.KeyDigit0 && k <= ebiten.KeyDigit9:
		return uint32('0') + uint32(k-ebiten.KeyDigit0)
	}
	switch k {
	case ebiten.KeyEscape:
		return 0x1B
	case ebiten.KeySpace:
		return 0x20
	case ebiten.KeyEnter:
		return 0x0D
	case ebiten.KeyArrowLeft:
		return 0x25
	case ebiten.KeyArrowUp:
		return 0x26
	case ebiten.KeyArrowRight:
		return 0x27
	case ebiten.KeyArrowDown:
		return 0x28
	}
	return 0
}
