// win32_user32.go - user32.dll shims
//
// Window bookkeeping, the message queue, MessageBox, and the clipboard
// family (bridged to the host clipboard).
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

const (
	wmQuit    = 0x0012
	wmPaint   = 0x000F
	wmKeyDown = 0x0100
	wmKeyUp   = 0x0101

	cfText = 1

	// MSG struct field offsets (28 bytes)
	msgHwnd    = 0x00
	msgMessage = 0x04
	msgWParam  = 0x08
	msgLParam  = 0x0C
	msgTime    = 0x10
	msgPtX     = 0x14
	msgPtY     = 0x18
)

// guestMsg is one entry of the thread message queue.
type guestMsg struct {
	hwnd    uint32
	message uint32
	wParam  uint32
	lParam  uint32
}

type guestWindow struct {
	class  string
	title  string
	width  uint32
	height uint32
}

type user32State struct {
	windows  map[uint32]*guestWindow
	nextHwnd uint32
	queue    []guestMsg
	quit     bool

	clipboardOnce sync.Once
	clipboardOK   bool
}

func newUser32State() *user32State {
	return &user32State{
		windows:  make(map[uint32]*guestWindow),
		nextHwnd: 0x00010000,
	}
}

// PostMessage appends to the thread queue; the ebiten backend feeds key
// events through this between frames.
func (u *user32State) PostMessage(msg guestMsg) {
	u.queue = append(u.queue, msg)
}

// clipboardInit initializes the host clipboard once; headless hosts have
// none and the shims then degrade to failure returns.
func (u *user32State) clipboardInit() bool {
	u.clipboardOnce.Do(func() {
		u.clipboardOK = clipboard.Init() == nil
	})
	return u.clipboardOK
}

func user32DLL() *BuiltinDLL {
	return &BuiltinDLL{
		FileName: "user32.dll",
		Shims: []*Shim{
			{Name: "RegisterClassA", ArgWords: 1, Handler: Handler{Sync: shimRegisterClassA}},
			{Name: "CreateWindowExA", ArgWords: 12, Handler: Handler{Sync: shimCreateWindowExA}},
			{Name: "ShowWindow", ArgWords: 2, Handler: Handler{Sync: shimReturn1}},
			{Name: "UpdateWindow", ArgWords: 1, Handler: Handler{Sync: shimReturn1}},
			{Name: "DefWindowProcA", ArgWords: 4, Handler: Handler{Sync: shimReturn0}},
			{Name: "PeekMessageA", ArgWords: 5, Handler: Handler{Sync: shimPeekMessageA}},
			{Name: "GetMessageA", ArgWords: 4, Handler: Handler{Async: shimGetMessageA}},
			{Name: "TranslateMessage", ArgWords: 1, Handler: Handler{Sync: shimReturn0}},
			{Name: "DispatchMessageA", ArgWords: 1, Handler: Handler{Sync: shimReturn0}},
			{Name: "PostQuitMessage", ArgWords: 1, Handler: Handler{Sync: shimPostQuitMessage}},
			{Name: "MessageBoxA", ArgWords: 4, Handler: Handler{Sync: shimMessageBoxA}},
			{Name: "GetDC", ArgWords: 1, Handler: Handler{Sync: shimGetDC}},
			{Name: "ReleaseDC", ArgWords: 2, Handler: Handler{Sync: shimReturn1}},
			{Name: "OpenClipboard", ArgWords: 1, Handler: Handler{Sync: shimOpenClipboard}},
			{Name: "CloseClipboard", ArgWords: 0, Handler: Handler{Sync: shimReturn1}},
			{Name: "EmptyClipboard", ArgWords: 0, Handler: Handler{Sync: shimReturn1}},
			{Name: "SetClipboardData", ArgWords: 2, Handler: Handler{Sync: shimSetClipboardData}},
			{Name: "GetClipboardData", ArgWords: 1, Handler: Handler{Sync: shimGetClipboardData}},
		},
	}
}

func shimReturn0(m *Machine, args *StackArgs) (uint32, error) { return 0, nil }
func shimReturn1(m *Machine, args *StackArgs) (uint32, error) { return 1, nil }

func shimRegisterClassA(m *Machine, args *StackArgs) (uint32, error) {
	// Window procedures are never re-entered (DispatchMessage is a
	// no-op), so the class registration is just an atom.
	return 1, nil
}

func shimCreateWindowExA(m *Machine, args *StackArgs) (uint32, error) {
	u := m.user32
	hwnd := u.nextHwnd
	u.nextHwnd += 4
	u.windows[hwnd] = &guestWindow{
		class:  args.Str(1),
		title:  args.Str(2),
		width:  args.U32(6),
		height: args.U32(7),
	}
	tracef("user32", "CreateWindowExA(%q) -> 0x%X", u.windows[hwnd].title, hwnd)
	// A first paint gets things like game loops moving.
	u.PostMessage(guestMsg{hwnd: hwnd, message: wmPaint})
	return hwnd, nil
}

// writeMsg stores a MSG struct at lpMsg.
func writeMsg(m *Machine, lpMsg uint32, msg guestMsg) error {
	if err := m.Mem.Put32(lpMsg+msgHwnd, msg.hwnd); err != nil {
		return err
	}
	m.Mem.Put32(lpMsg+msgMessage, msg.message)
	m.Mem.Put32(lpMsg+msgWParam, msg.wParam)
	m.Mem.Put32(lpMsg+msgLParam, msg.lParam)
	m.Mem.Put32(lpMsg+msgTime, m.Clock.Millis())
	m.Mem.Put32(lpMsg+msgPtX, 0)
	return m.Mem.Put32(lpMsg+msgPtY, 0)
}

// pumpInput drains buffered host key events into the thread queue.
func (m *Machine) pumpInput() {
	if m.Input == nil {
		return
	}
	for _, ev := range m.Input.DrainKeys() {
		msg := uint32(wmKeyUp)
		if ev.Down {
			msg = wmKeyDown
		}
		m.user32.PostMessage(guestMsg{message: msg, wParam: ev.VK})
	}
}

func shimPeekMessageA(m *Machine, args *StackArgs) (uint32, error) {
	u := m.user32
	m.pumpInput()
	lpMsg := args.U32(0)
	remove := args.U32(4)
	if len(u.queue) == 0 {
		return 0, nil
	}
	msg := u.queue[0]
	if remove&1 != 0 { // PM_REMOVE
		u.queue = u.queue[1:]
	}
	if err := writeMsg(m, lpMsg, msg); err != nil {
		return 0, err
	}
	return 1, nil
}

// shimGetMessageA blocks until a message arrives; it parks the step loop
// with an async poll instead of spinning inside the shim.
func shimGetMessageA(m *Machine, args *StackArgs) (func() (uint32, bool), error) {
	u := m.user32
	lpMsg := args.U32(0)
	if err := args.Err(); err != nil {
		return nil, err
	}
	return func() (uint32, bool) {
		m.pumpInput()
		if len(u.queue) == 0 {
			return 0, false
		}
		msg := u.queue[0]
		u.queue = u.queue[1:]
		if err := writeMsg(m, lpMsg, msg); err != nil {
			return 0, true
		}
		if msg.message == wmQuit {
			return 0, true
		}
		return 1, true
	}, nil
}

func shimPostQuitMessage(m *Machine, args *StackArgs) (uint32, error) {
	u := m.user32
	u.quit = true
	u.PostMessage(guestMsg{message: wmQuit, wParam: args.U32(0)})
	return 0, nil
}

func shimMessageBoxA(m *Machine, args *StackArgs) (uint32, error) {
	text := args.Str(1)
	caption := args.Str(2)
	fmt.Fprintf(m.Stdout, "[%s] %s\n", caption, text)
	return 1, nil // IDOK
}

func shimOpenClipboard(m *Machine, args *StackArgs) (uint32, error) {
	if m.user32.clipboardInit() {
		return 1, nil
	}
	return 0, nil
}

func shimSetClipboardData(m *Machine, args *StackArgs) (uint32, error) {
	format := args.U32(0)
	hMem := args.U32(1)
	if format != cfText || !m.user32.clipboardInit() {
		return 0, nil
	}
	text, err := m.Mem.CString(hMem)
	if err != nil {
		return 0, err
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return hMem, nil
}

func shimGetClipboardData(m *Machine, args *StackArgs) (uint32, error) {
	if args.U32(0) != cfText || !m.user32.clipboardInit() {
		return 0, nil
	}
	text := clipboard.Read(clipboard.FmtText)
	addr, err := m.kernel32.processHeap.Alloc(uint32(len(text)) + 1)
	if err != nil {
		return 0, err
	}
	if err := m.Mem.PutString(addr, string(text)); err != nil {
		return 0, err
	}
	return addr, nil
}
