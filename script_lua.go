// script_lua.go - Lua bindings for scripted interaction with the guest
//
// Exposes the machine to a Lua script: read and write guest memory and
// registers, single-step, run until a breakpoint address, and queue key
// input. This is the automation surface for poking at binaries without
// recompiling the emulator.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// RunScript executes a Lua file against the machine.
func RunScript(m *Machine, path string) error {
	L := lua.NewState()
	defer L.Close()
	registerMachineAPI(L, m)
	return L.DoFile(path)
}

func registerMachineAPI(L *lua.LState, m *Machine) {
	reg := func(name string, fn lua.LGFunction) {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	reg("getreg", func(L *lua.LState) int {
		v, ok := regByName(m.CPU, strings.ToLower(L.CheckString(1)))
		if !ok {
			L.RaiseError("unknown register %q", L.CheckString(1))
		}
		L.Push(lua.LNumber(*v))
		return 1
	})

	reg("setreg", func(L *lua.LState) int {
		v, ok := regByName(m.CPU, strings.ToLower(L.CheckString(1)))
		if !ok {
			L.RaiseError("unknown register %q", L.CheckString(1))
		}
		*v = uint32(L.CheckNumber(2))
		return 0
	})

	reg("read", func(L *lua.LState) int {
		addr := uint32(L.CheckNumber(1))
		n := uint32(L.CheckNumber(2))
		view, err := m.Mem.View(addr, n)
		if err != nil {
			L.RaiseError("%v", err)
		}
		L.Push(lua.LString(view))
		return 1
	})

	reg("read32", func(L *lua.LState) int {
		v, err := m.Mem.Get32(uint32(L.CheckNumber(1)))
		if err != nil {
			L.RaiseError("%v", err)
		}
		L.Push(lua.LNumber(v))
		return 1
	})

	reg("write", func(L *lua.LState) int {
		addr := uint32(L.CheckNumber(1))
		data := []byte(L.CheckString(2))
		view, err := m.Mem.View(addr, uint32(len(data)))
		if err != nil {
			L.RaiseError("%v", err)
		}
		copy(view, data)
		return 0
	})

	reg("write32", func(L *lua.LState) int {
		if err := m.Mem.Put32(uint32(L.CheckNumber(1)), uint32(L.CheckNumber(2))); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	})

	reg("step", func(L *lua.LState) int {
		n := 1
		if L.GetTop() >= 1 {
			n = int(L.CheckNumber(1))
		}
		for i := 0; i < n && !m.exited; i++ {
			if err := m.Step(); err != nil {
				L.Push(lua.LString(err.Error()))
				return 1
			}
		}
		return 0
	})

	// run() interprets until exit; run(addr) additionally stops when EIP
	// reaches addr (a script breakpoint).
	reg("run", func(L *lua.LState) int {
		var bp uint32
		hasBP := L.GetTop() >= 1
		if hasBP {
			bp = uint32(L.CheckNumber(1))
		}
		for !m.exited {
			if hasBP && m.CPU.EIP == bp && m.pending == nil {
				return 0
			}
			if err := m.Step(); err != nil {
				L.Push(lua.LString(err.Error()))
				return 1
			}
		}
		return 0
	})

	reg("key", func(L *lua.LState) int {
		vk := uint32(L.CheckNumber(1))
		m.user32.PostMessage(guestMsg{message: wmKeyDown, wParam: vk})
		m.user32.PostMessage(guestMsg{message: wmKeyUp, wParam: vk})
		return 0
	})

	reg("exited", func(L *lua.LState) int {
		L.Push(lua.LBool(m.exited))
		return 1
	})

	reg("trace", func(L *lua.LState) int {
		traceInit(L.CheckString(1))
		return 0
	})

	reg("print", func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.Get(i).String())
		}
		fmt.Fprintln(m.Stdout, strings.Join(parts, "\t"))
		return 0
	})
}

// regByName maps a register name to its storage.
func regByName(c *CPU_X86, name string) (*uint32, bool) {
	switch name {
	case "eax":
		return &c.EAX, true
	case "ebx":
		return &c.EBX, true
	case "ecx":
		return &c.ECX, true
	case "edx":
		return &c.EDX, true
	case "esi":
		return &c.ESI, true
	case "edi":
		return &c.EDI, true
	case "ebp":
		return &c.EBP, true
	case "esp":
		return &c.ESP, true
	case "eip":
		return &c.EIP, true
	case "eflags":
		return &c.Flags, true
	}
	return nil, false
}
