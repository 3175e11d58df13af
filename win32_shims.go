// win32_shims.go - Win32 shim dispatch through trampoline addresses
//
// Every Win32 export the emulator implements is a Shim: a host function
// plus the stdcall stack-argument footprint the guest compiled against.
// The PE loader patches import-table slots with trampoline addresses out
// of a reserved range no PE image can map; when the step loop's next EIP
// lands in that range, the dispatcher runs the shim instead of decoding,
// then simulates the callee-pops return.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import "fmt"

// Trampoline address space: one address per shim, 4-byte stride. The
// loader rejects images whose mapped range reaches this high, so the
// range is disjoint from all guest code and data.
const (
	trampolineBase = 0xFFFF0000
	trampolineMax  = 0xFFFFFFFF
)

// UnimplementedError reports a guest call into an export with no handler.
type UnimplementedError struct {
	DLL string
	Fn  string
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("unimplemented win32 call: %s!%s", e.DLL, e.Fn)
}

// BadArgError reports shim-level argument validation failure.
type BadArgError struct {
	Fn  string
	Arg string
}

func (e *BadArgError) Error() string {
	return fmt.Sprintf("bad argument to %s: %s", e.Fn, e.Arg)
}

// SyncHandler runs to completion inline and yields the EAX return value.
type SyncHandler func(m *Machine, args *StackArgs) (uint32, error)

// AsyncHandler starts an operation and returns a poll closure; the step
// loop parks the guest until the poll reports completion, then finishes
// the call as if the shim had returned normally.
type AsyncHandler func(m *Machine, args *StackArgs) (func() (uint32, bool), error)

// Handler is either Sync or Async (exactly one non-nil).
type Handler struct {
	Sync  SyncHandler
	Async AsyncHandler
}

// Shim is a named host implementation of a Win32 export.
type Shim struct {
	Name string
	// ArgWords is the number of 4-byte stack argument slots; stdcall
	// dispatch pops this many words on return.
	ArgWords int
	// Cdecl marks caller-cleanup exports; dispatch then pops only the
	// return address.
	Cdecl   bool
	Handler Handler
}

// BuiltinDLL maps export names to shims for one DLL.
type BuiltinDLL struct {
	FileName string
	Shims    []*Shim
}

func (d *BuiltinDLL) find(name string) *Shim {
	for _, s := range d.Shims {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// StackArgs reads stdcall arguments off the guest stack in left-to-right
// order. Read failures latch into err as a BadArgError so shim bodies can
// stay linear and check once.
type StackArgs struct {
	m    *Machine
	fn   string
	base uint32
	err  error
}

func (m *Machine) stackArgs(fn string, base uint32) *StackArgs {
	return &StackArgs{m: m, fn: fn, base: base}
}

// U32 returns argument slot i as an integer (or pointer) value.
func (a *StackArgs) U32(i int) uint32 {
	v, err := a.m.Mem.Get32(a.base + 4*uint32(i))
	if err != nil && a.err == nil {
		a.err = &BadArgError{Fn: a.fn, Arg: fmt.Sprintf("#%d: %v", i, err)}
	}
	return v
}

// Str dereferences argument slot i as a pointer to a NUL-terminated
// string. A null pointer yields the empty string.
func (a *StackArgs) Str(i int) string {
	ptr := a.U32(i)
	if ptr == 0 {
		return ""
	}
	s, err := a.m.Mem.CString(ptr)
	if err != nil && a.err == nil {
		a.err = &BadArgError{Fn: a.fn, Arg: fmt.Sprintf("#%d: %v", i, err)}
	}
	return s
}

// Err returns the first argument-read failure, if any.
func (a *StackArgs) Err() error {
	return a.err
}

// pendingShim is an async call in flight: the poll closure plus the state
// needed to complete the stdcall return once it resolves.
type pendingShim struct {
	shim    *Shim
	poll    func() (uint32, bool)
	retAddr uint32
}

// registerShim assigns the shim a trampoline address.
func (m *Machine) registerShim(s *Shim) uint32 {
	addr := trampolineBase + 4*uint32(len(m.shims))
	m.shims = append(m.shims, s)
	return addr
}

// RegisterDLL registers every shim of a builtin DLL and records the
// name-to-trampoline mapping the PE loader resolves imports against.
func (m *Machine) RegisterDLL(dll *BuiltinDLL) {
	exports := make(map[string]uint32, len(dll.Shims))
	for _, s := range dll.Shims {
		exports[s.Name] = m.registerShim(s)
	}
	m.dlls[dll.FileName] = dll
	m.exports[dll.FileName] = exports
}

// resolveImport returns the trampoline for dll!name, synthesizing an
// always-faulting shim for exports with no handler so the import table
// can be satisfied; the fault fires only if the guest actually calls it.
func (m *Machine) resolveImport(dllName, name string) uint32 {
	if exports, ok := m.exports[dllName]; ok {
		if addr, ok := exports[name]; ok {
			return addr
		}
	}
	dll, fn := dllName, name
	addr := m.registerShim(&Shim{
		Name: name,
		Handler: Handler{Sync: func(m *Machine, args *StackArgs) (uint32, error) {
			return 0, &UnimplementedError{DLL: dll, Fn: fn}
		}},
	})
	if m.exports[dllName] == nil {
		m.exports[dllName] = make(map[string]uint32)
	}
	m.exports[dllName][name] = addr
	return addr
}

// shimForAddr looks up the shim assigned to a trampoline address.
func (m *Machine) shimForAddr(addr uint32) *Shim {
	idx := (addr - trampolineBase) / 4
	if addr < trampolineBase || addr&3 != 0 || int(idx) >= len(m.shims) {
		return nil
	}
	return m.shims[idx]
}

// callShim dispatches the trampoline at the CPU's current EIP. The guest
// has just executed a call, so [ESP] is the return address and the
// stdcall arguments start at ESP+4.
func (m *Machine) callShim(addr uint32) error {
	shim := m.shimForAddr(addr)
	if shim == nil {
		return &UnimplementedError{DLL: "?", Fn: fmt.Sprintf("trampoline 0x%08X", addr)}
	}

	retAddr, err := m.Mem.Get32(m.CPU.ESP)
	if err != nil {
		return err
	}
	args := m.stackArgs(shim.Name, m.CPU.ESP+4)

	tracef("shim", "%s(%d args) from 0x%08X", shim.Name, shim.ArgWords, retAddr)

	if shim.Handler.Sync != nil {
		ret, err := shim.Handler.Sync(m, args)
		if err != nil {
			return err
		}
		if err := args.Err(); err != nil {
			return err
		}
		m.finishShim(shim, retAddr, ret)
		tracef("shim", "%s -> 0x%X", shim.Name, ret)
		return nil
	}

	poll, err := shim.Handler.Async(m, args)
	if err != nil {
		return err
	}
	if err := args.Err(); err != nil {
		return err
	}
	m.pending = &pendingShim{shim: shim, poll: poll, retAddr: retAddr}
	return nil
}

// finishShim writes the return value and simulates `ret imm16`: EIP is
// restored from the saved return address and the callee pops its
// arguments (stdcall), or just the return address (cdecl).
func (m *Machine) finishShim(shim *Shim, retAddr, ret uint32) {
	m.CPU.EAX = ret
	m.CPU.EIP = retAddr
	pop := uint32(4)
	if !shim.Cdecl {
		pop += 4 * uint32(shim.ArgWords)
	}
	m.CPU.ESP += pop
}
