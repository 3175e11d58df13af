// win32_kernel32.go - kernel32.dll shims
//
// Process, module, heap, console and time services. The Thread
// Environment Block lives in a small guest allocation reachable through
// the FS segment base, which is all the access path guest code uses.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import "strings"

const (
	stdInputHandle  = 0x10
	stdOutputHandle = 0x11
	stdErrorHandle  = 0x12

	heapZeroMemory = 0x8

	invalidHandleValue = 0xFFFFFFFF
)

type kernel32State struct {
	processHeap *Heap
	tebAddr     uint32
	cmdLineAddr uint32
	lastError   uint32

	// module handle -> dll file name, for GetProcAddress
	modules    map[uint32]string
	nextModule uint32

	tlsSlots map[uint32]uint32
	nextTLS  uint32

	imageBase uint32
}

func newKernel32State() *kernel32State {
	return &kernel32State{
		modules:    make(map[uint32]string),
		nextModule: 0x10000000,
		tlsSlots:   make(map[uint32]uint32),
	}
}

// setup reserves the process heap, the TEB and the command line. Runs
// once at machine construction, before any guest code.
func (k *kernel32State) setup(m *Machine) {
	heap, err := m.NewHeap("kernel32 process heap", 0x40000)
	if err != nil {
		panic(err) // the fresh address space cannot be full
	}
	k.processHeap = heap

	teb, err := heap.Alloc(0x1000)
	if err != nil {
		panic(err)
	}
	k.tebAddr = teb
	// TEB self pointer, the field code actually reads through fs:[0x18].
	m.Mem.Put32(teb+0x18, teb)
	m.CPU.SetFSBase(teb)

	k.setCommandLine(m, "guest.exe")
}

func (k *kernel32State) setCommandLine(m *Machine, cmd string) {
	addr, err := k.processHeap.Alloc(uint32(len(cmd)) + 1)
	if err != nil {
		return
	}
	m.Mem.PutString(addr, cmd)
	k.cmdLineAddr = addr
}

// registerModule records a loaded module name and returns its handle.
func (k *kernel32State) registerModule(name string) uint32 {
	name = strings.ToLower(name)
	for h, n := range k.modules {
		if n == name {
			return h
		}
	}
	h := k.nextModule
	k.nextModule += 0x10000
	k.modules[h] = name
	return h
}

func kernel32DLL() *BuiltinDLL {
	return &BuiltinDLL{
		FileName: "kernel32.dll",
		Shims: []*Shim{
			{Name: "ExitProcess", ArgWords: 1, Handler: Handler{Sync: shimExitProcess}},
			{Name: "GetStdHandle", ArgWords: 1, Handler: Handler{Sync: shimGetStdHandle}},
			{Name: "WriteFile", ArgWords: 5, Handler: Handler{Sync: shimWriteFile}},
			{Name: "GetModuleHandleA", ArgWords: 1, Handler: Handler{Sync: shimGetModuleHandleA}},
			{Name: "LoadLibraryA", ArgWords: 1, Handler: Handler{Sync: shimLoadLibraryA}},
			{Name: "GetProcAddress", ArgWords: 2, Handler: Handler{Sync: shimGetProcAddress}},
			{Name: "GetCommandLineA", ArgWords: 0, Handler: Handler{Sync: shimGetCommandLineA}},
			{Name: "GetTickCount", ArgWords: 0, Handler: Handler{Sync: shimGetTickCount}},
			{Name: "QueryPerformanceCounter", ArgWords: 1, Handler: Handler{Sync: shimQueryPerformanceCounter}},
			{Name: "Sleep", ArgWords: 1, Handler: Handler{Async: shimSleep}},
			{Name: "GetProcessHeap", ArgWords: 0, Handler: Handler{Sync: shimGetProcessHeap}},
			{Name: "HeapCreate", ArgWords: 3, Handler: Handler{Sync: shimHeapCreate}},
			{Name: "HeapAlloc", ArgWords: 3, Handler: Handler{Sync: shimHeapAlloc}},
			{Name: "HeapFree", ArgWords: 3, Handler: Handler{Sync: shimHeapFree}},
			{Name: "VirtualAlloc", ArgWords: 4, Handler: Handler{Sync: shimVirtualAlloc}},
			{Name: "VirtualFree", ArgWords: 3, Handler: Handler{Sync: shimVirtualFree}},
			{Name: "GetLastError", ArgWords: 0, Handler: Handler{Sync: shimGetLastError}},
			{Name: "SetLastError", ArgWords: 1, Handler: Handler{Sync: shimSetLastError}},
			{Name: "GetVersion", ArgWords: 0, Handler: Handler{Sync: shimGetVersion}},
			{Name: "TlsAlloc", ArgWords: 0, Handler: Handler{Sync: shimTlsAlloc}},
			{Name: "TlsGetValue", ArgWords: 1, Handler: Handler{Sync: shimTlsGetValue}},
			{Name: "TlsSetValue", ArgWords: 2, Handler: Handler{Sync: shimTlsSetValue}},
		},
	}
}

// The TLS shims track one thread's slots; there is only one guest thread.
func shimTlsAlloc(m *Machine, args *StackArgs) (uint32, error) {
	k := m.kernel32
	slot := k.nextTLS
	k.nextTLS++
	k.tlsSlots[slot] = 0
	return slot, nil
}

func shimTlsGetValue(m *Machine, args *StackArgs) (uint32, error) {
	return m.kernel32.tlsSlots[args.U32(0)], nil
}

func shimTlsSetValue(m *Machine, args *StackArgs) (uint32, error) {
	k := m.kernel32
	slot := args.U32(0)
	if _, ok := k.tlsSlots[slot]; !ok {
		return 0, nil
	}
	k.tlsSlots[slot] = args.U32(1)
	return 1, nil
}

func shimExitProcess(m *Machine, args *StackArgs) (uint32, error) {
	m.Exit(args.U32(0))
	return 0, nil
}

func shimGetStdHandle(m *Machine, args *StackArgs) (uint32, error) {
	switch int32(args.U32(0)) {
	case -10:
		return stdInputHandle, nil
	case -11:
		return stdOutputHandle, nil
	case -12:
		return stdErrorHandle, nil
	}
	return invalidHandleValue, nil
}

func shimWriteFile(m *Machine, args *StackArgs) (uint32, error) {
	hFile := args.U32(0)
	buf := args.U32(1)
	n := args.U32(2)
	written := args.U32(3)
	if hFile != stdOutputHandle && hFile != stdErrorHandle {
		return 0, &BadArgError{Fn: "WriteFile", Arg: "hFile: only console handles are writable"}
	}
	data, err := m.Mem.View(buf, n)
	if err != nil {
		return 0, err
	}
	m.Stdout.Write(data)
	if written != 0 {
		if err := m.Mem.Put32(written, n); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func shimGetModuleHandleA(m *Machine, args *StackArgs) (uint32, error) {
	name := args.Str(0)
	if name == "" {
		return m.kernel32.imageBase, nil
	}
	return m.kernel32.registerModule(name), nil
}

func shimLoadLibraryA(m *Machine, args *StackArgs) (uint32, error) {
	name := strings.ToLower(args.Str(0))
	if !strings.HasSuffix(name, ".dll") {
		name += ".dll"
	}
	if _, ok := m.dlls[name]; ok {
		return m.kernel32.registerModule(name), nil
	}
	tracef("kernel32", "LoadLibraryA(%q): no builtin", name)
	return 0, nil
}

func shimGetProcAddress(m *Machine, args *StackArgs) (uint32, error) {
	hModule := args.U32(0)
	name := args.Str(1)
	dllName, ok := m.kernel32.modules[hModule]
	if !ok {
		return 0, nil
	}
	return m.resolveImport(dllName, name), nil
}

func shimGetCommandLineA(m *Machine, args *StackArgs) (uint32, error) {
	return m.kernel32.cmdLineAddr, nil
}

func shimGetTickCount(m *Machine, args *StackArgs) (uint32, error) {
	return m.Clock.Millis(), nil
}

func shimQueryPerformanceCounter(m *Machine, args *StackArgs) (uint32, error) {
	ptr := args.U32(0)
	if err := m.Mem.Put64(ptr, uint64(m.Clock.Millis())*1000); err != nil {
		return 0, err
	}
	return 1, nil
}

// shimSleep parks the guest until the host clock passes the deadline; the
// step loop keeps draining async completions meanwhile.
func shimSleep(m *Machine, args *StackArgs) (func() (uint32, bool), error) {
	deadline := m.Clock.Millis() + args.U32(0)
	return func() (uint32, bool) {
		return 0, m.Clock.Millis() >= deadline
	}, nil
}

func shimGetProcessHeap(m *Machine, args *StackArgs) (uint32, error) {
	return m.kernel32.processHeap.Base, nil
}

func shimHeapCreate(m *Machine, args *StackArgs) (uint32, error) {
	initial := args.U32(1)
	maximum := args.U32(2)
	size := maximum
	if size == 0 {
		size = initial
	}
	if size == 0 {
		size = 0x10000
	}
	heap, err := m.NewHeap("HeapCreate", size)
	if err != nil {
		return 0, err
	}
	return heap.Base, nil
}

func shimHeapAlloc(m *Machine, args *StackArgs) (uint32, error) {
	heap := m.HeapByHandle(args.U32(0))
	flags := args.U32(1)
	size := args.U32(2)
	if heap == nil {
		return 0, &BadArgError{Fn: "HeapAlloc", Arg: "hHeap: unknown heap"}
	}
	addr, err := heap.Alloc(size)
	if err != nil {
		return 0, err
	}
	if flags&heapZeroMemory != 0 {
		buf, err := m.Mem.View(addr, size)
		if err != nil {
			return 0, err
		}
		clear(buf)
	}
	return addr, nil
}

func shimHeapFree(m *Machine, args *StackArgs) (uint32, error) {
	if heap := m.HeapByHandle(args.U32(0)); heap != nil {
		heap.Free(args.U32(2))
	}
	return 1, nil
}

// shimVirtualAlloc serves page reservations out of an anonymous heap; the
// guest only ever sees addresses, not pages.
func shimVirtualAlloc(m *Machine, args *StackArgs) (uint32, error) {
	size := args.U32(1)
	heap, err := m.NewHeap("VirtualAlloc", (size+0xFFF)&^uint32(0xFFF))
	if err != nil {
		return 0, err
	}
	return heap.Base, nil
}

func shimVirtualFree(m *Machine, args *StackArgs) (uint32, error) {
	return 1, nil
}

func shimGetLastError(m *Machine, args *StackArgs) (uint32, error) {
	return m.kernel32.lastError, nil
}

func shimSetLastError(m *Machine, args *StackArgs) (uint32, error) {
	m.kernel32.lastError = args.U32(0)
	return 0, nil
}

func shimGetVersion(m *Machine, args *StackArgs) (uint32, error) {
	// Windows 98, the vintage the supported binaries target.
	return 0xC0000A04, nil
}
