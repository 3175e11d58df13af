// win32_shlwapi.go - shlwapi.dll shims
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import "strings"

func shlwapiDLL() *BuiltinDLL {
	return &BuiltinDLL{
		FileName: "shlwapi.dll",
		Shims: []*Shim{
			{Name: "PathRemoveFileSpecA", ArgWords: 1, Handler: Handler{Sync: shimPathRemoveFileSpecA}},
		},
	}
}

// shimPathRemoveFileSpecA truncates the path at its last separator,
// mutating the caller's buffer in place. Returns 1 if anything was
// removed.
func shimPathRemoveFileSpecA(m *Machine, args *StackArgs) (uint32, error) {
	ptr := args.U32(0)
	if ptr == 0 {
		return 0, nil
	}
	path, err := m.Mem.SliceZ(ptr)
	if err != nil {
		return 0, err
	}
	cut := strings.LastIndexByte(string(path), '\\')
	if cut < 0 {
		if len(path) == 0 {
			return 0, nil
		}
		path[0] = 0
		return 1, nil
	}
	// "C:\x" keeps its root slash.
	if cut == 2 && len(path) > 1 && path[1] == ':' {
		cut++
	}
	if cut >= len(path) {
		return 0, nil
	}
	path[cut] = 0
	return 1, nil
}
