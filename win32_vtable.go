// win32_vtable.go - Synthetic COM vtables backed by shim trampolines
//
// A COM-style object handed to the guest is two guest allocations: a
// vtable of k consecutive dwords, each a shim trampoline address, and an
// object block whose first dword points at the vtable. The guest's
// object->vtable->method(object, ...) indirect call lands in the
// trampoline range and dispatches like any other shim. Method order is
// ABI: it is compiled into the guest, so each interface declares its
// slots as an ordered list.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

// VtableMethod is one slot of an interface: implemented slots carry a
// shim, the rest fault with UnimplementedError only when actually called.
type VtableMethod struct {
	Name string
	Shim *Shim
}

// method declares an implemented vtable slot.
func method(name string, argWords int, fn SyncHandler) VtableMethod {
	return VtableMethod{Name: name, Shim: &Shim{
		Name:     name,
		ArgWords: argWords,
		Handler:  Handler{Sync: fn},
	}}
}

// todoMethod declares a slot with no implementation.
func todoMethod(name string) VtableMethod {
	return VtableMethod{Name: name}
}

// BuildVtable allocates the vtable in guest memory and assigns every slot
// a trampoline. Method i lands at offset 4*i, which tests pin.
func (m *Machine) BuildVtable(iface string, heap *Heap, methods []VtableMethod) (uint32, error) {
	vtbl, err := heap.Alloc(uint32(len(methods)) * 4)
	if err != nil {
		return 0, err
	}
	for i, meth := range methods {
		shim := meth.Shim
		if shim == nil {
			ifaceName, methName := iface, meth.Name
			shim = &Shim{
				Name: iface + "::" + meth.Name,
				Handler: Handler{Sync: func(m *Machine, args *StackArgs) (uint32, error) {
					return 0, &UnimplementedError{DLL: ifaceName, Fn: methName}
				}},
			}
		} else if shim.Name == meth.Name {
			shim.Name = iface + "::" + meth.Name
		}
		addr := m.registerShim(shim)
		if err := m.Mem.Put32(vtbl+4*uint32(i), addr); err != nil {
			return 0, err
		}
	}
	return vtbl, nil
}

// NewComObject allocates an object block pointing at vtbl and returns its
// guest address, which doubles as the key for host-side per-object state.
func (m *Machine) NewComObject(heap *Heap, vtbl uint32) (uint32, error) {
	obj, err := heap.Alloc(4)
	if err != nil {
		return 0, err
	}
	if err := m.Mem.Put32(obj, vtbl); err != nil {
		return 0, err
	}
	return obj, nil
}
