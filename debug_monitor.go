// debug_monitor.go - Interactive single-key machine monitor
//
// Puts the controlling terminal into raw mode and drives the machine one
// keystroke at a time: step, inspect, run, dump. Only instantiated from
// main for interactive use; never in tests.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

type Monitor struct {
	m *Machine
}

func NewMonitor(m *Machine) *Monitor {
	return &Monitor{m: m}
}

// Run owns the step loop in monitor mode. Commands:
//
//	s  step one instruction (or shim dispatch) and show registers
//	r  show registers
//	d  dump memory at EIP
//	g  run freely until exit or fault
//	t  toggle shim tracing
//	q  quit
func (mon *Monitor) Run() error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return &HostError{Operation: "monitor raw mode", Err: err}
	}
	defer term.Restore(fd, oldState)

	mon.printRegs()
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return err
		}
		switch buf[0] {
		case 's':
			if err := mon.m.Step(); err != nil {
				mon.printf("fault: %v", err)
				return err
			}
			mon.printRegs()
			if mon.m.exited {
				mon.printf("exited with code %d", mon.m.ExitCode)
				return nil
			}
		case 'r':
			mon.printRegs()
		case 'd':
			mon.dump(mon.m.CPU.EIP, 64)
		case 'g':
			term.Restore(fd, oldState)
			err := mon.m.Run()
			term.MakeRaw(fd)
			if err != nil {
				mon.printf("fault: %v", err)
				return err
			}
			mon.printf("exited with code %d", mon.m.ExitCode)
			return nil
		case 't':
			if traceEnabled("shim") {
				delete(traceCategories, "shim")
				mon.printf("shim trace off")
			} else {
				traceCategories["shim"] = true
				mon.printf("shim trace on")
			}
		case 'q', 3: // q or ^C
			return nil
		}
	}
}

// printf writes a line with the \r\n raw mode needs.
func (mon *Monitor) printf(format string, args ...any) {
	fmt.Printf(format+"\r\n", args...)
}

func (mon *Monitor) printRegs() {
	c := mon.m.CPU
	mon.printf("EAX=%08X EBX=%08X ECX=%08X EDX=%08X", c.EAX, c.EBX, c.ECX, c.EDX)
	mon.printf("ESI=%08X EDI=%08X EBP=%08X ESP=%08X", c.ESI, c.EDI, c.EBP, c.ESP)
	mon.printf("EIP=%08X FLAGS=%08X [CF=%t ZF=%t SF=%t OF=%t]",
		c.EIP, c.Flags, c.CF(), c.ZF(), c.SF(), c.OF())
}

func (mon *Monitor) dump(addr uint32, n uint32) {
	view, err := mon.m.Mem.View(addr, n)
	if err != nil {
		mon.printf("dump: %v", err)
		return
	}
	for ofs := 0; ofs < len(view); ofs += 16 {
		end := ofs + 16
		if end > len(view) {
			end = len(view)
		}
		mon.printf("%08X  % X", addr+uint32(ofs), view[ofs:end])
	}
}
