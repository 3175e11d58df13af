// main.go - wwwin32 entry point
//
// Loads a 32-bit Windows executable and interprets it. By default the
// ebiten window and oto audio backends are used; -headless swaps in the
// in-memory backends for scripted or automated runs.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"fmt"
	"os"
)

func usage() {
	fmt.Println("Usage: wwwin32 [-headless] [-monitor] [-trace categories] [-script file.lua] program.exe")
	fmt.Println("  -trace categories   comma-separated trace gates (shim,ddraw,user32,pe,* ...)")
	os.Exit(1)
}

func main() {
	headless := false
	monitor := false
	script := ""
	exePath := ""

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-headless":
			headless = true
		case "-monitor":
			monitor = true
		case "-trace":
			i++
			if i >= len(args) {
				usage()
			}
			traceInit(args[i])
		case "-script":
			i++
			if i >= len(args) {
				usage()
			}
			script = args[i]
		default:
			if exePath != "" {
				usage()
			}
			exePath = args[i]
		}
	}
	if exePath == "" {
		usage()
	}

	data, err := os.ReadFile(exePath)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", exePath, err)
		os.Exit(1)
	}

	clock := NewSystemClock()

	if headless || monitor || script != "" {
		m := NewMachine(&HeadlessSurfaceFactory{}, os.Stdout, clock, &HeadlessAudio{})
		loadAndRun(m, exePath, data, monitor, script)
		return
	}

	// Windowed: ebiten owns the main goroutine, the machine runs on its
	// own.
	video := NewEbitenOutput("wwwin32 - " + exePath)
	var audio HostAudio
	if oto, err := NewOtoAudio(); err == nil {
		audio = oto
	} else {
		fmt.Printf("Audio unavailable (%v), continuing silent\n", err)
		audio = &HeadlessAudio{}
	}

	m := NewMachine(video, os.Stdout, clock, audio)
	m.Input = video

	img, err := LoadPE(m, data)
	if err != nil {
		fmt.Printf("Error loading %s: %v\n", exePath, err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %s at 0x%08X, entry 0x%08X, %d imports\n",
		exePath, img.Base, img.EntryPoint, img.Imports)

	go func() {
		if err := m.Run(); err != nil {
			fmt.Printf("Guest fault: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Guest exited with code %d\n", m.ExitCode)
		os.Exit(int(m.ExitCode))
	}()

	if err := video.Run(); err != nil {
		fmt.Printf("Video backend: %v\n", err)
		os.Exit(1)
	}
	m.Cancel()
}

func loadAndRun(m *Machine, exePath string, data []byte, monitor bool, script string) {
	img, err := LoadPE(m, data)
	if err != nil {
		fmt.Printf("Error loading %s: %v\n", exePath, err)
		os.Exit(1)
	}
	tracef("pe", "loaded %s at 0x%08X entry 0x%08X", exePath, img.Base, img.EntryPoint)

	if script != "" {
		if err := RunScript(m, script); err != nil {
			fmt.Printf("Script error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if monitor {
		if err := NewMonitor(m).Run(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := m.Run(); err != nil {
		fmt.Printf("Guest fault: %v\n", err)
		os.Exit(1)
	}
	os.Exit(int(m.ExitCode))
}
