// win32_winmm.go - winmm.dll shims
//
// Timer queries plus a minimal waveOut path: guest PCM buffers are copied
// out of guest memory and queued on the host audio sink.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

const (
	mmsyserrNoError = 0

	// WAVEHDR field offsets
	wavehdrData   = 0x00
	wavehdrLength = 0x04
	wavehdrFlags  = 0x10

	whdrDone = 0x1
)

type winmmState struct {
	waveOutOpen bool
}

func newWinmmState() *winmmState {
	return &winmmState{}
}

func winmmDLL() *BuiltinDLL {
	return &BuiltinDLL{
		FileName: "winmm.dll",
		Shims: []*Shim{
			{Name: "timeGetTime", ArgWords: 0, Handler: Handler{Sync: shimTimeGetTime}},
			{Name: "timeBeginPeriod", ArgWords: 1, Handler: Handler{Sync: shimReturn0}},
			{Name: "timeEndPeriod", ArgWords: 1, Handler: Handler{Sync: shimReturn0}},
			{Name: "waveOutOpen", ArgWords: 6, Handler: Handler{Sync: shimWaveOutOpen}},
			{Name: "waveOutPrepareHeader", ArgWords: 3, Handler: Handler{Sync: shimReturn0}},
			{Name: "waveOutUnprepareHeader", ArgWords: 3, Handler: Handler{Sync: shimReturn0}},
			{Name: "waveOutWrite", ArgWords: 3, Handler: Handler{Sync: shimWaveOutWrite}},
			{Name: "waveOutClose", ArgWords: 1, Handler: Handler{Sync: shimWaveOutClose}},
			{Name: "PlaySoundA", ArgWords: 3, Handler: Handler{Sync: shimPlaySoundA}},
		},
	}
}

func shimTimeGetTime(m *Machine, args *StackArgs) (uint32, error) {
	return m.Clock.Millis(), nil
}

func shimWaveOutOpen(m *Machine, args *StackArgs) (uint32, error) {
	phwo := args.U32(0)
	if phwo != 0 {
		if err := m.Mem.Put32(phwo, 1); err != nil {
			return 0, err
		}
	}
	m.winmm.waveOutOpen = true
	return mmsyserrNoError, nil
}

// shimWaveOutWrite copies the guest's WAVEHDR buffer to the host sink and
// marks the header done; playback latency is the host's problem.
func shimWaveOutWrite(m *Machine, args *StackArgs) (uint32, error) {
	pwh := args.U32(1)
	if !m.winmm.waveOutOpen {
		return 0, &BadArgError{Fn: "waveOutWrite", Arg: "hwo: device not open"}
	}
	data, err := m.Mem.Get32(pwh + wavehdrData)
	if err != nil {
		return 0, err
	}
	length, err := m.Mem.Get32(pwh + wavehdrLength)
	if err != nil {
		return 0, err
	}
	pcm, err := m.Mem.View(data, length)
	if err != nil {
		return 0, err
	}
	m.Audio.Queue(pcm)
	flags, _ := m.Mem.Get32(pwh + wavehdrFlags)
	if err := m.Mem.Put32(pwh+wavehdrFlags, flags|whdrDone); err != nil {
		return 0, err
	}
	return mmsyserrNoError, nil
}

func shimWaveOutClose(m *Machine, args *StackArgs) (uint32, error) {
	m.winmm.waveOutOpen = false
	return mmsyserrNoError, nil
}

func shimPlaySoundA(m *Machine, args *StackArgs) (uint32, error) {
	tracef("winmm", "PlaySoundA(%q)", args.Str(0))
	return 1, nil
}
