// audio_backend_oto.go - Oto playback backend for the winmm wave path
//
// The guest's waveOutWrite buffers are appended to a queue; an oto player
// streams the queue, substituting silence when it runs dry so the device
// stays open.
//
// (c) 2025-2026 Evan Martin - GPLv3 or later

package main

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

type OtoAudio struct {
	ctx    *oto.Context
	player *oto.Player
	queue  *pcmQueue
}

// pcmQueue is the io.Reader the oto player pulls from.
type pcmQueue struct {
	mu  sync.Mutex
	buf []byte
}

func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		// Silence keeps the stream rolling between guest writes.
		clear(p)
		return len(p), nil
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

func (q *pcmQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func NewOtoAudio() (*OtoAudio, error) {
	op := &oto.NewContextOptions{
		SampleRate:   44100,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, &HostError{Operation: "audio init", Err: err}
	}
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
	}
	q := &pcmQueue{}
	player := ctx.NewPlayer(q)
	player.Play()
	return &OtoAudio{ctx: ctx, player: player, queue: q}, nil
}

// Queue implements HostAudio.
func (a *OtoAudio) Queue(pcm []byte) {
	a.queue.mu.Lock()
	a.queue.buf = append(a.queue.buf, pcm...)
	a.queue.mu.Unlock()
}

// Playing implements HostAudio.
func (a *OtoAudio) Playing() bool {
	return a.queue.pending() > 0
}
