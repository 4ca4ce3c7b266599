package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoDevice is the production OutputDevice backed by the oto playback
// library. The operating system mixer resamples from the configured
// source rate automatically, so the device is created at the model's
// output rate and fed decoded waveforms directly.
//
// oto exposes no end-of-playback callback, so unit completion is driven
// by wall-clock timers computed from sample counts. The device clock is
// wall time since the device was opened.
type OtoDevice struct {
	ctx        *oto.Context
	epoch      time.Time
	sampleRate int
}

// NewOtoDevice opens the default audio output at the given sample rate,
// mono, 16-bit. It blocks until the platform audio stack is ready.
func NewOtoDevice(sampleRate int) (*OtoDevice, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}
	<-ready

	return &OtoDevice{
		ctx:        ctx,
		epoch:      time.Now(),
		sampleRate: sampleRate,
	}, nil
}

// Now returns time elapsed since the device was opened.
func (d *OtoDevice) Now() time.Duration {
	return time.Since(d.epoch)
}

// Start schedules samples to begin playing at device time at. If at is
// already in the past the unit starts immediately.
func (d *OtoDevice) Start(samples []float32, at time.Duration, onEnded func()) (PlaybackUnit, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot start empty playback unit")
	}

	pcm := PCM16ToBytes(FloatToPCM16(samples))
	duration := time.Duration(len(samples)) * time.Second / time.Duration(d.sampleRate)

	u := &otoUnit{onEnded: onEnded}

	delay := at - d.Now()
	if delay < 0 {
		delay = 0
	}

	u.mu.Lock()
	u.startTimer = time.AfterFunc(delay, func() {
		u.mu.Lock()
		if u.halted {
			u.mu.Unlock()
			return
		}
		u.player = d.ctx.NewPlayer(bytes.NewReader(pcm))
		u.player.Play()
		// Small margin so the OS buffer drains before we declare the end.
		u.endTimer = time.AfterFunc(duration+20*time.Millisecond, u.finish)
		u.mu.Unlock()
	})
	u.mu.Unlock()

	return u, nil
}

// Close suspends the audio context. oto contexts cannot be destroyed,
// so suspension is the closest available release.
func (d *OtoDevice) Close() error {
	return d.ctx.Suspend()
}

// otoUnit is one scheduled oto playback. It owns its player and the two
// timers that drive its lifecycle.
type otoUnit struct {
	mu         sync.Mutex
	player     *oto.Player
	startTimer *time.Timer
	endTimer   *time.Timer
	halted     bool
	done       bool
	onEnded    func()
}

func (u *otoUnit) finish() {
	u.mu.Lock()
	if u.halted || u.done {
		u.mu.Unlock()
		return
	}
	u.done = true
	if u.player != nil {
		_ = u.player.Close()
		u.player = nil
	}
	onEnded := u.onEnded
	u.mu.Unlock()

	if onEnded != nil {
		onEnded()
	}
}

// Halt stops the unit whether or not it has started playing. Halted
// units never fire onEnded.
func (u *otoUnit) Halt() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.halted || u.done {
		return
	}
	u.halted = true

	if u.startTimer != nil {
		u.startTimer.Stop()
	}
	if u.endTimer != nil {
		u.endTimer.Stop()
	}
	if u.player != nil {
		_ = u.player.Close()
		u.player = nil
	}
}
