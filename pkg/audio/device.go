package audio

import "time"

// OutputDevice abstracts the audio output hardware the scheduler plays
// through. Implementations own the device clock: Now is the playback
// position reference that scheduling decisions are made against, and
// Start begins playing a decoded waveform at a given device time.
//
// The Scheduler is the only consumer. It injects the device through its
// constructor so tests can substitute a fake and so multiple schedulers
// never contend for one physical device implicitly.
type OutputDevice interface {
	// Now returns the current device time. It must be monotonic.
	Now() time.Duration

	// Start schedules samples (mono, at the device's configured sample
	// rate) to begin playing at device time "at". The returned unit can
	// be halted before it finishes. onEnded fires exactly once when the
	// unit finishes naturally; it must not fire for halted units and
	// must not be invoked from inside Start.
	Start(samples []float32, at time.Duration, onEnded func()) (PlaybackUnit, error)

	// Close releases the device. Best-effort; called on teardown.
	Close() error
}

// PlaybackUnit is one scheduled, owned playback handle. The scheduler
// keeps every unit from the moment it is scheduled until its onEnded
// callback fires or it is forcibly halted.
type PlaybackUnit interface {
	// Halt stops the unit immediately and releases its resources.
	// Halting a finished unit is a no-op.
	Halt()
}

// InputDevice abstracts microphone capture. Implementations deliver
// fixed-size frames of mono PCM-16 bytes at CaptureSampleRate through
// the callback until Stop is called. Frames are delivered serially.
type InputDevice interface {
	// Start begins capture. A PermissionDenied-class failure is
	// returned from Start itself, not through the frame callback.
	Start(onFrame func(pcm []byte)) error

	// Stop ends capture and releases the microphone. Idempotent.
	Stop() error
}
