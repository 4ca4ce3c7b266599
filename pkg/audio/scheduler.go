package audio

import (
	"sync"
	"time"

	"github.com/kingwiss/Chronos/pkg/logging"
)

var schedulerLog *logging.Logger

func init() {
	var err error
	schedulerLog, err = logging.NewLogger("audio")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		schedulerLog.Warnf("Failed to initialize audio logger, using stderr fallback: %v", err)
	}
}

// DefaultRestartGrace is the pause after Stop before new chunks are
// accepted again. It absorbs late-arriving chunks from a request that
// was just cancelled so they cannot restart playback right after an
// intentional stop. This is a race-avoidance heuristic, not a
// guaranteed fix; the value has not been verified against every
// platform audio stack and may need tuning.
const DefaultRestartGrace = 200 * time.Millisecond

// Drop reasons reported through Listener.ChunkDropped.
const (
	DropReasonStopped   = "stopped"
	DropReasonMalformed = "malformed"
	DropReasonDevice    = "device"
)

// Listener observes scheduler signals. PlaybackStarted fires on every
// 0->1 transition of the in-flight count, PlaybackStopped on every
// return to 0 (and unconditionally on Stop). ChunkDropped fires for
// every chunk discarded without being scheduled, except zero-length
// chunks which are plain no-ops.
type Listener interface {
	PlaybackStarted()
	PlaybackStopped()
	ChunkDropped(reason string)
}

// Scheduler plays PCM chunks back-to-back on an output device. Chunks
// are scheduled in arrival order; each starts exactly when the previous
// one ends unless real time has already passed that point, in which
// case the start is clamped forward and a gap is accepted instead of
// overlap or distortion.
type Scheduler struct {
	device     OutputDevice
	sampleRate int
	grace      time.Duration

	mu       sync.Mutex
	cursor   time.Duration // device time the next unit should start at
	active   int
	stopped  bool
	stopGen  int // invalidates pending grace timers from earlier stops
	inflight map[PlaybackUnit]struct{}

	listeners []Listener
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRestartGrace overrides the post-stop grace period.
func WithRestartGrace(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.grace = d
	}
}

// WithSampleRate overrides the source sample rate used to compute chunk
// durations. The default is PlaybackSampleRate.
func WithSampleRate(rate int) SchedulerOption {
	return func(s *Scheduler) {
		s.sampleRate = rate
	}
}

// NewScheduler creates a scheduler that owns the given output device.
func NewScheduler(device OutputDevice, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		device:     device,
		sampleRate: PlaybackSampleRate,
		grace:      DefaultRestartGrace,
		inflight:   make(map[PlaybackUnit]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cursor = device.Now()
	return s
}

// AddListener registers a signal observer. Not safe to call
// concurrently with ScheduleChunk; register listeners before wiring the
// scheduler into a session.
func (s *Scheduler) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// ScheduleChunk decodes a little-endian PCM-16 byte buffer and schedules
// it to play immediately after everything already queued. Malformed
// chunks are logged and dropped without touching scheduler state. Chunks
// arriving while stopped (including the grace period after Stop) are
// silently dropped.
func (s *Scheduler) ScheduleChunk(data []byte) {
	samples, err := BytesToPCM16(data)
	if err != nil {
		schedulerLog.Warnf("Dropping malformed chunk: %v", err)
		s.notifyDropped(DropReasonMalformed)
		return
	}
	if len(samples) == 0 {
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.notifyDropped(DropReasonStopped)
		return
	}

	// Never schedule into the past: clamp the cursor forward and accept
	// a gap rather than overlapping the previous unit.
	if now := s.device.Now(); s.cursor < now {
		s.cursor = now
	}

	startAt := s.cursor
	duration := time.Duration(len(samples)) * time.Second / time.Duration(s.sampleRate)

	var unit PlaybackUnit
	unit, err = s.device.Start(PCM16ToFloat(samples), startAt, func() {
		s.unitEnded(&unit)
	})
	if err != nil {
		s.mu.Unlock()
		schedulerLog.Errorf("Failed to start playback unit: %v", err)
		s.notifyDropped(DropReasonDevice)
		return
	}

	s.inflight[unit] = struct{}{}
	s.cursor = startAt + duration
	s.active++
	started := s.active == 1
	s.mu.Unlock()

	if started {
		s.notifyStarted()
	}
}

// unitEnded is the completion handler registered with the device for
// each unit. Units halted by Stop never reach here; the device only
// fires onEnded for natural completion.
func (s *Scheduler) unitEnded(unit *PlaybackUnit) {
	s.mu.Lock()
	if _, ok := s.inflight[*unit]; !ok {
		// Already force-stopped and accounted for.
		s.mu.Unlock()
		return
	}
	delete(s.inflight, *unit)
	s.active--
	drained := s.active == 0
	s.mu.Unlock()

	if drained {
		s.notifyStopped()
	}
}

// Stop halts and releases every in-flight unit, resets the cursor to
// the current device time, and emits a single PlaybackStopped signal
// regardless of how many units were playing. New chunks are dropped
// until the grace period elapses.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.stopGen++
	gen := s.stopGen

	units := make([]PlaybackUnit, 0, len(s.inflight))
	for u := range s.inflight {
		units = append(units, u)
	}
	s.inflight = make(map[PlaybackUnit]struct{})
	s.active = 0
	s.cursor = s.device.Now()
	s.mu.Unlock()

	for _, u := range units {
		u.Halt()
	}

	s.notifyStopped()

	time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		if s.stopGen == gen {
			s.stopped = false
		}
		s.mu.Unlock()
	})
}

// Active reports whether any unit is currently in flight.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active > 0
}

// Cursor returns the device time at which the next chunk would start.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// IsStopped reports whether the scheduler is inside a stop (including
// the grace period) and dropping new chunks.
func (s *Scheduler) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) notifyStarted() {
	for _, l := range s.listeners {
		l.PlaybackStarted()
	}
}

func (s *Scheduler) notifyStopped() {
	for _, l := range s.listeners {
		l.PlaybackStopped()
	}
}

func (s *Scheduler) notifyDropped(reason string) {
	for _, l := range s.listeners {
		l.ChunkDropped(reason)
	}
}
