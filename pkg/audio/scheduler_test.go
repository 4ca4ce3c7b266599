package audio

import (
	"sync"
	"testing"
	"time"
)

// fakeUnit records the halt call the scheduler issues on Stop.
type fakeUnit struct {
	samples []float32
	startAt time.Duration
	onEnded func()
	halted  bool
}

func (u *fakeUnit) Halt() { u.halted = true }

// fakeDevice is a manually-clocked OutputDevice. Tests advance the
// clock and complete units explicitly, so no real audio or sleeping is
// involved.
type fakeDevice struct {
	mu    sync.Mutex
	now   time.Duration
	units []*fakeUnit
}

func (d *fakeDevice) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

func (d *fakeDevice) Start(samples []float32, at time.Duration, onEnded func()) (PlaybackUnit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := &fakeUnit{samples: samples, startAt: at, onEnded: onEnded}
	d.units = append(d.units, u)
	return u, nil
}

func (d *fakeDevice) Close() error { return nil }

func (d *fakeDevice) advance(by time.Duration) {
	d.mu.Lock()
	d.now += by
	d.mu.Unlock()
}

// finish fires the completion callback of unit i, as the real device
// would when the unit plays out naturally.
func (d *fakeDevice) finish(i int) {
	d.mu.Lock()
	u := d.units[i]
	d.mu.Unlock()
	u.onEnded()
}

func (d *fakeDevice) unitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.units)
}

// recordingListener counts scheduler signals.
type recordingListener struct {
	mu      sync.Mutex
	started int
	stopped int
	dropped []string
}

func (l *recordingListener) PlaybackStarted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
}

func (l *recordingListener) PlaybackStopped() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped++
}

func (l *recordingListener) ChunkDropped(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropped = append(l.dropped, reason)
}

func (l *recordingListener) counts() (started, stopped, dropped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started, l.stopped, len(l.dropped)
}

// oneSecondChunk is 24000 samples of PCM-16 bytes: exactly one second
// of audio at the playback rate.
func oneSecondChunk() []byte {
	return make([]byte, PlaybackSampleRate*2)
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeDevice, *recordingListener) {
	t.Helper()
	device := &fakeDevice{}
	s := NewScheduler(device, WithRestartGrace(25*time.Millisecond))
	listener := &recordingListener{}
	s.AddListener(listener)
	return s, device, listener
}

func TestScheduleChunkGapless(t *testing.T) {
	s, device, _ := newTestScheduler(t)

	// Three one-second chunks scheduled back-to-back with no delay.
	for i := 0; i < 3; i++ {
		s.ScheduleChunk(oneSecondChunk())
	}

	if device.unitCount() != 3 {
		t.Fatalf("Expected 3 units, got %d", device.unitCount())
	}

	// Each unit starts exactly when the previous one ends.
	for i, u := range device.units {
		want := time.Duration(i) * time.Second
		if u.startAt != want {
			t.Errorf("Unit %d starts at %v, want %v", i, u.startAt, want)
		}
	}

	if got := s.Cursor(); got != 3*time.Second {
		t.Errorf("Cursor advanced to %v, want exactly 3s", got)
	}
}

func TestScheduleChunkClampsBehindRealTime(t *testing.T) {
	s, device, _ := newTestScheduler(t)

	s.ScheduleChunk(oneSecondChunk())

	// Real time passes the cursor: next chunk must start at real time,
	// introducing a gap instead of overlapping.
	device.advance(2500 * time.Millisecond)
	s.ScheduleChunk(oneSecondChunk())

	second := device.units[1]
	if second.startAt != 2500*time.Millisecond {
		t.Errorf("Clamped unit starts at %v, want %v", second.startAt, 2500*time.Millisecond)
	}
	if got := s.Cursor(); got != 3500*time.Millisecond {
		t.Errorf("Cursor = %v, want %v", got, 3500*time.Millisecond)
	}
}

func TestStartedStoppedSignalExactness(t *testing.T) {
	s, device, listener := newTestScheduler(t)

	s.ScheduleChunk(oneSecondChunk())
	s.ScheduleChunk(oneSecondChunk())

	started, stopped, _ := listener.counts()
	if started != 1 {
		t.Errorf("Expected exactly 1 started signal for a contiguous run, got %d", started)
	}
	if stopped != 0 {
		t.Errorf("Expected no stopped signal while units are in flight, got %d", stopped)
	}

	device.finish(0)
	if _, stopped, _ := listener.counts(); stopped != 0 {
		t.Errorf("Stopped fired with a unit still in flight (%d times)", stopped)
	}

	device.finish(1)
	started, stopped, _ = listener.counts()
	if started != 1 || stopped != 1 {
		t.Errorf("Expected 1 started / 1 stopped, got %d / %d", started, stopped)
	}
	if s.Active() {
		t.Error("Scheduler still reports active after all units completed")
	}
}

func TestStopHaltsAllInflightUnits(t *testing.T) {
	s, device, listener := newTestScheduler(t)

	s.ScheduleChunk(oneSecondChunk())
	s.ScheduleChunk(oneSecondChunk())
	device.advance(300 * time.Millisecond)

	s.Stop()

	for i, u := range device.units {
		if !u.halted {
			t.Errorf("Unit %d not halted by Stop", i)
		}
	}
	if s.Active() {
		t.Error("Scheduler reports active after Stop")
	}
	if got := s.Cursor(); got != 300*time.Millisecond {
		t.Errorf("Cursor reset to %v, want current device time %v", got, 300*time.Millisecond)
	}

	_, stopped, _ := listener.counts()
	if stopped != 1 {
		t.Errorf("Expected a single stopped signal from Stop, got %d", stopped)
	}
}

func TestStopWithNothingInFlight(t *testing.T) {
	s, _, listener := newTestScheduler(t)

	s.Stop()

	if s.Active() {
		t.Error("Scheduler reports active after Stop")
	}
	if _, stopped, _ := listener.counts(); stopped != 1 {
		t.Errorf("Expected stopped signal even with nothing in flight, got %d", stopped)
	}
}

func TestRestartGraceDropsThenAccepts(t *testing.T) {
	s, device, listener := newTestScheduler(t)

	s.ScheduleChunk(oneSecondChunk())
	s.Stop()

	// Inside the grace window: dropped silently.
	s.ScheduleChunk(oneSecondChunk())
	if device.unitCount() != 1 {
		t.Fatalf("Chunk scheduled during grace window: %d units", device.unitCount())
	}
	_, _, dropped := listener.counts()
	if dropped != 1 {
		t.Errorf("Expected 1 dropped chunk, got %d", dropped)
	}
	if listener.dropped[0] != DropReasonStopped {
		t.Errorf("Expected drop reason %q, got %q", DropReasonStopped, listener.dropped[0])
	}

	// After the grace elapses an identical call must succeed.
	deadline := time.Now().Add(time.Second)
	for s.IsStopped() {
		if time.Now().After(deadline) {
			t.Fatal("Scheduler never left the stopped state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.ScheduleChunk(oneSecondChunk())
	if device.unitCount() != 2 {
		t.Errorf("Chunk not accepted after grace elapsed: %d units", device.unitCount())
	}
}

func TestMalformedChunkDropped(t *testing.T) {
	s, device, listener := newTestScheduler(t)

	before := s.Cursor()
	s.ScheduleChunk([]byte{0x01, 0x02, 0x03}) // odd length

	if device.unitCount() != 0 {
		t.Error("Malformed chunk produced a playback unit")
	}
	if s.Cursor() != before {
		t.Error("Malformed chunk mutated the cursor")
	}

	started, stopped, dropped := listener.counts()
	if started != 0 || stopped != 0 {
		t.Errorf("Malformed chunk emitted playback signals: %d started, %d stopped", started, stopped)
	}
	if dropped != 1 || listener.dropped[0] != DropReasonMalformed {
		t.Errorf("Expected one malformed drop, got %v", listener.dropped)
	}
}

func TestZeroLengthChunkIsNoop(t *testing.T) {
	s, device, listener := newTestScheduler(t)

	s.ScheduleChunk(nil)
	s.ScheduleChunk([]byte{})

	if device.unitCount() != 0 {
		t.Error("Zero-length chunk produced a playback unit")
	}
	started, stopped, dropped := listener.counts()
	if started != 0 || stopped != 0 || dropped != 0 {
		t.Errorf("Zero-length chunk emitted signals: %d/%d/%d", started, stopped, dropped)
	}
}

func TestInterruptionWithTwoUnitsInFlight(t *testing.T) {
	s, device, listener := newTestScheduler(t)

	s.ScheduleChunk(oneSecondChunk())
	s.ScheduleChunk(oneSecondChunk())

	// The interruption path is Stop: both units must be forcibly
	// stopped with a single stopped signal.
	s.Stop()

	if !device.units[0].halted || !device.units[1].halted {
		t.Error("Expected both in-flight units halted")
	}
	started, stopped, _ := listener.counts()
	if started != 1 {
		t.Errorf("Expected 1 started signal, got %d", started)
	}
	if stopped != 1 {
		t.Errorf("Expected exactly 1 stopped signal, got %d", stopped)
	}
	if s.Active() {
		t.Error("Scheduler active after interruption")
	}
}
