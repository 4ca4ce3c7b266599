package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kingwiss/Chronos/pkg/audio"
	"github.com/kingwiss/Chronos/pkg/logging"
	"github.com/kingwiss/Chronos/pkg/metrics"
	"github.com/kingwiss/Chronos/pkg/notes"
	"github.com/kingwiss/Chronos/pkg/types"
)

var voiceLog *logging.Logger

func init() {
	var err error
	voiceLog, err = logging.NewLogger("voice")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		voiceLog.Warnf("Failed to initialize voice logger, using stderr fallback: %v", err)
	}
}

// Session errors. Both are terminal for the current connection; the
// caller recovers by calling Connect again.
var (
	// ErrPermissionDenied means microphone access was refused. The
	// session never reached Open.
	ErrPermissionDenied = errors.New("microphone access denied")

	// ErrTransport wraps stream-level failures. The session moves to
	// StateErrored and does not reconnect on its own.
	ErrTransport = errors.New("realtime transport failure")

	// ErrAlreadyConnected is returned by Connect while a session is
	// connecting or open. Disconnect the previous session first.
	ErrAlreadyConnected = errors.New("session already connected")
)

// State is the session connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

// String returns a string representation of the session state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Scheduler is the playback half the session drives: model audio goes
// in via ScheduleChunk, interruptions flush it via Stop.
type Scheduler interface {
	ScheduleChunk(data []byte)
	Stop()
}

// Callbacks are how the session reports to its owner. All callbacks
// are invoked from the receive loop and must not block; nil callbacks
// are skipped.
type Callbacks struct {
	// OnNoteCreate handles a createNote tool call and returns the new
	// note's id.
	OnNoteCreate func(args CreateNoteArgs) (string, error)

	// OnNoteUpdate handles an updateNote tool call. Only non-nil
	// fields of the update are to be applied.
	OnNoteUpdate func(noteID string, update notes.Update) error

	// OnStatus reports connection status flips: true when the session
	// opens, false exactly once when it closes or fails.
	OnStatus func(open bool)

	// OnError surfaces session errors. Tool callback failures are
	// reported here but do not end the session.
	OnError func(err error)

	// OnAudioActivity reports whether model audio is currently
	// audible, debounced so short gaps between chunks don't flicker.
	OnAudioActivity func(active bool)
}

// Defaults used when no option overrides them.
const (
	DefaultModel          = "gemini-2.0-flash-live-001"
	DefaultVoiceName      = "Aoede"
	DefaultActivityWindow = 400 * time.Millisecond
)

// Session is the duplex voice session controller. Construct with
// NewSession, open with Connect, and tear down with Disconnect. A
// Session may be reconnected after Disconnect or a transport failure.
type Session struct {
	endpoint       string
	apiKey         string
	model          string
	voiceName      string
	activityWindow time.Duration

	dial      Dialer
	input     audio.InputDevice
	scheduler Scheduler
	callbacks Callbacks
	metrics   *metrics.Metrics
	sink      func(*types.SessionEvent)

	mu        sync.Mutex
	state     State
	stream    Stream
	closing   bool
	announced bool // OnStatus(true) was delivered for this connection

	activityMu    sync.Mutex
	activityTimer *time.Timer
	audible       bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithModel sets the realtime model name.
func WithModel(model string) SessionOption {
	return func(s *Session) {
		s.model = model
	}
}

// WithVoiceName sets the prebuilt voice for model speech.
func WithVoiceName(name string) SessionOption {
	return func(s *Session) {
		s.voiceName = name
	}
}

// WithActivityWindow sets how long the speaking indicator stays active
// after the last audio chunk.
func WithActivityWindow(window time.Duration) SessionOption {
	return func(s *Session) {
		if window > 0 {
			s.activityWindow = window
		}
	}
}

// WithDialer substitutes the stream dialer.
func WithDialer(dial Dialer) SessionOption {
	return func(s *Session) {
		s.dial = dial
	}
}

// WithMetrics records session counters on the given metrics.
func WithMetrics(m *metrics.Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithEventSink delivers session events to sink in emission order.
// The sink is invoked from session goroutines and must not block.
func WithEventSink(sink func(*types.SessionEvent)) SessionOption {
	return func(s *Session) {
		s.sink = sink
	}
}

// NewSession creates a session controller. The input device and
// scheduler are owned by the caller but driven exclusively by the
// session between Connect and Disconnect.
func NewSession(endpoint, apiKey string, input audio.InputDevice, scheduler Scheduler, callbacks Callbacks, opts ...SessionOption) *Session {
	s := &Session{
		endpoint:       endpoint,
		apiKey:         apiKey,
		model:          DefaultModel,
		voiceName:      DefaultVoiceName,
		activityWindow: DefaultActivityWindow,
		dial:           DialWebSocket,
		input:          input,
		scheduler:      scheduler,
		callbacks:      callbacks,
		state:          StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the realtime stream, completes the setup handshake,
// and starts microphone capture. focus and timeline seed the model's
// conversation context; both may be empty.
//
// Microphone refusal returns an error wrapping ErrPermissionDenied and
// leaves the session never-opened; stream failures return an error
// wrapping ErrTransport and leave the session in StateErrored. Both
// are also surfaced through OnError.
func (s *Session) Connect(ctx context.Context, focus string, timeline []notes.TimelineEntry) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateOpen {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.closing = false
	s.announced = false
	s.mu.Unlock()
	s.setStateMetric(StateConnecting)
	s.emit(types.NewSessionEvent(types.EventTypeSessionConnecting))

	stream, err := s.dial(ctx, withAPIKey(s.endpoint, s.apiKey))
	if err != nil {
		return s.connectFailed(fmt.Errorf("%w: %v", ErrTransport, err))
	}

	setup := &clientMessage{Setup: &setupMessage{
		Model: s.model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: &voiceConfig{
					PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: s.voiceName},
				},
			},
		},
		SystemInstruction: buildSystemInstruction(focus, timeline),
		Tools:             declaredTools(),
	}}
	if err := stream.Send(setup); err != nil {
		stream.Close()
		return s.connectFailed(fmt.Errorf("%w: setup send: %v", ErrTransport, err))
	}

	reply, err := stream.Receive()
	if err != nil {
		stream.Close()
		return s.connectFailed(fmt.Errorf("%w: handshake: %v", ErrTransport, err))
	}
	if reply.SetupComplete == nil {
		stream.Close()
		return s.connectFailed(fmt.Errorf("%w: handshake not acknowledged", ErrTransport))
	}

	if err := s.input.Start(s.sendFrame); err != nil {
		stream.Close()
		if !errors.Is(err, ErrPermissionDenied) {
			err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.setStateMetric(StateDisconnected)
		s.reportError(err)
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.state = StateOpen
	s.announced = true
	s.mu.Unlock()
	s.setStateMetric(StateOpen)
	if s.metrics != nil {
		s.metrics.SessionsOpened.Inc()
	}

	voiceLog.Infof("Session open: model=%s voice=%s", s.model, s.voiceName)
	s.emit(types.NewSessionEvent(types.EventTypeSessionOpen))
	if s.callbacks.OnStatus != nil {
		s.callbacks.OnStatus(true)
	}

	go s.readLoop(stream)
	return nil
}

// connectFailed moves a failed connection attempt to StateErrored and
// surfaces the error.
func (s *Session) connectFailed(err error) error {
	s.mu.Lock()
	s.state = StateErrored
	s.mu.Unlock()
	s.setStateMetric(StateErrored)
	if s.metrics != nil {
		s.metrics.SessionErrors.Inc()
	}
	s.emit(types.NewSessionEvent(types.EventTypeSessionError).WithError(err))
	s.reportError(err)
	return err
}

// Disconnect tears the session down: capture released, scheduler
// flushed, stream closed. Valid from any state and idempotent; the
// closed status is reported at most once per connection.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.closing = true
	stream := s.stream
	s.stream = nil
	announced := s.announced
	s.announced = false
	s.state = StateClosed
	s.mu.Unlock()
	s.setStateMetric(StateClosed)

	if err := s.input.Stop(); err != nil {
		voiceLog.Warnf("Failed to stop capture: %v", err)
	}
	s.scheduler.Stop()
	if stream != nil {
		if err := stream.Close(); err != nil {
			voiceLog.Warnf("Failed to close stream: %v", err)
		}
	}
	s.clearActivity()

	voiceLog.Infof("Session closed")
	s.emit(types.NewSessionEvent(types.EventTypeSessionClosed))
	if announced && s.callbacks.OnStatus != nil {
		s.callbacks.OnStatus(false)
	}
}

// sendFrame is the capture callback: one fixed-size PCM-16 frame per
// call, encoded and transmitted immediately with no batching.
func (s *Session) sendFrame(pcm []byte) {
	s.mu.Lock()
	stream := s.stream
	open := s.state == StateOpen
	s.mu.Unlock()
	if !open || stream == nil || len(pcm) == 0 {
		return
	}

	msg := &clientMessage{RealtimeInput: &realtimeInput{
		MediaChunks: []mediaChunk{{
			MimeType: captureMimeType,
			Data:     audio.EncodeBase64(pcm),
		}},
	}}
	if err := stream.Send(msg); err != nil {
		// The receive loop observes the same failure and tears down.
		voiceLog.Warnf("Failed to send capture frame: %v", err)
		return
	}
	if s.metrics != nil {
		s.metrics.FramesSent.Inc()
	}
}

// readLoop drives the session from stream messages. Handlers run
// serially; a handler completes before the next message is processed.
func (s *Session) readLoop(stream Stream) {
	for {
		msg, err := stream.Receive()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				s.transportFailure(err)
			}
			return
		}

		switch {
		case msg.ServerContent != nil:
			s.handleServerContent(msg.ServerContent)
		case msg.ToolCall != nil:
			s.handleToolCall(msg.ToolCall)
		}
	}
}

// transportFailure handles a mid-session stream failure: audio output
// stops, status flips to closed, and the error is surfaced once.
func (s *Session) transportFailure(cause error) {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	announced := s.announced
	s.announced = false
	s.state = StateErrored
	s.mu.Unlock()
	s.setStateMetric(StateErrored)

	if err := s.input.Stop(); err != nil {
		voiceLog.Warnf("Failed to stop capture: %v", err)
	}
	s.scheduler.Stop()
	if stream != nil {
		stream.Close()
	}
	s.clearActivity()

	if s.metrics != nil {
		s.metrics.SessionErrors.Inc()
	}
	voiceLog.Errorf("Transport failure: %v", cause)
	err := fmt.Errorf("%w: %v", ErrTransport, cause)
	s.emit(types.NewSessionEvent(types.EventTypeSessionError).WithError(err))
	s.reportError(err)
	if announced && s.callbacks.OnStatus != nil {
		s.callbacks.OnStatus(false)
	}
}

// handleServerContent schedules model audio and handles interruption.
func (s *Session) handleServerContent(sc *serverContent) {
	if sc.Interrupted {
		// The user started talking: discard everything queued, do not
		// let it finish.
		voiceLog.Infof("Model interrupted, flushing playback")
		s.scheduler.Stop()
		s.clearActivity()
		if s.metrics != nil {
			s.metrics.Interruptions.Inc()
		}
		s.emit(types.NewSessionEvent(types.EventTypeInterrupted))
		return
	}

	if sc.ModelTurn == nil {
		return
	}
	for _, p := range sc.ModelTurn.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := audio.DecodeBase64(p.InlineData.Data)
		if err != nil {
			// Per-chunk failure: skip, never abort the stream.
			voiceLog.Warnf("Dropping undecodable audio part: %v", err)
			ev := types.NewSessionEvent(types.EventTypeChunkDropped)
			ev.Reason = "malformed"
			s.emit(ev)
			continue
		}
		s.scheduler.ScheduleChunk(data)
		if s.metrics != nil {
			s.metrics.RecordChunkScheduled()
		}
		s.touchActivity()
	}
}

// handleToolCall dispatches each invocation in arrival order and sends
// exactly one acknowledgment per invocation id. Callback failures are
// acknowledged as a generic failure and never end the session.
func (s *Session) handleToolCall(tc *toolCallMessage) {
	for _, call := range tc.FunctionCalls {
		response := s.dispatchTool(call)

		ack := &clientMessage{ToolResponse: &toolResponse{
			FunctionResponses: []functionResponse{{
				ID:       call.ID,
				Name:     call.Name,
				Response: response,
			}},
		}}

		s.mu.Lock()
		stream := s.stream
		s.mu.Unlock()
		if stream == nil {
			return
		}
		if err := stream.Send(ack); err != nil {
			voiceLog.Errorf("Failed to acknowledge tool call %s: %v", call.ID, err)
		}
	}
}

func (s *Session) dispatchTool(call functionCall) map[string]any {
	switch call.Name {
	case toolCreateNote:
		var args CreateNoteArgs
		if err := json.Unmarshal(call.Args, &args); err != nil {
			s.recordToolCall(call.Name, "invalid")
			return map[string]any{"error": "invalid arguments"}
		}
		if s.callbacks.OnNoteCreate == nil {
			s.recordToolCall(call.Name, "failure")
			return map[string]any{"error": "operation not supported"}
		}
		id, err := s.callbacks.OnNoteCreate(args)
		if err != nil {
			voiceLog.Errorf("createNote callback failed: %v", err)
			s.emit(types.NewSessionEvent(types.EventTypeToolCallFailed).WithError(err))
			s.reportError(fmt.Errorf("createNote callback: %w", err))
			s.recordToolCall(call.Name, "failure")
			return map[string]any{"error": "operation failed"}
		}
		s.recordToolCall(call.Name, "success")
		s.emit(types.NewSessionEvent(types.EventTypeNoteCreated).WithNoteID(id))
		return map[string]any{"noteId": id}

	case toolUpdateNote:
		var args updateNoteArgs
		if err := json.Unmarshal(call.Args, &args); err != nil {
			s.recordToolCall(call.Name, "invalid")
			return map[string]any{"error": "invalid arguments"}
		}
		if args.NoteID == "" {
			s.recordToolCall(call.Name, "invalid")
			return map[string]any{"error": "noteId is required"}
		}
		update, err := args.toUpdate()
		if err != nil {
			voiceLog.Warnf("Rejecting updateNote arguments: %v", err)
			s.recordToolCall(call.Name, "invalid")
			return map[string]any{"error": "invalid arguments"}
		}
		if s.callbacks.OnNoteUpdate == nil {
			s.recordToolCall(call.Name, "failure")
			return map[string]any{"error": "operation not supported"}
		}
		if err := s.callbacks.OnNoteUpdate(args.NoteID, update); err != nil {
			voiceLog.Errorf("updateNote callback failed: %v", err)
			s.emit(types.NewSessionEvent(types.EventTypeToolCallFailed).WithError(err))
			s.reportError(fmt.Errorf("updateNote callback: %w", err))
			s.recordToolCall(call.Name, "failure")
			return map[string]any{"error": "operation failed"}
		}
		s.recordToolCall(call.Name, "success")
		s.emit(types.NewSessionEvent(types.EventTypeNoteUpdated).WithNoteID(args.NoteID))
		return map[string]any{"noteId": args.NoteID}

	default:
		voiceLog.Warnf("Unknown tool invocation %q", call.Name)
		s.recordToolCall(call.Name, "unknown")
		return map[string]any{"error": "unknown tool"}
	}
}

// touchActivity marks model audio audible and arms the debounce timer.
func (s *Session) touchActivity() {
	s.activityMu.Lock()
	turnedOn := !s.audible
	s.audible = true
	if s.activityTimer != nil {
		s.activityTimer.Stop()
	}
	s.activityTimer = time.AfterFunc(s.activityWindow, s.activityExpired)
	s.activityMu.Unlock()

	if turnedOn {
		s.emit(types.NewSessionEvent(types.EventTypeAudioActivity))
		if s.callbacks.OnAudioActivity != nil {
			s.callbacks.OnAudioActivity(true)
		}
	}
}

func (s *Session) activityExpired() {
	s.activityMu.Lock()
	wasAudible := s.audible
	s.audible = false
	s.activityMu.Unlock()

	if wasAudible && s.callbacks.OnAudioActivity != nil {
		s.callbacks.OnAudioActivity(false)
	}
}

// clearActivity cancels the debounce timer and reports inactive if the
// indicator was on.
func (s *Session) clearActivity() {
	s.activityMu.Lock()
	if s.activityTimer != nil {
		s.activityTimer.Stop()
		s.activityTimer = nil
	}
	wasAudible := s.audible
	s.audible = false
	s.activityMu.Unlock()

	if wasAudible && s.callbacks.OnAudioActivity != nil {
		s.callbacks.OnAudioActivity(false)
	}
}

func (s *Session) reportError(err error) {
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}

func (s *Session) recordToolCall(tool, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordToolCall(tool, outcome)
	}
}

func (s *Session) setStateMetric(state State) {
	if s.metrics != nil {
		s.metrics.SetSessionState(int(state))
	}
}

func (s *Session) emit(ev *types.SessionEvent) {
	if s.sink != nil {
		s.sink(ev)
	}
}
