package types

// SessionEventType defines the type of event emitted by the voice session.
type SessionEventType string

const (
	EventTypeSessionConnecting  SessionEventType = "session_connecting"  // EventTypeSessionConnecting indicates the session has started connecting.
	EventTypeSessionOpen        SessionEventType = "session_open"        // EventTypeSessionOpen indicates the realtime stream handshake completed.
	EventTypeSessionClosed      SessionEventType = "session_closed"      // EventTypeSessionClosed indicates an orderly session shutdown.
	EventTypeSessionError       SessionEventType = "session_error"       // EventTypeSessionError indicates a terminal session failure.
	EventTypePlaybackStarted    SessionEventType = "playback_started"    // EventTypePlaybackStarted indicates model audio became audible.
	EventTypePlaybackStopped    SessionEventType = "playback_stopped"    // EventTypePlaybackStopped indicates model audio drained or was stopped.
	EventTypeAudioActivity      SessionEventType = "audio_activity"      // EventTypeAudioActivity indicates a model audio chunk arrived (debounced).
	EventTypeInterrupted        SessionEventType = "interrupted"         // EventTypeInterrupted indicates the model cut its own speech short.
	EventTypeNoteCreated        SessionEventType = "note_created"        // EventTypeNoteCreated indicates the assistant created a note.
	EventTypeNoteUpdated        SessionEventType = "note_updated"        // EventTypeNoteUpdated indicates the assistant updated a note.
	EventTypeToolCallFailed     SessionEventType = "tool_call_failed"    // EventTypeToolCallFailed indicates a local tool callback returned an error.
	EventTypeEnrichmentComplete SessionEventType = "enrichment_complete" // EventTypeEnrichmentComplete indicates AI classification of a captured note finished.
	EventTypeIllustrationReady  SessionEventType = "illustration_ready"  // EventTypeIllustrationReady indicates a generated illustration was attached.
	EventTypeChunkDropped       SessionEventType = "chunk_dropped"       // EventTypeChunkDropped indicates an audio chunk was discarded.
)

// SessionEvent is one observable occurrence in the voice/notes core,
// consumed by the UI layer. Events are delivered in emission order.
type SessionEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Error contains error information for error events.
	Error error

	// NoteID identifies the note for note events.
	NoteID string

	// Reason carries the drop reason for chunk_dropped events.
	Reason string

	// Type indicates the kind of event.
	Type SessionEventType
}

// NewSessionEvent creates an event of the given type.
func NewSessionEvent(eventType SessionEventType) *SessionEvent {
	return &SessionEvent{
		Type:     eventType,
		Metadata: make(map[string]interface{}),
	}
}

// WithError attaches error information and returns the event for chaining.
func (e *SessionEvent) WithError(err error) *SessionEvent {
	e.Error = err
	return e
}

// WithNoteID attaches a note identifier and returns the event for chaining.
func (e *SessionEvent) WithNoteID(id string) *SessionEvent {
	e.NoteID = id
	return e
}
