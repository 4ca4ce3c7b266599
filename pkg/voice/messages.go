package voice

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kingwiss/Chronos/pkg/notes"
)

// captureMimeType tags outbound microphone frames with their format.
const captureMimeType = "audio/pcm;rate=16000"

// Tool names the model may invoke.
const (
	toolCreateNote = "createNote"
	toolUpdateNote = "updateNote"
)

// clientMessage is the envelope for every frame sent to the model.
// Exactly one field is set per message.
type clientMessage struct {
	Setup         *setupMessage  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *toolResponse  `json:"toolResponse,omitempty"`
}

// setupMessage opens the session: it declares the model, the voice and
// response configuration, the system instruction, and the tools the
// model may call.
type setupMessage struct {
	Model             string            `json:"model"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []toolDeclaration `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig *voiceConfig `json:"voiceConfig,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type toolDeclaration struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// realtimeInput carries one or more media chunks of microphone audio.
type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// toolResponse acknowledges tool invocations, correlated by id.
type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// serverMessage is the envelope for every frame received from the
// model. At most one field is set per message.
type serverMessage struct {
	SetupComplete *setupComplete   `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCallMessage `json:"toolCall,omitempty"`
}

type setupComplete struct{}

// serverContent carries model output: audio parts, an interruption
// flag (the user started talking over the model), or a turn boundary.
type serverContent struct {
	ModelTurn    *content `json:"modelTurn,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

// inlineData holds base64-encoded PCM at 24 kHz on the inbound path.
type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolCallMessage struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// CreateNoteArgs are the fields the model supplies when creating a
// note. Content is required; the rest are optional hints.
type CreateNoteArgs struct {
	Content            string `json:"content"`
	Kind               string `json:"kind,omitempty"`
	ReminderAt         string `json:"reminderAt,omitempty"`
	IllustrationPrompt string `json:"illustrationPrompt,omitempty"`
}

// updateNoteArgs mirrors the wire shape of an updateNote invocation.
// Pointer fields distinguish "not mentioned" from an explicit value,
// so the model can flip a single flag without touching anything else.
type updateNoteArgs struct {
	NoteID     string  `json:"noteId"`
	Content    *string `json:"content,omitempty"`
	Kind       *string `json:"kind,omitempty"`
	IsDone     *bool   `json:"isDone,omitempty"`
	IsTracking *bool   `json:"isTracking,omitempty"`
	ReminderAt *string `json:"reminderAt,omitempty"`
}

// toUpdate converts the wire arguments into a sparse note update.
func (a updateNoteArgs) toUpdate() (notes.Update, error) {
	var u notes.Update
	u.Content = a.Content
	u.Done = a.IsDone
	u.Tracking = a.IsTracking

	if a.Kind != nil {
		kind := notes.Kind(*a.Kind)
		if err := notes.ValidateKind(kind); err != nil {
			return notes.Update{}, err
		}
		u.Kind = &kind
	}
	if a.ReminderAt != nil {
		at, err := parseReminder(*a.ReminderAt)
		if err != nil {
			return notes.Update{}, err
		}
		u.ReminderAt = &at
	}
	return u, nil
}

func parseReminder(text string) (time.Time, error) {
	at, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reminder timestamp %q: %w", text, err)
	}
	return at, nil
}

// declaredTools describes createNote and updateNote to the model.
func declaredTools() []toolDeclaration {
	return []toolDeclaration{{
		FunctionDeclarations: []functionDeclaration{
			{
				Name:        toolCreateNote,
				Description: "Create a new note on the user's timeline.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"content":            map[string]any{"type": "string", "description": "The note text."},
						"kind":               map[string]any{"type": "string", "enum": []string{"note", "reminder", "checklist", "photo"}},
						"reminderAt":         map[string]any{"type": "string", "description": "RFC3339 timestamp for reminders."},
						"illustrationPrompt": map[string]any{"type": "string", "description": "Short prompt for an illustration."},
					},
					"required": []string{"content"},
				},
			},
			{
				Name:        toolUpdateNote,
				Description: "Update fields of an existing note. Only the fields provided are changed.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"noteId":     map[string]any{"type": "string"},
						"content":    map[string]any{"type": "string"},
						"kind":       map[string]any{"type": "string", "enum": []string{"note", "reminder", "checklist", "photo"}},
						"isDone":     map[string]any{"type": "boolean"},
						"isTracking": map[string]any{"type": "boolean"},
						"reminderAt": map[string]any{"type": "string"},
					},
					"required": []string{"noteId"},
				},
			},
		},
	}}
}

// buildSystemInstruction assembles the assistant persona plus an
// optional focus hint and a snapshot of recent timeline entries.
func buildSystemInstruction(focus string, timeline []notes.TimelineEntry) *content {
	var b strings.Builder
	b.WriteString("You are the voice assistant for a personal timeline app. ")
	b.WriteString("Keep replies short and conversational. ")
	b.WriteString("Use createNote and updateNote to act on the user's notes; never invent note ids.")

	if focus != "" {
		fmt.Fprintf(&b, "\n\nThe user is currently looking at: %s", focus)
	}

	if len(timeline) > 0 {
		b.WriteString("\n\nRecent notes, newest first:")
		for _, entry := range timeline {
			fmt.Fprintf(&b, "\n%s:", entry.Day)
			for _, n := range entry.Notes {
				fmt.Fprintf(&b, "\n  [%s] (%s) %s", n.ID, n.Kind, n.Content)
			}
		}
	}

	return &content{Parts: []part{{Text: b.String()}}}
}
