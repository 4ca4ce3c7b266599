// Package notes provides the Chronos note model and its SQLite-backed
// timeline store. Notes are the target of both the voice assistant's
// tool calls and the capture/enrichment flow.
package notes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxContentLength is the maximum number of characters allowed in note content
const MaxContentLength = 2000

// Kind classifies a note on the timeline.
type Kind string

const (
	KindNote      Kind = "note"      // free-form text
	KindReminder  Kind = "reminder"  // carries a ReminderAt timestamp
	KindChecklist Kind = "checklist" // content holds newline-separated items
	KindPhoto     Kind = "photo"     // captured from the camera, content is the caption
)

// validKinds is the closed set of note kinds.
var validKinds = map[Kind]bool{
	KindNote:      true,
	KindReminder:  true,
	KindChecklist: true,
	KindPhoto:     true,
}

// Note represents a single timeline entry.
type Note struct {
	ID                 string
	Content            string
	Kind               Kind
	Done               bool // checklist/reminder completed
	Tracking           bool // included in daily activity tracking
	ReminderAt         *time.Time
	IllustrationPrompt string
	IllustrationPath   string
	AudioClipPath      string // WAV voice memo, if captured by voice
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Update is a sparse set of field changes. A nil field means "leave
// unchanged", never "clear"; the distinction matters because the voice
// assistant sends only the fields it wants to touch.
type Update struct {
	Content            *string
	Kind               *Kind
	Done               *bool
	Tracking           *bool
	ReminderAt         *time.Time
	IllustrationPrompt *string
	IllustrationPath   *string
	AudioClipPath      *string
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.Content == nil && u.Kind == nil && u.Done == nil &&
		u.Tracking == nil && u.ReminderAt == nil &&
		u.IllustrationPrompt == nil && u.IllustrationPath == nil &&
		u.AudioClipPath == nil
}

// New creates a note with the given content and kind.
// Returns an error if validation fails.
func New(content string, kind Kind) (*Note, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = KindNote
	}
	if err := ValidateKind(kind); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Note{
		ID:        uuid.New().String(),
		Content:   content,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateContent checks if the content meets the requirements
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("note content cannot be empty")
	}
	if len(content) > MaxContentLength {
		return fmt.Errorf(
			"note content exceeds maximum length of %d characters (got %d)",
			MaxContentLength, len(content),
		)
	}
	return nil
}

// ValidateKind checks whether the kind is one of the known values
func ValidateKind(kind Kind) error {
	if !validKinds[kind] {
		return fmt.Errorf("unknown note kind %q", kind)
	}
	return nil
}

// Apply merges a sparse update into the note. Only fields present in
// the update are changed; validation failures leave the note untouched.
func (n *Note) Apply(u Update) error {
	if u.IsEmpty() {
		return fmt.Errorf("update contains no fields")
	}

	if u.Content != nil {
		if err := ValidateContent(*u.Content); err != nil {
			return err
		}
	}
	if u.Kind != nil {
		if err := ValidateKind(*u.Kind); err != nil {
			return err
		}
	}

	if u.Content != nil {
		n.Content = *u.Content
	}
	if u.Kind != nil {
		n.Kind = *u.Kind
	}
	if u.Done != nil {
		n.Done = *u.Done
	}
	if u.Tracking != nil {
		n.Tracking = *u.Tracking
	}
	if u.ReminderAt != nil {
		t := (*u.ReminderAt).UTC()
		n.ReminderAt = &t
	}
	if u.IllustrationPrompt != nil {
		n.IllustrationPrompt = *u.IllustrationPrompt
	}
	if u.IllustrationPath != nil {
		n.IllustrationPath = *u.IllustrationPath
	}
	if u.AudioClipPath != nil {
		n.AudioClipPath = *u.AudioClipPath
	}

	n.UpdatedAt = time.Now().UTC()
	return nil
}

// Day returns the calendar day the note belongs to on the timeline.
func (n *Note) Day() string {
	return n.CreatedAt.Format("2006-01-02")
}

// ContainsText checks if the note content contains the query string (case-insensitive)
func (n *Note) ContainsText(query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(
		strings.ToLower(n.Content),
		strings.ToLower(query),
	)
}
