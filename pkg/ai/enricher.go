package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingwiss/Chronos/pkg/logging"
	"github.com/kingwiss/Chronos/pkg/notes"
	"github.com/kingwiss/Chronos/pkg/types"
)

var enricherLog *logging.Logger

func init() {
	var err error
	enricherLog, err = logging.NewLogger("enricher")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		enricherLog.Warnf("Failed to initialize enricher logger, using stderr fallback: %v", err)
	}
}

const enrichmentSystemPrompt = `You classify and format raw personal notes for a timeline app.
Respond with a single JSON object and nothing else, using these fields:
  "kind": one of "note", "reminder", "checklist", "photo"
  "content": the cleaned-up note text; for checklists, one item per line
  "reminder_at": RFC3339 timestamp, only when the note implies a specific time
  "illustration_prompt": a short image prompt capturing the note, or ""`

// Enrichment is the AI's classification of a raw captured note.
type Enrichment struct {
	Kind               notes.Kind `json:"kind"`
	Content            string     `json:"content"`
	ReminderAt         *time.Time `json:"-"`
	IllustrationPrompt string     `json:"illustration_prompt"`
}

// Enricher turns raw captured text into a classified, formatted note
// and optionally renders an illustration for it.
type Enricher struct {
	provider        Provider
	images          ImageGenerator
	tokenizer       *Tokenizer
	maxPromptTokens int
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithImageGenerator enables illustration rendering.
func WithImageGenerator(g ImageGenerator) EnricherOption {
	return func(e *Enricher) {
		e.images = g
	}
}

// WithMaxPromptTokens sets the prompt token budget. Zero disables the check.
func WithMaxPromptTokens(max int) EnricherOption {
	return func(e *Enricher) {
		e.maxPromptTokens = max
	}
}

// NewEnricher creates an enricher backed by the given provider.
func NewEnricher(provider Provider, opts ...EnricherOption) *Enricher {
	e := &Enricher{provider: provider}

	tok, err := NewTokenizer()
	if err != nil {
		// Budgeting is best-effort; requests proceed uncounted
		enricherLog.Warnf("Failed to initialize tokenizer, token budgeting disabled: %v", err)
	} else {
		e.tokenizer = tok
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich classifies and formats a raw captured note.
func (e *Enricher) Enrich(ctx context.Context, raw string) (*Enrichment, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("cannot enrich empty content")
	}

	if e.tokenizer != nil && e.maxPromptTokens > 0 {
		if count := e.tokenizer.CountTokens(enrichmentSystemPrompt + raw); count > e.maxPromptTokens {
			return nil, fmt.Errorf("prompt of %d tokens exceeds budget of %d", count, e.maxPromptTokens)
		}
	}

	messages := []*types.Message{
		types.NewSystemMessage(enrichmentSystemPrompt),
		types.NewUserMessage(raw),
	}

	reply, err := e.provider.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("enrichment request failed: %w", err)
	}

	enrichment, err := parseEnrichment(reply.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse enrichment reply: %w", err)
	}
	return enrichment, nil
}

// Illustrate renders the prompt and writes the image under dir,
// returning the file path. Requires an ImageGenerator.
func (e *Enricher) Illustrate(ctx context.Context, prompt, dir string) (string, error) {
	if e.images == nil {
		return "", fmt.Errorf("no image generator configured")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("illustration prompt cannot be empty")
	}

	image, err := e.images.GenerateImage(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("illustration request failed: %w", err)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("ensure illustration directory: %w", err)
	}

	path := filepath.Join(dir, uuid.New().String()+".png")
	if err := os.WriteFile(path, image, 0600); err != nil {
		return "", fmt.Errorf("write illustration: %w", err)
	}
	return path, nil
}

// parseEnrichment extracts the JSON object from a model reply that may
// be wrapped in markdown fences or surrounding prose.
func parseEnrichment(reply string) (*Enrichment, error) {
	text := strings.TrimSpace(reply)

	// Models sometimes fence the JSON despite instructions.
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var raw struct {
		Kind               string `json:"kind"`
		Content            string `json:"content"`
		ReminderAt         string `json:"reminder_at"`
		IllustrationPrompt string `json:"illustration_prompt"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if strings.TrimSpace(raw.Content) == "" {
		return nil, fmt.Errorf("enrichment content is empty")
	}

	kind := notes.Kind(raw.Kind)
	if notes.ValidateKind(kind) != nil {
		enricherLog.Warnf("Model returned unknown kind %q, defaulting to note", raw.Kind)
		kind = notes.KindNote
	}

	enrichment := &Enrichment{
		Kind:               kind,
		Content:            raw.Content,
		IllustrationPrompt: raw.IllustrationPrompt,
	}

	if raw.ReminderAt != "" {
		at, err := time.Parse(time.RFC3339, raw.ReminderAt)
		if err != nil {
			enricherLog.Warnf("Ignoring unparseable reminder timestamp %q: %v", raw.ReminderAt, err)
		} else {
			enrichment.ReminderAt = &at
		}
	}

	return enrichment, nil
}
