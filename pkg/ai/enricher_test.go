package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingwiss/Chronos/pkg/notes"
	"github.com/kingwiss/Chronos/pkg/types"
)

// fakeProvider returns a canned reply and records the messages it saw.
type fakeProvider struct {
	reply    string
	err      error
	received []*types.Message
}

func (f *fakeProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	f.received = messages
	if f.err != nil {
		return nil, f.err
	}
	return types.NewAssistantMessage(f.reply), nil
}

func (f *fakeProvider) GetModelInfo() *types.ModelInfo {
	return &types.ModelInfo{Provider: "fake", Name: "fake-model"}
}

func (f *fakeProvider) GetModel() string { return "fake-model" }

type fakeImageGenerator struct {
	image []byte
	err   error
}

func (f *fakeImageGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.image, nil
}

func TestEnrichClassifiesReply(t *testing.T) {
	provider := &fakeProvider{
		reply: `{"kind":"reminder","content":"Call the dentist","reminder_at":"2026-09-01T09:00:00Z","illustration_prompt":"a tooth"}`,
	}
	enricher := NewEnricher(provider)

	enrichment, err := enricher.Enrich(context.Background(), "remind me to call the dentist monday at 9")
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if enrichment.Kind != notes.KindReminder {
		t.Errorf("Expected kind reminder, got %q", enrichment.Kind)
	}
	if enrichment.Content != "Call the dentist" {
		t.Errorf("Expected cleaned content, got %q", enrichment.Content)
	}
	if enrichment.ReminderAt == nil {
		t.Fatal("Expected a reminder timestamp")
	}
	want := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	if !enrichment.ReminderAt.Equal(want) {
		t.Errorf("Expected reminder at %v, got %v", want, enrichment.ReminderAt)
	}
	if enrichment.IllustrationPrompt != "a tooth" {
		t.Errorf("Expected illustration prompt, got %q", enrichment.IllustrationPrompt)
	}

	if len(provider.received) != 2 {
		t.Fatalf("Expected system and user messages, got %d messages", len(provider.received))
	}
	if provider.received[0].Role != types.RoleSystem {
		t.Errorf("Expected first message to be system, got %q", provider.received[0].Role)
	}
}

func TestEnrichStripsMarkdownFences(t *testing.T) {
	provider := &fakeProvider{
		reply: "```json\n{\"kind\":\"note\",\"content\":\"Buy milk\"}\n```",
	}
	enricher := NewEnricher(provider)

	enrichment, err := enricher.Enrich(context.Background(), "buy milk")
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if enrichment.Content != "Buy milk" {
		t.Errorf("Expected content from fenced JSON, got %q", enrichment.Content)
	}
}

func TestEnrichDefaultsUnknownKind(t *testing.T) {
	provider := &fakeProvider{
		reply: `{"kind":"shopping","content":"Buy milk"}`,
	}
	enricher := NewEnricher(provider)

	enrichment, err := enricher.Enrich(context.Background(), "buy milk")
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if enrichment.Kind != notes.KindNote {
		t.Errorf("Expected unknown kind to default to note, got %q", enrichment.Kind)
	}
}

func TestEnrichIgnoresBadReminderTimestamp(t *testing.T) {
	provider := &fakeProvider{
		reply: `{"kind":"reminder","content":"Call mom","reminder_at":"next tuesday"}`,
	}
	enricher := NewEnricher(provider)

	enrichment, err := enricher.Enrich(context.Background(), "call mom")
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if enrichment.ReminderAt != nil {
		t.Errorf("Expected unparseable timestamp to be dropped, got %v", enrichment.ReminderAt)
	}
}

func TestEnrichRejectsEmptyContent(t *testing.T) {
	enricher := NewEnricher(&fakeProvider{})
	if _, err := enricher.Enrich(context.Background(), "   "); err == nil {
		t.Error("Expected error for empty content")
	}
}

func TestEnrichRejectsNonJSONReply(t *testing.T) {
	provider := &fakeProvider{reply: "Sure! Here is your note."}
	enricher := NewEnricher(provider)

	if _, err := enricher.Enrich(context.Background(), "buy milk"); err == nil {
		t.Error("Expected error for non-JSON reply")
	}
}

func TestEnrichPropagatesProviderError(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("rate limited")}
	enricher := NewEnricher(provider)

	_, err := enricher.Enrich(context.Background(), "buy milk")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Expected provider error to propagate, got %v", err)
	}
}

func TestEnrichEnforcesTokenBudget(t *testing.T) {
	provider := &fakeProvider{reply: `{"kind":"note","content":"x"}`}
	enricher := NewEnricher(provider, WithMaxPromptTokens(10))
	if enricher.tokenizer == nil {
		t.Skip("token encoding unavailable")
	}

	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 50)
	_, err := enricher.Enrich(context.Background(), long)
	if err == nil || !strings.Contains(err.Error(), "budget") {
		t.Errorf("Expected budget error for oversized prompt, got %v", err)
	}
	if provider.received != nil {
		t.Error("Expected no request to be sent when over budget")
	}
}

func TestIllustrateWritesImage(t *testing.T) {
	dir := t.TempDir()
	enricher := NewEnricher(&fakeProvider{}, WithImageGenerator(&fakeImageGenerator{image: []byte("png-bytes")}))

	path, err := enricher.Illustrate(context.Background(), "a tooth", dir)
	if err != nil {
		t.Fatalf("Illustrate failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("Expected image under %s, got %s", dir, path)
	}
	if filepath.Ext(path) != ".png" {
		t.Errorf("Expected .png extension, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read image: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("Image content mismatch: %q", data)
	}
}

func TestIllustrateRequiresGenerator(t *testing.T) {
	enricher := NewEnricher(&fakeProvider{})
	if _, err := enricher.Illustrate(context.Background(), "a tooth", t.TempDir()); err == nil {
		t.Error("Expected error without an image generator")
	}
}
