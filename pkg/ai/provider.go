// Package ai provides the request/response half of the Chronos AI
// boundary: classification, formatting, and illustration of captured
// notes. The realtime voice half lives in pkg/voice.
package ai

import (
	"context"

	"github.com/kingwiss/Chronos/pkg/types"
)

// Provider defines the interface for chat-completion integrations.
//
// Providers handle API communication and return plain messages. The
// Enricher layer is responsible for prompt construction, response
// parsing, and note-level semantics, which keeps providers reusable
// and independently testable.
type Provider interface {
	// Complete sends messages to the model and returns the full
	// assistant response.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModelInfo returns information about the model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string
}

// ImageGenerator is implemented by providers that can render an
// illustration from a text prompt. The returned bytes are the encoded
// image (PNG).
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}
