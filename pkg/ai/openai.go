package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/openai/openai-go"

	"github.com/kingwiss/Chronos/pkg/audio"
	"github.com/kingwiss/Chronos/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model option is given
	DefaultModel = "gpt-4o-mini"

	// DefaultImageModel is used for illustration generation
	DefaultImageModel = "dall-e-3"
)

// OpenAIProvider implements Provider and ImageGenerator against any
// OpenAI-compatible API.
type OpenAIProvider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	modelInfo  *types.ModelInfo
}

// ProviderOption is a function that configures an OpenAIProvider.
type ProviderOption func(*OpenAIProvider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *OpenAIProvider) {
		p.model = model
	}
}

// WithImageModel sets the model used for illustration generation.
func WithImageModel(model string) ProviderOption {
	return func(p *OpenAIProvider) {
		p.imageModel = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *OpenAIProvider) {
		p.baseURL = baseURL
	}
}

// NewOpenAIProvider creates a provider with the given API key.
//
// If apiKey is empty, it will attempt to read from the OPENAI_API_KEY
// environment variable. If no base URL option is given, the
// OPENAI_BASE_URL environment variable is consulted before the default.
func NewOpenAIProvider(apiKey string, opts ...ProviderOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &OpenAIProvider{
		model:      DefaultModel,
		imageModel: DefaultImageModel,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = envBaseURL
		}
	}

	p.modelInfo = &types.ModelInfo{
		Provider:          "openai",
		Name:              p.model,
		SupportsStreaming: false,
		Metadata:          make(map[string]interface{}),
	}
	if p.baseURL != DefaultBaseURL {
		p.modelInfo.Metadata["base_url"] = p.baseURL
	}

	return p, nil
}

// Complete sends messages to the chat completions endpoint and returns
// the assistant's full response.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	reqBody := map[string]interface{}{
		"model":    p.model,
		"messages": convertToOpenAIMessages(messages),
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := p.post(ctx, "/chat/completions", bodyBytes)
	if err != nil {
		return nil, err
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	msg := completion.Choices[0].Message
	return &types.Message{Role: msg.Role, Content: msg.Content}, nil
}

// GenerateImage renders an illustration from a text prompt and returns
// the PNG bytes.
func (p *OpenAIProvider) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	reqBody := map[string]interface{}{
		"model":           p.imageModel,
		"prompt":          prompt,
		"n":               1,
		"size":            "1024x1024",
		"response_format": "b64_json",
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := p.post(ctx, "/images/generations", bodyBytes)
	if err != nil {
		return nil, err
	}

	var generation struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &generation); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if len(generation.Data) == 0 {
		return nil, fmt.Errorf("response contained no images")
	}

	image, err := audio.DecodeBase64(generation.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return image, nil
}

// post performs a JSON POST against the provider's base URL.
func (p *OpenAIProvider) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// GetModelInfo returns information about the model being used.
func (p *OpenAIProvider) GetModelInfo() *types.ModelInfo {
	return p.modelInfo
}

// GetModel returns the model name being used.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// convertToOpenAIMessages converts internal messages to the OpenAI
// parameter union types.
func convertToOpenAIMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			openaiMessages = append(openaiMessages, openai.AssistantMessage(msg.Content))
		default:
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		}
	}

	return openaiMessages
}
