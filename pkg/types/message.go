package types

// Message represents a single message in an AI conversation.
type Message struct {
	// Role is the message author: "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// NewSystemMessage creates a system-role message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant-role message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// ModelInfo describes the AI model behind a provider.
type ModelInfo struct {
	// Provider is the service name (e.g., "openai").
	Provider string

	// Name is the model identifier.
	Name string

	// MaxTokens is the model's context window size.
	MaxTokens int

	// SupportsStreaming indicates whether the provider can stream.
	SupportsStreaming bool

	// Metadata holds provider-specific details.
	Metadata map[string]interface{}
}
