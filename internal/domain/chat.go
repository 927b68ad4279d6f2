package domain

// Chat roles accepted from clients and sent to the completion model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ChatMessage is the provider-agnostic chat message shape sent to the
// completion model.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ContextChunk is a snippet of prior conversation returned by the
// personalization service. Only "text" is interpreted; every other field is
// kept as received.
type ContextChunk map[string]any

// Text returns the chunk's text field, or "" when absent.
func (c ContextChunk) Text() string {
	s, _ := c["text"].(string)
	return s
}

// IsClientRole reports whether role may appear in a client-supplied history.
func IsClientRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ToolSpec declares a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  any // JSON schema
}

// CompletionRequest is one chat-completion round.
type CompletionRequest struct {
	Messages []ChatMessage
	Tools    []ToolSpec
}

// Completion is the model's reply: text, tool calls, or both.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}
