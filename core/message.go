package core

import "time"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ToolCall is a model-requested tool invocation carried on an assistant
// message. Arguments is the raw JSON argument payload.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is one entry of the conversation history handed to the provider.
type Message struct {
	ID         string     `json:"id"`
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool-role messages
	Timestamp  time.Time  `json:"timestamp"`
}

// NewUserMessage creates a user-authored message.
func NewUserMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
}

// NewToolMessage creates a tool-role message carrying a tool result for the
// given originating call id.
func NewToolMessage(toolCallID, content string) Message {
	return Message{ID: NewID(), Role: RoleTool, Content: content, ToolCallID: toolCallID, Timestamp: time.Now().UTC()}
}
