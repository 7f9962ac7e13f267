package domain

import "time"

// Message represents one conversational turn: an ordered sequence of content
// blocks tagged with the sender's role.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`
}

// Content is a tagged union representing a single block within a message.
// Exactly one of the payload pointers is non-nil for the non-text types.
type Content struct {
	Type string `json:"type"` // "text", "tool_use", "tool_result"

	// Text content (when Type == "text").
	Text string `json:"text,omitempty"`

	// Tool call issued by the model (when Type == "tool_use").
	ToolUse *ToolCall `json:"tool_use,omitempty"`

	// Tool result answering a prior call (when Type == "tool_result").
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextContent builds a text block.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ToolCall represents a tool invocation requested by the model. The ID is
// unique within one loop invocation.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult represents the outcome of a tool call execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// ToolCalls returns the tool_use blocks of a message, in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, c := range m.Content {
		if c.Type == ContentTypeToolUse && c.ToolUse != nil {
			calls = append(calls, *c.ToolUse)
		}
	}
	return calls
}

// Feature is one trackable unit of project functionality.
type Feature struct {
	ID          int64     `json:"id"`
	Priority    int64     `json:"priority"`
	Category    string    `json:"category"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Steps       []string  `json:"steps,omitempty"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FeatureStats summarizes tracker progress for a project.
type FeatureStats struct {
	Passing    int `json:"passing"`
	InProgress int `json:"in_progress"`
	Total      int `json:"total"`
}
