package domain

// Role defines the sender of a conversation message.
type Role string

const (
	// RoleUser indicates a message from the user side of the conversation,
	// including batches of tool results fed back to the model.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant Role = "assistant"
)

// Content block types.
const (
	ContentTypeText       = "text"
	ContentTypeToolUse    = "tool_use"
	ContentTypeToolResult = "tool_result"
)

// Feature states tracked by the feature tracker.
const (
	FeatureStatePending    = "pending"
	FeatureStateInProgress = "in_progress"
	FeatureStatePassing    = "passing"
)
