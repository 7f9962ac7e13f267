package model

import (
	"context"

	"github.com/nstogner/autodev/pkg/domain"
)

// ToolDefinition describes one tool the model may call. Parameters is a
// plain-map rendering of the tool's JSON schema.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatConfig configures one conversation connection. Tool availability is
// declared here, once, at connection setup.
type ChatConfig struct {
	Model        string
	Instructions string
	Tools        []ToolDefinition
}

// Provider represents a service that provides LLMs (e.g. Gemini).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini").
	Name() string

	// NewChat opens a conversation connection with the given configuration.
	NewChat(ctx context.Context, cfg ChatConfig) (Chat, error)
}

// Chat is an open connection to the remote endpoint for one conversation.
type Chat interface {
	// Send delivers the conversation history to the model and blocks until
	// the complete assistant reply is available. The final element of
	// history carries the pending payload: the user's text on the first
	// exchange, or the batch of tool results thereafter.
	Send(ctx context.Context, history []domain.Message) (domain.Message, error)

	// Close releases the connection. It is idempotent and promptly cancels
	// any in-flight Send.
	Close() error
}
