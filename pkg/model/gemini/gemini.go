// Package gemini implements the model.Provider contract using the Google
// Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/nstogner/autodev/pkg/domain"
	"github.com/nstogner/autodev/pkg/model"
)

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// NewChat opens a conversation connection. Tool declarations are converted
// once here and reused for every Send on the chat.
func (p *Provider) NewChat(ctx context.Context, cfg model.ChatConfig) (model.Chat, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("chat config: model name is required")
	}

	var systemInstruction *genai.Content
	if cfg.Instructions != "" {
		systemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.Instructions}},
		}
	}

	return &chat{
		client:       p.client,
		modelName:    cfg.Model,
		instructions: systemInstruction,
		tools:        buildToolDeclarations(cfg.Tools),
	}, nil
}

// ErrChatClosed is returned by Send after the chat has been closed.
var ErrChatClosed = errors.New("gemini: chat is closed")

// chat implements model.Chat. A single Send is in flight at a time (the loop
// engine is single-threaded per conversation); Close cancels it promptly.
type chat struct {
	client       *genai.Client
	modelName    string
	instructions *genai.Content
	tools        []*genai.Tool

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

var _ model.Chat = (*chat)(nil)

func (c *chat) Send(ctx context.Context, history []domain.Message) (domain.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.Message{}, ErrChatClosed
	}
	sendCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	slog.Debug("Gemini.Send", "model", c.modelName, "messageCount", len(history))

	contents := messagesToContents(history)

	config := &genai.GenerateContentConfig{
		Tools:             c.tools,
		SystemInstruction: c.instructions,
	}

	iter := c.client.Models.GenerateContentStream(sendCtx, c.modelName, contents, config)
	return aggregate(iter)
}

// Close cancels any in-flight Send and marks the chat unusable. Safe to call
// more than once.
func (c *chat) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// messagesToContents converts conversation history into genai contents.
// Tool results must carry the name of the function they answer, so calls
// seen earlier in the history are remembered by ID.
func messagesToContents(history []domain.Message) []*genai.Content {
	var contents []*genai.Content
	toolNameMap := make(map[string]string) // tool call ID -> name

	for _, msg := range history {
		var parts []*genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case domain.ContentTypeText:
				parts = append(parts, &genai.Part{Text: c.Text})
			case domain.ContentTypeToolUse:
				if c.ToolUse != nil {
					toolNameMap[c.ToolUse.ID] = c.ToolUse.Name
					parts = append(parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{
							ID:   c.ToolUse.ID,
							Name: c.ToolUse.Name,
							Args: c.ToolUse.Input,
						},
					})
				}
			case domain.ContentTypeToolResult:
				if c.ToolResult != nil {
					parts = append(parts, &genai.Part{
						FunctionResponse: &genai.FunctionResponse{
							ID:   c.ToolResult.ToolCallID,
							Name: toolNameMap[c.ToolResult.ToolCallID],
							Response: map[string]any{
								"result": c.ToolResult.Content,
							},
						},
					})
				}
			}
		}

		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}
	return contents
}

// aggregate drains the streaming iterator into one assistant message.
func aggregate(iter func(yield func(*genai.GenerateContentResponse, error) bool)) (domain.Message, error) {
	var fullText strings.Builder
	var toolCalls []domain.Content

	for resp, err := range iter {
		if err != nil {
			return domain.Message{}, err
		}
		if resp == nil {
			continue
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					fullText.WriteString(part.Text)
				}
				if part.FunctionCall != nil {
					fc := part.FunctionCall
					id := fc.ID
					if id == "" {
						// The loop engine reassigns deterministic IDs; this
						// placeholder only needs to be unique.
						id = "call-" + uuid.New().String()
					}
					toolCalls = append(toolCalls, domain.Content{
						Type: domain.ContentTypeToolUse,
						ToolUse: &domain.ToolCall{
							ID:    id,
							Name:  fc.Name,
							Input: fc.Args,
						},
					})
				}
			}
		}
	}

	var content []domain.Content
	if fullText.Len() > 0 {
		content = append(content, domain.TextContent(fullText.String()))
	}
	content = append(content, toolCalls...)

	return domain.Message{
		Role:    domain.RoleAssistant,
		Content: content,
	}, nil
}

// buildToolDeclarations converts plain-map tool schemas into genai
// declarations.
func buildToolDeclarations(tools []model.ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFromMap(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}

	if t, ok := m["type"].(string); ok {
		switch t {
		case "object":
			s.Type = genai.TypeObject
		case "array":
			s.Type = genai.TypeArray
		case "string":
			s.Type = genai.TypeString
		case "integer":
			s.Type = genai.TypeInteger
		case "number":
			s.Type = genai.TypeNumber
		case "boolean":
			s.Type = genai.TypeBoolean
		}
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, sub := range props {
			if subMap, ok := sub.(map[string]any); ok {
				s.Properties[name] = schemaFromMap(subMap)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = schemaFromMap(items)
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = req
	case []any:
		for _, r := range req {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	return s
}
