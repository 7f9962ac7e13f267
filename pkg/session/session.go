// Package session manages one agent conversation per project: the session
// state machine around the loop engine, and a registry enforcing at most one
// live session per project.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nstogner/autodev/pkg/agent"
	"github.com/nstogner/autodev/pkg/domain"
	"github.com/nstogner/autodev/pkg/model"
	"github.com/nstogner/autodev/pkg/tools"
)

// Bootstrap is the fixed first message sent when a session starts.
const Bootstrap = "Begin working on the project."

type state int

const (
	stateUninitialized state = iota
	stateActive
	stateClosed
)

// ChunkType tags the stream elements a session yields to its consumer.
type ChunkType string

const (
	ChunkText         ChunkType = "text"
	ChunkToolUse      ChunkType = "tool_use"
	ChunkToolResult   ChunkType = "tool_result"
	ChunkError        ChunkType = "error"
	ChunkResponseDone ChunkType = "response_done"
	ChunkSpecComplete ChunkType = "spec_complete"
)

// Chunk is one streamed element of a session response.
type Chunk struct {
	Type     ChunkType `json:"type"`
	Content  string    `json:"content,omitempty"`
	ToolName string    `json:"tool_name,omitempty"`
	ToolID   string    `json:"tool_id,omitempty"`
	IsError  bool      `json:"is_error,omitempty"`
	Path     string    `json:"path,omitempty"`
}

// Config carries the collaborators a session needs.
type Config struct {
	Provider     model.Provider
	Tools        *tools.Registry
	Model        string
	Instructions string
	MaxTurns     int
	// Bootstrap overrides the fixed first message when non-empty.
	Bootstrap string
}

// Session owns one conversation bound to a project: the open chat handle,
// the append-only message history, a completion flag, and a creation
// timestamp. Lifecycle: uninitialized → active → closed.
type Session struct {
	project string
	cfg     Config

	mu        sync.Mutex
	state     state
	chat      model.Chat
	history   []domain.Message
	complete  bool
	cancel    context.CancelFunc
	createdAt time.Time

	// runMu serializes loop invocations: the conversation is single-
	// threaded per session.
	runMu sync.Mutex
}

// New creates an uninitialized session for a project.
func New(project string, cfg Config) *Session {
	return &Session{
		project:   project,
		cfg:       cfg,
		createdAt: time.Now(),
	}
}

// Project returns the owning project name.
func (s *Session) Project() string { return s.project }

// CreatedAt returns the session creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Complete reports whether the conversation wrote the project spec.
func (s *Session) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]domain.Message, len(s.history))
	copy(msgs, s.history)
	return msgs
}

// Start transitions uninitialized → active: it opens the remote connection
// (declaring the tool set once), sends the bootstrap message, and streams
// the resulting chunks.
func (s *Session) Start(ctx context.Context) <-chan Chunk {
	s.mu.Lock()
	if s.state != stateUninitialized {
		s.mu.Unlock()
		return errChunk("session already started")
	}
	s.mu.Unlock()

	chat, err := s.cfg.Provider.NewChat(ctx, model.ChatConfig{
		Model:        s.cfg.Model,
		Instructions: s.cfg.Instructions,
		Tools:        s.cfg.Tools.Definitions(),
	})
	if err != nil {
		slog.Error("Failed to open chat", "project", s.project, "error", err)
		return errChunk(fmt.Sprintf("Failed to initialize model connection: %v", err))
	}

	s.mu.Lock()
	if s.state == stateClosed {
		// Closed while the connection was being established.
		s.mu.Unlock()
		chat.Close()
		return errChunk("session is closed")
	}
	s.chat = chat
	s.state = stateActive
	s.mu.Unlock()

	bootstrap := s.cfg.Bootstrap
	if bootstrap == "" {
		bootstrap = Bootstrap
	}
	return s.run(ctx, bootstrap)
}

// Send delivers a user message and streams the response. Valid only in the
// active state; otherwise it yields a single error chunk and performs no
// network call.
func (s *Session) Send(ctx context.Context, userText string) <-chan Chunk {
	s.mu.Lock()
	switch s.state {
	case stateUninitialized:
		s.mu.Unlock()
		return errChunk("session not initialized, call start first")
	case stateClosed:
		s.mu.Unlock()
		return errChunk("session is closed")
	}
	s.mu.Unlock()

	return s.run(ctx, userText)
}

// Close transitions to closed. Idempotent: closing an already-closed or
// never-started session is a no-op. Any running loop is cancelled; results
// that arrive afterwards are discarded, never appended.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	chat := s.chat
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if chat != nil {
		return chat.Close()
	}
	return nil
}

func (s *Session) run(ctx context.Context, userText string) <-chan Chunk {
	out := make(chan Chunk)

	loopCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer cancel()

		// The history snapshot is taken only once any prior run has fully
		// drained, so an overlapping Send cannot interleave mid-turn.
		s.runMu.Lock()
		defer s.runMu.Unlock()

		s.mu.Lock()
		if s.state != stateActive {
			s.mu.Unlock()
			select {
			case out <- Chunk{Type: ChunkError, Content: "session is closed"}:
			case <-loopCtx.Done():
			}
			return
		}
		s.cancel = cancel

		userMsg := domain.Message{
			Role:    domain.RoleUser,
			Content: []domain.Content{domain.TextContent(userText)},
		}
		s.history = append(s.history, userMsg)
		history := make([]domain.Message, len(s.history))
		copy(history, s.history)
		chat := s.chat
		s.mu.Unlock()

		engine := agent.New(chat, s.cfg.Tools, s.cfg.MaxTurns)

		for msg := range engine.Run(loopCtx, history) {
			if !s.append(msg) {
				// Session closed mid-loop: discard and stop consuming.
				return
			}
			for _, chunk := range s.chunks(msg) {
				select {
				case out <- chunk:
				case <-loopCtx.Done():
					return
				}
			}
		}

		select {
		case out <- Chunk{Type: ChunkResponseDone}:
		case <-loopCtx.Done():
		}
	}()

	return out
}

// append adds a loop message to the history unless the session has been
// closed in the meantime.
func (s *Session) append(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateActive {
		return false
	}
	s.history = append(s.history, msg)
	return true
}

// chunks translates one loop message into stream chunks.
func (s *Session) chunks(msg domain.Message) []Chunk {
	var chunks []Chunk
	for _, c := range msg.Content {
		switch c.Type {
		case domain.ContentTypeText:
			if c.Text != "" {
				chunks = append(chunks, Chunk{Type: ChunkText, Content: c.Text})
			}
		case domain.ContentTypeToolUse:
			if c.ToolUse == nil {
				continue
			}
			chunks = append(chunks, Chunk{
				Type:     ChunkToolUse,
				ToolName: c.ToolUse.Name,
				ToolID:   c.ToolUse.ID,
			})
			if c.ToolUse.Name == "Write" {
				if path, ok := c.ToolUse.Input["path"].(string); ok && strings.Contains(path, "app_spec.txt") {
					s.mu.Lock()
					s.complete = true
					s.mu.Unlock()
					chunks = append(chunks, Chunk{Type: ChunkSpecComplete, Path: path})
				}
			}
		case domain.ContentTypeToolResult:
			if c.ToolResult == nil {
				continue
			}
			if c.ToolResult.IsError {
				slog.Warn("Tool error", "project", s.project, "callID", c.ToolResult.ToolCallID, "error", c.ToolResult.Content)
			}
			chunks = append(chunks, Chunk{
				Type:    ChunkToolResult,
				ToolID:  c.ToolResult.ToolCallID,
				Content: c.ToolResult.Content,
				IsError: c.ToolResult.IsError,
			})
		}
	}
	return chunks
}

func errChunk(msg string) <-chan Chunk {
	out := make(chan Chunk, 1)
	out <- Chunk{Type: ChunkError, Content: msg}
	close(out)
	return out
}
