// Package agent implements the tool-call loop engine: it drives the
// request/execute/respond cycle between the remote model endpoint and the
// local capability providers until the model produces a final answer or the
// turn cap is reached.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nstogner/autodev/pkg/domain"
	"github.com/nstogner/autodev/pkg/model"
	"github.com/nstogner/autodev/pkg/tools"
)

// DefaultMaxTurns bounds one loop invocation. The cap is soft: hitting it
// stops the loop without error, and the caller treats the missing final
// answer as a known limitation.
const DefaultMaxTurns = 20

// Engine drives one conversation's tool-call loop.
type Engine struct {
	chat     model.Chat
	registry *tools.Registry
	maxTurns int
}

// New creates an engine bound to an open chat and a tool registry.
// maxTurns <= 0 selects DefaultMaxTurns.
func New(chat model.Chat, registry *tools.Registry, maxTurns int) *Engine {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Engine{
		chat:     chat,
		registry: registry,
		maxTurns: maxTurns,
	}
}

// Run executes one loop invocation. history must end with the user message
// that starts the turn; the engine never mutates the caller's slice.
//
// The returned channel is lazy and non-restartable: each message is emitted
// as soon as it is ready, and consumption drives further model calls and
// tool execution. The channel closes when the model returns a reply with no
// tool calls, the turn cap is reached, the endpoint faults (after one
// synthetic assistant message reporting it), or ctx is cancelled. Messages
// never silently outlive ctx: a cancelled consumer stops the loop.
func (e *Engine) Run(ctx context.Context, history []domain.Message) <-chan domain.Message {
	out := make(chan domain.Message)

	go func() {
		defer close(out)

		hist := slices.Clone(history)

		for turn := 1; turn <= e.maxTurns; turn++ {
			reply, err := e.chat.Send(ctx, hist)
			if err != nil {
				slog.Error("Endpoint fault, aborting loop", "turn", turn, "error", err)
				emit(ctx, out, domain.Message{
					Role:    domain.RoleAssistant,
					Content: []domain.Content{domain.TextContent(fmt.Sprintf("Error: %v", err))},
				})
				return
			}

			assignCallIDs(&reply, turn)

			hist = append(hist, reply)
			if !emit(ctx, out, reply) {
				return
			}

			calls := reply.ToolCalls()
			if len(calls) == 0 {
				// Final answer delivered.
				return
			}

			results := make([]domain.Content, 0, len(calls))
			for _, call := range calls {
				content, isErr := e.dispatch(ctx, call)
				results = append(results, domain.Content{
					Type: domain.ContentTypeToolResult,
					ToolResult: &domain.ToolResult{
						ToolCallID: call.ID,
						Content:    content,
						IsError:    isErr,
					},
				})
			}

			resultMsg := domain.Message{Role: domain.RoleUser, Content: results}
			hist = append(hist, resultMsg)
			if !emit(ctx, out, resultMsg) {
				return
			}
		}

		slog.Warn("Turn cap reached before final answer", "maxTurns", e.maxTurns)
	}()

	return out
}

// assignCallIDs replaces any endpoint-provided identifiers with the
// deterministic turn-scoped scheme: turn index plus ordinal position.
func assignCallIDs(msg *domain.Message, turn int) {
	ordinal := 0
	for i := range msg.Content {
		if msg.Content[i].Type == domain.ContentTypeToolUse && msg.Content[i].ToolUse != nil {
			msg.Content[i].ToolUse.ID = fmt.Sprintf("call_%d_%d", turn, ordinal)
			ordinal++
		}
	}
}

// dispatch routes one tool call to its provider. Every failure mode is
// converted into result text plus an error flag; nothing propagates.
func (e *Engine) dispatch(ctx context.Context, call domain.ToolCall) (result string, isError bool) {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		slog.Warn("Unknown tool called", "tool", call.Name)
		return fmt.Sprintf("Error: Unknown tool %s", call.Name), true
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", call.Name, "panic", r)
			result = fmt.Sprintf("Error executing %s: %v", call.Name, r)
			isError = true
		}
	}()

	slog.Debug("Dispatching tool", "tool", call.Name, "callID", call.ID)
	out, err := tool.Execute(ctx, call.Input)
	if err != nil {
		return err.Error(), true
	}
	return out, false
}

// emit sends a message unless the consumer is gone. Returns false when ctx
// is done, which discards the message rather than blocking forever.
func emit(ctx context.Context, out chan<- domain.Message, msg domain.Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
