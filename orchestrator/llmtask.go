package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/PromptKit/runtime/logger"
	"github.com/AltairaLabs/PromptKit/runtime/media"
	"github.com/AltairaLabs/PromptKit/runtime/providers"
	"github.com/AltairaLabs/PromptKit/runtime/retrieval"
	"github.com/AltairaLabs/PromptKit/runtime/statestore"
	"github.com/AltairaLabs/PromptKit/runtime/tools"
	"github.com/AltairaLabs/PromptKit/runtime/types"
)

// toolSchemaValidator is shared across every session: SchemaValidator caches
// compiled schemas keyed by their raw JSON, so reusing one instance avoids
// recompiling the same tool schema on every call. Its cache is a plain map,
// not safe for concurrent use, so every access goes through
// toolSchemaValidatorMu — runTools calls runTool concurrently via errgroup.
var (
	toolSchemaValidator   = tools.NewSchemaValidator()
	toolSchemaValidatorMu sync.Mutex
)

// startThinking resolves the LLM provider, retrieves contexts under a
// bounded timeout, builds the prompt, and launches the LLM task as an
// independent goroutine posting delta/tool/end/error events back to the
// scheduler queue. It returns immediately; the caller does not block on
// the LLM call. image/imageMIMEType carry an optional attachment on the
// current turn; when set, it is resized to the agent's multimodal limits
// and attached to the current-turn message as a content part rather than
// appended as plain text.
func (s *Session) startThinking(parent context.Context, userText string, image []byte, imageMIMEType string) {
	provider, ok := s.deps.LLM.Get(s.agent.LLMProviderID)
	if !ok {
		s.q.post(parent, event{kind: EvLLMError, err: NewError(KindLLMFatal, &providers.UnsupportedProviderError{ProviderType: s.agent.LLMProviderID})})
		return
	}

	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.llmCancel = cancel
	s.mu.Unlock()

	state, err := s.loadConversationState(ctx)
	if err != nil {
		s.q.post(parent, event{kind: EvLLMError, err: NewError(KindLLMFatal, err)})
		return
	}

	contexts, retrieved := retrieval.Retrieve(ctx, s.deps.Retrieval, s.agent.Retrieval, userText)
	if !retrieved && s.agent.Retrieval.ProviderID != "" && s.currentTurn != nil {
		s.currentTurn.RetrievalFailed = true
	}

	var imagePart *types.ContentPart
	if len(image) > 0 {
		part, err := buildImagePart(image)
		if err != nil {
			logger.WarnContext(ctx, "orchestrator: dropping unprocessable image attachment", "session_id", s.id, "error", err, "mime_type", imageMIMEType)
		} else {
			imagePart = part
		}
	}

	messages := BuildPrompt(s.agent, state, contexts, userText, imagePart)

	req := providers.ChatRequest{
		System:   s.agent.SystemPrompt,
		Messages: messages,
	}

	go s.runLLM(ctx, provider, req, state, userText)
}

// buildImagePart resizes raw image bytes to the orchestrator's multimodal
// limits and wraps the result as an inline-data content part ready to
// attach to an outgoing chat message.
func buildImagePart(data []byte) (*types.ContentPart, error) {
	result, err := media.ResizeImage(data, media.DefaultImageResizeConfig())
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(result.Data)
	part := types.NewImagePartFromData(encoded, result.MIMEType, nil)
	return &part, nil
}

// loadConversationState loads persisted state for the session's
// conversation, evicting to the agent's token budget first if it has
// grown past it.
func (s *Session) loadConversationState(ctx context.Context) (*statestore.ConversationState, error) {
	state, err := s.deps.Store.Load(ctx, s.conversationID)
	if err != nil {
		return nil, err
	}
	if s.deps.Summarizer != nil {
		_, _ = EvictToTokenBudget(ctx, state, s.agent.historyTokenBudget(), s.deps.Summarizer)
	}
	return state, nil
}

// runLLM drives the provider's streaming chat call to completion, handling
// the tool-call resume loop itself: a tool_calls finish reason triggers a
// local tool execution, appends the tool result to history, and issues
// another ChatStream call rather than returning control to the scheduler.
func (s *Session) runLLM(ctx context.Context, provider providers.Provider, req providers.ChatRequest, state *statestore.ConversationState, userText string) {
	var full strings.Builder

	for {
		var chunks <-chan providers.StreamChunk
		err := withRetry(ctx, s.agent.LLMProviderID, func() error {
			c, openErr := provider.ChatStream(ctx, req)
			if openErr != nil {
				return openErr
			}
			chunks = c
			return nil
		})
		if err != nil {
			s.q.post(ctx, event{kind: EvLLMError, err: NewError(KindLLMTransient, err)})
			return
		}

		var finishReason string
		var toolCalls []types.MessageToolCall

		for chunk := range chunks {
			if ctx.Err() != nil {
				// Cancelled by bargeIn or onSessionCancel, both of which
				// persist the turn's accumulated text themselves before
				// cancelling this context; nothing left to save here.
				return
			}
			if chunk.Error != nil {
				s.q.post(ctx, event{kind: EvLLMError, err: NewError(KindLLMTransient, chunk.Error)})
				return
			}
			if chunk.Delta != "" {
				full.WriteString(chunk.Delta)
				s.q.post(ctx, event{kind: EvLLMDelta, text: chunk.Delta})
			}
			if chunk.FinishReason != nil {
				finishReason = *chunk.FinishReason
				toolCalls = chunk.ToolCalls
			}
		}

		if finishReason == "tool_calls" && len(toolCalls) > 0 {
			req.Messages = append(req.Messages, types.Message{Role: "assistant", ToolCalls: toolCalls})
			for _, msg := range s.runTools(ctx, toolCalls) {
				req.Messages = append(req.Messages, msg)
			}
			continue
		}

		s.q.post(ctx, event{kind: EvLLMEnd, text: full.String(), finishReason: finishReason})
		s.appendTurnToState(ctx, state, userText, full.String())
		return
	}
}

// runTools executes every tool call the provider requested in one LLM turn
// concurrently via errgroup, then posts EvLLMTool observer events and
// builds the tool-result messages in the provider's original call order
// regardless of completion order.
func (s *Session) runTools(ctx context.Context, calls []types.MessageToolCall) []types.Message {
	results := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			result := s.runTool(gctx, call)
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	messages := make([]types.Message, len(calls))
	for i, call := range calls {
		s.q.post(ctx, event{kind: EvLLMTool, toolName: call.Name, toolArgs: string(call.Args), toolResult: results[i]})
		messages[i] = types.Message{
			Role: "tool",
			ToolResult: &types.MessageToolResult{
				ID:      call.ID,
				Name:    call.Name,
				Content: results[i],
			},
		}
	}
	return messages
}

// runTool invokes the named tool if the deps bundle has one registered,
// degrading to an error string result rather than failing the turn when it
// doesn't: a missing tool implementation is a configuration problem, not a
// reason to abort an otherwise-working conversation. When the agent carries
// a schema descriptor for this tool, arguments and the tool's own result
// are both validated against it before being handed back to the provider.
func (s *Session) runTool(ctx context.Context, call types.MessageToolCall) string {
	fn, ok := s.deps.Tools[call.Name]
	if !ok {
		return `{"error":"tool not available: ` + call.Name + `"}`
	}

	descriptor := s.deps.ToolSchemas[call.Name]
	if descriptor != nil {
		toolSchemaValidatorMu.Lock()
		err := toolSchemaValidator.ValidateArgs(descriptor, call.Args)
		toolSchemaValidatorMu.Unlock()
		if err != nil {
			b, _ := json.Marshal(map[string]string{"error": err.Error()})
			return string(b)
		}
	}

	result, err := fn(ctx, string(call.Args))
	if err != nil {
		b, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(b)
	}

	if descriptor != nil {
		toolSchemaValidatorMu.Lock()
		err := toolSchemaValidator.ValidateResult(descriptor, json.RawMessage(result))
		toolSchemaValidatorMu.Unlock()
		if err != nil {
			b, _ := json.Marshal(map[string]string{"error": err.Error()})
			return string(b)
		}
	}

	return result
}

func (s *Session) appendTurnToState(ctx context.Context, state *statestore.ConversationState, userText, agentText string) {
	state.Messages = append(state.Messages,
		types.Message{Role: "user", Content: userText},
		types.Message{Role: "assistant", Content: agentText},
	)
	_ = s.deps.Store.Save(ctx, state)
}

// persistInterruptedTurn appends a barge-in or cancellation's partial
// exchange to conversation history so it isn't silently dropped from the
// next turn's prompt. Called from the scheduler goroutine (bargeIn,
// finalizeTurn), so it loads its own copy of state rather than sharing the
// one runLLM holds, which may still be in flight on another goroutine.
func (s *Session) persistInterruptedTurn(ctx context.Context, userText, agentText string) {
	if userText == "" && agentText == "" {
		return
	}
	state, err := s.deps.Store.Load(ctx, s.conversationID)
	if err != nil {
		logger.ErrorContext(ctx, "orchestrator: failed to load conversation state for interrupted turn", "session_id", s.id, "error", err)
		return
	}
	state.Messages = append(state.Messages,
		types.Message{Role: "user", Content: userText},
		types.Message{Role: "assistant", Content: agentText, Meta: map[string]interface{}{"interrupted": true}},
	)
	if err := s.deps.Store.Save(ctx, state); err != nil {
		logger.ErrorContext(ctx, "orchestrator: failed to save interrupted turn", "session_id", s.id, "error", err)
	}
}
