package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/AltairaLabs/PromptKit/runtime/retrieval"
	"github.com/AltairaLabs/PromptKit/runtime/statestore"
	"github.com/AltairaLabs/PromptKit/runtime/types"
)

// estimateTokens is a rough word-count heuristic, the same approximation
// the context-builder middleware uses elsewhere in this module. It is not
// meant to match any specific tokenizer exactly.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// BuildPrompt assembles the message list for a Thinking-entry LLM call:
// system prompt, retrieved contexts as an additional system message,
// token-budget-capped history (oldest turns elided to a Summary rather
// than dropped), and the current user message. When imagePart is non-nil,
// the current-turn message is built as a multimodal message (text part
// plus the image part) instead of a plain-text message.
func BuildPrompt(
	agent AgentReference, state *statestore.ConversationState, contexts []retrieval.Context, userText string,
	imagePart *types.ContentPart,
) []types.Message {
	messages := make([]types.Message, 0, len(state.Messages)+3)

	if agent.SystemPrompt != "" {
		messages = append(messages, types.Message{Role: "system", Content: agent.SystemPrompt})
	}
	if len(contexts) > 0 {
		messages = append(messages, types.Message{Role: "system", Content: formatContexts(contexts)})
	}
	if len(state.Summaries) > 0 {
		messages = append(messages, types.Message{Role: "system", Content: formatSummaries(state.Summaries)})
	}

	budget := agent.historyTokenBudget()
	messages = append(messages, cappedHistory(state.Messages, budget)...)
	messages = append(messages, buildUserMessage(userText, imagePart))

	return messages
}

// buildUserMessage builds the current turn's user message, attaching
// imagePart as multimodal content when present rather than folding it
// into the plain-text Content field.
func buildUserMessage(userText string, imagePart *types.ContentPart) types.Message {
	if imagePart == nil {
		return types.Message{Role: "user", Content: userText}
	}
	msg := types.Message{Role: "user"}
	if userText != "" {
		msg.AddTextPart(userText)
	}
	msg.AddPart(*imagePart)
	return msg
}

func formatContexts(contexts []retrieval.Context) string {
	var b strings.Builder
	b.WriteString("Relevant context:\n")
	for _, c := range contexts {
		b.WriteString("- ")
		b.WriteString(c.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func formatSummaries(summaries []statestore.Summary) string {
	var b strings.Builder
	b.WriteString("Summary of earlier conversation:\n")
	for _, s := range summaries {
		b.WriteString(s.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// cappedHistory keeps the most recent messages that fit budget tokens,
// oldest-first once selected.
func cappedHistory(messages []types.Message, budget int) []types.Message {
	if budget <= 0 {
		return messages
	}
	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		t := estimateTokens(messages[i].Content)
		if used+t > budget {
			break
		}
		used += t
		start = i
	}
	return messages[start:]
}

// EvictToTokenBudget moves the oldest turns out of state.Messages into a
// new Summary once the full history exceeds budget tokens, so eviction
// compresses instead of silently dropping context. It mutates state and
// returns the number of messages evicted (0 if nothing needed eviction).
func EvictToTokenBudget(
	ctx context.Context, state *statestore.ConversationState, budget int, summarizer statestore.Summarizer,
) (int, error) {
	total := 0
	for _, m := range state.Messages {
		total += estimateTokens(m.Content)
	}
	if total <= budget || len(state.Messages) == 0 {
		return 0, nil
	}

	// Evict the oldest half of messages, keep the rest under budget.
	evictCount := len(state.Messages) / 2
	if evictCount == 0 {
		evictCount = 1
	}
	evicted := state.Messages[:evictCount]

	content, err := summarizer.Summarize(ctx, evicted)
	if err != nil {
		return 0, err
	}

	tokenCount := 0
	for _, m := range evicted {
		tokenCount += estimateTokens(m.Content)
	}

	state.Summaries = append(state.Summaries, statestore.Summary{
		StartTurn:  0,
		EndTurn:    evictCount - 1,
		Content:    content,
		TokenCount: tokenCount,
		CreatedAt:  time.Now(),
	})
	state.Messages = state.Messages[evictCount:]

	return evictCount, nil
}
