package usecase

import (
	"strings"

	"pioneer-chat/internal/domain"
)

const baseInstruction = "You are a helpful AI assistant."

// buildPromptMessages assembles the completion input: the personalized system
// message, the client's history verbatim (role and content only), and the
// current message annotated with retrieved context.
func buildPromptMessages(summary string, history []domain.Message, message string, chunks []domain.ContextChunk) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: buildSystemPrompt(summary),
	})
	messages = append(messages, domain.Conversation(history).Turns()...)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: buildUserMessage(message, chunks),
	})
	return messages
}

func buildSystemPrompt(summary string) string {
	if summary == "" {
		return baseInstruction
	}
	return baseInstruction +
		"\n\nUser Profile:\n" + summary +
		"\n\nKeep the user's preferences and context in mind when responding."
}

func buildUserMessage(message string, chunks []domain.ContextChunk) string {
	block := contextBlock(chunks)
	if block == "" {
		return message
	}
	return message + "\n\n[Relevant context from past conversations:\n" + block + "]"
}

// contextBlock renders one "- text" line per chunk. Chunks without text are
// skipped.
func contextBlock(chunks []domain.ContextChunk) string {
	lines := make([]string, 0, len(chunks))
	for _, c := range chunks {
		text := c.Text()
		if text == "" {
			continue
		}
		lines = append(lines, "- "+text)
	}
	return strings.Join(lines, "\n")
}
