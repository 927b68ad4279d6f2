package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pioneer-chat/internal/domain"
	"pioneer-chat/internal/observability"
)

const (
	knowledgeToolName = "query_user_knowledge"
	maxToolRounds     = 3

	toolNoAnswer       = "No answer available."
	toolUnknown        = "Unknown tool."
	toolInvalidRequest = "Invalid arguments: a non-empty question is required."
)

func knowledgeTool() domain.ToolSpec {
	return domain.ToolSpec{
		Name: knowledgeToolName,
		Description: "Query the user's knowledge base to ask specific questions about their preferences, " +
			"relationships, professional network, communication patterns, and other contextual information. " +
			"Use this only when you need detailed information about the user that may not be in the general " +
			"profile summary or messages",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type": "string",
					"description": "A specific question to ask about the user. Examples: " +
						"'Who are the most important people in the user's professional network?', " +
						"'What are the user's communication preferences?', " +
						"'What topics does the user discuss most frequently?'",
				},
			},
			"required": []string{"question"},
		},
	}
}

// complete requests the answer. With the knowledge tool enabled, tool calls
// are executed and fed back for up to maxToolRounds; the last round is sent
// without tools so the model has to answer in text.
func (s *ChatService) complete(ctx context.Context, logger *slog.Logger, userID string, messages []domain.ChatMessage) (string, error) {
	var tools []domain.ToolSpec
	if s.knowledgeTool {
		tools = []domain.ToolSpec{knowledgeTool()}
	}

	for round := 0; ; round++ {
		req := domain.CompletionRequest{Messages: messages}
		if round < maxToolRounds {
			req.Tools = tools
		}

		start := time.Now()
		out, err := s.llm.Complete(ctx, req)
		if err != nil {
			s.metrics.ObserveCall("completion", observability.OutcomeFailed, time.Since(start))
			logger.Error("completion failed", "status", statusOf(err), "round", round, "err", err)
			return "", err
		}
		s.metrics.ObserveCall("completion", observability.OutcomeOK, time.Since(start))

		if len(out.ToolCalls) == 0 || len(req.Tools) == 0 {
			if strings.TrimSpace(out.Content) == "" {
				return "", errors.New("usecase: completion returned no content")
			}
			return out.Content, nil
		}

		messages = append(messages, domain.ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   out.Content,
			ToolCalls: out.ToolCalls,
		})
		for _, call := range out.ToolCalls {
			messages = append(messages, domain.ChatMessage{
				Role:       domain.RoleTool,
				ToolCallID: call.ID,
				Content:    s.runTool(ctx, logger, userID, call),
			})
		}
	}
}

// runTool executes one tool call. Failures become a textual tool result so
// the model can continue.
func (s *ChatService) runTool(ctx context.Context, logger *slog.Logger, userID string, call domain.ToolCall) string {
	s.metrics.ObserveToolCall(call.Name)
	if call.Name != knowledgeToolName {
		logger.Warn("model requested unknown tool", "tool", call.Name)
		return toolUnknown
	}

	var args struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || strings.TrimSpace(args.Question) == "" {
		logger.Warn("invalid tool arguments", "tool", call.Name, "arguments", call.Arguments)
		return toolInvalidRequest
	}

	start := time.Now()
	answer, err := s.pioneer.Query(ctx, userID, args.Question)
	if err != nil {
		s.metrics.ObserveCall("query", observability.OutcomeDegraded, time.Since(start))
		logger.Error("knowledge query failed", "endpoint", "/query", "status", statusOf(err), "err", err)
		return toolNoAnswer
	}
	s.metrics.ObserveCall("query", observability.OutcomeOK, time.Since(start))
	return answer
}
