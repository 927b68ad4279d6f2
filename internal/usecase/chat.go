package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pioneer-chat/internal/domain"
	"pioneer-chat/internal/logging"
	"pioneer-chat/internal/observability"
)

const (
	defaultSummaryMaxChars = 1000
	defaultContextChunksK  = 5
)

// Personalizer is the subset of the personalization service used on the chat path.
type Personalizer interface {
	Summary(ctx context.Context, userID string, maxChars int) (string, error)
	Chunks(ctx context.Context, userID string, history []domain.ChatMessage, k int) ([]domain.ContextChunk, error)
	Ingest(ctx context.Context, userID string, messages []domain.Message) error
	Query(ctx context.Context, userID, question string) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, in domain.CompletionRequest) (domain.Completion, error)
}

// FailureRecorder keeps a diagnostic trail of conversations that could not be ingested.
type FailureRecorder interface {
	RecordFailedIngest(ctx context.Context, f domain.IngestFailure) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ChatOptions struct {
	SummaryMaxChars int
	ContextChunksK  int
	KnowledgeTool   bool
	Failures        FailureRecorder
	Metrics         *observability.Metrics
}

type ChatService struct {
	pioneer  Personalizer
	llm      Completer
	failures FailureRecorder
	metrics  *observability.Metrics

	summaryMaxChars int
	contextChunksK  int
	knowledgeTool   bool

	now func() time.Time
}

type ChatInput struct {
	Message   string
	History   []domain.Message
	UserID    string
	UserEmail string
}

type ChatOutput struct {
	Response        string
	RelevantContext []domain.ContextChunk // nil when nothing was retrieved
	UserProfile     *string               // nil when no summary was available
}

func NewChatService(p Personalizer, llm Completer, opts ChatOptions) (*ChatService, error) {
	if p == nil {
		return nil, errors.New("usecase: personalizer must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if opts.SummaryMaxChars <= 0 {
		opts.SummaryMaxChars = defaultSummaryMaxChars
	}
	if opts.ContextChunksK <= 0 {
		opts.ContextChunksK = defaultContextChunksK
	}
	return &ChatService{
		pioneer:         p,
		llm:             llm,
		failures:        opts.Failures,
		metrics:         opts.Metrics,
		summaryMaxChars: opts.SummaryMaxChars,
		contextChunksK:  opts.ContextChunksK,
		knowledgeTool:   opts.KnowledgeTool,
		now:             time.Now,
	}, nil
}

// Chat runs one personalized turn: profile, context, completion, ingest, in
// that order. Only a completion failure fails the request.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return ChatOutput{}, invalidInput("missing_user_id")
	}
	if strings.TrimSpace(in.Message) == "" {
		return ChatOutput{}, invalidInput("empty_message")
	}
	for _, m := range in.History {
		if !domain.IsClientRole(m.Role) {
			return ChatOutput{}, invalidInput("invalid_role")
		}
	}

	logger := logging.FromContext(ctx).With("user_id", userID)
	logger.Debug("processing chat", "user_email", in.UserEmail, "history_len", len(in.History))

	summary, hasSummary := s.fetchProfile(ctx, logger, userID)

	conversation := make(domain.Conversation, 0, len(in.History)+2)
	conversation = append(conversation, in.History...)
	conversation = append(conversation, domain.Message{
		Role:      domain.RoleUser,
		Content:   in.Message,
		Timestamp: s.timestamp(),
	})

	chunks := s.retrieveContext(ctx, logger, userID, conversation)

	answer, err := s.complete(ctx, logger, userID, buildPromptMessages(summary, in.History, in.Message, chunks))
	if err != nil {
		return ChatOutput{}, completionFailed(err)
	}

	conversation = append(conversation, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   answer,
		Timestamp: s.timestamp(),
	})
	// Ingestion must finish even if the caller has gone away.
	s.ingest(context.WithoutCancel(ctx), logger, userID, conversation)

	out := ChatOutput{Response: answer}
	if len(chunks) > 0 {
		out.RelevantContext = chunks
	}
	if hasSummary {
		out.UserProfile = &summary
	}
	return out, nil
}

// fetchProfile is best-effort: any failure yields no summary.
func (s *ChatService) fetchProfile(ctx context.Context, logger *slog.Logger, userID string) (string, bool) {
	start := time.Now()
	summary, err := s.pioneer.Summary(ctx, userID, s.summaryMaxChars)
	if errors.Is(err, domain.ErrNoSummary) {
		s.metrics.ObserveCall("summary", observability.OutcomeOK, time.Since(start))
		logger.Debug("no profile summary yet", "endpoint", "/summary")
		return "", false
	}
	if err != nil {
		s.metrics.ObserveCall("summary", observability.OutcomeDegraded, time.Since(start))
		logger.Error("profile summary unavailable", "endpoint", "/summary", "status", statusOf(err), "err", err)
		return "", false
	}
	s.metrics.ObserveCall("summary", observability.OutcomeOK, time.Since(start))
	return summary, true
}

// retrieveContext is best-effort: any failure yields no chunks.
func (s *ChatService) retrieveContext(ctx context.Context, logger *slog.Logger, userID string, conv domain.Conversation) []domain.ContextChunk {
	start := time.Now()
	chunks, err := s.pioneer.Chunks(ctx, userID, conv.Turns(), s.contextChunksK)
	if err != nil {
		s.metrics.ObserveCall("chunks", observability.OutcomeDegraded, time.Since(start))
		logger.Error("context retrieval failed", "endpoint", "/chunks", "status", statusOf(err), "err", err)
		return nil
	}
	s.metrics.ObserveCall("chunks", observability.OutcomeOK, time.Since(start))
	logger.Debug("retrieved context", "chunks", len(chunks))
	return chunks
}

// ingest is best-effort: failures are logged and, when configured, recorded.
func (s *ChatService) ingest(ctx context.Context, logger *slog.Logger, userID string, conv domain.Conversation) {
	msgs := conv.WithTimestamps(s.timestamp())

	start := time.Now()
	err := s.pioneer.Ingest(ctx, userID, msgs)
	if err == nil {
		s.metrics.ObserveCall("ingest", observability.OutcomeOK, time.Since(start))
		logger.Debug("conversation ingested", "messages", len(msgs))
		return
	}
	s.metrics.ObserveCall("ingest", observability.OutcomeDegraded, time.Since(start))
	status := statusOf(err)
	logger.Error("conversation ingestion failed", "endpoint", "/ingest", "status", status, "err", err)

	if s.failures == nil {
		return
	}
	if recErr := s.failures.RecordFailedIngest(ctx, domain.IngestFailure{
		UserID:   userID,
		Reason:   err.Error(),
		Status:   status,
		Messages: msgs,
	}); recErr != nil {
		logger.Error("failed to record ingestion failure", "err", recErr)
	}
}

func (s *ChatService) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// statusOf returns the upstream HTTP status carried by err, or 0.
func statusOf(err error) int {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0
	}
	return statusErr.HTTPStatusCode()
}
