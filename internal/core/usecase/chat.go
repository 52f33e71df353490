package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
)

const (
	defaultSessionID    = "default"
	defaultHistoryLimit = 12
)

// ChatUseCase adds per-session memory on top of answer synthesis.
type ChatUseCase struct {
	answerer      ports.LiteratureAnswerer
	reformulator  ports.QueryReformulator
	conversations ports.ConversationStore
	historyLimit  int
	logger        *slog.Logger
	now           func() time.Time
}

type ChatOption func(*ChatUseCase)

func WithChatLogger(logger *slog.Logger) ChatOption {
	return func(uc *ChatUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithHistoryLimit(limit int) ChatOption {
	return func(uc *ChatUseCase) {
		if limit > 0 {
			uc.historyLimit = limit
		}
	}
}

func NewChatUseCase(
	answerer ports.LiteratureAnswerer,
	reformulator ports.QueryReformulator,
	conversations ports.ConversationStore,
	opts ...ChatOption,
) *ChatUseCase {
	uc := &ChatUseCase{
		answerer:      answerer,
		reformulator:  reformulator,
		conversations: conversations,
		historyLimit:  defaultHistoryLimit,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *ChatUseCase) Chat(ctx context.Context, sessionID, input string) (*domain.Answer, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("query is required"))
	}
	sessionID = normalizeSessionID(sessionID)

	if _, err := uc.conversations.EnsureConversation(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}

	history, err := uc.conversations.ListRecentMessages(ctx, sessionID, uc.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	standalone := uc.standaloneQuery(ctx, history, input)

	answer, err := uc.answerer.Answer(ctx, standalone)
	if err != nil {
		return nil, err
	}

	// A failed turn leaves the history untouched.
	if err := uc.appendMessage(ctx, sessionID, domain.RoleUser, input); err != nil {
		return nil, err
	}
	if err := uc.appendMessage(ctx, sessionID, domain.RoleAssistant, answer.Text); err != nil {
		return nil, err
	}
	return answer, nil
}

func (uc *ChatUseCase) ClearHistory(ctx context.Context, sessionID string) error {
	sessionID = normalizeSessionID(sessionID)
	if err := uc.conversations.ClearConversation(ctx, sessionID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	uc.logger.Info("chat_history_cleared", "session_id", sessionID)
	return nil
}

// standaloneQuery keeps the raw input when there is no history or the
// rewrite fails.
func (uc *ChatUseCase) standaloneQuery(ctx context.Context, history []domain.ConversationMessage, input string) string {
	if len(history) == 0 {
		return input
	}
	rewritten, err := uc.reformulator.Reformulate(ctx, history, input)
	if err != nil {
		uc.logger.Warn("chat_reformulate_failed", "error", err)
		return input
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return input
	}
	uc.logger.Debug("chat_reformulated", "input", input, "standalone", rewritten)
	return rewritten
}

func (uc *ChatUseCase) appendMessage(ctx context.Context, sessionID, role, content string) error {
	err := uc.conversations.AppendMessage(ctx, domain.ConversationMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: uc.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("append %s message: %w", role, err)
	}
	return nil
}

func normalizeSessionID(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return defaultSessionID
	}
	return sessionID
}
