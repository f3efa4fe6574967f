package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/adapta/internal/events"
	"github.com/MikeSquared-Agency/adapta/internal/inference"
	"github.com/MikeSquared-Agency/adapta/internal/metrics"
	"github.com/MikeSquared-Agency/adapta/internal/store"
)

// ContextWindow is the number of prior Q/A pairs sent with each question.
const ContextWindow = 3

const titleLimit = 50

type Store interface {
	CreateConversation(ctx context.Context, userID, title string) (*store.Conversation, error)
	GetConversation(ctx context.Context, userID string, id uuid.UUID) (*store.Conversation, error)
	RecentMessages(ctx context.Context, userID string, id uuid.UUID, limit int) ([]store.Message, error)
	ListConversations(ctx context.Context, userID string) ([]store.ConversationSummary, error)
	RecordExchange(ctx context.Context, userID string, ex store.Exchange) (*store.Recorded, error)
	DeleteConversation(ctx context.Context, userID string, id uuid.UUID) error
}

type Inference interface {
	Ask(ctx context.Context, req inference.AskRequest) (*inference.Answer, error)
}

// Service ties the conversation store, the inference client and event
// publishing together. It holds no per-user state.
type Service struct {
	store   Store
	llm     Inference
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(s Store, llm Inference, pub events.Publisher, logger *slog.Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{
		store:   s,
		llm:     llm,
		events:  pub,
		metrics: metrics.NewMetrics(),
		logger:  logger,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

type AskResult struct {
	ConversationID uuid.UUID
	Answer         string
	Status         string
	Created        bool
}

// Ask answers question within conversationID, or within a new conversation
// when conversationID is nil. Nothing is stored unless inference succeeds.
func (s *Service) Ask(ctx context.Context, userID, question string, conversationID *uuid.UUID) (*AskResult, error) {
	req := inference.AskRequest{Question: question}

	if conversationID != nil {
		history, err := s.store.RecentMessages(ctx, userID, *conversationID, ContextWindow)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.metrics.AskTotal.WithLabelValues("not_found").Inc()
			} else {
				s.metrics.AskTotal.WithLabelValues("store_error").Inc()
			}
			return nil, fmt.Errorf("load history: %w", err)
		}
		req.ConversationID = conversationID.String()
		req.Context = BuildContext(history)
	}

	answer, err := s.llm.Ask(ctx, req)
	if err != nil {
		s.metrics.AskTotal.WithLabelValues("upstream_error").Inc()
		return nil, fmt.Errorf("ask climate api: %w", err)
	}

	rec, err := s.store.RecordExchange(ctx, userID, store.Exchange{
		ConversationID: conversationID,
		Title:          Title(question),
		Question:       question,
		Answer:         answer.Answer,
		At:             s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.AskTotal.WithLabelValues("not_found").Inc()
		} else {
			s.metrics.AskTotal.WithLabelValues("store_error").Inc()
		}
		return nil, fmt.Errorf("record exchange: %w", err)
	}
	s.metrics.AskTotal.WithLabelValues("success").Inc()

	if rec.Created {
		s.publish(events.SubjectConversationCreated, events.ConversationCreated{
			ConversationID: rec.Conversation.ID.String(),
			UserID:         userID,
			Title:          rec.Conversation.Title,
			Timestamp:      events.Timestamp(rec.Conversation.CreatedAt),
		})
	}
	s.publish(events.SubjectMessageRecorded, events.MessageRecorded{
		ConversationID: rec.Conversation.ID.String(),
		MessageID:      rec.Message.ID.String(),
		UserID:         userID,
		QuestionChars:  len([]rune(question)),
		AnswerChars:    len([]rune(answer.Answer)),
		Status:         answer.Status,
		Timestamp:      events.Timestamp(rec.Message.InteractionTime),
	})

	return &AskResult{
		ConversationID: rec.Conversation.ID,
		Answer:         answer.Answer,
		Status:         answer.Status,
		Created:        rec.Created,
	}, nil
}

// NewConversation creates an empty, untitled conversation. The first
// question asked in it supplies the title.
func (s *Service) NewConversation(ctx context.Context, userID string) (*store.Conversation, error) {
	c, err := s.store.CreateConversation(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.publish(events.SubjectConversationCreated, events.ConversationCreated{
		ConversationID: c.ID.String(),
		UserID:         userID,
		Timestamp:      events.Timestamp(c.CreatedAt),
	})
	return c, nil
}

func (s *Service) Conversation(ctx context.Context, userID string, id uuid.UUID) (*store.Conversation, error) {
	c, err := s.store.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *Service) Conversations(ctx context.Context, userID string) ([]store.ConversationSummary, error) {
	list, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return list, nil
}

func (s *Service) DeleteConversation(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.store.DeleteConversation(ctx, userID, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	s.publish(events.SubjectConversationDeleted, events.ConversationDeleted{
		ConversationID: id.String(),
		UserID:         userID,
		Timestamp:      events.Timestamp(s.now()),
	})
	return nil
}

func (s *Service) publish(subject string, data any) {
	if err := s.events.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

// BuildContext renders the last ContextWindow messages, oldest first, as a
// plain-text memory block. It returns "" for an empty history.
func BuildContext(history []store.Message) string {
	if len(history) > ContextWindow {
		history = history[len(history)-ContextWindow:]
	}

	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Q: ")
		b.WriteString(m.Question)
		b.WriteString("\nA: ")
		b.WriteString(m.Answer)
	}
	return b.String()
}

// Title derives a conversation title from its first question.
func Title(question string) string {
	return Truncate(strings.TrimSpace(question), titleLimit)
}

// Truncate cuts s to n runes, appending "..." when anything was removed.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
