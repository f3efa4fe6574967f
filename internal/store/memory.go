package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory keeps conversations in process. Used for tests and DATABASE_URL=memory://.
type Memory struct {
	mu    sync.RWMutex
	convs map[uuid.UUID]*Conversation
}

func NewMemory() *Memory {
	return &Memory{convs: make(map[uuid.UUID]*Conversation)}
}

func (m *Memory) Close() {}

func (m *Memory) CreateConversation(_ context.Context, userID, title string) (*Conversation, error) {
	ts := now()
	c := &Conversation{ID: uuid.New(), UserID: userID, Title: title, LastInteractionAt: ts, CreatedAt: ts}

	m.mu.Lock()
	m.convs[c.ID] = c
	m.mu.Unlock()

	out := *c
	out.Messages = nil
	return &out, nil
}

func (m *Memory) GetConversation(_ context.Context, userID string, id uuid.UUID) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.owned(userID, id)
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	out.Messages = append([]Message{}, c.Messages...)
	return &out, nil
}

func (m *Memory) RecentMessages(_ context.Context, userID string, id uuid.UUID, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.owned(userID, id)
	if !ok {
		return nil, ErrNotFound
	}
	start := len(c.Messages) - limit
	if start < 0 {
		start = 0
	}
	return append([]Message{}, c.Messages[start:]...), nil
}

func (m *Memory) ListConversations(_ context.Context, userID string) ([]ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConversationSummary, 0)
	for _, c := range m.convs {
		if c.UserID != userID {
			continue
		}
		cs := ConversationSummary{
			ID:                c.ID,
			Title:             c.Title,
			LastInteractionAt: c.LastInteractionAt,
			PairCount:         len(c.Messages),
		}
		if n := len(c.Messages); n > 0 {
			cs.LastQuestion = c.Messages[n-1].Question
			cs.LastAnswer = c.Messages[n-1].Answer
		}
		out = append(out, cs)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastInteractionAt.After(out[j].LastInteractionAt)
	})
	return out, nil
}

func (m *Memory) RecordExchange(_ context.Context, userID string, ex Exchange) (*Recorded, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &Recorded{}
	var c *Conversation
	if ex.ConversationID == nil {
		c = &Conversation{ID: uuid.New(), UserID: userID, Title: ex.Title, CreatedAt: ex.At}
		m.convs[c.ID] = c
		rec.Created = true
	} else {
		var ok bool
		if c, ok = m.owned(userID, *ex.ConversationID); !ok {
			return nil, ErrNotFound
		}
		if c.Title == "" {
			c.Title = ex.Title
		}
	}
	c.LastInteractionAt = ex.At

	rec.Message = Message{
		ID:              uuid.New(),
		ConversationID:  c.ID,
		Question:        ex.Question,
		Answer:          ex.Answer,
		InteractionTime: ex.At,
	}
	c.Messages = append(c.Messages, rec.Message)

	rec.Conversation = *c
	rec.Conversation.Messages = nil
	return rec, nil
}

func (m *Memory) DeleteConversation(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owned(userID, id); !ok {
		return ErrNotFound
	}
	delete(m.convs, id)
	return nil
}

// owned must be called with mu held.
func (m *Memory) owned(userID string, id uuid.UUID) (*Conversation, bool) {
	c, ok := m.convs[id]
	if !ok || c.UserID != userID {
		return nil, false
	}
	return c, true
}
