package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for conversations that do not exist or belong to
// another user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("conversation not found")

type Conversation struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID            string    `gorm:"size:191;not null;index"`
	Title             string    `gorm:"size:255;not null;default:''"`
	LastInteractionAt time.Time `gorm:"not null;index"`
	CreatedAt         time.Time
	Messages          []Message `gorm:"constraint:OnDelete:CASCADE"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is one question/answer pair. It is never updated after insert.
type Message struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Question        string    `gorm:"type:text;not null"`
	Answer          string    `gorm:"type:text;not null"`
	InteractionTime time.Time `gorm:"not null;index"`
}

func (Message) TableName() string { return "messages" }

// ConversationSummary is the list-view projection of a conversation.
type ConversationSummary struct {
	ID                uuid.UUID
	Title             string
	LastInteractionAt time.Time
	PairCount         int
	LastQuestion      string
	LastAnswer        string
}

// Exchange is a completed question/answer to append. A nil ConversationID
// starts a new conversation titled Title; otherwise Title only fills an
// empty title on the existing one.
type Exchange struct {
	ConversationID *uuid.UUID
	Title          string
	Question       string
	Answer         string
	At             time.Time
}

type Recorded struct {
	Conversation Conversation
	Message      Message
	Created      bool
}

// Backend is implemented by every conversation store. All methods scope by
// userID; a conversation owned by someone else behaves as missing.
type Backend interface {
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	GetConversation(ctx context.Context, userID string, id uuid.UUID) (*Conversation, error)
	RecentMessages(ctx context.Context, userID string, id uuid.UUID, limit int) ([]Message, error)
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)
	RecordExchange(ctx context.Context, userID string, ex Exchange) (*Recorded, error)
	DeleteConversation(ctx context.Context, userID string, id uuid.UUID) error
	Close()
}

// Open picks a backend from the URL scheme: postgres:// and postgresql://
// use Postgres, memory:// keeps everything in process, anything else is a
// SQLite file path (an optional sqlite:// prefix is stripped).
func Open(ctx context.Context, databaseURL string) (Backend, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgres(ctx, databaseURL)
	case databaseURL == "memory://":
		return NewMemory(), nil
	default:
		return OpenSQLite(strings.TrimPrefix(databaseURL, "sqlite://"))
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
