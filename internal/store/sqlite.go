package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLite is the single-file backend used when DATABASE_URL is a path.
type SQLite struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = filepath.Join("data", "adapta.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (s *SQLite) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	ts := now()
	c := &Conversation{ID: uuid.New(), UserID: userID, Title: title, LastInteractionAt: ts, CreatedAt: ts}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

func (s *SQLite) GetConversation(ctx context.Context, userID string, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("interaction_time ASC, rowid ASC")
		}).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "get conversation")
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return &c, nil
}

func (s *SQLite) RecentMessages(ctx context.Context, userID string, id uuid.UUID, limit int) ([]Message, error) {
	db := s.db.WithContext(ctx)
	if err := db.Select("id").Where("id = ? AND user_id = ?", id, userID).First(&Conversation{}).Error; err != nil {
		return nil, notFound(err, "check conversation")
	}

	msgs := make([]Message, 0, limit)
	err := db.Where("conversation_id = ?", id).
		Order("interaction_time DESC, rowid DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	reverse(msgs)
	return msgs, nil
}

func (s *SQLite) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	out := make([]ConversationSummary, 0)
	err := s.db.WithContext(ctx).Raw(`
		SELECT c.id, c.title, c.last_interaction_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS pair_count,
		       COALESCE((SELECT m.question FROM messages m WHERE m.conversation_id = c.id
		                 ORDER BY m.interaction_time DESC, m.rowid DESC LIMIT 1), '') AS last_question,
		       COALESCE((SELECT m.answer FROM messages m WHERE m.conversation_id = c.id
		                 ORDER BY m.interaction_time DESC, m.rowid DESC LIMIT 1), '') AS last_answer
		FROM conversations c
		WHERE c.user_id = ?
		ORDER BY c.last_interaction_at DESC`, userID).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (s *SQLite) RecordExchange(ctx context.Context, userID string, ex Exchange) (*Recorded, error) {
	rec := &Recorded{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ex.ConversationID == nil {
			rec.Created = true
			rec.Conversation = Conversation{ID: uuid.New(), UserID: userID, Title: ex.Title, LastInteractionAt: ex.At, CreatedAt: ex.At}
			if err := tx.Create(&rec.Conversation).Error; err != nil {
				return fmt.Errorf("insert conversation: %w", err)
			}
		} else {
			var c Conversation
			if err := tx.Where("id = ? AND user_id = ?", *ex.ConversationID, userID).First(&c).Error; err != nil {
				return notFound(err, "load conversation")
			}
			if c.Title == "" {
				c.Title = ex.Title
			}
			c.LastInteractionAt = ex.At
			err := tx.Model(&Conversation{}).Where("id = ?", c.ID).Updates(map[string]any{
				"title":               c.Title,
				"last_interaction_at": c.LastInteractionAt,
			}).Error
			if err != nil {
				return fmt.Errorf("update conversation: %w", err)
			}
			rec.Conversation = c
		}

		rec.Message = Message{
			ID:              uuid.New(),
			ConversationID:  rec.Conversation.ID,
			Question:        ex.Question,
			Answer:          ex.Answer,
			InteractionTime: ex.At,
		}
		if err := tx.Create(&rec.Message).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLite) DeleteConversation(ctx context.Context, userID string, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Conversation
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
			return notFound(err, "load conversation")
		}
		if err := tx.Where("conversation_id = ?", c.ID).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Delete(&c).Error; err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return nil
	})
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
