package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    last_interaction_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS conversations_user_recent_idx
    ON conversations (user_id, last_interaction_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    interaction_time TIMESTAMPTZ NOT NULL DEFAULT now(),
    seq BIGSERIAL
);

CREATE INDEX IF NOT EXISTS messages_conversation_time_idx
    ON messages (conversation_id, interaction_time, seq);`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	ts := now()
	c := &Conversation{ID: uuid.New(), UserID: userID, Title: title, LastInteractionAt: ts, CreatedAt: ts}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, user_id, title, last_interaction_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.Title, c.LastInteractionAt, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

func (s *Postgres) GetConversation(ctx context.Context, userID string, id uuid.UUID) (*Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, last_interaction_at, created_at
		FROM conversations WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, question, answer, interaction_time
		FROM messages WHERE conversation_id = $1
		ORDER BY interaction_time ASC, seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	c.Messages, err = collectMessages(rows)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Postgres) RecentMessages(ctx context.Context, userID string, id uuid.UUID, limit int) ([]Message, error) {
	var owned bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1 AND user_id = $2)`,
		id, userID,
	).Scan(&owned)
	if err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if !owned {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, question, answer, interaction_time
		FROM messages WHERE conversation_id = $1
		ORDER BY interaction_time DESC, seq DESC
		LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (s *Postgres) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.title, c.last_interaction_at,
		       (SELECT count(*) FROM messages m WHERE m.conversation_id = c.id),
		       COALESCE(l.question, ''), COALESCE(l.answer, '')
		FROM conversations c
		LEFT JOIN LATERAL (
		    SELECT question, answer FROM messages
		    WHERE conversation_id = c.id
		    ORDER BY interaction_time DESC, seq DESC
		    LIMIT 1
		) l ON true
		WHERE c.user_id = $1
		ORDER BY c.last_interaction_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]ConversationSummary, 0)
	for rows.Next() {
		var cs ConversationSummary
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.LastInteractionAt, &cs.PairCount, &cs.LastQuestion, &cs.LastAnswer); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// RecordExchange appends a message and bumps the conversation in one
// transaction. An existing conversation row is locked for the duration.
func (s *Postgres) RecordExchange(ctx context.Context, userID string, ex Exchange) (*Recorded, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec := &Recorded{}
	if ex.ConversationID == nil {
		rec.Created = true
		rec.Conversation = Conversation{ID: uuid.New(), UserID: userID, Title: ex.Title, LastInteractionAt: ex.At, CreatedAt: ex.At}
		_, err = tx.Exec(ctx, `
			INSERT INTO conversations (id, user_id, title, last_interaction_at, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.Conversation.ID, userID, ex.Title, ex.At, ex.At,
		)
		if err != nil {
			return nil, fmt.Errorf("insert conversation: %w", err)
		}
	} else {
		c, err := scanConversation(tx.QueryRow(ctx, `
			SELECT id, user_id, title, last_interaction_at, created_at
			FROM conversations WHERE id = $1 AND user_id = $2
			FOR UPDATE`, *ex.ConversationID, userID))
		if err != nil {
			return nil, err
		}
		if c.Title == "" {
			c.Title = ex.Title
		}
		c.LastInteractionAt = ex.At
		_, err = tx.Exec(ctx, `
			UPDATE conversations SET title = $1, last_interaction_at = $2
			WHERE id = $3`,
			c.Title, c.LastInteractionAt, c.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("update conversation: %w", err)
		}
		rec.Conversation = *c
	}

	rec.Message = Message{
		ID:              uuid.New(),
		ConversationID:  rec.Conversation.ID,
		Question:        ex.Question,
		Answer:          ex.Answer,
		InteractionTime: ex.At,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, question, answer, interaction_time)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.Message.ID, rec.Message.ConversationID, rec.Message.Question, rec.Message.Answer, rec.Message.InteractionTime,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (s *Postgres) DeleteConversation(ctx context.Context, userID string, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM messages
		WHERE conversation_id = $1
		  AND conversation_id IN (SELECT id FROM conversations WHERE user_id = $2)`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.LastInteractionAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &c, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	msgs := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Question, &m.Answer, &m.InteractionTime); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
