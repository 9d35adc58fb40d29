package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"presence-hub/internal/models"
	"presence-hub/internal/types"
)

type MessageRepository interface {
	Save(ctx context.Context, message *models.Message) error
	Conversation(ctx context.Context, userA, userB uuid.UUID, limit int, before time.Time) ([]*models.Message, error)
	MarkRead(ctx context.Context, id, reader uuid.UUID) error
	UnreadCount(ctx context.Context, user uuid.UUID) (int, error)
}

type PostgresMessagesRepo struct {
	pool *pgxpool.Pool
}

func NewMessagesRepo(pool *pgxpool.Pool) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{
		pool: pool,
	}
}

func (r *PostgresMessagesRepo) Save(ctx context.Context, m *models.Message) error {
	query := `
        INSERT INTO messages (id, sender_id, receiver_id, content, kind, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
    `

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.SenderID,
		m.ReceiverID,
		m.Content,
		m.Kind,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", m.ID, err)
	}
	return nil
}

func (r *PostgresMessagesRepo) Conversation(ctx context.Context, userA, userB uuid.UUID, limit int, before time.Time) ([]*models.Message, error) {
	if before.IsZero() {
		before = time.Now()
	}

	query := `
        SELECT id, sender_id, receiver_id, content, kind, is_read, read_at, created_at
        FROM messages
        WHERE created_at < $3
          AND deleted = false
          AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
        ORDER BY created_at DESC
        LIMIT $4
    `

	rows, err := r.pool.Query(ctx, query, userA, userB, before, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.ReceiverID,
			&m.Content,
			&m.Kind,
			&m.Read,
			&m.ReadAt,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// MarkRead only succeeds for the receiver of the message.
func (r *PostgresMessagesRepo) MarkRead(ctx context.Context, id, reader uuid.UUID) error {
	query := `
		UPDATE messages
		SET is_read = true, read_at = NOW()
		WHERE id = $1 AND receiver_id = $2 AND is_read = false`

	tag, err := r.pool.Exec(ctx, query, id, reader)
	if err != nil {
		return fmt.Errorf("mark message %s read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresMessagesRepo) UnreadCount(ctx context.Context, user uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND is_read = false AND deleted = false`,
		user,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// EnvelopeStore adapts a MessageRepository to the hub's persist-then-deliver
// hook.
type EnvelopeStore struct {
	Messages MessageRepository
}

func (s EnvelopeStore) Save(ctx context.Context, env *types.Envelope) (string, error) {
	msg, err := MessageFromEnvelope(env)
	if err != nil {
		return "", err
	}
	if err := s.Messages.Save(ctx, msg); err != nil {
		return "", err
	}
	return msg.ID.String(), nil
}

func MessageFromEnvelope(env *types.Envelope) (*models.Message, error) {
	sender, err := uuid.Parse(env.Sender)
	if err != nil {
		return nil, fmt.Errorf("sender id %q: %w", env.Sender, err)
	}
	receiver, err := uuid.Parse(env.Receiver)
	if err != nil {
		return nil, fmt.Errorf("receiver id %q: %w", env.Receiver, err)
	}
	return &models.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    env.Content,
		Kind:       env.Type,
		CreatedAt:  env.Timestamp,
	}, nil
}
