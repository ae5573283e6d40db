package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Message is one directed chat message. Deleting removes the row; editing
// mutates content and edited_at in place.
type Message struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"senderId"`
	RecipientID string     `json:"recipientId"`
	Content     string     `json:"content"`
	SentAt      time.Time  `json:"timestamp"`
	IsRead      bool       `json:"isRead"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
}

type MessageStore interface {
	Insert(ctx context.Context, msg Message) error
	Get(ctx context.Context, id string) (*Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	Delete(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	Conversation(ctx context.Context, userA, userB string) ([]Message, error)
	DeleteConversation(ctx context.Context, userA, userB string) error
}

type SQLiteMessageStore struct {
	db *sql.DB
}

func NewSQLiteMessageStore(db *sql.DB) *SQLiteMessageStore {
	return &SQLiteMessageStore{db: db}
}

func (s *SQLiteMessageStore) Insert(ctx context.Context, msg Message) error {
	query := `INSERT INTO messages (id, sender_id, recipient_id, content, sent_at, is_read, edited_at)
	          VALUES (@id, @sender_id, @recipient_id, @content, @sent_at, @is_read, @edited_at)`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("id", msg.ID),
		sql.Named("sender_id", msg.SenderID),
		sql.Named("recipient_id", msg.RecipientID),
		sql.Named("content", msg.Content),
		sql.Named("sent_at", msg.SentAt),
		sql.Named("is_read", msg.IsRead),
		sql.Named("edited_at", msg.EditedAt),
	)
	if err != nil {
		return fmt.Errorf("ExecContext(insert message): %w", err)
	}
	return nil
}

func (s *SQLiteMessageStore) Get(ctx context.Context, id string) (*Message, error) {
	query := `SELECT id, sender_id, recipient_id, content, sent_at, is_read, edited_at
	          FROM messages WHERE id = @id`
	row := s.db.QueryRowContext(ctx, query, sql.Named("id", id))

	var msg Message
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Content,
		&msg.SentAt, &msg.IsRead, &msg.EditedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Scan: %w", err)
	}
	return &msg, nil
}

func (s *SQLiteMessageStore) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	query := `UPDATE messages SET content = @content, edited_at = @edited_at WHERE id = @id`
	res, err := s.db.ExecContext(ctx, query,
		sql.Named("content", content),
		sql.Named("edited_at", editedAt),
		sql.Named("id", id))
	if err != nil {
		return fmt.Errorf("ExecContext(update message): %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *SQLiteMessageStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM messages WHERE id = @id`
	res, err := s.db.ExecContext(ctx, query, sql.Named("id", id))
	if err != nil {
		return fmt.Errorf("ExecContext(delete message): %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *SQLiteMessageStore) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE messages SET is_read = TRUE WHERE id = @id`
	_, err := s.db.ExecContext(ctx, query, sql.Named("id", id))
	if err != nil {
		return fmt.Errorf("ExecContext(mark read): %w", err)
	}
	return nil
}

// Conversation returns every message exchanged between two users, oldest
// first. Send order is preserved by (sent_at, id).
func (s *SQLiteMessageStore) Conversation(ctx context.Context, userA, userB string) ([]Message, error) {
	query := `SELECT id, sender_id, recipient_id, content, sent_at, is_read, edited_at
	          FROM messages
	          WHERE (sender_id = @a AND recipient_id = @b) OR (sender_id = @b AND recipient_id = @a)
	          ORDER BY sent_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, sql.Named("a", userA), sql.Named("b", userB))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Content,
			&msg.SentAt, &msg.IsRead, &msg.EditedAt); err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteMessageStore) DeleteConversation(ctx context.Context, userA, userB string) error {
	query := `DELETE FROM messages
	          WHERE (sender_id = @a AND recipient_id = @b) OR (sender_id = @b AND recipient_id = @a)`
	_, err := s.db.ExecContext(ctx, query, sql.Named("a", userA), sql.Named("b", userB))
	if err != nil {
		return fmt.Errorf("ExecContext(delete conversation): %w", err)
	}
	return nil
}
