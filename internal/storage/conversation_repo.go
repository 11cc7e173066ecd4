package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationStore defines the interface for conversation storage operations.
type ConversationStore interface {
	// Append records one inbound message and its reply.
	Append(ctx context.Context, record *ConversationRecord) error
	// RecentByUser returns the user's conversations created at or after
	// since, newest first, capped at limit.
	RecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*ConversationRecord, error)
}

// ConversationRepo provides methods for conversation operations.
// It implements the ConversationStore interface.
type ConversationRepo struct {
	db *sql.DB
}

// NewConversationRepo creates a new ConversationRepo.
func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Append records one inbound message and its reply. A missing ID is
// generated.
func (r *ConversationRepo) Append(ctx context.Context, record *ConversationRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.MessageType == "" {
		record.MessageType = MessageTypeText
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO conversations (id, user_id, message, response, message_type, included_image) VALUES (?, ?, ?, ?, ?, ?)",
		record.ID, record.UserID, record.Message, record.Response, record.MessageType, record.IncludedImage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// RecentByUser returns the user's conversations created at or after since,
// newest first, capped at limit.
func (r *ConversationRepo) RecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*ConversationRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, message, response, message_type, included_image, created_at
		 FROM conversations
		 WHERE user_id = ? AND created_at >= ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*ConversationRecord
	for rows.Next() {
		var record ConversationRecord
		if err := rows.Scan(&record.ID, &record.UserID, &record.Message, &record.Response,
			&record.MessageType, &record.IncludedImage, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}
