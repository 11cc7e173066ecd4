package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SafetyLogStore defines the interface for safety audit log operations.
type SafetyLogStore interface {
	// Append records one answered safety question.
	Append(ctx context.Context, record *SafetyLogRecord) error
	// RecentByUser returns the user's safety logs created at or after since,
	// newest first, capped at limit.
	RecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*SafetyLogRecord, error)
}

// SafetyLogRepo provides methods for safety log operations.
// It implements the SafetyLogStore interface.
type SafetyLogRepo struct {
	db *sql.DB
}

// NewSafetyLogRepo creates a new SafetyLogRepo.
func NewSafetyLogRepo(db *sql.DB) *SafetyLogRepo {
	return &SafetyLogRepo{db: db}
}

// Append records one answered safety question. A missing ID is generated.
func (r *SafetyLogRepo) Append(ctx context.Context, record *SafetyLogRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO safety_logs (id, user_id, task_description, safety_check, sources) VALUES (?, ?, ?, ?, ?)",
		record.ID, record.UserID, record.TaskDescription, record.SafetyCheck, record.Sources,
	)
	if err != nil {
		return fmt.Errorf("failed to insert safety log: %w", err)
	}
	return nil
}

// RecentByUser returns the user's safety logs created at or after since,
// newest first, capped at limit.
func (r *SafetyLogRepo) RecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*SafetyLogRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, task_description, safety_check, sources, created_at
		 FROM safety_logs
		 WHERE user_id = ? AND created_at >= ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query safety logs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*SafetyLogRecord
	for rows.Next() {
		var record SafetyLogRecord
		if err := rows.Scan(&record.ID, &record.UserID, &record.TaskDescription,
			&record.SafetyCheck, &record.Sources, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan safety log: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}
