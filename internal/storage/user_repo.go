package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// UserStore defines the interface for user storage operations.
type UserStore interface {
	// GetOrCreateByPhone returns the user with the given phone number,
	// creating a worker record when none exists.
	GetOrCreateByPhone(ctx context.Context, phone string) (*UserRecord, error)
	// GetByPhone gets a user by phone number. Returns ErrNotFound if not found.
	GetByPhone(ctx context.Context, phone string) (*UserRecord, error)
}

// UserRepo provides methods for user operations.
// It implements the UserStore interface.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetByPhone gets a user by phone number. Returns ErrNotFound if not found.
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*UserRecord, error) {
	var user UserRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT id, phone_number, role, created_at FROM users WHERE phone_number = ?",
		phone,
	).Scan(&user.ID, &user.PhoneNumber, &user.Role, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// GetOrCreateByPhone returns the user with the given phone number, creating a
// worker record when none exists. Concurrent creation is resolved by the
// UNIQUE constraint plus a re-read.
func (r *UserRepo) GetOrCreateByPhone(ctx context.Context, phone string) (*UserRecord, error) {
	user, err := r.GetByPhone(ctx, phone)
	if err == nil {
		return user, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	id := uuid.New().String()
	_, err = r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (id, phone_number, role) VALUES (?, ?, ?)",
		id, phone, RoleWorker,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return r.GetByPhone(ctx, phone)
}
