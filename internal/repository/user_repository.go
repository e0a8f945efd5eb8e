package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// UserRepo provides data access to the users table (operator
// accounts for the admin API).
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo bound to the provided database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts an operator account and returns its id.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, role string) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, is_active) VALUES (?, ?, ?, 1)`,
		email, passwordHash, role,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail returns one active user or ErrNotFound.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u := model.User{Email: email}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, password_hash, role, is_active, created_at, updated_at
		 FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
