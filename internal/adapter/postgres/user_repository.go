package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/taskboard/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	attrs := user.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode user attributes: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (email, attributes, created_at) VALUES ($1, $2, $3)`,
		user.Email, raw, user.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var (
		user domain.User
		raw  []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT email, attributes, created_at FROM users WHERE email = $1`, email,
	).Scan(&user.Email, &raw, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := json.Unmarshal(raw, &user.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode user attributes: %w", err)
	}
	if len(user.Attributes) == 0 {
		user.Attributes = nil
	}
	return &user, nil
}
