package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/threadline/internal/models"
)

const userColumns = `id, name, email, password_hash, preferences, created_at`

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new user row. Postgres generates the UUID and timestamp.
func (s *UserStore) Create(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (name, email, password_hash, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query, name, email, passwordHash))
	if err != nil {
		return nil, wrapErr("insert user", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail looks up a user by email. Used for login.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpdatePreferences replaces the whole preferences document.
// Returns nil, nil if the user doesn't exist.
func (s *UserStore) UpdatePreferences(ctx context.Context, id uuid.UUID, prefs models.UserPreferences) (*models.User, error) {
	query := `
		UPDATE users SET preferences = $2
		WHERE id = $1
		RETURNING ` + userColumns

	raw, err := jsonbParam(prefs)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}

	u, err := scanUser(s.pool.QueryRow(ctx, query, id, raw))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u     models.User
		prefs []byte
	)
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&prefs,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	if prefs != nil {
		u.Preferences = &models.UserPreferences{}
		if err := decodeJSONB(prefs, u.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return &u, nil
}
