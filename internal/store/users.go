package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	IsPremium bool      `json:"is_premium"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at,omitempty"`
}

func (db *DB) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := db.Pool.QueryRow(ctx,
		`SELECT id, email, is_admin, is_premium, created_at::text, COALESCE(updated_at::text, created_at::text)
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.IsAdmin, &u.IsPremium, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser inserts or updates a user by id (from Supabase Auth). Syncs
// auth.users into our users table on every authenticated request.
func (db *DB) UpsertUser(ctx context.Context, id uuid.UUID, email string) error {
	if email == "" {
		email = id.String() + "@supabase.local" // placeholder when JWT has no email
	}
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email,''), users.email), updated_at = NOW()`,
		id, email)
	return err
}

// IsAdmin reports whether the user exists and carries the admin flag.
func (db *DB) IsAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	var admin bool
	err := db.Pool.QueryRow(ctx, `SELECT is_admin FROM users WHERE id = $1`, id).Scan(&admin)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	return admin, err
}
