package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Portrait is one persisted generation record. output_image_url is only ever
// written for a generation whose remote job succeeded with an output; the row
// is owned by user_id (or anonymous when nil) and never mutated by two
// writers.
type Portrait struct {
	ID               uuid.UUID  `json:"id"`
	UserID           *uuid.UUID `json:"user_id,omitempty"`
	InputImageURL    string     `json:"input_image_url"`
	OutputImageURL   string     `json:"output_image_url"`
	HighResImageURL  *string    `json:"high_res_image_url,omitempty"`
	PromptText       string     `json:"prompt_text"`
	StyleLabel       string     `json:"style_label"`
	DisplayName      *string    `json:"display_name,omitempty"`
	WebsiteURL       *string    `json:"website_url,omitempty"`
	ProfileImageURL  *string    `json:"profile_image_url,omitempty"`
	PipelineMode     string     `json:"pipeline_mode"`
	ModelUsed        string     `json:"model_used"`
	UserTier         string     `json:"user_tier"`
	GenerationTimeMs int64      `json:"generation_time_ms"`
	IsPublic         bool       `json:"is_public"`
	ProviderJobID    *string    `json:"provider_job_id,omitempty"`
	CreatedAt        string     `json:"created_at"`
}

const portraitCols = `id, user_id, input_image_url, output_image_url, high_res_image_url, prompt_text, style_label,
	display_name, website_url, profile_image_url, pipeline_mode, model_used, user_tier, generation_time_ms,
	is_public, provider_job_id, created_at::text`

func scanPortrait(row pgx.Row) (*Portrait, error) {
	var p Portrait
	err := row.Scan(&p.ID, &p.UserID, &p.InputImageURL, &p.OutputImageURL, &p.HighResImageURL, &p.PromptText,
		&p.StyleLabel, &p.DisplayName, &p.WebsiteURL, &p.ProfileImageURL, &p.PipelineMode, &p.ModelUsed,
		&p.UserTier, &p.GenerationTimeMs, &p.IsPublic, &p.ProviderJobID, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) InsertPortrait(ctx context.Context, p *Portrait) (uuid.UUID, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO portraits (id, user_id, input_image_url, output_image_url, high_res_image_url, prompt_text,
			style_label, display_name, website_url, profile_image_url, pipeline_mode, model_used, user_tier,
			generation_time_ms, is_public, provider_job_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.UserID, p.InputImageURL, p.OutputImageURL, p.HighResImageURL, p.PromptText,
		p.StyleLabel, p.DisplayName, p.WebsiteURL, p.ProfileImageURL, p.PipelineMode, p.ModelUsed, p.UserTier,
		p.GenerationTimeMs, p.IsPublic, p.ProviderJobID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

func (db *DB) GetPortrait(ctx context.Context, id uuid.UUID) (*Portrait, error) {
	return scanPortrait(db.Pool.QueryRow(ctx,
		`SELECT `+portraitCols+` FROM portraits WHERE id = $1`, id))
}

// ListPublicPortraits returns the public gallery, newest first.
func (db *DB) ListPublicPortraits(ctx context.Context, limit, offset int) ([]Portrait, error) {
	if limit <= 0 || limit > 100 {
		limit = 24
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+portraitCols+` FROM portraits WHERE is_public = TRUE
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectPortraits(rows)
}

// ListPortraitsByUser returns one user's generation history, newest first.
func (db *DB) ListPortraitsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Portrait, error) {
	if limit <= 0 || limit > 100 {
		limit = 24
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+portraitCols+` FROM portraits WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectPortraits(rows)
}

// DeletePortraitOwned removes a record if it belongs to userID. Returns the
// deleted row so the caller can clean up stored objects.
func (db *DB) DeletePortraitOwned(ctx context.Context, id, userID uuid.UUID) (*Portrait, error) {
	return scanPortrait(db.Pool.QueryRow(ctx,
		`DELETE FROM portraits WHERE id = $1 AND user_id = $2 RETURNING `+portraitCols, id, userID))
}

// DeletePortraits batch-deletes by explicit id list (admin cleanup). Returns
// the deleted rows for object cleanup.
func (db *DB) DeletePortraits(ctx context.Context, ids []uuid.UUID) ([]Portrait, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.Pool.Query(ctx,
		`DELETE FROM portraits WHERE id = ANY($1) RETURNING `+portraitCols, ids)
	if err != nil {
		return nil, err
	}
	return collectPortraits(rows)
}

// ListProviderHostedPortraits returns records whose output still points at a
// URL outside ownBase (i.e. the provider's CDN). Used by the URL-migration
// task.
func (db *DB) ListProviderHostedPortraits(ctx context.Context, ownBase string, limit int) ([]Portrait, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	pattern := strings.TrimSuffix(ownBase, "/") + "/%"
	rows, err := db.Pool.Query(ctx,
		`SELECT `+portraitCols+` FROM portraits WHERE output_image_url NOT LIKE $1
		 ORDER BY created_at ASC LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, err
	}
	return collectPortraits(rows)
}

// InputURLInUse reports whether any record references url as its input image.
// Used by the orphaned-upload cleanup task.
func (db *DB) InputURLInUse(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM portraits WHERE input_image_url = $1)`, url).Scan(&exists)
	return exists, err
}

// UpdatePortraitOutputURL rewrites the stored output URL after mirroring.
// created_at is deliberately untouched.
func (db *DB) UpdatePortraitOutputURL(ctx context.Context, id uuid.UUID, outputURL string) error {
	res, err := db.Pool.Exec(ctx,
		`UPDATE portraits SET output_image_url = $2 WHERE id = $1`, id, outputURL)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("portrait %s not found", id)
	}
	return nil
}

func collectPortraits(rows pgx.Rows) ([]Portrait, error) {
	defer rows.Close()
	var list []Portrait
	for rows.Next() {
		var p Portrait
		if err := rows.Scan(&p.ID, &p.UserID, &p.InputImageURL, &p.OutputImageURL, &p.HighResImageURL, &p.PromptText,
			&p.StyleLabel, &p.DisplayName, &p.WebsiteURL, &p.ProfileImageURL, &p.PipelineMode, &p.ModelUsed,
			&p.UserTier, &p.GenerationTimeMs, &p.IsPublic, &p.ProviderJobID, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
