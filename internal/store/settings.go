package store

import (
	"context"
)

// ModelSetting is one admin-configurable pipeline-mode to model binding.
// Env defaults apply for modes with no row.
type ModelSetting struct {
	PipelineMode string `json:"pipeline_mode"`
	Model        string `json:"model"`
	UpdatedAt    string `json:"updated_at"`
}

func (db *DB) ListModelSettings(ctx context.Context) ([]ModelSetting, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT pipeline_mode, model, updated_at::text FROM model_settings ORDER BY pipeline_mode`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ModelSetting
	for rows.Next() {
		var m ModelSetting
		if err := rows.Scan(&m.PipelineMode, &m.Model, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// ModelOverrides returns the settings as a mode-to-model map for quick lookup
// at generation time.
func (db *DB) ModelOverrides(ctx context.Context) (map[string]string, error) {
	list, err := db.ListModelSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, m := range list {
		out[m.PipelineMode] = m.Model
	}
	return out, nil
}

func (db *DB) UpsertModelSetting(ctx context.Context, pipelineMode, model string) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO model_settings (pipeline_mode, model) VALUES ($1, $2)
		 ON CONFLICT (pipeline_mode) DO UPDATE SET model = EXCLUDED.model, updated_at = NOW()`,
		pipelineMode, model)
	return err
}

func (db *DB) DeleteModelSetting(ctx context.Context, pipelineMode string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM model_settings WHERE pipeline_mode = $1`, pipelineMode)
	return err
}
