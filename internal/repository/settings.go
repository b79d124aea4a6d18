package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SettingsRepository view_settings 键值表，实现 viewstate.Store
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository 创建设置仓库
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetItem 读取
func (r *SettingsRepository) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM view_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem 写入，已存在则覆盖
func (r *SettingsRepository) SetItem(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO view_settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.Pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// RemoveItem 删除
func (r *SettingsRepository) RemoveItem(ctx context.Context, key string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM view_settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("remove setting %s: %w", key, err)
	}
	return nil
}
