package store

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/types"
)

const (
	settingSelectQuery = `
		SELECT key, user_id, value_json, client_updated_at_ms, deleted_at, created_at, updated_at
		FROM user_settings
		WHERE user_id = ? AND key = ?`

	settingUpsertQuery = `
		INSERT INTO user_settings (user_id, key, value_json, client_updated_at_ms, deleted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET
			value_json = excluded.value_json,
			client_updated_at_ms = excluded.client_updated_at_ms,
			deleted_at = excluded.deleted_at,
			updated_at = CURRENT_TIMESTAMP`
)

// SettingsStore persists key-scoped singleton user settings.
type SettingsStore struct {
	logger *zap.SugaredLogger
}

// NewSettingsStore creates a settings repository
func NewSettingsStore(logger *zap.SugaredLogger) *SettingsStore {
	return &SettingsStore{logger: logger}
}

// Get returns the setting row for key, tombstones included. Returns nil
// when the key has never been seen.
func (s *SettingsStore) Get(ex Execer, userID, key string) (*types.UserSetting, error) {
	row := ex.QueryRow(settingSelectQuery, userID, key)

	var setting types.UserSetting
	var deletedAt sql.NullTime
	err := row.Scan(&setting.Key, &setting.UserID, &setting.ValueJSON,
		&setting.ClientUpdatedAtMs, &deletedAt, &setting.CreatedAt, &setting.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user setting")
	}
	setting.DeletedAt = timePtr(deletedAt)
	return &setting, nil
}

// Upsert writes the full setting row, creating it on first write.
func (s *SettingsStore) Upsert(ex Execer, setting *types.UserSetting) error {
	_, err := ex.Exec(settingUpsertQuery,
		setting.UserID, setting.Key, setting.ValueJSON,
		setting.ClientUpdatedAtMs, nullTime(setting.DeletedAt))
	if err != nil {
		return errors.Wrap(err, "upsert user setting")
	}
	return nil
}
