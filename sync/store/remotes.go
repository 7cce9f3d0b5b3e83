package store

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/types"
)

const (
	remoteSelectByRemoteQuery = `
		SELECT user_id, note_id, provider, remote_id, remote_sha256_hex, deleted_at, created_at, updated_at
		FROM note_remotes
		WHERE user_id = ? AND provider = ? AND remote_id = ?`

	remoteSelectByNoteQuery = `
		SELECT user_id, note_id, provider, remote_id, remote_sha256_hex, deleted_at, created_at, updated_at
		FROM note_remotes
		WHERE user_id = ? AND provider = ? AND note_id = ?`

	remoteListQuery = `
		SELECT user_id, note_id, provider, remote_id, remote_sha256_hex, deleted_at, created_at, updated_at
		FROM note_remotes
		WHERE user_id = ? AND provider = ?
		ORDER BY remote_id`

	remoteUpsertQuery = `
		INSERT INTO note_remotes (user_id, note_id, provider, remote_id, remote_sha256_hex, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider, remote_id) DO UPDATE SET
			note_id = excluded.note_id,
			remote_sha256_hex = excluded.remote_sha256_hex,
			deleted_at = excluded.deleted_at,
			updated_at = CURRENT_TIMESTAMP`
)

// RemoteStore persists the note-to-remote mappings used as the three-way
// merge base during external reconciliation.
type RemoteStore struct {
	logger *zap.SugaredLogger
}

// NewRemoteStore creates a remote-mapping repository
func NewRemoteStore(logger *zap.SugaredLogger) *RemoteStore {
	return &RemoteStore{logger: logger}
}

func scanRemote(scan func(dest ...interface{}) error) (*types.NoteRemote, error) {
	var remote types.NoteRemote
	var deletedAt sql.NullTime
	err := scan(&remote.UserID, &remote.NoteID, &remote.Provider, &remote.RemoteID,
		&remote.RemoteSHA256Hex, &deletedAt, &remote.CreatedAt, &remote.UpdatedAt)
	if err != nil {
		return nil, err
	}
	remote.DeletedAt = timePtr(deletedAt)
	return &remote, nil
}

// GetByRemoteID returns the mapping for a remote note id; nil when unmapped.
func (s *RemoteStore) GetByRemoteID(ex Execer, userID, provider, remoteID string) (*types.NoteRemote, error) {
	remote, err := scanRemote(ex.QueryRow(remoteSelectByRemoteQuery, userID, provider, remoteID).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get note remote by remote id")
	}
	return remote, nil
}

// GetByNoteID returns the mapping for a local note id; nil when unmapped.
func (s *RemoteStore) GetByNoteID(ex Execer, userID, provider, noteID string) (*types.NoteRemote, error) {
	remote, err := scanRemote(ex.QueryRow(remoteSelectByNoteQuery, userID, provider, noteID).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get note remote by note id")
	}
	return remote, nil
}

// List returns every mapping for the provider, deleted mappings included.
func (s *RemoteStore) List(ex Execer, userID, provider string) ([]*types.NoteRemote, error) {
	rows, err := ex.Query(remoteListQuery, userID, provider)
	if err != nil {
		return nil, errors.Wrap(err, "list note remotes")
	}
	defer rows.Close()

	var remotes []*types.NoteRemote
	for rows.Next() {
		remote, err := scanRemote(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan note remote")
		}
		remotes = append(remotes, remote)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate note remotes")
	}
	return remotes, nil
}

// Upsert writes the full mapping row.
func (s *RemoteStore) Upsert(ex Execer, remote *types.NoteRemote) error {
	_, err := ex.Exec(remoteUpsertQuery,
		remote.UserID, remote.NoteID, remote.Provider, remote.RemoteID,
		remote.RemoteSHA256Hex, nullTime(remote.DeletedAt))
	if err != nil {
		return errors.Wrap(err, "upsert note remote")
	}
	return nil
}
