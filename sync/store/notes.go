package store

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/types"
)

const (
	noteSelectQuery = `
		SELECT id, user_id, title, body_md, tags, client_updated_at_ms, deleted_at, created_at, updated_at
		FROM notes
		WHERE user_id = ? AND id = ?`

	noteUpsertQuery = `
		INSERT INTO notes (id, user_id, title, body_md, tags, client_updated_at_ms, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			title = excluded.title,
			body_md = excluded.body_md,
			tags = excluded.tags,
			client_updated_at_ms = excluded.client_updated_at_ms,
			deleted_at = excluded.deleted_at,
			updated_at = CURRENT_TIMESTAMP`

	noteListQuery = `
		SELECT id, user_id, title, body_md, tags, client_updated_at_ms, deleted_at, created_at, updated_at
		FROM notes
		WHERE user_id = ?
		ORDER BY id`
)

// NoteStore persists markdown notes.
type NoteStore struct {
	logger *zap.SugaredLogger
}

// NewNoteStore creates a note repository
func NewNoteStore(logger *zap.SugaredLogger) *NoteStore {
	return &NoteStore{logger: logger}
}

func scanNote(scan func(dest ...interface{}) error) (*types.Note, error) {
	var note types.Note
	var deletedAt sql.NullTime
	var tags string
	err := scan(&note.ID, &note.UserID, &note.Title, &note.BodyMD, &tags,
		&note.ClientUpdatedAtMs, &deletedAt, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return nil, err
	}
	note.Tags = unmarshalTags(tags)
	note.DeletedAt = timePtr(deletedAt)
	return &note, nil
}

// Get returns the note row, tombstones included; nil when unseen.
func (s *NoteStore) Get(ex Execer, userID, id string) (*types.Note, error) {
	note, err := scanNote(ex.QueryRow(noteSelectQuery, userID, id).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get note")
	}
	return note, nil
}

// Upsert writes the full note row.
func (s *NoteStore) Upsert(ex Execer, note *types.Note) error {
	_, err := ex.Exec(noteUpsertQuery,
		note.ID, note.UserID, note.Title, note.BodyMD, marshalTags(note.Tags),
		note.ClientUpdatedAtMs, nullTime(note.DeletedAt))
	if err != nil {
		return errors.Wrap(err, "upsert note")
	}
	return nil
}

// ListAll returns every note row for the user, tombstones included.
// The reconciler walks this set to find local notes with no remote mapping.
func (s *NoteStore) ListAll(ex Execer, userID string) ([]*types.Note, error) {
	rows, err := ex.Query(noteListQuery, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list notes")
	}
	defer rows.Close()

	var notes []*types.Note
	for rows.Next() {
		note, err := scanNote(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan note")
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate notes")
	}
	return notes, nil
}
