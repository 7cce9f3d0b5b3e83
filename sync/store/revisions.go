package store

import (
	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/types"
)

const (
	revisionInsertQuery = `
		INSERT INTO note_revisions (id, user_id, note_id, kind, reason, title, body_md, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	revisionListQuery = `
		SELECT id, user_id, note_id, kind, reason, title, body_md, tags, created_at
		FROM note_revisions
		WHERE user_id = ? AND note_id = ?
		ORDER BY created_at, id`
)

// RevisionStore persists immutable note content snapshots. Reconciliation
// writes one before any remote-authoritative overwrite or delete so local
// divergence is never silently lost.
type RevisionStore struct {
	logger *zap.SugaredLogger
}

// NewRevisionStore creates a revision repository
func NewRevisionStore(logger *zap.SugaredLogger) *RevisionStore {
	return &RevisionStore{logger: logger}
}

// Insert records a new revision snapshot.
func (s *RevisionStore) Insert(ex Execer, rev *types.NoteRevision) error {
	_, err := ex.Exec(revisionInsertQuery,
		rev.ID, rev.UserID, rev.NoteID, rev.Kind, rev.Reason,
		rev.Title, rev.BodyMD, marshalTags(rev.Tags))
	if err != nil {
		return errors.Wrap(err, "insert note revision")
	}
	return nil
}

// ListByNote returns a note's revisions, oldest first.
func (s *RevisionStore) ListByNote(ex Execer, userID, noteID string) ([]*types.NoteRevision, error) {
	rows, err := ex.Query(revisionListQuery, userID, noteID)
	if err != nil {
		return nil, errors.Wrap(err, "list note revisions")
	}
	defer rows.Close()

	var revs []*types.NoteRevision
	for rows.Next() {
		var rev types.NoteRevision
		var tags string
		if err := rows.Scan(&rev.ID, &rev.UserID, &rev.NoteID, &rev.Kind, &rev.Reason,
			&rev.Title, &rev.BodyMD, &tags, &rev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan note revision")
		}
		rev.Tags = unmarshalTags(tags)
		revs = append(revs, &rev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate note revisions")
	}
	return revs, nil
}
