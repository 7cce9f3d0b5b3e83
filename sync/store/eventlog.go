package store

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/types"
)

// Query constants
const (
	eventInsertQuery = `
		INSERT INTO change_events (user_id, resource, entity_id, action)
		VALUES (?, ?, ?, ?)`

	eventListSinceQuery = `
		SELECT id, user_id, resource, entity_id, action, created_at
		FROM change_events
		WHERE user_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`

	eventLatestCursorQuery = `
		SELECT COALESCE(MAX(id), 0) FROM change_events WHERE user_id = ?`
)

// EventLog is the append-only per-user change log. Event ids are strictly
// increasing per user; a client that has observed cursor C may safely ask
// for id > C.
type EventLog struct {
	logger *zap.SugaredLogger
}

// NewEventLog creates an event log accessor
func NewEventLog(logger *zap.SugaredLogger) *EventLog {
	return &EventLog{logger: logger}
}

// Append records that (resource, entityID) changed and returns the new
// event id.
func (l *EventLog) Append(ex Execer, userID string, resource types.Resource, entityID string, action types.EventAction) (int64, error) {
	res, err := ex.Exec(eventInsertQuery, userID, string(resource), entityID, string(action))
	if err != nil {
		return 0, errors.Wrap(err, "append change event")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "change event id")
	}
	return id, nil
}

// ListSince returns up to limit events with id > cursor in ascending order,
// plus whether more events remain beyond the returned window.
func (l *EventLog) ListSince(ex Execer, userID string, cursor int64, limit int) ([]types.ChangeEvent, bool, error) {
	if limit <= 0 {
		return nil, false, errors.NewInvalidRequestError("limit must be positive, got %d", limit)
	}

	// Fetch one extra row to detect has_more without a second query
	rows, err := ex.Query(eventListSinceQuery, userID, cursor, limit+1)
	if err != nil {
		return nil, false, errors.Wrap(err, "list change events")
	}
	defer rows.Close()

	var events []types.ChangeEvent
	for rows.Next() {
		var ev types.ChangeEvent
		var resource, action string
		if err := rows.Scan(&ev.ID, &ev.UserID, &resource, &ev.EntityID, &action, &ev.CreatedAt); err != nil {
			return nil, false, errors.Wrap(err, "scan change event")
		}
		ev.Resource = types.Resource(resource)
		ev.Action = types.EventAction(action)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errors.Wrap(err, "iterate change events")
	}

	hasMore := false
	if len(events) > limit {
		hasMore = true
		events = events[:limit]
	}
	return events, hasMore, nil
}

// LatestCursor returns the highest event id for the user, 0 when the log
// is empty.
func (l *EventLog) LatestCursor(ex Execer, userID string) (int64, error) {
	var cursor int64
	if err := ex.QueryRow(eventLatestCursorQuery, userID).Scan(&cursor); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, errors.Wrap(err, "latest cursor")
	}
	return cursor, nil
}
