package sync

import (
	"github.com/driftpad/driftpad/logger"
	"github.com/driftpad/driftpad/sync/types"
)

// PullResult is one page of the per-user change feed. Changes holds the
// current full snapshot of every entity touched since the cursor, grouped
// by resource; clients overwrite their local copy per entity id.
type PullResult struct {
	Cursor     int64                            `json:"cursor"`
	NextCursor int64                            `json:"next_cursor"`
	HasMore    bool                             `json:"has_more"`
	Changes    map[types.Resource][]interface{} `json:"changes"`
}

// LatestCursor returns the user's current change-log position, 0 when the
// log is empty.
func (e *Engine) LatestCursor(userID string) (int64, error) {
	return e.events.LatestCursor(e.db, userID)
}

// Pull returns the entities whose change events have id > cursor, as full
// current snapshots. limit <= 0 uses the configured default; larger
// requests are capped. Repeating a pull from the returned NextCursor is
// empty until a new mutation lands.
func (e *Engine) Pull(userID string, cursor int64, limit int) (*PullResult, error) {
	if limit <= 0 {
		limit = e.pullDefaultLimit
	}
	if limit > e.pullMaxLimit {
		limit = e.pullMaxLimit
	}

	events, hasMore, err := e.events.ListSince(e.db, userID, cursor, limit)
	if err != nil {
		return nil, err
	}

	result := &PullResult{
		Cursor:     cursor,
		NextCursor: cursor,
		Changes:    map[types.Resource][]interface{}{},
		HasMore:    hasMore,
	}

	// Several events may touch the same entity; fetch each one once, in
	// first-touched order.
	type entityKey struct {
		resource types.Resource
		entityID string
	}
	seen := map[entityKey]bool{}

	for _, ev := range events {
		if ev.ID > result.NextCursor {
			result.NextCursor = ev.ID
		}
		key := entityKey{ev.Resource, ev.EntityID}
		if seen[key] {
			continue
		}
		seen[key] = true

		ops, known := e.registry.lookup(ev.Resource)
		if !known {
			// A resource the log knows but the registry does not means a
			// newer server wrote it; skip rather than fail the pull.
			e.logger.Warnw("unknown resource in change log",
				logger.FieldUserID, userID,
				logger.FieldResource, string(ev.Resource),
				logger.FieldEntityID, ev.EntityID)
			continue
		}

		row, err := ops.get(e.db, userID, ev.EntityID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		result.Changes[ev.Resource] = append(result.Changes[ev.Resource], row.Snapshot)
	}

	e.logger.Debugw("pull served",
		logger.FieldUserID, userID,
		logger.FieldCursor, cursor,
		logger.FieldCount, len(events))
	return result, nil
}
