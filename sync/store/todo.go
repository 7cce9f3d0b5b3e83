package store

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/types"
)

const (
	todoListSelectQuery = `
		SELECT id, user_id, name, sort_order, client_updated_at_ms, deleted_at, created_at, updated_at
		FROM todo_lists
		WHERE user_id = ? AND id = ?`

	todoListUpsertQuery = `
		INSERT INTO todo_lists (id, user_id, name, sort_order, client_updated_at_ms, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			name = excluded.name,
			sort_order = excluded.sort_order,
			client_updated_at_ms = excluded.client_updated_at_ms,
			deleted_at = excluded.deleted_at,
			updated_at = CURRENT_TIMESTAMP`

	todoListLiveQuery = `
		SELECT EXISTS(
			SELECT 1 FROM todo_lists
			WHERE user_id = ? AND id = ? AND deleted_at IS NULL
		)`

	todoItemSelectQuery = `
		SELECT id, user_id, list_id, title, body_md, due_at_ms, completed_at, rrule,
		       client_updated_at_ms, deleted_at, created_at, updated_at
		FROM todo_items
		WHERE user_id = ? AND id = ?`

	todoItemUpsertQuery = `
		INSERT INTO todo_items (id, user_id, list_id, title, body_md, due_at_ms, completed_at,
			rrule, client_updated_at_ms, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			list_id = excluded.list_id,
			title = excluded.title,
			body_md = excluded.body_md,
			due_at_ms = excluded.due_at_ms,
			completed_at = excluded.completed_at,
			rrule = excluded.rrule,
			client_updated_at_ms = excluded.client_updated_at_ms,
			deleted_at = excluded.deleted_at,
			updated_at = CURRENT_TIMESTAMP`

	todoOccurrenceSelectQuery = `
		SELECT id, user_id, item_id, tzid, recurrence_id_local, status, due_at_ms, completed_at,
		       client_updated_at_ms, deleted_at, created_at, updated_at
		FROM todo_occurrences
		WHERE user_id = ? AND id = ?`

	todoOccurrenceUpsertQuery = `
		INSERT INTO todo_occurrences (id, user_id, item_id, tzid, recurrence_id_local, status,
			due_at_ms, completed_at, client_updated_at_ms, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			status = excluded.status,
			due_at_ms = excluded.due_at_ms,
			completed_at = excluded.completed_at,
			client_updated_at_ms = excluded.client_updated_at_ms,
			deleted_at = excluded.deleted_at,
			updated_at = CURRENT_TIMESTAMP`
)

// TodoStore persists todo lists, items, and recurrence occurrence overrides.
type TodoStore struct {
	logger *zap.SugaredLogger
}

// NewTodoStore creates a todo repository
func NewTodoStore(logger *zap.SugaredLogger) *TodoStore {
	return &TodoStore{logger: logger}
}

// GetList returns the list row, tombstones included; nil when unseen.
func (s *TodoStore) GetList(ex Execer, userID, id string) (*types.TodoList, error) {
	row := ex.QueryRow(todoListSelectQuery, userID, id)

	var list types.TodoList
	var deletedAt sql.NullTime
	err := row.Scan(&list.ID, &list.UserID, &list.Name, &list.SortOrder,
		&list.ClientUpdatedAtMs, &deletedAt, &list.CreatedAt, &list.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get todo list")
	}
	list.DeletedAt = timePtr(deletedAt)
	return &list, nil
}

// UpsertList writes the full list row.
func (s *TodoStore) UpsertList(ex Execer, list *types.TodoList) error {
	_, err := ex.Exec(todoListUpsertQuery,
		list.ID, list.UserID, list.Name, list.SortOrder,
		list.ClientUpdatedAtMs, nullTime(list.DeletedAt))
	if err != nil {
		return errors.Wrap(err, "upsert todo list")
	}
	return nil
}

// ListIsLive reports whether the list exists and is not tombstoned.
// Used for todo item foreign-key validation within the same tenant.
func (s *TodoStore) ListIsLive(ex Execer, userID, listID string) (bool, error) {
	var live bool
	if err := ex.QueryRow(todoListLiveQuery, userID, listID).Scan(&live); err != nil {
		return false, errors.Wrap(err, "check todo list live")
	}
	return live, nil
}

// GetItem returns the item row, tombstones included; nil when unseen.
func (s *TodoStore) GetItem(ex Execer, userID, id string) (*types.TodoItem, error) {
	row := ex.QueryRow(todoItemSelectQuery, userID, id)

	var item types.TodoItem
	var deletedAt, completedAt sql.NullTime
	var dueAtMs sql.NullInt64
	var rrule sql.NullString
	err := row.Scan(&item.ID, &item.UserID, &item.ListID, &item.Title, &item.BodyMD,
		&dueAtMs, &completedAt, &rrule,
		&item.ClientUpdatedAtMs, &deletedAt, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get todo item")
	}
	item.DueAtMs = int64Ptr(dueAtMs)
	item.CompletedAt = timePtr(completedAt)
	item.RRule = strPtr(rrule)
	item.DeletedAt = timePtr(deletedAt)
	return &item, nil
}

// UpsertItem writes the full item row.
func (s *TodoStore) UpsertItem(ex Execer, item *types.TodoItem) error {
	_, err := ex.Exec(todoItemUpsertQuery,
		item.ID, item.UserID, item.ListID, item.Title, item.BodyMD,
		nullInt64(item.DueAtMs), nullTime(item.CompletedAt), nullStr(item.RRule),
		item.ClientUpdatedAtMs, nullTime(item.DeletedAt))
	if err != nil {
		return errors.Wrap(err, "upsert todo item")
	}
	return nil
}

// GetOccurrence returns the occurrence row, tombstones included; nil when unseen.
func (s *TodoStore) GetOccurrence(ex Execer, userID, id string) (*types.TodoOccurrence, error) {
	row := ex.QueryRow(todoOccurrenceSelectQuery, userID, id)

	var occ types.TodoOccurrence
	var deletedAt, completedAt sql.NullTime
	var dueAtMs sql.NullInt64
	err := row.Scan(&occ.ID, &occ.UserID, &occ.ItemID, &occ.TZID, &occ.RecurrenceIDLocal,
		&occ.Status, &dueAtMs, &completedAt,
		&occ.ClientUpdatedAtMs, &deletedAt, &occ.CreatedAt, &occ.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get todo occurrence")
	}
	occ.DueAtMs = int64Ptr(dueAtMs)
	occ.CompletedAt = timePtr(completedAt)
	occ.DeletedAt = timePtr(deletedAt)
	return &occ, nil
}

// UpsertOccurrence writes the full occurrence row. The natural key
// (item_id, tzid, recurrence_id_local) is unique per user; a violation
// means two ids raced on the same occurrence slot.
func (s *TodoStore) UpsertOccurrence(ex Execer, occ *types.TodoOccurrence) error {
	_, err := ex.Exec(todoOccurrenceUpsertQuery,
		occ.ID, occ.UserID, occ.ItemID, occ.TZID, occ.RecurrenceIDLocal, occ.Status,
		nullInt64(occ.DueAtMs), nullTime(occ.CompletedAt),
		occ.ClientUpdatedAtMs, nullTime(occ.DeletedAt))
	if err != nil {
		return errors.Wrap(err, "upsert todo occurrence")
	}
	return nil
}

// ItemIsLive reports whether the item exists and is not tombstoned.
func (s *TodoStore) ItemIsLive(ex Execer, userID, itemID string) (bool, error) {
	var live bool
	err := ex.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM todo_items
			WHERE user_id = ? AND id = ? AND deleted_at IS NULL
		)`, userID, itemID).Scan(&live)
	if err != nil {
		return false, errors.Wrap(err, "check todo item live")
	}
	return live, nil
}
