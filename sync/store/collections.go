package store

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/types"
)

const (
	collectionSelectQuery = `
		SELECT id, user_id, parent_id, item_type, name, ref_type, ref_id, sort_order,
		       client_updated_at_ms, deleted_at, created_at, updated_at
		FROM collection_items
		WHERE user_id = ? AND id = ?`

	collectionUpsertQuery = `
		INSERT INTO collection_items (id, user_id, parent_id, item_type, name, ref_type, ref_id,
			sort_order, client_updated_at_ms, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			parent_id = excluded.parent_id,
			item_type = excluded.item_type,
			name = excluded.name,
			ref_type = excluded.ref_type,
			ref_id = excluded.ref_id,
			sort_order = excluded.sort_order,
			client_updated_at_ms = excluded.client_updated_at_ms,
			deleted_at = excluded.deleted_at,
			updated_at = CURRENT_TIMESTAMP`

	collectionInsertQuery = `
		INSERT INTO collection_items (id, user_id, parent_id, item_type, name, ref_type, ref_id,
			sort_order, client_updated_at_ms, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	collectionChildrenQuery = `
		SELECT id, user_id, parent_id, item_type, name, ref_type, ref_id, sort_order,
		       client_updated_at_ms, deleted_at, created_at, updated_at
		FROM collection_items
		WHERE user_id = ? AND parent_id = ? AND deleted_at IS NULL
		ORDER BY sort_order, id`

	collectionRootsQuery = `
		SELECT id, user_id, parent_id, item_type, name, ref_type, ref_id, sort_order,
		       client_updated_at_ms, deleted_at, created_at, updated_at
		FROM collection_items
		WHERE user_id = ? AND parent_id IS NULL AND deleted_at IS NULL
		ORDER BY sort_order, id`
)

// CollectionStore persists the self-referential folder/note-ref forest.
type CollectionStore struct {
	logger *zap.SugaredLogger
}

// NewCollectionStore creates a collection repository
func NewCollectionStore(logger *zap.SugaredLogger) *CollectionStore {
	return &CollectionStore{logger: logger}
}

func scanCollectionItem(scan func(dest ...interface{}) error) (*types.CollectionItem, error) {
	var item types.CollectionItem
	var parentID, refType, refID sql.NullString
	var deletedAt sql.NullTime
	err := scan(&item.ID, &item.UserID, &parentID, &item.ItemType, &item.Name,
		&refType, &refID, &item.SortOrder,
		&item.ClientUpdatedAtMs, &deletedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.ParentID = strPtr(parentID)
	item.RefType = strPtr(refType)
	item.RefID = strPtr(refID)
	item.DeletedAt = timePtr(deletedAt)
	return &item, nil
}

// Get returns the item row, tombstones included; nil when unseen.
func (s *CollectionStore) Get(ex Execer, userID, id string) (*types.CollectionItem, error) {
	item, err := scanCollectionItem(ex.QueryRow(collectionSelectQuery, userID, id).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get collection item")
	}
	return item, nil
}

// Upsert writes the full item row, creating it on first write.
func (s *CollectionStore) Upsert(ex Execer, item *types.CollectionItem) error {
	_, err := ex.Exec(collectionUpsertQuery,
		item.ID, item.UserID, nullStr(item.ParentID), item.ItemType, item.Name,
		nullStr(item.RefType), nullStr(item.RefID), item.SortOrder,
		item.ClientUpdatedAtMs, nullTime(item.DeletedAt))
	if err != nil {
		return errors.Wrap(err, "upsert collection item")
	}
	return nil
}

// Insert writes a new item row, failing on a duplicate id. Two create
// requests racing on the same client-generated id surface the unique
// violation to the caller.
func (s *CollectionStore) Insert(ex Execer, item *types.CollectionItem) error {
	_, err := ex.Exec(collectionInsertQuery,
		item.ID, item.UserID, nullStr(item.ParentID), item.ItemType, item.Name,
		nullStr(item.RefType), nullStr(item.RefID), item.SortOrder,
		item.ClientUpdatedAtMs, nullTime(item.DeletedAt))
	if err != nil {
		return errors.Wrap(err, "insert collection item")
	}
	return nil
}

// Children returns the live children of parentID (or the live roots when
// parentID is nil), ordered by sort_order.
func (s *CollectionStore) Children(ex Execer, userID string, parentID *string) ([]*types.CollectionItem, error) {
	var rows *sql.Rows
	var err error
	if parentID == nil {
		rows, err = ex.Query(collectionRootsQuery, userID)
	} else {
		rows, err = ex.Query(collectionChildrenQuery, userID, *parentID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list collection children")
	}
	defer rows.Close()

	var items []*types.CollectionItem
	for rows.Next() {
		item, err := scanCollectionItem(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan collection item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate collection items")
	}
	return items, nil
}
