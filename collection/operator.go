// Package collection implements the per-user folder/note-ref forest:
// shape validation, recursive tombstone cascades, and cycle-checked
// batch moves. Creation and patching of individual items flow through
// the ordinary sync push path; this package owns the operations that
// must see more than one node at a time.
package collection

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/logger"
	"github.com/driftpad/driftpad/sync/clock"
	"github.com/driftpad/driftpad/sync/store"
	"github.com/driftpad/driftpad/sync/types"
)

// Operator runs tree-shaped mutations over collection items.
type Operator struct {
	logger *zap.SugaredLogger
	items  *store.CollectionStore
	events *store.EventLog

	maxSkewMs int64
	now       func() time.Time
}

// Options configures an Operator.
type Options struct {
	// MaxClockSkewMs bounds how far ahead of server time a client clock
	// claim is honored.
	MaxClockSkewMs int64

	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// NewOperator creates a collection tree operator.
func NewOperator(log *zap.SugaredLogger, opts Options) *Operator {
	if log == nil {
		log = logger.ComponentLogger("collection")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Operator{
		logger:    log,
		items:     store.NewCollectionStore(log),
		events:    store.NewEventLog(log),
		maxSkewMs: opts.MaxClockSkewMs,
		now:       now,
	}
}

// ValidateShape enforces the folder/ref invariant: folders carry a
// non-empty name and no ref fields; note_refs carry both ref fields.
func ValidateShape(item *types.CollectionItem) error {
	switch item.ItemType {
	case types.ItemTypeFolder:
		if item.Name == "" {
			return errors.NewInvalidRequestError("folder requires a name")
		}
		if item.RefType != nil || item.RefID != nil {
			return errors.NewInvalidRequestError("folder cannot carry ref_type/ref_id")
		}
	case types.ItemTypeNoteRef:
		if item.RefType == nil || item.RefID == nil {
			return errors.NewInvalidRequestError("note_ref requires both ref_type and ref_id")
		}
	default:
		return errors.NewInvalidRequestError("invalid item_type %q", item.ItemType)
	}
	return nil
}

// DeleteSubtree tombstones root and, when root is a folder, every live
// descendant. Each node's clock advances to max(existing, clockMs) so the
// cascade never rewinds a node. Returns the ids of the tombstoned
// descendants, root excluded; the caller appends their change events.
//
// The walk is an iterative breadth-first frontier with a visited set, so
// a corrupted parent chain cannot loop and tree depth never grows the
// stack.
func (o *Operator) DeleteSubtree(ex store.Execer, userID string, root *types.CollectionItem, clockMs int64) ([]string, error) {
	deletedAt := o.now().UTC()

	tombstone := func(item *types.CollectionItem) error {
		if clockMs > item.ClientUpdatedAtMs {
			item.ClientUpdatedAtMs = clockMs
		}
		item.DeletedAt = &deletedAt
		return o.items.Upsert(ex, item)
	}

	if err := tombstone(root); err != nil {
		return nil, err
	}
	if !root.IsFolder() {
		return nil, nil
	}

	visited := map[string]bool{root.ID: true}
	frontier := []string{root.ID}
	var cascaded []string

	for len(frontier) > 0 {
		parentID := frontier[0]
		frontier = frontier[1:]

		children, err := o.items.Children(ex, userID, &parentID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			if err := tombstone(child); err != nil {
				return nil, err
			}
			cascaded = append(cascaded, child.ID)
			if child.IsFolder() {
				frontier = append(frontier, child.ID)
			}
		}
	}

	o.logger.Debugw("collection subtree tombstoned",
		logger.FieldUserID, userID,
		logger.FieldEntityID, root.ID,
		logger.FieldCount, len(cascaded)+1)
	return cascaded, nil
}

// descendantIDs walks the live subtree below rootID and returns every
// descendant id, rootID excluded.
func (o *Operator) descendantIDs(ex store.Execer, userID, rootID string) (map[string]bool, error) {
	visited := map[string]bool{rootID: true}
	descendants := map[string]bool{}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		parentID := frontier[0]
		frontier = frontier[1:]

		children, err := o.items.Children(ex, userID, &parentID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			descendants[child.ID] = true
			if child.IsFolder() {
				frontier = append(frontier, child.ID)
			}
		}
	}
	return descendants, nil
}

// MoveRequest re-parents and re-orders one item. ParentID nil moves the
// item to the root.
type MoveRequest struct {
	ID                string  `json:"id"`
	ParentID          *string `json:"parent_id,omitempty"`
	SortOrder         int64   `json:"sort_order"`
	ClientUpdatedAtMs int64   `json:"client_updated_at_ms"`
}

// Move applies a batch of re-parent requests in one transaction. The whole
// batch succeeds or fails together: a duplicate id, a stale clock, a dead
// target, a cycle, or self-parenting rejects the entire request with
// nothing written.
func (o *Operator) Move(db *sql.DB, userID string, reqs []MoveRequest) error {
	if len(reqs) == 0 {
		return errors.NewInvalidRequestError("empty move batch")
	}

	// Last-applicant-wins on a repeated id within one batch is ambiguous,
	// so duplicates are refused before anything is touched.
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if seen[req.ID] {
			return errors.Wrapf(errors.ErrStructural, "duplicate item ids: %s", req.ID)
		}
		seen[req.ID] = true
	}

	nowMs := o.now().UnixMilli()

	err := store.WithTx(db, func(tx *sql.Tx) error {
		for _, req := range reqs {
			item, err := o.items.Get(tx, userID, req.ID)
			if err != nil {
				return err
			}
			if item == nil || !item.Live() {
				return errors.NewNotFoundError("collection item %s not found", req.ID)
			}

			clamped := clock.Clamp(req.ClientUpdatedAtMs, nowMs, o.maxSkewMs)
			if clamped == 0 {
				clamped = nowMs
			}
			if clamped < item.ClientUpdatedAtMs {
				return errors.Wrapf(errors.ErrConflict, "stale move for item %s", req.ID)
			}

			if req.ParentID != nil {
				if *req.ParentID == item.ID {
					return errors.Wrapf(errors.ErrStructural, "item %s cannot be its own parent", req.ID)
				}
				parent, err := o.items.Get(tx, userID, *req.ParentID)
				if err != nil {
					return err
				}
				if parent == nil || !parent.Live() || !parent.IsFolder() {
					return errors.NewNotFoundError("target parent %s is not a live folder", *req.ParentID)
				}
				if item.IsFolder() {
					descendants, err := o.descendantIDs(tx, userID, item.ID)
					if err != nil {
						return err
					}
					if descendants[*req.ParentID] {
						return errors.Wrapf(errors.ErrStructural,
							"moving %s under %s would create a cycle", req.ID, *req.ParentID)
					}
				}
			}

			item.ParentID = req.ParentID
			item.SortOrder = req.SortOrder
			item.ClientUpdatedAtMs = clamped
			if err := o.items.Upsert(tx, item); err != nil {
				return err
			}
			if _, err := o.events.Append(tx, userID, types.ResourceCollectionItem, item.ID, types.ActionUpsert); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.logger.Infow("collection items moved",
		logger.FieldUserID, userID,
		logger.FieldCount, len(reqs))
	return nil
}

// Items exposes the backing repository for callers that already hold an
// execution scope.
func (o *Operator) Items() *store.CollectionStore { return o.items }
