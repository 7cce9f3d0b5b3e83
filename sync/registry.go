package sync

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/collection"
	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/store"
	"github.com/driftpad/driftpad/sync/types"
)

// resourceOps is the capability set a synchronized resource kind exposes to
// the push engine. The set of implementations is closed and resolved once
// through the registry map; the engine never branches on resource names.
type resourceOps interface {
	// get returns the planner's view of the entity's current server row,
	// tombstones included; nil when the entity has never been seen.
	get(ex store.Execer, userID, id string) (*types.RowState, error)

	// create writes the entity's first row. A *RejectError return is a
	// data-level rejection (missing required field, dead foreign key);
	// any other error aborts the batch.
	create(ex store.Execer, ac applyCtx) error

	// update patches the existing row with the fields present in the
	// payload and advances its clock.
	update(ex store.Execer, ac applyCtx) error

	// remove tombstones the row, returning the ids of any additional
	// entities tombstoned by a cascade so the engine can log their
	// change events.
	remove(ex store.Execer, ac applyCtx) ([]string, error)
}

// applyCtx carries everything an operation needs to apply one planned
// mutation. server is the row get returned, already type-asserted safe for
// the owning ops; it is nil for creates.
type applyCtx struct {
	userID   string
	entityID string
	clockMs  int64
	now      time.Time
	fields   payloadFields
	server   interface{}
}

// resourcePriority fixes the application order inside one push batch:
// parent rows before the rows that reference them, occurrence overrides
// last.
var resourcePriority = map[types.Resource]int{
	types.ResourceUserSetting:    0,
	types.ResourceTodoList:       0,
	types.ResourceCollectionItem: 0,
	types.ResourceTodoItem:       1,
	types.ResourceNote:           1,
	types.ResourceTodoOccurrence: 2,
}

// registry maps each resource kind to its operations. Lookup failure means
// the resource name is outside the closed set.
type registry struct {
	ops map[types.Resource]resourceOps
}

func newRegistry(log *zap.SugaredLogger, tree *collection.Operator) *registry {
	return &registry{ops: map[types.Resource]resourceOps{
		types.ResourceUserSetting:    &settingOps{settings: store.NewSettingsStore(log)},
		types.ResourceTodoList:       &todoListOps{todo: store.NewTodoStore(log)},
		types.ResourceTodoItem:       &todoItemOps{todo: store.NewTodoStore(log)},
		types.ResourceTodoOccurrence: &todoOccurrenceOps{todo: store.NewTodoStore(log)},
		types.ResourceNote:           &noteOps{notes: store.NewNoteStore(log)},
		types.ResourceCollectionItem: &collectionOps{tree: tree},
	}}
}

func (r *registry) lookup(resource types.Resource) (resourceOps, bool) {
	ops, ok := r.ops[resource]
	return ops, ok
}

// payloadFields is a mutation payload decoded for field-presence checks.
// A key that is present with a JSON null clears the corresponding nullable
// column; an absent key leaves the column untouched.
type payloadFields map[string]json.RawMessage

func decodeFields(data json.RawMessage) (payloadFields, error) {
	if len(data) == 0 {
		return payloadFields{}, nil
	}
	var fields payloadFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, Rejectf("malformed payload: %v", err)
	}
	if fields == nil {
		fields = payloadFields{}
	}
	return fields, nil
}

func (f payloadFields) has(key string) bool {
	_, ok := f[key]
	return ok
}

// unmarshal decodes the named field into dst. Absent keys are a no-op.
func (f payloadFields) unmarshal(key string, dst interface{}) error {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return Rejectf("invalid %s: %v", key, err)
	}
	return nil
}

// asRowState builds the planner's view from a concrete row.
func asRowState(clockMs int64, live bool, snapshot interface{}) *types.RowState {
	return &types.RowState{
		ClientUpdatedAtMs: clockMs,
		Deleted:           !live,
		Snapshot:          snapshot,
	}
}

// rejectOrErr converts invalid-request errors raised by shared validation
// helpers into data-level rejections; everything else stays fatal.
func rejectOrErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.IsInvalidRequestError(err) {
		return &RejectError{Reason: err.Error()}
	}
	return err
}
