package sync

import (
	"github.com/driftpad/driftpad/collection"
	"github.com/driftpad/driftpad/db"
	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/sync/store"
	"github.com/driftpad/driftpad/sync/types"
)

// settingOps synchronizes key-scoped user settings. The setting key is the
// entity id.
type settingOps struct {
	settings *store.SettingsStore
}

func (o *settingOps) get(ex store.Execer, userID, id string) (*types.RowState, error) {
	setting, err := o.settings.Get(ex, userID, id)
	if err != nil || setting == nil {
		return nil, err
	}
	return asRowState(setting.ClientUpdatedAtMs, setting.Live(), setting), nil
}

func (o *settingOps) create(ex store.Execer, ac applyCtx) error {
	setting := &types.UserSetting{
		Key:               ac.entityID,
		UserID:            ac.userID,
		ValueJSON:         "{}",
		ClientUpdatedAtMs: ac.clockMs,
	}
	if err := ac.fields.unmarshal("value_json", &setting.ValueJSON); err != nil {
		return err
	}
	return o.settings.Upsert(ex, setting)
}

func (o *settingOps) update(ex store.Execer, ac applyCtx) error {
	setting := ac.server.(*types.UserSetting)
	if err := ac.fields.unmarshal("value_json", &setting.ValueJSON); err != nil {
		return err
	}
	setting.ClientUpdatedAtMs = ac.clockMs
	return o.settings.Upsert(ex, setting)
}

func (o *settingOps) remove(ex store.Execer, ac applyCtx) ([]string, error) {
	setting := ac.server.(*types.UserSetting)
	setting.ClientUpdatedAtMs = ac.clockMs
	deletedAt := ac.now.UTC()
	setting.DeletedAt = &deletedAt
	return nil, o.settings.Upsert(ex, setting)
}

// todoListOps synchronizes todo lists.
type todoListOps struct {
	todo *store.TodoStore
}

func (o *todoListOps) get(ex store.Execer, userID, id string) (*types.RowState, error) {
	list, err := o.todo.GetList(ex, userID, id)
	if err != nil || list == nil {
		return nil, err
	}
	return asRowState(list.ClientUpdatedAtMs, list.Live(), list), nil
}

func (o *todoListOps) patch(list *types.TodoList, ac applyCtx) error {
	if err := ac.fields.unmarshal("name", &list.Name); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("sort_order", &list.SortOrder); err != nil {
		return err
	}
	list.ClientUpdatedAtMs = ac.clockMs
	return nil
}

func (o *todoListOps) create(ex store.Execer, ac applyCtx) error {
	list := &types.TodoList{ID: ac.entityID, UserID: ac.userID}
	if err := o.patch(list, ac); err != nil {
		return err
	}
	return o.todo.UpsertList(ex, list)
}

func (o *todoListOps) update(ex store.Execer, ac applyCtx) error {
	list := ac.server.(*types.TodoList)
	if err := o.patch(list, ac); err != nil {
		return err
	}
	return o.todo.UpsertList(ex, list)
}

func (o *todoListOps) remove(ex store.Execer, ac applyCtx) ([]string, error) {
	list := ac.server.(*types.TodoList)
	list.ClientUpdatedAtMs = ac.clockMs
	deletedAt := ac.now.UTC()
	list.DeletedAt = &deletedAt
	return nil, o.todo.UpsertList(ex, list)
}

// todoItemOps synchronizes todo items. list_id must resolve to a live list
// in the same tenant, both on create and whenever a patch re-points it.
type todoItemOps struct {
	todo *store.TodoStore
}

func (o *todoItemOps) get(ex store.Execer, userID, id string) (*types.RowState, error) {
	item, err := o.todo.GetItem(ex, userID, id)
	if err != nil || item == nil {
		return nil, err
	}
	return asRowState(item.ClientUpdatedAtMs, item.Live(), item), nil
}

func (o *todoItemOps) patch(item *types.TodoItem, ac applyCtx) error {
	if err := ac.fields.unmarshal("list_id", &item.ListID); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("title", &item.Title); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("body_md", &item.BodyMD); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("due_at_ms", &item.DueAtMs); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("completed_at", &item.CompletedAt); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("rrule", &item.RRule); err != nil {
		return err
	}
	item.ClientUpdatedAtMs = ac.clockMs
	return nil
}

func (o *todoItemOps) requireLiveList(ex store.Execer, userID, listID string) error {
	live, err := o.todo.ListIsLive(ex, userID, listID)
	if err != nil {
		return err
	}
	if !live {
		return Rejectf("list %s not found", listID)
	}
	return nil
}

func (o *todoItemOps) create(ex store.Execer, ac applyCtx) error {
	item := &types.TodoItem{ID: ac.entityID, UserID: ac.userID}
	if err := o.patch(item, ac); err != nil {
		return err
	}
	if item.ListID == "" {
		return &RejectError{Reason: ReasonMissingListID}
	}
	if err := o.requireLiveList(ex, ac.userID, item.ListID); err != nil {
		return err
	}
	return o.todo.UpsertItem(ex, item)
}

func (o *todoItemOps) update(ex store.Execer, ac applyCtx) error {
	item := ac.server.(*types.TodoItem)
	previousList := item.ListID
	if err := o.patch(item, ac); err != nil {
		return err
	}
	if item.ListID != previousList {
		if err := o.requireLiveList(ex, ac.userID, item.ListID); err != nil {
			return err
		}
	}
	return o.todo.UpsertItem(ex, item)
}

func (o *todoItemOps) remove(ex store.Execer, ac applyCtx) ([]string, error) {
	item := ac.server.(*types.TodoItem)
	item.ClientUpdatedAtMs = ac.clockMs
	deletedAt := ac.now.UTC()
	item.DeletedAt = &deletedAt
	return nil, o.todo.UpsertItem(ex, item)
}

// todoOccurrenceOps synchronizes per-instance overrides of recurring items.
// The natural key (item_id, tzid, recurrence_id_local) is unique per user.
type todoOccurrenceOps struct {
	todo *store.TodoStore
}

func (o *todoOccurrenceOps) get(ex store.Execer, userID, id string) (*types.RowState, error) {
	occ, err := o.todo.GetOccurrence(ex, userID, id)
	if err != nil || occ == nil {
		return nil, err
	}
	return asRowState(occ.ClientUpdatedAtMs, occ.Live(), occ), nil
}

func (o *todoOccurrenceOps) patch(occ *types.TodoOccurrence, ac applyCtx) error {
	if err := ac.fields.unmarshal("item_id", &occ.ItemID); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("tzid", &occ.TZID); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("recurrence_id_local", &occ.RecurrenceIDLocal); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("status", &occ.Status); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("due_at_ms", &occ.DueAtMs); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("completed_at", &occ.CompletedAt); err != nil {
		return err
	}
	occ.ClientUpdatedAtMs = ac.clockMs
	return nil
}

func (o *todoOccurrenceOps) create(ex store.Execer, ac applyCtx) error {
	occ := &types.TodoOccurrence{ID: ac.entityID, UserID: ac.userID}
	if err := o.patch(occ, ac); err != nil {
		return err
	}
	if occ.ItemID == "" {
		return Rejectf("missing item_id")
	}
	live, err := o.todo.ItemIsLive(ex, ac.userID, occ.ItemID)
	if err != nil {
		return err
	}
	if !live {
		return Rejectf("item %s not found", occ.ItemID)
	}
	err = o.todo.UpsertOccurrence(ex, occ)
	if db.IsUniqueViolation(err) {
		// A second id raced on the same (item, tzid, recurrence) slot.
		return Rejectf("occurrence slot already taken for item %s", occ.ItemID)
	}
	return err
}

func (o *todoOccurrenceOps) update(ex store.Execer, ac applyCtx) error {
	occ := ac.server.(*types.TodoOccurrence)
	if err := o.patch(occ, ac); err != nil {
		return err
	}
	return o.todo.UpsertOccurrence(ex, occ)
}

func (o *todoOccurrenceOps) remove(ex store.Execer, ac applyCtx) ([]string, error) {
	occ := ac.server.(*types.TodoOccurrence)
	occ.ClientUpdatedAtMs = ac.clockMs
	deletedAt := ac.now.UTC()
	occ.DeletedAt = &deletedAt
	return nil, o.todo.UpsertOccurrence(ex, occ)
}

// noteOps synchronizes markdown notes. A create must carry a body; updates
// may patch any subset of title, body, and tags.
type noteOps struct {
	notes *store.NoteStore
}

func (o *noteOps) get(ex store.Execer, userID, id string) (*types.RowState, error) {
	note, err := o.notes.Get(ex, userID, id)
	if err != nil || note == nil {
		return nil, err
	}
	return asRowState(note.ClientUpdatedAtMs, note.Live(), note), nil
}

func (o *noteOps) patch(note *types.Note, ac applyCtx) error {
	if err := ac.fields.unmarshal("title", &note.Title); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("body_md", &note.BodyMD); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("tags", &note.Tags); err != nil {
		return err
	}
	note.ClientUpdatedAtMs = ac.clockMs
	return nil
}

func (o *noteOps) create(ex store.Execer, ac applyCtx) error {
	note := &types.Note{ID: ac.entityID, UserID: ac.userID}
	if err := o.patch(note, ac); err != nil {
		return err
	}
	if note.BodyMD == "" {
		return &RejectError{Reason: ReasonMissingBody}
	}
	return o.notes.Upsert(ex, note)
}

func (o *noteOps) update(ex store.Execer, ac applyCtx) error {
	note := ac.server.(*types.Note)
	if err := o.patch(note, ac); err != nil {
		return err
	}
	return o.notes.Upsert(ex, note)
}

func (o *noteOps) remove(ex store.Execer, ac applyCtx) ([]string, error) {
	note := ac.server.(*types.Note)
	note.ClientUpdatedAtMs = ac.clockMs
	deletedAt := ac.now.UTC()
	note.DeletedAt = &deletedAt
	return nil, o.notes.Upsert(ex, note)
}

// collectionOps synchronizes folder/note-ref tree nodes. Deleting a folder
// cascades through the tree operator; re-parenting is refused here because
// only the move endpoint runs the cycle check.
type collectionOps struct {
	tree *collection.Operator
}

func (o *collectionOps) get(ex store.Execer, userID, id string) (*types.RowState, error) {
	item, err := o.tree.Items().Get(ex, userID, id)
	if err != nil || item == nil {
		return nil, err
	}
	return asRowState(item.ClientUpdatedAtMs, item.Live(), item), nil
}

func (o *collectionOps) patch(item *types.CollectionItem, ac applyCtx) error {
	// ref_type and ref_id describe one target; half an update is
	// meaningless.
	if ac.fields.has("ref_type") != ac.fields.has("ref_id") {
		return Rejectf("ref_type and ref_id must be supplied together")
	}
	if err := ac.fields.unmarshal("item_type", &item.ItemType); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("name", &item.Name); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("ref_type", &item.RefType); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("ref_id", &item.RefID); err != nil {
		return err
	}
	if err := ac.fields.unmarshal("sort_order", &item.SortOrder); err != nil {
		return err
	}
	item.ClientUpdatedAtMs = ac.clockMs
	return rejectOrErr(collection.ValidateShape(item))
}

func (o *collectionOps) requireLiveFolder(ex store.Execer, userID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, err := o.tree.Items().Get(ex, userID, *parentID)
	if err != nil {
		return err
	}
	if parent == nil || !parent.Live() || !parent.IsFolder() {
		return Rejectf("parent %s is not a live folder", *parentID)
	}
	return nil
}

func (o *collectionOps) create(ex store.Execer, ac applyCtx) error {
	item := &types.CollectionItem{ID: ac.entityID, UserID: ac.userID}
	if err := ac.fields.unmarshal("parent_id", &item.ParentID); err != nil {
		return err
	}
	if err := o.patch(item, ac); err != nil {
		return err
	}
	if err := o.requireLiveFolder(ex, ac.userID, item.ParentID); err != nil {
		return err
	}
	err := o.tree.Items().Insert(ex, item)
	if db.IsUniqueViolation(err) {
		// Two create requests raced on the same client-generated id; this
		// is a request collision, not an LWW conflict, and it aborts.
		return errors.Wrapf(errors.ErrConflict, "collection item %s already exists", ac.entityID)
	}
	return err
}

func (o *collectionOps) update(ex store.Execer, ac applyCtx) error {
	if len(ac.fields) == 0 {
		return Rejectf("no fields to patch")
	}
	if ac.fields.has("parent_id") {
		return Rejectf("parent_id changes must go through move")
	}
	item := ac.server.(*types.CollectionItem)
	if err := o.patch(item, ac); err != nil {
		return err
	}
	return o.tree.Items().Upsert(ex, item)
}

func (o *collectionOps) remove(ex store.Execer, ac applyCtx) ([]string, error) {
	item := ac.server.(*types.CollectionItem)
	return o.tree.DeleteSubtree(ex, ac.userID, item, ac.clockMs)
}
