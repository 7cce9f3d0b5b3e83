package sync

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	drifttest "github.com/driftpad/driftpad/internal/testing"
	"github.com/driftpad/driftpad/sync/store"
	"github.com/driftpad/driftpad/sync/types"
)

const (
	testUser  = "user-1"
	testNowMs = int64(1_700_000_000_000)
	testSkew  = int64(300_000)
)

func newTestEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()
	database := drifttest.CreateTestDB(t)
	engine := NewEngine(database, zap.NewNop().Sugar(), Options{
		MaxClockSkewMs: testSkew,
		Now:            func() time.Time { return time.UnixMilli(testNowMs) },
	})
	return engine, database
}

func payload(t *testing.T, fields map[string]interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return raw
}

func TestPushAppliesListBeforeItemRegardlessOfBatchOrder(t *testing.T) {
	engine, database := newTestEngine(t)

	// The item arrives first in the slice; priority ordering must apply
	// the list it references before the item is validated.
	result, err := engine.Push(testUser, []Mutation{
		{
			Resource:          types.ResourceTodoItem,
			Op:                types.OpUpsert,
			EntityID:          "item-1",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"list_id": "list-1", "title": "buy milk"}),
		},
		{
			Resource:          types.ResourceTodoList,
			Op:                types.OpUpsert,
			EntityID:          "list-1",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"name": "groceries"}),
		},
	})
	require.NoError(t, err)

	assert.Len(t, result.Applied, 2)
	assert.Empty(t, result.Rejected)
	assert.Equal(t, int64(2), result.Cursor)

	todos := store.NewTodoStore(zap.NewNop().Sugar())
	item, err := todos.GetItem(database, testUser, "item-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "list-1", item.ListID)
	assert.Equal(t, "buy milk", item.Title)
}

func TestPushNoteCreateRequiresBody(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 1000,
		Data:              payload(t, map[string]interface{}{"title": "empty"}),
	}})
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, ReasonMissingBody, result.Rejected[0].Reason)
	assert.Empty(t, result.Applied)
	assert.Equal(t, int64(0), result.Cursor)
}

func TestPushTodoItemCreateRequiresLiveList(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Push(testUser, []Mutation{
		{
			Resource:          types.ResourceTodoItem,
			Op:                types.OpUpsert,
			EntityID:          "item-no-list",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"title": "orphan"}),
		},
		{
			Resource:          types.ResourceTodoItem,
			Op:                types.OpUpsert,
			EntityID:          "item-dead-list",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"list_id": "nope", "title": "orphan"}),
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Rejected, 2)
	assert.Equal(t, ReasonMissingListID, result.Rejected[0].Reason)
	assert.Contains(t, result.Rejected[1].Reason, "not found")
}

func TestPushStaleWriteRejectedWithServerSnapshot(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 2000,
		Data:              payload(t, map[string]interface{}{"body_md": "current"}),
	}})
	require.NoError(t, err)

	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 1000,
		Data:              payload(t, map[string]interface{}{"body_md": "stale"}),
	}})
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	rej := result.Rejected[0]
	assert.Equal(t, ReasonConflict, rej.Reason)
	server, ok := rej.Server.(*types.Note)
	require.True(t, ok, "conflict should carry the committed note")
	assert.Equal(t, "current", server.BodyMD)
	assert.Equal(t, int64(2000), server.ClientUpdatedAtMs)
}

func TestPushEqualClockUpsertOverwrites(t *testing.T) {
	engine, database := newTestEngine(t)

	for _, body := range []string{"first", "second"} {
		result, err := engine.Push(testUser, []Mutation{{
			Resource:          types.ResourceNote,
			Op:                types.OpUpsert,
			EntityID:          "note-1",
			ClientUpdatedAtMs: 2000,
			Data:              payload(t, map[string]interface{}{"body_md": body}),
		}})
		require.NoError(t, err)
		assert.Len(t, result.Applied, 1)
	}

	notes := store.NewNoteStore(zap.NewNop().Sugar())
	note, err := notes.Get(database, testUser, "note-1")
	require.NoError(t, err)
	assert.Equal(t, "second", note.BodyMD)
}

func TestPushUpsertAgainstTombstoneConflicts(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 1000,
		Data:              payload(t, map[string]interface{}{"body_md": "alive"}),
	}})
	require.NoError(t, err)

	_, err = engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpDelete,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 2000,
	}})
	require.NoError(t, err)

	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 3000,
		Data:              payload(t, map[string]interface{}{"body_md": "resurrected"}),
	}})
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, ReasonConflict, result.Rejected[0].Reason)
}

func TestPushDeleteOfUnseenEntityIsTrueNoop(t *testing.T) {
	engine, database := newTestEngine(t)

	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpDelete,
		EntityID:          "ghost",
		ClientUpdatedAtMs: 1000,
	}})
	require.NoError(t, err)

	assert.Len(t, result.Applied, 1)
	assert.Empty(t, result.Rejected)
	// A no-op leaves no trace: no row, no change event.
	assert.Equal(t, int64(0), result.Cursor)

	notes := store.NewNoteStore(zap.NewNop().Sugar())
	note, err := notes.Get(database, testUser, "ghost")
	require.NoError(t, err)
	assert.Nil(t, note)
}

func TestPushClampsFutureClockToSkewCeiling(t *testing.T) {
	engine, database := newTestEngine(t)

	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: testNowMs + 10*testSkew,
		Data:              payload(t, map[string]interface{}{"body_md": "from the future"}),
	}})
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)

	notes := store.NewNoteStore(zap.NewNop().Sugar())
	note, err := notes.Get(database, testUser, "note-1")
	require.NoError(t, err)
	assert.Equal(t, testNowMs+testSkew, note.ClientUpdatedAtMs)
}

func TestPushZeroClockUsesServerTime(t *testing.T) {
	engine, database := newTestEngine(t)

	_, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 0,
		Data:              payload(t, map[string]interface{}{"body_md": "no clock"}),
	}})
	require.NoError(t, err)

	notes := store.NewNoteStore(zap.NewNop().Sugar())
	note, err := notes.Get(database, testUser, "note-1")
	require.NoError(t, err)
	assert.Equal(t, testNowMs, note.ClientUpdatedAtMs)
}

func TestPushRejectionDoesNotAbortBatch(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Push(testUser, []Mutation{
		{
			Resource:          types.ResourceNote,
			Op:                types.Op("merge"),
			EntityID:          "note-bad",
			ClientUpdatedAtMs: 1000,
		},
		{
			Resource:          types.ResourceNote,
			Op:                types.OpUpsert,
			EntityID:          "note-good",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"body_md": "fine"}),
		},
	})
	require.NoError(t, err)

	assert.Len(t, result.Applied, 1)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, ReasonInvalidOp, result.Rejected[0].Reason)
	assert.Equal(t, int64(1), result.Cursor)
}

func TestPushUnknownResourceRejected(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.Resource("bookmark"),
		Op:                types.OpUpsert,
		EntityID:          "b-1",
		ClientUpdatedAtMs: 1000,
	}})
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, ReasonInvalidResource, result.Rejected[0].Reason)
}

func TestPushSettingLifecycle(t *testing.T) {
	engine, database := newTestEngine(t)

	_, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceUserSetting,
		Op:                types.OpUpsert,
		EntityID:          "theme",
		ClientUpdatedAtMs: 1000,
		Data:              payload(t, map[string]interface{}{"value_json": `{"mode":"dark"}`}),
	}})
	require.NoError(t, err)

	_, err = engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceUserSetting,
		Op:                types.OpUpsert,
		EntityID:          "theme",
		ClientUpdatedAtMs: 2000,
		Data:              payload(t, map[string]interface{}{"value_json": `{"mode":"light"}`}),
	}})
	require.NoError(t, err)

	settings := store.NewSettingsStore(zap.NewNop().Sugar())
	setting, err := settings.Get(database, testUser, "theme")
	require.NoError(t, err)
	assert.Equal(t, `{"mode":"light"}`, setting.ValueJSON)
	assert.Equal(t, int64(2000), setting.ClientUpdatedAtMs)
}

func TestPushOccurrenceRequiresLiveItem(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceTodoOccurrence,
		Op:                types.OpUpsert,
		EntityID:          "occ-1",
		ClientUpdatedAtMs: 1000,
		Data: payload(t, map[string]interface{}{
			"item_id": "missing-item", "tzid": "Europe/Berlin",
			"recurrence_id_local": "2026-08-30", "status": "done",
		}),
	}})
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Reason, "not found")
}

func TestPushReplayIsIdempotent(t *testing.T) {
	engine, database := newTestEngine(t)

	batch := []Mutation{
		{
			Resource:          types.ResourceTodoList,
			Op:                types.OpUpsert,
			EntityID:          "list-1",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"name": "inbox"}),
		},
		{
			Resource:          types.ResourceNote,
			Op:                types.OpDelete,
			EntityID:          "ghost",
			ClientUpdatedAtMs: 1000,
		},
	}

	first, err := engine.Push(testUser, batch)
	require.NoError(t, err)
	second, err := engine.Push(testUser, batch)
	require.NoError(t, err)

	// The replayed upsert ties on the clock and rewrites the same state;
	// the replayed delete stays a no-op.
	assert.Len(t, first.Applied, 2)
	assert.Len(t, second.Applied, 2)

	todos := store.NewTodoStore(zap.NewNop().Sugar())
	list, err := todos.GetList(database, testUser, "list-1")
	require.NoError(t, err)
	assert.Equal(t, "inbox", list.Name)
	assert.Equal(t, int64(1000), list.ClientUpdatedAtMs)
}

func TestPushIsScopedPerUser(t *testing.T) {
	engine, database := newTestEngine(t)

	_, err := engine.Push("alice", []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 1000,
		Data:              payload(t, map[string]interface{}{"body_md": "alice's note"}),
	}})
	require.NoError(t, err)

	notes := store.NewNoteStore(zap.NewNop().Sugar())
	note, err := notes.Get(database, "bob", "note-1")
	require.NoError(t, err)
	assert.Nil(t, note)

	cursor, err := engine.LatestCursor("bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)
}

func TestPushFolderDeleteCascadesWithEvents(t *testing.T) {
	engine, database := newTestEngine(t)

	_, err := engine.Push(testUser, []Mutation{
		{
			Resource:          types.ResourceCollectionItem,
			Op:                types.OpUpsert,
			EntityID:          "folder-a",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"item_type": "folder", "name": "A"}),
		},
	})
	require.NoError(t, err)

	_, err = engine.Push(testUser, []Mutation{
		{
			Resource:          types.ResourceCollectionItem,
			Op:                types.OpUpsert,
			EntityID:          "folder-b",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"item_type": "folder", "name": "B", "parent_id": "folder-a"}),
		},
	})
	require.NoError(t, err)

	_, err = engine.Push(testUser, []Mutation{
		{
			Resource:          types.ResourceCollectionItem,
			Op:                types.OpUpsert,
			EntityID:          "ref-c",
			ClientUpdatedAtMs: 1000,
			Data: payload(t, map[string]interface{}{
				"item_type": "note_ref", "name": "C", "parent_id": "folder-b",
				"ref_type": "note", "ref_id": "note-1",
			}),
		},
	})
	require.NoError(t, err)

	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceCollectionItem,
		Op:                types.OpDelete,
		EntityID:          "folder-a",
		ClientUpdatedAtMs: 2000,
	}})
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)

	// One delete event for the root and one per cascaded descendant.
	assert.Equal(t, int64(6), result.Cursor)

	items := store.NewCollectionStore(zap.NewNop().Sugar())
	for _, id := range []string{"folder-a", "folder-b", "ref-c"} {
		item, err := items.Get(database, testUser, id)
		require.NoError(t, err)
		require.NotNil(t, item, id)
		assert.NotNil(t, item.DeletedAt, id)
		assert.Equal(t, int64(2000), item.ClientUpdatedAtMs, id)
	}

	parent := "folder-a"
	children, err := items.Children(database, testUser, &parent)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestPushCollectionPatchKeepsShapeInvariant(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceCollectionItem,
		Op:                types.OpUpsert,
		EntityID:          "folder-a",
		ClientUpdatedAtMs: 1000,
		Data:              payload(t, map[string]interface{}{"item_type": "folder", "name": "A"}),
	}})
	require.NoError(t, err)

	// Half a ref is meaningless.
	result, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceCollectionItem,
		Op:                types.OpUpsert,
		EntityID:          "folder-a",
		ClientUpdatedAtMs: 2000,
		Data:              payload(t, map[string]interface{}{"ref_type": "note"}),
	}})
	require.NoError(t, err)
	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Reason, "together")

	// An empty patch carries nothing but the clock.
	result, err = engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceCollectionItem,
		Op:                types.OpUpsert,
		EntityID:          "folder-a",
		ClientUpdatedAtMs: 2000,
	}})
	require.NoError(t, err)
	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Reason, "no fields")
}
