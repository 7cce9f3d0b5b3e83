package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftpad/driftpad/sync/types"
)

func TestPullReturnsCurrentSnapshots(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Push(testUser, []Mutation{
		{
			Resource:          types.ResourceTodoList,
			Op:                types.OpUpsert,
			EntityID:          "list-1",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"name": "inbox"}),
		},
		{
			Resource:          types.ResourceNote,
			Op:                types.OpUpsert,
			EntityID:          "note-1",
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"body_md": "hello"}),
		},
	})
	require.NoError(t, err)

	result, err := engine.Pull(testUser, 0, 100)
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.Cursor)
	assert.Equal(t, int64(2), result.NextCursor)
	assert.False(t, result.HasMore)
	require.Len(t, result.Changes[types.ResourceTodoList], 1)
	require.Len(t, result.Changes[types.ResourceNote], 1)

	note := result.Changes[types.ResourceNote][0].(*types.Note)
	assert.Equal(t, "hello", note.BodyMD)
}

func TestPullDeduplicatesRepeatedTouches(t *testing.T) {
	engine, _ := newTestEngine(t)

	for i, body := range []string{"v1", "v2", "v3"} {
		_, err := engine.Push(testUser, []Mutation{{
			Resource:          types.ResourceNote,
			Op:                types.OpUpsert,
			EntityID:          "note-1",
			ClientUpdatedAtMs: int64(1000 + i),
			Data:              payload(t, map[string]interface{}{"body_md": body}),
		}})
		require.NoError(t, err)
	}

	result, err := engine.Pull(testUser, 0, 100)
	require.NoError(t, err)

	// Three events but one entity: one snapshot, at its latest content.
	require.Len(t, result.Changes[types.ResourceNote], 1)
	note := result.Changes[types.ResourceNote][0].(*types.Note)
	assert.Equal(t, "v3", note.BodyMD)
	assert.Equal(t, int64(3), result.NextCursor)
}

func TestPullIncludesTombstonedSnapshots(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 1000,
		Data:              payload(t, map[string]interface{}{"body_md": "short lived"}),
	}})
	require.NoError(t, err)

	_, err = engine.Push(testUser, []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpDelete,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 2000,
	}})
	require.NoError(t, err)

	result, err := engine.Pull(testUser, 0, 100)
	require.NoError(t, err)

	require.Len(t, result.Changes[types.ResourceNote], 1)
	note := result.Changes[types.ResourceNote][0].(*types.Note)
	assert.NotNil(t, note.DeletedAt, "clients need the tombstone to delete locally")
}

func TestPullPagination(t *testing.T) {
	engine, _ := newTestEngine(t)

	for i := 0; i < 5; i++ {
		_, err := engine.Push(testUser, []Mutation{{
			Resource:          types.ResourceNote,
			Op:                types.OpUpsert,
			EntityID:          "note-" + string(rune('a'+i)),
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"body_md": "body"}),
		}})
		require.NoError(t, err)
	}

	first, err := engine.Pull(testUser, 0, 2)
	require.NoError(t, err)
	assert.True(t, first.HasMore)
	assert.Equal(t, int64(2), first.NextCursor)
	assert.Len(t, first.Changes[types.ResourceNote], 2)

	second, err := engine.Pull(testUser, first.NextCursor, 100)
	require.NoError(t, err)
	assert.False(t, second.HasMore)
	assert.Equal(t, int64(5), second.NextCursor)
	assert.Len(t, second.Changes[types.ResourceNote], 3)

	// The feed is quiet until something new is pushed.
	third, err := engine.Pull(testUser, second.NextCursor, 100)
	require.NoError(t, err)
	assert.False(t, third.HasMore)
	assert.Equal(t, second.NextCursor, third.NextCursor)
	assert.Empty(t, third.Changes)
}

func TestPullLimitIsCapped(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.SetPullLimits(2, 3)

	for i := 0; i < 5; i++ {
		_, err := engine.Push(testUser, []Mutation{{
			Resource:          types.ResourceNote,
			Op:                types.OpUpsert,
			EntityID:          "note-" + string(rune('a'+i)),
			ClientUpdatedAtMs: 1000,
			Data:              payload(t, map[string]interface{}{"body_md": "body"}),
		}})
		require.NoError(t, err)
	}

	// limit 0 falls back to the default of 2.
	byDefault, err := engine.Pull(testUser, 0, 0)
	require.NoError(t, err)
	assert.Len(t, byDefault.Changes[types.ResourceNote], 2)

	// An oversized request is capped at 3.
	capped, err := engine.Pull(testUser, 0, 50)
	require.NoError(t, err)
	assert.Len(t, capped.Changes[types.ResourceNote], 3)
	assert.True(t, capped.HasMore)
}

func TestPullScopedPerUser(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Push("alice", []Mutation{{
		Resource:          types.ResourceNote,
		Op:                types.OpUpsert,
		EntityID:          "note-1",
		ClientUpdatedAtMs: 1000,
		Data:              payload(t, map[string]interface{}{"body_md": "private"}),
	}})
	require.NoError(t, err)

	result, err := engine.Pull("bob", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, result.Changes)
	assert.False(t, result.HasMore)
}
