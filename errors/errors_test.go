package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelWrapping(t *testing.T) {
	err := Wrap(ErrConflict, "todo_item abc: stale write")

	assert.True(t, Is(err, ErrConflict))
	assert.True(t, IsConflictError(err))
	assert.False(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "stale write")
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("todo_list %s", "list-1")

	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "list-1")
}

func TestNewStructuralError(t *testing.T) {
	err := NewStructuralError("cycle: %s is a descendant of %s", "a", "b")

	assert.True(t, IsStructuralError(err))
	assert.False(t, IsConflictError(err))
}

func TestPredicatesOnNil(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsConflictError(nil))
	assert.False(t, IsLockBusyError(nil))
	assert.False(t, IsStructuralError(nil))
	assert.False(t, IsInvalidRequestError(nil))
}

func TestDeepWrapPreservesSentinel(t *testing.T) {
	err := Wrap(Wrap(ErrLockBusy, "user u1"), "reconcile")

	assert.True(t, IsLockBusyError(err))
}
