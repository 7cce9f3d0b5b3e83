package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftpad/driftpad/sync/types"
)

func liveRow(clockMs int64) *types.RowState {
	return &types.RowState{ClientUpdatedAtMs: clockMs, Snapshot: "snapshot"}
}

func tombstonedRow(clockMs int64) *types.RowState {
	return &types.RowState{ClientUpdatedAtMs: clockMs, Deleted: true, Snapshot: "snapshot"}
}

func TestPlanMutation(t *testing.T) {
	tests := []struct {
		name         string
		op           types.Op
		known        bool
		incomingMs   int64
		server       *types.RowState
		wantDecision Decision
		wantReason   string
	}{
		{
			name:         "zero clock rejected",
			op:           types.OpUpsert,
			known:        true,
			incomingMs:   0,
			wantDecision: DecisionReject,
			wantReason:   ReasonInvalidClock,
		},
		{
			name:         "negative clock rejected",
			op:           types.OpDelete,
			known:        true,
			incomingMs:   -5,
			wantDecision: DecisionReject,
			wantReason:   ReasonInvalidClock,
		},
		{
			name:         "unknown op rejected",
			op:           types.Op("merge"),
			known:        true,
			incomingMs:   100,
			wantDecision: DecisionReject,
			wantReason:   ReasonInvalidOp,
		},
		{
			name:         "unknown resource rejected",
			op:           types.OpUpsert,
			known:        false,
			incomingMs:   100,
			wantDecision: DecisionReject,
			wantReason:   ReasonInvalidResource,
		},
		{
			name:         "delete of unseen entity is a no-op apply",
			op:           types.OpDelete,
			known:        true,
			incomingMs:   100,
			wantDecision: DecisionDeleteNoop,
		},
		{
			name:         "upsert of unseen entity creates",
			op:           types.OpUpsert,
			known:        true,
			incomingMs:   100,
			wantDecision: DecisionCreate,
		},
		{
			name:         "stale upsert conflicts",
			op:           types.OpUpsert,
			known:        true,
			incomingMs:   99,
			server:       liveRow(100),
			wantDecision: DecisionReject,
			wantReason:   ReasonConflict,
		},
		{
			name:         "stale delete conflicts",
			op:           types.OpDelete,
			known:        true,
			incomingMs:   99,
			server:       liveRow(100),
			wantDecision: DecisionReject,
			wantReason:   ReasonConflict,
		},
		{
			name:         "newer upsert updates",
			op:           types.OpUpsert,
			known:        true,
			incomingMs:   101,
			server:       liveRow(100),
			wantDecision: DecisionUpdate,
		},
		{
			name:         "equal-clock upsert wins the tie",
			op:           types.OpUpsert,
			known:        true,
			incomingMs:   100,
			server:       liveRow(100),
			wantDecision: DecisionUpdate,
		},
		{
			name:         "equal-clock delete wins the tie",
			op:           types.OpDelete,
			known:        true,
			incomingMs:   100,
			server:       liveRow(100),
			wantDecision: DecisionDelete,
		},
		{
			name:         "delete of tombstone still applies",
			op:           types.OpDelete,
			known:        true,
			incomingMs:   200,
			server:       tombstonedRow(100),
			wantDecision: DecisionDelete,
		},
		{
			name:         "upsert against tombstone conflicts",
			op:           types.OpUpsert,
			known:        true,
			incomingMs:   200,
			server:       tombstonedRow(100),
			wantDecision: DecisionReject,
			wantReason:   ReasonConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanMutation(tt.op, tt.known, tt.incomingMs, tt.server)
			assert.Equal(t, tt.wantDecision, plan.Decision)
			assert.Equal(t, tt.wantReason, plan.Reason)
		})
	}
}

func TestPlanMutationConflictCarriesServerSnapshot(t *testing.T) {
	server := liveRow(100)
	plan := PlanMutation(types.OpUpsert, true, 50, server)

	assert.Equal(t, DecisionReject, plan.Decision)
	assert.Equal(t, ReasonConflict, plan.Reason)
	assert.Same(t, server, plan.Server)
}

func TestPlanMutationValidationRejectionsCarryNoSnapshot(t *testing.T) {
	plan := PlanMutation(types.OpUpsert, true, 0, liveRow(100))
	assert.Nil(t, plan.Server)
}
