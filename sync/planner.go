package sync

import (
	"fmt"

	"github.com/driftpad/driftpad/sync/types"
)

// Decision is the planner's verdict for one proposed mutation.
type Decision int

const (
	// DecisionReject refuses the mutation; Plan.Reason explains why and,
	// for conflicts, Plan.Server carries the current server state so the
	// caller can re-base.
	DecisionReject Decision = iota

	// DecisionCreate applies the mutation as a first write of the entity.
	DecisionCreate

	// DecisionUpdate applies the mutation over the existing row.
	DecisionUpdate

	// DecisionDelete tombstones the existing row.
	DecisionDelete

	// DecisionDeleteNoop accepts a delete of an entity that was never
	// created. Deleting something that never existed always succeeds and
	// touches nothing.
	DecisionDeleteNoop
)

// Reject reasons surfaced to clients. Conflict rejections additionally carry
// the server snapshot.
const (
	ReasonInvalidClock    = "invalid client_updated_at_ms"
	ReasonInvalidOp       = "invalid op"
	ReasonInvalidResource = "invalid resource"
	ReasonConflict        = "conflict"
	ReasonMissingBody     = "missing body_md"
	ReasonMissingListID   = "missing list_id"
)

// Plan is the outcome of planning one mutation.
type Plan struct {
	Decision Decision
	Reason   string
	Server   *types.RowState
}

// RejectError marks a data-level rejection raised while validating or
// applying a mutation. Rejections are data, not failures: they land in the
// push response's rejected list and the batch continues.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return e.Reason }

// Rejectf builds a RejectError with a formatted reason.
func Rejectf(format string, args ...interface{}) *RejectError {
	return &RejectError{Reason: fmt.Sprintf(format, args...)}
}

// PlanMutation decides, without side effects, whether a proposed mutation
// applies against the current server state of its entity.
//
// server is nil when the entity has never been seen. resourceKnown is false
// when the resource name is outside the closed registry.
//
// Ties favor the incoming write: an upsert whose clock equals the server
// row's clock overwrites it.
func PlanMutation(op types.Op, resourceKnown bool, incomingMs int64, server *types.RowState) Plan {
	if incomingMs <= 0 {
		return Plan{Decision: DecisionReject, Reason: ReasonInvalidClock}
	}
	if op != types.OpUpsert && op != types.OpDelete {
		return Plan{Decision: DecisionReject, Reason: ReasonInvalidOp}
	}
	if !resourceKnown {
		return Plan{Decision: DecisionReject, Reason: ReasonInvalidResource}
	}

	if server == nil {
		if op == types.OpDelete {
			return Plan{Decision: DecisionDeleteNoop}
		}
		return Plan{Decision: DecisionCreate}
	}

	if incomingMs < server.ClientUpdatedAtMs {
		return Plan{Decision: DecisionReject, Reason: ReasonConflict, Server: server}
	}

	if op == types.OpDelete {
		return Plan{Decision: DecisionDelete}
	}

	// Resurrection must go through an explicit restore path, not an
	// ambient upsert.
	if server.Deleted {
		return Plan{Decision: DecisionReject, Reason: ReasonConflict, Server: server}
	}

	return Plan{Decision: DecisionUpdate}
}
