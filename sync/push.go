// Package sync implements the mutation-conflict engine: batch push with
// per-mutation outcomes, cursor-bounded pull, and the last-write-wins
// planner both are built on.
package sync

import (
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/collection"
	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/logger"
	"github.com/driftpad/driftpad/sync/clock"
	"github.com/driftpad/driftpad/sync/store"
	"github.com/driftpad/driftpad/sync/types"
)

// Mutation is one proposed change in a push batch.
type Mutation struct {
	Resource          types.Resource  `json:"resource"`
	Op                types.Op        `json:"op"`
	EntityID          string          `json:"entity_id"`
	ClientUpdatedAtMs int64           `json:"client_updated_at_ms"`
	Data              json.RawMessage `json:"data,omitempty"`
}

// Applied identifies a mutation that was written.
type Applied struct {
	Resource types.Resource `json:"resource"`
	EntityID string         `json:"entity_id"`
}

// Rejected carries one refused mutation. Server, when present, is the
// current committed snapshot the caller should re-base on.
type Rejected struct {
	Resource types.Resource `json:"resource"`
	EntityID string         `json:"entity_id"`
	Reason   string         `json:"reason"`
	Server   interface{}    `json:"server,omitempty"`
}

// PushResult is the committed outcome of one push batch. Rejections are a
// normal committed outcome, not a failure.
type PushResult struct {
	Cursor   int64      `json:"cursor"`
	Applied  []Applied  `json:"applied"`
	Rejected []Rejected `json:"rejected"`
}

// Options configures an Engine.
type Options struct {
	// MaxClockSkewMs bounds how far ahead of server time a client clock
	// claim is honored.
	MaxClockSkewMs int64

	// Collections is the tree operator handling cascade deletes. When nil
	// the engine builds its own with the same skew budget.
	Collections *collection.Operator

	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// Engine drives push and pull for every synchronized resource.
type Engine struct {
	db       *sql.DB
	logger   *zap.SugaredLogger
	events   *store.EventLog
	registry *registry

	maxSkewMs        int64
	pullDefaultLimit int
	pullMaxLimit     int
	now              func() time.Time
}

// NewEngine creates a sync engine over db.
func NewEngine(database *sql.DB, log *zap.SugaredLogger, opts Options) *Engine {
	if log == nil {
		log = logger.ComponentLogger("sync")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tree := opts.Collections
	if tree == nil {
		tree = collection.NewOperator(log, collection.Options{
			MaxClockSkewMs: opts.MaxClockSkewMs,
			Now:            now,
		})
	}
	return &Engine{
		db:               database,
		logger:           log,
		events:           store.NewEventLog(log),
		registry:         newRegistry(log, tree),
		maxSkewMs:        opts.MaxClockSkewMs,
		pullDefaultLimit: 200,
		pullMaxLimit:     1000,
		now:              now,
	}
}

// SetPullLimits overrides the default and maximum pull page sizes.
func (e *Engine) SetPullLimits(defaultLimit, maxLimit int) {
	if defaultLimit > 0 {
		e.pullDefaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		e.pullMaxLimit = maxLimit
	}
}

// Push applies a batch of mutations for userID inside one transaction.
// Each mutation gets an independent outcome; a rejection never aborts the
// batch, only a storage failure does, and then nothing from the batch is
// visible.
func (e *Engine) Push(userID string, mutations []Mutation) (*PushResult, error) {
	started := e.now()
	nowMs := started.UnixMilli()

	// Parent rows first, so a list and its items can arrive in one batch.
	ordered := make([]Mutation, len(mutations))
	copy(ordered, mutations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return resourcePriority[ordered[i].Resource] < resourcePriority[ordered[j].Resource]
	})

	result := &PushResult{Applied: []Applied{}, Rejected: []Rejected{}}

	err := store.WithTx(e.db, func(tx *sql.Tx) error {
		for _, m := range ordered {
			applied, rej, err := e.applyOne(tx, userID, m, started, nowMs)
			if err != nil {
				return err
			}
			if rej != nil {
				result.Rejected = append(result.Rejected, *rej)
				continue
			}
			if applied {
				result.Applied = append(result.Applied, Applied{Resource: m.Resource, EntityID: m.EntityID})
			}
		}

		cursor, err := e.events.LatestCursor(tx, userID)
		if err != nil {
			return err
		}
		result.Cursor = cursor
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("push batch committed",
		logger.FieldUserID, userID,
		logger.FieldBatchSize, len(mutations),
		logger.FieldApplied, len(result.Applied),
		logger.FieldRejected, len(result.Rejected),
		logger.FieldCursor, result.Cursor,
		logger.FieldDurationMS, e.now().Sub(started).Milliseconds())
	return result, nil
}

// applyOne runs one mutation through the planner and, on apply, through its
// resource operations. Returns applied=true for a write or an accepted
// no-op delete; rej non-nil for a data-level rejection.
func (e *Engine) applyOne(tx *sql.Tx, userID string, m Mutation, now time.Time, nowMs int64) (applied bool, rej *Rejected, err error) {
	reject := func(reason string, server interface{}) (bool, *Rejected, error) {
		e.logger.Debugw("mutation rejected",
			logger.FieldUserID, userID,
			logger.FieldResource, string(m.Resource),
			logger.FieldEntityID, m.EntityID,
			logger.FieldOp, string(m.Op),
			logger.FieldReason, reason)
		return false, &Rejected{Resource: m.Resource, EntityID: m.EntityID, Reason: reason, Server: server}, nil
	}

	clamped := clock.Clamp(m.ClientUpdatedAtMs, nowMs, e.maxSkewMs)
	if clamped == 0 {
		// Zero means the client wants the server's notion of now.
		clamped = nowMs
	}

	ops, known := e.registry.lookup(m.Resource)

	var server *types.RowState
	if known {
		if server, err = ops.get(tx, userID, m.EntityID); err != nil {
			return false, nil, err
		}
	}

	plan := PlanMutation(m.Op, known, clamped, server)
	if plan.Decision == DecisionReject {
		var snapshot interface{}
		if plan.Server != nil {
			snapshot = plan.Server.Snapshot
		}
		return reject(plan.Reason, snapshot)
	}
	if plan.Decision == DecisionDeleteNoop {
		// Deleting what never existed succeeds and touches nothing, so a
		// replayed delete stays silent in the event log too.
		return true, nil, nil
	}

	fields, err := decodeFields(m.Data)
	if err != nil {
		var rejErr *RejectError
		if errors.As(err, &rejErr) {
			return reject(rejErr.Reason, nil)
		}
		return false, nil, err
	}

	ac := applyCtx{
		userID:   userID,
		entityID: m.EntityID,
		clockMs:  clamped,
		now:      now,
		fields:   fields,
	}
	if server != nil {
		ac.server = server.Snapshot
	}

	action := types.ActionUpsert
	var cascaded []string

	switch plan.Decision {
	case DecisionCreate:
		err = ops.create(tx, ac)
	case DecisionUpdate:
		err = ops.update(tx, ac)
	case DecisionDelete:
		action = types.ActionDelete
		cascaded, err = ops.remove(tx, ac)
	}
	if err != nil {
		var rejErr *RejectError
		if errors.As(err, &rejErr) {
			return reject(rejErr.Reason, nil)
		}
		return false, nil, err
	}

	if _, err := e.events.Append(tx, userID, m.Resource, m.EntityID, action); err != nil {
		return false, nil, err
	}
	for _, id := range cascaded {
		if _, err := e.events.Append(tx, userID, m.Resource, id, types.ActionDelete); err != nil {
			return false, nil, err
		}
	}
	return true, nil, nil
}
