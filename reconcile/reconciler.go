// Package reconcile merges local notes with an external note store whose
// clock cannot be compared to local timestamps. Conflict detection uses
// content hashes against the hash recorded at the last successful run;
// the remote side wins, and diverged local content is preserved as a
// CONFLICT revision rather than silently lost.
package reconcile

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/logger"
	"github.com/driftpad/driftpad/memos"
	"github.com/driftpad/driftpad/sync/store"
	"github.com/driftpad/driftpad/sync/types"
)

// Direction selects how much of the merge runs.
type Direction string

const (
	// DirectionBoth pushes local divergence to the remote and propagates
	// local deletes.
	DirectionBoth Direction = "both"

	// DirectionPull never writes to the remote; used for one-shot
	// migrations from an external source.
	DirectionPull Direction = "pull"
)

// Provider name recorded on note mappings.
const Provider = "memos"

// Summary counts what one reconciliation run did (or, for a preview,
// would do).
type Summary struct {
	RemoteTotal            int `json:"remote_total"`
	CreatedLocal           int `json:"created_local"`
	UpdatedLocalFromRemote int `json:"updated_local_from_remote"`
	DeletedLocalFromRemote int `json:"deleted_local_from_remote"`
	Conflicts              int `json:"conflicts"`
}

// Options selects the variant of a run.
type Options struct {
	Direction Direction

	// DryRun computes the summary and rolls every local write back,
	// touching nothing remote.
	DryRun bool
}

// Config configures a Reconciler.
type Config struct {
	// LockTimeout bounds how long a run waits for the per-user slot
	// before failing fast as busy.
	LockTimeout time.Duration

	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// Reconciler runs content-hash reconciliation between local notes and a
// remote store.
type Reconciler struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	api    memos.API

	notes     *store.NoteStore
	remotes   *store.RemoteStore
	revisions *store.RevisionStore
	events    *store.EventLog

	locks       *keyedLock
	lockTimeout time.Duration
	now         func() time.Time
}

// NewReconciler creates a reconciler over db and the remote api.
func NewReconciler(database *sql.DB, api memos.API, log *zap.SugaredLogger, cfg Config) *Reconciler {
	if log == nil {
		log = logger.ComponentLogger("reconcile")
	}
	timeout := cfg.LockTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		db:          database,
		logger:      log,
		api:         api,
		notes:       store.NewNoteStore(log),
		remotes:     store.NewRemoteStore(log),
		revisions:   store.NewRevisionStore(log),
		events:      store.NewEventLog(log),
		locks:       newKeyedLock(),
		lockTimeout: timeout,
		now:         now,
	}
}

// errPreview forces the transaction to roll back after a dry run has
// gathered its counts.
var errPreview = errors.New("preview rollback")

// Run reconciles one user against the remote store. Runs are single-flight
// per user; a concurrent run fails fast with ErrLockBusy. The local side
// commits atomically: a failure anywhere rolls back every local write of
// the run.
func (r *Reconciler) Run(ctx context.Context, userID string, opts Options) (*Summary, error) {
	if opts.Direction == "" {
		opts.Direction = DirectionBoth
	}
	if opts.Direction != DirectionBoth && opts.Direction != DirectionPull {
		return nil, errors.NewInvalidRequestError("invalid direction %q", opts.Direction)
	}

	release, err := r.locks.acquire(userID, r.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	started := r.now()

	remoteNotes, err := r.api.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list remote notes")
	}

	summary := &Summary{}
	err = store.WithTx(r.db, func(tx *sql.Tx) error {
		if err := r.run(ctx, tx, userID, remoteNotes, opts, summary); err != nil {
			return err
		}
		if opts.DryRun {
			return errPreview
		}
		return nil
	})
	if err != nil && !errors.Is(err, errPreview) {
		return nil, err
	}

	r.logger.Infow("reconciliation finished",
		logger.FieldUserID, userID,
		logger.FieldProvider, Provider,
		"direction", string(opts.Direction),
		"dry_run", opts.DryRun,
		"remote_total", summary.RemoteTotal,
		"created_local", summary.CreatedLocal,
		"updated_local", summary.UpdatedLocalFromRemote,
		"deleted_local", summary.DeletedLocalFromRemote,
		"conflicts", summary.Conflicts,
		logger.FieldDurationMS, r.now().Sub(started).Milliseconds())
	return summary, nil
}

func (r *Reconciler) run(ctx context.Context, tx *sql.Tx, userID string, remoteNotes []memos.RemoteNote, opts Options, summary *Summary) error {
	now := r.now().UTC()
	nowMs := now.UnixMilli()

	// An archived remote note is indistinguishable from a removed one.
	live := make(map[string]memos.RemoteNote, len(remoteNotes))
	for _, rn := range remoteNotes {
		if !rn.Deleted {
			live[rn.RemoteID] = rn
		}
	}
	summary.RemoteTotal = len(live)

	mappings, err := r.remotes.List(tx, userID, Provider)
	if err != nil {
		return err
	}
	mappedRemote := make(map[string]bool, len(mappings))
	mappedNote := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		mappedRemote[m.RemoteID] = true
		mappedNote[m.NoteID] = true
	}

	// Remote notes never seen locally become local notes.
	for _, rn := range remoteNotes {
		if rn.Deleted || mappedRemote[rn.RemoteID] {
			continue
		}
		if err := r.createLocal(tx, userID, rn, nowMs); err != nil {
			return err
		}
		summary.CreatedLocal++
	}

	for _, m := range mappings {
		if m.DeletedAt != nil {
			continue
		}
		note, err := r.notes.Get(tx, userID, m.NoteID)
		if err != nil {
			return err
		}
		if note == nil {
			r.logger.Warnw("mapping references a missing note",
				logger.FieldUserID, userID,
				logger.FieldRemoteID, m.RemoteID)
			continue
		}

		rn, present := live[m.RemoteID]
		if !present {
			if err := r.remoteGone(tx, note, m, now, nowMs, summary); err != nil {
				return err
			}
			continue
		}
		if err := r.mergeMapped(ctx, tx, note, m, rn, opts, now, nowMs, summary); err != nil {
			return err
		}
	}

	// Local notes with no mapping at all are pushed out whole.
	if opts.Direction == DirectionBoth {
		allNotes, err := r.notes.ListAll(tx, userID)
		if err != nil {
			return err
		}
		for _, note := range allNotes {
			if !note.Live() || mappedNote[note.ID] {
				continue
			}
			if opts.DryRun {
				continue
			}
			created, err := r.api.Create(ctx, note.BodyMD)
			if err != nil {
				return errors.Wrap(err, "create remote note")
			}
			err = r.remotes.Upsert(tx, &types.NoteRemote{
				UserID:          userID,
				NoteID:          note.ID,
				Provider:        Provider,
				RemoteID:        created.RemoteID,
				RemoteSHA256Hex: HashBody(note.BodyMD),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// createLocal materializes an unmapped remote note locally and records the
// mapping with the remote content hash as the new merge base.
func (r *Reconciler) createLocal(tx *sql.Tx, userID string, rn memos.RemoteNote, nowMs int64) error {
	note := &types.Note{
		ID:                uuid.NewString(),
		UserID:            userID,
		Title:             DeriveTitle(rn.Content),
		BodyMD:            rn.Content,
		Tags:              DeriveTags(rn.Content),
		ClientUpdatedAtMs: nowMs,
	}
	if err := r.notes.Upsert(tx, note); err != nil {
		return err
	}
	if _, err := r.events.Append(tx, userID, types.ResourceNote, note.ID, types.ActionUpsert); err != nil {
		return err
	}
	return r.remotes.Upsert(tx, &types.NoteRemote{
		UserID:          userID,
		NoteID:          note.ID,
		Provider:        Provider,
		RemoteID:        rn.RemoteID,
		RemoteSHA256Hex: HashBody(rn.Content),
	})
}

// remoteGone handles a mapped remote note missing from the listing: the
// local state is snapshotted, the note tombstoned, the mapping retired.
func (r *Reconciler) remoteGone(tx *sql.Tx, note *types.Note, m *types.NoteRemote, now time.Time, nowMs int64, summary *Summary) error {
	if note.Live() {
		if err := r.snapshotConflict(tx, note, types.RevisionReasonMemosDeleted); err != nil {
			return err
		}
		summary.Conflicts++

		note.ClientUpdatedAtMs = nowMs
		note.DeletedAt = &now
		if err := r.notes.Upsert(tx, note); err != nil {
			return err
		}
		if _, err := r.events.Append(tx, note.UserID, types.ResourceNote, note.ID, types.ActionDelete); err != nil {
			return err
		}
		summary.DeletedLocalFromRemote++
	}
	m.DeletedAt = &now
	return r.remotes.Upsert(tx, m)
}

// mergeMapped runs the hash comparison for one mapped note pair.
func (r *Reconciler) mergeMapped(ctx context.Context, tx *sql.Tx, note *types.Note, m *types.NoteRemote, rn memos.RemoteNote, opts Options, now time.Time, nowMs int64, summary *Summary) error {
	remoteHash := HashBody(rn.Content)
	localHash := HashBody(note.BodyMD)
	remoteChanged := remoteHash != m.RemoteSHA256Hex
	localChanged := localHash != m.RemoteSHA256Hex

	switch {
	case !note.Live() && !remoteChanged:
		// The user deleted locally and the remote still matches the last
		// sync; the delete propagates outward.
		if opts.Direction != DirectionBoth {
			return nil
		}
		if !opts.DryRun {
			if err := r.api.Delete(ctx, m.RemoteID); err != nil {
				return errors.Wrap(err, "delete remote note")
			}
		}
		m.DeletedAt = &now
		return r.remotes.Upsert(tx, m)

	case remoteChanged:
		// Remote is authoritative. Diverged local content is snapshotted
		// before it is overwritten.
		if localChanged && note.Live() {
			if err := r.snapshotConflict(tx, note, types.RevisionReasonMemosOverwrite); err != nil {
				return err
			}
			summary.Conflicts++
		}
		note.Title = DeriveTitle(rn.Content)
		note.BodyMD = rn.Content
		note.Tags = DeriveTags(rn.Content)
		note.ClientUpdatedAtMs = nowMs
		note.DeletedAt = nil
		if err := r.notes.Upsert(tx, note); err != nil {
			return err
		}
		if _, err := r.events.Append(tx, note.UserID, types.ResourceNote, note.ID, types.ActionUpsert); err != nil {
			return err
		}
		m.RemoteSHA256Hex = remoteHash
		if err := r.remotes.Upsert(tx, m); err != nil {
			return err
		}
		summary.UpdatedLocalFromRemote++
		return nil

	case localChanged && opts.Direction == DirectionBoth && note.Live():
		if !opts.DryRun {
			if _, err := r.api.Update(ctx, m.RemoteID, note.BodyMD); err != nil {
				return errors.Wrap(err, "update remote note")
			}
		}
		m.RemoteSHA256Hex = localHash
		return r.remotes.Upsert(tx, m)

	default:
		// No content movement either way; refresh bookkeeping only.
		return r.remotes.Upsert(tx, m)
	}
}

func (r *Reconciler) snapshotConflict(tx *sql.Tx, note *types.Note, reason string) error {
	return r.revisions.Insert(tx, &types.NoteRevision{
		ID:     uuid.NewString(),
		UserID: note.UserID,
		NoteID: note.ID,
		Kind:   types.RevisionKindConflict,
		Reason: reason,
		Title:  note.Title,
		BodyMD: note.BodyMD,
		Tags:   note.Tags,
	})
}
