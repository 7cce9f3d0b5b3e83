// Package types defines the synchronized entities shared by the sync engine,
// the repositories, and the external reconciler.
//
// Every synchronized entity is a tenant row: exclusively owned by its user_id,
// carrying the last-write-wins clock (client_updated_at_ms) and a soft-delete
// marker (deleted_at). Tombstoned rows are retained forever so stale deletes
// and creates can still be adjudicated.
package types

import "time"

// Resource identifies a synchronized resource kind. The set is closed; the
// sync engine resolves each resource to its capabilities through a registry,
// never by ad-hoc string branching.
type Resource string

const (
	ResourceUserSetting    Resource = "user_setting"
	ResourceTodoList       Resource = "todo_list"
	ResourceTodoItem       Resource = "todo_item"
	ResourceTodoOccurrence Resource = "todo_occurrence"
	ResourceNote           Resource = "note"
	ResourceCollectionItem Resource = "collection_item"
)

// Op is a mutation operation carried in a push batch.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// EventAction mirrors Op for the append-only change log.
type EventAction string

const (
	ActionUpsert EventAction = "upsert"
	ActionDelete EventAction = "delete"
)

// RowState is the planner's view of a server row: just enough to adjudicate
// a conflict, plus the full snapshot to hand back to a rejected caller.
type RowState struct {
	ClientUpdatedAtMs int64
	Deleted           bool
	Snapshot          interface{}
}

// UserSetting is a key-scoped singleton carrying an opaque JSON value.
// The key doubles as the entity id.
type UserSetting struct {
	Key               string     `json:"key"`
	UserID            string     `json:"user_id"`
	ValueJSON         string     `json:"value_json"`
	ClientUpdatedAtMs int64      `json:"client_updated_at_ms"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TodoList groups todo items.
type TodoList struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Name              string     `json:"name"`
	SortOrder         int64      `json:"sort_order"`
	ClientUpdatedAtMs int64      `json:"client_updated_at_ms"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TodoItem belongs to a live TodoList within the same tenant. RRule, when
// set, is an opaque recurrence rule the clients interpret.
type TodoItem struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	ListID            string     `json:"list_id"`
	Title             string     `json:"title"`
	BodyMD            string     `json:"body_md"`
	DueAtMs           *int64     `json:"due_at_ms,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	RRule             *string    `json:"rrule,omitempty"`
	ClientUpdatedAtMs int64      `json:"client_updated_at_ms"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TodoOccurrence overrides a single instance of a recurring item, keyed by
// (item_id, tzid, recurrence_id_local) within the tenant.
type TodoOccurrence struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	ItemID            string     `json:"item_id"`
	TZID              string     `json:"tzid"`
	RecurrenceIDLocal string     `json:"recurrence_id_local"`
	Status            string     `json:"status"`
	DueAtMs           *int64     `json:"due_at_ms,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ClientUpdatedAtMs int64      `json:"client_updated_at_ms"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Note is a markdown note with derived tag associations.
type Note struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Title             string     `json:"title"`
	BodyMD            string     `json:"body_md"`
	Tags              []string   `json:"tags"`
	ClientUpdatedAtMs int64      `json:"client_updated_at_ms"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CollectionItem kinds. Folders require a non-empty name and forbid refs;
// note_refs require both ref_type and ref_id.
const (
	ItemTypeFolder  = "folder"
	ItemTypeNoteRef = "note_ref"
)

// CollectionItem is a node in the per-user folder forest. ParentID nil
// denotes a root.
type CollectionItem struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	ParentID          *string    `json:"parent_id,omitempty"`
	ItemType          string     `json:"item_type"`
	Name              string     `json:"name"`
	RefType           *string    `json:"ref_type,omitempty"`
	RefID             *string    `json:"ref_id,omitempty"`
	SortOrder         int64      `json:"sort_order"`
	ClientUpdatedAtMs int64      `json:"client_updated_at_ms"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ChangeEvent is one entry in the append-only per-user change log. ID is
// strictly increasing per user and serves as the pull cursor.
type ChangeEvent struct {
	ID        int64       `json:"id"`
	UserID    string      `json:"user_id"`
	Resource  Resource    `json:"resource"`
	EntityID  string      `json:"entity_id"`
	Action    EventAction `json:"action"`
	CreatedAt time.Time   `json:"created_at"`
}

// NoteRemote maps a local note to its counterpart in an external provider.
// RemoteSHA256Hex is the hash of the note body as last observed from the
// remote; it is the three-way-merge base for reconciliation.
type NoteRemote struct {
	UserID          string     `json:"user_id"`
	NoteID          string     `json:"note_id"`
	Provider        string     `json:"provider"`
	RemoteID        string     `json:"remote_id"`
	RemoteSHA256Hex string     `json:"remote_sha256_hex"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Revision kinds and reasons. A CONFLICT revision preserves local state that
// was about to be overwritten or deleted by the remote side.
const (
	RevisionKindConflict = "CONFLICT"

	RevisionReasonMemosOverwrite = "memos_overwrite"
	RevisionReasonMemosDeleted   = "memos_deleted"
)

// NoteRevision is an immutable snapshot of a note's content.
type NoteRevision struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	NoteID    string    `json:"note_id"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	Title     string    `json:"title"`
	BodyMD    string    `json:"body_md"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// Live reports whether the setting row is not tombstoned.
func (s *UserSetting) Live() bool { return s.DeletedAt == nil }

// Live reports whether the list row is not tombstoned.
func (l *TodoList) Live() bool { return l.DeletedAt == nil }

// Live reports whether the item row is not tombstoned.
func (i *TodoItem) Live() bool { return i.DeletedAt == nil }

// Live reports whether the occurrence row is not tombstoned.
func (o *TodoOccurrence) Live() bool { return o.DeletedAt == nil }

// Live reports whether the note row is not tombstoned.
func (n *Note) Live() bool { return n.DeletedAt == nil }

// Live reports whether the collection item row is not tombstoned.
func (c *CollectionItem) Live() bool { return c.DeletedAt == nil }

// IsFolder reports whether the item is a folder node.
func (c *CollectionItem) IsFolder() bool { return c.ItemType == ItemTypeFolder }
