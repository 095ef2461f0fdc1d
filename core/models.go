package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskRef identifies a task row in the primary task store. Tasks themselves
// are owned elsewhere; this layer only references them.
type TaskRef int64

type EntryType string

const (
	EntryTimer  EntryType = "timer"
	EntryManual EntryType = "manual"
)

// TimeEntry is a closed (or manually recorded) tracking session. Once
// persisted it only changes through an explicit edit or delete by its owner.
type TimeEntry struct {
	ID              int64      `db:"id"`
	TaskID          TaskRef    `db:"task_id"`
	UserName        string     `db:"user_name"`
	StartTime       time.Time  `db:"start_time"`
	EndTime         *time.Time `db:"end_time"`
	DurationMinutes *int       `db:"duration_minutes"`
	EntryType       EntryType  `db:"entry_type"`
	Note            string     `db:"note"`
	CreatedAt       time.Time  `db:"created_at"`
}

// ActiveTimer is the in-memory record of a running session. It is never
// persisted; the registry turns it into a TimeEntry on stop. StartedAt comes
// from Clock.Now and keeps its monotonic reading, so elapsed computation is
// immune to wall-clock adjustment.
type ActiveTimer struct {
	SessionID uuid.UUID
	TaskID    TaskRef
	UserName  string
	StartedAt time.Time
}

type Subtask struct {
	ID          int64      `db:"id"`
	TaskID      TaskRef    `db:"task_id"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	Completed   bool       `db:"completed"`
	SortOrder   int        `db:"sort_order"`
	AssignedTo  *string    `db:"assigned_to"`
	CompletedAt *time.Time `db:"completed_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// TaskFields carries default field values for a template and the override
// set supplied at materialization. Stored as a JSON object.
type TaskFields map[string]string

func (f TaskFields) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *TaskFields) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*f = TaskFields{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan task fields: unsupported type %T", src)
	}
	if len(data) == 0 {
		*f = TaskFields{}
		return nil
	}
	return json.Unmarshal(data, f)
}

// Clone returns an independent copy so materialization can merge overrides
// without touching the stored defaults.
func (f TaskFields) Clone() TaskFields {
	out := make(TaskFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

type Template struct {
	ID         int64      `db:"id"`
	Name       string     `db:"template_name"`
	Owner      string     `db:"owner"`
	IsPublic   bool       `db:"is_public"`
	Defaults   TaskFields `db:"default_field_values"`
	UsageCount int        `db:"usage_count"`
	CreatedAt  time.Time  `db:"created_at"`
}

type TemplateSubtask struct {
	ID          int64  `db:"id"`
	TemplateID  int64  `db:"template_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	SortOrder   int    `db:"sort_order"`
}

// SavedFilter persists a named PredicateTree per owner. The body is the
// versioned serialized form produced by EncodePredicate.
type SavedFilter struct {
	ID            int64     `db:"id"`
	Owner         string    `db:"owner"`
	Name          string    `db:"filter_name"`
	PredicateBody string    `db:"predicate_body"`
	CreatedAt     time.Time `db:"created_at"`
}

// TaskSummary is the projection of a primary-store task row returned by a
// compiled search.
type TaskSummary struct {
	ID          TaskRef    `db:"id"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	Category    string     `db:"category"`
	Priority    string     `db:"priority"`
	AssignedTo  string     `db:"assigned_to"`
	Completed   bool       `db:"completed"`
	DueDate     *time.Time `db:"due_date"`
	CreatedDate time.Time  `db:"created_date"`
}
