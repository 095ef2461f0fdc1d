package core

import "context"

type Pinger interface {
	Ping(ctx context.Context) error
}

type TimeEntryStore interface {
	InsertTimeEntry(ctx context.Context, e TimeEntry) (TimeEntry, error)
	GetTimeEntry(ctx context.Context, id int64) (TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, e TimeEntry) (TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, id int64) error
	ListTimeEntries(ctx context.Context, task TaskRef) ([]TimeEntry, error)
	TotalLoggedMinutes(ctx context.Context, task TaskRef) (int, error)
	TimeSummaries(ctx context.Context, limit int) ([]TimeSummary, error)
}

type SubtaskStore interface {
	// InsertSubtask assigns the next sort_order for the task (first item
	// gets 0) and ignores any SortOrder set on the argument.
	InsertSubtask(ctx context.Context, s Subtask) (Subtask, error)
	GetSubtask(ctx context.Context, id int64) (Subtask, error)
	UpdateSubtask(ctx context.Context, s Subtask) (Subtask, error)
	DeleteSubtask(ctx context.Context, id int64) error
	DeleteSubtasksForTask(ctx context.Context, task TaskRef) (int, error)
	ListSubtasks(ctx context.Context, task TaskRef) ([]Subtask, error)
	SetSubtaskOrder(ctx context.Context, task TaskRef, orderedIDs []int64) error
	SubtaskCounts(ctx context.Context, task TaskRef) (total, completed int, err error)
	ChecklistCounts(ctx context.Context) ([]ChecklistProgress, error)
}

type TemplateStore interface {
	InsertTemplate(ctx context.Context, t Template) (Template, error)
	GetTemplate(ctx context.Context, id int64) (Template, error)
	// ListTemplates returns the templates visible to user: owned by user
	// or public.
	ListTemplates(ctx context.Context, user string) ([]Template, error)
	InsertTemplateSubtask(ctx context.Context, ts TemplateSubtask) (TemplateSubtask, error)
	ListTemplateSubtasks(ctx context.Context, templateID int64) ([]TemplateSubtask, error)
	IncrementTemplateUsage(ctx context.Context, id int64) error
}

type SavedFilterStore interface {
	InsertSavedFilter(ctx context.Context, f SavedFilter) (SavedFilter, error)
	GetSavedFilter(ctx context.Context, id int64) (SavedFilter, error)
	ListSavedFilters(ctx context.Context, owner string) ([]SavedFilter, error)
	DeleteSavedFilter(ctx context.Context, id int64) error
}

// TaskCreator is the task-creation contract of the primary store. Template
// materialization writes new tasks through it.
type TaskCreator interface {
	CreateTask(ctx context.Context, fields TaskFields) (TaskRef, error)
}

// TaskSearcher executes a compiled, parameterized query against the primary
// task table.
type TaskSearcher interface {
	SearchTasks(ctx context.Context, q CompiledQuery) ([]TaskSummary, error)
}

// Store is the full persistence surface implemented by the db adapter.
type Store interface {
	Pinger
	TimeEntryStore
	SubtaskStore
	TemplateStore
	SavedFilterStore
	TaskCreator
	TaskSearcher
}
