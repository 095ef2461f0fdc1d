package core

import (
	"context"
	"fmt"
	"log/slog"
)

// TimeSummary aggregates the closed entries of one task.
type TimeSummary struct {
	TaskID       TaskRef `db:"task_id"`
	EntryCount   int     `db:"entry_count"`
	TotalMinutes int     `db:"total_minutes"`
}

// ChecklistProgress aggregates the checklist of one task. Percent uses the
// same rounding as SubtaskLedger.CompletionPercentage, so the dashboard view
// and the ledger can never drift apart.
type ChecklistProgress struct {
	TaskID    TaskRef `db:"task_id"`
	Total     int     `db:"total"`
	Completed int     `db:"completed"`
	Percent   int     `db:"-"`
}

// Analytics is the read side consumed by the dashboard collaborators. It
// writes nothing; it only aggregates the rows this layer owns.
type Analytics struct {
	log      *slog.Logger
	entries  TimeEntryStore
	subtasks SubtaskStore
}

func NewAnalytics(log *slog.Logger, entries TimeEntryStore, subtasks SubtaskStore) *Analytics {
	return &Analytics{log: log, entries: entries, subtasks: subtasks}
}

// TimeTrackingSummary returns the top tasks by logged minutes.
func (a *Analytics) TimeTrackingSummary(ctx context.Context, limit int) ([]TimeSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	out, err := a.entries.TimeSummaries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("time tracking summary: %w", err)
	}
	return out, nil
}

// ChecklistProgressAll returns per-task checklist counts with the completion
// percentage filled in.
func (a *Analytics) ChecklistProgressAll(ctx context.Context) ([]ChecklistProgress, error) {
	rows, err := a.subtasks.ChecklistCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("checklist progress: %w", err)
	}
	for i := range rows {
		rows[i].Percent = completionPercent(rows[i].Total, rows[i].Completed)
	}
	return rows, nil
}
