package core

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// SubtaskLedger owns the checklist items hanging off a task and computes
// completion metrics. Percentages are recomputed from the rows on every
// query; nothing is cached.
type SubtaskLedger struct {
	log      *slog.Logger
	store    SubtaskStore
	clock    Clock
	features Features
}

func NewSubtaskLedger(log *slog.Logger, store SubtaskStore, clock Clock, features Features) *SubtaskLedger {
	return &SubtaskLedger{log: log, store: store, clock: clock, features: features}
}

func (l *SubtaskLedger) Add(ctx context.Context, task TaskRef, title, description string, assignedTo *string) (Subtask, error) {
	if !l.features.Subtasks {
		return Subtask{}, fmt.Errorf("add subtask: %w", ErrFeatureDisabled)
	}
	return l.addItem(ctx, task, title, description, assignedTo)
}

// addItem is the ungated append used by Add and by template materialization,
// which must keep working even when the standalone subtask surface is off.
func (l *SubtaskLedger) addItem(ctx context.Context, task TaskRef, title, description string, assignedTo *string) (Subtask, error) {
	title = strings.TrimSpace(title)
	if task <= 0 || title == "" {
		return Subtask{}, fmt.Errorf("add subtask: %w", ErrValidation)
	}
	created, err := l.store.InsertSubtask(ctx, Subtask{
		TaskID:      task,
		Title:       title,
		Description: strings.TrimSpace(description),
		AssignedTo:  assignedTo,
	})
	if err != nil {
		return Subtask{}, fmt.Errorf("add subtask: %w", err)
	}
	l.log.Debug("subtask added", "task_id", task, "subtask_id", created.ID, "sort_order", created.SortOrder)
	return created, nil
}

func (l *SubtaskLedger) Get(ctx context.Context, id int64) (Subtask, error) {
	if !l.features.Subtasks {
		return Subtask{}, fmt.Errorf("get subtask: %w", ErrFeatureDisabled)
	}
	return l.store.GetSubtask(ctx, id)
}

func (l *SubtaskLedger) List(ctx context.Context, task TaskRef) ([]Subtask, error) {
	if !l.features.Subtasks {
		return nil, fmt.Errorf("list subtasks: %w", ErrFeatureDisabled)
	}
	return l.store.ListSubtasks(ctx, task)
}

// Toggle flips the completion flag. Toggling twice restores the original
// state.
func (l *SubtaskLedger) Toggle(ctx context.Context, id int64) (Subtask, error) {
	if !l.features.Subtasks {
		return Subtask{}, fmt.Errorf("toggle subtask: %w", ErrFeatureDisabled)
	}
	cur, err := l.store.GetSubtask(ctx, id)
	if err != nil {
		return Subtask{}, fmt.Errorf("toggle subtask: %w", err)
	}

	cur.Completed = !cur.Completed
	if cur.Completed {
		now := l.clock.Now()
		cur.CompletedAt = &now
	} else {
		cur.CompletedAt = nil
	}
	return l.store.UpdateSubtask(ctx, cur)
}

func (l *SubtaskLedger) Delete(ctx context.Context, id int64) error {
	if !l.features.Subtasks {
		return fmt.Errorf("delete subtask: %w", ErrFeatureDisabled)
	}
	return l.store.DeleteSubtask(ctx, id)
}

// CompletionPercentage returns round(100 * completed / total), or 0 when the
// task has no subtasks. It always lands in [0,100].
func (l *SubtaskLedger) CompletionPercentage(ctx context.Context, task TaskRef) (int, error) {
	if !l.features.Subtasks {
		return 0, fmt.Errorf("completion percentage: %w", ErrFeatureDisabled)
	}
	total, completed, err := l.store.SubtaskCounts(ctx, task)
	if err != nil {
		return 0, fmt.Errorf("completion percentage: %w", err)
	}
	return completionPercent(total, completed), nil
}

// Reorder rewrites the sort order of the task's checklist. The id set must
// exactly match the existing subtasks of the task.
func (l *SubtaskLedger) Reorder(ctx context.Context, task TaskRef, orderedIDs []int64) error {
	if !l.features.Subtasks {
		return fmt.Errorf("reorder subtasks: %w", ErrFeatureDisabled)
	}
	existing, err := l.store.ListSubtasks(ctx, task)
	if err != nil {
		return fmt.Errorf("reorder subtasks: %w", err)
	}

	if len(orderedIDs) != len(existing) {
		return fmt.Errorf("reorder subtasks: id set mismatch: %w", ErrValidation)
	}
	want := make(map[int64]struct{}, len(existing))
	for _, s := range existing {
		want[s.ID] = struct{}{}
	}
	seen := make(map[int64]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := want[id]; !ok {
			return fmt.Errorf("reorder subtasks: id %d not in task %d: %w", id, task, ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("reorder subtasks: duplicate id %d: %w", id, ErrValidation)
		}
		seen[id] = struct{}{}
	}

	return l.store.SetSubtaskOrder(ctx, task, orderedIDs)
}

// DeleteAllForTask is the cascade hook invoked when the primary store
// deletes the parent task. It is a mandatory side effect and therefore not
// feature-gated.
func (l *SubtaskLedger) DeleteAllForTask(ctx context.Context, task TaskRef) (int, error) {
	n, err := l.store.DeleteSubtasksForTask(ctx, task)
	if err != nil {
		return 0, fmt.Errorf("cascade delete subtasks: %w", err)
	}
	if n > 0 {
		l.log.Info("subtasks cascade-deleted", "task_id", task, "count", n)
	}
	return n, nil
}

func completionPercent(total, completed int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
