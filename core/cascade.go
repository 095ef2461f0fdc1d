package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DeletionCascade keeps derived state consistent when the primary store
// deletes a task. A running timer is closed into a final TimeEntry before
// the checklist cascade runs, so no ActiveTimer ever references a deleted
// task.
type DeletionCascade struct {
	log      *slog.Logger
	timers   *TimerRegistry
	subtasks *SubtaskLedger
}

const taskDeletedNote = "task deleted"

func NewDeletionCascade(log *slog.Logger, timers *TimerRegistry, subtasks *SubtaskLedger) *DeletionCascade {
	return &DeletionCascade{log: log, timers: timers, subtasks: subtasks}
}

// OnTaskDeleted is called by the external task store after it deletes a
// task. The cascade is mandatory and runs regardless of feature gates.
func (c *DeletionCascade) OnTaskDeleted(ctx context.Context, task TaskRef) error {
	entry, err := c.timers.ForceStop(ctx, task, taskDeletedNote)
	switch {
	case err == nil:
		c.log.Info("closed timer for deleted task", "task_id", task, "entry_id", entry.ID)
	case errors.Is(err, ErrNotFound):
		// no timer was running
	default:
		return fmt.Errorf("task deletion cascade: %w", err)
	}

	if _, err := c.subtasks.DeleteAllForTask(ctx, task); err != nil {
		return fmt.Errorf("task deletion cascade: %w", err)
	}
	return nil
}
