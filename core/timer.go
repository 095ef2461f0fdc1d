package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AutoStopNote marks TimeEntries closed by the sweep rather than a user.
const AutoStopNote = "auto-stopped"

// TimerRegistry owns the set of running timers and persists completed
// sessions. At most one timer runs per task at any instant, regardless of
// user. All ActiveTimer mutation happens under one mutex; persistence of the
// closed TimeEntry happens after the in-memory transition, so a slow store
// never stalls other tasks' timer operations.
type TimerRegistry struct {
	log      *slog.Logger
	store    TimeEntryStore
	clock    Clock
	features Features
	settings TimerSettings

	mu     sync.Mutex
	active map[TaskRef]*activeSession
}

type activeSession struct {
	ActiveTimer
	flaggedLong bool
}

func NewTimerRegistry(log *slog.Logger, store TimeEntryStore, clock Clock, features Features, settings TimerSettings) *TimerRegistry {
	return &TimerRegistry{
		log:      log,
		store:    store,
		clock:    clock,
		features: features,
		settings: settings,
		active:   make(map[TaskRef]*activeSession),
	}
}

// Start begins tracking time on the task. It fails with ErrAlreadyRunning
// when the task already has a running timer, whoever started it.
func (r *TimerRegistry) Start(task TaskRef, user string) (ActiveTimer, error) {
	if !r.features.TimeTracking {
		return ActiveTimer{}, fmt.Errorf("start timer: %w", ErrFeatureDisabled)
	}
	if task <= 0 || strings.TrimSpace(user) == "" {
		return ActiveTimer{}, fmt.Errorf("start timer: %w", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[task]; ok {
		return ActiveTimer{}, fmt.Errorf("start timer: task %d: %w", task, ErrAlreadyRunning)
	}

	sess := &activeSession{ActiveTimer: ActiveTimer{
		SessionID: uuid.New(),
		TaskID:    task,
		UserName:  user,
		StartedAt: r.clock.Now(),
	}}
	r.active[task] = sess

	r.log.Info("timer started", "task_id", task, "user", user, "session_id", sess.SessionID)
	return sess.ActiveTimer, nil
}

// Stop closes the running timer on the task and persists the TimeEntry.
// Only the user who started the session may stop it; administrative callers
// use ForceStop.
func (r *TimerRegistry) Stop(ctx context.Context, task TaskRef, user string) (TimeEntry, error) {
	if !r.features.TimeTracking {
		return TimeEntry{}, fmt.Errorf("stop timer: %w", ErrFeatureDisabled)
	}
	return r.stop(ctx, task, user, "")
}

// ForceStop closes the running timer regardless of who started it. The
// sweep's auto-stop and the task-deletion cascade go through here.
func (r *TimerRegistry) ForceStop(ctx context.Context, task TaskRef, note string) (TimeEntry, error) {
	return r.stop(ctx, task, "", note)
}

func (r *TimerRegistry) stop(ctx context.Context, task TaskRef, user, note string) (TimeEntry, error) {
	r.mu.Lock()
	sess, ok := r.active[task]
	if !ok {
		r.mu.Unlock()
		return TimeEntry{}, fmt.Errorf("stop timer: task %d: %w", task, ErrNotFound)
	}
	if user != "" && sess.UserName != user {
		r.mu.Unlock()
		return TimeEntry{}, fmt.Errorf("stop timer: session belongs to %s: %w", sess.UserName, ErrPermissionDenied)
	}

	end := r.clock.Now()
	minutes := wholeMinutes(end.Sub(sess.StartedAt))
	entry := TimeEntry{
		TaskID:          task,
		UserName:        sess.UserName,
		StartTime:       sess.StartedAt,
		EndTime:         &end,
		DurationMinutes: &minutes,
		EntryType:       EntryTimer,
		Note:            note,
	}
	delete(r.active, task)
	r.mu.Unlock()

	persisted, err := r.store.InsertTimeEntry(ctx, entry)
	if err != nil {
		// The in-memory session is already gone; re-arming it could
		// double-book the task. The caller gets the failure instead.
		return TimeEntry{}, fmt.Errorf("stop timer: persist entry: %w", err)
	}

	r.log.Info("timer stopped", "task_id", task, "user", persisted.UserName, "minutes", minutes)
	return persisted, nil
}

// AddManualEntry records a closed session that was never live in the
// registry. The end must be strictly after the start.
func (r *TimerRegistry) AddManualEntry(ctx context.Context, task TaskRef, user string, start, end time.Time, note string) (TimeEntry, error) {
	if !r.features.TimeTracking {
		return TimeEntry{}, fmt.Errorf("manual entry: %w", ErrFeatureDisabled)
	}
	if task <= 0 || strings.TrimSpace(user) == "" {
		return TimeEntry{}, fmt.Errorf("manual entry: %w", ErrValidation)
	}
	if !end.After(start) {
		return TimeEntry{}, fmt.Errorf("manual entry: end not after start: %w", ErrValidation)
	}

	minutes := wholeMinutes(end.Sub(start))
	entry := TimeEntry{
		TaskID:          task,
		UserName:        user,
		StartTime:       start,
		EndTime:         &end,
		DurationMinutes: &minutes,
		EntryType:       EntryManual,
		Note:            note,
	}
	persisted, err := r.store.InsertTimeEntry(ctx, entry)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("manual entry: %w", err)
	}
	return persisted, nil
}

// TotalLogged sums the closed entries for the task, in minutes.
func (r *TimerRegistry) TotalLogged(ctx context.Context, task TaskRef) (int, error) {
	if !r.features.TimeTracking {
		return 0, fmt.Errorf("total logged: %w", ErrFeatureDisabled)
	}
	return r.store.TotalLoggedMinutes(ctx, task)
}

// Entries lists all closed entries for the task, most recent first.
func (r *TimerRegistry) Entries(ctx context.Context, task TaskRef) ([]TimeEntry, error) {
	if !r.features.TimeTracking {
		return nil, fmt.Errorf("list entries: %w", ErrFeatureDisabled)
	}
	return r.store.ListTimeEntries(ctx, task)
}

// EditEntry rewrites a closed entry's interval and note. Only the owner may
// edit.
func (r *TimerRegistry) EditEntry(ctx context.Context, id int64, user string, start, end time.Time, note string) (TimeEntry, error) {
	if !r.features.TimeTracking {
		return TimeEntry{}, fmt.Errorf("edit entry: %w", ErrFeatureDisabled)
	}
	if !end.After(start) {
		return TimeEntry{}, fmt.Errorf("edit entry: end not after start: %w", ErrValidation)
	}

	cur, err := r.store.GetTimeEntry(ctx, id)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("edit entry: %w", err)
	}
	if cur.UserName != user {
		return TimeEntry{}, fmt.Errorf("edit entry: owned by %s: %w", cur.UserName, ErrPermissionDenied)
	}

	minutes := wholeMinutes(end.Sub(start))
	cur.StartTime = start
	cur.EndTime = &end
	cur.DurationMinutes = &minutes
	cur.Note = note
	return r.store.UpdateTimeEntry(ctx, cur)
}

// DeleteEntry removes a closed entry. Only the owner may delete.
func (r *TimerRegistry) DeleteEntry(ctx context.Context, id int64, user string) error {
	if !r.features.TimeTracking {
		return fmt.Errorf("delete entry: %w", ErrFeatureDisabled)
	}
	cur, err := r.store.GetTimeEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if cur.UserName != user {
		return fmt.Errorf("delete entry: owned by %s: %w", cur.UserName, ErrPermissionDenied)
	}
	return r.store.DeleteTimeEntry(ctx, id)
}

// IsRunning reports whether the task has a live timer. A disabled registry
// never has one, since Start is gated.
func (r *TimerRegistry) IsRunning(task TaskRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[task]
	return ok
}

// RunningFor returns the elapsed time of the live timer, if any.
func (r *TimerRegistry) RunningFor(task TaskRef) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.active[task]
	if !ok {
		return 0, false
	}
	return r.clock.Now().Sub(sess.StartedAt), true
}

// Sweep is the periodic tick: it flags sessions past the long-session
// threshold (once per session) and, when auto-stop is configured, closes
// sessions past the auto-stop horizon with an auto-stopped note.
func (r *TimerRegistry) Sweep(ctx context.Context) {
	now := r.clock.Now()

	var toStop []TaskRef
	r.mu.Lock()
	for task, sess := range r.active {
		elapsed := now.Sub(sess.StartedAt)
		if r.settings.LongSessionThreshold > 0 && elapsed >= r.settings.LongSessionThreshold && !sess.flaggedLong {
			sess.flaggedLong = true
			r.log.Warn("long-running timer session",
				"task_id", task, "user", sess.UserName, "elapsed", elapsed.Round(time.Minute))
		}
		if r.settings.AutoStopAfter > 0 && elapsed >= r.settings.AutoStopAfter {
			toStop = append(toStop, task)
		}
	}
	r.mu.Unlock()

	for _, task := range toStop {
		if _, err := r.ForceStop(ctx, task, AutoStopNote); err != nil && !errors.Is(err, ErrNotFound) {
			r.log.Error("auto-stop failed", "task_id", task, "error", err)
		}
	}
}

// wholeMinutes rounds to whole minutes and never goes negative.
func wholeMinutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(math.Round(d.Minutes()))
}
