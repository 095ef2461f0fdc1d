package core

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a hand-advanced Clock for deterministic duration tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStore is an in-memory Store mirroring the adapter's semantics:
// sort_order assignment, per-owner unique names, ErrNotFound on absent rows.
type fakeStore struct {
	mu sync.RWMutex

	nextEntryID    int64
	nextSubtaskID  int64
	nextTemplateID int64
	nextTplSubID   int64
	nextFilterID   int64
	nextTaskID     int64

	entries     map[int64]TimeEntry
	subtasks    map[int64]Subtask
	templates   map[int64]Template
	tplSubtasks map[int64]TemplateSubtask
	filters     map[int64]SavedFilter
	tasks       map[TaskRef]TaskFields

	failInsertTimeEntry error
	failInsertSubtask   error

	lastQuery     *CompiledQuery
	searchResults []TaskSummary
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextEntryID:    1,
		nextSubtaskID:  1,
		nextTemplateID: 1,
		nextTplSubID:   1,
		nextFilterID:   1,
		nextTaskID:     1,
		entries:        make(map[int64]TimeEntry),
		subtasks:       make(map[int64]Subtask),
		templates:      make(map[int64]Template),
		tplSubtasks:    make(map[int64]TemplateSubtask),
		filters:        make(map[int64]SavedFilter),
		tasks:          make(map[TaskRef]TaskFields),
	}
}

func (s *fakeStore) Ping(context.Context) error { return nil }

// time entries

func (s *fakeStore) InsertTimeEntry(_ context.Context, e TimeEntry) (TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsertTimeEntry != nil {
		return TimeEntry{}, s.failInsertTimeEntry
	}

	e.ID = s.nextEntryID
	s.nextEntryID++
	e.CreatedAt = time.Now()
	s.entries[e.ID] = cloneEntry(e)
	return cloneEntry(e), nil
}

func (s *fakeStore) GetTimeEntry(_ context.Context, id int64) (TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return TimeEntry{}, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *fakeStore) UpdateTimeEntry(_ context.Context, e TimeEntry) (TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.ID]; !ok {
		return TimeEntry{}, ErrNotFound
	}
	s.entries[e.ID] = cloneEntry(e)
	return cloneEntry(e), nil
}

func (s *fakeStore) DeleteTimeEntry(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *fakeStore) ListTimeEntries(_ context.Context, task TaskRef) ([]TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TimeEntry
	for _, e := range s.entries {
		if e.TaskID == task {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (s *fakeStore) TotalLoggedMinutes(_ context.Context, task TaskRef) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, e := range s.entries {
		if e.TaskID == task && e.DurationMinutes != nil {
			total += *e.DurationMinutes
		}
	}
	return total, nil
}

func (s *fakeStore) TimeSummaries(_ context.Context, limit int) ([]TimeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTask := map[TaskRef]*TimeSummary{}
	for _, e := range s.entries {
		if e.DurationMinutes == nil {
			continue
		}
		sum, ok := byTask[e.TaskID]
		if !ok {
			sum = &TimeSummary{TaskID: e.TaskID}
			byTask[e.TaskID] = sum
		}
		sum.EntryCount++
		sum.TotalMinutes += *e.DurationMinutes
	}

	var out []TimeSummary
	for _, sum := range byTask {
		if sum.TotalMinutes > 0 {
			out = append(out, *sum)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalMinutes != out[j].TotalMinutes {
			return out[i].TotalMinutes > out[j].TotalMinutes
		}
		return out[i].TaskID < out[j].TaskID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// subtasks

func (s *fakeStore) InsertSubtask(_ context.Context, st Subtask) (Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsertSubtask != nil {
		return Subtask{}, s.failInsertSubtask
	}

	maxOrder := -1
	for _, other := range s.subtasks {
		if other.TaskID == st.TaskID && other.SortOrder > maxOrder {
			maxOrder = other.SortOrder
		}
	}

	st.ID = s.nextSubtaskID
	s.nextSubtaskID++
	st.Completed = false
	st.SortOrder = maxOrder + 1
	st.CreatedAt = time.Now()
	s.subtasks[st.ID] = cloneSubtask(st)
	return cloneSubtask(st), nil
}

func (s *fakeStore) GetSubtask(_ context.Context, id int64) (Subtask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.subtasks[id]
	if !ok {
		return Subtask{}, ErrNotFound
	}
	return cloneSubtask(st), nil
}

func (s *fakeStore) UpdateSubtask(_ context.Context, st Subtask) (Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.subtasks[st.ID]
	if !ok {
		return Subtask{}, ErrNotFound
	}
	st.SortOrder = cur.SortOrder
	st.CreatedAt = cur.CreatedAt
	s.subtasks[st.ID] = cloneSubtask(st)
	return cloneSubtask(st), nil
}

func (s *fakeStore) DeleteSubtask(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subtasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.subtasks, id)
	return nil
}

func (s *fakeStore) DeleteSubtasksForTask(_ context.Context, task TaskRef) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, st := range s.subtasks {
		if st.TaskID == task {
			delete(s.subtasks, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListSubtasks(_ context.Context, task TaskRef) ([]Subtask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subtask
	for _, st := range s.subtasks {
		if st.TaskID == task {
			out = append(out, cloneSubtask(st))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) SetSubtaskOrder(_ context.Context, task TaskRef, orderedIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pos, id := range orderedIDs {
		st, ok := s.subtasks[id]
		if !ok || st.TaskID != task {
			return ErrNotFound
		}
		st.SortOrder = pos
		s.subtasks[id] = st
	}
	return nil
}

func (s *fakeStore) SubtaskCounts(_ context.Context, task TaskRef) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, completed := 0, 0
	for _, st := range s.subtasks {
		if st.TaskID != task {
			continue
		}
		total++
		if st.Completed {
			completed++
		}
	}
	return total, completed, nil
}

func (s *fakeStore) ChecklistCounts(context.Context) ([]ChecklistProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTask := map[TaskRef]*ChecklistProgress{}
	for _, st := range s.subtasks {
		row, ok := byTask[st.TaskID]
		if !ok {
			row = &ChecklistProgress{TaskID: st.TaskID}
			byTask[st.TaskID] = row
		}
		row.Total++
		if st.Completed {
			row.Completed++
		}
	}

	var out []ChecklistProgress
	for _, row := range byTask {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

// templates

func (s *fakeStore) InsertTemplate(_ context.Context, t Template) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.templates {
		if other.Owner == t.Owner && other.Name == t.Name {
			return Template{}, ErrValidation
		}
	}

	t.ID = s.nextTemplateID
	s.nextTemplateID++
	t.UsageCount = 0
	t.CreatedAt = time.Now()
	s.templates[t.ID] = cloneTemplate(t)
	return cloneTemplate(t), nil
}

func (s *fakeStore) GetTemplate(_ context.Context, id int64) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return Template{}, ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (s *fakeStore) ListTemplates(_ context.Context, user string) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Template
	for _, t := range s.templates {
		if t.IsPublic || t.Owner == user {
			out = append(out, cloneTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *fakeStore) InsertTemplateSubtask(_ context.Context, ts TemplateSubtask) (TemplateSubtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[ts.TemplateID]; !ok {
		return TemplateSubtask{}, ErrNotFound
	}

	maxOrder := -1
	for _, other := range s.tplSubtasks {
		if other.TemplateID == ts.TemplateID && other.SortOrder > maxOrder {
			maxOrder = other.SortOrder
		}
	}

	ts.ID = s.nextTplSubID
	s.nextTplSubID++
	ts.SortOrder = maxOrder + 1
	s.tplSubtasks[ts.ID] = ts
	return ts, nil
}

func (s *fakeStore) ListTemplateSubtasks(_ context.Context, templateID int64) ([]TemplateSubtask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TemplateSubtask
	for _, ts := range s.tplSubtasks {
		if ts.TemplateID == templateID {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) IncrementTemplateUsage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return ErrNotFound
	}
	t.UsageCount++
	s.templates[id] = t
	return nil
}

// saved filters

func (s *fakeStore) InsertSavedFilter(_ context.Context, f SavedFilter) (SavedFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.filters {
		if other.Owner == f.Owner && other.Name == f.Name {
			return SavedFilter{}, ErrValidation
		}
	}

	f.ID = s.nextFilterID
	s.nextFilterID++
	f.CreatedAt = time.Now()
	s.filters[f.ID] = f
	return f, nil
}

func (s *fakeStore) GetSavedFilter(_ context.Context, id int64) (SavedFilter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.filters[id]
	if !ok {
		return SavedFilter{}, ErrNotFound
	}
	return f, nil
}

func (s *fakeStore) ListSavedFilters(_ context.Context, owner string) ([]SavedFilter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SavedFilter
	for _, f := range s.filters {
		if f.Owner == owner {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) DeleteSavedFilter(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.filters[id]; !ok {
		return ErrNotFound
	}
	delete(s.filters, id)
	return nil
}

// primary task table

func (s *fakeStore) CreateTask(_ context.Context, fields TaskFields) (TaskRef, error) {
	if fields["title"] == "" {
		return 0, ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref := TaskRef(s.nextTaskID)
	s.nextTaskID++
	s.tasks[ref] = fields.Clone()
	return ref, nil
}

func (s *fakeStore) SearchTasks(_ context.Context, q CompiledQuery) ([]TaskSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	captured := q
	s.lastQuery = &captured
	return s.searchResults, nil
}

// clone helpers keep map rows isolated from caller mutation

func cloneEntry(e TimeEntry) TimeEntry {
	out := e
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	if e.DurationMinutes != nil {
		m := *e.DurationMinutes
		out.DurationMinutes = &m
	}
	return out
}

func cloneSubtask(st Subtask) Subtask {
	out := st
	if st.AssignedTo != nil {
		v := *st.AssignedTo
		out.AssignedTo = &v
	}
	if st.CompletedAt != nil {
		t := *st.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func cloneTemplate(t Template) Template {
	out := t
	out.Defaults = t.Defaults.Clone()
	return out
}
