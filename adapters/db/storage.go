package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"

	"github.com/dominus1122/TaskManager2026/core"
)

// Storage implements core.Store on top of PostgreSQL (pgx) or SQLite
// (modernc). Queries are written with `?` bindvars and rebound per driver so
// both dialects share one code path.
type Storage struct {
	log    *slog.Logger
	driver string
	conn   *sqlx.DB
}

func New(log *slog.Logger, driver, address string) (*Storage, error) {
	switch driver {
	case "pgx", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	conn, err := sqlx.Connect(driver, address)
	if err != nil {
		log.Error("connection problem", "driver", driver, "address", address, "error", err)
		return nil, fmt.Errorf("connect %s: %w", driver, errors.Join(core.ErrStoreUnavailable, err))
	}
	if driver == "sqlite" {
		// single writer; also keeps :memory: databases on one connection
		conn.SetMaxOpenConns(1)
	}
	return &Storage{log: log, driver: driver, conn: conn}, nil
}

func (s *Storage) Close() error {
	return s.conn.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return errors.Join(core.ErrStoreUnavailable, err)
	}
	return nil
}

// Time entries

const timeEntryColumns = `id, task_id, user_name, start_time, end_time, duration_minutes, entry_type, note, created_at`

func (s *Storage) InsertTimeEntry(ctx context.Context, e core.TimeEntry) (core.TimeEntry, error) {
	const q = `
		INSERT INTO time_entries(task_id, user_name, start_time, end_time, duration_minutes, entry_type, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id;
	`
	e.CreatedAt = time.Now().UTC()
	err := s.conn.QueryRowxContext(ctx, s.conn.Rebind(q),
		e.TaskID, e.UserName, e.StartTime, e.EndTime, e.DurationMinutes, e.EntryType, e.Note, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return core.TimeEntry{}, storeFailure("insert time entry", err)
	}
	return e, nil
}

func (s *Storage) GetTimeEntry(ctx context.Context, id int64) (core.TimeEntry, error) {
	q := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE id = ?`

	var e core.TimeEntry
	if err := s.conn.GetContext(ctx, &e, s.conn.Rebind(q), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.TimeEntry{}, core.ErrNotFound
		}
		return core.TimeEntry{}, storeFailure("get time entry", err)
	}
	return e, nil
}

func (s *Storage) UpdateTimeEntry(ctx context.Context, e core.TimeEntry) (core.TimeEntry, error) {
	const q = `
		UPDATE time_entries
		SET start_time = ?, end_time = ?, duration_minutes = ?, note = ?
		WHERE id = ?;
	`
	res, err := s.conn.ExecContext(ctx, s.conn.Rebind(q),
		e.StartTime, e.EndTime, e.DurationMinutes, e.Note, e.ID)
	if err != nil {
		return core.TimeEntry{}, storeFailure("update time entry", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return core.TimeEntry{}, core.ErrNotFound
	}
	return s.GetTimeEntry(ctx, e.ID)
}

func (s *Storage) DeleteTimeEntry(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, s.conn.Rebind(`DELETE FROM time_entries WHERE id = ?`), id)
	if err != nil {
		return storeFailure("delete time entry", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Storage) ListTimeEntries(ctx context.Context, task core.TaskRef) ([]core.TimeEntry, error) {
	q := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE task_id = ? ORDER BY start_time DESC, id DESC`

	var out []core.TimeEntry
	if err := s.conn.SelectContext(ctx, &out, s.conn.Rebind(q), task); err != nil {
		return nil, storeFailure("list time entries", err)
	}
	return out, nil
}

func (s *Storage) TotalLoggedMinutes(ctx context.Context, task core.TaskRef) (int, error) {
	const q = `
		SELECT COALESCE(SUM(duration_minutes), 0)
		FROM time_entries
		WHERE task_id = ? AND duration_minutes IS NOT NULL;
	`
	var total int
	if err := s.conn.GetContext(ctx, &total, s.conn.Rebind(q), task); err != nil {
		return 0, storeFailure("total logged minutes", err)
	}
	return total, nil
}

func (s *Storage) TimeSummaries(ctx context.Context, limit int) ([]core.TimeSummary, error) {
	const q = `
		SELECT task_id, COUNT(*) AS entry_count, COALESCE(SUM(duration_minutes), 0) AS total_minutes
		FROM time_entries
		WHERE duration_minutes IS NOT NULL
		GROUP BY task_id
		HAVING SUM(duration_minutes) > 0
		ORDER BY total_minutes DESC, task_id ASC
		LIMIT ?;
	`
	var out []core.TimeSummary
	if err := s.conn.SelectContext(ctx, &out, s.conn.Rebind(q), limit); err != nil {
		return nil, storeFailure("time summaries", err)
	}
	return out, nil
}

// Subtasks

const subtaskColumns = `id, task_id, title, description, completed, sort_order, assigned_to, completed_at, created_at`

func (s *Storage) InsertSubtask(ctx context.Context, st core.Subtask) (core.Subtask, error) {
	// next sort_order for the task; the first item gets 0
	const q = `
		INSERT INTO subtasks(task_id, title, description, completed, sort_order, assigned_to, created_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM subtasks WHERE task_id = ?), ?, ?)
		RETURNING id, sort_order;
	`
	st.Completed = false
	st.CreatedAt = time.Now().UTC()
	err := s.conn.QueryRowxContext(ctx, s.conn.Rebind(q),
		st.TaskID, st.Title, st.Description, st.Completed, st.TaskID, st.AssignedTo, st.CreatedAt,
	).Scan(&st.ID, &st.SortOrder)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.Subtask{}, core.ErrNotFound
		}
		return core.Subtask{}, storeFailure("insert subtask", err)
	}
	return st, nil
}

func (s *Storage) GetSubtask(ctx context.Context, id int64) (core.Subtask, error) {
	q := `SELECT ` + subtaskColumns + ` FROM subtasks WHERE id = ?`

	var st core.Subtask
	if err := s.conn.GetContext(ctx, &st, s.conn.Rebind(q), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Subtask{}, core.ErrNotFound
		}
		return core.Subtask{}, storeFailure("get subtask", err)
	}
	return st, nil
}

func (s *Storage) UpdateSubtask(ctx context.Context, st core.Subtask) (core.Subtask, error) {
	const q = `
		UPDATE subtasks
		SET title = ?, description = ?, completed = ?, assigned_to = ?, completed_at = ?
		WHERE id = ?;
	`
	res, err := s.conn.ExecContext(ctx, s.conn.Rebind(q),
		st.Title, st.Description, st.Completed, st.AssignedTo, st.CompletedAt, st.ID)
	if err != nil {
		return core.Subtask{}, storeFailure("update subtask", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return core.Subtask{}, core.ErrNotFound
	}
	return s.GetSubtask(ctx, st.ID)
}

func (s *Storage) DeleteSubtask(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, s.conn.Rebind(`DELETE FROM subtasks WHERE id = ?`), id)
	if err != nil {
		return storeFailure("delete subtask", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteSubtasksForTask(ctx context.Context, task core.TaskRef) (int, error) {
	res, err := s.conn.ExecContext(ctx, s.conn.Rebind(`DELETE FROM subtasks WHERE task_id = ?`), task)
	if err != nil {
		return 0, storeFailure("delete subtasks for task", err)
	}
	aff, _ := res.RowsAffected()
	return int(aff), nil
}

func (s *Storage) ListSubtasks(ctx context.Context, task core.TaskRef) ([]core.Subtask, error) {
	q := `SELECT ` + subtaskColumns + ` FROM subtasks WHERE task_id = ? ORDER BY sort_order ASC, id ASC`

	var out []core.Subtask
	if err := s.conn.SelectContext(ctx, &out, s.conn.Rebind(q), task); err != nil {
		return nil, storeFailure("list subtasks", err)
	}
	return out, nil
}

func (s *Storage) SetSubtaskOrder(ctx context.Context, task core.TaskRef, orderedIDs []int64) error {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return storeFailure("reorder subtasks", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := tx.Rebind(`UPDATE subtasks SET sort_order = ? WHERE id = ? AND task_id = ?`)
	for pos, id := range orderedIDs {
		res, err := tx.ExecContext(ctx, q, pos, id, task)
		if err != nil {
			return storeFailure("reorder subtasks", err)
		}
		if aff, _ := res.RowsAffected(); aff == 0 {
			return core.ErrNotFound
		}
	}
	if err := tx.Commit(); err != nil {
		return storeFailure("reorder subtasks", err)
	}
	return nil
}

func (s *Storage) SubtaskCounts(ctx context.Context, task core.TaskRef) (int, int, error) {
	const q = `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0)
		FROM subtasks
		WHERE task_id = ?;
	`
	var total, completed int
	if err := s.conn.QueryRowxContext(ctx, s.conn.Rebind(q), task).Scan(&total, &completed); err != nil {
		return 0, 0, storeFailure("subtask counts", err)
	}
	return total, completed, nil
}

func (s *Storage) ChecklistCounts(ctx context.Context) ([]core.ChecklistProgress, error) {
	const q = `
		SELECT task_id, COUNT(*) AS total, COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0) AS completed
		FROM subtasks
		GROUP BY task_id
		ORDER BY task_id ASC;
	`
	var out []core.ChecklistProgress
	if err := s.conn.SelectContext(ctx, &out, q); err != nil {
		return nil, storeFailure("checklist counts", err)
	}
	return out, nil
}

// Templates

const templateColumns = `id, template_name, owner, is_public, default_field_values, usage_count, created_at`

func (s *Storage) InsertTemplate(ctx context.Context, t core.Template) (core.Template, error) {
	const q = `
		INSERT INTO task_templates(template_name, owner, is_public, default_field_values, usage_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		RETURNING id;
	`
	t.UsageCount = 0
	t.CreatedAt = time.Now().UTC()
	err := s.conn.QueryRowxContext(ctx, s.conn.Rebind(q),
		t.Name, t.Owner, t.IsPublic, t.Defaults, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			// template_name is a logical key per owner
			return core.Template{}, fmt.Errorf("duplicate template name %q: %w", t.Name, core.ErrValidation)
		}
		return core.Template{}, storeFailure("insert template", err)
	}
	return t, nil
}

func (s *Storage) GetTemplate(ctx context.Context, id int64) (core.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM task_templates WHERE id = ?`

	var t core.Template
	if err := s.conn.GetContext(ctx, &t, s.conn.Rebind(q), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Template{}, core.ErrNotFound
		}
		return core.Template{}, storeFailure("get template", err)
	}
	return t, nil
}

func (s *Storage) ListTemplates(ctx context.Context, user string) ([]core.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM task_templates WHERE owner = ? OR is_public = ? ORDER BY usage_count DESC, template_name ASC`

	var out []core.Template
	if err := s.conn.SelectContext(ctx, &out, s.conn.Rebind(q), user, true); err != nil {
		return nil, storeFailure("list templates", err)
	}
	return out, nil
}

func (s *Storage) InsertTemplateSubtask(ctx context.Context, ts core.TemplateSubtask) (core.TemplateSubtask, error) {
	const q = `
		INSERT INTO template_subtasks(template_id, title, description, sort_order)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM template_subtasks WHERE template_id = ?))
		RETURNING id, sort_order;
	`
	err := s.conn.QueryRowxContext(ctx, s.conn.Rebind(q),
		ts.TemplateID, ts.Title, ts.Description, ts.TemplateID,
	).Scan(&ts.ID, &ts.SortOrder)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.TemplateSubtask{}, core.ErrNotFound
		}
		return core.TemplateSubtask{}, storeFailure("insert template subtask", err)
	}
	return ts, nil
}

func (s *Storage) ListTemplateSubtasks(ctx context.Context, templateID int64) ([]core.TemplateSubtask, error) {
	const q = `
		SELECT id, template_id, title, description, sort_order
		FROM template_subtasks
		WHERE template_id = ?
		ORDER BY sort_order ASC, id ASC;
	`
	var out []core.TemplateSubtask
	if err := s.conn.SelectContext(ctx, &out, s.conn.Rebind(q), templateID); err != nil {
		return nil, storeFailure("list template subtasks", err)
	}
	return out, nil
}

func (s *Storage) IncrementTemplateUsage(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx,
		s.conn.Rebind(`UPDATE task_templates SET usage_count = usage_count + 1 WHERE id = ?`), id)
	if err != nil {
		return storeFailure("increment template usage", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Saved filters

const savedFilterColumns = `id, owner, filter_name, predicate_body, created_at`

func (s *Storage) InsertSavedFilter(ctx context.Context, f core.SavedFilter) (core.SavedFilter, error) {
	const q = `
		INSERT INTO saved_filters(owner, filter_name, predicate_body, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id;
	`
	f.CreatedAt = time.Now().UTC()
	err := s.conn.QueryRowxContext(ctx, s.conn.Rebind(q),
		f.Owner, f.Name, f.PredicateBody, f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.SavedFilter{}, fmt.Errorf("duplicate filter name %q: %w", f.Name, core.ErrValidation)
		}
		return core.SavedFilter{}, storeFailure("insert saved filter", err)
	}
	return f, nil
}

func (s *Storage) GetSavedFilter(ctx context.Context, id int64) (core.SavedFilter, error) {
	q := `SELECT ` + savedFilterColumns + ` FROM saved_filters WHERE id = ?`

	var f core.SavedFilter
	if err := s.conn.GetContext(ctx, &f, s.conn.Rebind(q), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.SavedFilter{}, core.ErrNotFound
		}
		return core.SavedFilter{}, storeFailure("get saved filter", err)
	}
	return f, nil
}

func (s *Storage) ListSavedFilters(ctx context.Context, owner string) ([]core.SavedFilter, error) {
	q := `SELECT ` + savedFilterColumns + ` FROM saved_filters WHERE owner = ? ORDER BY filter_name ASC`

	var out []core.SavedFilter
	if err := s.conn.SelectContext(ctx, &out, s.conn.Rebind(q), owner); err != nil {
		return nil, storeFailure("list saved filters", err)
	}
	return out, nil
}

func (s *Storage) DeleteSavedFilter(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, s.conn.Rebind(`DELETE FROM saved_filters WHERE id = ?`), id)
	if err != nil {
		return storeFailure("delete saved filter", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Primary task table

// CreateTask implements the task-creation contract against the shared tasks
// table. It maps the well-known template field keys onto columns; a missing
// title is a validation failure.
func (s *Storage) CreateTask(ctx context.Context, fields core.TaskFields) (core.TaskRef, error) {
	title := strings.TrimSpace(fields["title"])
	if title == "" {
		return 0, fmt.Errorf("create task: missing title: %w", core.ErrValidation)
	}

	priority := fields["priority"]
	if priority == "" {
		priority = "medium"
	}

	var dueDate *time.Time
	if v := strings.TrimSpace(fields["due_date"]); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return 0, fmt.Errorf("create task: bad due_date %q: %w", v, core.ErrValidation)
		}
		dueDate = &t
	}

	const q = `
		INSERT INTO tasks(title, description, category, priority, assigned_to, completed, deleted, due_date, created_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id;
	`
	var id int64
	err := s.conn.QueryRowxContext(ctx, s.conn.Rebind(q),
		title, fields["description"], fields["category"], priority, fields["assigned_to"],
		false, false, dueDate, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, storeFailure("create task", err)
	}
	return core.TaskRef(id), nil
}

// SearchTasks runs a compiled query. The SQL arrives with `?` placeholders
// and a separate argument list; nothing user-supplied is in the text.
func (s *Storage) SearchTasks(ctx context.Context, q core.CompiledQuery) ([]core.TaskSummary, error) {
	var out []core.TaskSummary
	if err := s.conn.SelectContext(ctx, &out, s.conn.Rebind(q.SQL), q.Args...); err != nil {
		return nil, storeFailure("search tasks", err)
	}
	return out, nil
}

// driver error helpers

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		code := sqErr.Code()
		// SQLITE_CONSTRAINT_PRIMARYKEY, SQLITE_CONSTRAINT_UNIQUE
		return code == 1555 || code == 2067
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code() == 787 // SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

// storeFailure wraps unexpected driver errors so callers can match
// core.ErrStoreUnavailable and retry with backoff.
func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(core.ErrStoreUnavailable, err))
}
