package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type fieldKind int

const (
	fieldText fieldKind = iota
	fieldEnum
	fieldDate
	fieldBool
)

type fieldSpec struct {
	column   string
	kind     fieldKind
	freeText bool
}

func (s fieldSpec) supports(op Operator) bool {
	switch s.kind {
	case fieldText, fieldEnum:
		return op == OpEq || op == OpContains || op == OpIn
	case fieldDate:
		return op == OpEq || op == OpGte || op == OpLte || op == OpBetween
	case fieldBool:
		return op == OpEq
	}
	return false
}

// searchableFields maps public filter field names onto task columns. Only
// names in this table may appear in a predicate; column names never come
// from user input.
var searchableFields = map[string]fieldSpec{
	"title":        {column: "title", kind: fieldText, freeText: true},
	"description":  {column: "description", kind: fieldText, freeText: true},
	"category":     {column: "category", kind: fieldEnum, freeText: true},
	"priority":     {column: "priority", kind: fieldEnum},
	"assigned_to":  {column: "assigned_to", kind: fieldEnum},
	"completed":    {column: "completed", kind: fieldBool},
	"due_date":     {column: "due_date", kind: fieldDate},
	"created_date": {column: "created_date", kind: fieldDate},
}

// freeTextColumns is the fixed column list an implicit free-text leaf fans
// out across, in a stable order.
var freeTextColumns = []string{"title", "description", "category"}

var sortColumns = map[string]string{
	"":             "created_date",
	"created_date": "created_date",
	"due_date":     "due_date",
	"priority":     "priority",
	"title":        "title",
	"id":           "id",
}

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

type SearchRequest struct {
	// Text, when non-empty, becomes a case-insensitive OR-of-substring
	// match across the free-text columns, AND-combined with Predicate.
	Text      string
	Predicate *Predicate

	// OrderBy must name a whitelisted sort column; empty means
	// created_date. The id column is always appended as tie-break so
	// pagination stays deterministic.
	OrderBy    string
	Descending bool
	Limit      int
	Offset     int
}

// CompiledQuery carries query text with `?` placeholders and the ordered
// argument list. The adapter rebinds placeholders for the actual driver.
// User-supplied values only ever travel in Args.
type CompiledQuery struct {
	SQL  string
	Args []any
}

// QueryComposer compiles search criteria into parameterized queries over the
// primary task table and runs them through the TaskSearcher port.
type QueryComposer struct {
	log      *slog.Logger
	searcher TaskSearcher
	features Features
}

func NewQueryComposer(log *slog.Logger, searcher TaskSearcher, features Features) *QueryComposer {
	return &QueryComposer{log: log, searcher: searcher, features: features}
}

func (c *QueryComposer) Search(ctx context.Context, req SearchRequest) ([]TaskSummary, error) {
	if !c.features.AdvancedSearch {
		return nil, fmt.Errorf("search: %w", ErrFeatureDisabled)
	}
	q, err := c.Compile(req)
	if err != nil {
		return nil, err
	}
	out, err := c.searcher.SearchTasks(ctx, q)
	if err != nil {
		return nil, err
	}
	c.log.Debug("search executed", "args", len(q.Args), "rows", len(out))
	return out, nil
}

// Compile turns the request into a single SELECT. Empty input (no text, no
// tree) matches all live rows.
func (c *QueryComposer) Compile(req SearchRequest) (CompiledQuery, error) {
	if req.Predicate != nil {
		if err := ValidatePredicate(req.Predicate); err != nil {
			return CompiledQuery{}, err
		}
	}
	orderCol, ok := sortColumns[req.OrderBy]
	if !ok {
		return CompiledQuery{}, fmt.Errorf("search: unknown sort column %q: %w", req.OrderBy, ErrValidation)
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, title, description, category, priority, assigned_to, completed, due_date, created_date FROM tasks WHERE deleted = ?`)
	args = append(args, false)

	if text := strings.TrimSpace(req.Text); text != "" {
		pattern := "%" + strings.ToLower(text) + "%"
		parts := make([]string, 0, len(freeTextColumns))
		for _, col := range freeTextColumns {
			parts = append(parts, "lower("+col+") LIKE ?")
			args = append(args, pattern)
		}
		sb.WriteString(" AND (" + strings.Join(parts, " OR ") + ")")
	}

	if req.Predicate != nil {
		frag, fragArgs, err := compileNode(*req.Predicate)
		if err != nil {
			return CompiledQuery{}, err
		}
		sb.WriteString(" AND " + frag)
		args = append(args, fragArgs...)
	}

	dir := "ASC"
	if req.Descending {
		dir = "DESC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", orderCol, dir))
	if orderCol != "id" {
		sb.WriteString(", id ASC")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	return CompiledQuery{SQL: sb.String(), Args: args}, nil
}

func compileNode(p Predicate) (string, []any, error) {
	if p.IsLeaf() {
		return compileLeaf(p)
	}

	joiner := " AND "
	if p.Op == BoolOr {
		joiner = " OR "
	}
	parts := make([]string, 0, len(p.Children))
	var args []any
	for _, child := range p.Children {
		frag, fragArgs, err := compileNode(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		args = append(args, fragArgs...)
	}
	return "(" + strings.Join(parts, joiner) + ")", args, nil
}

func compileLeaf(p Predicate) (string, []any, error) {
	spec := searchableFields[p.Field]
	col := spec.column

	switch p.Cmp {
	case OpEq:
		arg, err := leafArg(spec, p.Values[0])
		if err != nil {
			return "", nil, err
		}
		return col + " = ?", []any{arg}, nil
	case OpContains:
		return "lower(" + col + ") LIKE ?", []any{"%" + strings.ToLower(p.Values[0]) + "%"}, nil
	case OpIn:
		// Multi-valued leaves compile to an OR group of equality
		// parameters, one placeholder per value.
		parts := make([]string, 0, len(p.Values))
		args := make([]any, 0, len(p.Values))
		for _, v := range p.Values {
			arg, err := leafArg(spec, v)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, col+" = ?")
			args = append(args, arg)
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	case OpGte:
		arg, err := leafArg(spec, p.Values[0])
		if err != nil {
			return "", nil, err
		}
		return col + " >= ?", []any{arg}, nil
	case OpLte:
		arg, err := leafArg(spec, p.Values[0])
		if err != nil {
			return "", nil, err
		}
		return col + " <= ?", []any{arg}, nil
	case OpBetween:
		lo, err := leafArg(spec, p.Values[0])
		if err != nil {
			return "", nil, err
		}
		hi, err := leafArg(spec, p.Values[1])
		if err != nil {
			return "", nil, err
		}
		return "(" + col + " >= ? AND " + col + " <= ?)", []any{lo, hi}, nil
	}
	return "", nil, fmt.Errorf("search: unknown operator %q: %w", p.Cmp, ErrValidation)
}

// leafArg converts the string value into the driver-level argument for the
// field kind. Values bind as parameters, never as query text.
func leafArg(spec fieldSpec, v string) (any, error) {
	switch spec.kind {
	case fieldDate:
		t, err := parseDateValue(v)
		if err != nil {
			return nil, err
		}
		return t, nil
	case fieldBool:
		return v == "true", nil
	default:
		return v, nil
	}
}
