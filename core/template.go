package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// TemplateEngine owns template definitions and materializes them into new
// task + checklist records through the primary store's task-creation
// contract.
type TemplateEngine struct {
	log      *slog.Logger
	store    TemplateStore
	subtasks *SubtaskLedger
	tasks    TaskCreator
	features Features
}

func NewTemplateEngine(log *slog.Logger, store TemplateStore, subtasks *SubtaskLedger, tasks TaskCreator, features Features) *TemplateEngine {
	return &TemplateEngine{
		log:      log,
		store:    store,
		subtasks: subtasks,
		tasks:    tasks,
		features: features,
	}
}

// Create registers a new template. The name is a logical key per owner;
// duplicates fail with ErrValidation.
func (e *TemplateEngine) Create(ctx context.Context, name, owner string, defaults TaskFields, isPublic bool) (Template, error) {
	if !e.features.Templates {
		return Template{}, fmt.Errorf("create template: %w", ErrFeatureDisabled)
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(owner) == "" {
		return Template{}, fmt.Errorf("create template: %w", ErrValidation)
	}
	if defaults == nil {
		defaults = TaskFields{}
	}

	created, err := e.store.InsertTemplate(ctx, Template{
		Name:     name,
		Owner:    owner,
		IsPublic: isPublic,
		Defaults: defaults,
	})
	if err != nil {
		return Template{}, fmt.Errorf("create template: %w", err)
	}
	e.log.Info("template created", "template_id", created.ID, "name", created.Name, "owner", owner)
	return created, nil
}

// AddSubtask appends a checklist item at the end of the template's ordered
// list.
func (e *TemplateEngine) AddSubtask(ctx context.Context, templateID int64, title, description string) (TemplateSubtask, error) {
	if !e.features.Templates {
		return TemplateSubtask{}, fmt.Errorf("add template subtask: %w", ErrFeatureDisabled)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return TemplateSubtask{}, fmt.Errorf("add template subtask: %w", ErrValidation)
	}
	if _, err := e.store.GetTemplate(ctx, templateID); err != nil {
		return TemplateSubtask{}, fmt.Errorf("add template subtask: %w", err)
	}

	created, err := e.store.InsertTemplateSubtask(ctx, TemplateSubtask{
		TemplateID:  templateID,
		Title:       title,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return TemplateSubtask{}, fmt.Errorf("add template subtask: %w", err)
	}
	return created, nil
}

// List returns the templates visible to user: their own plus public ones.
func (e *TemplateEngine) List(ctx context.Context, user string) ([]Template, error) {
	if !e.features.Templates {
		return nil, fmt.Errorf("list templates: %w", ErrFeatureDisabled)
	}
	return e.store.ListTemplates(ctx, user)
}

// Get returns a template together with its ordered checklist items.
func (e *TemplateEngine) Get(ctx context.Context, id int64) (Template, []TemplateSubtask, error) {
	if !e.features.Templates {
		return Template{}, nil, fmt.Errorf("get template: %w", ErrFeatureDisabled)
	}
	tpl, err := e.store.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, nil, fmt.Errorf("get template: %w", err)
	}
	items, err := e.store.ListTemplateSubtasks(ctx, id)
	if err != nil {
		return Template{}, nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, items, nil
}

// Materialize creates a task from the template: defaults merged with the
// caller's overrides (override wins), then one Subtask per TemplateSubtask
// in stored order, then a single usage_count increment.
//
// The template definition is read once at the start, so edits racing with
// materialization do not change this run's output. The copy is not atomic:
// when a step fails partway, the already-created task and subtasks remain
// and the returned TaskRef lets the caller decide to delete them. Callers
// needing atomicity must wrap the operation in a store-level transaction.
func (e *TemplateEngine) Materialize(ctx context.Context, templateID int64, user string, overrides TaskFields) (TaskRef, []Subtask, error) {
	if !e.features.Templates {
		return 0, nil, fmt.Errorf("materialize template: %w", ErrFeatureDisabled)
	}

	tpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return 0, nil, fmt.Errorf("materialize template: %w", err)
	}
	if !tpl.IsPublic && tpl.Owner != user {
		return 0, nil, fmt.Errorf("materialize template: private template owned by %s: %w", tpl.Owner, ErrPermissionDenied)
	}
	items, err := e.store.ListTemplateSubtasks(ctx, templateID)
	if err != nil {
		return 0, nil, fmt.Errorf("materialize template: %w", err)
	}

	fields := tpl.Defaults.Clone()
	for k, v := range overrides {
		fields[k] = v
	}
	if strings.TrimSpace(fields["title"]) == "" {
		fields["title"] = tpl.Name
	}

	ref, err := e.tasks.CreateTask(ctx, fields)
	if err != nil {
		return 0, nil, fmt.Errorf("materialize template: create task: %w", err)
	}

	created := make([]Subtask, 0, len(items))
	for _, item := range items {
		st, err := e.subtasks.addItem(ctx, ref, item.Title, item.Description, nil)
		if err != nil {
			return ref, created, fmt.Errorf("materialize template: copy checklist onto task %d: %w", ref, err)
		}
		created = append(created, st)
	}

	if err := e.store.IncrementTemplateUsage(ctx, tpl.ID); err != nil {
		return ref, created, fmt.Errorf("materialize template: usage count: %w", err)
	}

	e.log.Info("template materialized",
		"template_id", tpl.ID, "task_id", ref, "subtasks", len(created), "user", user)
	return ref, created, nil
}
