package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FilterStore persists named PredicateTree presets per owner. Load returns
// the exact structural form that was saved; the round-trip is a contract,
// not an accident of serialization.
type FilterStore struct {
	log      *slog.Logger
	store    SavedFilterStore
	features Features
}

func NewFilterStore(log *slog.Logger, store SavedFilterStore, features Features) *FilterStore {
	return &FilterStore{log: log, store: store, features: features}
}

// Save validates and serializes the predicate under a per-owner unique name.
// A duplicate name fails with ErrValidation.
func (f *FilterStore) Save(ctx context.Context, owner, name string, p *Predicate) (SavedFilter, error) {
	if !f.features.AdvancedSearch {
		return SavedFilter{}, fmt.Errorf("save filter: %w", ErrFeatureDisabled)
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(owner) == "" {
		return SavedFilter{}, fmt.Errorf("save filter: %w", ErrValidation)
	}
	if err := ValidatePredicate(p); err != nil {
		return SavedFilter{}, fmt.Errorf("save filter: %w", err)
	}

	body, err := EncodePredicate(p)
	if err != nil {
		return SavedFilter{}, fmt.Errorf("save filter: %w", err)
	}
	saved, err := f.store.InsertSavedFilter(ctx, SavedFilter{
		Owner:         owner,
		Name:          name,
		PredicateBody: body,
	})
	if err != nil {
		return SavedFilter{}, fmt.Errorf("save filter: %w", err)
	}
	f.log.Info("filter saved", "filter_id", saved.ID, "owner", owner, "name", name)
	return saved, nil
}

func (f *FilterStore) List(ctx context.Context, owner string) ([]SavedFilter, error) {
	if !f.features.AdvancedSearch {
		return nil, fmt.Errorf("list filters: %w", ErrFeatureDisabled)
	}
	return f.store.ListSavedFilters(ctx, owner)
}

// Delete removes a filter; only its owner may do so.
func (f *FilterStore) Delete(ctx context.Context, id int64, owner string) error {
	if !f.features.AdvancedSearch {
		return fmt.Errorf("delete filter: %w", ErrFeatureDisabled)
	}
	cur, err := f.store.GetSavedFilter(ctx, id)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	if cur.Owner != owner {
		return fmt.Errorf("delete filter: owned by %s: %w", cur.Owner, ErrPermissionDenied)
	}
	return f.store.DeleteSavedFilter(ctx, id)
}

// Load deserializes the stored predicate back into its tree form, ready to
// hand to the QueryComposer without re-parsing any user text.
func (f *FilterStore) Load(ctx context.Context, id int64) (*Predicate, error) {
	if !f.features.AdvancedSearch {
		return nil, fmt.Errorf("load filter: %w", ErrFeatureDisabled)
	}
	cur, err := f.store.GetSavedFilter(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load filter: %w", err)
	}
	return DecodePredicate(cur.PredicateBody)
}
