package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type BoolOp string

const (
	BoolAnd BoolOp = "and"
	BoolOr  BoolOp = "or"
)

type Operator string

const (
	OpEq       Operator = "eq"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpBetween  Operator = "between"
)

// Predicate is one node of a filter expression. A group node carries Op and
// Children; a leaf carries Field, Cmp and Values. Exactly one of the two
// shapes is populated. Values are always a slice so that single-valued and
// multi-valued leaves serialize the same way and round-trip structurally.
type Predicate struct {
	Op       BoolOp      `json:"op,omitempty"`
	Children []Predicate `json:"children,omitempty"`

	Field  string   `json:"field,omitempty"`
	Cmp    Operator `json:"cmp,omitempty"`
	Values []string `json:"values,omitempty"`
}

func (p Predicate) IsLeaf() bool { return p.Field != "" }

func And(children ...Predicate) Predicate {
	return Predicate{Op: BoolAnd, Children: children}
}

func Or(children ...Predicate) Predicate {
	return Predicate{Op: BoolOr, Children: children}
}

func Leaf(field string, cmp Operator, values ...string) Predicate {
	return Predicate{Field: field, Cmp: cmp, Values: values}
}

func Eq(field, value string) Predicate       { return Leaf(field, OpEq, value) }
func Contains(field, value string) Predicate { return Leaf(field, OpContains, value) }
func In(field string, values ...string) Predicate {
	return Leaf(field, OpIn, values...)
}
func OnOrAfter(field, value string) Predicate  { return Leaf(field, OpGte, value) }
func OnOrBefore(field, value string) Predicate { return Leaf(field, OpLte, value) }
func Between(field, lo, hi string) Predicate   { return Leaf(field, OpBetween, lo, hi) }

// predicateVersion tags the persisted form. Decoding any other version is a
// validation failure, never a best-effort guess.
const predicateVersion = 1

type predicateEnvelope struct {
	Version   int        `json:"v"`
	Predicate *Predicate `json:"predicate"`
}

func EncodePredicate(p *Predicate) (string, error) {
	if p == nil {
		return "", fmt.Errorf("encode predicate: nil tree: %w", ErrValidation)
	}
	b, err := json.Marshal(predicateEnvelope{Version: predicateVersion, Predicate: p})
	if err != nil {
		return "", fmt.Errorf("encode predicate: %w", err)
	}
	return string(b), nil
}

func DecodePredicate(body string) (*Predicate, error) {
	var env predicateEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("decode predicate: %w: %v", ErrValidation, err)
	}
	if env.Version != predicateVersion {
		return nil, fmt.Errorf("decode predicate: unsupported version %d: %w", env.Version, ErrValidation)
	}
	if env.Predicate == nil {
		return nil, fmt.Errorf("decode predicate: empty body: %w", ErrValidation)
	}
	return env.Predicate, nil
}

// ValidatePredicate walks the tree and rejects unknown fields, operators the
// field kind does not support, wrong value counts and inverted date ranges.
func ValidatePredicate(p *Predicate) error {
	if p == nil {
		return fmt.Errorf("predicate: nil tree: %w", ErrValidation)
	}
	return validateNode(*p)
}

func validateNode(p Predicate) error {
	if p.IsLeaf() {
		return validateLeaf(p)
	}
	if p.Op != BoolAnd && p.Op != BoolOr {
		return fmt.Errorf("predicate: unknown group op %q: %w", p.Op, ErrValidation)
	}
	if len(p.Children) == 0 {
		return fmt.Errorf("predicate: empty %s group: %w", p.Op, ErrValidation)
	}
	for _, child := range p.Children {
		if err := validateNode(child); err != nil {
			return err
		}
	}
	return nil
}

func validateLeaf(p Predicate) error {
	spec, ok := searchableFields[p.Field]
	if !ok {
		return fmt.Errorf("predicate: unknown field %q: %w", p.Field, ErrValidation)
	}
	if !spec.supports(p.Cmp) {
		return fmt.Errorf("predicate: field %q does not support %q: %w", p.Field, p.Cmp, ErrValidation)
	}

	switch p.Cmp {
	case OpEq, OpContains, OpGte, OpLte:
		if len(p.Values) != 1 {
			return fmt.Errorf("predicate: %q wants exactly one value: %w", p.Cmp, ErrValidation)
		}
	case OpIn:
		if len(p.Values) == 0 {
			return fmt.Errorf("predicate: empty value set: %w", ErrValidation)
		}
	case OpBetween:
		if len(p.Values) != 2 {
			return fmt.Errorf("predicate: between wants two values: %w", ErrValidation)
		}
	default:
		return fmt.Errorf("predicate: unknown operator %q: %w", p.Cmp, ErrValidation)
	}

	if spec.kind == fieldDate {
		bounds := make([]time.Time, 0, len(p.Values))
		for _, v := range p.Values {
			t, err := parseDateValue(v)
			if err != nil {
				return err
			}
			bounds = append(bounds, t)
		}
		if p.Cmp == OpBetween && bounds[1].Before(bounds[0]) {
			return fmt.Errorf("predicate: date range lower bound after upper: %w", ErrValidation)
		}
	}

	if spec.kind == fieldBool {
		for _, v := range p.Values {
			if v != "true" && v != "false" {
				return fmt.Errorf("predicate: boolean field %q wants true/false, got %q: %w", p.Field, v, ErrValidation)
			}
		}
	}
	return nil
}

func parseDateValue(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("predicate: bad date value %q: %w", v, ErrValidation)
}
