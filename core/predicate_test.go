package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPredicateRoundTrip(t *testing.T) {
	t.Parallel()

	tree := And(
		Or(
			In("priority", "high", "medium"),
			Eq("completed", "false"),
		),
		Contains("title", "pump"),
		Between("due_date", "2026-03-01", "2026-03-31"),
	)

	body, err := EncodePredicate(&tree)
	require.NoError(t, err)

	got, err := DecodePredicate(body)
	require.NoError(t, err)
	require.Equal(t, &tree, got, "decoded tree must structurally equal the saved one")
}

func TestPredicateRoundTripSingleLeaf(t *testing.T) {
	t.Parallel()

	leaf := Eq("category", "survey")
	body, err := EncodePredicate(&leaf)
	require.NoError(t, err)

	got, err := DecodePredicate(body)
	require.NoError(t, err)
	require.Equal(t, &leaf, got)
}

func TestDecodePredicateUnsupportedVersion(t *testing.T) {
	t.Parallel()

	_, err := DecodePredicate(`{"v":2,"predicate":{"field":"title","cmp":"eq","values":["x"]}}`)
	require.ErrorIs(t, err, ErrValidation)
}

func TestDecodePredicateGarbage(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "not json", `{"v":1}`} {
		_, err := DecodePredicate(body)
		require.ErrorIs(t, err, ErrValidation, "body %q", body)
	}
}

func TestValidatePredicate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		tree Predicate
		ok   bool
	}{
		{"valid eq", Eq("title", "x"), true},
		{"valid in", In("priority", "high", "low"), true},
		{"valid range", Between("due_date", "2026-01-01", "2026-02-01"), true},
		{"valid nested", And(Eq("completed", "true"), Or(Contains("description", "a"), Eq("category", "b"))), true},
		{"unknown field", Eq("password", "x"), false},
		{"wrong operator for kind", Contains("due_date", "2026"), false},
		{"inverted date range", Between("due_date", "2026-02-01", "2026-01-01"), false},
		{"bad date value", OnOrAfter("created_date", "soon"), false},
		{"bad bool value", Eq("completed", "yes"), false},
		{"empty in set", Leaf("priority", OpIn), false},
		{"eq needs one value", Leaf("title", OpEq, "a", "b"), false},
		{"empty group", And(), false},
		{"unknown group op", Predicate{Op: "xor", Children: []Predicate{Eq("title", "x")}}, false},
		{"bad leaf inside group", And(Eq("title", "x"), Eq("nope", "y")), false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePredicate(&tc.tree)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestValidatePredicateNil(t *testing.T) {
	t.Parallel()

	require.True(t, errors.Is(ValidatePredicate(nil), ErrValidation))
}

func TestPredicateDateRangeEqualBoundsOK(t *testing.T) {
	t.Parallel()

	tree := Between("due_date", "2026-03-15", "2026-03-15")
	require.NoError(t, ValidatePredicate(&tree))
}
