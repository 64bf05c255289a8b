package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

type fakeRules struct {
	rules []model.LoanPolicy
	err   error
}

func (f *fakeRules) FindPolicy(_ context.Context, category model.PersonCategory, materialType *string) (model.LoanPolicy, error) {
	if f.err != nil {
		return model.LoanPolicy{}, f.err
	}
	for _, rule := range f.rules {
		if rule.Category != category {
			continue
		}
		if rule.MaterialType == nil && materialType == nil {
			return rule, nil
		}
		if rule.MaterialType != nil && materialType != nil && *rule.MaterialType == *materialType {
			return rule, nil
		}
	}
	return model.LoanPolicy{}, model.ErrNotFound
}

func strptr(s string) *string { return &s }

func TestResolveLookupOrder(t *testing.T) {
	rules := &fakeRules{rules: []model.LoanPolicy{
		{Category: model.CategoryStudent, MaterialType: strptr("book"), LoanDays: 14, MaxLoans: 3},
		{Category: model.CategoryStudent, MaterialType: nil, LoanDays: 10, MaxLoans: 3},
	}}
	resolver := NewResolver(rules)
	ctx := context.Background()

	cases := []struct {
		category model.PersonCategory
		material string
		wantDays int
	}{
		{model.CategoryStudent, "book", 14}, // exact (category, material) rule
		{model.CategoryStudent, "dvd", 10},  // category-wide fallback
		{model.CategoryVisitor, "book", 7},  // system default
	}
	for _, tc := range cases {
		policy, err := resolver.Resolve(ctx, tc.category, tc.material)
		if err != nil {
			t.Fatalf("resolve(%s, %s): %v", tc.category, tc.material, err)
		}
		if policy.LoanDays != tc.wantDays {
			t.Fatalf("resolve(%s, %s): expected %d days, got %d", tc.category, tc.material, tc.wantDays, policy.LoanDays)
		}
	}
}

func TestResolveEmptyMaterialSkipsExactLookup(t *testing.T) {
	rules := &fakeRules{rules: []model.LoanPolicy{
		{Category: model.CategoryStudent, MaterialType: nil, LoanDays: 10, MaxLoans: 2},
	}}
	resolver := NewResolver(rules)

	policy, err := resolver.Resolve(context.Background(), model.CategoryStudent, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.LoanDays != 10 || policy.MaxLoans != 2 {
		t.Fatalf("expected category rule, got %+v", policy)
	}
}

func TestResolveDefaults(t *testing.T) {
	resolver := NewResolver(&fakeRules{})
	policy, err := resolver.Resolve(context.Background(), model.CategoryProfessor, "map")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.LoanDays != DefaultLoanDays || policy.MaxLoans != DefaultMaxLoans {
		t.Fatalf("expected defaults, got %+v", policy)
	}
}

func TestResolvePropagatesBackendErrors(t *testing.T) {
	backendErr := errors.New("connection refused")
	resolver := NewResolver(&fakeRules{err: backendErr})
	if _, err := resolver.Resolve(context.Background(), model.CategoryStudent, "book"); !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
