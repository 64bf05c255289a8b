// Package policy resolves loan duration and concurrent-loan caps from person
// category and material type.
package policy

import (
	"context"
	"errors"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

// System defaults used when no rule is configured for a category.
const (
	DefaultLoanDays = 7
	DefaultMaxLoans = 3
)

// RuleSource looks up a single configured rule; absence is model.ErrNotFound.
type RuleSource interface {
	FindPolicy(ctx context.Context, category model.PersonCategory, materialType *string) (model.LoanPolicy, error)
}

type Resolver struct {
	rules RuleSource
}

func NewResolver(rules RuleSource) *Resolver {
	return &Resolver{rules: rules}
}

// Resolve returns the policy for (category, materialType): the exact
// material-specific rule wins, then the category-wide rule, then the system
// defaults. Missing configuration is never an error; backend failures are.
func (r *Resolver) Resolve(ctx context.Context, category model.PersonCategory, materialType string) (model.LoanPolicy, error) {
	if materialType != "" {
		rule, err := r.rules.FindPolicy(ctx, category, &materialType)
		if err == nil {
			return rule, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.LoanPolicy{}, err
		}
	}

	rule, err := r.rules.FindPolicy(ctx, category, nil)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.LoanPolicy{}, err
	}

	return model.LoanPolicy{
		Category: category,
		LoanDays: DefaultLoanDays,
		MaxLoans: DefaultMaxLoans,
	}, nil
}
