package repository

import (
	"context"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

// FindPolicy returns the rule for exactly (category, materialType); a nil
// materialType selects the category-wide rule. Absence is model.ErrNotFound,
// which the resolver treats as "fall through", not as a fault.
func (s *Store) FindPolicy(ctx context.Context, category model.PersonCategory, materialType *string) (model.LoanPolicy, error) {
	var p model.LoanPolicy
	err := s.q.QueryRow(ctx, `
		SELECT category, material_type, loan_days, max_loans
		FROM loan_policies
		WHERE category = $1 AND COALESCE(material_type, '') = COALESCE($2, '')
	`, category, materialType).Scan(&p.Category, &p.MaterialType, &p.LoanDays, &p.MaxLoans)
	return p, mapNoRows(err)
}

func (s *Store) UpsertPolicy(ctx context.Context, p model.LoanPolicy) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO loan_policies (category, material_type, loan_days, max_loans)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (category, COALESCE(material_type, ''))
		DO UPDATE SET loan_days = EXCLUDED.loan_days, max_loans = EXCLUDED.max_loans
	`, p.Category, p.MaterialType, p.LoanDays, p.MaxLoans)
	return err
}

func (s *Store) ListPolicies(ctx context.Context) ([]model.LoanPolicy, error) {
	rows, err := s.q.Query(ctx, `
		SELECT category, material_type, loan_days, max_loans
		FROM loan_policies ORDER BY category, material_type NULLS FIRST
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []model.LoanPolicy
	for rows.Next() {
		var p model.LoanPolicy
		if err := rows.Scan(&p.Category, &p.MaterialType, &p.LoanDays, &p.MaxLoans); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}
