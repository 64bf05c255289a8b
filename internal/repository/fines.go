package repository

import (
	"context"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

func (s *Store) CreateFine(ctx context.Context, f *model.Fine) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO fines (person_id, loan_id, amount_cents)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, f.PersonID, f.LoanID, f.Amount)
	if err := row.Scan(&f.ID, &f.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return model.NewValidationError("loan_id", "fine already recorded for loan")
		}
		return err
	}
	return nil
}

func (s *Store) MarkFinePaid(ctx context.Context, fineID int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE fines SET paid = true WHERE id = $1 AND NOT paid`, fineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) ListFinesByPerson(ctx context.Context, personID int64) ([]model.Fine, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, person_id, loan_id, amount_cents, paid, created_at
		FROM fines WHERE person_id = $1 ORDER BY created_at, id
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fines []model.Fine
	for rows.Next() {
		var f model.Fine
		if err := rows.Scan(&f.ID, &f.PersonID, &f.LoanID, &f.Amount, &f.Paid, &f.CreatedAt); err != nil {
			return nil, err
		}
		fines = append(fines, f)
	}
	return fines, rows.Err()
}

// SumUnpaidFines returns the total outstanding fine amount in centavos.
func (s *Store) SumUnpaidFines(ctx context.Context, personID int64) (int64, error) {
	var total int64
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM fines WHERE person_id = $1 AND NOT paid`,
		personID).Scan(&total)
	return total, err
}

// ListOverdueLoansWithoutFine feeds the overdue sweep: active loans past their
// due date that have no fine linked yet.
func (s *Store) ListOverdueLoansWithoutFine(ctx context.Context) ([]model.Loan, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+loanColumns+`
		FROM loans l
		WHERE l.status = $1
			AND l.due_date < CURRENT_DATE
			AND NOT EXISTS (SELECT 1 FROM fines f WHERE f.loan_id = l.id)
		ORDER BY l.due_date, l.id
	`, model.LoanActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}
