package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

const loanColumns = `id, person_id, item_id, loan_date, due_date, return_date, status, registered_by, closed_by`

func scanLoan(row pgx.Row) (model.Loan, error) {
	var l model.Loan
	err := row.Scan(
		&l.ID,
		&l.PersonID,
		&l.ItemID,
		&l.LoanDate,
		&l.DueDate,
		&l.ReturnDate,
		&l.Status,
		&l.RegisteredBy,
		&l.ClosedBy,
	)
	return l, err
}

func (s *Store) GetLoan(ctx context.Context, id int64) (model.Loan, error) {
	l, err := scanLoan(s.q.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	return l, mapNoRows(err)
}

// GetActiveLoanByItem returns the single active loan holding an item, used to
// surface the expected-return date on availability lookups.
func (s *Store) GetActiveLoanByItem(ctx context.Context, itemID int64) (model.Loan, error) {
	l, err := scanLoan(s.q.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE item_id = $1 AND status = $2`,
		itemID, model.LoanActive))
	return l, mapNoRows(err)
}

func (s *Store) CountActiveLoans(ctx context.Context, personID int64) (int, error) {
	var count int
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM loans WHERE person_id = $1 AND status = $2`,
		personID, model.LoanActive).Scan(&count)
	return count, err
}

// ListActiveLoans returns all active loans, or only one person's when
// personID is non-zero.
func (s *Store) ListActiveLoans(ctx context.Context, personID int64) ([]model.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 ORDER BY loan_date, id`
	args := []any{model.LoanActive}
	if personID != 0 {
		query = `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 AND person_id = $2 ORDER BY loan_date, id`
		args = append(args, personID)
	}
	rows, err := s.q.Query(ctx, query, args...)
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

// CreateLoan commits an approved loan: it re-verifies availability under a row
// lock, inserts the loan, flips the item to on_loan and appends the history
// entry, all in one transaction. The availability re-check closes the gap
// between the eligibility decision and the commit.
func (s *Store) CreateLoan(ctx context.Context, loan *model.Loan) error {
	return s.WithTx(ctx, func(tx *Store) error {
		item, err := tx.getItemForUpdate(ctx, loan.ItemID)
		if err != nil {
			return fmt.Errorf("lock item: %w", err)
		}
		if item.Status != model.ItemAvailable {
			return model.NewPolicyViolation("item not available")
		}

		row := tx.q.QueryRow(ctx, `
			INSERT INTO loans (person_id, item_id, loan_date, due_date, status, registered_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, loan_date
		`, loan.PersonID, loan.ItemID, loan.LoanDate, loan.DueDate, model.LoanActive, loan.RegisteredBy)
		if err := row.Scan(&loan.ID, &loan.LoanDate); err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		loan.Status = model.LoanActive

		if err := tx.setItemOnLoan(ctx, loan.ItemID); err != nil {
			return fmt.Errorf("update item: %w", err)
		}

		if err := tx.insertHistory(ctx, model.HistoryEntry{
			PersonID: loan.PersonID,
			ItemID:   loan.ItemID,
			LoanID:   loan.ID,
			Action:   model.HistoryLoan,
			ActorID:  loan.RegisteredBy,
		}); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		return nil
	})
}

// CloseLoan marks an active loan returned, flips the item back to available
// and appends the history entry in one transaction.
func (s *Store) CloseLoan(ctx context.Context, loanID, actorID int64, returnDate time.Time) (model.Loan, error) {
	var closed model.Loan
	err := s.WithTx(ctx, func(tx *Store) error {
		loan, err := scanLoan(tx.q.QueryRow(ctx,
			`SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, loanID))
		if err != nil {
			return mapNoRows(err)
		}
		if loan.Status == model.LoanReturned {
			return model.ErrAlreadyReturned
		}

		if _, err := tx.q.Exec(ctx, `
			UPDATE loans SET status = $1, return_date = $2, closed_by = $3 WHERE id = $4
		`, model.LoanReturned, returnDate, actorID, loanID); err != nil {
			return fmt.Errorf("close loan: %w", err)
		}

		if err := tx.setItemAvailable(ctx, loan.ItemID); err != nil {
			return fmt.Errorf("update item: %w", err)
		}

		if err := tx.insertHistory(ctx, model.HistoryEntry{
			PersonID: loan.PersonID,
			ItemID:   loan.ItemID,
			LoanID:   loan.ID,
			Action:   model.HistoryReturn,
			ActorID:  actorID,
		}); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}

		loan.Status = model.LoanReturned
		loan.ReturnDate = &returnDate
		loan.ClosedBy = &actorID
		closed = loan
		return nil
	})
	return closed, err
}
