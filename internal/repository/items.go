package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

const itemColumns = `id, title, author, code, material_type, status, restricted, last_loan_at`

func scanItem(row pgx.Row) (model.Item, error) {
	var it model.Item
	err := row.Scan(
		&it.ID,
		&it.Title,
		&it.Author,
		&it.Code,
		&it.MaterialType,
		&it.Status,
		&it.Restricted,
		&it.LastLoanAt,
	)
	return it, err
}

func (s *Store) CreateItem(ctx context.Context, it *model.Item) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO items (title, author, code, material_type, status, restricted)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, it.Title, it.Author, it.Code, it.MaterialType, it.Status, it.Restricted)
	if err := row.Scan(&it.ID); err != nil {
		if isUniqueViolation(err) {
			return model.NewValidationError("code", "already registered")
		}
		return err
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id int64) (model.Item, error) {
	it, err := scanItem(s.q.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	return it, mapNoRows(err)
}

// getItemForUpdate locks the item row for the duration of the enclosing
// transaction.
func (s *Store) getItemForUpdate(ctx context.Context, id int64) (model.Item, error) {
	it, err := scanItem(s.q.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id))
	return it, mapNoRows(err)
}

func (s *Store) GetItemByCode(ctx context.Context, code string) (model.Item, error) {
	it, err := scanItem(s.q.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE code = $1`, code))
	return it, mapNoRows(err)
}

func (s *Store) SearchItemsByTitle(ctx context.Context, title string) ([]model.Item, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE title ILIKE '%' || $1 || '%'`, title)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) UpdateItem(ctx context.Context, it model.Item) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE items
		SET title = $1, author = $2, code = $3, material_type = $4, restricted = $5
		WHERE id = $6
	`, it.Title, it.Author, it.Code, it.MaterialType, it.Restricted, it.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewValidationError("code", "already registered")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) setItemOnLoan(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE items SET status = $1, last_loan_at = now() WHERE id = $2`,
		model.ItemOnLoan, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) setItemAvailable(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE items SET status = $1 WHERE id = $2`, model.ItemAvailable, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
