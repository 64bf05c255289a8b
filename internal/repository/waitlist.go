package repository

import (
	"context"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

func (s *Store) EnrollWaitlist(ctx context.Context, e *model.WaitlistEntry) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO waitlist (person_id, item_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, requested_at
	`, e.PersonID, e.ItemID, model.WaitlistPending)
	if err := row.Scan(&e.ID, &e.RequestedAt); err != nil {
		if isUniqueViolation(err) {
			return model.NewPolicyViolation("already on the wait-list for this item")
		}
		return err
	}
	e.Status = model.WaitlistPending
	return nil
}

func (s *Store) CancelWaitlist(ctx context.Context, personID, itemID int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE waitlist SET status = $1
		WHERE person_id = $2 AND item_id = $3 AND status = $4
	`, model.WaitlistCancelled, personID, itemID, model.WaitlistPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// NextPendingWaitlist returns the oldest pending entry for an item, if any.
func (s *Store) NextPendingWaitlist(ctx context.Context, itemID int64) (model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := s.q.QueryRow(ctx, `
		SELECT id, person_id, item_id, requested_at, status
		FROM waitlist
		WHERE item_id = $1 AND status = $2
		ORDER BY requested_at, id
		LIMIT 1
	`, itemID, model.WaitlistPending).Scan(&e.ID, &e.PersonID, &e.ItemID, &e.RequestedAt, &e.Status)
	return e, mapNoRows(err)
}

func (s *Store) ListWaitlistByItem(ctx context.Context, itemID int64) ([]model.WaitlistEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, person_id, item_id, requested_at, status
		FROM waitlist
		WHERE item_id = $1 AND status = $2
		ORDER BY requested_at, id
	`, itemID, model.WaitlistPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		var e model.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.PersonID, &e.ItemID, &e.RequestedAt, &e.Status); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
