package repository

import (
	"context"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

func (s *Store) insertHistory(ctx context.Context, e model.HistoryEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO history (person_id, item_id, loan_id, action, actor_id)
		VALUES ($1, $2, $3, $4, $5)
	`, e.PersonID, e.ItemID, e.LoanID, e.Action, e.ActorID)
	return err
}

func (s *Store) ListHistoryByPerson(ctx context.Context, personID int64) ([]model.HistoryEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, person_id, item_id, loan_id, action, action_at, actor_id
		FROM history WHERE person_id = $1 ORDER BY action_at, id
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.PersonID, &e.ItemID, &e.LoanID, &e.Action, &e.ActionAt, &e.ActorID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
