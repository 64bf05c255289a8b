package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

const personColumns = `id, cpf, full_name, birth_date, phone, address, category,
	email, registration_number, department, status, password_hash, created_at, updated_at`

func scanPerson(row pgx.Row) (model.Person, error) {
	var p model.Person
	err := row.Scan(
		&p.ID,
		&p.CPF,
		&p.FullName,
		&p.BirthDate,
		&p.Phone,
		&p.Address,
		&p.Category,
		&p.Email,
		&p.RegistrationNumber,
		&p.Department,
		&p.Status,
		&p.PasswordHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (s *Store) CreatePerson(ctx context.Context, p *model.Person) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO persons (cpf, full_name, birth_date, phone, address, category,
			email, registration_number, department, status, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`, p.CPF, p.FullName, p.BirthDate, p.Phone, p.Address, p.Category,
		p.Email, p.RegistrationNumber, p.Department, p.Status, p.PasswordHash)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return model.NewValidationError("cpf", "already registered")
		}
		return err
	}
	return nil
}

func (s *Store) GetPersonByID(ctx context.Context, id int64) (model.Person, error) {
	p, err := scanPerson(s.q.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = $1`, id))
	return p, mapNoRows(err)
}

func (s *Store) GetPersonByCPF(ctx context.Context, cpf string) (model.Person, error) {
	p, err := scanPerson(s.q.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons WHERE cpf = $1`, cpf))
	return p, mapNoRows(err)
}

func (s *Store) GetPersonByRegistration(ctx context.Context, registration string) (model.Person, error) {
	p, err := scanPerson(s.q.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons WHERE registration_number = $1`, registration))
	return p, mapNoRows(err)
}

// SearchPersonsByName matches the name substring case-insensitively, in
// backend default order.
func (s *Store) SearchPersonsByName(ctx context.Context, name string) ([]model.Person, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+personColumns+` FROM persons WHERE full_name ILIKE '%' || $1 || '%'`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func (s *Store) updatePerson(ctx context.Context, p model.Person) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE persons
		SET full_name = $1, birth_date = $2, phone = $3, address = $4, category = $5,
			email = $6, registration_number = $7, department = $8, status = $9,
			password_hash = $10, updated_at = now()
		WHERE id = $11
	`, p.FullName, p.BirthDate, p.Phone, p.Address, p.Category,
		p.Email, p.RegistrationNumber, p.Department, p.Status, p.PasswordHash, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) insertAudit(ctx context.Context, entry model.AuditEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO person_audit (person_id, field, old_value, new_value, actor_id, reason, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.PersonID, entry.Field, entry.OldValue, entry.NewValue, entry.ActorID, entry.Reason, entry.RecordedAt)
	return err
}

// UpdatePersonWithAudit writes the merged record and its field-level audit
// entries in one transaction.
func (s *Store) UpdatePersonWithAudit(ctx context.Context, p model.Person, audits []model.AuditEntry) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if err := tx.updatePerson(ctx, p); err != nil {
			return fmt.Errorf("update person: %w", err)
		}
		for _, entry := range audits {
			if err := tx.insertAudit(ctx, entry); err != nil {
				return fmt.Errorf("insert audit: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) ListAuditByPerson(ctx context.Context, personID int64) ([]model.AuditEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, person_id, field, old_value, new_value, actor_id, reason, recorded_at
		FROM person_audit WHERE person_id = $1 ORDER BY recorded_at, id
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.PersonID, &e.Field, &e.OldValue, &e.NewValue,
			&e.ActorID, &e.Reason, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
