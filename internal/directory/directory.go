// Package directory manages person records and their field-level audit trail.
package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/cpf"
	"github.com/yslanlopes12/biblioteca-sistema/internal/crypto"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type Store interface {
	CreatePerson(ctx context.Context, p *model.Person) error
	GetPersonByID(ctx context.Context, id int64) (model.Person, error)
	GetPersonByCPF(ctx context.Context, cpf string) (model.Person, error)
	GetPersonByRegistration(ctx context.Context, registration string) (model.Person, error)
	SearchPersonsByName(ctx context.Context, name string) ([]model.Person, error)
	UpdatePersonWithAudit(ctx context.Context, p model.Person, audits []model.AuditEntry) error
	ListAuditByPerson(ctx context.Context, personID int64) ([]model.AuditEntry, error)
	CountActiveLoans(ctx context.Context, personID int64) (int, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

type CreateInput struct {
	CPF                string
	FullName           string
	BirthDate          time.Time
	Phone              string
	Address            string
	Category           model.PersonCategory
	Email              *string
	RegistrationNumber *string
	Department         *string
	Password           string
}

// Create registers a new active person. The identity number must pass the CPF
// checksum and be unused; an email, when present, must look like
// local@domain.tld.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.Person, error) {
	if !cpf.Valid(in.CPF) {
		return model.Person{}, model.NewValidationError("cpf", "checksum failed")
	}
	if in.FullName == "" {
		return model.Person{}, model.NewValidationError("full_name", "required")
	}
	if in.Email != nil && !emailPattern.MatchString(*in.Email) {
		return model.Person{}, model.NewValidationError("email", "malformed address")
	}

	person := model.Person{
		CPF:                in.CPF,
		FullName:           in.FullName,
		BirthDate:          in.BirthDate,
		Phone:              in.Phone,
		Address:            in.Address,
		Category:           in.Category,
		Email:              in.Email,
		RegistrationNumber: in.RegistrationNumber,
		Department:         in.Department,
		Status:             model.PersonActive,
	}
	if in.Password != "" {
		hash, err := crypto.HashPassword(in.Password)
		if err != nil {
			return model.Person{}, err
		}
		person.PasswordHash = &hash
	}

	if err := s.store.CreatePerson(ctx, &person); err != nil {
		return model.Person{}, err
	}
	return person, nil
}

func (s *Service) ByID(ctx context.Context, id int64) (model.Person, error) {
	return s.store.GetPersonByID(ctx, id)
}

func (s *Service) ByCPF(ctx context.Context, value string) (model.Person, error) {
	return s.store.GetPersonByCPF(ctx, value)
}

func (s *Service) ByRegistration(ctx context.Context, registration string) (model.Person, error) {
	return s.store.GetPersonByRegistration(ctx, registration)
}

// ByName returns zero or more case-insensitive substring matches in backend
// order; the caller disambiguates when there is more than one.
func (s *Service) ByName(ctx context.Context, name string) ([]model.Person, error) {
	return s.store.SearchPersonsByName(ctx, name)
}

func (s *Service) Audit(ctx context.Context, personID int64) ([]model.AuditEntry, error) {
	return s.store.ListAuditByPerson(ctx, personID)
}

// UpdatePatch enumerates only the fields being changed. Nil means "leave as
// is"; optional text fields are cleared by setting an empty string.
type UpdatePatch struct {
	FullName           *string
	BirthDate          *time.Time
	Phone              *string
	Address            *string
	Category           *model.PersonCategory
	Email              *string
	RegistrationNumber *string
	Department         *string
	Password           *string
}

// Update diffs the patch against the freshly fetched record and writes the
// merged person plus one audit entry per changed field. It returns false when
// nothing changed and no credential update was requested.
func (s *Service) Update(ctx context.Context, id int64, patch UpdatePatch, actorID int64) (bool, error) {
	person, err := s.store.GetPersonByID(ctx, id)
	if err != nil {
		return false, err
	}

	now := s.now()
	var audits []model.AuditEntry
	record := func(field, oldValue, newValue string) {
		audits = append(audits, model.AuditEntry{
			PersonID:   person.ID,
			Field:      field,
			OldValue:   oldValue,
			NewValue:   newValue,
			ActorID:    actorID,
			RecordedAt: now,
		})
	}

	if patch.FullName != nil && *patch.FullName != person.FullName {
		record("full_name", person.FullName, *patch.FullName)
		person.FullName = *patch.FullName
	}
	if patch.BirthDate != nil && !patch.BirthDate.Equal(person.BirthDate) {
		record("birth_date", person.BirthDate.Format("2006-01-02"), patch.BirthDate.Format("2006-01-02"))
		person.BirthDate = *patch.BirthDate
	}
	if patch.Phone != nil && *patch.Phone != person.Phone {
		record("phone", person.Phone, *patch.Phone)
		person.Phone = *patch.Phone
	}
	if patch.Address != nil && *patch.Address != person.Address {
		record("address", person.Address, *patch.Address)
		person.Address = *patch.Address
	}
	if patch.Category != nil && *patch.Category != person.Category {
		record("category", string(person.Category), string(*patch.Category))
		person.Category = *patch.Category
	}
	if patch.Email != nil && !equalOptional(patch.Email, person.Email) {
		if *patch.Email != "" && !emailPattern.MatchString(*patch.Email) {
			return false, model.NewValidationError("email", "malformed address")
		}
		record("email", optionalText(person.Email), *patch.Email)
		person.Email = normalizeOptional(*patch.Email)
	}
	if patch.RegistrationNumber != nil && !equalOptional(patch.RegistrationNumber, person.RegistrationNumber) {
		record("registration_number", optionalText(person.RegistrationNumber), *patch.RegistrationNumber)
		person.RegistrationNumber = normalizeOptional(*patch.RegistrationNumber)
	}
	if patch.Department != nil && !equalOptional(patch.Department, person.Department) {
		record("department", optionalText(person.Department), *patch.Department)
		person.Department = normalizeOptional(*patch.Department)
	}

	credentialChange := patch.Password != nil && *patch.Password != ""
	if credentialChange {
		hash, err := crypto.HashPassword(*patch.Password)
		if err != nil {
			return false, err
		}
		person.PasswordHash = &hash
		record("password", "[redacted]", "[redacted]")
	}

	if len(audits) == 0 {
		return false, nil
	}
	if err := s.store.UpdatePersonWithAudit(ctx, person, audits); err != nil {
		return false, err
	}
	return true, nil
}

// SetStatus transitions a person between active and inactive. Deactivation
// requires a reason and is refused while the person holds active loans.
// Re-applying the current status is rejected without writing an audit entry.
func (s *Service) SetStatus(ctx context.Context, id int64, status model.PersonStatus, reason string, actorID int64) error {
	person, err := s.store.GetPersonByID(ctx, id)
	if err != nil {
		return err
	}
	if person.Status == status {
		return model.NewPolicyViolation(fmt.Sprintf("person already %s", status))
	}

	if status == model.PersonInactive {
		if reason == "" {
			return model.NewValidationError("reason", "required for deactivation")
		}
		active, err := s.store.CountActiveLoans(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return model.NewPolicyViolation(fmt.Sprintf("person holds %d active loan(s)", active))
		}
	}

	entry := model.AuditEntry{
		PersonID:   person.ID,
		Field:      "status",
		OldValue:   string(person.Status),
		NewValue:   string(status),
		ActorID:    actorID,
		RecordedAt: s.now(),
	}
	if reason != "" {
		entry.Reason = &reason
	}

	person.Status = status
	return s.store.UpdatePersonWithAudit(ctx, person, []model.AuditEntry{entry})
}

// Authenticate verifies an active person's credentials for the interactive
// surface. Lookup misses, missing credentials and mismatches all collapse to
// ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, cpfValue, password string) (model.Person, error) {
	person, err := s.store.GetPersonByCPF(ctx, cpfValue)
	if errors.Is(err, model.ErrNotFound) {
		return model.Person{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.Person{}, err
	}
	if person.Status != model.PersonActive || person.PasswordHash == nil {
		return model.Person{}, ErrInvalidCredentials
	}
	if err := crypto.CheckPassword(*person.PasswordHash, password); err != nil {
		return model.Person{}, ErrInvalidCredentials
	}
	return person, nil
}

func equalOptional(patch *string, current *string) bool {
	if current == nil {
		return *patch == ""
	}
	return *patch == *current
}

func optionalText(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func normalizeOptional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
