package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/crypto"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

type fakeStore struct {
	persons     map[int64]model.Person
	audits      []model.AuditEntry
	activeLoans map[int64]int
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{persons: map[int64]model.Person{}, activeLoans: map[int64]int{}}
}

func (f *fakeStore) CreatePerson(_ context.Context, p *model.Person) error {
	for _, existing := range f.persons {
		if existing.CPF == p.CPF {
			return model.NewValidationError("cpf", "already registered")
		}
	}
	f.nextID++
	p.ID = f.nextID
	f.persons[p.ID] = *p
	return nil
}

func (f *fakeStore) GetPersonByID(_ context.Context, id int64) (model.Person, error) {
	p, ok := f.persons[id]
	if !ok {
		return model.Person{}, model.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetPersonByCPF(_ context.Context, cpf string) (model.Person, error) {
	for _, p := range f.persons {
		if p.CPF == cpf {
			return p, nil
		}
	}
	return model.Person{}, model.ErrNotFound
}

func (f *fakeStore) GetPersonByRegistration(_ context.Context, registration string) (model.Person, error) {
	for _, p := range f.persons {
		if p.RegistrationNumber != nil && *p.RegistrationNumber == registration {
			return p, nil
		}
	}
	return model.Person{}, model.ErrNotFound
}

func (f *fakeStore) SearchPersonsByName(_ context.Context, _ string) ([]model.Person, error) {
	return nil, nil
}

func (f *fakeStore) UpdatePersonWithAudit(_ context.Context, p model.Person, audits []model.AuditEntry) error {
	if _, ok := f.persons[p.ID]; !ok {
		return model.ErrNotFound
	}
	f.persons[p.ID] = p
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) ListAuditByPerson(_ context.Context, personID int64) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	for _, e := range f.audits {
		if e.PersonID == personID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (f *fakeStore) CountActiveLoans(_ context.Context, personID int64) (int, error) {
	return f.activeLoans[personID], nil
}

func validInput() CreateInput {
	return CreateInput{
		CPF:       "11144477735",
		FullName:  "Maria Souza",
		BirthDate: time.Date(1999, 3, 14, 0, 0, 0, 0, time.UTC),
		Phone:     "11 99999-0000",
		Address:   "Rua A, 100",
		Category:  model.CategoryStudent,
	}
}

func TestCreateValidation(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	in := validInput()
	in.CPF = "11144477734"
	if _, err := service.Create(ctx, in); err == nil {
		t.Fatalf("expected checksum rejection")
	}

	in = validInput()
	bad := "not-an-email"
	in.Email = &bad
	if _, err := service.Create(ctx, in); err == nil {
		t.Fatalf("expected email rejection")
	}

	in = validInput()
	person, err := service.Create(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if person.Status != model.PersonActive {
		t.Fatalf("expected new person active, got %s", person.Status)
	}

	var vErr *model.ValidationError
	if _, err := service.Create(ctx, validInput()); !errors.As(err, &vErr) {
		t.Fatalf("expected duplicate cpf rejection, got %v", err)
	}
}

func TestUpdateDiffsAndAudits(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	person, err := service.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newName := "Maria Souza Lima"
	newPhone := "11 98888-1111"
	email := "maria@example.com"
	changed, err := service.Update(ctx, person.ID, UpdatePatch{
		FullName: &newName,
		Phone:    &newPhone,
		Email:    &email,
	}, 7)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !changed {
		t.Fatalf("expected update to report a change")
	}

	entries, _ := store.ListAuditByPerson(ctx, person.ID)
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	fields := map[string]model.AuditEntry{}
	for _, e := range entries {
		fields[e.Field] = e
		if e.ActorID != 7 {
			t.Fatalf("expected actor 7 on audit entry, got %d", e.ActorID)
		}
	}
	if fields["full_name"].OldValue != "Maria Souza" || fields["full_name"].NewValue != newName {
		t.Fatalf("unexpected full_name audit: %+v", fields["full_name"])
	}
	if fields["email"].OldValue != "" || fields["email"].NewValue != email {
		t.Fatalf("unexpected email audit: %+v", fields["email"])
	}

	updated, _ := store.GetPersonByID(ctx, person.ID)
	if updated.FullName != newName || updated.Phone != newPhone {
		t.Fatalf("expected merged record, got %+v", updated)
	}
	if updated.Email == nil || *updated.Email != email {
		t.Fatalf("expected email set, got %v", updated.Email)
	}
}

func TestUpdateNoChangesIsNoOp(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	person, err := service.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sameName := person.FullName
	changed, err := service.Update(ctx, person.ID, UpdatePatch{FullName: &sameName}, 7)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if changed {
		t.Fatalf("expected no-op update to report false")
	}
	if len(store.audits) != 0 {
		t.Fatalf("expected no audit entries, got %d", len(store.audits))
	}
}

func TestUpdatePasswordCountsAsChange(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	person, err := service.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	password := "s3nha-nova"
	changed, err := service.Update(ctx, person.ID, UpdatePatch{Password: &password}, 7)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !changed {
		t.Fatalf("expected credential update to report a change")
	}

	updated, _ := store.GetPersonByID(ctx, person.ID)
	if updated.PasswordHash == nil {
		t.Fatalf("expected password hash to be set")
	}
	if err := crypto.CheckPassword(*updated.PasswordHash, password); err != nil {
		t.Fatalf("expected stored hash to match new password")
	}
	if len(store.audits) != 1 || store.audits[0].Field != "password" {
		t.Fatalf("expected single password audit entry, got %+v", store.audits)
	}
	if store.audits[0].NewValue != "[redacted]" {
		t.Fatalf("expected redacted audit values, got %q", store.audits[0].NewValue)
	}
}

func TestSetStatusGuards(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	person, err := service.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Deactivation needs a reason.
	if err := service.SetStatus(ctx, person.ID, model.PersonInactive, "", 7); err == nil {
		t.Fatalf("expected missing reason to be rejected")
	}

	// Deactivation is refused while loans are active.
	store.activeLoans[person.ID] = 1
	var pErr *model.PolicyViolation
	if err := service.SetStatus(ctx, person.ID, model.PersonInactive, "moved away", 7); !errors.As(err, &pErr) {
		t.Fatalf("expected policy violation, got %v", err)
	}

	store.activeLoans[person.ID] = 0
	if err := service.SetStatus(ctx, person.ID, model.PersonInactive, "moved away", 7); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	updated, _ := store.GetPersonByID(ctx, person.ID)
	if updated.Status != model.PersonInactive {
		t.Fatalf("expected inactive, got %s", updated.Status)
	}
	if len(store.audits) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(store.audits))
	}
	if store.audits[0].Reason == nil || *store.audits[0].Reason != "moved away" {
		t.Fatalf("expected reason recorded, got %+v", store.audits[0])
	}

	// Deactivating again is rejected and writes no duplicate audit entry.
	if err := service.SetStatus(ctx, person.ID, model.PersonInactive, "again", 7); !errors.As(err, &pErr) {
		t.Fatalf("expected idempotent rejection, got %v", err)
	}
	if len(store.audits) != 1 {
		t.Fatalf("expected no duplicate audit entry, got %d", len(store.audits))
	}

	// Reactivation needs no reason and is audited.
	if err := service.SetStatus(ctx, person.ID, model.PersonActive, "", 7); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if len(store.audits) != 2 {
		t.Fatalf("expected reactivation audit entry, got %d", len(store.audits))
	}
}

func TestAuthenticate(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	in := validInput()
	in.Password = "segredo"
	person, err := service.Create(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := service.Authenticate(ctx, person.CPF, "segredo"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := service.Authenticate(ctx, person.CPF, "errado"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := service.Authenticate(ctx, "52998224725", "segredo"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown cpf, got %v", err)
	}

	if err := service.SetStatus(ctx, person.ID, model.PersonInactive, "left", 7); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := service.Authenticate(ctx, person.CPF, "segredo"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected inactive person to be rejected, got %v", err)
	}
}
