package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/auth"
	"github.com/yslanlopes12/biblioteca-sistema/internal/catalog"
	"github.com/yslanlopes12/biblioteca-sistema/internal/circulation"
	"github.com/yslanlopes12/biblioteca-sistema/internal/config"
	"github.com/yslanlopes12/biblioteca-sistema/internal/crypto"
	"github.com/yslanlopes12/biblioteca-sistema/internal/directory"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
	"github.com/yslanlopes12/biblioteca-sistema/internal/policy"
)

// fakeStore backs every service the server wires, mirroring the repository
// semantics in memory.
type fakeStore struct {
	persons  map[int64]model.Person
	items    map[int64]model.Item
	loans    map[int64]model.Loan
	fines    map[int64]model.Fine
	waitlist []model.WaitlistEntry
	history  []model.HistoryEntry
	audits   []model.AuditEntry
	policies []model.LoanPolicy
	sessions map[string]model.RefreshSession
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		persons:  map[int64]model.Person{},
		items:    map[int64]model.Item{},
		loans:    map[int64]model.Loan{},
		fines:    map[int64]model.Fine{},
		sessions: map[string]model.RefreshSession{},
	}
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

func (f *fakeStore) CreateItem(_ context.Context, it *model.Item) error {
	for _, existing := range f.items {
		if existing.Code == it.Code {
			return model.NewValidationError("code", "already registered")
		}
	}
	f.nextID++
	it.ID = f.nextID
	f.items[it.ID] = *it
	return nil
}

func (f *fakeStore) GetItem(_ context.Context, id int64) (model.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return model.Item{}, model.ErrNotFound
	}
	return it, nil
}

func (f *fakeStore) GetItemByCode(_ context.Context, code string) (model.Item, error) {
	for _, it := range f.items {
		if it.Code == code {
			return it, nil
		}
	}
	return model.Item{}, model.ErrNotFound
}

func (f *fakeStore) SearchItemsByTitle(_ context.Context, _ string) ([]model.Item, error) {
	return nil, nil
}

func (f *fakeStore) UpdateItem(_ context.Context, it model.Item) error {
	if _, ok := f.items[it.ID]; !ok {
		return model.ErrNotFound
	}
	f.items[it.ID] = it
	return nil
}

func (f *fakeStore) GetLoan(_ context.Context, id int64) (model.Loan, error) {
	loan, ok := f.loans[id]
	if !ok {
		return model.Loan{}, model.ErrNotFound
	}
	return loan, nil
}

func (f *fakeStore) GetActiveLoanByItem(_ context.Context, itemID int64) (model.Loan, error) {
	for _, l := range f.loans {
		if l.ItemID == itemID && l.Status == model.LoanActive {
			return l, nil
		}
	}
	return model.Loan{}, model.ErrNotFound
}

func (f *fakeStore) CountActiveLoans(_ context.Context, personID int64) (int, error) {
	count := 0
	for _, l := range f.loans {
		if l.PersonID == personID && l.Status == model.LoanActive {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ListActiveLoans(_ context.Context, personID int64) ([]model.Loan, error) {
	var loans []model.Loan
	for _, l := range f.loans {
		if l.Status != model.LoanActive {
			continue
		}
		if personID != 0 && l.PersonID != personID {
			continue
		}
		loans = append(loans, l)
	}
	return loans, nil
}

func (f *fakeStore) CreateLoan(_ context.Context, loan *model.Loan) error {
	item, ok := f.items[loan.ItemID]
	if !ok {
		return model.ErrNotFound
	}
	if item.Status != model.ItemAvailable {
		return model.NewPolicyViolation("item not available")
	}
	f.nextID++
	loan.ID = f.nextID
	loan.Status = model.LoanActive
	f.loans[loan.ID] = *loan
	item.Status = model.ItemOnLoan
	f.items[item.ID] = item
	f.history = append(f.history, model.HistoryEntry{
		PersonID: loan.PersonID, ItemID: loan.ItemID, LoanID: loan.ID,
		Action: model.HistoryLoan, ActorID: loan.RegisteredBy, ActionAt: time.Now().UTC(),
	})
	return nil
}

func (f *fakeStore) CloseLoan(_ context.Context, loanID, actorID int64, returnDate time.Time) (model.Loan, error) {
	loan, ok := f.loans[loanID]
	if !ok {
		return model.Loan{}, model.ErrNotFound
	}
	if loan.Status == model.LoanReturned {
		return model.Loan{}, model.ErrAlreadyReturned
	}
	loan.Status = model.LoanReturned
	loan.ReturnDate = &returnDate
	loan.ClosedBy = &actorID
	f.loans[loanID] = loan
	item := f.items[loan.ItemID]
	item.Status = model.ItemAvailable
	f.items[item.ID] = item
	f.history = append(f.history, model.HistoryEntry{
		PersonID: loan.PersonID, ItemID: loan.ItemID, LoanID: loan.ID,
		Action: model.HistoryReturn, ActorID: actorID, ActionAt: time.Now().UTC(),
	})
	return loan, nil
}

func (f *fakeStore) ListHistoryByPerson(_ context.Context, personID int64) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	for _, e := range f.history {
		if e.PersonID == personID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (f *fakeStore) SumUnpaidFines(_ context.Context, personID int64) (int64, error) {
	var total int64
	for _, fine := range f.fines {
		if fine.PersonID == personID && !fine.Paid {
			total += fine.Amount
		}
	}
	return total, nil
}

func (f *fakeStore) MarkFinePaid(_ context.Context, fineID int64) error {
	fine, ok := f.fines[fineID]
	if !ok || fine.Paid {
		return model.ErrNotFound
	}
	fine.Paid = true
	f.fines[fineID] = fine
	return nil
}

func (f *fakeStore) ListFinesByPerson(_ context.Context, personID int64) ([]model.Fine, error) {
	var fines []model.Fine
	for _, fine := range f.fines {
		if fine.PersonID == personID {
			fines = append(fines, fine)
		}
	}
	return fines, nil
}

func (f *fakeStore) FindPolicy(_ context.Context, category model.PersonCategory, materialType *string) (model.LoanPolicy, error) {
	for _, rule := range f.policies {
		if rule.Category != category {
			continue
		}
		if rule.MaterialType == nil && materialType == nil {
			return rule, nil
		}
		if rule.MaterialType != nil && materialType != nil && *rule.MaterialType == *materialType {
			return rule, nil
		}
	}
	return model.LoanPolicy{}, model.ErrNotFound
}

func (f *fakeStore) UpsertPolicy(_ context.Context, p model.LoanPolicy) error {
	for i, rule := range f.policies {
		if rule.Category == p.Category && optionalEqual(rule.MaterialType, p.MaterialType) {
			f.policies[i] = p
			return nil
		}
	}
	f.policies = append(f.policies, p)
	return nil
}

func (f *fakeStore) ListPolicies(_ context.Context) ([]model.LoanPolicy, error) {
	return append([]model.LoanPolicy{}, f.policies...), nil
}

func (f *fakeStore) EnrollWaitlist(_ context.Context, e *model.WaitlistEntry) error {
	for _, existing := range f.waitlist {
		if existing.PersonID == e.PersonID && existing.ItemID == e.ItemID && existing.Status == model.WaitlistPending {
			return model.NewPolicyViolation("already on the wait-list for this item")
		}
	}
	f.nextID++
	e.ID = f.nextID
	e.Status = model.WaitlistPending
	e.RequestedAt = time.Now().UTC()
	f.waitlist = append(f.waitlist, *e)
	return nil
}

func (f *fakeStore) CancelWaitlist(_ context.Context, personID, itemID int64) error {
	for i, e := range f.waitlist {
		if e.PersonID == personID && e.ItemID == itemID && e.Status == model.WaitlistPending {
			f.waitlist[i].Status = model.WaitlistCancelled
			return nil
		}
	}
	return model.ErrNotFound
}

func (f *fakeStore) NextPendingWaitlist(_ context.Context, itemID int64) (model.WaitlistEntry, error) {
	for _, e := range f.waitlist {
		if e.ItemID == itemID && e.Status == model.WaitlistPending {
			return e, nil
		}
	}
	return model.WaitlistEntry{}, model.ErrNotFound
}

func (f *fakeStore) ListWaitlistByItem(_ context.Context, itemID int64) ([]model.WaitlistEntry, error) {
	var entries []model.WaitlistEntry
	for _, e := range f.waitlist {
		if e.ItemID == itemID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (f *fakeStore) CreateRefreshSession(_ context.Context, session model.RefreshSession) error {
	f.sessions[session.TokenHash] = session
	return nil
}

func (f *fakeStore) GetRefreshSession(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	session, ok := f.sessions[tokenHash]
	if !ok {
		return model.RefreshSession{}, model.ErrNotFound
	}
	return session, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, id string, at time.Time) error {
	for hash, session := range f.sessions {
		if session.ID == id && session.RevokedAt == nil {
			session.RevokedAt = &at
			f.sessions[hash] = session
		}
	}
	return nil
}

func (f *fakeStore) RevokeRefreshSessionsByPerson(_ context.Context, personID int64, at time.Time) error {
	for hash, session := range f.sessions {
		if session.PersonID == personID && session.RevokedAt == nil {
			session.RevokedAt = &at
			f.sessions[hash] = session
		}
	}
	return nil
}

func optionalEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:       "test-secret",
		JWTIssuer:       "biblioteca-test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
}

func newTestServer(store *fakeStore) *Server {
	cfg := testConfig()
	dir := directory.NewService(store)
	cat := catalog.NewService(store)
	engine := circulation.NewEngine(store, policy.NewResolver(store), nil)
	circ := circulation.NewManager(store, engine, nil)
	return NewServer(cfg, store, dir, cat, circ, nil)
}

func seedLibrarian(store *fakeStore) model.Person {
	hash, _ := crypto.HashPassword("segredo")
	store.nextID++
	person := model.Person{
		ID: store.nextID, CPF: "52998224725", FullName: "Ana Lima",
		Category: model.CategoryLibrarian, Status: model.PersonActive, PasswordHash: &hash,
	}
	store.persons[person.ID] = person
	return person
}

func seedStudent(store *fakeStore) model.Person {
	store.nextID++
	person := model.Person{
		ID: store.nextID, CPF: "11144477735", FullName: "Maria Souza",
		Category: model.CategoryStudent, Status: model.PersonActive,
	}
	store.persons[person.ID] = person
	return person
}

func seedItem(store *fakeStore) model.Item {
	store.nextID++
	item := model.Item{
		ID: store.nextID, Title: "Dom Casmurro", Code: "LIV-001",
		MaterialType: "book", Status: model.ItemAvailable,
	}
	store.items[item.ID] = item
	return item
}

func tokenFor(t *testing.T, person model.Person) string {
	t.Helper()
	cfg := testConfig()
	token, err := auth.NewAccessToken(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, auth.Claims{
		PersonID: person.ID,
		Category: person.Category,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

func TestLoginAndRefresh(t *testing.T) {
	store := newFakeStore()
	librarian := seedLibrarian(store)
	router := newTestServer(store).Router()

	rec := doRequest(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"cpf": librarian.CPF, "password": "errado",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"cpf": librarian.CPF, "password": "segredo",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var loginResp authResponse
	decodeBody(t, rec, &loginResp)
	if loginResp.AccessToken == "" || loginResp.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", loginResp)
	}

	rec = doRequest(t, router, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refreshToken": loginResp.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Refresh rotates the session; the old token is dead.
	rec = doRequest(t, router, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refreshToken": loginResp.RefreshToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated token to be rejected, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	store := newFakeStore()
	router := newTestServer(store).Router()

	rec := doRequest(t, router, http.MethodGet, "/persons/1", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health without auth, got %d", rec.Code)
	}
}

func TestLibrarianGuard(t *testing.T) {
	store := newFakeStore()
	student := seedStudent(store)
	router := newTestServer(store).Router()

	rec := doRequest(t, router, http.MethodPost, "/persons/", tokenFor(t, student), map[string]string{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student, got %d", rec.Code)
	}
}

func TestCreatePerson(t *testing.T) {
	store := newFakeStore()
	librarian := seedLibrarian(store)
	router := newTestServer(store).Router()
	token := tokenFor(t, librarian)

	rec := doRequest(t, router, http.MethodPost, "/persons/", token, map[string]interface{}{
		"cpf": "11144477734", "fullName": "Maria Souza", "birthDate": "1999-03-14", "category": "student",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected checksum rejection, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/persons/", token, map[string]interface{}{
		"cpf": "11144477735", "fullName": "Maria Souza", "birthDate": "1999-03-14", "category": "student",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var person personSummary
	decodeBody(t, rec, &person)
	if person.Status != "active" || person.CPF != "11144477735" {
		t.Fatalf("unexpected person %+v", person)
	}
}

func TestCheckoutAndReturnFlow(t *testing.T) {
	store := newFakeStore()
	librarian := seedLibrarian(store)
	student := seedStudent(store)
	item := seedItem(store)
	router := newTestServer(store).Router()
	token := tokenFor(t, librarian)

	rec := doRequest(t, router, http.MethodPost, "/loans/", token, map[string]int64{
		"personId": student.ID, "itemId": item.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var checkoutResp struct {
		Decision decisionResponse `json:"decision"`
		Loan     loanResponse     `json:"loan"`
	}
	decodeBody(t, rec, &checkoutResp)
	if !checkoutResp.Decision.Approved || checkoutResp.Loan.ID == 0 {
		t.Fatalf("unexpected checkout response %+v", checkoutResp)
	}
	if checkoutResp.Loan.RegisteredBy != librarian.ID {
		t.Fatalf("expected registering librarian, got %d", checkoutResp.Loan.RegisteredBy)
	}

	// A second copy request is rejected with the expected-return date.
	rec = doRequest(t, router, http.MethodPost, "/loans/", token, map[string]int64{
		"personId": librarian.ID, "itemId": item.ID,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var rejected struct {
		Decision decisionResponse `json:"decision"`
	}
	decodeBody(t, rec, &rejected)
	if rejected.Decision.Approved || !rejected.Decision.OnLoan || rejected.Decision.DueDate == "" {
		t.Fatalf("unexpected rejection %+v", rejected)
	}

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/items/%d/availability", item.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("availability: expected 200, got %d", rec.Code)
	}
	var avail availabilityResponse
	decodeBody(t, rec, &avail)
	if avail.State != "on_loan" || avail.DueDate == "" {
		t.Fatalf("unexpected availability %+v", avail)
	}

	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/loans/%d/return", checkoutResp.Loan.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("return: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/loans/%d/return", checkoutResp.Loan.ID), token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double return, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/items/%d/availability", item.ID), token, nil)
	decodeBody(t, rec, &avail)
	if avail.State != "available" {
		t.Fatalf("expected item available after return, got %+v", avail)
	}
}

func TestErrorMapping(t *testing.T) {
	store := newFakeStore()
	librarian := seedLibrarian(store)
	router := newTestServer(store).Router()
	token := tokenFor(t, librarian)

	rec := doRequest(t, router, http.MethodGet, "/persons/999", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/persons/abc", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestUpsertAndListPolicies(t *testing.T) {
	store := newFakeStore()
	librarian := seedLibrarian(store)
	router := newTestServer(store).Router()
	token := tokenFor(t, librarian)

	rec := doRequest(t, router, http.MethodPut, "/policies/", token, map[string]interface{}{
		"category": "student", "materialType": "book", "loanDays": 14, "maxLoans": 3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPut, "/policies/", token, map[string]interface{}{
		"category": "student", "loanDays": 0, "maxLoans": 3,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid policy to be rejected, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/policies/", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var policies []policyResponse
	decodeBody(t, rec, &policies)
	if len(policies) != 1 || policies[0].LoanDays != 14 {
		t.Fatalf("unexpected policies %+v", policies)
	}
}
