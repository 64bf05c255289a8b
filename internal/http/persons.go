package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yslanlopes12/biblioteca-sistema/internal/directory"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

const dateLayout = "2006-01-02"

type personSummary struct {
	ID                 int64   `json:"id"`
	CPF                string  `json:"cpf"`
	FullName           string  `json:"fullName"`
	BirthDate          string  `json:"birthDate"`
	Phone              string  `json:"phone,omitempty"`
	Address            string  `json:"address,omitempty"`
	Category           string  `json:"category"`
	Email              *string `json:"email,omitempty"`
	RegistrationNumber *string `json:"registrationNumber,omitempty"`
	Department         *string `json:"department,omitempty"`
	Status             string  `json:"status"`
}

func mapPersonSummary(p model.Person) personSummary {
	return personSummary{
		ID:                 p.ID,
		CPF:                p.CPF,
		FullName:           p.FullName,
		BirthDate:          p.BirthDate.Format(dateLayout),
		Phone:              p.Phone,
		Address:            p.Address,
		Category:           string(p.Category),
		Email:              p.Email,
		RegistrationNumber: p.RegistrationNumber,
		Department:         p.Department,
		Status:             string(p.Status),
	}
}

type createPersonRequest struct {
	CPF                string  `json:"cpf"`
	FullName           string  `json:"fullName"`
	BirthDate          string  `json:"birthDate"`
	Phone              string  `json:"phone"`
	Address            string  `json:"address"`
	Category           string  `json:"category"`
	Email              *string `json:"email,omitempty"`
	RegistrationNumber *string `json:"registrationNumber,omitempty"`
	Department         *string `json:"department,omitempty"`
	Password           string  `json:"password,omitempty"`
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req createPersonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	category, ok := model.ParsePersonCategory(strings.TrimSpace(req.Category))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_category")
		return
	}
	birthDate, err := time.Parse(dateLayout, req.BirthDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_birth_date")
		return
	}

	person, err := s.directory.Create(r.Context(), directory.CreateInput{
		CPF:                strings.TrimSpace(req.CPF),
		FullName:           strings.TrimSpace(req.FullName),
		BirthDate:          birthDate,
		Phone:              strings.TrimSpace(req.Phone),
		Address:            strings.TrimSpace(req.Address),
		Category:           category,
		Email:              req.Email,
		RegistrationNumber: req.RegistrationNumber,
		Department:         req.Department,
		Password:           req.Password,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapPersonSummary(person))
}

// handleSearchPersons resolves ?cpf=, ?registration= or ?name= lookups. The
// first two return at most one match; the name search returns every match and
// leaves disambiguation to the caller.
func (s *Server) handleSearchPersons(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if value := strings.TrimSpace(query.Get("cpf")); value != "" {
		person, err := s.directory.ByCPF(r.Context(), value)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []personSummary{mapPersonSummary(person)})
		return
	}
	if value := strings.TrimSpace(query.Get("registration")); value != "" {
		person, err := s.directory.ByRegistration(r.Context(), value)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []personSummary{mapPersonSummary(person)})
		return
	}
	if value := strings.TrimSpace(query.Get("name")); value != "" {
		persons, err := s.directory.ByName(r.Context(), value)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]personSummary, 0, len(persons))
		for _, person := range persons {
			resp = append(resp, mapPersonSummary(person))
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeError(w, http.StatusBadRequest, "missing_search_term")
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	person, err := s.directory.ByID(r.Context(), personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPersonSummary(person))
}

type patchPersonRequest struct {
	FullName           *string `json:"fullName,omitempty"`
	BirthDate          *string `json:"birthDate,omitempty"`
	Phone              *string `json:"phone,omitempty"`
	Address            *string `json:"address,omitempty"`
	Category           *string `json:"category,omitempty"`
	Email              *string `json:"email,omitempty"`
	RegistrationNumber *string `json:"registrationNumber,omitempty"`
	Department         *string `json:"department,omitempty"`
	Password           *string `json:"password,omitempty"`
}

func (s *Server) handlePatchPerson(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	claims := claimsFromContext(r.Context())

	var req patchPersonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	patch := directory.UpdatePatch{
		FullName:           req.FullName,
		Phone:              req.Phone,
		Address:            req.Address,
		Email:              req.Email,
		RegistrationNumber: req.RegistrationNumber,
		Department:         req.Department,
		Password:           req.Password,
	}
	if req.BirthDate != nil {
		birthDate, err := time.Parse(dateLayout, *req.BirthDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_birth_date")
			return
		}
		patch.BirthDate = &birthDate
	}
	if req.Category != nil {
		category, ok := model.ParsePersonCategory(strings.TrimSpace(*req.Category))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_category")
			return
		}
		patch.Category = &category
	}

	changed, err := s.directory.Update(r.Context(), personID, patch, claims.PersonID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	person, err := s.directory.ByID(r.Context(), personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"changed": changed,
		"person":  mapPersonSummary(person),
	})
}

type setStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleSetPersonStatus(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	claims := claimsFromContext(r.Context())

	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	status := model.PersonStatus(strings.TrimSpace(req.Status))
	if status != model.PersonActive && status != model.PersonInactive {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	if err := s.directory.SetStatus(r.Context(), personID, status, strings.TrimSpace(req.Reason), claims.PersonID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type auditEntryResponse struct {
	Field      string  `json:"field"`
	OldValue   string  `json:"oldValue"`
	NewValue   string  `json:"newValue"`
	ActorID    int64   `json:"actorId"`
	Reason     *string `json:"reason,omitempty"`
	RecordedAt string  `json:"recordedAt"`
}

func (s *Server) handlePersonAudit(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	entries, err := s.directory.Audit(r.Context(), personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, auditEntryResponse{
			Field:      entry.Field,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			ActorID:    entry.ActorID,
			Reason:     entry.Reason,
			RecordedAt: entry.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyEntryResponse struct {
	ItemID   int64  `json:"itemId"`
	LoanID   int64  `json:"loanId"`
	Action   string `json:"action"`
	ActionAt string `json:"actionAt"`
	ActorID  int64  `json:"actorId"`
}

func (s *Server) handlePersonHistory(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	entries, err := s.store.ListHistoryByPerson(r.Context(), personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]historyEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, historyEntryResponse{
			ItemID:   entry.ItemID,
			LoanID:   entry.LoanID,
			Action:   string(entry.Action),
			ActionAt: entry.ActionAt.UTC().Format(time.RFC3339),
			ActorID:  entry.ActorID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type fineResponse struct {
	ID        int64  `json:"id"`
	PersonID  int64  `json:"personId"`
	LoanID    *int64 `json:"loanId,omitempty"`
	Amount    int64  `json:"amountCents"`
	Paid      bool   `json:"paid"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) handlePersonFines(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	fines, err := s.store.ListFinesByPerson(r.Context(), personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]fineResponse, 0, len(fines))
	for _, fine := range fines {
		resp = append(resp, fineResponse{
			ID:        fine.ID,
			PersonID:  fine.PersonID,
			LoanID:    fine.LoanID,
			Amount:    fine.Amount,
			Paid:      fine.Paid,
			CreatedAt: fine.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePersonLoans(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	loans, err := s.circulation.ActiveLoans(r.Context(), personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapLoanResponses(loans))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	return id, true
}
