package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/yslanlopes12/biblioteca-sistema/internal/circulation"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

type loanResponse struct {
	ID           int64  `json:"id"`
	PersonID     int64  `json:"personId"`
	ItemID       int64  `json:"itemId"`
	LoanDate     string `json:"loanDate"`
	DueDate      string `json:"dueDate"`
	ReturnDate   string `json:"returnDate,omitempty"`
	Status       string `json:"status"`
	RegisteredBy int64  `json:"registeredBy"`
	ClosedBy     *int64 `json:"closedBy,omitempty"`
}

func mapLoanResponse(loan model.Loan) loanResponse {
	resp := loanResponse{
		ID:           loan.ID,
		PersonID:     loan.PersonID,
		ItemID:       loan.ItemID,
		LoanDate:     loan.LoanDate.Format(dateLayout),
		DueDate:      loan.DueDate.Format(dateLayout),
		Status:       string(loan.Status),
		RegisteredBy: loan.RegisteredBy,
		ClosedBy:     loan.ClosedBy,
	}
	if loan.ReturnDate != nil {
		resp.ReturnDate = loan.ReturnDate.Format(dateLayout)
	}
	return resp
}

func mapLoanResponses(loans []model.Loan) []loanResponse {
	resp := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		resp = append(resp, mapLoanResponse(loan))
	}
	return resp
}

type decisionResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
	DueDate  string `json:"dueDate,omitempty"`
	OnLoan   bool   `json:"onLoan,omitempty"`
}

func mapDecisionResponse(d circulation.Decision) decisionResponse {
	resp := decisionResponse{
		Approved: d.Approved,
		Reason:   d.Reason,
		OnLoan:   d.OnLoan,
	}
	if !d.DueDate.IsZero() {
		resp.DueDate = d.DueDate.Format(dateLayout)
	}
	return resp
}

type checkoutRequest struct {
	PersonID int64 `json:"personId"`
	ItemID   int64 `json:"itemId"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.PersonID <= 0 || req.ItemID <= 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	loan, decision, err := s.circulation.Checkout(r.Context(), req.PersonID, req.ItemID, claims.PersonID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !decision.Approved {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":    "loan_refused",
			"reason":   decision.Reason,
			"decision": mapDecisionResponse(decision),
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"decision": mapDecisionResponse(decision),
		"loan":     mapLoanResponse(loan),
	})
}

// handleEligibilityCheck runs the checklist without committing anything, so
// the front desk can answer "could this person borrow this item" questions.
func (s *Server) handleEligibilityCheck(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.PersonID <= 0 || req.ItemID <= 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	decision, err := s.circulation.Check(r.Context(), req.PersonID, req.ItemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDecisionResponse(decision))
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	var personID int64
	if raw := r.URL.Query().Get("personId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_person_id")
			return
		}
		personID = parsed
	}

	loans, err := s.circulation.ActiveLoans(r.Context(), personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapLoanResponses(loans))
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	loanID, ok := pathID(w, r, "loanID")
	if !ok {
		return
	}

	loan, next, err := s.circulation.Return(r.Context(), loanID, claims.PersonID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"loan": mapLoanResponse(loan)}
	if next != nil {
		resp["nextWaitlisted"] = mapWaitlistEntry(*next)
	}
	writeJSON(w, http.StatusOK, resp)
}

type enrollWaitlistRequest struct {
	PersonID int64 `json:"personId"`
}

func (s *Server) handleEnrollWaitlist(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	var req enrollWaitlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	personID := req.PersonID
	if personID == 0 {
		personID = claims.PersonID
	}
	// Non-staff may only enroll themselves.
	if personID != claims.PersonID && claims.Category != model.CategoryLibrarian {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	entry, err := s.circulation.EnrollWaitlist(r.Context(), personID, itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapWaitlistEntry(entry))
}

func (s *Server) handleCancelWaitlist(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	if personID != claims.PersonID && claims.Category != model.CategoryLibrarian {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := s.store.CancelWaitlist(r.Context(), personID, itemID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handlePayFine(w http.ResponseWriter, r *http.Request) {
	fineID, ok := pathID(w, r, "fineID")
	if !ok {
		return
	}
	if err := s.store.MarkFinePaid(r.Context(), fineID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}

type policyResponse struct {
	Category     string  `json:"category"`
	MaterialType *string `json:"materialType,omitempty"`
	LoanDays     int     `json:"loanDays"`
	MaxLoans     int     `json:"maxLoans"`
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.store.ListPolicies(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]policyResponse, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, policyResponse{
			Category:     string(p.Category),
			MaterialType: p.MaterialType,
			LoanDays:     p.LoanDays,
			MaxLoans:     p.MaxLoans,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type upsertPolicyRequest struct {
	Category     string  `json:"category"`
	MaterialType *string `json:"materialType,omitempty"`
	LoanDays     int     `json:"loanDays"`
	MaxLoans     int     `json:"maxLoans"`
}

func (s *Server) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	var req upsertPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	category, ok := model.ParsePersonCategory(strings.TrimSpace(req.Category))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_category")
		return
	}
	if req.LoanDays <= 0 || req.MaxLoans <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_policy_values")
		return
	}
	if req.MaterialType != nil {
		trimmed := strings.TrimSpace(strings.ToLower(*req.MaterialType))
		if trimmed == "" {
			req.MaterialType = nil
		} else {
			req.MaterialType = &trimmed
		}
	}

	policy := model.LoanPolicy{
		Category:     category,
		MaterialType: req.MaterialType,
		LoanDays:     req.LoanDays,
		MaxLoans:     req.MaxLoans,
	}
	if err := s.store.UpsertPolicy(r.Context(), policy); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policyResponse{
		Category:     string(policy.Category),
		MaterialType: policy.MaterialType,
		LoanDays:     policy.LoanDays,
		MaxLoans:     policy.MaxLoans,
	})
}
