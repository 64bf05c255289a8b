package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

type itemResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author,omitempty"`
	Code         string `json:"code"`
	MaterialType string `json:"materialType"`
	Status       string `json:"status"`
	Restricted   bool   `json:"restricted"`
}

func mapItemResponse(it model.Item) itemResponse {
	return itemResponse{
		ID:           it.ID,
		Title:        it.Title,
		Author:       it.Author,
		Code:         it.Code,
		MaterialType: it.MaterialType,
		Status:       string(it.Status),
		Restricted:   it.Restricted,
	}
}

type createItemRequest struct {
	Title        string `json:"title"`
	Author       string `json:"author"`
	Code         string `json:"code"`
	MaterialType string `json:"materialType"`
	Restricted   bool   `json:"restricted"`
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Code = strings.TrimSpace(req.Code)
	req.MaterialType = strings.TrimSpace(strings.ToLower(req.MaterialType))
	if req.Title == "" || req.Code == "" || req.MaterialType == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	item := model.Item{
		Title:        req.Title,
		Author:       strings.TrimSpace(req.Author),
		Code:         req.Code,
		MaterialType: req.MaterialType,
		Status:       model.ItemAvailable,
		Restricted:   req.Restricted,
	}
	if err := s.store.CreateItem(r.Context(), &item); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapItemResponse(item))
}

func (s *Server) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if code := strings.TrimSpace(query.Get("code")); code != "" {
		item, err := s.store.GetItemByCode(r.Context(), code)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []itemResponse{mapItemResponse(item)})
		return
	}
	if title := strings.TrimSpace(query.Get("title")); title != "" {
		items, err := s.store.SearchItemsByTitle(r.Context(), title)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]itemResponse, 0, len(items))
		for _, item := range items {
			resp = append(resp, mapItemResponse(item))
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeError(w, http.StatusBadRequest, "missing_search_term")
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	item, err := s.store.GetItem(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapItemResponse(item))
}

type patchItemRequest struct {
	Title        *string `json:"title,omitempty"`
	Author       *string `json:"author,omitempty"`
	MaterialType *string `json:"materialType,omitempty"`
	Status       *string `json:"status,omitempty"`
	Restricted   *bool   `json:"restricted,omitempty"`
}

func (s *Server) handlePatchItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	var req patchItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	item, err := s.store.GetItem(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		item.Title = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		item.Author = strings.TrimSpace(*req.Author)
	}
	if req.MaterialType != nil && strings.TrimSpace(*req.MaterialType) != "" {
		item.MaterialType = strings.TrimSpace(strings.ToLower(*req.MaterialType))
	}
	if req.Restricted != nil {
		item.Restricted = *req.Restricted
	}
	if req.Status != nil {
		status := model.ItemStatus(strings.TrimSpace(*req.Status))
		// The on_loan flag is owned by the loan lifecycle; staff may only
		// move an item between available and maintenance.
		if status != model.ItemAvailable && status != model.ItemMaintenance {
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
		if item.Status == model.ItemOnLoan {
			writeError(w, http.StatusConflict, "item_on_loan")
			return
		}
		item.Status = status
	}

	if err := s.store.UpdateItem(r.Context(), item); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapItemResponse(item))
}

type availabilityResponse struct {
	State   string `json:"state"`
	DueDate string `json:"dueDate,omitempty"`
}

func (s *Server) handleItemAvailability(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	availability, err := s.catalog.Availability(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := availabilityResponse{State: string(availability.State)}
	if availability.DueDate != nil {
		resp.DueDate = availability.DueDate.Format(dateLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}

type waitlistEntryResponse struct {
	ID          int64  `json:"id"`
	PersonID    int64  `json:"personId"`
	ItemID      int64  `json:"itemId"`
	RequestedAt string `json:"requestedAt"`
	Status      string `json:"status"`
}

func mapWaitlistEntry(e model.WaitlistEntry) waitlistEntryResponse {
	resp := waitlistEntryResponse{
		ID:       e.ID,
		PersonID: e.PersonID,
		ItemID:   e.ItemID,
		Status:   string(e.Status),
	}
	if !e.RequestedAt.IsZero() {
		resp.RequestedAt = e.RequestedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleListWaitlist(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	entries, err := s.store.ListWaitlistByItem(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]waitlistEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, mapWaitlistEntry(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}
