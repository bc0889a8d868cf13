package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/repository"
)

// AdminHandler exposes operator views over the settlement store.
type AdminHandler struct {
	repo *repository.Settlements
}

func NewAdminHandler(repo *repository.Settlements) *AdminHandler {
	return &AdminHandler{repo: repo}
}

type settlementResponse struct {
	Reference  string    `json:"reference"`
	Asset      string    `json:"asset"`
	Payer      string    `json:"payer,omitempty"`
	Gross      string    `json:"gross"`
	Rate       string    `json:"rate"`
	RateSource string    `json:"rate_source,omitempty"`
	Output     string    `json:"output"`
	Outbound   string    `json:"outbound_signature,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var listableStatuses = map[string]struct{}{
	domain.SettlementReserved:  {},
	domain.SettlementSettled:   {},
	domain.SettlementUncertain: {},
	domain.SettlementFailed:    {},
}

// ListSettlements returns settlements filtered by status, UNCERTAIN by
// default so the reconciliation backlog is one request away.
func (h *AdminHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = domain.SettlementUncertain
	}
	if _, ok := listableStatuses[status]; !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-fields", "unknown settlement status")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-fields", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	records, err := h.repo.ListByStatus(r.Context(), status, limit)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "could not list settlements")
		return
	}

	out := make([]settlementResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toSettlementResponse(rec))
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"settlements": out,
	})
}

// GetSettlement returns one settlement by payment reference.
func (h *AdminHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	rec, err := h.repo.Get(r.Context(), domain.PaymentReference(ref))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(w, r, http.StatusNotFound, "settlement/reference-not-found", "no settlement for this reference")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "could not load settlement")
		return
	}
	RespondJSON(w, http.StatusOK, toSettlementResponse(*rec))
}

func toSettlementResponse(rec domain.Settlement) settlementResponse {
	return settlementResponse{
		Reference:  rec.Reference.String(),
		Asset:      rec.Asset,
		Payer:      rec.Payer,
		Gross:      rec.Gross.String(),
		Rate:       rec.Rate.String(),
		RateSource: string(rec.RateSource),
		Output:     rec.Output.String(),
		Outbound:   rec.Outbound,
		Status:     rec.Status,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}
