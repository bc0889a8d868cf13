package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/settlement"
)

// Settler runs the verify-convert-settle pipeline for one payment reference.
type Settler interface {
	SettleNative(ctx context.Context, ref domain.PaymentReference) (*settlement.Result, error)
	SettleToken(ctx context.Context, ref domain.PaymentReference, symbol string) (*settlement.Result, error)
}

type PurchaseHandler struct {
	settler  Settler
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPurchaseHandler(settler Settler, logger *zap.Logger) *PurchaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseHandler{
		settler:  settler,
		validate: validator.New(),
		logger:   logger,
	}
}

type purchaseRequest struct {
	Reference string `json:"tx_signature" validate:"required,min=32,max=128"`
	Asset     string `json:"asset" validate:"omitempty,alphanum,max=12"`
}

type purchaseResponse struct {
	Reference  string    `json:"reference"`
	Payer      string    `json:"payer"`
	Asset      string    `json:"asset"`
	Gross      string    `json:"gross"`
	Rate       string    `json:"rate"`
	RateSource string    `json:"rate_source"`
	Output     string    `json:"output"`
	Outbound   string    `json:"outbound_signature"`
	SettledAt  time.Time `json:"settled_at"`
}

// Purchase settles a native-coin payment.
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, false)
	if !ok {
		return
	}

	res, err := h.settler.SettleNative(r.Context(), domain.PaymentReference(req.Reference))
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, toResponse(res))
}

// PurchaseToken settles an SPL-token payment of an accepted asset.
func (h *PurchaseHandler) PurchaseToken(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, true)
	if !ok {
		return
	}

	res, err := h.settler.SettleToken(r.Context(), domain.PaymentReference(req.Reference), req.Asset)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, toResponse(res))
}

func (h *PurchaseHandler) decode(w http.ResponseWriter, r *http.Request, requireAsset bool) (*purchaseRequest, bool) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return nil, false
	}
	if err := h.validate.Struct(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-fields", "tx_signature must be a transaction signature")
		return nil, false
	}
	if requireAsset && req.Asset == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-fields", "asset is required")
		return nil, false
	}
	return &req, true
}

func toResponse(res *settlement.Result) purchaseResponse {
	return purchaseResponse{
		Reference:  res.Receipt.Reference.String(),
		Payer:      res.Receipt.Payer.String(),
		Asset:      res.Payment.Asset,
		Gross:      res.Payment.Gross.String(),
		Rate:       res.Conversion.Rate.String(),
		RateSource: string(res.Conversion.Source),
		Output:     res.Conversion.Output.String(),
		Outbound:   res.Receipt.Outbound.String(),
		SettledAt:  res.Receipt.SettledAt,
	}
}
