package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/maltlabs/malt-bridge/internal/api/problem"
	"github.com/maltlabs/malt-bridge/internal/domain"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondDomainError maps a settlement failure kind to its HTTP shape. The
// message intentionally carries no chain internals beyond the typed
// message text.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status, slug := domainStatus(kind)

	message := "unexpected server error"
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	RespondError(w, r, status, slug, message)
}

func domainStatus(kind domain.ErrorKind) (int, string) {
	switch kind {
	case domain.KindReferenceNotFound:
		return http.StatusNotFound, "settlement/reference-not-found"
	case domain.KindNotConfirmed:
		return http.StatusConflict, "settlement/not-confirmed"
	case domain.KindAlreadySettled:
		return http.StatusConflict, "settlement/already-settled"
	case domain.KindOnChainFailure:
		return http.StatusUnprocessableEntity, "settlement/on-chain-failure"
	case domain.KindNoQualifyingTransfer:
		return http.StatusUnprocessableEntity, "settlement/no-qualifying-transfer"
	case domain.KindAssetMismatch:
		return http.StatusUnprocessableEntity, "settlement/asset-mismatch"
	case domain.KindUnresolvedPrecision:
		return http.StatusUnprocessableEntity, "settlement/unresolved-precision"
	case domain.KindInvalidAmount:
		return http.StatusUnprocessableEntity, "settlement/invalid-amount"
	case domain.KindCapExceeded:
		return http.StatusUnprocessableEntity, "settlement/cap-exceeded"
	case domain.KindRateUnavailable:
		return http.StatusServiceUnavailable, "settlement/rate-unavailable"
	case domain.KindSubmissionFailed:
		return http.StatusBadGateway, "settlement/submission-failed"
	case domain.KindConfirmationTimeout:
		return http.StatusGatewayTimeout, "settlement/confirmation-timeout"
	default:
		return http.StatusInternalServerError, "internal-server-error"
	}
}
