package api

import (
	"encoding/json"
	"net/http"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/logging"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a client-safe message. Unexpected
// errors are logged with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: apperrors.UserMessage(err), Code: errorCode(err)})
}

func errorCode(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrInputValidation):
		return "validation_error"
	case apperrors.Is(err, apperrors.ErrSymbolNotFound):
		return "symbol_not_found"
	case apperrors.Is(err, apperrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case apperrors.Is(err, apperrors.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case apperrors.Is(err, apperrors.ErrTransactionAborted):
		return "transaction_aborted"
	case apperrors.Is(err, apperrors.ErrNotAuthenticated):
		return "unauthorized"
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError("body", nil, "malformed JSON: "+err.Error())
	}
	return nil
}
