package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"CoopLedgerSaas/api/constants"
	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/logger"

	"go.uber.org/zap"
)

// RespondWithError logs the internal error and writes the standard
// {"success":false,"message":...} body. An empty userMsg or a zero code are
// derived from err's kind.
func RespondWithError(w http.ResponseWriter, err error, userMsg string, code int) {
	if code == 0 {
		code = errs.HTTPStatus(err)
	}
	if userMsg == "" && err != nil {
		userMsg = errs.UserMessage(err)
	}
	if userMsg == "" {
		userMsg = "Internal server error"
	}
	if err != nil {
		if code >= http.StatusInternalServerError {
			logger.L().Error("request failed", zap.Int("status", code), zap.Error(err))
		} else {
			logger.L().Info("request rejected", zap.Int("status", code), zap.String("reason", userMsg))
		}
	}
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": userMsg})
}

// RespondWithErr maps err to its status code and user message.
func RespondWithErr(w http.ResponseWriter, err error) {
	RespondWithError(w, err, "", 0)
}

// RespondWithJSON writes payload as the response body.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L().Warn("encode response", zap.Error(err))
	}
}

// RespondWithResult writes {"success":true}.
func RespondWithResult(w http.ResponseWriter) {
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// DecodeJSON reads a JSON request body into v. An empty body leaves v as is.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errs.Validation("%s: %v", constants.ErrInvalidRequestBody, err)
	}
	return nil
}
