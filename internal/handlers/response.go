package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
	"github.com/vikasavnish/botbridge/internal/utils"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, models.Response{Success: true, Message: message, Data: data})
}

func writeCreated(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusCreated, models.Response{Success: true, Message: message, Data: data})
}

// writeError maps err onto its status code. Internal causes are logged, not
// returned.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	resp := models.Response{Success: false, Message: apperr.PublicMessage(err)}
	var e *apperr.Error
	if errors.As(err, &e) && len(e.Fields) > 0 {
		resp.Fields = e.Fields
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// decodeBody unmarshals the JSON body into dst and also returns the
// accountNumber it carries, if any.
func decodeBody(r *http.Request, dst interface{}) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return "", apperr.Validation("unreadable request body")
	}
	if len(b) == 0 {
		return "", apperr.Validation("request body required")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return "", apperr.Validation("invalid JSON body: %s", err.Error())
	}
	var envelope struct {
		AccountNumber string `json:"accountNumber"`
	}
	_ = json.Unmarshal(b, &envelope)
	return envelope.AccountNumber, nil
}

func userID(r *http.Request) (uint, error) {
	id, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		return 0, apperr.Forbidden("not authenticated")
	}
	return id, nil
}

// resolver turns the authenticated user and a requested account into a
// namespace.
type resolver struct {
	accounts services.AccountDirectory
}

// namespace resolves account, falling back to the accountNumber query
// parameter.
func (rv resolver) namespace(r *http.Request, account string) (keyspace.Namespace, error) {
	uid, err := userID(r)
	if err != nil {
		return keyspace.Namespace{}, err
	}
	if account == "" {
		account = r.URL.Query().Get("accountNumber")
	}
	return services.ResolveNamespace(r.Context(), rv.accounts, uid, account)
}

func pathIndex(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || idx < 0 {
		return 0, apperr.Validation("spot add index must be a non-negative integer")
	}
	return idx, nil
}
