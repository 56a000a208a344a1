package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
	"github.com/vikasavnish/botbridge/internal/validation"
)

// AccountHandler manages the brokerage accounts a user may address.
type AccountHandler struct {
	accountService services.AccountService
	validate       *validation.Validator
	logger         *zap.Logger
}

func NewAccountHandler(accountService services.AccountService, v *validation.Validator, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		validate:       v,
		logger:         logger,
	}
}

func (h *AccountHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	router.HandleFunc("/accounts", h.RegisterAccount).Methods("POST")
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	accounts, err := h.accountService.ListAccounts(r.Context(), uid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "accounts fetched", accounts)
}

func (h *AccountHandler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req models.RegisterAccountRequest
	if _, err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := h.accountService.RegisterAccount(r.Context(), uid, req.AccountNumber, req.Broker)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("account registered", zap.Uint("user_id", uid), zap.String("account", account.AccountNumber))
	writeCreated(w, "account registered", account)
}
