package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
)

type UserHandler struct {
	userService services.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *UserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/me", h.GetCurrentUser).Methods("GET")
	router.HandleFunc("/users", h.CreateUser).Methods("POST")
}

// GetCurrentUser returns the authenticated user
func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.userService.GetUser(r.Context(), uid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "user fetched", user)
}

// CreateUser lets an admin add a user
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req models.CreateUserRequest
	if _, err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.userService.CreateUser(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user created", zap.Uint("by", uid), zap.String("username", user.Username))
	writeCreated(w, "user created", user)
}
