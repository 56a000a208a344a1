package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
	"github.com/vikasavnish/botbridge/internal/validation"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService services.AuthService
	validate    *validation.Validator
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService services.AuthService, v *validation.Validator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    v,
		logger:      logger,
	}
}

// Login handles user login and returns a JWT token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if _, err := decodeBody(r, &loginReq); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(loginReq); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// Authenticate the user
	user, err := h.authService.Authenticate(r.Context(), loginReq.Username, loginReq.Password)
	if err != nil {
		h.logger.Info("login rejected", zap.String("username", loginReq.Username))
		writeJSON(w, http.StatusUnauthorized, models.Response{Success: false, Message: "invalid credentials"})
		return
	}

	// Generate token
	tokenString, err := h.authService.GenerateToken(user)
	if err != nil {
		h.logger.Error("sign token", zap.Uint("user_id", user.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.Response{Success: false, Message: "could not generate token"})
		return
	}

	writeJSON(w, http.StatusOK, models.TokenResponse{
		AccessToken: tokenString,
		TokenType:   "bearer",
	})
}
