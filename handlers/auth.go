package handlers

import (
	"net/http"

	"otengine/apperr"
	"otengine/middleware"
	"otengine/models"
	"otengine/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	repo repository.Repository
	auth *middleware.Auth
	log  logrus.FieldLogger
}

func NewAuthHandler(repo repository.Repository, auth *middleware.Auth, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{repo: repo, auth: auth, log: log}
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.repo.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if apperr.IsNotFound(err) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeError(w, h.log, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil || !user.Active {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	token, err := h.auth.GenerateToken(user)
	if err != nil {
		writeError(w, h.log, apperr.Infrastructure(err, "generate token"))
		return
	}

	h.log.WithField("user_id", user.ID).Info("user logged in")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.GetUserFromContext(r.Context()))
}
