package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pollchat/internal/apperr"
	"pollchat/internal/respond"
)

type Handler struct {
	Service *Service
	log     *slog.Logger
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return &Handler{Service: s, log: logger.With("component", "user.handler")}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Registration failed")
		return
	}

	_, err := h.Service.Register(r.Context(), &req)
	switch {
	case err == nil:
		respond.Message(w, http.StatusCreated, "Registration successful")
	case errors.Is(err, apperr.ErrValidation):
		respond.Error(w, http.StatusBadRequest, "Registration failed")
	case errors.Is(err, apperr.ErrDuplicateUser):
		respond.Error(w, http.StatusConflict, "User already exists")
	default:
		h.log.Error("register failed", "err", err)
		respond.Error(w, http.StatusInternalServerError, "Registration failed")
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Login failed")
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		if !errors.Is(err, apperr.ErrLoginFailed) {
			h.log.Error("login failed", "err", err)
		}
		// same answer for every failure so usernames cannot be probed
		respond.Error(w, http.StatusUnauthorized, "Login failed")
		return
	}

	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Message(w, http.StatusBadRequest, "Logout failed")
		return
	}

	err := h.Service.Logout(r.Context(), req.ID)
	switch {
	case err == nil:
		respond.Message(w, http.StatusOK, "Logout successful")
	case errors.Is(err, apperr.ErrValidation):
		respond.Message(w, http.StatusBadRequest, "Logout failed")
	case errors.Is(err, apperr.ErrUnknownUser):
		respond.Message(w, http.StatusNotFound, "Logout failed")
	default:
		h.log.Error("logout failed", "err", err)
		respond.Message(w, http.StatusInternalServerError, "Logout failed")
	}
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context())
	if err != nil {
		h.log.Error("list users failed", "err", err)
		respond.Error(w, http.StatusInternalServerError, "Could not list users")
		return
	}
	respond.JSON(w, http.StatusOK, users)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Service.ListSessions(r.Context())
	if err != nil {
		h.log.Error("list sessions failed", "err", err)
		respond.Error(w, http.StatusInternalServerError, "Could not list sessions")
		return
	}
	respond.JSON(w, http.StatusOK, sessions)
}
