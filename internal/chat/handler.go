package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pollchat/internal/apperr"
	myMiddleware "pollchat/internal/middleware"
	"pollchat/internal/respond"
)

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     logger.With("component", "chat.handler"),
	}
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid parameters")
		return
	}
	if !h.allowedAs(r, req.FromID) {
		respond.Error(w, http.StatusForbidden, "Cannot send as another user")
		return
	}

	m, err := h.service.Send(r.Context(), req)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, SendResponse{ID: m.ID})
	case errors.Is(err, apperr.ErrValidation):
		respond.Error(w, http.StatusBadRequest, "Invalid parameters")
	case errors.Is(err, apperr.ErrInvalidReference):
		respond.Error(w, http.StatusUnprocessableEntity, "Unknown sender or recipient")
	default:
		h.log.Error("send message failed", "from_id", req.FromID, "to_id", req.ToID, "err", err)
		respond.Error(w, http.StatusInternalServerError, "Message sending failed")
	}
}

func (h *Handler) AllMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.AllMessages(r.Context())
	if err != nil {
		h.log.Error("list messages failed", "err", err)
		respond.Error(w, http.StatusInternalServerError, "Could not load messages")
		return
	}
	respond.JSON(w, http.StatusOK, msgs)
}

func (h *Handler) ReceivedMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := respond.QueryID(r)
	if !ok {
		respond.Error(w, http.StatusBadRequest, "Invalid parameters")
		return
	}
	msgs, err := h.service.ReceivedMessages(r.Context(), id)
	if err != nil {
		h.log.Error("list received messages failed", "user_id", id, "err", err)
		respond.Error(w, http.StatusInternalServerError, "Could not load messages")
		return
	}
	respond.JSON(w, http.StatusOK, msgs)
}

func (h *Handler) ConversationsByUser(w http.ResponseWriter, r *http.Request) {
	id, ok := respond.QueryID(r)
	if !ok {
		respond.Error(w, http.StatusBadRequest, "Invalid parameters")
		return
	}
	convs, err := h.service.Conversations(r.Context(), id)
	if err != nil {
		h.log.Error("build conversations failed", "user_id", id, "err", err)
		respond.Error(w, http.StatusInternalServerError, "Could not load messages")
		return
	}
	respond.JSON(w, http.StatusOK, convs)
}

func (h *Handler) RecentMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := respond.QueryID(r)
	if !ok {
		respond.Error(w, http.StatusBadRequest, "Invalid parameters")
		return
	}
	msgs, err := h.service.RecentMessages(r.Context(), id)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, msgs)
	case errors.Is(err, apperr.ErrUnknownUser):
		respond.Error(w, http.StatusNotFound, "No active session")
	default:
		h.log.Error("recent messages failed", "user_id", id, "err", err)
		respond.Error(w, http.StatusInternalServerError, "Could not load messages")
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.service.Hub().Stats())
}

// MessageStream pushes newly delivered messages over Server-Sent Events.
func (h *Handler) MessageStream(w http.ResponseWriter, r *http.Request) {
	st, ok := h.openStream(w, r)
	if !ok {
		return
	}
	h.service.Hub().Serve(st, newSSESink(w, r))
}

// MessageStreamWS is the WebSocket flavour of MessageStream.
func (h *Handler) MessageStreamWS(w http.ResponseWriter, r *http.Request) {
	st, ok := h.openStream(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		h.service.Hub().Abandon(st)
		return
	}

	client := newClient(conn, h.service.Hub().PingInterval(), h.log)
	defer client.Close()
	h.service.Hub().Serve(st, client)
}

// openStream performs the checks that must happen before any stream bytes are
// written: a valid id, permission, and a known recipient.
func (h *Handler) openStream(w http.ResponseWriter, r *http.Request) (*Stream, bool) {
	id, ok := respond.QueryID(r)
	if !ok {
		respond.Error(w, http.StatusBadRequest, "Invalid parameters")
		return nil, false
	}
	if !h.allowedAs(r, id) {
		respond.Error(w, http.StatusForbidden, "Cannot subscribe for another user")
		return nil, false
	}

	st, err := h.service.Hub().Open(r.Context(), id)
	switch {
	case err == nil:
		return st, true
	case errors.Is(err, apperr.ErrUnknownUser):
		respond.Error(w, http.StatusNotFound, "Unknown user")
	case errors.Is(err, ErrHubClosed):
		respond.Error(w, http.StatusServiceUnavailable, "Server is shutting down")
	default:
		h.log.Error("open stream failed", "recipient_id", id, "err", err)
		respond.Error(w, http.StatusInternalServerError, "Could not open stream")
	}
	return nil, false
}

// allowedAs reports whether the caller may act for userID. Without auth
// middleware in front there is no identity and everything is allowed.
func (h *Handler) allowedAs(r *http.Request, userID int) bool {
	authID, ok := myMiddleware.UserIDFromContext(r.Context())
	return !ok || authID == userID
}
