package subscriber

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type subscribeRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	sub, err := h.svc.Subscribe(r.Context(), req.Email, req.Source)
	switch {
	case errors.Is(err, ErrInvalidEmail):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email"})
	case errors.Is(err, ErrAlreadySubscribed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already subscribed"})
	case err != nil:
		h.logger.Errorw("subscribe failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "subscribe failed"})
	default:
		writeJSON(w, http.StatusCreated, sub)
	}
}

// Unsubscribe serves DELETE /subscribers/{email}.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Unsubscribe(r.Context(), r.PathValue("email"))
	switch {
	case errors.Is(err, ErrInvalidEmail):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email"})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not subscribed"})
	case err != nil:
		h.logger.Errorw("unsubscribe failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "unsubscribe failed"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Errorw("list subscribers failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
