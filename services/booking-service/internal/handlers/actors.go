package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hourbook/hourbook/services/booking-service/internal/directory"
	"github.com/hourbook/hourbook/services/booking-service/internal/notify"
)

type ActorHandler struct {
	repo   *directory.Repository
	sink   *notify.Sink
	logger *slog.Logger
}

func NewActorHandler(repo *directory.Repository, sink *notify.Sink, logger *slog.Logger) *ActorHandler {
	return &ActorHandler{repo: repo, sink: sink, logger: logger}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider bool   `json:"provider"`
}

type actorResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Provider bool   `json:"provider"`
}

func (h *ActorHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "ValidationError", "name and a valid email required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "ValidationError", "password must be at least 6 characters")
		return
	}

	actor, err := h.repo.Create(r.Context(), req.Name, req.Email, req.Password, req.Provider)
	if err != nil {
		if errors.Is(err, directory.ErrEmailTaken) {
			writeError(w, http.StatusUnprocessableEntity, "EmailTaken", err.Error())
			return
		}
		h.logger.Error("actor registration failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, actorResponse{
		ID:       actor.ID,
		Name:     actor.Name,
		Email:    actor.Email,
		Provider: actor.IsProvider,
	})
}

type notificationItem struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// Notifications lists the caller's in-app notifications, newest first.
func (h *ActorHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.Header.Get(identityHeader))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", identityHeader+" required")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	notes, err := h.sink.ListForUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("notification list failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
		return
	}

	items := make([]notificationItem, 0, len(notes))
	for _, n := range notes {
		items = append(items, notificationItem{
			ID:        n.ID,
			Content:   n.Content,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}
