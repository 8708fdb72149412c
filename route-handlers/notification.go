package routehandlers

import (
	"net/http"

	"github.com/coreybb/quorum/datastore"
	"github.com/coreybb/quorum/models"
	"github.com/coreybb/quorum/webutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type NotificationHandler struct {
	Repo *datastore.NotificationRepository
}

func NewNotificationHandler(repo *datastore.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{Repo: repo}
}

func (h *NotificationHandler) HandleGetUserNotifications(w http.ResponseWriter, r *http.Request) error {
	userID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(userID); err != nil {
		return webutil.ErrBadRequest("Invalid user ID format")
	}

	notifications, err := h.Repo.GetNotificationsByUserID(r.Context(), userID)
	if err != nil {
		return webutil.ErrInternalServerWrap("Failed to list notifications", err)
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	webutil.RespondWithJSON(w, http.StatusOK, notifications)
	return nil
}

func (h *NotificationHandler) HandleMarkNotificationRead(w http.ResponseWriter, r *http.Request) error {
	notificationID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(notificationID); err != nil {
		return webutil.ErrBadRequest("Invalid notification ID format")
	}

	if err := h.Repo.MarkNotificationRead(r.Context(), notificationID); err != nil {
		return webutil.ErrNotFoundWrap("Notification not found", err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]bool{"read": true})
	return nil
}
