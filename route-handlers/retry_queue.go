package routehandlers

import (
	"net/http"

	"github.com/coreybb/quorum/datastore"
	"github.com/coreybb/quorum/models"
	"github.com/coreybb/quorum/webutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type RetryQueueHandler struct {
	Repo *datastore.RetryQueueRepository
}

func NewRetryQueueHandler(repo *datastore.RetryQueueRepository) *RetryQueueHandler {
	return &RetryQueueHandler{Repo: repo}
}

func (h *RetryQueueHandler) HandleGetQueueItem(w http.ResponseWriter, r *http.Request) error {
	itemID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(itemID); err != nil {
		return webutil.ErrBadRequest("Invalid retry queue item ID format")
	}

	item, err := h.Repo.GetItemByID(r.Context(), itemID)
	if err != nil {
		return webutil.ErrNotFoundWrap("Retry queue item not found", err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, item)
	return nil
}

// HandleGetDistributionRetries lists the retry items spawned by one
// distribution.
func (h *RetryQueueHandler) HandleGetDistributionRetries(w http.ResponseWriter, r *http.Request) error {
	distributionID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(distributionID); err != nil {
		return webutil.ErrBadRequest("Invalid distribution ID format")
	}

	items, err := h.Repo.GetItemsByDistributionID(r.Context(), distributionID)
	if err != nil {
		return webutil.ErrInternalServerWrap("Failed to list retry queue items", err)
	}
	if items == nil {
		items = []models.RetryQueueItem{}
	}

	webutil.RespondWithJSON(w, http.StatusOK, items)
	return nil
}
