package routehandlers

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/coreybb/quorum/datastore"
	"github.com/coreybb/quorum/distribution"
	"github.com/coreybb/quorum/models"
	"github.com/coreybb/quorum/webutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type DistributionHandler struct {
	Repo    *datastore.DistributionRepository
	Service *distribution.Service
}

func NewDistributionHandler(repo *datastore.DistributionRepository, service *distribution.Service) *DistributionHandler {
	return &DistributionHandler{Repo: repo, Service: service}
}

type distributeRequest struct {
	PDFGenerationID string   `json:"pdf_generation_id"`
	Recipients      []string `json:"recipients"`
}

// HandleDistribute triggers the initial distribution of a generated
// minutes document to a recipient list.
func (h *DistributionHandler) HandleDistribute(w http.ResponseWriter, r *http.Request) error {
	meetingID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(meetingID); err != nil {
		return webutil.ErrBadRequest("Invalid meeting ID format")
	}

	var req distributeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return webutil.ErrBadRequest("Invalid request payload: " + err.Error())
	}
	defer r.Body.Close()

	if req.PDFGenerationID == "" {
		return webutil.ErrBadRequest("Missing required field pdf_generation_id")
	}
	if len(req.Recipients) == 0 {
		return webutil.ErrBadRequest("At least one recipient is required")
	}

	emails := make([]string, 0, len(req.Recipients))
	for _, email := range req.Recipients {
		email = strings.TrimSpace(email)
		if _, err := mail.ParseAddress(email); err != nil {
			return webutil.ErrUnprocessableEntity("Invalid recipient email: " + email)
		}
		emails = append(emails, email)
	}

	dist, err := h.Service.Distribute(r.Context(), meetingID, req.PDFGenerationID, emails)
	if err != nil {
		if dist != nil {
			// Delivery outcome was recorded but the retry enqueue
			// failed; the entry still reflects what happened.
			return webutil.ErrInternalServerWrap("Distribution recorded but retry scheduling failed", err)
		}
		return webutil.ErrInternalServerWrap("Failed to distribute minutes", err)
	}

	webutil.RespondWithJSON(w, http.StatusCreated, dist)
	return nil
}

// HandleGetMeetingDistributions lists a meeting's distribution history.
func (h *DistributionHandler) HandleGetMeetingDistributions(w http.ResponseWriter, r *http.Request) error {
	meetingID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(meetingID); err != nil {
		return webutil.ErrBadRequest("Invalid meeting ID format")
	}

	distributions, err := h.Repo.GetDistributionsByMeetingID(r.Context(), meetingID)
	if err != nil {
		return webutil.ErrInternalServerWrap("Failed to list distributions", err)
	}
	if distributions == nil {
		distributions = []models.Distribution{}
	}

	webutil.RespondWithJSON(w, http.StatusOK, distributions)
	return nil
}

func (h *DistributionHandler) HandleGetDistribution(w http.ResponseWriter, r *http.Request) error {
	distributionID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(distributionID); err != nil {
		return webutil.ErrBadRequest("Invalid distribution ID format")
	}

	dist, err := h.Repo.GetDistributionByID(r.Context(), distributionID)
	if err != nil {
		return webutil.ErrNotFoundWrap("Distribution not found", err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, dist)
	return nil
}
