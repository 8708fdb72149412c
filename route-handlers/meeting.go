package routehandlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coreybb/quorum/datastore"
	"github.com/coreybb/quorum/models"
	"github.com/coreybb/quorum/webutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type MeetingHandler struct {
	Repo *datastore.MeetingRepository
}

func NewMeetingHandler(repo *datastore.MeetingRepository) *MeetingHandler {
	return &MeetingHandler{Repo: repo}
}

type createMeetingRequest struct {
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// HandleCreateMeeting registers a meeting with the distribution service.
func (h *MeetingHandler) HandleCreateMeeting(w http.ResponseWriter, r *http.Request) error {
	var req createMeetingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return webutil.ErrBadRequest("Invalid request payload: " + err.Error())
	}
	defer r.Body.Close()

	if req.UserID == "" || strings.TrimSpace(req.Title) == "" {
		return webutil.ErrBadRequest("Missing required fields (user_id, title)")
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		return webutil.ErrBadRequest("Invalid user_id format")
	}

	meeting := models.Meeting{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Title:       strings.TrimSpace(req.Title),
		ScheduledAt: req.ScheduledAt,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.Repo.CreateMeeting(r.Context(), &meeting); err != nil {
		return webutil.ErrInternalServerWrap("Failed to create meeting", err)
	}

	webutil.RespondWithJSON(w, http.StatusCreated, meeting)
	return nil
}

func (h *MeetingHandler) HandleGetMeeting(w http.ResponseWriter, r *http.Request) error {
	meetingID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(meetingID); err != nil {
		return webutil.ErrBadRequest("Invalid meeting ID format")
	}

	meeting, err := h.Repo.GetMeetingByID(r.Context(), meetingID)
	if err != nil {
		return webutil.ErrNotFoundWrap("Meeting not found", err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, meeting)
	return nil
}
