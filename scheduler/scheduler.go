package scheduler

import (
	"context"
	"log"
	"net/http"

	"github.com/coreybb/quorum/distribution"
	"github.com/coreybb/quorum/webutil"
)

const tickTokenHeader = "X-Scheduler-Token"

// RetryRunner runs one batch over the due retry backlog.
type RetryRunner interface {
	ProcessDueRetries(ctx context.Context) (*distribution.RunResult, error)
}

// Scheduler exposes the retry run to an external periodic trigger
// (Cloud Scheduler or manual curl requests). It owns no background
// loop: each tick is a single-shot batch, and items left unprocessed
// by one tick remain due for the next.
type Scheduler struct {
	retries   RetryRunner
	tickToken string
}

// New creates a Scheduler. An empty tickToken disables the
// shared-secret check on the tick endpoint.
func New(retries RetryRunner, tickToken string) *Scheduler {
	return &Scheduler{retries: retries, tickToken: tickToken}
}

type tickResponse struct {
	Success        bool `json:"success"`
	TotalProcessed int  `json:"total_processed"`
	SuccessCount   int  `json:"success_count"`
	FailedCount    int  `json:"failed_count"`
}

// HandleTick is the HTTP entry point for a retry run.
func (s *Scheduler) HandleTick(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		webutil.RespondWithError(w, http.StatusUnauthorized, "Invalid scheduler token")
		return
	}

	log.Println("INFO (Scheduler): Retry tick triggered via HTTP")

	result, err := s.retries.ProcessDueRetries(r.Context())
	if err != nil {
		log.Printf("ERROR (Scheduler): Retry run failed to start: %v", err)
		webutil.RespondWithJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "retry run failed to start",
		})
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, tickResponse{
		Success:        true,
		TotalProcessed: result.TotalProcessed,
		SuccessCount:   result.SuccessCount,
		FailedCount:    result.FailedCount,
	})
}

func (s *Scheduler) authorized(r *http.Request) bool {
	if s.tickToken == "" {
		return true
	}

	provided := r.Header.Get(tickTokenHeader)
	if provided == "" {
		return false
	}

	providedHash, err := webutil.GenerateHash(provided)
	if err != nil {
		return false
	}
	expectedHash, err := webutil.GenerateHash(s.tickToken)
	if err != nil {
		return false
	}
	return providedHash == expectedHash
}
