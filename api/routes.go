package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rh "github.com/coreybb/quorum/route-handlers"
	"github.com/coreybb/quorum/webutil"
)

const (
	apiBasePath           = "/api"
	meetingsBasePath      = "/meetings"
	distributionsBasePath = "/distributions"
	retryQueueBasePath    = "/retry-queue"
	usersBasePath         = "/users"
	notificationsBasePath = "/notifications"
)

const (
	distributionsSubPath = "/distributions"
	retriesSubPath       = "/retries"
	notificationsSubPath = "/notifications"
	readSubPath          = "/read"
)

const paramID = "id"

func SetupRoutes(
	meetingHandler *rh.MeetingHandler,
	distributionHandler *rh.DistributionHandler,
	retryQueueHandler *rh.RetryQueueHandler,
	notificationHandler *rh.NotificationHandler,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(SetHeader(webutil.HeaderContentType, webutil.ContentTypeJSONUTF8))

	r.Route(apiBasePath, func(r chi.Router) {
		configureMeetingRoutes(r, meetingHandler, distributionHandler)
		configureDistributionRoutes(r, distributionHandler, retryQueueHandler)
		configureRetryQueueRoutes(r, retryQueueHandler)
		configureNotificationRoutes(r, notificationHandler)
	})

	// Health check endpoint
	r.Get("/healthz", handleHealthCheck)

	return r
}

func pathWithParam(basePath string, paramName string) string {
	if basePath == "" {
		return "/{" + paramName + "}"
	}
	return basePath + "/{" + paramName + "}"
}

func configureMeetingRoutes(r chi.Router, meetingHandler *rh.MeetingHandler, distributionHandler *rh.DistributionHandler) {
	meetingSpecificPath := pathWithParam("", paramID)

	r.Route(meetingsBasePath, func(r chi.Router) {
		r.Post("/", webutil.MakeHandler(meetingHandler.HandleCreateMeeting))
		r.Route(meetingSpecificPath, func(r chi.Router) {
			r.Get("/", webutil.MakeHandler(meetingHandler.HandleGetMeeting))
			// Distribution trigger and history for a meeting
			r.Post(distributionsSubPath, webutil.MakeHandler(distributionHandler.HandleDistribute))
			r.Get(distributionsSubPath, webutil.MakeHandler(distributionHandler.HandleGetMeetingDistributions))
		})
	})
}

func configureDistributionRoutes(r chi.Router, distributionHandler *rh.DistributionHandler, retryQueueHandler *rh.RetryQueueHandler) {
	distributionSpecificPath := pathWithParam("", paramID)

	r.Route(distributionsBasePath, func(r chi.Router) {
		r.Route(distributionSpecificPath, func(r chi.Router) {
			r.Get("/", webutil.MakeHandler(distributionHandler.HandleGetDistribution))
			r.Get(retriesSubPath, webutil.MakeHandler(retryQueueHandler.HandleGetDistributionRetries))
		})
	})
}

func configureRetryQueueRoutes(r chi.Router, handler *rh.RetryQueueHandler) {
	itemSpecificPath := pathWithParam("", paramID)

	r.Route(retryQueueBasePath, func(r chi.Router) {
		r.Get(itemSpecificPath, webutil.MakeHandler(handler.HandleGetQueueItem))
	})
}

func configureNotificationRoutes(r chi.Router, handler *rh.NotificationHandler) {
	r.Get(pathWithParam(usersBasePath, paramID)+notificationsSubPath,
		webutil.MakeHandler(handler.HandleGetUserNotifications))
	r.Post(pathWithParam(notificationsBasePath, paramID)+readSubPath,
		webutil.MakeHandler(handler.HandleMarkNotificationRead))
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	webutil.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetHeader returns middleware that sets a default response header.
func SetHeader(key, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(key, value)
			next.ServeHTTP(w, r)
		})
	}
}
