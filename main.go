package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreybb/quorum/api"
	"github.com/coreybb/quorum/datastore"
	"github.com/coreybb/quorum/distribution"
	"github.com/coreybb/quorum/notifications"
	rh "github.com/coreybb/quorum/route-handlers"
	"github.com/coreybb/quorum/scheduler"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultPort            = "8080"
	defaultDatabaseURL     = "user=postgres password=password dbname=quorum host=localhost port=5432 sslmode=disable"
	defaultSendGridFrom    = "minutes@quorum.dev"
	defaultSendGridName    = "Quorum"
	defaultDownloadBaseURL = "https://app.quorum.dev"
	dbPingTimeout          = 5 * time.Second
	shutdownTimeout        = 15 * time.Second
	dbMaxOpenConns         = 25
	dbMaxIdleConns         = 25
	dbConnMaxLifetime      = 5 * time.Minute
)

type config struct {
	port              string
	databaseURL       string
	sendGridAPIKey    string
	sendGridFromEmail string
	sendGridFromName  string
	downloadBaseURL   string
	schedulerToken    string
}

func main() {
	cfg := loadConfig()

	db, err := setupDatabase(cfg.databaseURL)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	defer db.Close()

	meetingRepo := datastore.NewMeetingRepository(db)
	distributionRepo := datastore.NewDistributionRepository(db)
	retryQueueRepo := datastore.NewRetryQueueRepository(db)
	notificationRepo := datastore.NewNotificationRepository(db)

	// Initialize the delivery transport and notification sink
	transport := distribution.NewSendGridTransport(
		cfg.sendGridAPIKey, cfg.sendGridFromEmail, cfg.sendGridFromName, cfg.downloadBaseURL,
	)
	sink := notifications.NewSink(notificationRepo)

	// Initialize the distribution system
	metrics := distribution.NewMetrics(prometheus.DefaultRegisterer)
	distributionService := distribution.NewService(meetingRepo, distributionRepo, retryQueueRepo, transport)
	retryService := distribution.NewRetryService(
		retryQueueRepo, distributionRepo, meetingRepo, sink, transport, metrics,
	)

	meetingHandler := rh.NewMeetingHandler(meetingRepo)
	distributionHandler := rh.NewDistributionHandler(distributionRepo, distributionService)
	retryQueueHandler := rh.NewRetryQueueHandler(retryQueueRepo)
	notificationHandler := rh.NewNotificationHandler(notificationRepo)

	apiRouter := api.SetupRoutes(
		meetingHandler,
		distributionHandler,
		retryQueueHandler,
		notificationHandler,
	)

	// Initialize scheduler
	retryScheduler := scheduler.New(retryService, cfg.schedulerToken)

	mainRouter := chi.NewRouter()
	mainRouter.Mount("/", apiRouter)

	mainRouter.Post("/scheduler/retry-tick", retryScheduler.HandleTick)
	mainRouter.Handle("/metrics", promhttp.Handler())

	startServer(cfg.port, mainRouter)
}

func loadConfig() config {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	dbURL := os.Getenv("DB_CONNECTION_STRING")
	if dbURL == "" {
		dbURL = defaultDatabaseURL
		log.Println("WARNING: DB_CONNECTION_STRING not set, using default local connection string.")
	}

	sendGridAPIKey := os.Getenv("SENDGRID_API_KEY")
	if sendGridAPIKey == "" {
		log.Println("WARNING: SENDGRID_API_KEY not set. Minutes delivery will fail at runtime.")
	}

	sendGridFrom := os.Getenv("SENDGRID_FROM_EMAIL")
	if sendGridFrom == "" {
		sendGridFrom = defaultSendGridFrom
	}

	sendGridName := os.Getenv("SENDGRID_FROM_NAME")
	if sendGridName == "" {
		sendGridName = defaultSendGridName
	}

	downloadBaseURL := os.Getenv("DOWNLOAD_BASE_URL")
	if downloadBaseURL == "" {
		downloadBaseURL = defaultDownloadBaseURL
	}

	schedulerToken := os.Getenv("SCHEDULER_TOKEN")
	if schedulerToken == "" {
		log.Println("WARNING: SCHEDULER_TOKEN not set. The retry tick endpoint is unauthenticated.")
	}

	return config{
		port:              port,
		databaseURL:       dbURL,
		sendGridAPIKey:    sendGridAPIKey,
		sendGridFromEmail: sendGridFrom,
		sendGridFromName:  sendGridName,
		downloadBaseURL:   downloadBaseURL,
		schedulerToken:    schedulerToken,
	}
}

func setupDatabase(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close() // Close unusable connection pool
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection successful")
	return db, nil
}

func startServer(port string, router http.Handler) {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownSignal // Block until signal received
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
