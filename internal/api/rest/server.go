package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/metrics"
)

// Server represents the REST API server
type Server struct {
	server *http.Server
}

// NewRouter registers every route on a gorilla router
func NewRouter(handler *Handler, rec *metrics.Recorder, log logrus.FieldLogger) http.Handler {
	router := mux.NewRouter()

	router.Use(LoggingMiddleware(log, rec))
	router.Use(RecoveryMiddleware(log))

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	router.Handle("/metrics", rec.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/insights", handler.GetInsights).Methods("GET")
	api.HandleFunc("/projections", handler.GetProjections).Methods("GET")
	api.HandleFunc("/players/{playerID:[0-9]+}/projection", handler.GetPlayerProjection).Methods("GET")

	api.HandleFunc("/refresh/logs", handler.GetRefreshLogs).Methods("GET")
	api.HandleFunc("/refresh/{job}", handler.TriggerJob).Methods("POST")
	api.HandleFunc("/scheduler/status", handler.GetSchedulerStatus).Methods("GET")

	return CORSMiddleware(router)
}

// NewServer creates a new REST API server
func NewServer(port string, handler *Handler, rec *metrics.Recorder, log logrus.FieldLogger) *Server {
	log = logging.Component(log, "rest")
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           NewRouter(handler, rec, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
