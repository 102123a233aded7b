package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/models"
)

// analyzerControl is what the HTTP surface needs from the analyzer
type analyzerControl interface {
	Run(ctx context.Context) (*models.RunReport, error)
	IsRunning() bool
	GetMetrics() string
}

// newRouter builds the health, metrics and trigger endpoints.
// Triggered runs use ctx so they stop with the server.
func newRouter(ctx context.Context, platform string, svc analyzerControl) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheckHandler(platform)).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(svc)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(ctx, svc)).Methods("POST")

	return router
}

func healthCheckHandler(platform string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"platform":  platform,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func metricsHandler(svc analyzerControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(svc.GetMetrics()))
	}
}

func triggerHandler(ctx context.Context, svc analyzerControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc.IsRunning() {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "An analyzer run is already in progress"})
			return
		}

		go func() {
			if _, err := svc.Run(ctx); err != nil {
				logrus.Errorf("Manual analyzer trigger failed: %v", err)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"message": "Analyzer run triggered successfully"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}
