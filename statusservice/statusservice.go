package statusservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/bigjimnolan/onvifbridge/cameraservice"
)

// Fleet is what the status pages read from.
type Fleet interface {
	Statuses() []cameraservice.Status
}

// StatusService serves a read-only view of the camera agents.
type StatusService struct {
	Addr  string
	Fleet Fleet
}

type healthResponse struct {
	Status  string   `json:"status"`
	Pending []string `json:"pending,omitempty"`
}

// Handler exposes /status and /healthz.
func (ss *StatusService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", ss.statusHandler)
	mux.HandleFunc("/healthz", ss.healthHandler)
	return mux
}

// Start listens on Addr until ctx is done.
func (ss *StatusService) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              ss.Addr,
		Handler:           ss.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Msgf("Status server forced to shutdown: %v", err)
		}
	}()

	log.Info().Msgf("Status running on http://%s", ss.Addr)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (ss *StatusService) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, ss.Fleet.Statuses())
}

// healthHandler is healthy once every camera holds a subscription.
func (ss *StatusService) healthHandler(w http.ResponseWriter, r *http.Request) {
	pending := lo.FilterMap(ss.Fleet.Statuses(), func(s cameraservice.Status, _ int) (string, bool) {
		return s.CameraID, s.State != cameraservice.StateSubscribed
	})
	if len(pending) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Pending: pending})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Msgf("Error writing status response: %v", err)
	}
}
