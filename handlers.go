package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kwv/rotsim/train"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(tracker *train.ProgressTracker, runID string) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status     string    `json:"status"`
			RunID      string    `json:"runId"`
			Timestamp  time.Time `json:"timestamp"`
			Started    time.Time `json:"started"`
			HasScalars bool      `json:"hasScalars"`
			Finished   bool      `json:"finished"`
		}{
			Status:     "ok",
			RunID:      runID,
			Timestamp:  time.Now(),
			Started:    tracker.Started(),
			HasScalars: tracker.HasScalars(),
			Finished:   tracker.Finished(),
		}
		writeJSON(w, status)
	})

	// Latest value of every series
	mux.HandleFunc("/scalars.json", func(w http.ResponseWriter, r *http.Request) {
		if !tracker.HasScalars() {
			http.Error(w, "No scalars recorded yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, struct {
			RunID  string                 `json:"runId"`
			Latest map[string]train.Point `json:"latest"`
		}{
			RunID:  runID,
			Latest: tracker.Latest(),
		})
	})

	// Full history of one series, e.g. /history.json?series=training/loss
	mux.HandleFunc("/history.json", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("series")
		if name == "" {
			http.Error(w, "missing series parameter", http.StatusBadRequest)
			return
		}
		points, ok := tracker.Series(name)
		if !ok {
			http.Error(w, "unknown series: "+name, http.StatusNotFound)
			return
		}
		writeJSON(w, struct {
			RunID  string        `json:"runId"`
			Series string        `json:"series"`
			Points []train.Point `json:"points"`
		}{
			RunID:  runID,
			Series: name,
			Points: points,
		})
	})

	// Series index
	mux.HandleFunc("/series.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, tracker.SeriesNames())
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
