package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleStream sends a snapshot whenever the published frame changes, and a
// heartbeat comment otherwise, until the client disconnects.
// GET /api/v1/stream
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	snap := s.monitor.Snapshot()
	if err := sendSSEEvent(w, flusher, "snapshot", snap); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}
	last := snap.Captured

	ticker := time.NewTicker(s.sseEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			snap = s.monitor.Snapshot()
			if snap.Captured.Equal(last) {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
				continue
			}
			if err := sendSSEEvent(w, flusher, "snapshot", snap); err != nil {
				s.logger.Debug("sse client disconnected", "error", err)
				return
			}
			last = snap.Captured
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
