package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/powerhive/minerprobe/pkg/discovery"
)

// Streamer is a Scanner that can report miners as they are found.
type Streamer interface {
	Stream(ctx context.Context, target string) (<-chan discovery.Found, <-chan *discovery.ScanResult, error)
}

// handleScanStream runs a scan and sends each miner as a "miner" event,
// then the full result as a "done" event.
func (s *Server) handleScanStream(w http.ResponseWriter, r *http.Request) {
	streamer, ok := s.scanner.(Streamer)
	if !ok {
		writeError(w, http.StatusNotImplemented, "streaming scans not supported")
		return
	}
	target := r.URL.Query().Get("range")
	if target == "" {
		writeError(w, http.StatusBadRequest, "range is required")
		return
	}

	found, done, err := streamer.Stream(r.Context(), target)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	for f := range found {
		if err := writeEvent(w, "miner", f); err != nil {
			return
		}
		rc.Flush()
	}

	res, ok := <-done
	if !ok || res == nil {
		return
	}
	s.metrics.ObserveScan(res)
	s.storeScan(r.Context(), res)
	writeEvent(w, "done", res)
	rc.Flush()
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
