package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/powerhive/minerprobe/internal/netutil"
	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/database"
	"github.com/powerhive/minerprobe/pkg/discovery"
	"github.com/powerhive/minerprobe/pkg/miner"
)

const defaultHistoryLimit = 100

type errorResponse struct {
	Error    string              `json:"error"`
	Identity *discovery.Identity `json:"identity,omitempty"`
}

type scanRequest struct {
	Range string `json:"range"`
}

type minerResponse struct {
	Identity *discovery.Identity `json:"identity"`
	Data     *miner.MinerData    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps discovery failures to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, discovery.ErrNoMiner):
		return http.StatusNotFound
	case errors.Is(err, discovery.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, netutil.ErrInvalidRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMiner(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	if !netutil.IsValidIP(ip) {
		writeError(w, http.StatusBadRequest, "invalid ip: "+ip)
		return
	}

	var opts []collector.Option
	if s.metrics != nil {
		opts = append(opts, collector.WithObserver(s.metrics.CommandObserver()))
	}
	data, id, err := s.detector.Collect(r.Context(), ip, opts...)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Identity: id})
		return
	}
	s.metrics.ObserveMiner(data)

	if s.repo != nil {
		if _, err := s.repo.SaveSnapshot(r.Context(), data, ""); err != nil {
			s.logger.Warn("snapshot not saved", slog.String("ip", ip), slog.Any("error", err))
		}
	}
	writeJSON(w, http.StatusOK, minerResponse{Identity: id, Data: data})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	if !netutil.IsValidIP(ip) {
		writeError(w, http.StatusBadRequest, "invalid ip: "+ip)
		return
	}

	id, err := s.detector.Identify(r.Context(), ip)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Range == "" {
		writeError(w, http.StatusBadRequest, "range is required")
		return
	}

	res, err := s.scanner.Scan(r.Context(), req.Range)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.metrics.ObserveScan(res)
	s.storeScan(r.Context(), res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) storeScan(ctx context.Context, res *discovery.ScanResult) {
	if s.repo == nil {
		s.mu.Lock()
		s.scans[res.ID] = res
		s.mu.Unlock()
		return
	}
	if _, err := database.SaveScanWithSnapshots(ctx, s.repo, res); err != nil {
		s.logger.Warn("scan not saved", slog.String("scan_id", res.ID), slog.Any("error", err))
	}
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var (
		res *discovery.ScanResult
		err error
	)
	if s.repo != nil {
		res, err = s.repo.GetScan(r.Context(), id)
	} else {
		s.mu.RLock()
		res = s.scans[id]
		s.mu.RUnlock()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "scan not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	scans, err := s.repo.ListScans(r.Context(), limitParam(r, defaultHistoryLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	mac := mux.Vars(r)["mac"]

	history, err := s.repo.History(r.Context(), mac, limitParam(r, defaultHistoryLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, "no history for "+mac)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func limitParam(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
