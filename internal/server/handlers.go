package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/video-curator/internal/db"
)

// triggerRunRequest is the body of POST /curation/run. All fields optional.
type triggerRunRequest struct {
	TriggeredBy string `json:"triggered_by"`
}

// handleTriggerRun starts a manual curation run. The run executes in the
// background; the response carries the accepted run record. A guard
// rejection is a conflict, not a server error.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "api"
	}

	run, rejection, err := s.curation.Begin(r.Context(), db.RunKindManual, triggeredBy)
	if err != nil {
		log.Printf("Error starting run: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	if rejection != nil {
		s.jsonResponse(w, http.StatusConflict, rejection)
		return
	}

	// Detach from the request context; the run outlives the trigger call.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.curation.ExecuteRun(ctx, run)
	}()

	s.jsonResponse(w, http.StatusAccepted, run)
}

// handleStatus returns the operator snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.curation.Status(r.Context())
	if err != nil {
		log.Printf("Error building status: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to build status")
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

func (s *Server) handleGetEnabled(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]bool{"enabled": s.toggle.Enabled()})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		s.errorResponse(w, http.StatusBadRequest, "body must be {\"enabled\": true|false}")
		return
	}

	if err := s.toggle.Set(r.Context(), *req.Enabled); err != nil {
		log.Printf("Error setting enabled flag: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to persist enabled flag")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

// handleListRuns returns recent runs, newest first. Accepts ?limit=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRecentRuns(r.Context(), limit)
	if err != nil {
		log.Printf("Error listing runs: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []db.CurationRun{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		log.Printf("Error getting run %s: %v", id, err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "run not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	ledger, err := s.quota.Usage(r.Context())
	if err != nil {
		log.Printf("Error reading quota: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read quota")
		return
	}
	s.jsonResponse(w, http.StatusOK, ledger)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		log.Printf("Error listing sources: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	if sources == nil {
		sources = []db.SourceState{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"sources": sources})
}

type addSourceRequest struct {
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
	Verified     bool   `json:"verified"`
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChannelID == "" || req.ChannelTitle == "" {
		s.errorResponse(w, http.StatusBadRequest, "channel_id and channel_title are required")
		return
	}

	source, err := s.store.UpsertSource(r.Context(), req.ChannelID, req.ChannelTitle, req.Verified)
	if err != nil {
		log.Printf("Error upserting source %s: %v", req.ChannelID, err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to save source")
		return
	}
	s.jsonResponse(w, http.StatusCreated, source)
}

type runAnalysisRequest struct {
	Limit int `json:"limit"`
}

// handleRunAnalysis drains a batch of the analysis queue synchronously.
func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	req := runAnalysisRequest{Limit: 20}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Limit < 1 || req.Limit > 100 {
		s.errorResponse(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	processed, failed, err := s.analysis.ProcessPending(r.Context(), req.Limit)
	if err != nil {
		log.Printf("Error processing analysis queue: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to process analysis queue")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"processed": processed, "failed": failed})
}
