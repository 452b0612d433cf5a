package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scholarqa/internal/config"
	"scholarqa/internal/corpus"
	"scholarqa/internal/models"
	"scholarqa/internal/retriever"
	"scholarqa/internal/session"
	"scholarqa/internal/synth"
	"scholarqa/internal/util"
	"scholarqa/internal/workflows"

	"github.com/google/uuid"
	tclient "go.temporal.io/sdk/client"
)

// Deps carries the wired collaborators. Temporal and Orphans may be nil in
// reduced deployments; the endpoints that need them answer 503.
type Deps struct {
	Store       corpus.Store
	Retriever   *retriever.Retriever
	Synthesizer *synth.Synthesizer
	Sessions    *session.Manager
	Temporal    tclient.Client
	Orphans     func(ctx context.Context) ([]string, error)
}

type Server struct {
	cfg  config.Config
	deps Deps
}

func NewServer(cfg config.Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/papers", s.handlePapers)
	mux.HandleFunc("/papers/", s.handlePaperScoped)
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/ingest/progress", s.handleIngestProgress)
	mux.HandleFunc("/rebuild", s.handleRebuild)
	mux.HandleFunc("/integrity", s.handleIntegrity)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type queryRequest struct {
	SessionID string       `json:"session_id,omitempty"`
	Text      string       `json:"text"`
	Filters   *queryFilter `json:"filters,omitempty"`
}

type queryFilter struct {
	Categories []string `json:"categories,omitempty"`
	DateFrom   string   `json:"date_from,omitempty"`
	DateTo     string   `json:"date_to,omitempty"`
}

type queryCitation struct {
	PaperID string  `json:"paper_id"`
	Title   string  `json:"title"`
	ChunkID string  `json:"chunk_id"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question text is required"))
		return
	}
	filters, err := parseFilters(req.Filters)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	sessionID := s.deps.Sessions.Touch(req.SessionID)
	history := s.deps.Sessions.RecentTurns(sessionID, s.deps.Sessions.Window())

	query := models.Query{RawText: req.Text, SessionID: sessionID, Filters: filters}
	evidence, rewritten, err := s.deps.Retriever.Retrieve(r.Context(), query, history)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrValidation):
			writeErr(w, http.StatusBadRequest, err)
		case errors.Is(err, util.ErrRetrievalTimeout):
			writeErr(w, http.StatusGatewayTimeout, err)
		default:
			writeErr(w, http.StatusInternalServerError, err)
		}
		return
	}

	answer, err := s.deps.Synthesizer.Synthesize(r.Context(), rewritten, evidence)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	answer.SessionID = sessionID

	_ = s.deps.Sessions.AppendTurn(sessionID, models.Turn{Query: query, Answer: answer})

	citations := make([]queryCitation, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		title := ""
		if p, err := s.deps.Store.Get(r.Context(), c.PaperID); err == nil {
			title = p.Title
		}
		citations = append(citations, queryCitation{
			PaperID: c.PaperID,
			Title:   title,
			ChunkID: c.ChunkID,
			Excerpt: c.SourceExcerpt,
			Score:   c.Score,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer_text":           answer.Text,
		"insufficient_evidence": answer.Insufficient,
		"session_id":            sessionID,
		"citations":             citations,
	})
}

func (s *Server) handlePapers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f := corpus.Filter{Status: r.URL.Query().Get("status")}
		if cats := r.URL.Query().Get("categories"); cats != "" {
			f.Categories = strings.Split(cats, ",")
		}
		var papers []models.Paper
		err := corpus.ForEach(r.Context(), s.deps.Store, f, 200, func(p models.Paper) error {
			papers = append(papers, p)
			return nil
		})
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"papers": papers, "count": len(papers)})
	case http.MethodPost:
		var p models.Paper
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if err := s.deps.Store.Put(r.Context(), p); err != nil {
			switch {
			case errors.Is(err, util.ErrValidation):
				writeErr(w, http.StatusBadRequest, err)
			case errors.Is(err, util.ErrDuplicateID):
				writeErr(w, http.StatusConflict, err)
			default:
				writeErr(w, http.StatusInternalServerError, err)
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"paper_id": p.PaperID})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handlePaperScoped(w http.ResponseWriter, r *http.Request) {
	paperID := strings.TrimPrefix(r.URL.Path, "/papers/")
	if paperID == "" || strings.Contains(paperID, "/") {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	p, err := s.deps.Store.Get(r.Context(), paperID)
	if err != nil {
		if errors.Is(err, util.ErrPaperNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.deps.Temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion service unavailable"))
		return
	}
	var req struct {
		CSVPath  string `json:"csv_path"`
		InputDir string `json:"input_dir,omitempty"`
		BatchID  string `json:"batch_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	csvPath := strings.TrimSpace(req.CSVPath)
	inputDir := strings.TrimSpace(req.InputDir)
	if csvPath == "" && inputDir == "" {
		// No explicit source means scanning the configured drop directory.
		inputDir = s.cfg.MetadataInRoot
	}
	if csvPath == "" && inputDir == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("csv_path or input_dir is required"))
		return
	}
	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	we, err := s.deps.Temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "ingest-" + batchID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.CorpusIngestWorkflow, workflows.CorpusIngestInput{
		BatchID:               batchID,
		CSVPath:               csvPath,
		InputDir:              inputDir,
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":    batchID,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) handleIngestProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.deps.Temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion service unavailable"))
		return
	}
	workflowID := r.URL.Query().Get("workflow_id")
	if workflowID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("workflow_id is required"))
		return
	}
	resp, err := s.deps.Temporal.QueryWorkflow(r.Context(), workflowID, "", workflows.QueryGetIngestProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	var progress workflows.CorpusIngestProgress
	if err := resp.Get(&progress); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.deps.Temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion service unavailable"))
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	mode := strings.ToUpper(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = workflows.ModeReindexAll
	}
	if mode != workflows.ModeReindexAll && mode != workflows.ModeRetryFlagged && mode != workflows.ModeReembedStale {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown rebuild mode %q", req.Mode))
		return
	}
	we, err := s.deps.Temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "rebuild-" + uuid.NewString(),
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.RebuildIndexWorkflow, workflows.RebuildIndexInput{
		Mode:                  mode,
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID(), "mode": mode})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.deps.Orphans == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("integrity check unavailable"))
		return
	}
	orphans, err := s.deps.Orphans(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            len(orphans) == 0,
		"orphan_chunks": orphans,
	})
}

func parseFilters(f *queryFilter) (*models.QueryFilter, error) {
	if f == nil {
		return nil, nil
	}
	out := &models.QueryFilter{Categories: f.Categories}
	var err error
	if f.DateFrom != "" {
		if out.DateFrom, err = parseDate(f.DateFrom); err != nil {
			return nil, fmt.Errorf("invalid date_from: %w", err)
		}
	}
	if f.DateTo != "" {
		if out.DateTo, err = parseDate(f.DateTo); err != nil {
			return nil, fmt.Errorf("invalid date_to: %w", err)
		}
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "SQ-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusBadGateway:
		return apiError{Code: "SQ-API-5020", Message: "Answer generation is unavailable. Retry shortly."}
	case status == http.StatusGatewayTimeout:
		return apiError{Code: "SQ-API-5040", Message: "Retrieval timed out on all sources. Retry shortly."}
	case status == http.StatusServiceUnavailable:
		return apiError{Code: "SQ-API-5030", Message: "Required backend service is not configured."}
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "SQ-DB-5001", Message: "Database schema is not initialized. Run migrations and retry."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "SQ-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "SQ-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		code = "SQ-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "SQ-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "SQ-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "SQ-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "question text is required"):
			msg = "Question text is required."
		case strings.Contains(raw, "csv_path or input_dir is required"):
			msg = "A metadata CSV path or drop directory is required."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "invalid date"):
			msg = "Date filters must be YYYY-MM-DD or RFC3339."
		case strings.Contains(raw, "already exists"):
			msg = "Paper id already exists with different content."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
