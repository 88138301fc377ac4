package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"epcis-ingestion/internal/config"
	"epcis-ingestion/internal/epcis"
	"epcis-ingestion/internal/models"
	"epcis-ingestion/internal/pipeline"
	"epcis-ingestion/internal/ratelimit"
	"epcis-ingestion/internal/store"
	"epcis-ingestion/internal/telemetry"
)

// BatchService is the job-manager surface the API exposes.
type BatchService interface {
	Submit(ctx context.Context, p pipeline.SubmitParams) (models.BatchJob, error)
	GetStatus(ctx context.Context, jobID string) (models.BatchJob, error)
	ListBatches(ctx context.Context, ownerID string, limit, offset int) ([]models.BatchJob, error)
}

// AnalyticsService serves the per-owner snapshot.
type AnalyticsService interface {
	Get(ctx context.Context, ownerID string) (models.AnalyticsSnapshot, error)
}

// GraphStore backs the node listing and the explicit edge-creation path.
type GraphStore interface {
	ListNodes(ctx context.Context, ownerID string) ([]models.SupplyChainNode, error)
	CreateEdge(ctx context.Context, edge models.SupplyChainEdge) (models.SupplyChainEdge, error)
}

// RiskStore backs risk listing and the collaborator resolve action.
// ListOpenRisks orders by severity rank before applying the limit, so a
// truncated listing still contains the top risks.
type RiskStore interface {
	ListOpenRisks(ctx context.Context, ownerID string, limit int) ([]models.ComplianceRisk, error)
	ResolveRisk(ctx context.Context, ownerID, riskID string) error
}

// Server wires HTTP handlers for the ingestion API.
type Server struct {
	cfg       config.Config
	batches   BatchService
	analytics AnalyticsService
	graph     GraphStore
	risks     RiskStore
	limiter   *ratelimit.TokenBucket
}

// New constructs the API server. limiter may be nil to disable throttling.
func New(cfg config.Config, batches BatchService, analytics AnalyticsService, graph GraphStore, risks RiskStore, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:       cfg,
		batches:   batches,
		analytics: analytics,
		graph:     graph,
		risks:     risks,
		limiter:   limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/batches", s.handleSubmit)
	r.Get("/batches", s.handleListBatches)
	r.Get("/batches/{id}", s.handleGetBatch)
	r.Get("/analytics", s.handleAnalytics)
	r.Get("/graph/nodes", s.handleListNodes)
	r.Post("/graph/edges", s.handleCreateEdge)
	r.Get("/risks", s.handleListRisks)
	r.Post("/risks/{id}/resolve", s.handleResolveRisk)
	return r
}

type submitRequest struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	Document string `json:"document"`
}

type submitResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	TotalEvents int    `json:"total_events"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		http.Error(w, "missing X-Owner-ID", http.StatusBadRequest)
		return
	}

	if s.cfg.MaxDocumentBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxDocumentBytes)
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Document == "" {
		http.Error(w, "document is required", http.StatusBadRequest)
		return
	}
	if req.FileName == "" {
		req.FileName = "upload.json"
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), owner, int64(len(req.Document)))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job, err := s.batches.Submit(r.Context(), pipeline.SubmitParams{
		OwnerID:  owner,
		FileName: req.FileName,
		FileSize: req.FileSize,
		Raw:      req.Document,
	})
	if err != nil {
		var parseErr *epcis.ParseError
		if errors.As(err, &parseErr) || errors.Is(err, pipeline.ErrInvalidDocument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "submission failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:       job.ID,
		Status:      job.Status,
		TotalEvents: job.TotalEvents,
	})
}

type jobStatusResponse struct {
	ID              string     `json:"id"`
	FileName        string     `json:"file_name"`
	Status          string     `json:"status"`
	TotalEvents     int        `json:"total_events"`
	ProcessedEvents int        `json:"processed_events"`
	FailedEvents    int        `json:"failed_events"`
	Progress        int        `json:"progress"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		http.Error(w, "missing X-Owner-ID", http.StatusBadRequest)
		return
	}

	job, err := s.batches.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	if job.OwnerID != owner {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, jobStatusResponse{
		ID:              job.ID,
		FileName:        job.FileName,
		Status:          job.Status,
		TotalEvents:     job.TotalEvents,
		ProcessedEvents: job.ProcessedEvents,
		FailedEvents:    job.FailedEvents,
		Progress:        job.Progress(),
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
	})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		http.Error(w, "missing X-Owner-ID", http.StatusBadRequest)
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	jobs, err := s.batches.ListBatches(r.Context(), owner, limit, offset)
	if err != nil {
		http.Error(w, "failed to list batches", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": jobs})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		http.Error(w, "missing X-Owner-ID", http.StatusBadRequest)
		return
	}

	snap, err := s.analytics.Get(r.Context(), owner)
	if err != nil {
		http.Error(w, "failed to load analytics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		http.Error(w, "missing X-Owner-ID", http.StatusBadRequest)
		return
	}

	nodes, err := s.graph.ListNodes(r.Context(), owner)
	if err != nil {
		http.Error(w, "failed to list nodes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

type createEdgeRequest struct {
	FromNodeID        string  `json:"from_node_id"`
	ToNodeID          string  `json:"to_node_id"`
	RelationshipType  string  `json:"relationship_type"`
	ProductIdentifier *string `json:"product_identifier"`
}

func (s *Server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		http.Error(w, "missing X-Owner-ID", http.StatusBadRequest)
		return
	}

	var req createEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.FromNodeID == "" || req.ToNodeID == "" || req.RelationshipType == "" {
		http.Error(w, "from_node_id, to_node_id and relationship_type are required", http.StatusBadRequest)
		return
	}

	edge, err := s.graph.CreateEdge(r.Context(), models.SupplyChainEdge{
		OwnerID:           owner,
		FromNodeID:        req.FromNodeID,
		ToNodeID:          req.ToNodeID,
		RelationshipType:  req.RelationshipType,
		ProductIdentifier: req.ProductIdentifier,
	})
	if err != nil {
		http.Error(w, "failed to create edge", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) handleListRisks(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		http.Error(w, "missing X-Owner-ID", http.StatusBadRequest)
		return
	}

	risks, err := s.risks.ListOpenRisks(r.Context(), owner, queryInt(r, "limit", 50))
	if err != nil {
		http.Error(w, "failed to list risks", http.StatusInternalServerError)
		return
	}
	// Top risks first.
	sort.SliceStable(risks, func(i, j int) bool {
		return models.SeverityRank(risks[i].Severity) > models.SeverityRank(risks[j].Severity)
	})
	writeJSON(w, http.StatusOK, map[string]any{"risks": risks})
}

func (s *Server) handleResolveRisk(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		http.Error(w, "missing X-Owner-ID", http.StatusBadRequest)
		return
	}

	err := s.risks.ResolveRisk(r.Context(), owner, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "risk not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to resolve risk", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ownerFromRequest trusts the X-Owner-ID header set by the upstream identity
// layer; authentication itself happens there.
func ownerFromRequest(r *http.Request) string {
	return r.Header.Get("X-Owner-ID")
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
