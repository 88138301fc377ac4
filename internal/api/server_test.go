package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"epcis-ingestion/internal/config"
	"epcis-ingestion/internal/epcis"
	"epcis-ingestion/internal/models"
	"epcis-ingestion/internal/pipeline"
	"epcis-ingestion/internal/ratelimit"
	"epcis-ingestion/internal/store"
)

type fakeBatches struct {
	jobs      map[string]models.BatchJob
	submitErr error
}

func (f *fakeBatches) Submit(_ context.Context, p pipeline.SubmitParams) (models.BatchJob, error) {
	if f.submitErr != nil {
		return models.BatchJob{}, f.submitErr
	}
	job := models.BatchJob{
		ID:          "job-1",
		OwnerID:     p.OwnerID,
		FileName:    p.FileName,
		Status:      models.StatusQueued,
		TotalEvents: 2,
		CreatedAt:   time.Now().UTC(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeBatches) GetStatus(_ context.Context, jobID string) (models.BatchJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return models.BatchJob{}, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeBatches) ListBatches(_ context.Context, ownerID string, limit, offset int) ([]models.BatchJob, error) {
	var out []models.BatchJob
	for _, j := range f.jobs {
		if j.OwnerID == ownerID {
			out = append(out, j)
		}
	}
	return out, nil
}

type fakeAnalytics struct {
	snap models.AnalyticsSnapshot
}

func (f *fakeAnalytics) Get(_ context.Context, ownerID string) (models.AnalyticsSnapshot, error) {
	snap := f.snap
	snap.OwnerID = ownerID
	return snap, nil
}

type fakeGraph struct {
	nodes []models.SupplyChainNode
	edges []models.SupplyChainEdge
}

func (f *fakeGraph) ListNodes(_ context.Context, ownerID string) ([]models.SupplyChainNode, error) {
	return f.nodes, nil
}

func (f *fakeGraph) CreateEdge(_ context.Context, edge models.SupplyChainEdge) (models.SupplyChainEdge, error) {
	edge.ID = "edge-1"
	f.edges = append(f.edges, edge)
	return edge, nil
}

type fakeRisks struct {
	risks    []models.ComplianceRisk
	resolved []string
}

// ListOpenRisks mirrors the store contract: severity rank orders the rows
// before the limit truncates them.
func (f *fakeRisks) ListOpenRisks(_ context.Context, ownerID string, limit int) ([]models.ComplianceRisk, error) {
	out := make([]models.ComplianceRisk, len(f.risks))
	copy(out, f.risks)
	sort.SliceStable(out, func(i, j int) bool {
		return models.SeverityRank(out[i].Severity) > models.SeverityRank(out[j].Severity)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRisks) ResolveRisk(_ context.Context, ownerID, riskID string) error {
	for _, r := range f.risks {
		if r.ID == riskID {
			f.resolved = append(f.resolved, riskID)
			return nil
		}
	}
	return store.ErrNotFound
}

type testServer struct {
	*Server
	batches *fakeBatches
	graph   *fakeGraph
	risks   *fakeRisks
}

func newTestServer(limiter *ratelimit.TokenBucket) *testServer {
	batches := &fakeBatches{jobs: make(map[string]models.BatchJob)}
	graph := &fakeGraph{}
	risks := &fakeRisks{}
	srv := New(config.Config{MaxDocumentBytes: 1 << 20}, batches, &fakeAnalytics{}, graph, risks, limiter)
	return &testServer{Server: srv, batches: batches, graph: graph, risks: risks}
}

func doRequest(t *testing.T, srv *Server, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestSubmitRequiresOwnerHeader(t *testing.T) {
	ts := newTestServer(nil)
	rec := doRequest(t, ts.Server, http.MethodPost, "/batches", "", `{"document":"{}"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitAccepted(t *testing.T) {
	ts := newTestServer(nil)
	rec := doRequest(t, ts.Server, http.MethodPost, "/batches", "owner-1",
		`{"file_name":"events.json","document":"{\"epcisBody\":{\"eventList\":[{},{}]}}"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" || resp.Status != models.StatusQueued || resp.TotalEvents != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestSubmitParseErrorIsBadRequest(t *testing.T) {
	ts := newTestServer(nil)
	ts.batches.submitErr = &epcis.ParseError{Reason: "document is neither JSON nor XML"}
	rec := doRequest(t, ts.Server, http.MethodPost, "/batches", "owner-1", `{"document":"garbage"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitInvalidDocumentIsBadRequest(t *testing.T) {
	ts := newTestServer(nil)
	ts.batches.submitErr = pipeline.ErrInvalidDocument
	rec := doRequest(t, ts.Server, http.MethodPost, "/batches", "owner-1", `{"document":"{}"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetBatchStatus(t *testing.T) {
	ts := newTestServer(nil)
	ts.batches.jobs["job-1"] = models.BatchJob{
		ID: "job-1", OwnerID: "owner-1", Status: models.StatusProcessing,
		TotalEvents: 4, ProcessedEvents: 3, FailedEvents: 0,
	}

	rec := doRequest(t, ts.Server, http.MethodGet, "/batches/job-1", "owner-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp jobStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Progress != 75 {
		t.Errorf("progress = %d, want 75", resp.Progress)
	}
}

func TestGetBatchNotFound(t *testing.T) {
	ts := newTestServer(nil)
	rec := doRequest(t, ts.Server, http.MethodGet, "/batches/missing", "owner-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetBatchWrongOwnerForbidden(t *testing.T) {
	ts := newTestServer(nil)
	ts.batches.jobs["job-1"] = models.BatchJob{ID: "job-1", OwnerID: "owner-1"}
	rec := doRequest(t, ts.Server, http.MethodGet, "/batches/job-1", "owner-2", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestListRisksSortedBySeverity(t *testing.T) {
	ts := newTestServer(nil)
	ts.risks.risks = []models.ComplianceRisk{
		{ID: "r1", Severity: models.SeverityLow},
		{ID: "r2", Severity: models.SeverityCritical},
		{ID: "r3", Severity: models.SeverityMedium},
		{ID: "r4", Severity: models.SeverityHigh},
	}

	rec := doRequest(t, ts.Server, http.MethodGet, "/risks", "owner-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Risks []models.ComplianceRisk `json:"risks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"r2", "r4", "r3", "r1"}
	for i, id := range want {
		if resp.Risks[i].ID != id {
			t.Errorf("risks[%d] = %s, want %s", i, resp.Risks[i].ID, id)
		}
	}
}

func TestListRisksLimitKeepsTopSeverity(t *testing.T) {
	ts := newTestServer(nil)
	// The critical risk is the oldest; a limit applied before severity
	// ordering would drop it in favor of the newer low-severity ones.
	ts.risks.risks = []models.ComplianceRisk{
		{ID: "r1", Severity: models.SeverityCritical},
		{ID: "r2", Severity: models.SeverityLow},
		{ID: "r3", Severity: models.SeverityLow},
		{ID: "r4", Severity: models.SeverityLow},
	}

	rec := doRequest(t, ts.Server, http.MethodGet, "/risks?limit=2", "owner-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Risks []models.ComplianceRisk `json:"risks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Risks) != 2 {
		t.Fatalf("len = %d, want 2", len(resp.Risks))
	}
	if resp.Risks[0].ID != "r1" {
		t.Errorf("risks[0] = %s, want r1", resp.Risks[0].ID)
	}
}

func TestResolveRisk(t *testing.T) {
	ts := newTestServer(nil)
	ts.risks.risks = []models.ComplianceRisk{{ID: "r1", Severity: models.SeverityHigh}}

	rec := doRequest(t, ts.Server, http.MethodPost, "/risks/r1/resolve", "owner-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	rec = doRequest(t, ts.Server, http.MethodPost, "/risks/unknown/resolve", "owner-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateEdge(t *testing.T) {
	ts := newTestServer(nil)

	rec := doRequest(t, ts.Server, http.MethodPost, "/graph/edges", "owner-1",
		`{"from_node_id":"n1","to_node_id":"n2","relationship_type":"supplies"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(ts.graph.edges) != 1 || ts.graph.edges[0].OwnerID != "owner-1" {
		t.Errorf("edges = %+v", ts.graph.edges)
	}

	rec = doRequest(t, ts.Server, http.MethodPost, "/graph/edges", "owner-1", `{"from_node_id":"n1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	ts := newTestServer(nil)
	rec := doRequest(t, ts.Server, http.MethodGet, "/analytics", "owner-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap models.AnalyticsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.OwnerID != "owner-1" {
		t.Errorf("ownerID = %s", snap.OwnerID)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := ratelimit.NewTokenBucket(client, 1, 0.001, time.Minute)
	ts := newTestServer(limiter)

	body := `{"document":"{\"epcisBody\":{\"eventList\":[{}]}}"}`
	rec := doRequest(t, ts.Server, http.MethodPost, "/batches", "owner-1", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first submit status = %d, want 202", rec.Code)
	}
	rec = doRequest(t, ts.Server, http.MethodPost, "/batches", "owner-1", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit status = %d, want 429", rec.Code)
	}
}
