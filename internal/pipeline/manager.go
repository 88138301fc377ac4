package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"epcis-ingestion/internal/analytics"
	"epcis-ingestion/internal/epcis"
	"epcis-ingestion/internal/graph"
	"epcis-ingestion/internal/models"
	"epcis-ingestion/internal/risk"
	"epcis-ingestion/internal/store"
	"epcis-ingestion/internal/telemetry"
)

// ErrInvalidDocument rejects submissions whose document parses to zero
// events. Structural parse failures surface as *epcis.ParseError instead.
var ErrInvalidDocument = errors.New("document contains no events")

// Store is the persistence surface the manager needs. Implemented by
// *store.Store.
type Store interface {
	CreateBatchJob(ctx context.Context, p store.CreateJobParams) (models.BatchJob, error)
	GetBatchJob(ctx context.Context, id string) (models.BatchJob, error)
	ListBatchJobs(ctx context.Context, ownerID string, limit, offset int) ([]models.BatchJob, error)
	MarkJobProcessing(ctx context.Context, id string) error
	UpdateJobProgress(ctx context.Context, id string, processed, failed int) error
	MarkJobCompleted(ctx context.Context, id string, processed, failed int) error
	MarkJobFailed(ctx context.Context, id string, processed, failed int, errorMessage string) error
	InsertEvent(ctx context.Context, ev models.CanonicalEvent) (models.CanonicalEvent, error)
	InsertRisk(ctx context.Context, r models.ComplianceRisk) (models.ComplianceRisk, error)
}

// Manager owns the batch-job state machine: it accepts documents, drives the
// pipeline asynchronously and answers status polls.
type Manager struct {
	store     Store
	graph     *graph.Builder
	detector  *risk.Detector
	analytics *analytics.Aggregator
	pool      *Pool
	log       *slog.Logger
}

func NewManager(st Store, gb *graph.Builder, det *risk.Detector, agg *analytics.Aggregator, pool *Pool, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:     st,
		graph:     gb,
		detector:  det,
		analytics: agg,
		pool:      pool,
		log:       log,
	}
}

// Close waits for all in-flight batches to reach a terminal status.
func (m *Manager) Close() {
	m.pool.Stop()
}

// SubmitParams collects one batch submission.
type SubmitParams struct {
	OwnerID  string
	FileName string
	FileSize int64
	Raw      string
}

// Submit parses the document synchronously to fix totalEvents, persists a
// queued job and dispatches the processing task. It returns before any event
// is processed. A document that cannot be parsed creates no job row.
func (m *Manager) Submit(ctx context.Context, p SubmitParams) (models.BatchJob, error) {
	doc, err := epcis.Parse(p.Raw)
	if err != nil {
		return models.BatchJob{}, err
	}
	if len(doc.Events) == 0 {
		return models.BatchJob{}, ErrInvalidDocument
	}

	job, err := m.store.CreateBatchJob(ctx, store.CreateJobParams{
		OwnerID:     p.OwnerID,
		FileName:    p.FileName,
		FileSize:    p.FileSize,
		TotalEvents: len(doc.Events),
	})
	if err != nil {
		return models.BatchJob{}, fmt.Errorf("create batch job: %w", err)
	}
	telemetry.BatchesSubmitted.Inc()

	events := doc.Events
	m.pool.Dispatch(func() {
		// The submitting request's context dies with the response; the
		// batch runs on its own.
		m.process(context.Background(), job, events)
	})
	return job, nil
}

// GetStatus returns the job row for polling. Ownership checks against the
// returned OwnerID are the identity collaborator's concern.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (models.BatchJob, error) {
	return m.store.GetBatchJob(ctx, jobID)
}

// ListBatches returns a reverse-chronological page of the owner's jobs.
func (m *Manager) ListBatches(ctx context.Context, ownerID string, limit, offset int) ([]models.BatchJob, error) {
	return m.store.ListBatchJobs(ctx, ownerID, limit, offset)
}

// process drives one batch to a terminal status. Events are handled
// sequentially; a per-event failure increments failedEvents and the batch
// continues. Only a failure writing the job row itself fails the batch.
func (m *Manager) process(ctx context.Context, job models.BatchJob, events []epcis.Event) {
	log := m.log.With("job_id", job.ID, "owner_id", job.OwnerID)
	telemetry.BatchesInFlight.Inc()
	defer telemetry.BatchesInFlight.Dec()

	if err := m.store.MarkJobProcessing(ctx, job.ID); err != nil {
		log.Error("mark processing failed", "error", err)
		m.failJob(ctx, job, 0, err, log)
		m.recompute(ctx, job.OwnerID, log)
		return
	}

	processed, failed := 0, 0
	for i, ev := range events {
		if err := m.processEvent(ctx, job, ev); err != nil {
			failed++
			telemetry.EventsFailed.Inc()
			log.Warn("event processing failed", "event_index", i, "error", err)
		} else {
			processed++
			telemetry.EventsProcessed.Inc()
		}
		if err := m.store.UpdateJobProgress(ctx, job.ID, processed, failed); err != nil {
			log.Error("progress update failed", "error", err)
			m.failJob(ctx, job, processed, err, log)
			m.recompute(ctx, job.OwnerID, log)
			return
		}
	}

	// Per-event failures do not fail the batch; they are visible through
	// failedEvents only.
	if err := m.store.MarkJobCompleted(ctx, job.ID, processed, failed); err != nil {
		log.Error("mark completed failed", "error", err)
		m.failJob(ctx, job, processed, err, log)
		m.recompute(ctx, job.OwnerID, log)
		return
	}
	telemetry.BatchesCompleted.Inc()
	log.Info("batch completed", "processed", processed, "failed", failed)

	m.recompute(ctx, job.OwnerID, log)
}

func (m *Manager) processEvent(ctx context.Context, job models.BatchJob, ev epcis.Event) error {
	stored, err := m.store.InsertEvent(ctx, canonical(job, ev))
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	if _, err := m.graph.ExtractAndUpsert(ctx, job.OwnerID, ev); err != nil {
		return fmt.Errorf("extract nodes: %w", err)
	}

	for _, r := range m.detector.Detect(ev) {
		r.OwnerID = job.OwnerID
		r.EventID = stored.ID
		if _, err := m.store.InsertRisk(ctx, r); err != nil {
			return fmt.Errorf("persist risk: %w", err)
		}
		telemetry.RisksDetected.Inc()
	}
	return nil
}

// failJob lands the batch in its failed terminal state. Every event that
// was not successfully processed, including the ones the pipeline never
// reached, counts as failed so processed+failed always equals totalEvents.
func (m *Manager) failJob(ctx context.Context, job models.BatchJob, processed int, cause error, log *slog.Logger) {
	failed := job.TotalEvents - processed
	if failed < 0 {
		failed = 0
	}
	if err := m.store.MarkJobFailed(ctx, job.ID, processed, failed, cause.Error()); err != nil {
		log.Error("mark failed failed", "error", err)
	}
	telemetry.BatchesFailed.Inc()
}

// recompute refreshes the owner's analytics snapshot after a terminal
// transition. Failures are logged, never propagated to the batch.
func (m *Manager) recompute(ctx context.Context, ownerID string, log *slog.Logger) {
	if m.analytics == nil {
		return
	}
	if _, err := m.analytics.Recompute(ctx, ownerID); err != nil {
		log.Error("analytics recompute failed", "error", err)
	}
}

func canonical(job models.BatchJob, ev epcis.Event) models.CanonicalEvent {
	jobID := job.ID
	return models.CanonicalEvent{
		OwnerID:           job.OwnerID,
		JobID:             &jobID,
		Type:              ev.Type,
		EventTime:         ev.EventTime,
		Action:            ev.Action,
		BizStep:           ev.BizStep,
		Disposition:       ev.Disposition,
		ReadPoint:         ev.ReadPoint,
		BizLocation:       ev.BizLocation,
		EPCList:           ev.EPCList,
		QuantityList:      ev.QuantityList,
		SourceList:        ev.SourceList,
		DestinationList:   ev.DestinationList,
		SensorElementList: ev.SensorElementList,
		ILMD:              ev.ILMD,
		RawEvent:          ev.Raw,
	}
}
