package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/borisletic/lti-qa-tool/internal/metrics"
	"github.com/borisletic/lti-qa-tool/internal/storage"
)

// JobType is the queue type of material ingest jobs.
const JobType = "ingest_document"

// JobStore abstracts the job queue operations.
type JobStore interface {
	DocumentStore
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	FailJobPermanent(id string, errMsg string) error
	GetJob(id string) (storage.Job, error)
}

// Payload is the JSON body of an ingest_document job. Path points to the
// staged upload on disk.
type Payload struct {
	Course   string `json:"course"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// Enqueue schedules the staged file for background ingestion and marks the
// document pending. It returns the job id.
func Enqueue(store JobStore, p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(b),
	}
	if err := store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	doc := storage.Document{
		Course:   p.Course,
		Filename: p.Filename,
		Status:   storage.DocPending,
	}
	if err := store.UpsertDocument(doc); err != nil {
		return job.ID, fmt.Errorf("recording document: %w", err)
	}
	return job.ID, nil
}

// Worker processes ingest_document jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	index   Indexer
	metrics *metrics.Metrics
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, index Indexer, m *metrics.Metrics, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		index:   index,
		metrics: m,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single ingest_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	p, err := w.processJob(ctx, job)
	if err != nil {
		w.fail(job, p, err)
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.metrics.ObserveJob(storage.JobCompleted)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return p, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if p.Course == "" || p.Path == "" {
		return p, fmt.Errorf("%w: course and path are required", errBadPayload)
	}

	out, err := File(ctx, w.index, w.store, p.Course, p.Path)
	if err != nil {
		return p, err
	}
	w.logger.Info("material ingested", "job_id", job.ID, "course", p.Course,
		"file", out.Filename, "fragments", out.Fragments)
	return p, nil
}

// fail records a job failure. Validation errors fail the job immediately;
// other errors are retried with backoff until attempts run out.
func (w *Worker) fail(job *storage.Job, p Payload, err error) {
	permanent := IsPermanent(err)
	w.logger.Warn("job failed", "job_id", job.ID, "permanent", permanent, "error", err)

	var failErr error
	if permanent {
		failErr = w.store.FailJobPermanent(job.ID, err.Error())
	} else {
		failErr = w.store.FailJob(job.ID, err.Error())
	}
	if failErr != nil {
		w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		return
	}

	status := storage.JobFailed
	if !permanent {
		if j, err := w.store.GetJob(job.ID); err == nil {
			status = j.Status
		}
	}
	w.metrics.ObserveJob(status)

	if p.Course == "" || p.Filename == "" {
		return
	}
	doc := storage.Document{Course: p.Course, Filename: p.Filename, Status: storage.DocPending, LastError: err.Error()}
	if status == storage.JobFailed {
		doc.Status = storage.DocFailed
	}
	if err := w.store.UpsertDocument(doc); err != nil {
		w.logger.Error("failed to record document state", "job_id", job.ID, "error", err)
	}
}
