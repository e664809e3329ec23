package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// WorkerState represents the current state of a worker
type WorkerState string

const (
	WorkerStateIdle      WorkerState = "idle"
	WorkerStateWorking   WorkerState = "working"
	WorkerStateCompleted WorkerState = "completed"
)

// Worker reconciles dataset jobs pulled from a channel
type Worker struct {
	ID        int
	engine    *Engine
	diffDir   string
	logger    *zap.Logger
	state     WorkerState
	stateLock sync.Mutex
}

// NewWorker creates a new worker writing artifacts to diffDir
func NewWorker(id int, engine *Engine, diffDir string, logger *zap.Logger) *Worker {
	return &Worker{
		ID:      id,
		engine:  engine,
		diffDir: diffDir,
		logger:  logger.With(zap.Int("workerID", id)),
		state:   WorkerStateIdle,
	}
}

func (w *Worker) setState(state WorkerState) {
	w.stateLock.Lock()
	defer w.stateLock.Unlock()

	prevState := w.state
	w.state = state

	if prevState != state {
		w.logger.Debug("Worker state changed",
			zap.String("from", string(prevState)),
			zap.String("to", string(state)))
	}
}

// Start begins the worker processing loop
func (w *Worker) Start(ctx context.Context, jobs <-chan DatasetJob, results chan<- DatasetResult) {
	defer w.setState(WorkerStateCompleted)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker stopping due to context cancellation")
			return

		case job, ok := <-jobs:
			if !ok {
				return
			}

			result := w.ProcessJob(ctx, job)

			select {
			case results <- result:
			case <-ctx.Done():
				w.logger.Warn("Context cancelled while sending result",
					zap.String("dataset", job.Slug))
				return
			}
		}
	}
}

// ProcessJob loads, aligns, classifies and writes one dataset pair. Load
// failures end the job; write failures are recorded on a compared result.
func (w *Worker) ProcessJob(ctx context.Context, job DatasetJob) DatasetResult {
	w.setState(WorkerStateWorking)
	defer w.setState(WorkerStateIdle)

	result := NewDatasetResult(job, w.ID)
	logger := w.logger.With(zap.String("dataset", job.Slug))
	logger.Debug("Starting dataset",
		zap.String("baseline", job.BaselinePath),
		zap.String("pipeline", job.PipelinePath))

	baseline, err := w.engine.loader.LoadBaseline(ctx, job.BaselinePath)
	if err != nil {
		result.AddError(NewErrorRecord(err, ErrorCategoryInputRead).
			WithDataset(job.Slug).
			WithPath(job.BaselinePath))
		result.Complete(false)
		return *result
	}

	pipeline, err := w.engine.loader.LoadPipeline(ctx, job.PipelinePath, job.Slug)
	if err != nil {
		result.AddError(NewErrorRecord(err, ErrorCategoryInputRead).
			WithDataset(job.Slug).
			WithPath(job.PipelinePath))
		result.Complete(false)
		return *result
	}

	alignment, diff := w.engine.CompareDatasets(baseline, pipeline)
	result.Compared = true
	result.Summary = diff.Summary
	result.Presence = diff.Presence
	result.Outcome = alignment.Outcome
	result.Mismatches = len(diff.Mismatches())

	for _, set := range alignment.Outcome.SkippedCompositeSets {
		result.AddWarning(fmt.Sprintf("composite key set [%s] not applicable", strings.Join(set, ", ")))
	}

	outputs := OutputsFor(w.diffDir, job.Slug)
	if err := WriteDatasetOutputs(outputs, diff); err != nil {
		result.AddError(NewErrorRecord(err, ErrorCategoryOutputWrite).
			WithDataset(job.Slug).
			WithPath(w.diffDir))
	}
	result.Outputs = outputs
	result.Complete(true)

	logger.Debug("Dataset finished",
		zap.Int("total_cells", result.Summary.TotalCells),
		zap.Int("mismatches", result.Mismatches),
		zap.Duration("duration", result.Duration))

	return *result
}
