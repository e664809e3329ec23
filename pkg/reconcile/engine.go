package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/David-Botos/vessel-recon/pkg/cleaner"
	"github.com/David-Botos/vessel-recon/pkg/model"
	"github.com/David-Botos/vessel-recon/pkg/source"
)

// DatasetLoader reads both sides of a dataset pair
type DatasetLoader interface {
	LoadBaseline(ctx context.Context, path string) (*model.Dataset, error)
	LoadPipeline(ctx context.Context, path, slug string) (*model.Dataset, error)
}

// RunRecorder persists the summaries of a finished run
type RunRecorder interface {
	RecordRun(ctx context.Context, runID string, startedAt time.Time, summaries []model.Summary) error
}

// RunOptions controls a reconciliation run
type RunOptions struct {
	BaselineDir string
	CurrentDir  string
	DiffDir     string
	PreferExt   string
	Workers     int
	Progress    io.Writer // nil disables the progress bar
}

// Engine orchestrates a reconciliation run over a directory of baselines
type Engine struct {
	loader       DatasetLoader
	aligner      *Aligner
	comparator   *Comparator
	errorHandler *ErrorHandler
	metrics      *RunMetrics
	recorder     RunRecorder
	logger       *zap.Logger
}

// NewEngine creates an engine. All datasets share the canonicalizer.
func NewEngine(canon *cleaner.Canonicalizer, loader DatasetLoader, logger *zap.Logger) (*Engine, error) {
	if loader == nil {
		return nil, errors.New("loader cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	aligner, err := NewAligner(canon, logger)
	if err != nil {
		return nil, err
	}
	comparator, err := NewComparator(canon, logger)
	if err != nil {
		return nil, err
	}

	logger = logger.Named("engine")
	return &Engine{
		loader:       loader,
		aligner:      aligner,
		comparator:   comparator,
		errorHandler: NewErrorHandler(logger),
		metrics:      NewRunMetrics(logger),
		logger:       logger,
	}, nil
}

// WithRecorder attaches a run history recorder
func (e *Engine) WithRecorder(recorder RunRecorder) *Engine {
	e.recorder = recorder
	return e
}

// GetMetrics returns the metrics of the last run
func (e *Engine) GetMetrics() *RunMetrics {
	return e.metrics
}

// GetErrorSummary returns error counts by category
func (e *Engine) GetErrorSummary() map[ErrorCategory]int {
	return e.errorHandler.GetErrorSummary()
}

// CompareDatasets aligns and classifies a loaded pair
func (e *Engine) CompareDatasets(baseline, pipeline *model.Dataset) (AlignmentResult, DiffResult) {
	alignment := e.aligner.Align(baseline, pipeline)
	return alignment, e.comparator.Compare(baseline, pipeline, alignment)
}

// Run reconciles every baseline in opts.BaselineDir against its pipeline
// export and writes the per-dataset artifacts plus the aggregate summary.
// Results are ordered by baseline file name whatever the worker count.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	report := NewRunReport()
	logger := e.logger.With(zap.String("runID", report.RunID))

	for _, dir := range []string{opts.BaselineDir, opts.CurrentDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			err = fmt.Errorf("input directory %s is not readable: %v", dir, err)
			e.errorHandler.HandleError(NewErrorRecord(err, ErrorCategoryCritical).WithPath(dir))
			return report, err
		}
	}
	if err := os.MkdirAll(opts.DiffDir, 0o755); err != nil {
		e.errorHandler.HandleError(NewErrorRecord(err, ErrorCategoryCritical).WithPath(opts.DiffDir))
		return report, fmt.Errorf("failed to create diff directory: %w", err)
	}

	baselines, err := source.ListBaselines(opts.BaselineDir)
	if err != nil {
		return report, err
	}
	jobs := e.planJobs(baselines, opts, report)

	logger.Info("Starting reconciliation run",
		zap.String("baselineDir", opts.BaselineDir),
		zap.String("currentDir", opts.CurrentDir),
		zap.Int("datasets", len(jobs)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("workers", workerCount(opts.Workers, len(jobs))))

	results, runErr := e.runJobs(ctx, jobs, opts)
	sort.SliceStable(results, func(i, j int) bool {
		return filepath.Base(results[i].BaselinePath) < filepath.Base(results[j].BaselinePath)
	})
	report.Results = results

	report.SummaryPath = filepath.Join(opts.DiffDir, SummaryFileName)
	if err := WriteSummaryCSV(report.SummaryPath, report.Summaries()); err != nil {
		e.errorHandler.HandleError(NewErrorRecord(err, ErrorCategoryOutputWrite).WithPath(report.SummaryPath))
		runErr = multierr.Append(runErr, err)
	}

	if e.recorder != nil && runErr == nil {
		if err := e.recorder.RecordRun(ctx, report.RunID, report.StartTime, report.Summaries()); err != nil {
			e.errorHandler.HandleError(NewErrorRecord(
				fmt.Errorf("failed to record run history: %w", err), ErrorCategoryWarning))
		}
	}

	e.metrics.Complete()
	report.Complete()
	e.logErrorDigest(logger)

	logger.Info("Reconciliation run finished",
		zap.Int("compared", len(report.Summaries())),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("duration", report.Duration))

	return report, runErr
}

// planJobs resolves the pipeline export of every baseline. Baselines without
// an export are skipped.
func (e *Engine) planJobs(baselines []string, opts RunOptions, report *RunReport) []DatasetJob {
	jobs := make([]DatasetJob, 0, len(baselines))
	for _, path := range baselines {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		slug := model.SlugFromFilename(stem)
		if slug == "" {
			e.skip(report, slug, path, fmt.Errorf("no dataset slug in file name %s", filepath.Base(path)), ErrorCategoryWarning)
			continue
		}

		export, err := source.FindPipelineExport(opts.CurrentDir, slug, opts.PreferExt)
		if err != nil {
			e.skip(report, slug, path, err, ErrorCategoryMissingExport)
			continue
		}

		jobs = append(jobs, NewDatasetJob(slug, path).WithPipeline(export))
	}
	return jobs
}

func (e *Engine) skip(report *RunReport, slug, path string, err error, category ErrorCategory) {
	e.errorHandler.HandleError(NewErrorRecord(err, category).WithDataset(slug).WithPath(path))
	e.metrics.RecordSkipped(slug, err.Error())
	report.Skipped = append(report.Skipped, SkippedDataset{
		Slug:         slug,
		BaselinePath: path,
		Reason:       err.Error(),
	})
}

// runJobs fans the jobs out to a bounded worker pool and collects results
func (e *Engine) runJobs(parent context.Context, jobs []DatasetJob, opts RunOptions) ([]DatasetResult, error) {
	if len(jobs) == 0 {
		return nil, parent.Err()
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobCh := make(chan DatasetJob)
	resultCh := make(chan DatasetResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workerCount(opts.Workers, len(jobs)); i++ {
		worker := NewWorker(i, e, opts.DiffDir, e.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Start(ctx, jobCh, resultCh)
		}()
	}

	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	progress, bar := newProgress(opts.Progress, len(jobs))

	var results []DatasetResult
	var abortErr error
	for result := range resultCh {
		bar.Increment()

		collected, err := e.collect(result)
		if err != nil && abortErr == nil {
			abortErr = err
			cancel()
		}
		e.metrics.RecordDataset(collected)
		results = append(results, collected)
	}

	if !bar.Completed() {
		bar.Abort(false)
	}
	progress.Wait()

	if abortErr != nil {
		return results, abortErr
	}
	return results, parent.Err()
}

// collect records the warnings and errors of a finished dataset and applies
// the handler's action. A skipped dataset keeps its errors but drops out of
// the summary. The error is non-nil when the run must abort.
func (e *Engine) collect(result DatasetResult) (DatasetResult, error) {
	for _, warning := range result.Warnings {
		e.errorHandler.RecordError(NewErrorRecord(errors.New(warning), ErrorCategoryCompositeSchema).
			WithDataset(result.Slug))
	}

	var abortErr error
	for _, record := range result.Errors {
		switch e.errorHandler.HandleError(record) {
		case ActionSkipDataset:
			result.Compared = false
		case ActionAbort:
			if abortErr == nil {
				abortErr = fmt.Errorf("run aborted: %w", e.errorHandler.Combined(ErrorCategoryCritical))
			}
		}
	}
	return result, abortErr
}

// logErrorDigest reports what the error handler saw during the run
func (e *Engine) logErrorDigest(logger *zap.Logger) {
	counts := e.errorHandler.GetErrorSummary()
	if len(counts) == 0 {
		return
	}

	samples := e.errorHandler.GetErrorSamples()
	for category := ErrorCategoryNone; category <= ErrorCategoryCritical; category++ {
		if counts[category] == 0 {
			continue
		}
		messages := make([]string, 0, len(samples[category]))
		for _, record := range samples[category] {
			messages = append(messages, record.String())
		}
		logger.Info("Error digest",
			zap.String("category", category.String()),
			zap.Int("count", counts[category]),
			zap.Strings("samples", messages))
	}

	if byDataset := e.errorHandler.GetDatasetErrorCounts(); len(byDataset) > 0 {
		logger.Info("Errors by dataset", zap.Any("datasets", byDataset))
	}
}

// newProgress builds the dataset progress bar; a nil writer discards output
func newProgress(w io.Writer, total int) (*mpb.Progress, *mpb.Bar) {
	if w == nil {
		w = io.Discard
	}
	p := mpb.New(mpb.WithOutput(w), mpb.WithWidth(40))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("Reconciling datasets: ", decor.WC{W: 22}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO),
			decor.Name(" | "),
			decor.OnComplete(decor.Percentage(), "done"),
		),
	)
	return p, bar
}

func workerCount(requested, jobs int) int {
	n := requested
	if n < 1 {
		n = 1
	}
	if jobs > 0 && n > jobs {
		n = jobs
	}
	return n
}
