package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

// DatasetJob is one baseline/pipeline pair to reconcile
type DatasetJob struct {
	ID           string    // Unique job identifier
	Slug         string    // Dataset slug, uppercase
	BaselinePath string    // Baseline file
	PipelinePath string    // Pipeline export, resolved before dispatch
	CreatedAt    time.Time // Job creation timestamp
}

// NewDatasetJob creates a job for a baseline file
func NewDatasetJob(slug, baselinePath string) DatasetJob {
	return DatasetJob{
		ID:           uuid.New().String(),
		Slug:         slug,
		BaselinePath: baselinePath,
		CreatedAt:    time.Now(),
	}
}

// WithPipeline sets the pipeline export path and returns the modified job
func (j DatasetJob) WithPipeline(path string) DatasetJob {
	j.PipelinePath = path
	return j
}

// DatasetOutputs lists the artifacts written for a dataset
type DatasetOutputs struct {
	DiffPath     string
	PresencePath string
	SummaryPath  string
}

// DatasetResult is the outcome of one job
type DatasetResult struct {
	JobID        string
	Slug         string
	BaselinePath string
	PipelinePath string
	Success      bool
	Compared     bool // alignment and classification ran
	Summary      model.Summary
	Presence     []model.ColumnPresence
	Outcome      model.AlignmentOutcome
	Mismatches   int
	Outputs      DatasetOutputs
	Errors       []ErrorRecord
	Warnings     []string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	WorkerID     int
}

// NewDatasetResult initializes a result for a job
func NewDatasetResult(job DatasetJob, workerID int) *DatasetResult {
	return &DatasetResult{
		JobID:        job.ID,
		Slug:         job.Slug,
		BaselinePath: job.BaselinePath,
		PipelinePath: job.PipelinePath,
		StartTime:    time.Now(),
		WorkerID:     workerID,
	}
}

// Complete marks the job as complete and calculates duration
func (r *DatasetResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success && len(r.Errors) == 0
}

// AddError adds an error to the result
func (r *DatasetResult) AddError(err ErrorRecord) {
	r.Errors = append(r.Errors, err)
	r.Success = false
}

// AddWarning adds a warning to the result
func (r *DatasetResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// HasErrors checks if any errors occurred
func (r *DatasetResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// SkippedDataset is a baseline that had no usable pipeline export
type SkippedDataset struct {
	Slug         string
	BaselinePath string
	Reason       string
}

// RunReport collects everything a run produced
type RunReport struct {
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Results     []DatasetResult // sorted by baseline file name
	Skipped     []SkippedDataset
	SummaryPath string
}

// NewRunReport initializes a report with a fresh run id
func NewRunReport() *RunReport {
	return &RunReport{
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
	}
}

// Complete stamps the end of the run
func (r *RunReport) Complete() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Summaries returns the summaries of every compared dataset in result order
func (r *RunReport) Summaries() []model.Summary {
	var out []model.Summary
	for _, result := range r.Results {
		if result.Compared {
			out = append(out, result.Summary)
		}
	}
	return out
}

// Failed returns the results that carry errors
func (r *RunReport) Failed() []DatasetResult {
	var out []DatasetResult
	for _, result := range r.Results {
		if result.HasErrors() {
			out = append(out, result)
		}
	}
	return out
}
