package reconcile

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Action defines the recommended action after an error
type Action int

const (
	// ActionContinue keeps processing the current dataset
	ActionContinue Action = iota
	// ActionSkipDataset drops the current dataset pair from the summary
	ActionSkipDataset
	// ActionAbort stops the whole run
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionSkipDataset:
		return "skip_dataset"
	case ActionAbort:
		return "abort"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// ErrorCategory defines categories of errors during a reconciliation run
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryWarning
	ErrorCategoryConfig
	ErrorCategoryCompositeSchema
	ErrorCategoryMissingExport
	ErrorCategoryInputRead
	ErrorCategoryOutputWrite
	ErrorCategoryCritical
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryWarning:
		return "Warning"
	case ErrorCategoryConfig:
		return "Config"
	case ErrorCategoryCompositeSchema:
		return "CompositeSchema"
	case ErrorCategoryMissingExport:
		return "MissingExport"
	case ErrorCategoryInputRead:
		return "InputRead"
	case ErrorCategoryOutputWrite:
		return "OutputWrite"
	case ErrorCategoryCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// ErrorRecord represents a single error during a run
type ErrorRecord struct {
	Category  ErrorCategory
	Dataset   string
	Path      string
	Error     error
	Message   string // Derived from Error but stored for serialization
	Timestamp time.Time
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:  category,
		Error:     err,
		Timestamp: time.Now(),
	}
	if err != nil {
		record.Message = err.Error()
	}
	return record
}

// WithDataset adds the dataset slug to the error record
func (r ErrorRecord) WithDataset(slug string) ErrorRecord {
	r.Dataset = slug
	return r
}

// WithPath adds the file involved to the error record
func (r ErrorRecord) WithPath(path string) ErrorRecord {
	r.Path = path
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))

	if r.Dataset != "" {
		sb.WriteString(fmt.Sprintf("Dataset: %s ", r.Dataset))
	}
	if r.Path != "" {
		sb.WriteString(fmt.Sprintf("File: %s ", r.Path))
	}

	if r.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Error.Error()))
	} else if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Message))
	}

	return strings.TrimSpace(sb.String())
}

// ErrorHandler records errors and decides how the run proceeds
type ErrorHandler struct {
	logger        *zap.Logger
	errorCounts   map[ErrorCategory]int
	sampleErrors  map[ErrorCategory][]ErrorRecord
	datasetErrors map[string]int
	mu            sync.Mutex
	maxSamples    int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:        logger,
		errorCounts:   make(map[ErrorCategory]int),
		sampleErrors:  make(map[ErrorCategory][]ErrorRecord),
		datasetErrors: make(map[string]int),
		maxSamples:    5, // Store up to 5 sample errors per category
	}
}

// HandleError records an error and returns the action for it
func (eh *ErrorHandler) HandleError(record ErrorRecord) Action {
	eh.RecordError(record)

	switch record.Category {
	case ErrorCategoryNone, ErrorCategoryWarning, ErrorCategoryConfig, ErrorCategoryCompositeSchema:
		return ActionContinue

	case ErrorCategoryMissingExport, ErrorCategoryInputRead:
		return ActionSkipDataset

	case ErrorCategoryOutputWrite:
		// the dataset result stands; the next dataset still runs
		return ActionContinue

	case ErrorCategoryCritical:
		if eh.logger != nil {
			eh.logger.Error("Critical error during reconciliation",
				zap.String("dataset", record.Dataset),
				zap.String("error", record.Message))
		}
		return ActionAbort

	default:
		return ActionContinue
	}
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if record.Dataset != "" {
		eh.datasetErrors[record.Dataset]++
	}

	if eh.logger != nil {
		var logLevel = zap.InfoLevel
		switch record.Category {
		case ErrorCategoryWarning, ErrorCategoryConfig, ErrorCategoryCompositeSchema, ErrorCategoryMissingExport:
			logLevel = zap.WarnLevel
		case ErrorCategoryInputRead, ErrorCategoryOutputWrite, ErrorCategoryCritical:
			logLevel = zap.ErrorLevel
		}

		eh.logger.Log(logLevel, "Reconciliation error",
			zap.String("category", record.Category.String()),
			zap.String("dataset", record.Dataset),
			zap.String("path", record.Path),
			zap.String("error", record.Message))
	}
}

// GetErrorSummary returns a copy of the error counts per category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}
	return samples
}

// GetDatasetErrorCounts returns error counts by dataset slug
func (eh *ErrorHandler) GetDatasetErrorCounts() map[string]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	counts := make(map[string]int, len(eh.datasetErrors))
	for slug, count := range eh.datasetErrors {
		counts[slug] = count
	}
	return counts
}

// Combined merges the sampled errors at or above a category into one error
func (eh *ErrorHandler) Combined(min ErrorCategory) error {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	var err error
	for category := min; category <= ErrorCategoryCritical; category++ {
		for _, record := range eh.sampleErrors[category] {
			err = multierr.Append(err, fmt.Errorf("%s", record.String()))
		}
	}
	return err
}
