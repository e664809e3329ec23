package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func TestErrorHandlerActions(t *testing.T) {
	handler := NewErrorHandler(zap.NewNop())

	var useCases = []struct {
		category ErrorCategory
		expect   Action
	}{
		{category: ErrorCategoryWarning, expect: ActionContinue},
		{category: ErrorCategoryConfig, expect: ActionContinue},
		{category: ErrorCategoryCompositeSchema, expect: ActionContinue},
		{category: ErrorCategoryMissingExport, expect: ActionSkipDataset},
		{category: ErrorCategoryInputRead, expect: ActionSkipDataset},
		{category: ErrorCategoryOutputWrite, expect: ActionContinue},
		{category: ErrorCategoryCritical, expect: ActionAbort},
	}

	for _, useCase := range useCases {
		record := NewErrorRecord(errors.New("boom"), useCase.category).WithDataset("ICCAT")
		assert.Equal(t, useCase.expect, handler.HandleError(record), useCase.category.String())
	}

	summary := handler.GetErrorSummary()
	assert.Equal(t, 1, summary[ErrorCategoryInputRead])
	assert.Equal(t, 7, handler.GetDatasetErrorCounts()["ICCAT"])
}

func TestErrorRecordString(t *testing.T) {
	record := NewErrorRecord(errors.New("no such file"), ErrorCategoryInputRead).
		WithDataset("IOTC").
		WithPath("iotc.csv")
	assert.Equal(t, "[InputRead] Dataset: IOTC File: iotc.csv Error: no such file", record.String())
}

func TestErrorHandlerCombined(t *testing.T) {
	handler := NewErrorHandler(nil)
	handler.RecordError(NewErrorRecord(errors.New("minor"), ErrorCategoryWarning))
	handler.RecordError(NewErrorRecord(errors.New("disk full"), ErrorCategoryOutputWrite))
	handler.RecordError(NewErrorRecord(errors.New("bad header"), ErrorCategoryInputRead))

	err := handler.Combined(ErrorCategoryInputRead)
	assert.Len(t, multierr.Errors(err), 2)
	assert.NoError(t, handler.Combined(ErrorCategoryCritical))
}
