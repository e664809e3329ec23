package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/David-Botos/vessel-recon/pkg/config"
	"github.com/David-Botos/vessel-recon/pkg/model"
)

func TestNullClassifier(t *testing.T) {
	classifier := NewNullClassifier(config.DefaultNullValues, map[string]string{
		"n/a": "not_applicable",
	})

	var useCases = []struct {
		description string
		raw         string
		expect      model.NullClassification
	}{
		{
			description: "empty string",
			raw:         "",
			expect:      model.NullClassification{IsNull: true, Value: model.NullSentinel, Reason: NullReasonEmpty},
		},
		{
			description: "whitespace only",
			raw:         " \t ",
			expect:      model.NullClassification{IsNull: true, Value: model.NullSentinel, Reason: NullReasonEmpty},
		},
		{
			description: "configured category",
			raw:         " N/A",
			expect:      model.NullClassification{IsNull: true, Value: model.NullSentinel, Reason: "not_applicable"},
		},
		{
			description: "token without category",
			raw:         "none",
			expect:      model.NullClassification{IsNull: true, Value: model.NullSentinel, Reason: NullReasonUnknown},
		},
		{
			description: "dash token",
			raw:         "—",
			expect:      model.NullClassification{IsNull: true, Value: model.NullSentinel, Reason: NullReasonUnknown},
		},
		{
			description: "value is trimmed",
			raw:         "  OCEAN STAR ",
			expect:      model.NullClassification{IsNull: false, Value: "OCEAN STAR"},
		},
		{
			description: "token inside a value is not null",
			raw:         "NA-01",
			expect:      model.NullClassification{IsNull: false, Value: "NA-01"},
		},
	}

	for _, useCase := range useCases {
		assert.Equal(t, useCase.expect, classifier.Classify(useCase.raw), useCase.description)
	}
}

func TestNullClassifierWithoutTokens(t *testing.T) {
	classifier := NewNullClassifier(nil, nil)

	assert.True(t, classifier.Classify("").IsNull)
	assert.False(t, classifier.Classify("NULL").IsNull)
}
