// pkg/cleaner/nulls.go
package cleaner

import (
	"strings"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

// Reasons reported when no null category is configured for a token
const (
	NullReasonEmpty   = "empty"
	NullReasonUnknown = "unknown"
)

// NullClassifier decides whether a raw value is null and why
type NullClassifier struct {
	tokens     map[string]bool
	categories map[string]string
}

// NewNullClassifier creates a classifier. Tokens and category keys match the
// trimmed value case-insensitively.
func NewNullClassifier(tokens []string, categories map[string]string) *NullClassifier {
	nc := &NullClassifier{
		tokens:     make(map[string]bool, len(tokens)),
		categories: make(map[string]string, len(categories)),
	}
	for _, token := range tokens {
		nc.tokens[strings.ToUpper(strings.TrimSpace(token))] = true
	}
	for token, category := range categories {
		nc.categories[strings.ToUpper(strings.TrimSpace(token))] = category
	}
	return nc
}

// Classify never fails: every input maps to exactly one classification
func (n *NullClassifier) Classify(raw string) model.NullClassification {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)

	if trimmed != "" && !n.tokens[upper] {
		return model.NullClassification{IsNull: false, Value: trimmed}
	}

	reason, ok := n.categories[upper]
	if !ok || reason == "" {
		if trimmed == "" {
			reason = NullReasonEmpty
		} else {
			reason = NullReasonUnknown
		}
	}

	return model.NullClassification{
		IsNull: true,
		Value:  model.NullSentinel,
		Reason: reason,
	}
}
