// pkg/config/diff.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/David-Botos/vessel-recon/pkg/model"
)

// Unicode normalization forms accepted by unicode.normalize
const (
	NormalizeNone = ""
	NormalizeNFC  = "NFC"
	NormalizeNFD  = "NFD"
	NormalizeNFKC = "NFKC"
	NormalizeNFKD = "NFKD"
)

// DefaultNullValues are the tokens treated as null when none are configured
var DefaultNullValues = []string{"", "N/A", "NA", "NONE", "NULL", "—", "-"}

// UnicodeConfig controls Unicode normalization and accent folding
type UnicodeConfig struct {
	Normalize                string
	AccentInsensitiveColumns []string
}

// IgnoreTransformations lists the cosmetic differences the comparison ignores
type IgnoreTransformations struct {
	DateFormats    bool
	FloatPrecision *int
	Whitespace     bool
}

// NullPolicy controls how null transitions count in the null-aware match rate
type NullPolicy struct {
	CountMatchNullAsPositive bool
	CountInfoGainAsPositive  bool
	CountInfoLossAsNegative  bool
}

// KeySets is an ordered list of composite key column sets. In YAML it is
// either a list of lists or a single flat list.
type KeySets [][]string

// UnmarshalYAML accepts both the flat and the nested shape
func (k *KeySets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: composite key sets must be a sequence", node.Line)
	}
	if len(node.Content) == 0 {
		*k = KeySets{}
		return nil
	}

	if node.Content[0].Kind == yaml.ScalarNode {
		var flat []string
		if err := node.Decode(&flat); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*k = KeySets{flat}
		return nil
	}

	var sets [][]string
	if err := node.Decode(&sets); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*k = sets
	return nil
}

// DiffConfig is the immutable comparison configuration. Column names in every
// field are stored in canonical form.
type DiffConfig struct {
	JoinKey                string
	Aliases                map[string]string
	CaseInsensitiveColumns []string
	DateColumns            []string
	ValueMappings          map[string]map[string]string
	Unicode                UnicodeConfig
	Numeric                map[string]int
	IgnoreTransformations  IgnoreTransformations
	NullValues             []string
	NullCategories         map[string]string
	NullPolicy             NullPolicy
	CompositeKeys          KeySets
	CompositeOverrides     map[string]KeySets
}

// diffDocument mirrors the YAML layout. Pointers and nil collections mark
// keys that were absent from the document.
type diffDocument struct {
	JoinKey                *string                      `yaml:"join_key"`
	Aliases                map[string]string            `yaml:"aliases"`
	CaseInsensitiveColumns []string                     `yaml:"case_insensitive_columns"`
	DateColumns            []string                     `yaml:"date_columns"`
	ValueMappings          map[string]map[string]string `yaml:"value_mappings"`
	Unicode                *struct {
		Normalize                *string  `yaml:"normalize"`
		AccentInsensitiveColumns []string `yaml:"accent_insensitive_columns"`
	} `yaml:"unicode"`
	Numeric               map[string]int `yaml:"numeric"`
	IgnoreTransformations *struct {
		DateFormats    *bool `yaml:"date_formats"`
		FloatPrecision *int  `yaml:"float_precision"`
		Whitespace     *bool `yaml:"whitespace"`
	} `yaml:"ignore_transformations"`
	NullValues     []string          `yaml:"null_values"`
	NullCategories map[string]string `yaml:"null_categories"`
	NullPolicy     *struct {
		CountMatchNullAsPositive *bool `yaml:"count_match_null_as_positive"`
		CountInfoGainAsPositive  *bool `yaml:"count_info_gain_as_positive"`
		CountInfoLossAsNegative  *bool `yaml:"count_info_loss_as_negative"`
	} `yaml:"null_policy"`
	CompositeKeys      KeySets            `yaml:"composite_keys"`
	CompositeOverrides map[string]KeySets `yaml:"composite_overrides"`
}

// DefaultDiffConfig returns the configuration used when no document is given
func DefaultDiffConfig() DiffConfig {
	cfg := DiffConfig{
		Aliases: map[string]string{
			"IMO_NUMBER": "IMO",
			"IMO_NO":     "IMO",
		},
		CaseInsensitiveColumns: []string{"FLAG"},
		ValueMappings:          map[string]map[string]string{},
		Numeric:                map[string]int{},
		IgnoreTransformations: IgnoreTransformations{
			DateFormats: false,
			Whitespace:  true,
		},
		NullValues:     append([]string(nil), DefaultNullValues...),
		NullCategories: map[string]string{},
		NullPolicy: NullPolicy{
			CountMatchNullAsPositive: true,
			CountInfoGainAsPositive:  true,
			CountInfoLossAsNegative:  true,
		},
		CompositeKeys:      KeySets{},
		CompositeOverrides: map[string]KeySets{},
	}
	cfg, _ = cfg.normalize()
	return cfg
}

// ParseDiffConfig decodes a YAML document over the defaults. Unknown keys and
// malformed values are errors. The returned issues describe entries that were
// dropped during normalization.
func ParseDiffConfig(data []byte) (DiffConfig, []string, error) {
	cfg := DefaultDiffConfig()

	var doc diffDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil, nil
		}
		return DefaultDiffConfig(), nil, fmt.Errorf("failed to decode diff config: %w", err)
	}

	doc.applyTo(&cfg)
	cfg, issues := cfg.normalize()
	return cfg, issues, nil
}

// LoadDiffConfig reads the diff configuration at path. Any problem is logged
// and the defaults are used, so a run never fails on configuration alone.
func LoadDiffConfig(path string, logger *zap.Logger) DiffConfig {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("Diff config not found, using defaults", zap.String("path", path))
		} else {
			logger.Warn("Failed to read diff config, using defaults",
				zap.String("path", path),
				zap.Error(err))
		}
		return DefaultDiffConfig()
	}

	cfg, issues, err := ParseDiffConfig(data)
	if err != nil {
		logger.Warn("Invalid diff config, using defaults",
			zap.String("path", path),
			zap.Error(err))
		return DefaultDiffConfig()
	}
	for _, issue := range issues {
		logger.Warn("Diff config entry ignored", zap.String("path", path), zap.String("issue", issue))
	}

	logger.Info("Loaded diff config", zap.String("path", path))
	return cfg
}

func (doc diffDocument) applyTo(cfg *DiffConfig) {
	if doc.JoinKey != nil {
		cfg.JoinKey = *doc.JoinKey
	}
	// document aliases extend the defaults
	if doc.Aliases != nil {
		merged := copyStringMap(cfg.Aliases)
		for from, to := range doc.Aliases {
			merged[from] = to
		}
		cfg.Aliases = merged
	}
	if doc.CaseInsensitiveColumns != nil {
		cfg.CaseInsensitiveColumns = doc.CaseInsensitiveColumns
	}
	if doc.DateColumns != nil {
		cfg.DateColumns = doc.DateColumns
	}
	if doc.ValueMappings != nil {
		cfg.ValueMappings = doc.ValueMappings
	}
	if doc.Unicode != nil {
		if doc.Unicode.Normalize != nil {
			cfg.Unicode.Normalize = *doc.Unicode.Normalize
		}
		if doc.Unicode.AccentInsensitiveColumns != nil {
			cfg.Unicode.AccentInsensitiveColumns = doc.Unicode.AccentInsensitiveColumns
		}
	}
	if doc.Numeric != nil {
		cfg.Numeric = doc.Numeric
	}
	if doc.IgnoreTransformations != nil {
		it := doc.IgnoreTransformations
		if it.DateFormats != nil {
			cfg.IgnoreTransformations.DateFormats = *it.DateFormats
		}
		if it.FloatPrecision != nil {
			precision := *it.FloatPrecision
			cfg.IgnoreTransformations.FloatPrecision = &precision
		}
		if it.Whitespace != nil {
			cfg.IgnoreTransformations.Whitespace = *it.Whitespace
		}
	}
	if doc.NullValues != nil {
		cfg.NullValues = doc.NullValues
	}
	if doc.NullCategories != nil {
		cfg.NullCategories = doc.NullCategories
	}
	if doc.NullPolicy != nil {
		np := doc.NullPolicy
		if np.CountMatchNullAsPositive != nil {
			cfg.NullPolicy.CountMatchNullAsPositive = *np.CountMatchNullAsPositive
		}
		if np.CountInfoGainAsPositive != nil {
			cfg.NullPolicy.CountInfoGainAsPositive = *np.CountInfoGainAsPositive
		}
		if np.CountInfoLossAsNegative != nil {
			cfg.NullPolicy.CountInfoLossAsNegative = *np.CountInfoLossAsNegative
		}
	}
	if doc.CompositeKeys != nil {
		cfg.CompositeKeys = doc.CompositeKeys
	}
	if doc.CompositeOverrides != nil {
		cfg.CompositeOverrides = doc.CompositeOverrides
	}
}

// WithEnvOverrides applies CASE_INSENSITIVE_COLUMNS, IGNORE_DATE_FORMATS,
// ROUND_FLOATS and IGNORE_WHITESPACE from lookup. A nil lookup reads the
// process environment.
func (c DiffConfig) WithEnvOverrides(lookup func(string) (string, bool)) (DiffConfig, []string) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var issues []string
	cfg := c.clone()

	if value, ok := lookup("CASE_INSENSITIVE_COLUMNS"); ok && value != "" {
		cfg.CaseInsensitiveColumns = splitList(value)
	}
	if value, ok := lookup("IGNORE_DATE_FORMATS"); ok && value != "" {
		if b, err := parseBool(value); err == nil {
			cfg.IgnoreTransformations.DateFormats = b
		} else {
			issues = append(issues, "IGNORE_DATE_FORMATS: "+err.Error())
		}
	}
	if value, ok := lookup("ROUND_FLOATS"); ok && value != "" {
		if precision, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && precision >= 0 {
			cfg.IgnoreTransformations.FloatPrecision = &precision
		} else {
			issues = append(issues, fmt.Sprintf("ROUND_FLOATS: invalid precision %q", value))
		}
	}
	if value, ok := lookup("IGNORE_WHITESPACE"); ok && value != "" {
		if b, err := parseBool(value); err == nil {
			cfg.IgnoreTransformations.Whitespace = b
		} else {
			issues = append(issues, "IGNORE_WHITESPACE: "+err.Error())
		}
	}

	cfg, normalizeIssues := cfg.normalize()
	return cfg, append(issues, normalizeIssues...)
}

// ResolveColumn canonicalizes a raw column name: structural normalization
// followed by alias resolution.
func (c DiffConfig) ResolveColumn(raw string) string {
	name := model.NormalizeColumnName(raw)
	if target, ok := c.Aliases[name]; ok {
		return target
	}
	return name
}

// CompositeSetsFor returns the composite key sets that apply to a dataset slug
func (c DiffConfig) CompositeSetsFor(slug string) KeySets {
	if sets, ok := c.CompositeOverrides[strings.ToUpper(slug)]; ok {
		return sets
	}
	return c.CompositeKeys
}

// FloatPrecisionFor returns the rounding precision configured for a column
func (c DiffConfig) FloatPrecisionFor(column string) (int, bool) {
	if precision, ok := c.Numeric[column]; ok {
		return precision, true
	}
	if c.IgnoreTransformations.FloatPrecision != nil {
		return *c.IgnoreTransformations.FloatPrecision, true
	}
	return 0, false
}

// normalize returns a copy with canonical column names everywhere and
// reports the entries it had to drop.
func (c DiffConfig) normalize() (DiffConfig, []string) {
	var issues []string
	out := c.clone()

	// Aliases first: every other column-keyed field resolves through them
	aliases := make(map[string]string, len(c.Aliases))
	for from, to := range c.Aliases {
		key := model.NormalizeColumnName(from)
		target := model.NormalizeColumnName(to)
		if key == "" || target == "" {
			issues = append(issues, fmt.Sprintf("alias %q -> %q has an empty side", from, to))
			continue
		}
		if key == target {
			continue
		}
		aliases[key] = target
	}
	for _, key := range sortedKeys(aliases) {
		target := aliases[key]
		if _, chained := aliases[target]; chained {
			issues = append(issues, fmt.Sprintf("alias %s -> %s targets another alias", key, target))
			delete(aliases, key)
		}
	}
	out.Aliases = aliases

	out.JoinKey = ""
	if strings.TrimSpace(c.JoinKey) != "" {
		out.JoinKey = out.ResolveColumn(c.JoinKey)
	}
	out.CaseInsensitiveColumns = out.resolveColumns(c.CaseInsensitiveColumns)
	out.DateColumns = out.resolveColumns(c.DateColumns)
	out.Unicode.AccentInsensitiveColumns = out.resolveColumns(c.Unicode.AccentInsensitiveColumns)

	form := strings.ToUpper(strings.TrimSpace(c.Unicode.Normalize))
	switch form {
	case NormalizeNone, NormalizeNFC, NormalizeNFD, NormalizeNFKC, NormalizeNFKD:
		out.Unicode.Normalize = form
	default:
		issues = append(issues, fmt.Sprintf("unknown unicode normalization form %q", c.Unicode.Normalize))
		out.Unicode.Normalize = NormalizeNone
	}

	out.ValueMappings = make(map[string]map[string]string, len(c.ValueMappings))
	for column, mapping := range c.ValueMappings {
		resolved := out.ResolveColumn(column)
		if out.ValueMappings[resolved] == nil {
			out.ValueMappings[resolved] = make(map[string]string, len(mapping))
		}
		for from, to := range mapping {
			out.ValueMappings[resolved][from] = to
		}
	}

	out.Numeric = make(map[string]int, len(c.Numeric))
	for column, precision := range c.Numeric {
		if precision < 0 {
			issues = append(issues, fmt.Sprintf("numeric precision for %s is negative", column))
			continue
		}
		out.Numeric[out.ResolveColumn(column)] = precision
	}
	if fp := c.IgnoreTransformations.FloatPrecision; fp != nil && *fp < 0 {
		issues = append(issues, "ignore_transformations.float_precision is negative")
		out.IgnoreTransformations.FloatPrecision = nil
	}

	out.NullValues = make([]string, 0, len(c.NullValues))
	seen := make(map[string]bool, len(c.NullValues))
	for _, token := range c.NullValues {
		token = strings.ToUpper(strings.TrimSpace(token))
		if !seen[token] {
			seen[token] = true
			out.NullValues = append(out.NullValues, token)
		}
	}
	out.NullCategories = make(map[string]string, len(c.NullCategories))
	for token, category := range c.NullCategories {
		out.NullCategories[strings.ToUpper(strings.TrimSpace(token))] = category
	}

	out.CompositeKeys = out.resolveKeySets(c.CompositeKeys)
	out.CompositeOverrides = make(map[string]KeySets, len(c.CompositeOverrides))
	for slug, sets := range c.CompositeOverrides {
		out.CompositeOverrides[strings.ToUpper(strings.TrimSpace(slug))] = out.resolveKeySets(sets)
	}

	return out, issues
}

func (c DiffConfig) resolveColumns(columns []string) []string {
	resolved := make([]string, 0, len(columns))
	for _, column := range columns {
		if name := c.ResolveColumn(column); name != "" {
			resolved = append(resolved, name)
		}
	}
	return resolved
}

func (c DiffConfig) resolveKeySets(sets KeySets) KeySets {
	resolved := make(KeySets, 0, len(sets))
	for _, set := range sets {
		columns := c.resolveColumns(set)
		if len(columns) > 0 {
			resolved = append(resolved, columns)
		}
	}
	return resolved
}

// clone copies every collection so the receiver is never shared
func (c DiffConfig) clone() DiffConfig {
	out := c
	out.Aliases = copyStringMap(c.Aliases)
	out.CaseInsensitiveColumns = append([]string(nil), c.CaseInsensitiveColumns...)
	out.DateColumns = append([]string(nil), c.DateColumns...)
	out.Unicode.AccentInsensitiveColumns = append([]string(nil), c.Unicode.AccentInsensitiveColumns...)
	out.ValueMappings = make(map[string]map[string]string, len(c.ValueMappings))
	for column, mapping := range c.ValueMappings {
		out.ValueMappings[column] = copyStringMap(mapping)
	}
	out.Numeric = make(map[string]int, len(c.Numeric))
	for column, precision := range c.Numeric {
		out.Numeric[column] = precision
	}
	if c.IgnoreTransformations.FloatPrecision != nil {
		precision := *c.IgnoreTransformations.FloatPrecision
		out.IgnoreTransformations.FloatPrecision = &precision
	}
	out.NullValues = append([]string(nil), c.NullValues...)
	out.NullCategories = copyStringMap(c.NullCategories)
	out.CompositeKeys = copyKeySets(c.CompositeKeys)
	out.CompositeOverrides = make(map[string]KeySets, len(c.CompositeOverrides))
	for slug, sets := range c.CompositeOverrides {
		out.CompositeOverrides[slug] = copyKeySets(sets)
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyKeySets(in KeySets) KeySets {
	out := make(KeySets, 0, len(in))
	for _, set := range in {
		out = append(out, append([]string(nil), set...))
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
