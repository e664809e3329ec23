package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultDiffConfig(t *testing.T) {
	cfg := DefaultDiffConfig()

	assert.Equal(t, "IMO", cfg.ResolveColumn("imo number"))
	assert.Equal(t, "IMO", cfg.ResolveColumn("IMO_NO_"))
	assert.Equal(t, []string{"FLAG"}, cfg.CaseInsensitiveColumns)
	assert.True(t, cfg.IgnoreTransformations.Whitespace)
	assert.False(t, cfg.IgnoreTransformations.DateFormats)
	assert.Nil(t, cfg.IgnoreTransformations.FloatPrecision)
	assert.Contains(t, cfg.NullValues, "N/A")
	assert.True(t, cfg.NullPolicy.CountInfoLossAsNegative)
}

func TestParseDiffConfig(t *testing.T) {
	var useCases = []struct {
		description string
		document    string
		hasError    bool
		check       func(t *testing.T, cfg DiffConfig, issues []string)
	}{
		{
			description: "empty document keeps defaults",
			document:    "",
			check: func(t *testing.T, cfg DiffConfig, issues []string) {
				assert.Empty(t, issues)
				assert.Equal(t, DefaultDiffConfig(), cfg)
			},
		},
		{
			description: "column names are canonicalized through aliases",
			document: `
join_key: imo number
case_insensitive_columns: [vessel name, flag]
numeric:
  "Gross Tonnage": 2
value_mappings:
  flag:
    PANAMA: PAN
`,
			check: func(t *testing.T, cfg DiffConfig, issues []string) {
				assert.Empty(t, issues)
				assert.Equal(t, "IMO", cfg.JoinKey)
				assert.Equal(t, []string{"VESSEL_NAME", "FLAG"}, cfg.CaseInsensitiveColumns)
				assert.Equal(t, 2, cfg.Numeric["GROSS_TONNAGE"])
				assert.Equal(t, "PAN", cfg.ValueMappings["FLAG"]["PANAMA"])
			},
		},
		{
			description: "flat composite list becomes one set",
			document: `
composite_keys: [name, flag]
composite_overrides:
  ccsbt:
    - [ccsbt_id]
    - [name, call sign]
`,
			check: func(t *testing.T, cfg DiffConfig, issues []string) {
				assert.Equal(t, KeySets{{"NAME", "FLAG"}}, cfg.CompositeKeys)
				assert.Equal(t, KeySets{{"CCSBT_ID"}, {"NAME", "CALL_SIGN"}}, cfg.CompositeSetsFor("ccsbt"))
				assert.Equal(t, KeySets{{"NAME", "FLAG"}}, cfg.CompositeSetsFor("IOTC"))
			},
		},
		{
			description: "nested blocks merge field by field",
			document: `
ignore_transformations:
  date_formats: true
  float_precision: 3
null_policy:
  count_info_loss_as_negative: false
unicode:
  normalize: nfkc
  accent_insensitive_columns: [name]
`,
			check: func(t *testing.T, cfg DiffConfig, issues []string) {
				assert.True(t, cfg.IgnoreTransformations.DateFormats)
				assert.True(t, cfg.IgnoreTransformations.Whitespace)
				require.NotNil(t, cfg.IgnoreTransformations.FloatPrecision)
				assert.Equal(t, 3, *cfg.IgnoreTransformations.FloatPrecision)
				assert.True(t, cfg.NullPolicy.CountMatchNullAsPositive)
				assert.False(t, cfg.NullPolicy.CountInfoLossAsNegative)
				assert.Equal(t, NormalizeNFKC, cfg.Unicode.Normalize)
				assert.Equal(t, []string{"NAME"}, cfg.Unicode.AccentInsensitiveColumns)
			},
		},
		{
			description: "chained aliases are dropped",
			document: `
aliases:
  vessel: ship name
  ship_name: name
`,
			check: func(t *testing.T, cfg DiffConfig, issues []string) {
				require.Len(t, issues, 1)
				assert.NotContains(t, cfg.Aliases, "VESSEL")
				assert.Equal(t, "NAME", cfg.Aliases["SHIP_NAME"])
				assert.Equal(t, "NAME", cfg.ResolveColumn(cfg.ResolveColumn("Ship Name")))
			},
		},
		{
			description: "document aliases extend the defaults",
			document:    "aliases:\n  NAME: VESSEL_NAME\n",
			check: func(t *testing.T, cfg DiffConfig, issues []string) {
				assert.Empty(t, issues)
				assert.Equal(t, "VESSEL_NAME", cfg.ResolveColumn("name"))
				assert.Equal(t, "IMO", cfg.ResolveColumn("IMO Number"))
				assert.Equal(t, "IMO", cfg.ResolveColumn("imo_no"))
			},
		},
		{
			description: "unknown keys are rejected",
			document:    "join_keys: IMO\n",
			hasError:    true,
		},
		{
			description: "mixed composite shapes are rejected",
			document:    "composite_keys:\n  - NAME\n  - [FLAG]\n",
			hasError:    true,
		},
	}

	for _, useCase := range useCases {
		cfg, issues, err := ParseDiffConfig([]byte(useCase.document))
		if useCase.hasError {
			assert.Error(t, err, useCase.description)
			assert.Equal(t, DefaultDiffConfig(), cfg, useCase.description)
			continue
		}
		require.NoError(t, err, useCase.description)
		useCase.check(t, cfg, issues)
	}
}

func TestLoadDiffConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diff_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("join_key: [broken"), 0o644))

	cfg := LoadDiffConfig(path, zap.NewNop())
	assert.Equal(t, DefaultDiffConfig(), cfg)

	cfg = LoadDiffConfig(filepath.Join(dir, "missing.yaml"), nil)
	assert.Equal(t, DefaultDiffConfig(), cfg)
}

func TestWithEnvOverrides(t *testing.T) {
	env := map[string]string{
		"CASE_INSENSITIVE_COLUMNS": "flag, vessel name",
		"IGNORE_DATE_FORMATS":      "true",
		"ROUND_FLOATS":             "2",
		"IGNORE_WHITESPACE":        "no",
	}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	base := DefaultDiffConfig()
	cfg, issues := base.WithEnvOverrides(lookup)

	assert.Empty(t, issues)
	assert.Equal(t, []string{"FLAG", "VESSEL_NAME"}, cfg.CaseInsensitiveColumns)
	assert.True(t, cfg.IgnoreTransformations.DateFormats)
	assert.False(t, cfg.IgnoreTransformations.Whitespace)
	precision, ok := cfg.FloatPrecisionFor("ANY")
	assert.True(t, ok)
	assert.Equal(t, 2, precision)

	// the receiver is untouched
	assert.True(t, base.IgnoreTransformations.Whitespace)
	assert.Nil(t, base.IgnoreTransformations.FloatPrecision)

	env["ROUND_FLOATS"] = "x"
	_, issues = base.WithEnvOverrides(lookup)
	assert.Len(t, issues, 1)
}

func TestFloatPrecisionForPrefersColumn(t *testing.T) {
	cfg, _, err := ParseDiffConfig([]byte("numeric: {LENGTH: 1}\nignore_transformations: {float_precision: 4}\n"))
	require.NoError(t, err)

	precision, ok := cfg.FloatPrecisionFor("LENGTH")
	assert.True(t, ok)
	assert.Equal(t, 1, precision)

	precision, ok = cfg.FloatPrecisionFor("TONNAGE")
	assert.True(t, ok)
	assert.Equal(t, 4, precision)
}

func TestShippedDiffConfigParses(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "configs", "diff_config.yaml"))
	require.NoError(t, err)

	cfg, issues, err := ParseDiffConfig(data)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, "VESSEL_NAME", cfg.ResolveColumn("Name"))
	assert.Len(t, cfg.CompositeSetsFor("ccsbt"), 3)
	assert.Len(t, cfg.CompositeSetsFor("WCPFC"), 2)
}
