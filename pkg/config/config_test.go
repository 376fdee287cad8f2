package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/model-extract/pkg/distribution/prefix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	table, err := c.Table()
	require.NoError(t, err)
	assert.Equal(t, prefix.DefaultRules, table.Rules())
	assert.Equal(t, prefix.DefaultMarkers, table.Markers())
}

func TestParse(t *testing.T) {
	path := writeConfig(t, `
source: /models/gemma
output:
  weights: text.safetensors
rules:
- prefix: model.text.
  priority: 1
strict: true
jobs: 4
textConfig:
  enabled: false
`)
	c, err := Parse(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "/models/gemma", c.Source)
	assert.Equal(t, "text.safetensors", c.Output.Weights)
	assert.Equal(t, "model.safetensors.index.json", c.Output.Index)
	assert.Equal(t, []RuleConfig{{Prefix: "model.text.", Priority: 1}}, c.Rules)
	assert.Equal(t, []string{"model.layers."}, c.FallbackMarkers)
	assert.True(t, c.Strict)
	assert.Equal(t, 4, c.Jobs)
	assert.False(t, c.TextConfig.Enabled)
	assert.Contains(t, c.AuxFiles, "tokenizer.json")
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse(writeConfig(t, "jobs: [1, 2"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "empty source",
			mutate: func(c *Config) { c.Source = "" },
			errMsg: "source must be set",
		},
		{
			name:   "weights path",
			mutate: func(c *Config) { c.Output.Weights = "sub/model.safetensors" },
			errMsg: "output.weights must be a file name",
		},
		{
			name:   "same names",
			mutate: func(c *Config) { c.Output.Index = c.Output.Weights },
			errMsg: "must differ",
		},
		{
			name:   "jobs",
			mutate: func(c *Config) { c.Jobs = 0 },
			errMsg: "jobs must be at least 1",
		},
		{
			name: "shadowed rule",
			mutate: func(c *Config) {
				c.Rules = []RuleConfig{{Prefix: "language_model.", Priority: 1}, {Prefix: "language_model.model.", Priority: 2}}
			},
			errMsg: "rules:",
		},
		{
			name:   "aux escape",
			mutate: func(c *Config) { c.AuxFiles = []string{"../secrets.json"} },
			errMsg: "auxFiles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
