// Package config holds the optional YAML configuration of an extraction run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/model-extract/pkg/distribution/auxfiles"
	"github.com/docker/model-extract/pkg/distribution/extract"
	"github.com/docker/model-extract/pkg/distribution/prefix"
	"gopkg.in/yaml.v3"
)

// Config is the configuration.
type Config struct {
	Source string       `yaml:"source"`
	Output OutputConfig `yaml:"output"`

	Rules           []RuleConfig `yaml:"rules"`
	FallbackMarkers []string     `yaml:"fallbackMarkers"`

	Strict bool `yaml:"strict"`
	Jobs   int  `yaml:"jobs"`

	AuxFiles   []string         `yaml:"auxFiles"`
	TextConfig TextConfigConfig `yaml:"textConfig"`
}

// OutputConfig names the files written into the output directory.
type OutputConfig struct {
	Weights string `yaml:"weights"`
	Index   string `yaml:"index"`
}

// RuleConfig is one entry of the prefix rule table.
type RuleConfig struct {
	Prefix   string `yaml:"prefix"`
	Priority int    `yaml:"priority"`
}

// TextConfigConfig controls derivation of the text decoder config.json.
type TextConfigConfig struct {
	Enabled   bool           `yaml:"enabled"`
	Overrides map[string]any `yaml:"overrides"`
}

// Default returns the built-in configuration.
func Default() Config {
	rules := make([]RuleConfig, len(prefix.DefaultRules))
	for i, r := range prefix.DefaultRules {
		rules[i] = RuleConfig{Prefix: r.Prefix, Priority: r.Priority}
	}
	return Config{
		Source: ".",
		Output: OutputConfig{
			Weights: extract.DefaultWeightsName,
			Index:   extract.DefaultIndexName,
		},
		Rules:           rules,
		FallbackMarkers: append([]string(nil), prefix.DefaultMarkers...),
		Jobs:            1,
		AuxFiles:        append([]string(nil), auxfiles.DefaultNames...),
		TextConfig: TextConfigConfig{
			Enabled: true,
			Overrides: map[string]any{
				"model_type":    "gemma3_text",
				"architectures": []any{"Gemma3ForCausalLM"},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("source must be set")
	}
	if err := validateFileName("output.weights", c.Output.Weights); err != nil {
		return err
	}
	if err := validateFileName("output.index", c.Output.Index); err != nil {
		return err
	}
	if c.Output.Weights == c.Output.Index {
		return fmt.Errorf("output.weights and output.index must differ")
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1")
	}
	if _, err := c.Table(); err != nil {
		return fmt.Errorf("rules: %s", err)
	}
	for _, name := range c.AuxFiles {
		if !filepath.IsLocal(name) {
			return fmt.Errorf("auxFiles: %q is not a local file name", name)
		}
	}
	return nil
}

// Table builds the prefix rule table.
func (c *Config) Table() (*prefix.Table, error) {
	rules := make([]prefix.Rule, len(c.Rules))
	for i, r := range c.Rules {
		rules[i] = prefix.Rule{Prefix: r.Prefix, Priority: r.Priority}
	}
	return prefix.NewTable(rules, c.FallbackMarkers)
}

func validateFileName(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s must be set", field)
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("%s must be a file name, got %q", field, name)
	}
	return nil
}

// Parse parses the configuration file at the given path, returning a new
// Config struct. Keys absent from the file keep their Default value.
func Parse(path string) (Config, error) {
	config := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("config: read: %s", err)
	}

	if err = yaml.Unmarshal(b, &config); err != nil {
		return config, fmt.Errorf("config: unmarshal: %s", err)
	}
	return config, nil
}
