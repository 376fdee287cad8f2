package auxfiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/model-extract/pkg/distribution/source"
	"github.com/moby/sys/atomicwriter"
)

// ConfigFileName is the model configuration file.
const ConfigFileName = "config.json"

const textConfigKey = "text_config"

// tokenDefaults are used for token ids set neither at the top level nor in
// text_config.
var tokenDefaults = []struct {
	key   string
	value int
}{
	{"bos_token_id", 2},
	{"eos_token_id", 1},
	{"pad_token_id", 0},
}

// DeriveTextConfig writes to dst the text decoder configuration embedded in
// the multimodal config at src. The text_config object is the base. Token ids
// set in the outer config win over the ones in text_config, and overrides are
// applied last. A config without text_config is copied
// unchanged; the returned bool reports whether a text config was derived.
func DeriveTextConfig(src, dst string, overrides map[string]any) (bool, error) {
	//nolint:gosec // G304: src comes from the source fetcher
	b, err := os.ReadFile(src)
	if err != nil {
		return false, fmt.Errorf("read config: %w", err)
	}
	var full map[string]json.RawMessage
	if err := json.Unmarshal(b, &full); err != nil {
		return false, fmt.Errorf("parse config %s: %w", src, err)
	}

	raw, ok := full[textConfigKey]
	if !ok {
		if err := atomicwriter.WriteFile(dst, b, 0o644); err != nil {
			return false, fmt.Errorf("write config: %w", err)
		}
		return false, nil
	}

	text := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &text); err != nil {
		return false, fmt.Errorf("parse %s: %w", textConfigKey, err)
	}
	for _, d := range tokenDefaults {
		if v, ok := full[d.key]; ok {
			text[d.key] = v
		} else if _, ok := text[d.key]; !ok {
			text[d.key] = json.RawMessage(fmt.Sprintf("%d", d.value))
		}
	}
	for key, value := range overrides {
		v, err := json.Marshal(value)
		if err != nil {
			return false, fmt.Errorf("encode override %q: %w", key, err)
		}
		text[key] = v
	}

	out, err := json.MarshalIndent(text, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode text config: %w", err)
	}
	if err := atomicwriter.WriteFile(dst, append(out, '\n'), 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}

// WriteTextConfig fetches config.json from fetcher and derives the text
// config into dir. It returns source.ErrNotFound when the source has no config.
func WriteTextConfig(ctx context.Context, fetcher source.Fetcher, dir string, overrides map[string]any) (bool, error) {
	src, err := fetcher.Fetch(ctx, ConfigFileName)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("fetch %s: %w", ConfigFileName, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create output directory: %w", err)
	}
	return DeriveTextConfig(src, filepath.Join(dir, ConfigFileName), overrides)
}
