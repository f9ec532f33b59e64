// Package config loads the declarative routing document (model_list plus
// router_settings) that seeds the Deployment Catalog and the Upstream
// Adapter's resilience policy, expanding ${VAR} / ${VAR:-default} tokens
// against the process environment before any value is used.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelListEntry is one declarative deployment entry as it appears under
// the document's model_list key.
type ModelListEntry struct {
	ModelName     string         `yaml:"model_name"`
	LitellmParams map[string]any `yaml:"litellm_params"`
	ModelInfo     map[string]any `yaml:"model_info"`
}

// RouterSettingsRaw mirrors router_settings verbatim; values are plain
// seconds/counts as written in YAML. Document.RouterSettings() fills in
// defaults; Timeout(), RetryAfter() and Cooldown() give time.Duration values.
type RouterSettingsRaw struct {
	NumRetries   int `yaml:"num_retries"`
	TimeoutS     int `yaml:"timeout"`
	RetryAfterS  int `yaml:"retry_after"`
	AllowedFails int `yaml:"allowed_fails"`
	CooldownS    int `yaml:"cooldown_time"`
}

// Document is the top-level config file shape: model_list + router_settings.
type Document struct {
	ModelList []ModelListEntry  `yaml:"model_list"`
	Router    RouterSettingsRaw `yaml:"router_settings"`
}

// defaultRouterSettings mirrors the original router's fallback values.
var defaultRouterSettings = RouterSettingsRaw{
	NumRetries:   3,
	TimeoutS:     120,
	RetryAfterS:  5,
	AllowedFails: 2,
	CooldownS:    60,
}

// RouterSettings returns router_settings (still in seconds/counts),
// substituting the original defaults for any zero field.
func (d *Document) RouterSettings() RouterSettingsRaw {
	rs := d.Router
	if rs.NumRetries == 0 {
		rs.NumRetries = defaultRouterSettings.NumRetries
	}
	if rs.TimeoutS == 0 {
		rs.TimeoutS = defaultRouterSettings.TimeoutS
	}
	if rs.RetryAfterS == 0 {
		rs.RetryAfterS = defaultRouterSettings.RetryAfterS
	}
	if rs.AllowedFails == 0 {
		rs.AllowedFails = defaultRouterSettings.AllowedFails
	}
	if rs.CooldownS == 0 {
		rs.CooldownS = defaultRouterSettings.CooldownS
	}
	return rs
}

// Timeout returns router_settings.timeout as a time.Duration.
func (r RouterSettingsRaw) Timeout() time.Duration { return time.Duration(r.TimeoutS) * time.Second }

// RetryAfter returns router_settings.retry_after as a time.Duration.
func (r RouterSettingsRaw) RetryAfter() time.Duration {
	return time.Duration(r.RetryAfterS) * time.Second
}

// Cooldown returns router_settings.cooldown_time as a time.Duration.
func (r RouterSettingsRaw) Cooldown() time.Duration { return time.Duration(r.CooldownS) * time.Second }

// ResolveConfigPath mirrors the original candidate search: an explicit
// LITELLM_CONFIG_PATH environment variable, then config/litellm_config.yaml
// relative to projectRoot, then /app/config/litellm_config.yaml, using
// whichever candidate exists first and
// falling back to the relative path even if it doesn't exist yet (the
// caller surfaces the resulting read error).
func ResolveConfigPath(projectRoot string) string {
	fallback := filepath.Join(projectRoot, "config", "litellm_config.yaml")
	candidates := []string{
		os.Getenv("LITELLM_CONFIG_PATH"),
		fallback,
		"/app/config/litellm_config.yaml",
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return fallback
}

// Load reads and parses the config document at path, expanding environment
// variables in every string value before returning.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	expanded := expandEnv(generic)

	reencoded, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("config: re-encoding expanded %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(reencoded, &doc); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &doc, nil
}

// expandEnv walks a generically-decoded YAML value, substituting every
// ${VAR} / ${VAR:-default} token in string leaves against the process
// environment. Ported from the original loader's _expand_env.
func expandEnv(v any) any {
	switch val := v.(type) {
	case string:
		return expandString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = expandEnv(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = expandEnv(vv)
		}
		return out
	default:
		return v
	}
}

func expandString(s string) string {
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			return s
		}
		end += start
		token := s[start+2 : end]
		name, def := token, ""
		if idx := strings.Index(token, ":-"); idx >= 0 {
			name, def = token[:idx], token[idx+2:]
		}
		value, ok := os.LookupEnv(name)
		if !ok {
			value = def
		}
		s = s[:start] + value + s[end+1:]
	}
}
