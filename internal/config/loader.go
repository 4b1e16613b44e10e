package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram", "whisper", "whisper-native"},
	"transcoder": {"ffmpeg", "opus"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero Config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	// Providers
	errs = append(errs, validateEntries("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntries("stt", cfg.Providers.STT)...)
	validateProviderName("transcoder", cfg.Providers.Transcoder.Name)
	if len(cfg.Providers.LLM) == 0 {
		slog.Warn("no LLM provider configured; listening and speaking answers cannot be graded")
	}
	if len(cfg.Providers.STT) == 0 {
		slog.Warn("no STT provider configured; spoken answers will be rejected")
	}

	// Resilience
	if r := cfg.Resilience; r.MaxFailures < 0 || r.HalfOpenMax < 0 || r.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience values must not be negative"))
	}

	// Grading
	pass, floor := cfg.Grading.Thresholds()
	if pass < 0 || pass > 100 {
		errs = append(errs, fmt.Errorf("grading.pass_threshold %d is out of range [0, 100]", pass))
	}
	if floor < 0 || floor > 100 {
		errs = append(errs, fmt.Errorf("grading.floor_threshold %d is out of range [0, 100]", floor))
	}
	if floor > pass {
		slog.Warn("grading.floor_threshold is above pass_threshold; scores between them are always incorrect",
			"pass", pass, "floor", floor)
	}
	if cfg.Grading.AITimeout < 0 {
		errs = append(errs, fmt.Errorf("grading.ai_timeout must not be negative"))
	}
	if t := cfg.Grading.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("grading.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Grading.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("grading.max_tokens must not be negative"))
	}

	// Exercises
	if cfg.Exercises.PostgresDSN != "" && cfg.Exercises.File != "" {
		errs = append(errs, fmt.Errorf("exercises: postgres_dsn and file are mutually exclusive"))
	}
	if cfg.Exercises.PostgresDSN == "" && cfg.Exercises.File == "" {
		slog.Warn("no exercise store configured; lookups by question id will fail")
	}

	return errors.Join(errs...)
}

// validateEntries checks a failover list of provider entries.
func validateEntries(kind string, entries []ProviderEntry) []error {
	var errs []error
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		prefix := fmt.Sprintf("providers.%s[%d]", kind, i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(kind, e.Name)
		if prev, ok := seen[e.Label()]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of providers.%s[%d]", prefix, e.Label(), kind, prev))
		}
		seen[e.Label()] = i
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
