package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

// Matcher strategy names.
const (
	MatcherLexical   = "lexical"
	MatcherLLM       = "llm"
	MatcherEmbedding = "embedding"
)

// LLMConfig configures the OpenAI-compatible collaborator endpoint.
type LLMConfig struct {
	// BaseURL overrides the API base (e.g. a local proxy). Empty uses the provider default.
	BaseURL string `json:"base_url,omitempty"`

	// APIKey is normally supplied via JOT_LLM_API_KEY or OPENAI_API_KEY rather than the file.
	APIKey string `json:"api_key,omitempty"`

	ChatModel          string `json:"chat_model,omitempty"`
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	TranscriptionModel string `json:"transcription_model,omitempty"`

	// TimeoutSeconds bounds each collaborator request.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// WebConfig configures the HTTP boundary.
type WebConfig struct {
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`
}

// TelegramConfig configures the optional chat intake channel.
type TelegramConfig struct {
	Token string `json:"token,omitempty"`

	// AllowFrom lists sender IDs allowed to submit captures. Empty allows everyone.
	AllowFrom []string `json:"allow_from,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// Matcher selects the duplicate-detection strategy: "lexical", "llm" or "embedding".
	Matcher string `json:"matcher,omitempty"`

	// LexicalDuplicateThreshold is the trigram score a candidate must exceed to count as a duplicate.
	// 0.85 gives the stricter suppression used for automatic dedup.
	LexicalDuplicateThreshold float64 `json:"lexical_duplicate_threshold,omitempty"`

	// LexicalTargetThreshold is the looser trigram threshold for update target hints.
	LexicalTargetThreshold float64 `json:"lexical_target_threshold,omitempty"`

	// DuplicateWindowDays bounds lexical duplicate candidates to recently created items.
	DuplicateWindowDays int `json:"duplicate_window_days,omitempty"`

	// AdjudicatorAcceptConfidence is the minimum reported confidence accepted as a match.
	AdjudicatorAcceptConfidence float64 `json:"adjudicator_accept_confidence,omitempty"`

	// AdjudicatorPromptConfidence is the confidence the prompt asks the model to require.
	// Intentionally separate from AdjudicatorAcceptConfidence.
	AdjudicatorPromptConfidence float64 `json:"adjudicator_prompt_confidence,omitempty"`

	// AdjudicatorCandidates caps the candidate list shown to the model.
	AdjudicatorCandidates int `json:"adjudicator_candidates,omitempty"`

	// EmbeddingThreshold is the cosine similarity a cached vector must exceed.
	EmbeddingThreshold float64 `json:"embedding_threshold,omitempty"`

	// EmbeddingCacheTTLSeconds is how long a built embedding cache is reused.
	EmbeddingCacheTTLSeconds int `json:"embedding_cache_ttl_seconds,omitempty"`

	// EmbeddingCandidates caps how many items are loaded into the embedding cache.
	EmbeddingCandidates int `json:"embedding_candidates,omitempty"`

	// WaitTimeoutSeconds bounds how long a completion subscriber waits before receiving "timeout".
	WaitTimeoutSeconds int `json:"wait_timeout_seconds,omitempty"`

	// Polling client schedule.
	PollInitialMillis     int `json:"poll_initial_ms,omitempty"`
	PollMaxIntervalMillis int `json:"poll_max_interval_ms,omitempty"`
	PollMaxWaitSeconds    int `json:"poll_max_wait_seconds,omitempty"`

	// MaxAudioBytes rejects larger uploads before a capture row is written.
	MaxAudioBytes int64 `json:"max_audio_bytes,omitempty"`

	// Timezone names the IANA zone used to compute "today" for due dates. Empty means local time.
	Timezone string `json:"timezone,omitempty"`

	// LogMode is "dev" or "prod".
	LogMode string `json:"log_mode,omitempty"`

	// BackfillSchedule is a cron spec for the embedding backfill job. "off" disables it.
	BackfillSchedule string `json:"backfill_schedule,omitempty"`

	LLM      LLMConfig      `json:"llm"`
	Web      WebConfig      `json:"web"`
	Telegram TelegramConfig `json:"telegram"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Matcher:                     MatcherEmbedding,
		LexicalDuplicateThreshold:   0.7,
		LexicalTargetThreshold:      0.5,
		DuplicateWindowDays:         14,
		AdjudicatorAcceptConfidence: 0.5,
		AdjudicatorPromptConfidence: 0.7,
		AdjudicatorCandidates:       30,
		EmbeddingThreshold:          0.75,
		EmbeddingCacheTTLSeconds:    60,
		EmbeddingCandidates:         50,
		WaitTimeoutSeconds:          60,
		PollInitialMillis:           250,
		PollMaxIntervalMillis:       2000,
		PollMaxWaitSeconds:          90,
		MaxAudioBytes:               25 << 20,
		LogMode:                     "dev",
		BackfillSchedule:            "@every 10m",
		LLM: LLMConfig{
			ChatModel:          "gpt-4o-mini",
			EmbeddingModel:     "text-embedding-3-small",
			TranscriptionModel: "whisper-1",
			TimeoutSeconds:     60,
		},
		Web: WebConfig{
			Bind: "127.0.0.1",
			Port: 8787,
		},
	}
}

// Load loads configuration from baseDir/config.json, then applies environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.jot.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
// Comments and trailing commas are accepted.
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC in %s: %w", configPath, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// applyEnv overlays secrets and endpoints from the environment.
func applyEnv(cfg *Config) {
	if key := firstNonEmpty(os.Getenv("JOT_LLM_API_KEY"), os.Getenv("OPENAI_API_KEY")); key != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = key
	}
	if base := os.Getenv("JOT_LLM_BASE_URL"); base != "" {
		cfg.LLM.BaseURL = base
	}
	if token := os.Getenv("JOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
}

// Validate rejects unknown matcher names and thresholds outside [0,1].
func (c *Config) Validate() error {
	switch c.Matcher {
	case MatcherLexical, MatcherLLM, MatcherEmbedding:
	default:
		return fmt.Errorf("unknown matcher %q (supported: lexical, llm, embedding)", c.Matcher)
	}

	thresholds := map[string]float64{
		"lexical_duplicate_threshold":   c.LexicalDuplicateThreshold,
		"lexical_target_threshold":      c.LexicalTargetThreshold,
		"adjudicator_accept_confidence": c.AdjudicatorAcceptConfidence,
		"adjudicator_prompt_confidence": c.AdjudicatorPromptConfidence,
		"embedding_threshold":           c.EmbeddingThreshold,
	}
	for name, v := range thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

// Location returns the zone used for "today" computations.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// EmbeddingCacheTTL returns the embedding cache time-to-live.
func (c *Config) EmbeddingCacheTTL() time.Duration {
	return time.Duration(c.EmbeddingCacheTTLSeconds) * time.Second
}

// WaitTimeout returns the completion subscriber timeout.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// DuplicateWindow returns the lexical duplicate lookback window.
func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowDays) * 24 * time.Hour
}

// Merge combines base and overlay configs.
// Overlay values take precedence for non-zero scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Matcher = pick(overlay.Matcher, base.Matcher)
	result.LexicalDuplicateThreshold = pick(overlay.LexicalDuplicateThreshold, base.LexicalDuplicateThreshold)
	result.LexicalTargetThreshold = pick(overlay.LexicalTargetThreshold, base.LexicalTargetThreshold)
	result.DuplicateWindowDays = pick(overlay.DuplicateWindowDays, base.DuplicateWindowDays)
	result.AdjudicatorAcceptConfidence = pick(overlay.AdjudicatorAcceptConfidence, base.AdjudicatorAcceptConfidence)
	result.AdjudicatorPromptConfidence = pick(overlay.AdjudicatorPromptConfidence, base.AdjudicatorPromptConfidence)
	result.AdjudicatorCandidates = pick(overlay.AdjudicatorCandidates, base.AdjudicatorCandidates)
	result.EmbeddingThreshold = pick(overlay.EmbeddingThreshold, base.EmbeddingThreshold)
	result.EmbeddingCacheTTLSeconds = pick(overlay.EmbeddingCacheTTLSeconds, base.EmbeddingCacheTTLSeconds)
	result.EmbeddingCandidates = pick(overlay.EmbeddingCandidates, base.EmbeddingCandidates)
	result.WaitTimeoutSeconds = pick(overlay.WaitTimeoutSeconds, base.WaitTimeoutSeconds)
	result.PollInitialMillis = pick(overlay.PollInitialMillis, base.PollInitialMillis)
	result.PollMaxIntervalMillis = pick(overlay.PollMaxIntervalMillis, base.PollMaxIntervalMillis)
	result.PollMaxWaitSeconds = pick(overlay.PollMaxWaitSeconds, base.PollMaxWaitSeconds)
	result.MaxAudioBytes = pick(overlay.MaxAudioBytes, base.MaxAudioBytes)
	result.Timezone = pick(overlay.Timezone, base.Timezone)
	result.LogMode = pick(overlay.LogMode, base.LogMode)
	result.BackfillSchedule = pick(overlay.BackfillSchedule, base.BackfillSchedule)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.LLM = LLMConfig{
		BaseURL:            pick(overlay.LLM.BaseURL, base.LLM.BaseURL),
		APIKey:             pick(overlay.LLM.APIKey, base.LLM.APIKey),
		ChatModel:          pick(overlay.LLM.ChatModel, base.LLM.ChatModel),
		EmbeddingModel:     pick(overlay.LLM.EmbeddingModel, base.LLM.EmbeddingModel),
		TranscriptionModel: pick(overlay.LLM.TranscriptionModel, base.LLM.TranscriptionModel),
		TimeoutSeconds:     pick(overlay.LLM.TimeoutSeconds, base.LLM.TimeoutSeconds),
	}
	result.Web = WebConfig{
		Bind: pick(overlay.Web.Bind, base.Web.Bind),
		Port: pick(overlay.Web.Port, base.Web.Port),
	}
	result.Telegram = TelegramConfig{
		Token:     pick(overlay.Telegram.Token, base.Telegram.Token),
		AllowFrom: mergeStringSlice(base.Telegram.AllowFrom, overlay.Telegram.AllowFrom),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pick returns overlay if it is non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
