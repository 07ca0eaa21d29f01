// Package config resolves the active persona for a request and loads the
// layered configuration tree that every other component reads from (C1).
//
// Ported field-for-field from the donor system's DEFAULT_CONFIG
// (original_source/src/utils/config_utils.py) and its resource-profile
// presets, generalized into typed Go structs instead of a dynamically typed
// dict so callers get compile-time field access.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const envPrefix = "MEMORY_ENGINE_"

// Summarization holds the self-summarization worker's settings (§4.7, §6).
type Summarization struct {
	Enabled             bool    `json:"enabled"`
	UseLLM              bool    `json:"use_llm"`
	FrequencyDays       int     `json:"frequency_days"`
	MinImportance       float64 `json:"min_importance"`
	IdleMinutes         int     `json:"idle_minutes"`
	CheckIntervalSecs   int     `json:"check_interval_seconds"`
	LLMAPIURL           string  `json:"llm_api_url"`
	LLMAPIKey           string  `json:"llm_api_key"`
	LLMModel            string  `json:"llm_model"`
	LLMMaxTokens        int     `json:"llm_max_tokens"`
	LLMPrompt           string  `json:"llm_prompt"`
}

// VectorRebuild holds the idle vector rebuilder's schedule (§4.7).
type VectorRebuild struct {
	Mode        string `json:"mode"`
	IdleSeconds int    `json:"idle_seconds"`
	MinInterval int    `json:"min_interval"`
}

// AutoCleanup holds the cleanup-suggester's schedule and thresholds (§4.7).
type AutoCleanup struct {
	Enabled               bool    `json:"enabled"`
	IdleMinutes           int     `json:"idle_minutes"`
	CheckIntervalSecs     int     `json:"check_interval_seconds"`
	DuplicateThreshold    float64 `json:"duplicate_threshold"`
	MinSimilarityToReport float64 `json:"min_similarity_to_report"`
	MaxSuggestionsPerRun  int     `json:"max_suggestions_per_run"`
}

// ProgressiveSearch controls whether keyword search is tried before
// semantic search, and how large the semantic candidate set may grow (§6).
type ProgressiveSearch struct {
	Enabled           bool `json:"enabled"`
	KeywordFirst      bool `json:"keyword_first"`
	KeywordThreshold  int  `json:"keyword_threshold"`
	SemanticFallback  bool `json:"semantic_fallback"`
	MaxSemanticTopK   int  `json:"max_semantic_top_k"`
}

// Privacy controls default privacy assignment, auto-redaction, and the
// maximum privacy level search/dashboard views may surface (§4.6, §7).
type Privacy struct {
	DefaultLevel      string `json:"default_level"`
	AutoRedactPII     bool   `json:"auto_redact_pii"`
	SearchMaxLevel    string `json:"search_max_level"`
	DashboardMaxLevel string `json:"dashboard_max_level"`
}

// Dashboard holds the out-of-scope dashboard collaborator's display window;
// carried because §6 lists it as a config key even though rendering itself
// is out of core scope.
type Dashboard struct {
	TimelineDays int `json:"timeline_days"`
}

// Config is the fully merged, resolved configuration tree (§4.1, §6).
type Config struct {
	EmbeddingsModel        string `json:"embeddings_model"`
	EmbeddingsDevice       string `json:"embeddings_device"`
	RerankerModel          string `json:"reranker_model"`
	RerankerTopN           int    `json:"reranker_top_n"`
	SentimentModel         string `json:"sentiment_model"`
	ServerHost             string `json:"server_host"`
	ServerPort             int    `json:"server_port"`
	Timezone               string `json:"timezone"`
	RecentMemoriesCount    int    `json:"recent_memories_count"`
	QdrantURL              string `json:"qdrant_url"`
	QdrantAPIKey           string `json:"qdrant_api_key"`
	QdrantCollectionPrefix string `json:"qdrant_collection_prefix"`

	Summarization     Summarization     `json:"summarization"`
	VectorRebuild     VectorRebuild     `json:"vector_rebuild"`
	AutoCleanup       AutoCleanup       `json:"auto_cleanup"`
	ProgressiveSearch ProgressiveSearch `json:"progressive_search"`
	Privacy           Privacy           `json:"privacy"`
	Dashboard         Dashboard         `json:"dashboard"`

	ResourceProfile string `json:"resource_profile"`
}

// Default returns the built-in DEFAULT_CONFIG tree, ported verbatim from
// the donor's config_utils.py.
func Default() Config {
	return Config{
		EmbeddingsModel:        "cl-nagoya/ruri-v3-30m",
		EmbeddingsDevice:       "cpu",
		RerankerModel:          "hotchpotch/japanese-reranker-xsmall-v2",
		RerankerTopN:           10,
		SentimentModel:         "cardiffnlp/twitter-xlm-roberta-base-sentiment",
		ServerHost:             "0.0.0.0",
		ServerPort:             26262,
		Timezone:               "Asia/Tokyo",
		RecentMemoriesCount:    5,
		QdrantURL:              "http://localhost:6333",
		QdrantCollectionPrefix: "memory_",
		Summarization: Summarization{
			Enabled:           true,
			UseLLM:            false,
			FrequencyDays:     1,
			MinImportance:     0.3,
			IdleMinutes:       30,
			CheckIntervalSecs: 3600,
			LLMModel:          "anthropic/claude-3.5-sonnet",
			LLMMaxTokens:      500,
		},
		VectorRebuild: VectorRebuild{
			Mode:        "idle",
			IdleSeconds: 30,
			MinInterval: 120,
		},
		AutoCleanup: AutoCleanup{
			Enabled:               true,
			IdleMinutes:           30,
			CheckIntervalSecs:     300,
			DuplicateThreshold:    0.90,
			MinSimilarityToReport: 0.85,
			MaxSuggestionsPerRun:  20,
		},
		ProgressiveSearch: ProgressiveSearch{
			Enabled:          true,
			KeywordFirst:     true,
			KeywordThreshold: 3,
			SemanticFallback: true,
			MaxSemanticTopK:  5,
		},
		Privacy: Privacy{
			DefaultLevel:      "internal",
			AutoRedactPII:     false,
			SearchMaxLevel:    "private",
			DashboardMaxLevel: "internal",
		},
		Dashboard: Dashboard{
			TimelineDays: 14,
		},
		ResourceProfile: "normal",
	}
}

// resourceProfiles mirrors _RESOURCE_PROFILES: presets applied only where
// the user has not already overridden a leaf away from the default (§4.1).
var resourceProfiles = map[string]func(*Config){
	"low": func(c *Config) {
		c.EmbeddingsDevice = "cpu"
		c.RerankerTopN = 6
		c.Summarization.CheckIntervalSecs = 5400
		c.Summarization.IdleMinutes = 45
		c.VectorRebuild.Mode = "idle"
		c.VectorRebuild.IdleSeconds = 90
		c.VectorRebuild.MinInterval = 300
		c.AutoCleanup.CheckIntervalSecs = 450
		c.AutoCleanup.MaxSuggestionsPerRun = 15
		c.ProgressiveSearch.Enabled = true
		c.ProgressiveSearch.KeywordFirst = true
		c.ProgressiveSearch.KeywordThreshold = 2
		c.ProgressiveSearch.SemanticFallback = true
		c.ProgressiveSearch.MaxSemanticTopK = 5
		c.Dashboard.TimelineDays = 14
	},
	"minimal": func(c *Config) {
		c.EmbeddingsDevice = "cpu"
		c.RerankerModel = ""
		c.RerankerTopN = 0
		c.Summarization.Enabled = false
		c.VectorRebuild.Mode = "manual"
		c.VectorRebuild.MinInterval = 3600
		c.AutoCleanup.Enabled = false
		c.ProgressiveSearch.Enabled = true
		c.ProgressiveSearch.KeywordFirst = true
		c.ProgressiveSearch.KeywordThreshold = 1
		c.ProgressiveSearch.SemanticFallback = false
		c.ProgressiveSearch.MaxSemanticTopK = 2
	},
}

// applyProfileDefaultsOnly mirrors _apply_resource_profile /
// _deep_update_defaults_only: a profile preset only takes effect on fields
// the caller left at the built-in default, field by field, so that explicit
// user overrides in config.json or the environment always win (§4.1).
func applyProfileDefaultsOnly(merged *Config) {
	apply, ok := resourceProfiles[merged.ResourceProfile]
	if !ok || merged.ResourceProfile == "normal" {
		return
	}
	def := Default()
	preset := *merged
	apply(&preset)

	// Top-level scalars.
	if merged.EmbeddingsDevice == def.EmbeddingsDevice {
		merged.EmbeddingsDevice = preset.EmbeddingsDevice
	}
	if merged.RerankerModel == def.RerankerModel {
		merged.RerankerModel = preset.RerankerModel
	}
	if merged.RerankerTopN == def.RerankerTopN {
		merged.RerankerTopN = preset.RerankerTopN
	}

	if merged.Summarization == def.Summarization {
		merged.Summarization = preset.Summarization
	} else {
		if merged.Summarization.CheckIntervalSecs == def.Summarization.CheckIntervalSecs {
			merged.Summarization.CheckIntervalSecs = preset.Summarization.CheckIntervalSecs
		}
		if merged.Summarization.IdleMinutes == def.Summarization.IdleMinutes {
			merged.Summarization.IdleMinutes = preset.Summarization.IdleMinutes
		}
		if merged.Summarization.Enabled == def.Summarization.Enabled {
			merged.Summarization.Enabled = preset.Summarization.Enabled
		}
	}

	if merged.VectorRebuild == def.VectorRebuild {
		merged.VectorRebuild = preset.VectorRebuild
	} else {
		if merged.VectorRebuild.Mode == def.VectorRebuild.Mode {
			merged.VectorRebuild.Mode = preset.VectorRebuild.Mode
		}
		if merged.VectorRebuild.IdleSeconds == def.VectorRebuild.IdleSeconds {
			merged.VectorRebuild.IdleSeconds = preset.VectorRebuild.IdleSeconds
		}
		if merged.VectorRebuild.MinInterval == def.VectorRebuild.MinInterval {
			merged.VectorRebuild.MinInterval = preset.VectorRebuild.MinInterval
		}
	}

	if merged.AutoCleanup == def.AutoCleanup {
		merged.AutoCleanup = preset.AutoCleanup
	} else {
		if merged.AutoCleanup.CheckIntervalSecs == def.AutoCleanup.CheckIntervalSecs {
			merged.AutoCleanup.CheckIntervalSecs = preset.AutoCleanup.CheckIntervalSecs
		}
		if merged.AutoCleanup.MaxSuggestionsPerRun == def.AutoCleanup.MaxSuggestionsPerRun {
			merged.AutoCleanup.MaxSuggestionsPerRun = preset.AutoCleanup.MaxSuggestionsPerRun
		}
		if merged.AutoCleanup.Enabled == def.AutoCleanup.Enabled {
			merged.AutoCleanup.Enabled = preset.AutoCleanup.Enabled
		}
	}

	if merged.ProgressiveSearch == def.ProgressiveSearch {
		merged.ProgressiveSearch = preset.ProgressiveSearch
	} else {
		if merged.ProgressiveSearch.KeywordThreshold == def.ProgressiveSearch.KeywordThreshold {
			merged.ProgressiveSearch.KeywordThreshold = preset.ProgressiveSearch.KeywordThreshold
		}
		if merged.ProgressiveSearch.SemanticFallback == def.ProgressiveSearch.SemanticFallback {
			merged.ProgressiveSearch.SemanticFallback = preset.ProgressiveSearch.SemanticFallback
		}
		if merged.ProgressiveSearch.MaxSemanticTopK == def.ProgressiveSearch.MaxSemanticTopK {
			merged.ProgressiveSearch.MaxSemanticTopK = preset.ProgressiveSearch.MaxSemanticTopK
		}
	}

	if merged.Dashboard == def.Dashboard {
		merged.Dashboard = preset.Dashboard
	}
}

// DataDir resolves the base data directory: MEMORY_ENGINE_DATA_DIR if set,
// else "./data" (§4.1, §6).
func DataDir() string {
	if v := os.Getenv(envPrefix + "DATA_DIR"); v != "" {
		abs, err := filepath.Abs(v)
		if err == nil {
			return abs
		}
		return v
	}
	return "./data"
}

// MemoryRoot, CacheDir, LogsDir are the persistence-layout directories
// under DataDir (§6).
func MemoryRoot() string { return filepath.Join(DataDir(), "memory") }
func CacheDir() string   { return filepath.Join(DataDir(), "cache") }
func LogsDir() string    { return filepath.Join(DataDir(), "logs") }

// LogFilePath is the path of the operations log file (§6).
func LogFilePath() string { return filepath.Join(LogsDir(), "memory_operations.log") }

// ConfigPath is the path of the on-disk layered config file (§6).
func ConfigPath() string { return filepath.Join(DataDir(), "config.json") }

// SanitizePersona replaces path separators so a persona string is always
// safe to use as a directory name (§4.1).
func SanitizePersona(persona string) string {
	r := strings.NewReplacer("/", "_", `\`, "_")
	return r.Replace(persona)
}

// PersonaDir, MemoryDBPath, EquipmentDBPath, ContextPath, KnowledgeGraphPath
// are the per-persona paths derived from MemoryRoot (§4.1, §6).
func PersonaDir(persona string) string {
	return filepath.Join(MemoryRoot(), SanitizePersona(persona))
}
func MemoryDBPath(persona string) string    { return filepath.Join(PersonaDir(persona), "memory.sqlite") }
func EquipmentDBPath(persona string) string { return filepath.Join(PersonaDir(persona), "equipment.db") }
func ContextPath(persona string) string {
	return filepath.Join(PersonaDir(persona), "persona_context.json")
}
func ContextBackupPath(persona string) string { return ContextPath(persona) + ".backup" }
func KnowledgeGraphPath(persona string) string {
	return filepath.Join(PersonaDir(persona), "knowledge_graph.html")
}

// LegacyMemoryDBPath is the pre-persona-directory single-file layout,
// migrated on first access by rename when only it exists (§4.1).
func LegacyMemoryDBPath(persona string) string {
	return filepath.Join(MemoryRoot(), SanitizePersona(persona)+".sqlite")
}

// MigrateLegacyLayout renames the legacy single-file DB into the
// persona-directory layout if the legacy path exists and the new one does
// not. One-shot; atomic via os.Rename (§4.1, Design Notes).
func MigrateLegacyLayout(persona string) error {
	legacy := LegacyMemoryDBPath(persona)
	modern := MemoryDBPath(persona)
	if _, err := os.Stat(modern); err == nil {
		return nil // already migrated
	}
	if _, err := os.Stat(legacy); err != nil {
		return nil // nothing to migrate
	}
	if err := os.MkdirAll(PersonaDir(persona), 0o755); err != nil {
		return err
	}
	return os.Rename(legacy, modern)
}

// Resolver resolves the active persona for a request in header > binding >
// default order (§4.1). The core never does thread-local magic: callers
// construct a Resolver per request from the transport boundary and pass it
// (or just the resolved string) down explicitly.
type Resolver struct {
	Header  string // e.g. from x-persona header or bearer credential
	Binding string // process-scoped default for non-HTTP callers (CLI, tests)
}

// Resolve returns the effective persona for this request.
func (r Resolver) Resolve() string {
	if r.Header != "" {
		return r.Header
	}
	if r.Binding != "" {
		return r.Binding
	}
	return "default"
}

// cacheState tracks the (mtime, env signature) the cached config was built
// from, invalidating on either changing (§4.1).
type cacheState struct {
	mu            sync.Mutex
	cached        *Config
	mtime         time.Time
	mtimeValid    bool
	envSignature  string
}

var globalCache cacheState

// Load resolves the layered config: defaults < resource-profile preset <
// on-disk JSON < environment overrides, with mtime+env-signature cache
// invalidation (§4.1). Pass force=true to bypass the cache.
func Load(force bool) (Config, error) {
	envOverrides := loadEnvOverrides()
	envSig := envSignature(envOverrides)

	path := ConfigPath()
	var mtime time.Time
	var mtimeValid bool
	if fi, err := os.Stat(path); err == nil {
		mtime = fi.ModTime()
		mtimeValid = true
	}

	globalCache.mu.Lock()
	defer globalCache.mu.Unlock()

	if !force && globalCache.cached != nil &&
		globalCache.mtimeValid == mtimeValid && globalCache.mtime.Equal(mtime) &&
		globalCache.envSignature == envSig {
		return *globalCache.cached, nil
	}

	merged := Default()

	fileOverrides, err := loadFileConfig(path)
	if err != nil {
		// Config failure: fall back to defaults, caller should log a warning.
		fileOverrides = nil
	}
	applyMapOverrides(&merged, fileOverrides)
	applyMapOverrides(&merged, envOverrides)

	// Env wins over config.json for every key; server_host/server_port are
	// also set explicitly here for container port management.
	if v, ok := envOverrides["server_host"]; ok {
		if s, ok := v.(string); ok {
			merged.ServerHost = s
		}
	}
	if v, ok := envOverrides["server_port"]; ok {
		merged.ServerPort = toInt(v, merged.ServerPort)
	}

	applyProfileDefaultsOnly(&merged)

	globalCache.cached = &merged
	globalCache.mtime = mtime
	globalCache.mtimeValid = mtimeValid
	globalCache.envSignature = envSig
	out := merged
	return out, nil
}

func loadFileConfig(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// applyMapOverrides round-trips merged through JSON, deep-merging in
// overrides first, so nested dotted-path maps (summarization.*, etc.) land
// on the right struct fields without hand-written reflection.
func applyMapOverrides(merged *Config, overrides map[string]any) {
	if len(overrides) == 0 {
		return
	}
	base, _ := json.Marshal(merged)
	var baseMap map[string]any
	_ = json.Unmarshal(base, &baseMap)

	deepMerge(baseMap, overrides)

	remarshaled, _ := json.Marshal(baseMap)
	_ = json.Unmarshal(remarshaled, merged)
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if vMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				deepMerge(dstMap, vMap)
				continue
			}
		}
		dst[k] = v
	}
}

// loadEnvOverrides implements _load_env_overrides: double-underscore
// explicit nesting, single-underscore friendly mapping for
// summarization_/vector_rebuild_/auto_cleanup_, boolean/int/float/JSON/
// string value parsing order (§4.1).
func loadEnvOverrides() map[string]any {
	overrides := map[string]any{}
	for _, kv := range os.Environ() {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		key, raw := kv[:eq], kv[eq+1:]
		if !strings.HasPrefix(key, envPrefix) {
			continue
		}
		suffix := key[len(envPrefix):]
		if suffix == "" || suffix == "DATA_DIR" {
			continue
		}
		lower := strings.ToLower(suffix)
		value := parseEnvValue(raw)

		if strings.Contains(suffix, "__") {
			parts := []string{}
			for _, seg := range strings.Split(lower, "__") {
				if seg != "" {
					parts = append(parts, seg)
				}
			}
			if len(parts) > 0 {
				assignNested(overrides, parts, value)
			}
			continue
		}

		switch {
		case strings.HasPrefix(lower, "summarization_"):
			assignNested(overrides, []string{"summarization", lower[len("summarization_"):]}, value)
		case strings.HasPrefix(lower, "vector_rebuild_"):
			assignNested(overrides, []string{"vector_rebuild", lower[len("vector_rebuild_"):]}, value)
		case strings.HasPrefix(lower, "auto_cleanup_"):
			assignNested(overrides, []string{"auto_cleanup", lower[len("auto_cleanup_"):]}, value)
		default:
			assignNested(overrides, []string{lower}, value)
		}
	}
	return overrides
}

func assignNested(target map[string]any, keys []string, value any) {
	cur := target
	for _, k := range keys[:len(keys)-1] {
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

// parseEnvValue parses in bool -> int -> float -> JSON -> string order (§4.1).
func parseEnvValue(raw string) any {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	var js any
	if err := json.Unmarshal([]byte(v), &js); err == nil {
		if _, isNum := js.(float64); !isNum {
			return js
		}
	}
	return v
}

func envSignature(m map[string]any) string {
	b, _ := json.Marshal(m)
	return string(b)
}

func toInt(v any, fallback int) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i
		}
	}
	return fallback
}
