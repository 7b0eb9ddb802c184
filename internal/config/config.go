package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	UnknownPolicyAnnotate = "annotate"
	UnknownPolicyExclude  = "exclude"
)

type Config struct {
	Port       int              `json:"port" validate:"gte=0,lte=65535"`
	DataDir    string           `json:"data_dir" validate:"required"`
	LogConfig  logger.LogConfig `json:"log_config"`
	Database   DatabaseConfig   `json:"database"`
	Index      IndexConfig      `json:"index"`
	FileStore  FileStoreConfig  `json:"file_store"`
	AI         AIConfig         `json:"ai"`
	EmbedCache EmbedCacheConfig `json:"embed_cache"`
	Compose    ComposeConfig    `json:"compose"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Ingest     IngestConfig     `json:"ingest"`
	HTTP       HTTPConfig       `json:"http"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver" validate:"oneof=sqlite postgres"`
	Path     string `json:"path"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type IndexConfig struct {
	Dir       string `json:"dir"`
	BatchSize int    `json:"batch_size" validate:"gte=0"`
	Workers   int    `json:"workers" validate:"gte=0"`
}

type FileStoreConfig struct {
	Type string      `json:"type" validate:"oneof=local s3"`
	Data interface{} `json:"data"`
}

type AIProviderConfig struct {
	Name string      `json:"name" validate:"required"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIModelRef struct {
	Provider string `json:"provider" validate:"required"`
	Model    string `json:"model"`
}

type AIConfig struct {
	Providers     []AIProviderConfig `json:"providers" validate:"dive"`
	Embedder      []AIModelRef       `json:"embedder" validate:"dive"`
	Oracle        []AIModelRef       `json:"oracle" validate:"dive"`
	Timeout       int                `json:"timeout" validate:"gte=0"`
	MaxInputChars int                `json:"max_input_chars" validate:"gte=0"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLSeconds int  `json:"lru_ttl_seconds"`
	DB            bool `json:"db"`
	MaxAgeDays    int  `json:"max_age_days"`
}

type ComposeConfig struct {
	MaxTokens              int     `json:"max_tokens" validate:"gt=0"`
	ReservedTokens         int     `json:"reserved_tokens" validate:"gte=0,ltfield=MaxTokens"`
	TopK                   int     `json:"top_k" validate:"gt=0"`
	SearchK                int     `json:"search_k" validate:"gt=0"`
	MaxArtifacts           int     `json:"max_artifacts" validate:"gte=0"`
	ArtifactCharLimit      int     `json:"artifact_char_limit" validate:"gt=0"`
	ArtifactBudgetRatio    float64 `json:"artifact_budget_ratio" validate:"gt=0,lte=1"`
	TruncatedBodyChars     int     `json:"truncated_body_chars" validate:"gt=0"`
	ExcerptChars           int     `json:"excerpt_chars" validate:"gt=0"`
	HeuristicPackLimit     int     `json:"heuristic_pack_limit" validate:"gt=0"`
	HeuristicStageTwoLimit int     `json:"heuristic_stage_two_limit" validate:"gt=0"`
	UnknownPolicy          string  `json:"unknown_policy" validate:"oneof=annotate exclude"`
	TokenEstimator         string  `json:"token_estimator" validate:"oneof=chars words tiktoken"`
}

type ScheduleConfig struct {
	IndexRebuild string `json:"index_rebuild"`
	CacheCleanup string `json:"cache_cleanup"`
	DriftScan    string `json:"drift_scan"`
}

type IngestConfig struct {
	WatchDir       string `json:"watch_dir"`
	DebounceMillis int    `json:"debounce_millis"`
}

type HTTPConfig struct {
	RateLimitRPS   float64  `json:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst"`
	CORSAllowlist  []string `json:"cors_allowlist"`
}

// DefaultCompose holds the composer budget constants.
func DefaultCompose() ComposeConfig {
	return ComposeConfig{
		MaxTokens:              8000,
		ReservedTokens:         500,
		TopK:                   10,
		SearchK:                15,
		MaxArtifacts:           3,
		ArtifactCharLimit:      500,
		ArtifactBudgetRatio:    0.7,
		TruncatedBodyChars:     500,
		ExcerptChars:           200,
		HeuristicPackLimit:     3,
		HeuristicStageTwoLimit: 2,
		UnknownPolicy:          UnknownPolicyAnnotate,
		TokenEstimator:         "chars",
	}
}

// Load reads a JSON config file. Files ending in .yaml or .yml are decoded
// as YAML with the same keys.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config usable without a file, rooted at dataDir.
func Default(dataDir string) (*Config, error) {
	cfg := &Config{DataDir: dataDir}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	c.applyDefaults()
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required for postgres")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = ".contextkit"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "index.sqlite")
	}
	if c.Index.Dir == "" {
		c.Index.Dir = filepath.Join(c.DataDir, "index")
	}
	if c.Index.BatchSize == 0 {
		c.Index.BatchSize = 32
	}
	if c.Index.Workers == 0 {
		c.Index.Workers = 4
	}
	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
	}
	if c.FileStore.Type == "local" && c.FileStore.Data == nil {
		c.FileStore.Data = map[string]interface{}{"dir": filepath.Join(c.DataDir, "artifacts")}
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 15
	}
	if c.EmbedCache.LRUSize == 0 {
		c.EmbedCache.LRUSize = 1024
	}
	if c.EmbedCache.LRUTTLSeconds == 0 {
		c.EmbedCache.LRUTTLSeconds = 3600
	}
	if c.EmbedCache.MaxAgeDays == 0 {
		c.EmbedCache.MaxAgeDays = 30
	}
	c.Compose.fill(DefaultCompose())
	if c.Ingest.DebounceMillis == 0 {
		c.Ingest.DebounceMillis = 500
	}
}

func (c *ComposeConfig) fill(d ComposeConfig) {
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.ReservedTokens == 0 {
		c.ReservedTokens = d.ReservedTokens
	}
	if c.TopK == 0 {
		c.TopK = d.TopK
	}
	if c.SearchK == 0 {
		c.SearchK = d.SearchK
	}
	if c.MaxArtifacts == 0 {
		c.MaxArtifacts = d.MaxArtifacts
	}
	if c.ArtifactCharLimit == 0 {
		c.ArtifactCharLimit = d.ArtifactCharLimit
	}
	if c.ArtifactBudgetRatio == 0 {
		c.ArtifactBudgetRatio = d.ArtifactBudgetRatio
	}
	if c.TruncatedBodyChars == 0 {
		c.TruncatedBodyChars = d.TruncatedBodyChars
	}
	if c.ExcerptChars == 0 {
		c.ExcerptChars = d.ExcerptChars
	}
	if c.HeuristicPackLimit == 0 {
		c.HeuristicPackLimit = d.HeuristicPackLimit
	}
	if c.HeuristicStageTwoLimit == 0 {
		c.HeuristicStageTwoLimit = d.HeuristicStageTwoLimit
	}
	if c.UnknownPolicy == "" {
		c.UnknownPolicy = d.UnknownPolicy
	}
	if c.TokenEstimator == "" {
		c.TokenEstimator = d.TokenEstimator
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}
