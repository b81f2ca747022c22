package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeZone = "Asia/Kolkata"
	DefaultHTTPPort = 8081

	DefaultMaxFiles    = 5
	DefaultMaxFileSize = 5 * 1024 * 1024

	DefaultStorageBackend = "local"
	DefaultLocalRoot      = "./uploads"

	DefaultAITextModel   = "gemini-1.5-flash"
	DefaultAIVisionModel = "gemini-1.5-flash"
	DefaultAITimeout     = 60 * time.Second

	DefaultExtractionParallelism = 3
	DefaultMatchThreshold        = 0.7
	DefaultActiveStatus          = "active"

	// Sweep picks up statements still awaiting extraction, then auto-matches.
	DefaultExtractionSchedule = "*/5 * * * *"
	SweepBatchSize            = 50

	DefaultPostingLockTTL = 2 * time.Minute
)

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type UploadConfig struct {
	MaxFiles         int   `yaml:"max_files"`
	MaxFileSize      int64 `yaml:"max_file_size"`
	RejectDuplicates bool  `yaml:"reject_duplicates"`
}

type S3Config struct {
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	BaseURL string `yaml:"base_url"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	Bucket     string `yaml:"bucket"`
}

type StorageConfig struct {
	Backend   string         `yaml:"backend"`
	LocalRoot string         `yaml:"local_root"`
	S3        S3Config       `yaml:"s3"`
	Supabase  SupabaseConfig `yaml:"supabase"`
}

type AIConfig struct {
	APIKey      string        `yaml:"api_key"`
	TextModel   string        `yaml:"text_model"`
	VisionModel string        `yaml:"vision_model"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ExtractionConfig struct {
	Parallelism int `yaml:"parallelism"`
}

type MatchingConfig struct {
	Threshold      float64  `yaml:"threshold"`
	ActiveStatuses []string `yaml:"active_statuses"`
}

type JobsConfig struct {
	Enabled            bool   `yaml:"enabled"`
	TimeZone           string `yaml:"time_zone"`
	ExtractionSchedule string `yaml:"extraction_schedule"`
}

type RedisConfig struct {
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// Config is the typed view of services.yaml plus environment overrides.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Upload     UploadConfig     `yaml:"upload"`
	Storage    StorageConfig    `yaml:"storage"`
	AI         AIConfig         `yaml:"ai"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Matching   MatchingConfig   `yaml:"matching"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Redis      RedisConfig      `yaml:"redis"`
}

// Load reads .env (when present), then the yaml file at path (when present),
// then applies environment overrides and defaults.
func Load(envPath, path string) (*Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be within [0,1], got %v", c.Matching.Threshold)
	}
	switch c.Storage.Backend {
	case "local", "s3", "supabase":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
	}
	if c.Storage.Backend == "supabase" && (c.Storage.Supabase.URL == "" || c.Storage.Supabase.Bucket == "") {
		return fmt.Errorf("storage.supabase url and bucket are required for the supabase backend")
	}
	return nil
}

func applyEnv(c *Config) {
	if v := env("DATABASE_URL"); v != "" {
		c.Database.URL = v
	} else if host := env("DB_HOST"); host != "" {
		c.Database.URL = fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
			env("DB_USER"), env("DB_PASSWORD"), host, env("DB_PORT"), env("DB_NAME"),
		)
	}
	if v := env("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := env("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := env("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if strings.EqualFold(env("BANK_STMT_S3_ENABLED"), "true") {
		c.Storage.Backend = "s3"
	}
	if v := env("BANK_STMT_S3_BUCKET"); v != "" {
		c.Storage.S3.Bucket = v
	}
	if v := env("BANK_STMT_S3_REGION"); v != "" {
		c.Storage.S3.Region = v
	}
	if v := env("BANK_STMT_S3_BASE_URL"); v != "" {
		c.Storage.S3.BaseURL = v
	}
	if v := env("SUPABASE_URL"); v != "" {
		c.Storage.Supabase.URL = v
	}
	if v := env("SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		c.Storage.Supabase.ServiceKey = v
	}
	if v := env("SUPABASE_BUCKET"); v != "" {
		c.Storage.Supabase.Bucket = v
	}
	if v := env("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultHTTPPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// extraction streams can run as long as several AI calls
		c.Server.WriteTimeout = 10 * time.Minute
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Upload.MaxFiles == 0 {
		c.Upload.MaxFiles = DefaultMaxFiles
	}
	if c.Upload.MaxFileSize == 0 {
		c.Upload.MaxFileSize = DefaultMaxFileSize
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.LocalRoot == "" {
		c.Storage.LocalRoot = DefaultLocalRoot
	}
	if c.Storage.S3.Region == "" {
		c.Storage.S3.Region = "ap-south-1"
	}
	if c.AI.TextModel == "" {
		c.AI.TextModel = DefaultAITextModel
	}
	if c.AI.VisionModel == "" {
		c.AI.VisionModel = DefaultAIVisionModel
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = DefaultAITimeout
	}
	if c.Extraction.Parallelism <= 0 {
		c.Extraction.Parallelism = DefaultExtractionParallelism
	}
	if c.Matching.Threshold == 0 {
		c.Matching.Threshold = DefaultMatchThreshold
	}
	if len(c.Matching.ActiveStatuses) == 0 {
		c.Matching.ActiveStatuses = []string{DefaultActiveStatus}
	}
	if c.Jobs.TimeZone == "" {
		c.Jobs.TimeZone = DefaultTimeZone
	}
	if c.Jobs.ExtractionSchedule == "" {
		c.Jobs.ExtractionSchedule = DefaultExtractionSchedule
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = DefaultPostingLockTTL
	}
}

// env trims accidental quoting left by some .env loaders.
func env(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"")
}
