package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Policy        PolicyConfig
	Ledger        LedgerConfig
	Scorer        ScorerConfig
	Classifier    ClassifierConfig
	Evidence      EvidenceConfig
	Notifications NotificationConfig
	Workflow      WorkflowConfig
	Audit         AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PolicyConfig holds the risk thresholds that gate approvals. Values are percentages (0-100).
type PolicyConfig struct {
	PlagiarismBlock   int
	AIContentBlock    int
	AuthenticityFloor int
	WarningLevel      int
}

// LedgerConfig selects the hash/signature primitives and the optimistic append budget.
type LedgerConfig struct {
	HashAlgorithm    string
	Signer           string
	SigningSeed      string
	HMACSecret       string
	KeyID            string
	MaxAppendRetries int
}

// ScorerConfig tunes evidence scoring.
type ScorerConfig struct {
	ClassifierTimeout time.Duration
	ShingleSize       int
	MaxEvidenceBytes  int64
	AllowedMIMEs      []string
}

// ClassifierConfig selects the AI-content classifier backend.
type ClassifierConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// EvidenceConfig points to the evidence file store.
type EvidenceConfig struct {
	StorageDir string
}

// NotificationConfig configures decision notifications.
type NotificationConfig struct {
	NATSURL    string
	Subject    string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// WorkflowConfig tunes decision serialisation.
type WorkflowConfig struct {
	DecisionLockTTL time.Duration
}

// AuditConfig tunes audit trail paging.
type AuditConfig struct {
	PageSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}
	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}
	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Policy = PolicyConfig{
		PlagiarismBlock:   clampPercent(v.GetInt("POLICY_PLAGIARISM_BLOCK")),
		AIContentBlock:    clampPercent(v.GetInt("POLICY_AI_CONTENT_BLOCK")),
		AuthenticityFloor: clampPercent(v.GetInt("POLICY_AUTHENTICITY_FLOOR")),
		WarningLevel:      clampPercent(v.GetInt("POLICY_WARNING_LEVEL")),
	}

	retries := v.GetInt("LEDGER_MAX_APPEND_RETRIES")
	if retries <= 0 {
		retries = 5
	}
	cfg.Ledger = LedgerConfig{
		HashAlgorithm:    strings.ToLower(v.GetString("LEDGER_HASH_ALGORITHM")),
		Signer:           strings.ToLower(v.GetString("LEDGER_SIGNER")),
		SigningSeed:      v.GetString("LEDGER_SIGNING_SEED"),
		HMACSecret:       v.GetString("LEDGER_HMAC_SECRET"),
		KeyID:            v.GetString("LEDGER_KEY_ID"),
		MaxAppendRetries: retries,
	}

	maxEvidence := v.GetInt64("SCORER_MAX_EVIDENCE_BYTES")
	if maxEvidence <= 0 {
		maxEvidence = 20 * 1024 * 1024
	}
	cfg.Scorer = ScorerConfig{
		ClassifierTimeout: parseDuration(v.GetString("SCORER_CLASSIFIER_TIMEOUT"), 10*time.Second),
		ShingleSize:       v.GetInt("SCORER_SHINGLE_SIZE"),
		MaxEvidenceBytes:  maxEvidence,
		AllowedMIMEs:      splitAndTrim(v.GetString("SCORER_ALLOWED_MIME_TYPES")),
	}

	cfg.Classifier = ClassifierConfig{
		Provider: strings.ToLower(v.GetString("CLASSIFIER_PROVIDER")),
		APIKey:   v.GetString("OPENAI_API_KEY"),
		Model:    v.GetString("CLASSIFIER_MODEL"),
		BaseURL:  v.GetString("CLASSIFIER_BASE_URL"),
	}

	cfg.Evidence = EvidenceConfig{StorageDir: v.GetString("EVIDENCE_STORAGE_DIR")}

	cfg.Notifications = NotificationConfig{
		NATSURL:    v.GetString("NATS_URL"),
		Subject:    v.GetString("NOTIFICATIONS_SUBJECT"),
		Workers:    v.GetInt("NOTIFICATIONS_WORKERS"),
		MaxRetries: v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Workflow = WorkflowConfig{
		DecisionLockTTL: parseDuration(v.GetString("DECISION_LOCK_TTL"), 15*time.Second),
	}

	cfg.Audit = AuditConfig{PageSize: v.GetInt("AUDIT_PAGE_SIZE")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "achievements")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "achievements")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("POLICY_PLAGIARISM_BLOCK", 80)
	v.SetDefault("POLICY_AI_CONTENT_BLOCK", 80)
	v.SetDefault("POLICY_AUTHENTICITY_FLOOR", 20)
	v.SetDefault("POLICY_WARNING_LEVEL", 40)

	v.SetDefault("LEDGER_HASH_ALGORITHM", "sha256")
	v.SetDefault("LEDGER_SIGNER", "ed25519")
	v.SetDefault("LEDGER_SIGNING_SEED", "dev_ledger_seed")
	v.SetDefault("LEDGER_HMAC_SECRET", "dev_ledger_secret")
	v.SetDefault("LEDGER_KEY_ID", "ledger-dev-1")
	v.SetDefault("LEDGER_MAX_APPEND_RETRIES", 5)

	v.SetDefault("SCORER_CLASSIFIER_TIMEOUT", "10s")
	v.SetDefault("SCORER_SHINGLE_SIZE", 5)
	v.SetDefault("SCORER_MAX_EVIDENCE_BYTES", 20*1024*1024)
	v.SetDefault("SCORER_ALLOWED_MIME_TYPES", "application/pdf,image/png,image/jpeg,text/plain")

	v.SetDefault("CLASSIFIER_PROVIDER", "heuristic")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("CLASSIFIER_MODEL", "gpt-4o-mini")
	v.SetDefault("CLASSIFIER_BASE_URL", "")

	v.SetDefault("EVIDENCE_STORAGE_DIR", "./evidence")

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NOTIFICATIONS_SUBJECT", "achievements.decisions")
	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "2s")

	v.SetDefault("DECISION_LOCK_TTL", "15s")
	v.SetDefault("AUDIT_PAGE_SIZE", 100)
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
