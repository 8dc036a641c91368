package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every configuration option enumerated in spec.md §6. It
// follows the teacher's three-layer priority: defaults (lowest),
// environment variables (AUDITCORE_* prefix, medium), functional options
// passed to NewConfig (highest).
type Config struct {
	Audit      AuditConfig      `yaml:"audit"`
	Cache      CacheGroupConfig `yaml:"cache"`
	Completion CompletionCriteria `yaml:"completion"`
	Context    ContextConfig    `yaml:"context"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Session    SessionConfig    `yaml:"session"`
	Resources  ResourcesConfig  `yaml:"resources"`
	Security   SecurityConfig   `yaml:"security"`
	Identity   IdentityConfig   `yaml:"identity"`
	Logging    LoggingConfig    `yaml:"logging"`

	logger Logger `yaml:"-"`
}

type AuditConfig struct {
	TimeoutMS     int  `yaml:"timeoutMs" env:"AUDITCORE_AUDIT_TIMEOUT_MS" default:"30000"`
	Enabled       bool `yaml:"enabled" env:"AUDITCORE_AUDIT_ENABLED" default:"true"`
	QueueMaxConcurrent int `yaml:"queueMaxConcurrent" env:"AUDITCORE_AUDIT_QUEUE_MAX_CONCURRENT" default:"4"`
	RequireLanguageFence bool `yaml:"requireLanguageFence" env:"AUDITCORE_AUDIT_REQUIRE_LANGUAGE_FENCE" default:"false"`
	JudgeRetryAttempts int `yaml:"judgeRetryAttempts" env:"AUDITCORE_JUDGE_RETRY_ATTEMPTS" default:"2"`
}

type CacheConfig struct {
	MaxEntries        int           `yaml:"maxEntries"`
	MaxAgeMS          int           `yaml:"maxAgeMs"`
	MaxMemoryBytes    int64         `yaml:"maxMemoryBytes"`
	CleanupIntervalMS int           `yaml:"cleanupIntervalMs"`
	EnableStats       bool          `yaml:"enableStats"`
}

type PromptCacheConfig struct {
	CacheConfig               `yaml:",inline"`
	KeyVersion                 string `yaml:"keyVersion"`
	IncludeSessionContext      bool   `yaml:"includeSessionContext"`
	IncludeWorkflowConfig      bool   `yaml:"includeWorkflowConfig"`
	IncludeQualityConfig       bool   `yaml:"includeQualityConfig"`
}

type CacheGroupConfig struct {
	Audit  CacheConfig       `yaml:"audit"`
	Prompt PromptCacheConfig `yaml:"prompt"`
}

type ContextConfig struct {
	MaxSize             int     `yaml:"maxSize" env:"AUDITCORE_CONTEXT_MAX_SIZE" default:"16000"`
	TargetSize          int     `yaml:"targetSize" env:"AUDITCORE_CONTEXT_TARGET_SIZE"`
	MinRelevance        float64 `yaml:"minRelevance" env:"AUDITCORE_CONTEXT_MIN_RELEVANCE" default:"0.2"`
	EnableCompression   bool    `yaml:"enableCompression" env:"AUDITCORE_CONTEXT_ENABLE_COMPRESSION" default:"true"`
	EnableSummarization bool    `yaml:"enableSummarization" env:"AUDITCORE_CONTEXT_ENABLE_SUMMARIZATION" default:"true"`
}

type PromptConfig struct {
	TemplatePath   string        `yaml:"templatePath" env:"AUDITCORE_PROMPT_TEMPLATE_PATH"`
	CacheMaxAgeMS  int           `yaml:"cacheMaxAgeMs" env:"AUDITCORE_PROMPT_CACHE_MAX_AGE_MS" default:"600000"`
}

type SessionConfig struct {
	StateDirectory    string        `yaml:"stateDirectory" env:"AUDITCORE_SESSION_STATE_DIR" default:".auditcore/sessions"`
	MaxAgeMS          int           `yaml:"maxAgeMs" env:"AUDITCORE_SESSION_MAX_AGE_MS" default:"86400000"`
	CleanupIntervalMS int           `yaml:"cleanupIntervalMs" env:"AUDITCORE_SESSION_CLEANUP_INTERVAL_MS" default:"300000"`
	RedisURL          string        `yaml:"redisUrl" env:"AUDITCORE_SESSION_REDIS_URL,REDIS_URL"`
	Backend           string        `yaml:"backend" env:"AUDITCORE_SESSION_BACKEND" default:"memory"` // memory|file|redis
}

type ResourcesConfig struct {
	MaxHeapBytes      int64   `yaml:"maxHeapBytes" env:"AUDITCORE_MAX_HEAP_BYTES" default:"536870912"`
	MaxRSSBytes       int64   `yaml:"maxRssBytes" env:"AUDITCORE_MAX_RSS_BYTES" default:"1073741824"`
	MaxFileDescriptors int    `yaml:"maxFileDescriptors" env:"AUDITCORE_MAX_FDS" default:"1024"`
	MemoryWarningPct  float64 `yaml:"memoryWarningPct" env:"AUDITCORE_MEMORY_WARNING_PCT" default:"0.8"`
	MemoryCriticalPct float64 `yaml:"memoryCriticalPct" env:"AUDITCORE_MEMORY_CRITICAL_PCT" default:"0.95"`
	GCIntervalMS      int     `yaml:"gcIntervalMs" env:"AUDITCORE_GC_INTERVAL_MS" default:"60000"`
	EnableAutoGC      bool    `yaml:"enableAutoGC" env:"AUDITCORE_ENABLE_AUTO_GC" default:"true"`
}

type SecurityConfig struct {
	SanitizePII       bool `yaml:"sanitizePII" env:"AUDITCORE_SECURITY_SANITIZE_PII" default:"true"`
	ValidateCommands  bool `yaml:"validateCommands" env:"AUDITCORE_SECURITY_VALIDATE_COMMANDS" default:"true"`
	RespectPermissions bool `yaml:"respectPermissions" env:"AUDITCORE_SECURITY_RESPECT_PERMISSIONS" default:"true"`
	FlagVulnerabilities bool `yaml:"flagVulnerabilities" env:"AUDITCORE_SECURITY_FLAG_VULNERABILITIES" default:"true"`
}

type IdentityConfig struct {
	Name      string `yaml:"name" env:"AUDITCORE_IDENTITY_NAME" default:"Auditor"`
	Role      string `yaml:"role" env:"AUDITCORE_IDENTITY_ROLE" default:"adversarial code reviewer"`
	Stance    string `yaml:"stance" env:"AUDITCORE_IDENTITY_STANCE" default:"constructive-adversarial"`
	Authority string `yaml:"authority" env:"AUDITCORE_IDENTITY_AUTHORITY" default:"spec-and-steering-ground-truth"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"AUDITCORE_LOG_LEVEL" default:"INFO"`
	Format string `yaml:"format" env:"AUDITCORE_LOG_FORMAT"`
}

// Option mutates a Config during construction. Functional options are the
// highest-priority configuration layer.
type Option func(*Config)

// DefaultConfig returns every default named in spec.md §6 plus the
// CompletionCriteria defaults from spec.md §3.
func DefaultConfig() *Config {
	return &Config{
		Audit: AuditConfig{
			TimeoutMS:          30000,
			Enabled:            true,
			QueueMaxConcurrent: 4,
			JudgeRetryAttempts: 2,
		},
		Cache: CacheGroupConfig{
			Audit: CacheConfig{
				MaxEntries:        1000,
				MaxAgeMS:          30 * 60 * 1000,
				MaxMemoryBytes:    64 << 20,
				CleanupIntervalMS: 5 * 60 * 1000,
				EnableStats:       true,
			},
			Prompt: PromptCacheConfig{
				CacheConfig: CacheConfig{
					MaxEntries:        200,
					MaxAgeMS:          10 * 60 * 1000,
					MaxMemoryBytes:    16 << 20,
					CleanupIntervalMS: 5 * 60 * 1000,
					EnableStats:       true,
				},
				KeyVersion: "v1",
			},
		},
		Completion: DefaultCompletionCriteria(),
		Context: ContextConfig{
			MaxSize:             16000,
			MinRelevance:        0.2,
			EnableCompression:   true,
			EnableSummarization: true,
		},
		Prompt: PromptConfig{
			CacheMaxAgeMS: 600000,
		},
		Session: SessionConfig{
			StateDirectory:    ".auditcore/sessions",
			MaxAgeMS:          86400000,
			CleanupIntervalMS: 300000,
			Backend:           "memory",
		},
		Resources: ResourcesConfig{
			MaxHeapBytes:       512 << 20,
			MaxRSSBytes:        1 << 30,
			MaxFileDescriptors: 1024,
			MemoryWarningPct:   0.8,
			MemoryCriticalPct:  0.95,
			GCIntervalMS:       60000,
			EnableAutoGC:       true,
		},
		Security: SecurityConfig{
			SanitizePII:         true,
			ValidateCommands:    true,
			RespectPermissions:  true,
			FlagVulnerabilities: true,
		},
		Identity: IdentityConfig{
			Name:      "Auditor",
			Role:      "adversarial code reviewer",
			Stance:    "constructive-adversarial",
			Authority: "spec-and-steering-ground-truth",
		},
		Logging: LoggingConfig{Level: "INFO"},
		logger:  &NoOpLogger{},
	}
}

// LoadFromEnv overlays environment variables onto the current values. It
// reads AUDITCORE_AUDIT_TIMEOUT_MS, AUDITCORE_AUDIT_ENABLED,
// AUDITCORE_AUDIT_QUEUE_MAX_CONCURRENT, AUDITCORE_CONTEXT_MAX_SIZE,
// AUDITCORE_CONTEXT_MIN_RELEVANCE, AUDITCORE_PROMPT_TEMPLATE_PATH,
// AUDITCORE_SESSION_STATE_DIR, AUDITCORE_SESSION_BACKEND,
// AUDITCORE_SESSION_REDIS_URL (falling back to REDIS_URL),
// AUDITCORE_LOG_LEVEL, AUDITCORE_LOG_FORMAT, AUDITCORE_IDENTITY_NAME and
// AUDITCORE_IDENTITY_STANCE. The env tags on other fields are not read by
// any code; those fields come only from defaults, LoadFromFile and options.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("AUDITCORE_AUDIT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Audit.TimeoutMS = n
		}
	}
	if v := os.Getenv("AUDITCORE_AUDIT_ENABLED"); v != "" {
		c.Audit.Enabled = parseBool(v)
	}
	if v := os.Getenv("AUDITCORE_AUDIT_QUEUE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Audit.QueueMaxConcurrent = n
		}
	}
	if v := os.Getenv("AUDITCORE_CONTEXT_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Context.MaxSize = n
		}
	}
	if v := os.Getenv("AUDITCORE_CONTEXT_MIN_RELEVANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Context.MinRelevance = f
		}
	}
	if v := os.Getenv("AUDITCORE_PROMPT_TEMPLATE_PATH"); v != "" {
		c.Prompt.TemplatePath = v
	}
	if v := os.Getenv("AUDITCORE_SESSION_STATE_DIR"); v != "" {
		c.Session.StateDirectory = v
	}
	if v := os.Getenv("AUDITCORE_SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
	if v := os.Getenv("AUDITCORE_SESSION_REDIS_URL"); v != "" {
		c.Session.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Session.RedisURL = v
	}
	if v := os.Getenv("AUDITCORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AUDITCORE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("AUDITCORE_IDENTITY_NAME"); v != "" {
		c.Identity.Name = v
	}
	if v := os.Getenv("AUDITCORE_IDENTITY_STANCE"); v != "" {
		c.Identity.Stance = v
	}
	return nil
}

// LoadFromFile overlays a YAML configuration file onto the current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAuditError("Config.LoadFromFile", "ConfigurationInvalid", "Critical", false,
			"check the config file path", fmt.Errorf("%w: %v", ErrConfigurationInvalid, err))
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAuditError("Config.LoadFromFile", "ConfigurationInvalid", "Critical", false,
			"fix the YAML syntax", fmt.Errorf("%w: %v", ErrConfigurationInvalid, err))
	}
	return nil
}

// Validate enforces every invariant from spec.md §3/§6. Violations are a
// fatal ConfigurationInvalid at boot (spec.md §7).
func (c *Config) Validate() error {
	if err := c.Completion.Validate(); err != nil {
		return err
	}
	if c.Audit.TimeoutMS < 5000 || c.Audit.TimeoutMS > 300000 {
		return NewAuditError("Config.Validate", "ConfigurationInvalid", "Critical", false,
			"audit.timeoutMs must be within [5000,300000]", ErrConfigurationInvalid)
	}
	if c.Audit.QueueMaxConcurrent < 1 {
		return NewAuditError("Config.Validate", "ConfigurationInvalid", "Critical", false,
			"audit.queue.maxConcurrent must be >= 1", ErrConfigurationInvalid)
	}
	if c.Context.MinRelevance < 0 || c.Context.MinRelevance > 1 {
		return NewAuditError("Config.Validate", "ConfigurationInvalid", "Critical", false,
			"context.minRelevance must be within [0,1]", ErrConfigurationInvalid)
	}
	if c.Resources.MemoryWarningPct <= 0 || c.Resources.MemoryWarningPct >= c.Resources.MemoryCriticalPct {
		return NewAuditError("Config.Validate", "ConfigurationInvalid", "Critical", false,
			"resources.memoryWarningPct must be in (0, memoryCriticalPct)", ErrConfigurationInvalid)
	}
	switch c.Identity.Stance {
	case "adversarial", "collaborative", "constructive-adversarial":
	default:
		return NewAuditError("Config.Validate", "ConfigurationInvalid", "Critical", false,
			"identity.stance must be one of adversarial|collaborative|constructive-adversarial", ErrConfigurationInvalid)
	}
	switch c.Identity.Authority {
	case "spec-and-steering-ground-truth", "flexible", "advisory":
	default:
		return NewAuditError("Config.Validate", "ConfigurationInvalid", "Critical", false,
			"identity.authority must be one of spec-and-steering-ground-truth|flexible|advisory", ErrConfigurationInvalid)
	}
	if c.Session.Backend == "redis" && c.Session.RedisURL == "" {
		return NewAuditError("Config.Validate", "ConfigurationInvalid", "Critical", false,
			"session.redisUrl is required when session.backend=redis", ErrConfigurationInvalid)
	}
	return nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

// AuditTimeout returns Audit.TimeoutMS as a time.Duration.
func (c *Config) AuditTimeout() time.Duration {
	return time.Duration(c.Audit.TimeoutMS) * time.Millisecond
}

// WithTemplatePath sets the prompt template file path.
func WithTemplatePath(path string) Option {
	return func(c *Config) { c.Prompt.TemplatePath = path }
}

// WithAuditTimeout sets the audit timeout.
func WithAuditTimeout(d time.Duration) Option {
	return func(c *Config) { c.Audit.TimeoutMS = int(d / time.Millisecond) }
}

// WithQueueConcurrency sets the audit queue's admission limit.
func WithQueueConcurrency(n int) Option {
	return func(c *Config) { c.Audit.QueueMaxConcurrent = n }
}

// WithCompletionCriteria overrides the tiered-completion configuration.
func WithCompletionCriteria(cc CompletionCriteria) Option {
	return func(c *Config) { c.Completion = cc }
}

// WithSessionStateDirectory sets the durable session store directory.
func WithSessionStateDirectory(dir string) Option {
	return func(c *Config) { c.Session.StateDirectory = dir }
}

// WithSessionBackend selects "memory", "file", or "redis".
func WithSessionBackend(backend, redisURL string) Option {
	return func(c *Config) {
		c.Session.Backend = backend
		if redisURL != "" {
			c.Session.RedisURL = redisURL
		}
	}
}

// WithIdentity overrides the reviewer's persona.
func WithIdentity(identity IdentityConfig) Option {
	return func(c *Config) { c.Identity = identity }
}

// WithLogger attaches a logger used during configuration loading itself.
func WithLogger(logger Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithLogLevel sets the logging level.
func WithLogLevel(level string) Option {
	return func(c *Config) { c.Logging.Level = level }
}

// NewConfig builds a Config by layering defaults, then environment
// variables, then the supplied functional options, then validates the
// result.
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Logger returns the logger attached to this config, defaulting to NoOp.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return &NoOpLogger{}
	}
	return c.logger
}
