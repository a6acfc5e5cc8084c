package config

import (
	"errors"
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName         = "modwatch"
	defaultServiceVersion      = "1.0.0"
	defaultServicePort         = 8080
	defaultConcurrency         = 8
	defaultScanRatePerSec      = 6.0
	defaultScanBurst           = 12
	defaultQueueDepth          = 256
	defaultDBDriver            = "postgres"
	defaultDBHost              = "localhost"
	defaultDBPort              = 5432
	defaultDBUser              = "postgres"
	defaultDBName              = "modwatch"
	defaultDBSSLMode           = "disable"
	defaultRulesPath           = "configs/rules.yml"
	defaultScorerTimeout       = 5 * time.Second
	defaultLowConfidenceBound  = 0.30
	defaultValidationFloor     = 0.60
	defaultDirectedThreshold   = 0.80
	defaultUndirectedThreshold = 0.90
	defaultCooldownBuffer      = 15 * time.Second
	defaultResetHint           = 60 * time.Second
	defaultReviewTimeout       = 30 * time.Second
	defaultMinRemoveConsensus  = 2
	defaultRemoveFloor         = 0.95
	defaultReasonTemplate      = "modwatch: %s (confidence: %s)"
	defaultReconcileInterval   = 12 * time.Hour
	defaultLookbackDays        = 14
	defaultDecisionLag         = 12 * time.Hour
	defaultSummaryInterval     = 7 * 24 * time.Hour
	defaultSummaryStatePath    = "summary_state.json"
	defaultSourceInterval      = 20 * time.Second
	defaultSourceLimit         = 120
	defaultLogLevel            = "info"
)

// Config holds all configuration for the modwatch service.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Rules     RulesConfig     `yaml:"rules"`
	Signals   SignalsConfig   `yaml:"signals"`
	Review    ReviewConfig    `yaml:"review"`
	Actions   ActionsConfig   `yaml:"actions"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Notify    NotifyConfig    `yaml:"notify"`
	Source    SourceConfig    `yaml:"source"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name        string  `yaml:"name"`
	Version     string  `yaml:"version"`
	Port        int     `env:"MODWATCH_PORT"        yaml:"port"`
	Debug       bool    `env:"APP_DEBUG"            yaml:"debug"`
	Concurrency int     `env:"MODWATCH_CONCURRENCY" yaml:"concurrency"`
	QueueDepth  int     `yaml:"queue_depth"`
	ScanRate    float64 `yaml:"scan_rate_per_sec"`
	ScanBurst   int     `yaml:"scan_burst"`
	DryRun      bool    `env:"DRY_RUN"              yaml:"dry_run"`
}

// DatabaseConfig holds audit store configuration. Driver is "postgres"
// in production; "sqlite3" is supported for local runs and tests.
type DatabaseConfig struct {
	Driver   string `env:"DB_DRIVER"         yaml:"driver"`
	Host     string `env:"POSTGRES_HOST"     yaml:"host"`
	Port     int    `env:"POSTGRES_PORT"     yaml:"port"`
	User     string `env:"POSTGRES_USER"     yaml:"user"`
	Password string `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database string `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode  string `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	// Path is the sqlite3 database file, used when Driver is "sqlite3".
	Path string `env:"SQLITE_PATH" yaml:"path"`
}

// RulesConfig points at the rule table and directedness data files.
type RulesConfig struct {
	Path string `env:"RULES_PATH" yaml:"path"`
}

// ScorerConfig configures one scoring capability endpoint.
type ScorerConfig struct {
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind"` // "local" | "external"
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LabelThreshold holds per-directedness trigger thresholds for a label.
type LabelThreshold struct {
	Directed   float64 `yaml:"directed"`
	Undirected float64 `yaml:"undirected"`
}

// SignalsConfig configures scorers and the threshold tables.
type SignalsConfig struct {
	Scorers            []ScorerConfig            `yaml:"scorers"`
	Thresholds         map[string]LabelThreshold `yaml:"thresholds"`
	DefaultThreshold   LabelThreshold            `yaml:"default_threshold"`
	LowConfidenceBound float64                   `yaml:"low_confidence_bound"`
	ValidationFloor    float64                   `yaml:"validation_floor"`
}

// BackendConfig configures one review backend, in priority order.
type BackendConfig struct {
	Name      string `yaml:"name"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Priority  int    `yaml:"priority"`
}

// ReviewConfig configures the model router.
type ReviewConfig struct {
	Backends       []BackendConfig `yaml:"backends"`
	Timeout        time.Duration   `yaml:"timeout"`
	CooldownBuffer time.Duration   `yaml:"cooldown_buffer"`
	DefaultReset   time.Duration   `yaml:"default_reset"`
}

// ActionsConfig configures the verdict/action processor.
type ActionsConfig struct {
	Enabled            bool    `env:"ENABLE_REPORTS" yaml:"enabled"`
	ReasonTemplate     string  `yaml:"reason_template"`
	RuleBucket         string  `yaml:"rule_bucket"`
	MinRemoveConsensus int     `yaml:"min_remove_consensus"`
	RemoveFloor        float64 `yaml:"remove_floor"`
}

// ReconcileConfig configures the outcome reconciler.
type ReconcileConfig struct {
	Interval        time.Duration `yaml:"interval"`
	LookbackDays    int           `yaml:"lookback_days"`
	DecisionLag     time.Duration `yaml:"decision_lag"`
	SummaryInterval time.Duration `yaml:"summary_interval"`
	StatePath       string        `yaml:"state_path"`
	FeedURL         string        `env:"GROUND_TRUTH_URL" yaml:"feed_url"`
}

// NotifyConfig configures webhook notifications.
type NotifyConfig struct {
	Enabled        bool   `env:"ENABLE_WEBHOOK"  yaml:"enabled"`
	WebhookURL     string `env:"WEBHOOK_URL"     yaml:"webhook_url"`
	SummaryWebhook string `env:"SUMMARY_WEBHOOK" yaml:"summary_webhook"`
}

// SourceConfig configures the item feed client.
type SourceConfig struct {
	BaseURL      string        `env:"FEED_URL"       yaml:"base_url"`
	Token        string        `env:"PLATFORM_TOKEN" yaml:"token"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Limit        int           `yaml:"limit"`
	Communities  []string      `env:"COMMUNITIES" yaml:"communities"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level"`
	Output string `yaml:"output"`
}

// Load reads, defaults, and validates the configuration. Invalid
// configuration is fatal at startup: the service must not run with
// partial thresholds or an empty backend chain.
func Load(path string) (*Config, error) {
	cfg, err := loadFile[Config](path)
	if err != nil {
		return nil, err
	}
	setDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	s := &cfg.Service
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
	if s.Concurrency == 0 {
		s.Concurrency = defaultConcurrency
	}
	if s.QueueDepth == 0 {
		s.QueueDepth = defaultQueueDepth
	}
	if s.ScanRate == 0 {
		s.ScanRate = defaultScanRatePerSec
	}
	if s.ScanBurst == 0 {
		s.ScanBurst = defaultScanBurst
	}

	d := &cfg.Database
	if d.Driver == "" {
		d.Driver = defaultDBDriver
	}
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}

	if cfg.Rules.Path == "" {
		cfg.Rules.Path = defaultRulesPath
	}

	sig := &cfg.Signals
	for i := range sig.Scorers {
		if sig.Scorers[i].Timeout == 0 {
			sig.Scorers[i].Timeout = defaultScorerTimeout
		}
	}
	if sig.LowConfidenceBound == 0 {
		sig.LowConfidenceBound = defaultLowConfidenceBound
	}
	if sig.ValidationFloor == 0 {
		sig.ValidationFloor = defaultValidationFloor
	}
	if sig.DefaultThreshold.Directed == 0 {
		sig.DefaultThreshold.Directed = defaultDirectedThreshold
	}
	if sig.DefaultThreshold.Undirected == 0 {
		sig.DefaultThreshold.Undirected = defaultUndirectedThreshold
	}

	r := &cfg.Review
	if r.Timeout == 0 {
		r.Timeout = defaultReviewTimeout
	}
	if r.CooldownBuffer == 0 {
		r.CooldownBuffer = defaultCooldownBuffer
	}
	if r.DefaultReset == 0 {
		r.DefaultReset = defaultResetHint
	}

	a := &cfg.Actions
	if a.ReasonTemplate == "" {
		a.ReasonTemplate = defaultReasonTemplate
	}
	if a.MinRemoveConsensus == 0 {
		a.MinRemoveConsensus = defaultMinRemoveConsensus
	}
	if a.RemoveFloor == 0 {
		a.RemoveFloor = defaultRemoveFloor
	}

	rc := &cfg.Reconcile
	if rc.Interval == 0 {
		rc.Interval = defaultReconcileInterval
	}
	if rc.LookbackDays == 0 {
		rc.LookbackDays = defaultLookbackDays
	}
	if rc.DecisionLag == 0 {
		rc.DecisionLag = defaultDecisionLag
	}
	if rc.SummaryInterval == 0 {
		rc.SummaryInterval = defaultSummaryInterval
	}
	if rc.StatePath == "" {
		rc.StatePath = defaultSummaryStatePath
	}

	src := &cfg.Source
	if src.PollInterval == 0 {
		src.PollInterval = defaultSourceInterval
	}
	if src.Limit == 0 {
		src.Limit = defaultSourceLimit
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
}

// Validate checks thresholds and required sections.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Signals.Scorers) == 0 {
		errs = append(errs, errors.New("signals: at least one scorer is required"))
	}
	localCount := 0
	for _, sc := range c.Signals.Scorers {
		if sc.Name == "" {
			errs = append(errs, errors.New("signals: scorer name is required"))
		}
		switch sc.Kind {
		case "local":
			localCount++
		case "external":
		default:
			errs = append(errs, fmt.Errorf("signals: scorer %q has invalid kind %q", sc.Name, sc.Kind))
		}
	}
	if localCount > 1 {
		errs = append(errs, errors.New("signals: at most one local scorer may be designated"))
	}

	check01 := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, v))
		}
	}
	check01("signals.low_confidence_bound", c.Signals.LowConfidenceBound)
	check01("signals.validation_floor", c.Signals.ValidationFloor)
	check01("actions.remove_floor", c.Actions.RemoveFloor)
	for label, th := range c.Signals.Thresholds {
		check01(fmt.Sprintf("signals.thresholds.%s.directed", label), th.Directed)
		check01(fmt.Sprintf("signals.thresholds.%s.undirected", label), th.Undirected)
		if th.Directed > th.Undirected {
			errs = append(errs, fmt.Errorf("signals.thresholds.%s: directed threshold must not exceed undirected", label))
		}
	}
	if c.Signals.LowConfidenceBound >= c.Signals.ValidationFloor {
		errs = append(errs, errors.New("signals: low_confidence_bound must be below validation_floor"))
	}

	if len(c.Review.Backends) == 0 {
		errs = append(errs, errors.New("review: at least one backend is required"))
	}
	for _, b := range c.Review.Backends {
		if b.Name == "" || b.Model == "" {
			errs = append(errs, errors.New("review: backend name and model are required"))
		}
	}

	if c.Actions.MinRemoveConsensus < 1 {
		errs = append(errs, errors.New("actions: min_remove_consensus must be at least 1"))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
	}

	return errors.Join(errs...)
}
