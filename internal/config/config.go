// Package config loads the engine configuration from viper: config.yaml in
// the working directory, QIDIANMETA_* environment variables and CLI overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lepinkainen/qidianmeta/internal/book"
	"github.com/lepinkainen/qidianmeta/internal/match"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g. QIDIANMETA_MATCH_MIN_SCORE.
const EnvPrefix = "QIDIANMETA"

// Config is the full engine configuration.
type Config struct {
	Match    MatchConfig    `mapstructure:"match"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Assemble AssembleConfig `mapstructure:"assemble"`
}

// MatchConfig tunes candidate scoring and acceptance.
type MatchConfig struct {
	MinScore         float64 `mapstructure:"min_score"`
	MaxResults       int     `mapstructure:"max_results"`
	TitleWeight      float64 `mapstructure:"title_weight"`
	AuthorWeight     float64 `mapstructure:"author_weight"`
	AmbiguityEpsilon float64 `mapstructure:"ambiguity_epsilon"`
	Script           string  `mapstructure:"script"`
}

// CatalogConfig controls how the catalog is reached.
type CatalogConfig struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`
	BaseURL           string        `mapstructure:"base_url"`
	CoverBaseURL      string        `mapstructure:"cover_base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Browser           bool          `mapstructure:"browser"`
	Headless          bool          `mapstructure:"headless"`
}

// CacheConfig locates the cover cache.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// AssembleConfig holds the host record precedence rules.
type AssembleConfig struct {
	OverwriteTitleAuthor bool   `mapstructure:"overwrite_title_author"`
	IdentifierScheme     string `mapstructure:"identifier_scheme"`
	RecordURL            bool   `mapstructure:"record_url"`
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("match.min_score", 0.8)
	v.SetDefault("match.max_results", 5)
	v.SetDefault("match.title_weight", 0.7)
	v.SetDefault("match.author_weight", 0.3)
	v.SetDefault("match.ambiguity_epsilon", 0.02)
	v.SetDefault("match.script", match.ScriptCJK)

	v.SetDefault("catalog.request_timeout", "30s")
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.rate_limit_interval", "1s")
	v.SetDefault("catalog.base_url", "https://www.qidian.com")
	v.SetDefault("catalog.cover_base_url", "https://bookcover.yuewen.com/qdbimg/349573")
	v.SetDefault("catalog.user_agent", "")
	v.SetDefault("catalog.browser", false)
	v.SetDefault("catalog.headless", true)

	v.SetDefault("cache.dir", "./cache")

	v.SetDefault("assemble.overwrite_title_author", true)
	v.SetDefault("assemble.identifier_scheme", "qidian")
	v.SetDefault("assemble.record_url", true)
}

// Init prepares v: defaults, environment binding and the optional config file.
// An explicit configFile must exist; the default ./config.yaml may be absent.
func Init(v *viper.Viper, configFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	m := c.Match

	if m.TitleWeight < 0 || m.TitleWeight > 1 || m.AuthorWeight < 0 || m.AuthorWeight > 1 {
		errs = append(errs, fmt.Errorf("match weights must be within [0,1], got title=%v author=%v", m.TitleWeight, m.AuthorWeight))
	} else if math.Abs(m.TitleWeight+m.AuthorWeight-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("match.title_weight + match.author_weight must be 1, got %v", m.TitleWeight+m.AuthorWeight))
	}
	if m.MinScore < 0 || m.MinScore > 1 {
		errs = append(errs, fmt.Errorf("match.min_score must be within [0,1], got %v", m.MinScore))
	}
	if m.MaxResults < 2 {
		errs = append(errs, fmt.Errorf("match.max_results must be at least 2, got %d", m.MaxResults))
	}
	if m.AmbiguityEpsilon < 0 {
		errs = append(errs, fmt.Errorf("match.ambiguity_epsilon must not be negative, got %v", m.AmbiguityEpsilon))
	}
	if _, err := match.ForScript(m.Script); err != nil {
		errs = append(errs, fmt.Errorf("match.script: %w", err))
	}

	if c.Catalog.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("catalog.request_timeout must be positive, got %s", c.Catalog.RequestTimeout))
	}
	if c.Catalog.RateLimitInterval <= 0 {
		errs = append(errs, fmt.Errorf("catalog.rate_limit_interval must be positive, got %s", c.Catalog.RateLimitInterval))
	}
	if c.Catalog.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("catalog.max_retries must not be negative, got %d", c.Catalog.MaxRetries))
	}

	if strings.TrimSpace(c.Cache.Dir) == "" {
		errs = append(errs, errors.New("cache.dir must be set"))
	}

	return errors.Join(errs...)
}

// ScorerConfig builds the match.Config for these settings.
func (c Config) ScorerConfig() (match.Config, error) {
	normalizer, err := match.ForScript(c.Match.Script)
	if err != nil {
		return match.Config{}, err
	}

	cfg := match.DefaultConfig()
	cfg.Normalizer = normalizer
	cfg.TitleWeight = c.Match.TitleWeight
	cfg.AuthorWeight = c.Match.AuthorWeight
	cfg.MinScore = c.Match.MinScore
	cfg.Epsilon = c.Match.AmbiguityEpsilon
	cfg.MaxResults = c.Match.MaxResults
	return cfg, nil
}

// Precedence returns the assembler rules.
func (c Config) Precedence() book.Precedence {
	return book.Precedence{
		OverwriteTitleAuthor: c.Assemble.OverwriteTitleAuthor,
		IdentifierScheme:     c.Assemble.IdentifierScheme,
		RecordURL:            c.Assemble.RecordURL,
	}
}
