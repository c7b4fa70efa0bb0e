// Package config loads run settings from flags, environment, an optional
// YAML file and a .env file.
//
// Environment variables use the NICHESCOUT_ prefix with dots replaced by
// underscores, e.g. NICHESCOUT_SEARCH_PER_KEYWORD. The API key is also read
// from YOUTUBE_API_KEY.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/FranksOps/nichescout/internal/export"
	"github.com/FranksOps/nichescout/internal/fingerprint"
	"github.com/FranksOps/nichescout/internal/pipeline"
	"github.com/FranksOps/nichescout/internal/rank"
	"github.com/FranksOps/nichescout/internal/report"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NICHESCOUT"

// APIKeyEnv is read when no prefixed API key is set.
const APIKeyEnv = "YOUTUBE_API_KEY"

// DefaultKeywords cover the HFY ("Humanity, F*** Yeah") sci-fi story niche.
var DefaultKeywords = []string{
	"HFY",
	"Humanity F Yeah",
	"HFY Humanity F*** Yeah",
	"hfy sci fi stories",
	"hfy stories",
	"hfy battle",
	"hfy scifi",
	"sci fi hfy",
	"hfy reddit stories",
	"hfy war stories",
	"sci fi hfy stories",
	"best hfy stories",
	"hfy revelation",
	"scifi hfy stories",
	"hfy battel",
	"hfy galactic stories",
	"hfy human",
	"hfy deathworlder",
	"hfy human pet",
	"best hfy story",
	"hfy war",
	"hfy human pets",
}

// Config is the validated run configuration.
type Config struct {
	Keywords     []string       `mapstructure:"keywords"`
	KeywordsFile string         `mapstructure:"keywords_file"`
	Search       SearchConfig   `mapstructure:"search"`
	Provider     ProviderConfig `mapstructure:"provider"`
	Output       OutputConfig   `mapstructure:"output"`
	Export       ExportConfig   `mapstructure:"export"`
	Metrics      MetricsConfig  `mapstructure:"metrics"`
	Tracing      TracingConfig  `mapstructure:"tracing"`
	Log          LogConfig      `mapstructure:"log"`
}

type SearchConfig struct {
	PerKeyword      int    `mapstructure:"per_keyword"`
	ItemsPerAccount int    `mapstructure:"items_per_account"`
	TopK            int    `mapstructure:"top_k"`
	RankBy          string `mapstructure:"rank_by"`
}

type ProviderConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	APIBase       string        `mapstructure:"api_base"`
	WebBase       string        `mapstructure:"web_base"`
	HTMLFallback  bool          `mapstructure:"html_fallback"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	Fingerprint   string        `mapstructure:"fingerprint"`
	ProxiesFile   string        `mapstructure:"proxies_file"`
	UserAgents    []string      `mapstructure:"user_agents"`
	RPS           float64       `mapstructure:"rps"`
	Burst         int           `mapstructure:"burst"`
	Jitter        float64       `mapstructure:"jitter"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
	// File receives the report; empty means stdout.
	File string `mapstructure:"file"`
}

type ExportConfig struct {
	Backend string `mapstructure:"backend"`
	// Target is a file path, or a DSN for postgres.
	Target string `mapstructure:"target"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key so environment overrides are seen by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("keywords", []string{})
	v.SetDefault("keywords_file", "")
	v.SetDefault("search.per_keyword", pipeline.DefaultPerKeyword)
	v.SetDefault("search.items_per_account", pipeline.DefaultItemsPerAccount)
	v.SetDefault("search.top_k", pipeline.DefaultTopK)
	v.SetDefault("search.rank_by", pipeline.DefaultRankBy)
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.api_base", "")
	v.SetDefault("provider.web_base", "")
	v.SetDefault("provider.html_fallback", false)
	v.SetDefault("provider.respect_robots", true)
	v.SetDefault("provider.fingerprint", string(fingerprint.ProfileGo))
	v.SetDefault("provider.proxies_file", "")
	v.SetDefault("provider.user_agents", []string{})
	v.SetDefault("provider.rps", 5.0)
	v.SetDefault("provider.burst", 1)
	v.SetDefault("provider.jitter", 0.2)
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("output.format", string(report.FormatText))
	v.SetDefault("output.file", "")
	v.SetDefault("export.backend", string(export.None))
	v.SetDefault("export.target", "")
	v.SetDefault("metrics.port", 0)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads .env (if present) and configFile (if set) into v, then
// unmarshals, fills keyword fallbacks, clamps limits and validates.
// Flags must already be bound to v.
func Load(v *viper.Viper, configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv(APIKeyEnv)
	}

	if cfg.KeywordsFile != "" {
		fromFile, err := ReadKeywords(cfg.KeywordsFile)
		if err != nil {
			return nil, err
		}
		cfg.Keywords = append(cfg.Keywords, fromFile...)
	}
	cfg.Keywords = cleanKeywords(cfg.Keywords)
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = append([]string(nil), DefaultKeywords...)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadKeywords reads one keyword per line. Blank lines and lines starting
// with '#' are skipped.
func ReadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keywords file: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	return out, nil
}

// cleanKeywords trims keywords and drops blanks and exact duplicates,
// keeping first-seen order.
func cleanKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

func (c *Config) normalize() {
	if c.Search.PerKeyword == 0 {
		c.Search.PerKeyword = pipeline.DefaultPerKeyword
	}
	if c.Search.ItemsPerAccount == 0 {
		c.Search.ItemsPerAccount = pipeline.DefaultItemsPerAccount
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = pipeline.DefaultTopK
	}
	c.Search.PerKeyword = pipeline.Clamp(c.Search.PerKeyword, pipeline.MinPerKeyword, pipeline.MaxPerKeyword)
	c.Search.ItemsPerAccount = pipeline.Clamp(c.Search.ItemsPerAccount, pipeline.MinItemsPerAccount, pipeline.MaxItemsPerAccount)
	c.Search.RankBy = strings.ToLower(strings.TrimSpace(c.Search.RankBy))
	if c.Search.RankBy == "" {
		c.Search.RankBy = pipeline.DefaultRankBy
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	c.Export.Backend = strings.ToLower(strings.TrimSpace(c.Export.Backend))
}

// Validate rejects settings a run cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Keywords) == 0 {
		errs = append(errs, errors.New("at least one keyword is required"))
	}
	if _, err := rank.KeyByName(c.Search.RankBy); err != nil {
		errs = append(errs, err)
	}
	if _, err := report.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	b, err := export.ParseBackend(c.Export.Backend)
	if err != nil {
		errs = append(errs, err)
	} else if b == export.Postgres && c.Export.Target == "" {
		errs = append(errs, errors.New("export.target must hold a DSN for the postgres backend"))
	}
	if _, err := fingerprint.ParseProfile(c.Provider.Fingerprint); err != nil {
		errs = append(errs, err)
	}
	if c.Provider.RPS < 0 {
		errs = append(errs, fmt.Errorf("provider.rps must not be negative, got %v", c.Provider.RPS))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateProvider checks the provider can be reached: an API key or the
// HTML fallback is required. Commands that never search skip it.
func (c *Config) ValidateProvider() error {
	if c.Provider.APIKey == "" && !c.Provider.HTMLFallback {
		return fmt.Errorf("no API key: set %s or enable provider.html_fallback", APIKeyEnv)
	}
	return nil
}

// PipelineOptions maps the search section onto pipeline.Options.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		PerKeyword:      c.Search.PerKeyword,
		ItemsPerAccount: c.Search.ItemsPerAccount,
		TopK:            c.Search.TopK,
		RankBy:          c.Search.RankBy,
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
