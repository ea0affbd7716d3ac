// Package config holds the scanforge configuration: built-in defaults,
// embedded presets, and YAML files layered on top. CLI flags override
// the result last.
//
// Usage:
//
//	cfg, err := config.Preset("ci")
//	cfg, err = cfg.LoadFile("scanforge.yaml")
//	err = cfg.Validate()
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/dedup"
	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/duration"
	"github.com/scanforge/scanforge/pkg/httpclient"
	"github.com/scanforge/scanforge/pkg/llm"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/tracing"
	"github.com/scanforge/scanforge/presets"
)

// Config is the full run configuration.
type Config struct {
	Scan     ScanConfig      `yaml:"scan"`
	Dedup    dedup.Config    `yaml:"dedup"`
	Enrich   EnrichConfig    `yaml:"enrich"`
	Priority priority.Config `yaml:"priority"`
	PoC      PoCConfig       `yaml:"poc"`
	LLM      llm.Config      `yaml:"llm"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Tracing  TracingConfig   `yaml:"tracing"`
	HTTP     HTTPConfig      `yaml:"http"`
}

// ScanConfig selects and bounds the scanners.
type ScanConfig struct {
	// Scanners limits the run to these adapters. Empty runs all of them.
	Scanners []string `yaml:"scanners"`

	MaxConcurrency int      `yaml:"max_concurrency"`
	AdapterTimeout Duration `yaml:"adapter_timeout"`
	RunDeadline    Duration `yaml:"run_deadline"`

	// FailOn is the lowest tier that makes the CLI exit non-zero; "none"
	// never fails.
	FailOn string `yaml:"fail_on"`

	// Adapters holds per-scanner settings keyed by adapter name.
	Adapters map[string]adapter.Config `yaml:"adapters"`
}

// EnrichConfig tunes the enrichment pass.
type EnrichConfig struct {
	Concurrency int `yaml:"concurrency"`

	// Offline serves KEV and EPSS from the cache only.
	Offline bool `yaml:"offline"`

	// CacheDir persists feed data between runs. Empty uses the user cache
	// directory; "-" keeps it in memory.
	CacheDir string `yaml:"cache_dir"`

	FeedTTL    Duration `yaml:"feed_ttl"`
	StaleGrace Duration `yaml:"stale_grace"`

	KEV           KEVConfig           `yaml:"kev"`
	EPSS          EPSSConfig          `yaml:"epss"`
	Reachability  ReachabilityConfig  `yaml:"reachability"`
	FalsePositive FalsePositiveConfig `yaml:"false_positive"`
}

type KEVConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type EPSSConfig struct {
	Enabled           bool    `yaml:"enabled"`
	URL               string  `yaml:"url"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type ReachabilityConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
}

type FalsePositiveConfig struct {
	Enabled bool `yaml:"enabled"`

	// RulesFile extends the built-in rules.
	RulesFile string `yaml:"rules_file"`
}

// PoCConfig holds the template defaults and safety table extension.
type PoCConfig struct {
	TargetURL       string `yaml:"target_url"`
	ParamName       string `yaml:"param_name"`
	Method          string `yaml:"method"`
	SafetyRulesFile string `yaml:"safety_rules_file"`
}

// MetricsConfig enables the Prometheus outputs. Both are off when empty.
type MetricsConfig struct {
	// Listen serves /metrics on host:port for the life of the process.
	Listen string `yaml:"listen"`

	// Textfile writes the registry in text format when the run ends.
	Textfile string `yaml:"textfile"`
}

// TracingConfig enables OTLP span export.
type TracingConfig struct {
	Enabled         bool `yaml:"enabled"`
	tracing.Options `yaml:",inline"`
}

// HTTPConfig applies to every outbound HTTP client.
type HTTPConfig struct {
	Timeout            Duration          `yaml:"timeout"`
	Proxy              string            `yaml:"proxy"`
	UserAgent          string            `yaml:"user_agent"`
	Headers            map[string]string `yaml:"headers"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
}

// Client converts h for httpclient.New.
func (h HTTPConfig) Client() httpclient.Config {
	return httpclient.Config{
		Timeout:            h.Timeout.Std(),
		Proxy:              h.Proxy,
		UserAgent:          h.UserAgent,
		Headers:            h.Headers,
		InsecureSkipVerify: h.InsecureSkipVerify,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scan: ScanConfig{
			MaxConcurrency: defaults.ConcurrencyAdapters,
			AdapterTimeout: Duration(duration.AdapterTimeout),
			RunDeadline:    Duration(duration.RunDeadline),
			FailOn:         defaults.PriorityFailOn,
		},
		Dedup: dedup.DefaultConfig(),
		Enrich: EnrichConfig{
			Concurrency: defaults.ConcurrencyEnrich,
			FeedTTL:     Duration(duration.FeedTTL),
			StaleGrace:  Duration(duration.FeedStaleGrace),
			KEV:         KEVConfig{Enabled: true, URL: defaults.KEVFeedURL},
			EPSS: EPSSConfig{
				Enabled:           true,
				URL:               defaults.EPSSAPIURL,
				BatchSize:         defaults.EPSSBatchSize,
				RequestsPerSecond: defaults.EPSSRequestsPerSecond,
			},
			Reachability:  ReachabilityConfig{Enabled: true, Concurrency: defaults.ConcurrencyParse},
			FalsePositive: FalsePositiveConfig{Enabled: true},
		},
		Priority: priority.DefaultConfig(),
		PoC: PoCConfig{
			TargetURL: defaults.PoCTargetURL,
			ParamName: defaults.PoCParamName,
			Method:    defaults.PoCMethod,
		},
		LLM: llm.DefaultConfig(),
		Tracing: TracingConfig{
			Options: tracing.Options{Endpoint: defaults.OTLPEndpoint, ServiceName: defaults.ToolName},
		},
		HTTP: HTTPConfig{
			Timeout:   Duration(duration.FeedRequest),
			UserAgent: defaults.UserAgent,
		},
	}
}

// Presets lists the bundled preset names.
func Presets() []string {
	names, _ := fs.Glob(presets.FS, "*.yaml")
	for i, n := range names {
		names[i] = strings.TrimSuffix(n, ".yaml")
	}
	slices.Sort(names)
	return names
}

// Preset returns the defaults overlaid with the named preset. An empty
// name is the default preset.
func Preset(name string) (Config, error) {
	if name == "" {
		name = defaults.Preset
	}
	data, err := presets.FS.ReadFile(name + ".yaml")
	if err != nil {
		return Config{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownPreset, name, strings.Join(Presets(), ", "))
	}
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data), "preset "+name); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load returns the defaults overlaid with the file at path.
func Load(path string) (Config, error) {
	return Default().LoadFile(path)
}

// LoadFile returns a copy of c overlaid with the file at path. Keys the
// file does not mention keep their current values; unknown keys are an
// error.
func (c Config) LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	out := c.clone()
	if err := out.decode(f, path); err != nil {
		return Config{}, err
	}
	return out, nil
}

func (c *Config) decode(r io.Reader, source string) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, source, err)
	}
	return nil
}

// clone copies the maps and slices a decode could write into.
func (c Config) clone() Config {
	out := c
	out.Scan.Scanners = slices.Clone(c.Scan.Scanners)
	if c.Scan.Adapters != nil {
		out.Scan.Adapters = make(map[string]adapter.Config, len(c.Scan.Adapters))
		for k, v := range c.Scan.Adapters {
			out.Scan.Adapters[k] = v
		}
	}
	out.Dedup.ScannerPriority = slices.Clone(c.Dedup.ScannerPriority)
	return out
}

// CacheDir resolves the feed cache directory; "" means memory only.
func (c Config) CacheDir() string {
	switch c.Enrich.CacheDir {
	case "-":
		return ""
	case "":
		base, err := os.UserCacheDir()
		if err != nil {
			return ""
		}
		return filepath.Join(base, defaults.CacheDirName)
	}
	return c.Enrich.CacheDir
}

// FailOnTier returns the policy tier, or ok false for "none".
func (c Config) FailOnTier() (priority.Tier, bool) {
	if c.Scan.FailOn == "" || strings.EqualFold(c.Scan.FailOn, "none") {
		return "", false
	}
	t, err := priority.ParseTier(c.Scan.FailOn)
	if err != nil {
		return "", false
	}
	return t, true
}

var providers = []llm.Provider{llm.ProviderNone, llm.ProviderOpenAI, llm.ProviderOllama, llm.ProviderNVIDIA}

var pocMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

// Validate reports every problem at once. Each error wraps
// ErrInvalidConfig or ErrMissingRequired.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}
	missing := func(field, because string) {
		errs = append(errs, fmt.Errorf("%w: %s (%s)", ErrMissingRequired, field, because))
	}

	s := c.Scan
	if s.MaxConcurrency < 1 {
		invalid("scan.max_concurrency must be >= 1, got %d", s.MaxConcurrency)
	}
	if s.AdapterTimeout <= 0 {
		invalid("scan.adapter_timeout must be positive")
	}
	if s.RunDeadline <= 0 {
		invalid("scan.run_deadline must be positive")
	}
	if s.FailOn != "" && !strings.EqualFold(s.FailOn, "none") {
		if _, err := priority.ParseTier(s.FailOn); err != nil {
			invalid("scan.fail_on: %w", err)
		}
	}

	if err := c.Dedup.Validate(); err != nil {
		invalid("dedup: %w", err)
	}
	if err := c.Priority.Validate(); err != nil {
		invalid("%w", err)
	}

	e := c.Enrich
	if e.Concurrency < 1 {
		invalid("enrich.concurrency must be >= 1, got %d", e.Concurrency)
	}
	if e.FeedTTL <= 0 {
		invalid("enrich.feed_ttl must be positive")
	}
	if e.KEV.Enabled && e.KEV.URL == "" {
		missing("enrich.kev.url", "kev is enabled")
	}
	if e.EPSS.Enabled {
		if e.EPSS.URL == "" {
			missing("enrich.epss.url", "epss is enabled")
		}
		if e.EPSS.BatchSize < 1 || e.EPSS.BatchSize > defaults.EPSSBatchSize {
			invalid("enrich.epss.batch_size must be within 1..%d, got %d", defaults.EPSSBatchSize, e.EPSS.BatchSize)
		}
		if e.EPSS.RequestsPerSecond <= 0 {
			invalid("enrich.epss.requests_per_second must be positive")
		}
	}
	if e.Reachability.Enabled && e.Reachability.Concurrency < 1 {
		invalid("enrich.reachability.concurrency must be >= 1, got %d", e.Reachability.Concurrency)
	}

	if u, err := url.Parse(c.PoC.TargetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid("poc.target_url %q is not an http(s) URL", c.PoC.TargetURL)
	}
	if c.PoC.ParamName == "" {
		missing("poc.param_name", "templates substitute it")
	}
	if !slices.Contains(pocMethods, strings.ToUpper(c.PoC.Method)) {
		invalid("poc.method %q (want one of %s)", c.PoC.Method, strings.Join(pocMethods, ", "))
	}

	p := llm.Provider(strings.ToLower(string(c.LLM.Provider)))
	switch {
	case p == "":
	case !slices.Contains(providers, p):
		invalid("llm.provider %q (want none, openai, ollama or nvidia)", c.LLM.Provider)
	case p != llm.ProviderNone && c.LLM.Model == "":
		missing("llm.model", "llm.provider is "+string(p))
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			invalid("metrics.listen %q: %w", c.Metrics.Listen, err)
		}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		missing("tracing.endpoint", "tracing is enabled")
	}

	if c.HTTP.Timeout <= 0 {
		invalid("http.timeout must be positive")
	}
	if c.HTTP.Proxy != "" {
		u, err := url.Parse(c.HTTP.Proxy)
		if err != nil || u.Host == "" {
			invalid("http.proxy %q is not a URL", c.HTTP.Proxy)
		}
	}
	return errors.Join(errs...)
}
