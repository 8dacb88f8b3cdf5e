package mirror

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

// Provider supplies the operator settings read on every call.
type Provider interface {
	Enabled() bool
	CDNBaseURL() string
	CustomURLs() []string
	// ExcludedPaths is reserved; nothing filters on it yet.
	ExcludedPaths() []string
	Debug() bool
}

// Config holds all cdnmirror configuration.
type Config struct {
	Enable        bool            `yaml:"enabled"`
	Verbose       bool            `yaml:"debug"`
	DBPath        string          `yaml:"db_path"`
	TraceSQL      bool            `yaml:"trace_sql"`
	CDN           CDNConfig       `yaml:"cdn"`
	CustomURLText string          `yaml:"custom_urls"`
	Excluded      []string        `yaml:"excluded_paths"`
	CriticalFiles []string        `yaml:"critical_files"`
	Site          SiteConfig      `yaml:"site"`
	Roots         assetpath.Roots `yaml:"roots"`
	Crawl         CrawlConfig     `yaml:"crawl"`
	Records       RecordsConfig   `yaml:"records"`
}

// CDNConfig locates the mirror. An explicit BaseURL wins over GitHub.
type CDNConfig struct {
	BaseURL string       `yaml:"base_url"`
	GitHub  GitHubConfig `yaml:"github"`
}

// GitHubConfig names the repository served through jsDelivr.
type GitHubConfig struct {
	Username   string `yaml:"username"`
	Repository string `yaml:"repository"`
	Branch     string `yaml:"branch"`
}

// SiteConfig holds the storefront base URLs.
type SiteConfig struct {
	BaseURL       string `yaml:"base_url"`
	SecureBaseURL string `yaml:"secure_base_url"`
}

// CrawlConfig controls page discovery.
type CrawlConfig struct {
	MaxPages           int           `yaml:"max_pages"`
	IncludeRecords     bool          `yaml:"include_records"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRedirects       int           `yaml:"max_redirects"`
	MaxBytes           int64         `yaml:"max_bytes"`
	UserAgent          string        `yaml:"user_agent"`
	VerifyTLS          bool          `yaml:"verify_tls"` // off: storefront certificates are not checked
	RateLimit          float64       `yaml:"rate_limit"`
	RateBurst          int           `yaml:"rate_burst"`
	RespectRobots      bool          `yaml:"respect_robots"`
	Priority           []string      `yaml:"priority"`
	Render             bool          `yaml:"render"`
	RemoteBrowser      string        `yaml:"remote_browser"`
	BlockPrivate       bool          `yaml:"block_private"`
}

// RecordsConfig sets catalog page sizes.
type RecordsConfig struct {
	ProductBatch  int `yaml:"product_batch"`
	CategoryBatch int `yaml:"category_batch"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "cdnmirror.db"
	}
	if c.Site.SecureBaseURL == "" {
		c.Site.SecureBaseURL = c.Site.BaseURL
	}
	if c.Crawl.MaxPages <= 0 {
		c.Crawl.MaxPages = 5
	}
	if c.Crawl.Timeout <= 0 {
		c.Crawl.Timeout = 30 * time.Second
	}
	if c.Crawl.MaxRedirects <= 0 {
		c.Crawl.MaxRedirects = 5
	}
	if c.Crawl.MaxBytes <= 0 {
		c.Crawl.MaxBytes = 10 << 20
	}
	if c.Crawl.RateBurst <= 0 {
		c.Crawl.RateBurst = 1
	}
	if c.Records.ProductBatch <= 0 {
		c.Records.ProductBatch = 100
	}
	if c.Records.CategoryBatch <= 0 {
		c.Records.CategoryBatch = 50
	}
}

// LoadConfigFile reads a YAML config file and fills defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mirror: read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mirror: parse config: %w", err)
	}
	cfg.defaults()
	return cfg, nil
}

// Enabled reports whether rewriting and discovery are switched on.
func (c *Config) Enabled() bool { return c.Enable }

// CDNBaseURL returns the explicit base, or the jsDelivr base built from
// the GitHub settings, or "" when neither is usable.
func (c *Config) CDNBaseURL() string {
	if b := strings.TrimSpace(c.CDN.BaseURL); b != "" {
		return b
	}
	gh := c.CDN.GitHub
	return assetpath.BuildCDNBaseURL(gh.Username, gh.Repository, gh.Branch)
}

// CustomURLs parses the operator URL list.
func (c *Config) CustomURLs() []string { return assetpath.ParseCustomURLs(c.CustomURLText) }

func (c *Config) ExcludedPaths() []string { return c.Excluded }

func (c *Config) Debug() bool { return c.Verbose }
