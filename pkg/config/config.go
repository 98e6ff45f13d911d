package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the config reads
const EnvPrefix = "WATCHGRAPH_"

// Config holds all configuration options for a watchgraph run
type Config struct {
	// Remote API settings
	API APIConfig `yaml:"api" json:"api"`

	// Authentication context forwarded to the API
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Usernames to query
	Users UsersConfig `yaml:"users" json:"users"`

	// Worker pool and pagination settings
	Collector CollectorConfig `yaml:"collector" json:"collector"`

	// Request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Transport retry policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Output files
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds settings for the watchlist API
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	BBCode    bool          `yaml:"bbcode" json:"bbcode"`
}

// CookieConfig is a single named credential value
type CookieConfig struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// AuthConfig selects the credential profile and holds inline cookies
type AuthConfig struct {
	Profile string         `yaml:"profile" json:"profile"`
	Cookies []CookieConfig `yaml:"cookies" json:"cookies"`
}

// UsersConfig lists the usernames inline or points at a file with one per line
type UsersConfig struct {
	Names []string `yaml:"names" json:"names"`
	File  string   `yaml:"file" json:"file"`
}

// CollectorConfig holds worker pool and pagination settings
type CollectorConfig struct {
	// Workers is the pool size; 0 picks min(32, NumCPU+4)
	Workers int `yaml:"workers" json:"workers"`
	// MaxPages caps pages per user; 0 means unlimited
	MaxPages  int `yaml:"max_pages" json:"max_pages"`
	StartPage int `yaml:"start_page" json:"start_page"`
}

// RateLimitConfig holds request pacing configuration
type RateLimitConfig struct {
	// RequestsPerMinute of 0 disables pacing
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds the transport error retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
	Jitter      float64       `yaml:"jitter" json:"jitter"`
}

// OutputConfig holds output file locations
type OutputConfig struct {
	Directory     string `yaml:"directory" json:"directory"`
	ResultsFile   string `yaml:"results_file" json:"results_file"`
	WatchedByFile string `yaml:"watched_by_file" json:"watched_by_file"`
	EdgesFile     string `yaml:"edges_file" json:"edges_file"`
	LabelsFile    string `yaml:"labels_file" json:"labels_file"`
	// AppendEdges keeps rows from earlier runs in the edges file
	AppendEdges bool `yaml:"append_edges" json:"append_edges"`
	// Journal is an optional SQLite file recording each completed user
	Journal string `yaml:"journal" json:"journal"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "https://furaffinity-api.herokuapp.com",
			Timeout:   30 * time.Second,
			UserAgent: "watchgraph/1.0",
			BBCode:    false,
		},
		Auth: AuthConfig{
			Profile: "default",
		},
		Collector: CollectorConfig{
			Workers:   0,
			MaxPages:  0,
			StartPage: 1,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 0,
			BurstSize:         1,
		},
		Retry: RetryConfig{
			MaxAttempts: 8,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.1,
		},
		Output: OutputConfig{
			Directory:     ".",
			ResultsFile:   "watchlist_to_results.json",
			WatchedByFile: "watchlist_by_results.json",
			EdgesFile:     "edges.csv",
			LabelsFile:    "labels.csv",
			AppendEdges:   true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultWorkers mirrors the usual thread pool default of min(32, cpus+4)
func DefaultWorkers() int {
	n := runtime.NumCPU() + 4
	if n > 32 {
		n = 32
	}
	return n
}

// WorkerCount returns the configured pool size or the default
func (c *CollectorConfig) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return DefaultWorkers()
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "USER_AGENT"); v != "" {
		c.API.UserAgent = v
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sTIMEOUT: %w", EnvPrefix, err)
		}
		c.API.Timeout = d
	}
	if v := os.Getenv(EnvPrefix + "PROFILE"); v != "" {
		c.Auth.Profile = v
	}

	if v := os.Getenv(EnvPrefix + "USERS"); v != "" {
		c.Users.Names = SplitList(v)
	}
	if v := os.Getenv(EnvPrefix + "USERS_FILE"); v != "" {
		c.Users.File = v
	}

	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sWORKERS: %w", EnvPrefix, err)
		}
		c.Collector.Workers = n
	}
	if v := os.Getenv(EnvPrefix + "MAX_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_PAGES: %w", EnvPrefix, err)
		}
		c.Collector.MaxPages = n
	}
	if v := os.Getenv(EnvPrefix + "REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREQUESTS_PER_MINUTE: %w", EnvPrefix, err)
		}
		c.RateLimit.RequestsPerMinute = n
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_RETRIES: %w", EnvPrefix, err)
		}
		c.Retry.MaxAttempts = n
	}

	if v := os.Getenv(EnvPrefix + "OUTPUT_DIR"); v != "" {
		c.Output.Directory = v
	}
	if v := os.Getenv(EnvPrefix + "JOURNAL"); v != "" {
		c.Output.Journal = v
	}
	if v := os.Getenv(EnvPrefix + "APPEND_EDGES"); v != "" {
		c.Output.AppendEdges = strings.ToLower(v) == "true"
	}

	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".watchgraph.yaml",
		".watchgraph.yml",
		filepath.Join(home, ".config", "watchgraph", "config.yaml"),
		filepath.Join(home, ".config", "watchgraph", "config.yml"),
		filepath.Join(home, ".watchgraph.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api base url is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api timeout must be positive"))
	}

	for i, cookie := range c.Auth.Cookies {
		if strings.TrimSpace(cookie.Name) == "" {
			errs = append(errs, fmt.Errorf("cookie %d has no name", i))
		}
	}

	if c.Collector.Workers < 0 {
		errs = append(errs, errors.New("workers cannot be negative"))
	}
	if c.Collector.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}
	if c.Collector.StartPage < 1 {
		errs = append(errs, errors.New("start page must be at least 1"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("retry jitter must be between 0 and 1"))
	}

	if c.Output.ResultsFile == "" || c.Output.WatchedByFile == "" {
		errs = append(errs, errors.New("results file names are required"))
	}
	if c.Output.EdgesFile == "" || c.Output.LabelsFile == "" {
		errs = append(errs, errors.New("report file names are required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if users, ok := flags["users"].([]string); ok && len(users) > 0 {
		c.Users.Names = users
	}
	if file, ok := flags["users-file"].(string); ok && file != "" {
		c.Users.File = file
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Collector.Workers = workers
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Collector.MaxPages = maxPages
	}
	if rpm, ok := flags["requests-per-minute"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if dir, ok := flags["output"].(string); ok && dir != "" {
		c.Output.Directory = dir
	}
	if journal, ok := flags["journal"].(string); ok && journal != "" {
		c.Output.Journal = journal
	}
	if fresh, ok := flags["fresh-edges"].(bool); ok && fresh {
		c.Output.AppendEdges = false
	}
	if profile, ok := flags["profile"].(string); ok && profile != "" {
		c.Auth.Profile = profile
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Path joins name onto the output directory
func (o *OutputConfig) Path(name string) string {
	if filepath.IsAbs(name) || o.Directory == "" {
		return name
	}
	return filepath.Join(o.Directory, name)
}

// ResolveUsernames returns the inline names followed by the names from the
// users file, with duplicates dropped in first-seen order
func (c *Config) ResolveUsernames() ([]string, error) {
	names := append([]string(nil), c.Users.Names...)

	if c.Users.File != "" {
		f, err := os.Open(c.Users.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open users file: %w", err)
		}
		defer f.Close()

		fromFile, err := ReadUsernames(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read users file: %w", err)
		}
		names = append(names, fromFile...)
	}

	return UniqueUsernames(names), nil
}

// ReadUsernames reads one username per line, skipping blanks and # comments
func ReadUsernames(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// UniqueUsernames trims names and drops empties and repeats, keeping order
func UniqueUsernames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}
	return unique
}

// SplitList splits a comma separated list
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".watchgraph.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
