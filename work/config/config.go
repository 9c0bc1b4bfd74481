package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"
)

// Config holds all application configuration values for the stream proxy server.
// It covers the public surface, the upstream Telegram Bot API connection, and
// the streaming/buffering behavior.
type Config struct {
	BaseURL              string        `json:"baseURL"`              // Public base URL used when building stream links
	ListenPort           int           `json:"listenPort"`           // TCP port the HTTP server binds to
	BotToken             string        `json:"botToken"`             // Telegram Bot API token (BOT_TOKEN env overrides)
	BotAPIBase           string        `json:"botAPIBase"`           // Bot API base URL, override for a local bot-api server
	DatabasePath         string        `json:"databasePath"`         // SQLite database file for the token registry
	ChunkSizeKB          int64         `json:"chunkSizeKB"`          // Streaming copy chunk size in KB
	ResolveTimeout       time.Duration `json:"resolveTimeout"`       // Timeout for upstream getFile resolution
	StreamIdleTimeout    time.Duration `json:"streamIdleTimeout"`    // Abort a stream after this long without transferring bytes
	RetryBackoff         time.Duration `json:"retryBackoff"`         // Backoff before the single resolve retry
	CacheEnabled         bool          `json:"cacheEnabled"`         // Whether the token mapping cache is enabled
	CacheDuration        time.Duration `json:"cacheDuration"`        // TTL for cached token mappings
	WorkerThreads        int           `json:"workerThreads"`        // Background worker pool size (link warmups)
	MaxConcurrentStreams int           `json:"maxConcurrentStreams"` // Maximum simultaneous streaming clients
	UpstreamRateLimit    int           `json:"upstreamRateLimit"`    // Bot API requests per second
	UserAgent            string        `json:"userAgent"`            // User-Agent sent on upstream requests
	Debug                bool          `json:"debug"`                // Enable debug logging
	ObfuscateUrls        bool          `json:"obfuscateUrls"`        // Obfuscate upstream URLs (bot token) in logs
}

// ConfigFile represents the JSON file structure for marshaling/unmarshaling
// configuration. Duration fields are strings (e.g. "30s") parsed on load.
type ConfigFile struct {
	BaseURL              string `json:"baseURL"`
	ListenPort           int    `json:"listenPort"`
	BotToken             string `json:"botToken"`
	BotAPIBase           string `json:"botAPIBase"`
	DatabasePath         string `json:"databasePath"`
	ChunkSizeKB          int64  `json:"chunkSizeKB"`
	ResolveTimeout       string `json:"resolveTimeout"`    // Duration as string (e.g., "30s")
	StreamIdleTimeout    string `json:"streamIdleTimeout"` // Duration as string (e.g., "60s")
	RetryBackoff         string `json:"retryBackoff"`      // Duration as string (e.g., "500ms")
	CacheEnabled         bool   `json:"cacheEnabled"`
	CacheDuration        string `json:"cacheDuration"` // Duration as string (e.g., "30m")
	WorkerThreads        int    `json:"workerThreads"`
	MaxConcurrentStreams int    `json:"maxConcurrentStreams"`
	UpstreamRateLimit    int    `json:"upstreamRateLimit"`
	UserAgent            string `json:"userAgent"`
	Debug                bool   `json:"debug"`
	ObfuscateUrls        bool   `json:"obfuscateUrls"`
}

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Attempts to load from `/settings/config.json`.
//   - Falls back to default config if file is missing or invalid.
//   - Applies the BOT_TOKEN environment override.
//   - Runs validation to ensure safe defaults.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := "/settings/config.json"
	config, err := loadFromFile(configPath)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", configPath, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	// Secrets live in the environment, not the settings file
	if token := os.Getenv("BOT_TOKEN"); token != "" {
		config.BotToken = token
	}

	validateAndSetDefaults(config)

	configCache = config

	if config.Debug {
		log.Printf("Configuration loaded:")
		log.Printf("  Base URL: %s", config.BaseURL)
		log.Printf("  Bot API: %s", config.BotAPIBase)
		log.Printf("  Database: %s", config.DatabasePath)
		log.Printf("  Chunk Size: %d KB", config.ChunkSizeKB)
		log.Printf("  Max Concurrent Streams: %d", config.MaxConcurrentStreams)
	}

	return config
}

// loadFromFile reads and parses the configuration from a JSON file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config,
// parsing duration strings into time.Duration.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		BaseURL:              cf.BaseURL,
		ListenPort:           cf.ListenPort,
		BotToken:             cf.BotToken,
		BotAPIBase:           cf.BotAPIBase,
		DatabasePath:         cf.DatabasePath,
		ChunkSizeKB:          cf.ChunkSizeKB,
		CacheEnabled:         cf.CacheEnabled,
		WorkerThreads:        cf.WorkerThreads,
		MaxConcurrentStreams: cf.MaxConcurrentStreams,
		UpstreamRateLimit:    cf.UpstreamRateLimit,
		UserAgent:            cf.UserAgent,
		Debug:                cf.Debug,
		ObfuscateUrls:        cf.ObfuscateUrls,
	}

	// Parse duration fields
	var err error
	if config.ResolveTimeout, err = time.ParseDuration(cf.ResolveTimeout); err != nil {
		return nil, fmt.Errorf("invalid resolveTimeout: %w", err)
	}
	if config.StreamIdleTimeout, err = time.ParseDuration(cf.StreamIdleTimeout); err != nil {
		return nil, fmt.Errorf("invalid streamIdleTimeout: %w", err)
	}
	if config.RetryBackoff, err = time.ParseDuration(cf.RetryBackoff); err != nil {
		return nil, fmt.Errorf("invalid retryBackoff: %w", err)
	}
	if config.CacheDuration, err = time.ParseDuration(cf.CacheDuration); err != nil {
		return nil, fmt.Errorf("invalid cacheDuration: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a baseline configuration
// with sensible defaults when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		BaseURL:              "http://localhost:8080",
		ListenPort:           8080,
		BotAPIBase:           "https://api.telegram.org",
		DatabasePath:         "/data/zeex-stream.db",
		ChunkSizeKB:          256,                    // 256 KB copy chunks
		ResolveTimeout:       30 * time.Second,       // getFile resolution timeout
		StreamIdleTimeout:    60 * time.Second,       // stalled stream watchdog
		RetryBackoff:         500 * time.Millisecond, // single resolve retry backoff
		CacheEnabled:         true,
		CacheDuration:        30 * time.Minute,
		WorkerThreads:        8,
		MaxConcurrentStreams: 100,
		UpstreamRateLimit:    25, // Bot API tolerates ~30 req/s
		UserAgent:            "zeex-stream/1.0",
	}
}

// validateAndSetDefaults ensures all config values are valid,
// filling in defaults for missing/invalid ones.
func validateAndSetDefaults(config *Config) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.ListenPort <= 0 {
		config.ListenPort = 8080
	}
	if config.BotAPIBase == "" {
		config.BotAPIBase = "https://api.telegram.org"
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "/data/zeex-stream.db"
	}
	if config.ChunkSizeKB < 64 || config.ChunkSizeKB > 1024 {
		config.ChunkSizeKB = 256
	}
	if config.ResolveTimeout <= 0 {
		config.ResolveTimeout = 30 * time.Second
	}
	if config.StreamIdleTimeout <= 0 {
		config.StreamIdleTimeout = 60 * time.Second
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if config.CacheDuration <= 0 {
		config.CacheDuration = 30 * time.Minute
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = 8
	}
	if config.MaxConcurrentStreams <= 0 {
		config.MaxConcurrentStreams = 100
	}
	if config.UpstreamRateLimit <= 0 {
		config.UpstreamRateLimit = 25
	}
	if config.UserAgent == "" {
		config.UserAgent = "zeex-stream/1.0"
	}
}

// CreateExampleConfig creates an example config file on disk.
func CreateExampleConfig(path string) error {
	example := ConfigFile{
		BaseURL:              "http://localhost:8080",
		ListenPort:           8080,
		BotToken:             "",
		BotAPIBase:           "https://api.telegram.org",
		DatabasePath:         "/data/zeex-stream.db",
		ChunkSizeKB:          256,
		ResolveTimeout:       "30s",
		StreamIdleTimeout:    "60s",
		RetryBackoff:         "500ms",
		CacheEnabled:         true,
		CacheDuration:        "30m",
		WorkerThreads:        8,
		MaxConcurrentStreams: 100,
		UpstreamRateLimit:    25,
		UserAgent:            "zeex-stream/1.0",
		Debug:                false,
		ObfuscateUrls:        true,
	}

	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ClearConfigCache resets the configCache to nil.
// Forces a reload on the next LoadConfig() call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// ObfuscateURL masks sensitive parts of a URL for logging. Bot API URLs embed
// the bot token in the path, so the path is always masked.
//
// Example:
//
//	Input:  "https://api.telegram.org/file/bot12345:abc/videos/file_9.mp4"
//	Output: "https://api.telegram.org/***"
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	return result
}
