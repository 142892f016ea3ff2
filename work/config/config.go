package config

import (
	"encoding/json"
	"os"
	"runtime"
	"time"

	"sokol-player/work/logger"
)

// Config holds all runtime configuration for the player server: HTTP binding,
// backing file locations, the upstream player identity, ffmpeg invocation
// settings, and the tuning knobs for the delivery pipeline.
type Config struct {
	ListenAddr          string        // address the HTTP server binds to
	BaseURL             string        // externally visible base URL (used in log banners and links)
	DataDir             string        // directory holding playlist.m3u and epg.xml
	PlayerUserAgent     string        // User-Agent presented to IPTV origins
	ReqOrigin           string        // optional Origin header for upstream requests
	ReqReferrer         string        // optional Referer header for upstream requests
	FFmpegPath          string        // ffmpeg binary path or name resolved via PATH
	FFmpegPreInput      []string      // extra ffmpeg arguments inserted before -i
	FFmpegPreOutput     []string      // extra ffmpeg arguments inserted before the output spec
	StreamHeaderTimeout time.Duration // bound on waiting for upstream response headers
	MaxRedirects        int           // redirect hop bound for proxied upstream requests
	UpstreamRatePerHost int           // upstream connection attempts per second, per host
	WorkerThreads       int           // size of the background worker pool
	ProbeCacheTTL       time.Duration // how long upstream probe verdicts stay cached
	ProbeCacheSize      int           // maximum cached probe verdicts
	FallbackWatchdog    time.Duration // time-to-first-frame window before escalating delivery mode
	LogLevel            string        // DEBUG, INFO, WARN or ERROR
	Debug               bool          // enables verbose per-connection logging
	ObfuscateUrls       bool          // obfuscate source URLs in log output
}

// configFile mirrors Config for JSON decoding, with durations as strings
// (e.g. "30s") so the config file stays human editable.
type configFile struct {
	ListenAddr          string   `json:"listenAddr"`
	BaseURL             string   `json:"baseURL"`
	DataDir             string   `json:"dataDir"`
	PlayerUserAgent     string   `json:"playerUserAgent"`
	ReqOrigin           string   `json:"reqOrigin"`
	ReqReferrer         string   `json:"reqReferrer"`
	FFmpegPath          string   `json:"ffmpegPath"`
	FFmpegPreInput      []string `json:"ffmpegPreInput"`
	FFmpegPreOutput     []string `json:"ffmpegPreOutput"`
	StreamHeaderTimeout string   `json:"streamHeaderTimeout"`
	MaxRedirects        int      `json:"maxRedirects"`
	UpstreamRatePerHost int      `json:"upstreamRatePerHost"`
	WorkerThreads       int      `json:"workerThreads"`
	ProbeCacheTTL       string   `json:"probeCacheTTL"`
	ProbeCacheSize      int      `json:"probeCacheSize"`
	FallbackWatchdog    string   `json:"fallbackWatchdog"`
	LogLevel            string   `json:"logLevel"`
	Debug               bool     `json:"debug"`
	ObfuscateUrls       bool     `json:"obfuscateUrls"`
}

// Default returns a Config populated with safe defaults that work without
// any config file present.
func Default() *Config {
	return &Config{
		ListenAddr:          ":3000",
		BaseURL:             "http://localhost:3000",
		DataDir:             "./upload",
		PlayerUserAgent:     "VLC/3.0.18 LibVLC/3.0.18",
		FFmpegPath:          "ffmpeg",
		StreamHeaderTimeout: 30 * time.Second,
		MaxRedirects:        10,
		UpstreamRatePerHost: 5,
		WorkerThreads:       runtime.NumCPU() * 2,
		ProbeCacheTTL:       time.Minute,
		ProbeCacheSize:      1024,
		FallbackWatchdog:    8 * time.Second,
		LogLevel:            "INFO",
	}
}

// Load reads the JSON config file at path and merges it over the defaults.
// A missing or unreadable file falls back to the defaults rather than failing,
// so a bare deployment starts with zero configuration.
func Load(path string) *Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Info("{config/config - Load} No config file at %s, using defaults", path)
		return cfg
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		logger.Warn("{config/config - Load} Invalid config file %s: %v, using defaults", path, err)
		return cfg
	}

	if cf.ListenAddr != "" {
		cfg.ListenAddr = cf.ListenAddr
	}
	if cf.BaseURL != "" {
		cfg.BaseURL = cf.BaseURL
	}
	if cf.DataDir != "" {
		cfg.DataDir = cf.DataDir
	}
	if cf.PlayerUserAgent != "" {
		cfg.PlayerUserAgent = cf.PlayerUserAgent
	}
	cfg.ReqOrigin = cf.ReqOrigin
	cfg.ReqReferrer = cf.ReqReferrer
	if cf.FFmpegPath != "" {
		cfg.FFmpegPath = cf.FFmpegPath
	}
	cfg.FFmpegPreInput = cf.FFmpegPreInput
	cfg.FFmpegPreOutput = cf.FFmpegPreOutput
	if d, err := time.ParseDuration(cf.StreamHeaderTimeout); err == nil && d > 0 {
		cfg.StreamHeaderTimeout = d
	}
	if cf.MaxRedirects > 0 {
		cfg.MaxRedirects = cf.MaxRedirects
	}
	if cf.UpstreamRatePerHost > 0 {
		cfg.UpstreamRatePerHost = cf.UpstreamRatePerHost
	}
	if cf.WorkerThreads > 0 {
		cfg.WorkerThreads = cf.WorkerThreads
	}
	if d, err := time.ParseDuration(cf.ProbeCacheTTL); err == nil && d > 0 {
		cfg.ProbeCacheTTL = d
	}
	if cf.ProbeCacheSize > 0 {
		cfg.ProbeCacheSize = cf.ProbeCacheSize
	}
	if d, err := time.ParseDuration(cf.FallbackWatchdog); err == nil && d > 0 {
		cfg.FallbackWatchdog = d
	}
	if cf.LogLevel != "" {
		cfg.LogLevel = cf.LogLevel
	}
	cfg.Debug = cf.Debug
	cfg.ObfuscateUrls = cf.ObfuscateUrls

	return cfg
}
