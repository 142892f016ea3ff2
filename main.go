package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sokol-player/work/buffer"
	"sokol-player/work/catalog"
	"sokol-player/work/client"
	"sokol-player/work/config"
	"sokol-player/work/engine"
	"sokol-player/work/handlers"
	"sokol-player/work/logger"
	"sokol-player/work/middleware"
	"sokol-player/work/probe"
	"sokol-player/work/relay"
	"sokol-player/work/session"
	"sokol-player/work/store"
)

var (
	Version = "v0.1.0" // default version
)

const defaultConfigPath = "/settings/config.json"

func main() {

	// load our config and apply the log level
	configPath := os.Getenv("SOKOL_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg := config.Load(configPath)
	logger.SetLogLevel(cfg.LogLevel)
	if cfg.Debug {
		logger.SetLogLevel("DEBUG")
	}

	// shared copy-buffer pool for the delivery paths
	bufferPool := buffer.NewPool(32 * 1024)

	// upstream HTTP client presenting the player identity
	httpClient := client.New(cfg)

	// bounded pool for background tasks (subprocess stderr drains etc.)
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// backing file store (playlist + EPG)
	fileStore, err := store.New(cfg.DataDir, httpClient)
	if err != nil {
		log.Fatalf("Failed to prepare data dir: %v", err)
	}

	// catalog service over the backing playlist
	catalogService := catalog.NewService(fileStore.PlaylistPath())

	// active delivery session registry
	sessions := session.NewRegistry()

	// delivery pipeline: proxy relay, transcode engine, source prober
	streamRelay := relay.New(cfg, httpClient, sessions, bufferPool)
	transcodeEngine := engine.New(cfg, sessions, workerPool, bufferPool)
	prober, err := probe.New(cfg, httpClient)
	if err != nil {
		log.Fatalf("Failed to create prober: %v", err)
	}

	// Setup HTTP routes
	router := mux.NewRouter()

	// catalog API (gzip-compressed JSON)
	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Gzip)
	api.HandleFunc("/categories", handlers.HandleCategories(catalogService)).Methods("GET")
	api.HandleFunc("/items/{type}/{group}", handlers.HandleItems(catalogService)).Methods("GET")
	api.HandleFunc("/shows/{group}", handlers.HandleShows(catalogService)).Methods("GET")
	api.HandleFunc("/probe", handlers.HandleProbe(prober)).Methods("GET")
	api.HandleFunc("/sessions", handlers.HandleSessions(sessions)).Methods("GET")
	api.HandleFunc("/epg", handlers.HandleEPG(fileStore)).Methods("GET")

	// delivery pipeline (never compressed, never buffered)
	router.HandleFunc("/stream", handlers.HandleStream(streamRelay)).Methods("GET")
	router.HandleFunc("/transcode", handlers.HandleEngine(transcodeEngine, engine.ModeTranscode)).Methods("GET")
	router.HandleFunc("/passthrough", handlers.HandleEngine(transcodeEngine, engine.ModePassthrough)).Methods("GET")
	router.HandleFunc("/webm", handlers.HandleEngine(transcodeEngine, engine.ModeWebM)).Methods("GET")

	// backing file management
	router.HandleFunc("/upload", handlers.HandleUpload(fileStore)).Methods("POST")
	router.HandleFunc("/upload-m3u", handlers.HandleUploadText(fileStore)).Methods("POST")
	router.HandleFunc("/upload-epg", handlers.HandleEPGUpload(fileStore)).Methods("POST")
	router.HandleFunc("/upload/playlist.m3u", handlers.HandlePlaylistDownload(fileStore)).Methods("GET")

	// Metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// show info
	logger.Info("Starting Sokol Player %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Listen Address: %s", cfg.ListenAddr)
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Data Dir: %s", cfg.DataDir)
	logger.Info("  - Player Identity: %s", cfg.PlayerUserAgent)
	logger.Info("  - FFmpeg Path: %s", cfg.FFmpegPath)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Stream Header Timeout: %s", cfg.StreamHeaderTimeout)
	logger.Info("  - Probe Cache TTL: %s", cfg.ProbeCacheTTL)
	logger.Info("  - Debug Enabled: %v", cfg.Debug)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// fire us up
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
