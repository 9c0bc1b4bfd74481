package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zeex-stream/work/buffer"
	"zeex-stream/work/cache"
	"zeex-stream/work/client"
	"zeex-stream/work/config"
	"zeex-stream/work/database"
	"zeex-stream/work/handlers"
	"zeex-stream/work/logger"
	"zeex-stream/work/proxy"
	"zeex-stream/work/registry"
	"zeex-stream/work/telegram"
	"zeex-stream/work/utils"
)

var (
	Version = "v0.1.0" // default version
)

// our main app worker
func main() {

	// load our config
	cfg := config.LoadConfig()

	// set up logging level before anything chatty starts
	if cfg.Debug {
		logger.SetLogLevel("debug")
	} else {
		logger.SetLogLevel("info")
	}

	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is not set; refusing to start without upstream credentials")
	}

	// Initialize buffer pool
	bufferPool := buffer.NewBufferPool(cfg.ChunkSizeKB * 1024)

	// Initialize HTTP client
	httpClient := client.NewHeaderSettingClient(cfg)

	// Initialize worker pool
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// Open the token registry database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open registry database: %v", err)
	}
	defer db.Close()

	// Initialize mapping cache
	var mappingCache *cache.MappingCache
	if cfg.CacheEnabled {
		mappingCache = cache.NewMappingCache(cfg.CacheDuration)
	}

	// Token registry and upstream resolver
	reg := registry.New(db, mappingCache)
	resolver := telegram.NewResolver(cfg, httpClient)

	// Create proxy instance
	proxyInstance := proxy.New(cfg, reg, resolver, httpClient, bufferPool, workerPool)

	// Start periodic maintenance routine
	go proxyInstance.StartMaintenance()
	defer proxyInstance.StopMaintenance()

	// Setup HTTP routes
	router := mux.NewRouter()

	// Ranged streaming handler; GET and HEAD share header logic
	router.HandleFunc("/stream/{token}", handlers.HandleStream(proxyInstance)).Methods("GET")
	router.HandleFunc("/stream/{token}", handlers.HandleStreamHead(proxyInstance)).Methods("HEAD")

	// Metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// add the JSON API routes
	setupAPIRoutes(router, proxyInstance)

	addr := fmt.Sprintf(":%d", cfg.ListenPort)

	// show info
	logger.Info("Starting ZeeX Stream %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Bot API: %s", cfg.BotAPIBase)
	logger.Info("  - Database: %s", cfg.DatabasePath)
	logger.Info("  - Chunk Size: %s", utils.FormatBytes(cfg.ChunkSizeKB*1024))
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Max Concurrent Streams: %d", cfg.MaxConcurrentStreams)
	logger.Info("  - Upstream Rate Limit: %d req/s", cfg.UpstreamRateLimit)
	logger.Info("  - Cache Enabled: %v", cfg.CacheEnabled)
	logger.Info("  - Cache Duration: %s", cfg.CacheDuration)
	logger.Info("  - Debug Enabled: %v", cfg.Debug)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// fire us up
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}

}
