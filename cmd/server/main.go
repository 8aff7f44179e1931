package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mdl/backend"
	"mdl/internal/api"
)

func main() {
	// Load config (env vars override file config)
	config, err := backend.LoadConfigWithEnv()
	if err != nil {
		log.Printf("Warning: Could not load config: %v, using defaults", err)
		config = backend.DefaultConfig()
	}

	backend.InitLogger(config.LogLevel)
	slog.Info("mdl server starting")

	// Ensure output directory exists
	outputDir := config.OutputDirectory
	if outputDir == "" {
		outputDir = backend.GetDefaultOutputDirectory()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		slog.Warn("could not create output directory", "dir", outputDir, "err", err)
	}

	if _, found := backend.FFmpegLocation(); !found {
		slog.Warn("ffmpeg not found; merges and conversions will fail")
	}

	queue := backend.NewQueueManager()

	historyPath, err := backend.GetConfigPath()
	if err != nil {
		log.Fatalf("Config path error: %v", err)
	}
	history, err := backend.NewHistory(filepath.Join(filepath.Dir(historyPath), "history.json"))
	if err != nil {
		slog.Warn("history unavailable, starting empty", "err", err)
	}

	var server *api.Server
	controller := backend.NewQueueController(queue, backend.NewEngine(), config, history, backend.ControllerCallbacks{
		OnProgress: func(index int, percent float64, text string) {
			server.Broadcast(map[string]any{"type": "progress", "index": index, "percent": percent, "text": text})
		},
		OnFinished: func(index int, message string) {
			server.Broadcast(map[string]any{"type": "finished", "index": index, "message": message})
		},
		OnError: func(index int, message string) {
			server.Broadcast(map[string]any{"type": "error", "index": index, "message": message})
		},
		OnSummary: func(summary backend.Summary) {
			server.Broadcast(map[string]any{"type": "summary", "summary": summary})
		},
	})

	server = api.NewServer(config, queue, controller, history)

	// Broadcast the full queue whenever it changes
	queue.SetChangedCallback(func() {
		server.Broadcast(map[string]any{"type": "queue", "items": queue.GetAll()})
	})

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		slog.Info("shutting down")
		controller.Cancel(true)
		server.Shutdown()
	}()

	// Get port from env or default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	slog.Info("server listening", "port", port)
	if err := server.Listen(":" + port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
