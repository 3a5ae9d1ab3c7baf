package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	gosyscall "syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrel-os/kestrel/internal/board"
	"github.com/kestrel-os/kestrel/internal/config"
	"github.com/kestrel-os/kestrel/internal/logging"
	"github.com/kestrel-os/kestrel/internal/monitoring"
)

func main() {
	boardFile := flag.String("board", "", "Board definition file (TOML)")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *boardFile != "" {
		cfg.Board.File = *boardFile
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	def := config.DefaultBoard()
	if cfg.Board.File != "" {
		def, err = config.LoadBoard(cfg.Board.File)
		if err != nil {
			log.Fatalf("Failed to load board: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	b, err := board.New(cfg, def, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to assemble board: %v", err)
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	go b.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, gosyscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")
}
