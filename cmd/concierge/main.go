package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campbellsechrest/im-concierge-starter/pkg/apiserver"
	"github.com/campbellsechrest/im-concierge-starter/pkg/audit"
	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/embedding"
	"github.com/campbellsechrest/im-concierge-starter/pkg/generation"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/router"
	"github.com/campbellsechrest/im-concierge-starter/pkg/services"
)

func main() {
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to the configuration file")
		port        = flag.Int("port", 8080, "Port to listen on for the concierge API")
		metricsPort = flag.Int("metrics-port", 9190, "Port for Prometheus metrics")
	)
	flag.Parse()

	if _, err := logging.InitFromEnv(); err != nil {
		// Fallback to stderr since logger initialization failed.
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logging.Fatalf("Config file not found: %s", *configPath)
	}

	// Configuration failures are fatal: the router never serves requests
	// with partial rules, exemplars, intents or corpus.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}

	provider := embedding.NewOpenAIProvider(cfg.Embedding)
	if err := embedding.Preload(context.Background(), provider, cfg); err != nil {
		logging.Fatalf("Failed to preload embeddings: %v", err)
	}

	r, err := router.NewFromConfig(cfg, provider)
	if err != nil {
		logging.Fatalf("Failed to build router: %v", err)
	}

	svc := services.NewConciergeService(
		r,
		generation.NewOpenAIGenerator(cfg.Generation),
		audit.NewLogSink(),
	)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf(":%d", *metricsPort)
		logging.Infof("Starting metrics server on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			logging.Errorf("Metrics server error: %v", err)
		}
	}()

	logging.Infof("Starting IM concierge with config: %s", *configPath)
	if err := apiserver.NewServer(svc, *port).Start(); err != nil {
		logging.Fatalf("API server error: %v", err)
	}
}
