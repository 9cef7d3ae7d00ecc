// Command learnd runs the optimization engine daemon: it serves Prometheus
// metrics and periodically runs the learning cycle for every algorithm
// type, promoting improved weight versions from the accumulated A/B
// comparison evidence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/visably/optimo/infrastructure/evaluators"
	"github.com/visably/optimo/infrastructure/llm"
	"github.com/visably/optimo/infrastructure/middleware"
	"github.com/visably/optimo/infrastructure/store/badgerstore"
	"github.com/visably/optimo/internal/application"
	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/learning"
	"github.com/visably/optimo/internal/logging"
	"github.com/visably/optimo/internal/ports"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to yaml config file (defaults apply when empty)")
		dataDir    = flag.String("data", "./data", "directory for the badger database")
		listenAddr = flag.String("listen", ":9090", "address for the metrics endpoint")
		interval   = flag.Duration("interval", 10*time.Minute, "learning cycle interval")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat  = flag.String("log-format", "json", "log format: json or console")
	)
	flag.Parse()

	if err := run(*configPath, *dataDir, *listenAddr, *interval, *logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "learnd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dataDir, listenAddr string, interval time.Duration, logLevel, logFormat string) error {
	logger, err := logging.New(logging.Config{Level: logLevel, Format: logFormat})
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	cfg := application.DefaultConfig()
	if configPath != "" {
		cfg, err = application.LoadConfig(configPath)
		if err != nil {
			return err
		}
	}

	storeCfg := badgerstore.DefaultConfig()
	storeCfg.Path = dataDir
	store, err := badgerstore.Open(storeCfg, nil, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	learner, err := learning.New(cfg.Learning)
	if err != nil {
		return err
	}

	metrics := middleware.NewPrometheusMetrics()
	versions := application.NewVersionService(store, logger)
	abtest, err := application.NewABTestService(
		store, versions, learner, scoringUnavailable, cfg.Trigger, nil, logger, metrics)
	if err != nil {
		return err
	}

	evaluator, err := buildEvaluator(logger)
	if err != nil {
		return err
	}
	pipeline, err := application.NewRewardPipeline(
		store, store, store, evaluator, cfg.Reward, nil, logger, metrics)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: listenAddr, Handler: mux}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	logger.Info("learnd started",
		zap.String("listen", listenAddr),
		zap.String("data", dataDir),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-serverErr:
			return err
		case <-ticker.C:
			if err := abtest.RunAllLearningCycles(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("learning cycle failed", zap.Error(err))
			}
		}
	}
}

// buildEvaluator returns the LLM judge when a provider is configured
// through the environment, the deterministic heuristic otherwise.
func buildEvaluator(logger *zap.Logger) (ports.ResponseEvaluator, error) {
	heuristic, err := evaluators.NewHeuristicEvaluator(evaluators.DefaultHeuristicConfig())
	if err != nil {
		return nil, err
	}

	provider := os.Getenv("OPTIMO_LLM_PROVIDER")
	if provider == "" {
		return heuristic, nil
	}
	client, err := llm.NewClient(llm.ClientConfig{
		Provider: provider,
		APIKey:   os.Getenv("OPTIMO_LLM_API_KEY"),
		Model:    os.Getenv("OPTIMO_LLM_MODEL"),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("using llm judge evaluator", zap.String("model", client.GetModel()))
	return evaluators.NewJudgeEvaluator(client, heuristic, evaluators.DefaultJudgeConfig(), logger)
}

// scoringUnavailable stands in for the content-analysis engine's scoring
// function, which attaches when the engine embeds this daemon's services.
// The learning cycle replays persisted comparisons and never calls it.
func scoringUnavailable(context.Context, domain.AlgorithmType, ports.ScoreInput, domain.Weights) (float64, error) {
	return 0, errors.New("scoring engine not attached")
}
