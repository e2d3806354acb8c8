// Command orrery runs the astronomical state engine: it advances the
// simulation clock, propagates every catalog body per frame, reconciles the
// tracked spacecraft against its live feed, and serves the resulting display
// state to renderer and UI clients over HTTP/WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/WinnCook/real-time-iss-visualization-sub001/core"
	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/api"
	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/issapi"
	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/logging"
	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/observability"
	"github.com/WinnCook/real-time-iss-visualization-sub001/timectrl"
	"github.com/WinnCook/real-time-iss-visualization-sub001/tracking"
)

// Fallback element set for the tracked spacecraft, used whenever the live
// feed is unavailable. Refreshed with releases, not at runtime.
const (
	issTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orrery: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("catalog_path", "configs/bodies.json")
	v.SetDefault("frame_interval_ms", 33)
	v.SetDefault("poll_interval_s", 5)
	v.SetDefault("fetch_budget_s", 3)
	v.SetDefault("source_url", issapi.DefaultSourceURL)
	v.SetDefault("trail_capacity", 50)
	v.SetDefault("time_scale", timectrl.DefaultTimeScale)
	v.SetDefault("min_time_scale", 1)
	v.SetDefault("max_time_scale", 50000)
	v.SetDefault("scale_regime", "enlarged")
	v.SetDefault("staleness_window_s", 15)
	v.SetDefault("grace_window_s", 120)
	v.SetDefault("error_ceiling", 5)
	v.SetDefault("advisory_every", 10)

	v.SetEnvPrefix("ORRERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("orrery")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	catalogPath := cfg.GetString("catalog_path")
	f, err := os.Open(catalogPath)
	if err != nil {
		return fmt.Errorf("open catalog %q: %w", catalogPath, err)
	}
	catalog, err := core.LoadCatalog(f, log)
	f.Close()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	log.Info(ctx, "catalog loaded",
		logging.Int("bodies", len(catalog.Bodies)),
		logging.Int("excluded", len(catalog.Excluded)),
	)

	initialRegime, err := core.ParseScaleRegime(cfg.GetString("scale_regime"))
	if err != nil {
		return err
	}

	// The tracking state publishes advisories through the engine; the
	// engine variable is captured by reference because the state must exist
	// before the engine that owns it.
	var engine *core.Engine
	fallback := tracking.NewSGP4Fallback(issTLE1, issTLE2)
	state := tracking.NewState(tracking.Config{
		StalenessWindow: cfg.GetFloat64("staleness_window_s"),
		GraceWindow:     cfg.GetFloat64("grace_window_s"),
		ErrorCeiling:    cfg.GetInt("error_ceiling"),
		AdvisoryEvery:   cfg.GetInt("advisory_every"),
	}, fallback, log, func(a tracking.Advisory) {
		if engine != nil {
			engine.PublishAdvisory(a.Mode, a.Message)
		}
	})

	engine, err = core.NewEngine(catalog, state, core.EngineConfig{
		TrailCapacity: cfg.GetInt("trail_capacity"),
		InitialRegime: initialRegime,
	}, log, collector)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	clock := timectrl.NewClock(
		timectrl.SecondsSinceJ2000(time.Now()),
		timectrl.WithScaleBounds(cfg.GetFloat64("min_time_scale"), cfg.GetFloat64("max_time_scale")),
	)
	if err := clock.SetTimeScale(cfg.GetFloat64("time_scale")); err != nil {
		return fmt.Errorf("initial time scale: %w", err)
	}

	tracer := otel.Tracer("orrery")
	clock.AddListener(func(simSeconds float64) {
		_, span := tracer.Start(ctx, "engine.step")
		engine.Step(simSeconds)
		span.End()
	})

	client := issapi.NewClient(
		cfg.GetString("source_url"),
		time.Duration(cfg.GetFloat64("fetch_budget_s")*float64(time.Second)),
		log,
	)
	poller := issapi.NewPoller(
		client,
		time.Duration(cfg.GetFloat64("poll_interval_s")*float64(time.Second)),
		engine.QueueOutcome,
		log,
	)

	server := api.NewServer(cfg.GetString("listen_addr"), engine, clock, collector.Handler(), log)

	go poller.Run(ctx)
	go clock.Run(ctx, time.Duration(cfg.GetInt("frame_interval_ms"))*time.Millisecond)

	serverErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", logging.String("addr", cfg.GetString("listen_addr")))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.HTTPServer().Shutdown(shutdownCtx)
}
