package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-scraper/internal/config"
	"marketplace-scraper/internal/crawler"
	"marketplace-scraper/internal/crawler/engine"
	"marketplace-scraper/internal/metrics"
	"marketplace-scraper/internal/storage"
	"marketplace-scraper/pkg/models"
)

const statusKeyPrefix = "marketplace:session:"

type recordSink interface {
	engine.Sink
	io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment (e.g. ./crawler -query="road bike" -max=10)
	query := flag.String("query", cfg.Query, "Search keywords")
	location := flag.String("location", cfg.Location, "Search location (informational)")
	maxItems := flag.Int("max", cfg.MaxItems, "Maximum listings to save")
	minPrice := flag.Int("min-price", 0, "Minimum price filter")
	maxPrice := flag.Int("max-price", 0, "Maximum price filter")
	condition := flag.String("condition", string(cfg.Condition), "Item condition: new, used or all")
	sortBy := flag.String("sort", string(cfg.SortBy), "Sort order: best_match, price_low_high, price_high_low, date_listed")
	proxy := flag.String("proxy", cfg.ProxyURL, "Proxy server for the browser")
	headless := flag.Bool("headless", cfg.Headless, "Run Chrome headless")
	sink := flag.String("sink", cfg.Sink, "Output sink: jsonl, csv, postgres or kafka")
	output := flag.String("output", cfg.OutputFile, "Output file for jsonl and csv sinks")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	cfg.Query = *query
	cfg.Location = *location
	cfg.MaxItems = *maxItems
	cfg.ProxyURL = *proxy
	cfg.Headless = *headless
	cfg.Sink = *sink
	cfg.OutputFile = *output
	cfg.MetricsAddr = *metricsAddr
	if *verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-price":
			cfg.MinPrice = minPrice
		case "max-price":
			cfg.MaxPrice = maxPrice
		}
	})
	if err := cfg.Condition.UnmarshalText([]byte(*condition)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -condition: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.SortBy.UnmarshalText([]byte(*sortBy)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -sort: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := openSink(ctx, cfg, logger)
	if err != nil {
		logger.Error("opening sink", "sink", cfg.Sink, "error", err)
		return 1
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Error("close sink", "error", err)
		}
	}()

	reporters := engine.MultiReporter{engine.NewLogReporter(logger)}

	if cfg.MetricsAddr != "" {
		m := metrics.New()
		reporters = append(reporters, m)
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Router()}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", "error", err)
			}
		}()
		logger.Info("metrics server enabled", "addr", cfg.MetricsAddr)
	}

	var status *storage.StatusReporter
	if cfg.RedisAddr != "" {
		store := storage.NewRedisStatusStore(cfg.RedisAddr, statusKeyPrefix, cfg.RedisStatusTTL)
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			logger.Warn("status store unreachable, continuing without it", "addr", cfg.RedisAddr, "error", err)
		} else {
			status = storage.NewStatusReporter(store, func(err error) {
				logger.Warn("status update failed", "error", err)
			})
			reporters = append(reporters, status)
		}
	}

	search := cfg.Search()
	domains, err := crawler.NewDomainManager(search.Browser.UserAgent, cfg.RateLimit, cfg.RespectRobots)
	if err != nil {
		logger.Error("initialising domain manager", "error", err)
		return 1
	}
	navigator := crawler.NewNavigator(cfg.Navigation(), crawler.NewChromeFactory(search.Browser), crawler.RealClock())
	eng := engine.NewEngine(
		engine.Config{MaxAttempts: cfg.MaxAttempts},
		navigator,
		crawler.NewParser(),
		out,
		domains,
		reporters,
	)

	logger.Info("search configured",
		"query", search.Query,
		"location", search.Location,
		"cap", search.ResultCap,
		"condition", string(search.Condition),
		"sink", cfg.Sink,
	)

	session, err := eng.Run(ctx, search)
	if status != nil {
		verifyStatus(ctx, status, session, logger)
	}
	printSummary(session, navigator.LastScroll(), cfg)
	if err != nil {
		return 1
	}
	return 0
}

// verifyStatus checks that the store holds the final state of the session.
func verifyStatus(ctx context.Context, status *storage.StatusReporter, session models.CrawlSession, logger *slog.Logger) {
	stored, ok, err := status.Persisted(ctx, session.ID)
	switch {
	case err != nil:
		logger.Warn("reading persisted status failed", "session", session.ID, "error", err)
	case !ok:
		logger.Warn("no persisted status for session", "session", session.ID)
	case stored.State != session.State || stored.Emitted != session.Emitted:
		logger.Warn("persisted status is stale",
			"session", session.ID,
			"state", stored.State.String(),
			"emitted", stored.Emitted,
		)
	default:
		logger.Info("session status persisted", "key", statusKeyPrefix+session.ID, "state", stored.State.String())
	}
}

func openSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (recordSink, error) {
	switch cfg.Sink {
	case config.SinkJSONL:
		return storage.NewJSONLSink(cfg.OutputFile)
	case config.SinkCSV:
		return storage.NewCSVSink(cfg.OutputFile)
	case config.SinkPostgres:
		db, err := waitForDB(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		store := storage.NewStorage(db)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.SinkKafka:
		return storage.NewKafkaSink(cfg.KafkaBroker, cfg.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unsupported sink: %s", cfg.Sink)
	}
}

func waitForDB(ctx context.Context, url string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Info("connected to database")
			return db, nil
		}
		logger.Info("waiting for database", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to database after retries: %w", err)
}

func printSummary(session models.CrawlSession, scroll crawler.ScrollStats, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if session.State == models.Succeeded {
		fmt.Println("Search complete")
	} else {
		fmt.Println("Search failed")
	}
	fmt.Printf("  Query:         %s\n", session.Query)
	fmt.Printf("  Listings:      %d / %d\n", session.Emitted, session.Cap)
	fmt.Printf("  Attempts:      %d\n", session.Attempt)
	fmt.Printf("  Scrolled:      %dpx in %d steps\n", scroll.Distance, scroll.Steps)
	fmt.Printf("  Duration:      %v\n", session.FinishedAt.Sub(session.StartedAt).Round(time.Millisecond))
	if session.Error != "" {
		fmt.Printf("  Error:         %s\n", session.Error)
	}
	switch cfg.Sink {
	case config.SinkJSONL, config.SinkCSV:
		fmt.Printf("  Output file:   %s\n", cfg.OutputFile)
	default:
		fmt.Printf("  Output sink:   %s\n", cfg.Sink)
	}
	fmt.Println(separator)
}

func newLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
