package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/joho/godotenv/autoload"
	"github.com/peterbourgon/ff/v3"

	"bookproxy/internal/catalogue"
	"bookproxy/internal/content"
	"bookproxy/internal/generate"
	"bookproxy/internal/logger"
	"bookproxy/internal/metrics"
	"bookproxy/internal/pressbooks"
	"bookproxy/internal/response"
	"bookproxy/internal/server"
	"bookproxy/internal/webpage"
)

const upstreamTimeout = 30 * time.Second

func main() {
	flagSet := flag.NewFlagSet("bookproxy", flag.ExitOnError)

	var (
		addr                 = flagSet.String("addr", "", "Address to listen on (default :PORT)")
		port                 = flagSet.Int("port", 3000, "Port to listen on when addr is not set")
		apiKey               = flagSet.String("anthropic-api-key", "", "Credential injected into generation requests (required)")
		aiBaseURL            = flagSet.String("ai-base-url", generate.DefaultBaseURL, "Base URL of the AI messages API")
		aiModel              = flagSet.String("ai-model", generate.DefaultModel, "Model used when a request names none")
		pressbooksURL        = flagSet.String("pressbooks-base-url", "https://pressbooks.tru.ca", "Root of the Pressbooks network")
		cataloguePerPage     = flagSet.Int("catalogue-per-page", 10, "Books requested per catalogue page")
		catalogueConcurrency = flagSet.Int("catalogue-concurrency", catalogue.DefaultConcurrency, "Catalogue pages fetched at once")
		catalogueTTL         = flagSet.Duration("catalogue-ttl", catalogue.DefaultTTL, "How long the filtered catalogue is served from memory")
		fetchTimeout         = flagSet.Duration("fetch-timeout", webpage.DefaultTimeout, "Timeout for fetching external pages")
		fetchMaxBytes        = flagSet.Int64("fetch-max-bytes", webpage.DefaultMaxBytes, "Maximum bytes read from an external page")
		allowedOrigins       = flagSet.String("allowed-origins", "*", "Comma separated CORS origins, * for any")
		logLevel             = flagSet.String("log-level", "info", "debug, info, warn or error")
		logFormat            = flagSet.String("log-format", "text", "text or json")
		debugMode            = flagSet.Bool("debug-mode", false, "Show internal error details to callers")
	)

	if err := ff.Parse(flagSet, os.Args[1:], ff.WithEnvVars()); err != nil {
		slog.Error("Failed to parse flags: " + err.Error())
		os.Exit(1)
	}

	_, thisFile, _, _ := runtime.Caller(0)

	var lvl slog.Level
	lvlErr := lvl.UnmarshalText([]byte(strings.ToLower(*logLevel)))
	if lvlErr != nil {
		lvl = slog.LevelDebug
	}

	if err := logger.SetupSLog(lvl, *logFormat, path.Dir(path.Dir(path.Dir(thisFile))), middleware.RequestIDKey); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	if lvlErr != nil {
		slog.Error("Invalid log level specified in LOG_LEVEL, one of debug, info, warn or error expected")
		os.Exit(1)
	}

	if strings.TrimSpace(*apiKey) == "" {
		slog.Error("You need to specify ANTHROPIC_API_KEY env var or -anthropic-api-key flag")
		os.Exit(1)
	}

	metrics.MustRegister()

	upstream := &http.Client{Timeout: upstreamTimeout}

	pb, err := pressbooks.NewClient(upstream, *pressbooksURL, *cataloguePerPage, slog.Default())
	if err != nil {
		slog.Error("Invalid PRESSBOOKS_BASE_URL: " + err.Error())
		os.Exit(1)
	}

	aggregator := catalogue.NewAggregator(pb, catalogue.NewCache(*catalogueTTL), *catalogueConcurrency, slog.Default())
	retriever := content.NewRetriever(pb, pb.BaseDomain(), slog.Default())
	fetcher := webpage.NewFetcher(*fetchTimeout, *fetchMaxBytes, slog.Default())
	forwarder := generate.NewForwarder(&http.Client{Timeout: 2 * time.Minute}, *aiBaseURL, *apiKey, *aiModel, slog.Default())

	h := server.Routes(aggregator, retriever, fetcher, forwarder,
		&response.Responder{DebugMode: *debugMode}, splitList(*allowedOrigins))

	if *addr == "" {
		*addr = ":" + strconv.Itoa(*port)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		slog.Info("Listening on " + *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("aborting: " + err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("Received " + sig.String() + ", shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed: " + err.Error())
	}
}

func splitList(s string) []string {
	var vals []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			vals = append(vals, v)
		}
	}

	return vals
}
