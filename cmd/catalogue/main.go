package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/peterbourgon/ff/v3"

	"bookproxy/internal/catalogue"
	"bookproxy/internal/logger"
	"bookproxy/internal/opds"
	"bookproxy/internal/pressbooks"
)

func main() {
	flagSet := flag.NewFlagSet("catalogue", flag.ExitOnError)

	var (
		pressbooksURL = flagSet.String("pressbooks-base-url", "https://pressbooks.tru.ca", "Root of the Pressbooks network")
		perPage       = flagSet.Int("catalogue-per-page", 10, "Books requested per catalogue page")
		concurrency   = flagSet.Int("catalogue-concurrency", catalogue.DefaultConcurrency, "Catalogue pages fetched at once")
		includeAll    = flagSet.Bool("all", false, "Keep sandbox, test and training books")
		format        = flagSet.String("format", "json", "Output format, json or opds")
		logLevel      = flagSet.String("log-level", "info", "debug, info, warn or error")
		logFormat     = flagSet.String("log-format", "text", "text or json")
	)

	if err := ff.Parse(flagSet, os.Args[1:], ff.WithEnvVars()); err != nil {
		slog.Error("Failed to parse flags: " + err.Error())
		os.Exit(1)
	}

	_, thisFile, _, _ := runtime.Caller(0)

	var lvl slog.Level
	invalidLvl := false
	switch strings.ToLower(*logLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelDebug
		invalidLvl = true
	}

	if err := logger.SetupSLog(lvl, *logFormat, path.Dir(path.Dir(path.Dir(thisFile))), nil); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	if invalidLvl {
		slog.Error("Invalid log level specified in LOG_LEVEL, one of debug, info, warn or error expected")
		os.Exit(1)
	}

	if *format != "json" && *format != "opds" {
		slog.Error("FORMAT must be json or opds")
		os.Exit(1)
	}

	pb, err := pressbooks.NewClient(&http.Client{Timeout: 30 * time.Second}, *pressbooksURL, *perPage, slog.Default())
	if err != nil {
		slog.Error("Invalid PRESSBOOKS_BASE_URL: " + err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// a fresh cache per run, the binary never serves from it
	agg := catalogue.NewAggregator(pb, catalogue.NewCache(catalogue.DefaultTTL), *concurrency, slog.Default())

	entries, err := agg.ListBooks(ctx, *includeAll)
	if err != nil {
		slog.Error("Aggregation failed: " + err.Error())
		os.Exit(1)
	}

	var out []byte
	switch *format {
	case "opds":
		out, err = opds.CatalogueFeed(entries, *pressbooksURL, time.Now())
	default:
		out, err = json.MarshalIndent(entries, "", "  ")
	}

	if err != nil {
		slog.Error("Rendering failed: " + err.Error())
		os.Exit(1)
	}

	if _, err = os.Stdout.Write(append(out, '\n')); err != nil {
		slog.Error("Writing output failed: " + err.Error())
		os.Exit(1)
	}
}
