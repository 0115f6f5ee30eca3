package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/arcade-scan/internal/camera"
	"github.com/zombor/arcade-scan/internal/catalog"
	"github.com/zombor/arcade-scan/internal/metrics"
	"github.com/zombor/arcade-scan/internal/scan"
	"github.com/zombor/arcade-scan/internal/scanning"
	"github.com/zombor/arcade-scan/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("arcade-scan")
	var (
		modeName      = fs.StringLong("mode", "auto", "Scan mode: 'machine', 'prize', 'part' or 'auto'")
		deviceName    = fs.StringLong("device", "video:0", "Camera device: 'video:<index>' or 'replay:<dir>'")
		decoderType   = fs.StringLong("decoder", "gemini", "Decoder type: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		dbPath        = fs.StringLong("db", "arcade-scan.db", "Catalog database file path")
		seeds         = fs.StringListLong("add", "Add a catalog item before scanning, as category:barcode[:name] (repeatable)")
		minConfidence = fs.Float64Long("min-confidence", scan.DefaultMinConfidence, "Minimum decoder confidence to accept a barcode")
		minInterval   = fs.DurationLong("min-interval", scan.DefaultMinInterval, "Minimum time between decode attempts")
		continuous    = fs.BoolLong("continuous", "Keep scanning after each result until interrupted")
		statusAddr    = fs.StringLong("status-addr", "", "Address for the status HTTP server, e.g. ':8080' (disabled when empty)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username for the status server (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password for the status server (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("ARCADE_SCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	mode, err := scan.ParseMode(*modeName)
	if err != nil {
		slog.Error("Invalid scan mode", "error", err)
		os.Exit(1)
	}

	device, err := camera.ParseDevice(*deviceName)
	if err != nil {
		slog.Error("Invalid camera device", "error", err)
		os.Exit(1)
	}

	// Initialize decoder based on type
	var decoder scanning.Decoder
	switch *decoderType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini decoder...", "model", *geminiModel)
		decoder, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama decoder...", "url", *ollamaURL, "model", *ollamaModel)
		decoder, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid decoder type", "type", *decoderType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer decoder.Close()

	// Initialize catalog
	slog.Info("Initializing catalog...", "path", *dbPath)
	db, err := catalog.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize catalog", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	catalogService := catalog.NewService(db)

	for _, s := range *seeds {
		seed, err := catalog.ParseSeed(s)
		if err != nil {
			slog.Error("Invalid catalog item", "error", err)
			os.Exit(1)
		}
		item, err := catalogService.AddItem(seed.Category, seed.Barcode, seed.Name)
		if err != nil {
			slog.Error("Failed to add catalog item", "item", s, "error", err)
			os.Exit(1)
		}
		slog.Info("Catalog item added", "category", item.Category, "barcode", item.Barcode, "name", item.Name)
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewWithRegistry(registry)
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	cfg := scan.DefaultConfig()
	cfg.MinConfidence = *minConfidence
	cfg.MinInterval = *minInterval

	cam := camera.NewSession(device, camera.NewPullSink(cfg.FrameInterval), camera.Options{})
	scanner := scan.NewScanner(scan.Deps{
		Camera:  cam,
		Decoder: decoder,
		Lookup:  catalogService,
		Metrics: m,
		Notices: logNotice,
	}, cfg)

	if *statusAddr != "" {
		basicAuth := server.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		}
		srv := server.NewServer(scanner, catalogService, registry, basicAuth)
		go func() {
			if err := srv.Start(*statusAddr); err != nil {
				slog.Error("Status server error", "error", err)
				os.Exit(1)
			}
		}()
		if *authUser != "" || *authPass != "" {
			slog.Info("Basic auth enabled", "user", *authUser)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make(chan string, 1)
	onScan := func(text string) {
		select {
		case results <- text:
		default:
			slog.Warn("Dropping scan result, previous result not consumed", "text", text)
		}
	}

	session, err := scanner.Open(ctx, mode, onScan, func() {
		slog.Debug("Scan session closed")
	})
	if err != nil {
		slog.Error("Failed to start scanning", "error", err)
		os.Exit(1)
	}
	defer session.Stop()

	slog.Info("Scanning", "mode", mode, "device", *deviceName, "session", session.ID())

	for {
		select {
		case text := <-results:
			fmt.Println(text)
			if !*continuous {
				return
			}
			if err := session.Start(ctx); err != nil {
				slog.Error("Failed to restart scanning", "error", err)
				return
			}
		case <-ctx.Done():
			slog.Info("Shutting down...")
			return
		}
	}
}

func logNotice(n scan.Notice) {
	slog.Warn("Scan notice", "kind", n.Kind, "session", n.SessionID, "text", n.Text, "error", n.Err)
}
