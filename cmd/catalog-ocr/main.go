package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/catalog-ocr/internal/scan"
	"github.com/zombor/catalog-ocr/internal/scanning"
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

	// A missing .env is fine; flags and the real environment still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	fs := ff.NewFlagSet("catalog-ocr")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "catalog-ocr.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./uploads", "Upload storage directory path")
		workDir       = fs.StringLong("work-dir", "", "Directory for temporary variant files (default: OS temp dir)")
		primaryEngine = fs.StringLong("primary-engine", scanning.EngineTesseract, "Primary OCR engine: 'tesseract', 'gemini' or 'ollama'")
		fallback      = fs.BoolLong("fallback", "Enable the tesseract CLI fallback engine")
		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "Tesseract binary used by the fallback engine")
		tessdataDir   = fs.StringLong("tessdata-dir", "", "Tesseract tessdata directory (optional)")
		lang          = fs.StringLong("lang", "eng", "Tesseract language(s), '+' separated")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		trialTimeout  = fs.DurationLong("trial-timeout", 60*time.Second, "Time budget for one engine call on one variant (0 disables)")
		maxUploadMB   = fs.IntLong("max-upload-mb", 10, "Maximum upload size in megabytes")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CATALOG_OCR"),
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

	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := scan.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := scan.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Probe engines once; availability does not change for the life of the process
	slog.Info("Probing OCR engines...", "primary", *primaryEngine, "fallback", *fallback)
	probeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	engines, report, closeEngines := scanning.BuildEngines(probeCtx, scanning.EngineConfig{
		Primary:   *primaryEngine,
		Fallback:  *fallback,
		Languages: strings.Split(*lang, "+"),
		CLI: scanning.CLIConfig{
			Binary:      *tesseractBin,
			Language:    *lang,
			TessdataDir: *tessdataDir,
			WorkDir:     *workDir,
		},
		GeminiAPIKey: apiKey,
		GeminiModel:  *geminiModel,
		OllamaURL:    *ollamaURL,
		OllamaModel:  *ollamaModel,
	})
	cancel()
	defer closeEngines()
	if err := engines.Require(); err != nil {
		slog.Warn("No OCR engine available; every scan will fail until one is installed", "error", err)
	}

	selector := scanning.NewSelector(engines, scanning.WithTrialTimeout(*trialTimeout))
	processor := scan.NewProcessor(selector, *workDir)
	service := scan.NewService(db, processor, store)
	server := scan.NewServer(service,
		scan.WithEngineReport(report),
		scan.WithMaxUploadBytes(int64(*maxUploadMB)<<20),
	)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
