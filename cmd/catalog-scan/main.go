package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/catalog-ocr/internal/catalog"
	"github.com/zombor/catalog-ocr/internal/preprocess"
	"github.com/zombor/catalog-ocr/internal/scan"
	"github.com/zombor/catalog-ocr/internal/scanning"
)

type output struct {
	scanning.Summary
	Products       []catalog.Product `json:"products"`
	ProcessingTime float64           `json:"processing_time"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	fs := ff.NewFlagSet("catalog-scan")
	var (
		primaryEngine = fs.StringLong("primary-engine", scanning.EngineTesseract, "Primary OCR engine: 'tesseract', 'gemini' or 'ollama'")
		fallback      = fs.BoolLong("fallback", "Enable the tesseract CLI fallback engine")
		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "Tesseract binary used by the fallback engine")
		lang          = fs.StringLong("lang", "eng", "Tesseract language(s), '+' separated")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		trialTimeout  = fs.DurationLong("trial-timeout", 60*time.Second, "Time budget for one engine call on one variant (0 disables)")
		exportFormat  = fs.StringLong("export", "", "Print the products as a listing file instead (csv, txt, json, xlsx, sql)")
		verbose       = fs.BoolLong("verbose", "Log every OCR trial to stderr")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CATALOG_OCR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(fs.GetArgs()) != 1 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "usage: catalog-scan [flags] <image-or-pdf>")
		os.Exit(2)
	}
	path := fs.GetArgs()[0]

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	ctx := context.Background()
	engines, _, closeEngines := scanning.BuildEngines(ctx, scanning.EngineConfig{
		Primary:      *primaryEngine,
		Fallback:     *fallback,
		Languages:    strings.Split(*lang, "+"),
		CLI:          scanning.CLIConfig{Binary: *tesseractBin, Language: *lang},
		GeminiAPIKey: apiKey,
		GeminiModel:  *geminiModel,
		OllamaURL:    *ollamaURL,
		OllamaModel:  *ollamaModel,
	})
	defer closeEngines()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	processor := scan.NewProcessor(scanning.NewSelector(engines, scanning.WithTrialTimeout(*trialTimeout)), "")
	result, err := processor.Process(ctx, data, preprocess.ContentTypeForExt(strings.ToLower(filepath.Ext(path))))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *exportFormat != "" {
		format, err := catalog.ParseFormat(*exportFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		out, _, err := catalog.Export(result.Products, format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output{
		Summary:        result.Selection.Summary(),
		Products:       result.Products,
		ProcessingTime: result.Elapsed.Seconds(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
