package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Primary engine names accepted by EngineConfig.Primary.
const (
	EngineTesseract = "tesseract"
	EngineGemini    = "gemini"
	EngineOllama    = "ollama"
)

// EngineConfig selects and configures the two engine tiers.
type EngineConfig struct {
	Primary  string
	Fallback bool

	Languages []string
	CLI       CLIConfig

	GeminiAPIKey string
	GeminiModel  string

	OllamaURL   string
	OllamaModel string
}

// BuildEngines constructs the configured engines, probes them once and
// returns the usable set, the availability report and a closer for any
// client resources. A primary that cannot even be constructed is reported
// unavailable rather than failing startup.
func BuildEngines(ctx context.Context, cfg EngineConfig) (Engines, map[string]Availability, func() error) {
	var (
		constructed []Engine
		report      = make(map[string]Availability)
		primary     Engine
	)

	switch cfg.Primary {
	case "", EngineTesseract:
		primary = NewTesseract(cfg.Languages...)
	case EngineGemini:
		g, err := NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("OCR engine unavailable", "engine", EngineGemini, "error", err)
			report[EngineGemini] = Unavailable(err.Error())
		} else {
			primary = g
		}
	case EngineOllama:
		primary = NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		report[cfg.Primary] = Unavailable(fmt.Sprintf("unknown engine %q", cfg.Primary))
	}
	if primary != nil {
		constructed = append(constructed, primary)
	}

	var fallback Engine
	if cfg.Fallback {
		fallback = NewTesseractCLI(cfg.CLI)
		constructed = append(constructed, fallback)
	}

	engines, probed := ProbeEngines(ctx, primary, fallback)
	for name, a := range probed {
		report[name] = a
	}

	closeAll := func() error {
		var errs []error
		for _, e := range constructed {
			if c, ok := e.(Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, fmt.Errorf("closing %s: %w", e.Name(), err))
				}
			}
		}
		return errors.Join(errs...)
	}
	return engines, report, closeAll
}

// Ready reports whether at least one tier survived probing.
func (e Engines) Ready() bool {
	return e.Primary != nil || e.Fallback != nil
}

// Require returns ErrEngineUnavailable when no tier is usable.
func (e Engines) Require() error {
	if !e.Ready() {
		return ErrEngineUnavailable
	}
	return nil
}
