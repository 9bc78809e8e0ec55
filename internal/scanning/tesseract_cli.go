package scanning

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CLIConfig configures the fallback engine.
type CLIConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Language    string // default "eng"
	TessdataDir string
	WorkDir     string // used when the scan context carries no work dir
}

// TesseractCLI is the fallback engine: the tesseract binary, reporting only
// page-level confidence averaged from its TSV word confidences.
type TesseractCLI struct {
	cfg      CLIConfig
	runner   Runner
	lookPath func(string) (string, error)
}

// NewTesseractCLI creates the fallback engine backed by the tesseract binary.
func NewTesseractCLI(cfg CLIConfig) *TesseractCLI {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &TesseractCLI{cfg: cfg, runner: execRunner{}, lookPath: exec.LookPath}
}

func (t *TesseractCLI) Name() string { return "tesseract_cli" }

// Probe reports the engine unavailable when the binary cannot be found.
func (t *TesseractCLI) Probe(ctx context.Context) Availability {
	if _, err := t.lookPath(t.cfg.Binary); err != nil {
		return Unavailable(fmt.Sprintf("%s not found: %v", t.cfg.Binary, err))
	}
	return Available()
}

// Recognize writes the variant to the scan's work dir and runs tesseract twice:
// once for text, once in TSV mode for confidence.
func (t *TesseractCLI) Recognize(ctx context.Context, img image.Image) (*Candidate, error) {
	path, cleanup, err := t.writeVariant(ctx, img)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	// tesseract <file> stdout -l <lang>
	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, t.args(path)...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	text := strings.TrimSpace(strings.ReplaceAll(string(out), "\f", ""))

	out, errb, err = t.runner.Run(ctx, t.cfg.Binary, append(t.args(path), "tsv")...)
	if err != nil {
		return nil, fmt.Errorf("tesseract TSV: %w: %s", err, truncate(string(errb), 512))
	}

	return &Candidate{
		RawText:    text,
		Confidence: clampConfidence(meanTSVConfidence(string(out)) / 100.0),
		Engine:     t.Name(),
	}, nil
}

func (t *TesseractCLI) args(path string) []string {
	args := []string{path, "stdout", "-l", t.cfg.Language}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return args
}

func (t *TesseractCLI) writeVariant(ctx context.Context, img image.Image) (string, func(), error) {
	dir, ok := WorkDirFromContext(ctx)
	if !ok {
		dir = t.cfg.WorkDir
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp(dir, "variant-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("creating variant file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing variant file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing variant file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// meanTSVConfidence averages the conf column (0..100) of word rows, skipping
// the header and the -1 entries tesseract emits for structural rows.
func meanTSVConfidence(tsv string) float64 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		conf := strings.TrimSpace(cols[10])
		if conf == "" || conf == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(conf, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}
