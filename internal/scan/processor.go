package scan

import (
	"context"
	"fmt"
	"image"
	"iter"
	"os"
	"time"

	"github.com/zombor/catalog-ocr/internal/catalog"
	"github.com/zombor/catalog-ocr/internal/preprocess"
	"github.com/zombor/catalog-ocr/internal/scanning"
)

// Recognizer picks the winning OCR candidate across image variants.
type Recognizer interface {
	Select(ctx context.Context, variants iter.Seq2[string, image.Image]) (*scanning.Selection, error)
}

// Result is the outcome of one successful pipeline run.
type Result struct {
	Selection *scanning.Selection
	Products  []catalog.Product
	Elapsed   time.Duration
}

// Processor runs load, variant generation, recognition and parsing for one upload.
type Processor struct {
	recognizer Recognizer
	workDir    string
}

// NewProcessor creates a Processor. Each run gets its own temporary
// directory under workDir; empty means the OS temp dir.
func NewProcessor(recognizer Recognizer, workDir string) *Processor {
	return &Processor{recognizer: recognizer, workDir: workDir}
}

// Process turns an uploaded file into the selected OCR candidate and its products.
func (p *Processor) Process(ctx context.Context, data []byte, contentType string) (*Result, error) {
	src, err := preprocess.Load(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}

	dir, err := os.MkdirTemp(p.workDir, "scan-*")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)
	ctx = scanning.WithWorkDir(ctx, dir)

	start := time.Now()
	sel, err := p.recognizer.Select(ctx, preprocess.Generate(src))
	if err != nil {
		return nil, err
	}
	products := catalog.Parse(sel.Candidate.RawText)

	return &Result{
		Selection: sel,
		Products:  products,
		Elapsed:   time.Since(start),
	}, nil
}
