package scanning

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
)

// Block is one recognized text region.
type Block struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Polygon    []image.Point `json:"box,omitempty"`
}

// Candidate is the result of one successful (engine, variant) trial.
type Candidate struct {
	RawText    string  `json:"raw_text"`
	Confidence float64 `json:"confidence"` // 0..1
	Blocks     []Block `json:"blocks,omitempty"`
	Engine     string  `json:"engine"`
}

// Engine defines the interface every OCR backend adapter satisfies
type Engine interface {
	// Name labels the engine in method_used and logs
	Name() string
	// Recognize runs OCR on a single image
	Recognize(ctx context.Context, img image.Image) (*Candidate, error)
}

// Closer is implemented by engines holding client resources.
type Closer interface {
	Close() error
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func rectPolygon(r image.Rectangle) []image.Point {
	return []image.Point{
		r.Min,
		{X: r.Max.X, Y: r.Min.Y},
		r.Max,
		{X: r.Min.X, Y: r.Max.Y},
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
