package scanning

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is the primary engine: libtesseract through gosseract, reporting
// per-line text, confidence and bounding boxes.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract creates the primary engine. No languages means Tesseract's default.
func NewTesseract(languages ...string) *Tesseract {
	return &Tesseract{languages: languages, clientFactory: gosseract.NewClient}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize performs OCR on one variant with a fresh client.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (*Candidate, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	client, err := t.newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognizing text lines: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blocks := make([]Block, 0, len(boxes))
	lines := make([]string, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		conf := clampConfidence(b.Confidence / 100.0)
		blocks = append(blocks, Block{Text: text, Confidence: conf, Polygon: rectPolygon(b.Box)})
		lines = append(lines, text)
		sum += conf
	}

	var confidence float64
	if len(blocks) > 0 {
		confidence = sum / float64(len(blocks))
	}
	return &Candidate{
		RawText:    strings.Join(lines, "\n"),
		Confidence: confidence,
		Blocks:     blocks,
		Engine:     t.Name(),
	}, nil
}

// Probe initializes a client against a blank page, which fails when the
// tessdata for the configured languages is missing.
func (t *Tesseract) Probe(ctx context.Context) Availability {
	data, err := encodePNG(image.NewGray(image.Rect(0, 0, 32, 32)))
	if err != nil {
		return Unavailable(err.Error())
	}
	client, err := t.newClient()
	if err != nil {
		return Unavailable(err.Error())
	}
	defer client.Close()

	if err := client.SetImageFromBytes(data); err != nil {
		return Unavailable(err.Error())
	}
	if _, err := client.Text(); err != nil {
		return Unavailable(fmt.Sprintf("initializing tesseract: %v", err))
	}
	return Available()
}

func (t *Tesseract) newClient() (*gosseract.Client, error) {
	client := t.clientFactory()
	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting languages: %w", err)
		}
	}
	return client, nil
}
