package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// transcriptionPrompt is the shared prompt used by all vision-LLM engines.
const transcriptionPrompt = `You are an OCR engine. Transcribe every line of text visible in this image of a product catalog, price list or receipt.

Return ONLY valid JSON in this exact format:
{
  "lines": [
    {"text": "Solar Panel 300W $149.99", "confidence": 0.93}
  ]
}

Important:
- Keep the lines in reading order, top to bottom
- Copy prices, units and model numbers exactly as printed; do not correct or reformat them
- "confidence" is your certainty for that line, a number between 0 and 1
- Return {"lines": []} if the image contains no text
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

var transcriptionSchema = map[string]any{
	"type":     "object",
	"required": []string{"lines"},
	"properties": map[string]any{
		"lines": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"text", "confidence"},
				"properties": map[string]any{
					"text":       map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
	},
}

var compileTranscriptionSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(transcriptionSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("transcription.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("transcription.json")
})

type transcription struct {
	Lines []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"lines"`
}

// parseTranscription turns an LLM response into a Candidate, tolerating
// markdown fences and chatter around the JSON object.
func parseTranscription(text, engine string) (*Candidate, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	schema, err := compileTranscriptionSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}

	var t transcription
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	cand := &Candidate{Engine: engine}
	lines := make([]string, 0, len(t.Lines))
	var sum float64
	for _, l := range t.Lines {
		line := strings.TrimSpace(l.Text)
		if line == "" {
			continue
		}
		cand.Blocks = append(cand.Blocks, Block{Text: line, Confidence: l.Confidence})
		lines = append(lines, line)
		sum += l.Confidence
	}
	if len(lines) > 0 {
		cand.Confidence = sum / float64(len(lines))
	}
	cand.RawText = strings.Join(lines, "\n")
	return cand, nil
}
