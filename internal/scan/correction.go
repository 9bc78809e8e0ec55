package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/catalog-ocr/internal/catalog"
)

// ErrInvalidCorrection is returned when a correction body fails validation.
var ErrInvalidCorrection = errors.New("invalid correction")

const correctionSchema = `{
  "type": "object",
  "required": ["corrected_data"],
  "properties": {
    "corrected_data": {
      "type": "object",
      "required": ["products"],
      "properties": {
        "products": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "price": {"type": ["number", "null"], "minimum": 0},
              "description": {"type": "string"},
              "condition": {"type": "string"},
              "category": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var compileCorrectionSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("correction.json", bytes.NewReader([]byte(correctionSchema))); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("correction.json")
})

type correctionRequest struct {
	CorrectedData ExtractedData `json:"corrected_data"`
}

// DecodeCorrection validates a manual-correction body and returns its products.
// Products missing a condition get the default one.
func DecodeCorrection(body []byte) ([]catalog.Product, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCorrection, err)
	}
	schema, err := compileCorrectionSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCorrection, err)
	}

	var req correctionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCorrection, err)
	}
	products := req.CorrectedData.Products
	for i := range products {
		if products[i].Condition == "" {
			products[i].Condition = catalog.DefaultCondition
		}
	}
	return products, nil
}
