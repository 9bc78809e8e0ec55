package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultCondition is assigned to every parsed product until a user edits it.
const DefaultCondition = "New"

const minNameLength = 3

var priceRegex = regexp.MustCompile(`\$?\d+[.,]\d{2}`)

// Product is one catalog entry derived from a single OCR line.
type Product struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
	// RawLine is the untouched source line, kept for audit and manual correction.
	RawLine   string `json:"description"`
	Condition string `json:"condition"`
	Category  string `json:"category"`
}

// Parse extracts products from OCR text, one candidate per non-empty line.
// It never fails; lines without a usable name are dropped.
func Parse(raw string) []Product {
	products := []Product{}
	for _, line := range strings.Split(raw, "\n") {
		if p, ok := ParseLine(line); ok {
			products = append(products, p)
		}
	}
	return products
}

// ParseLine parses a single line. Only the first price-like token is used;
// any later one stays in the name.
func ParseLine(line string) (Product, bool) {
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) < minNameLength {
		return Product{}, false
	}

	name := line
	var price *float64
	if loc := priceRegex.FindStringIndex(line); loc != nil {
		price = parsePrice(line[loc[0]:loc[1]])
		name = strings.TrimSpace(line[:loc[0]] + line[loc[1]:])
	}
	if utf8.RuneCountInString(name) < minNameLength {
		return Product{}, false
	}

	return Product{
		Name:      name,
		Price:     price,
		RawLine:   line,
		Condition: DefaultCondition,
	}, true
}

// parsePrice drops the currency sign and any comma, so "12,50" reads as 1250.
func parsePrice(token string) *float64 {
	token = strings.ReplaceAll(token, "$", "")
	token = strings.ReplaceAll(token, ",", "")
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return nil
	}
	return &v
}
