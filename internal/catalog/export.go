package catalog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for an export format we cannot render.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is a listing export format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "txt"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatSQL  Format = "sql"
)

// ParseFormat accepts a case-insensitive format name; empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatTSV, FormatJSON, FormatXLSX, FormatSQL:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType is the MIME type of an export in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatTSV, FormatSQL:
		return "text/plain; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// exportHeaders follow the marketplace bulk-upload template.
var exportHeaders = []string{"TITLE", "PRICE", "CONDITION", "DESCRIPTION", "CATEGORY", "OFFER SHIPPING"}

const offerShipping = "No"

// Listing is the export row shape.
type Listing struct {
	Title         string   `json:"title"`
	Price         *float64 `json:"price"`
	Condition     string   `json:"condition"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	OfferShipping string   `json:"offer_shipping"`
}

func toListings(products []Product) []Listing {
	listings := make([]Listing, 0, len(products))
	for _, p := range products {
		listings = append(listings, Listing{
			Title:         p.Name,
			Price:         p.Price,
			Condition:     p.Condition,
			Description:   p.RawLine,
			Category:      p.Category,
			OfferShipping: offerShipping,
		})
	}
	return listings
}

func (l Listing) row() []string {
	price := ""
	if l.Price != nil {
		price = strconv.FormatFloat(*l.Price, 'f', 2, 64)
	}
	return []string{l.Title, price, l.Condition, l.Description, l.Category, l.OfferShipping}
}

// Export renders products as a listing file and returns it with its content type.
func Export(products []Product, format Format) ([]byte, string, error) {
	listings := toListings(products)

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = exportDelimited(listings, ',')
	case FormatTSV:
		data, err = exportDelimited(listings, '\t')
	case FormatJSON:
		data, err = json.MarshalIndent(map[string]any{"listings": listings}, "", "  ")
	case FormatXLSX:
		data, err = exportXLSX(listings)
	case FormatSQL:
		data = exportSQL(listings, time.Now())
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("export %s: %w", format, err)
	}
	return data, format.ContentType(), nil
}

func exportDelimited(listings []Listing, comma rune) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma
	if err := w.Write(exportHeaders); err != nil {
		return nil, err
	}
	for _, l := range listings {
		if err := w.Write(l.row()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportXLSX(listings []Listing) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Marketplace Listings"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
	})
	if err != nil {
		return nil, err
	}
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	_ = f.SetCellStyle(sheet, "A1", "F1", headerStyle)

	for i, l := range listings {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, l.Title)
		if l.Price != nil {
			write(2, *l.Price)
		} else {
			write(2, "")
		}
		write(3, l.Condition)
		write(4, l.Description)
		write(5, l.Category)
		write(6, l.OfferShipping)
	}

	_ = f.SetColWidth(sheet, "A", "A", 50) // title
	_ = f.SetColWidth(sheet, "B", "B", 12) // price
	_ = f.SetColWidth(sheet, "C", "C", 20) // condition
	_ = f.SetColWidth(sheet, "D", "D", 60) // description
	_ = f.SetColWidth(sheet, "E", "E", 20) // category
	_ = f.SetColWidth(sheet, "F", "F", 15) // shipping

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

const sqlTable = `CREATE TABLE IF NOT EXISTS marketplace_listings (
    id VARCHAR(36) PRIMARY KEY,
    title VARCHAR(150) NOT NULL,
    price DECIMAL(10, 2),
    condition VARCHAR(50) NOT NULL,
    description TEXT,
    category VARCHAR(100),
    offer_shipping VARCHAR(3),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

`

// exportSQL renders a table definition plus one INSERT per listing. Each row
// gets a fresh UUID; a missing price is written as NULL.
func exportSQL(listings []Listing, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("-- Marketplace Listings Export\n")
	fmt.Fprintf(&b, "-- Generated: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "-- Total listings: %d\n\n", len(listings))
	b.WriteString(sqlTable)

	for _, l := range listings {
		price := "NULL"
		if l.Price != nil {
			price = strconv.FormatFloat(*l.Price, 'f', 2, 64)
		}
		b.WriteString("INSERT INTO marketplace_listings ")
		b.WriteString("(id, title, price, condition, description, category, offer_shipping) VALUES (\n")
		fmt.Fprintf(&b, "    %s,\n", sqlString(uuid.NewString()))
		fmt.Fprintf(&b, "    %s,\n", sqlString(l.Title))
		fmt.Fprintf(&b, "    %s,\n", price)
		fmt.Fprintf(&b, "    %s,\n", sqlString(l.Condition))
		fmt.Fprintf(&b, "    %s,\n", sqlString(l.Description))
		fmt.Fprintf(&b, "    %s,\n", sqlString(l.Category))
		fmt.Fprintf(&b, "    %s\n", sqlString(l.OfferShipping))
		b.WriteString(");\n\n")
	}
	return []byte(b.String())
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
