package scan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/catalog-ocr/internal/catalog"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// ErrNoProducts is returned when exporting a scan that has no extracted data.
var ErrNoProducts = errors.New("scan has no extracted products")

// Pipeline runs OCR and parsing on an uploaded file
type Pipeline interface {
	Process(ctx context.Context, data []byte, contentType string) (*Result, error)
}

// IDGenerator generates unique IDs for scans
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDv4 IDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles scan lifecycle operations
type Service struct {
	db          DB
	pipeline    Pipeline
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, pipeline Pipeline, storage Storage) *Service {
	return &Service{
		db:          db,
		pipeline:    pipeline,
		storage:     storage,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, pipeline Pipeline, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		pipeline:    pipeline,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "scan"
	}
	return base + ext
}

// Upload stores the file, records a job and runs OCR inline. A failed scan
// is persisted as failed and returned together with the processing error.
func (s *Service) Upload(ctx context.Context, filename string, data []byte, contentType string) (*Job, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	job := &Job{
		ID:        id,
		Filename:  filename,
		FilePath:  savedPath,
		FileSize:  len(data),
		FileType:  contentType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := job.transition(StatusProcessing, now); err != nil {
		return nil, err
	}
	if err := s.db.Create(job); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving scan to database: %w", err)
	}

	slog.Info("Processing scan", "scan_id", id, "filename", filename, "content_type", contentType, "file_size", len(data))
	result, procErr := s.pipeline.Process(ctx, data, contentType)

	now = s.timeSource.Now()
	if procErr != nil {
		slog.Error("OCR processing failed",
			"scan_id", id,
			"filename", filename,
			"content_type", contentType,
			"error", procErr,
		)
		if err := job.transition(StatusFailed, now); err != nil {
			return nil, err
		}
		job.ErrorMessage = procErr.Error()
		if err := s.db.Update(job); err != nil {
			slog.Error("Failed to record scan failure", "scan_id", id, "error", err)
		}
		return job, fmt.Errorf("processing scan: %w", procErr)
	}

	summary := result.Selection.Summary()
	confidence := summary.Confidence
	job.OCRText = summary.RawText
	job.MethodUsed = summary.MethodUsed
	job.ConfidenceScore = &confidence
	job.ExtractedData = &ExtractedData{Products: result.Products}
	job.ItemsExtracted = len(result.Products)
	job.ProcessingTime = result.Elapsed.Seconds()
	job.CompletedAt = &now
	if err := job.transition(StatusCompleted, now); err != nil {
		return nil, err
	}
	if err := s.db.Update(job); err != nil {
		return nil, fmt.Errorf("updating scan: %w", err)
	}

	slog.Info("OCR completed",
		"scan_id", id,
		"products", job.ItemsExtracted,
		"confidence", confidence,
		"method", job.MethodUsed,
		"processing_time", job.ProcessingTime,
	)
	return job, nil
}

// Get retrieves a scan by ID
func (s *Service) Get(id string) (*Job, error) {
	job, err := s.db.Get(id)
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	return job, nil
}

// Page is one page of scan history
type Page struct {
	Scans   []*Job `json:"scans"`
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Pages   int    `json:"pages"`
}

// List returns scans newest first. perPage is capped at 100; non-positive
// arguments fall back to the defaults.
func (s *Service) List(page, perPage int) (*Page, error) {
	jobs, err := s.db.List()
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	perPage = min(perPage, maxPerPage)

	slices.SortFunc(jobs, func(a, b *Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	total := len(jobs)
	start := total
	// Compare by division so a huge page cannot overflow the offset.
	if page-1 <= total/perPage {
		start = min((page-1)*perPage, total)
	}
	end := min(start+perPage, total)

	return &Page{
		Scans:   jobs[start:end],
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   (total + perPage - 1) / perPage,
	}, nil
}

// Correct replaces the products of a completed scan with a manual edit.
func (s *Service) Correct(id string, products []catalog.Product) (*Job, error) {
	job, err := s.db.Get(id)
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	if err := job.transition(StatusCorrected, s.timeSource.Now()); err != nil {
		return nil, err
	}
	if products == nil {
		products = []catalog.Product{}
	}
	job.ExtractedData = &ExtractedData{Products: products}
	job.ItemsExtracted = len(products)
	if err := s.db.Update(job); err != nil {
		return nil, fmt.Errorf("updating scan: %w", err)
	}
	return job, nil
}

// Delete removes a scan and its file
func (s *Service) Delete(id string) error {
	job, err := s.db.Get(id)
	if err != nil {
		return fmt.Errorf("getting scan for deletion: %w", err)
	}

	if err := s.storage.Delete(job.FilePath); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "file_path", job.FilePath, "error", err)
	}

	if err := s.db.Delete(id); err != nil {
		return fmt.Errorf("deleting scan from database: %w", err)
	}
	return nil
}

// File retrieves the originally uploaded file for a scan
func (s *Service) File(id string) ([]byte, string, error) {
	job, err := s.db.Get(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan: %w", err)
	}

	data, err := s.storage.Get(job.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan file: %w", err)
	}
	return data, job.FileType, nil
}

// Export renders a scan's products as a listing file
func (s *Service) Export(id string, format catalog.Format) ([]byte, string, error) {
	job, err := s.db.Get(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan: %w", err)
	}
	if job.ExtractedData == nil {
		return nil, "", fmt.Errorf("%w: scan is %s", ErrNoProducts, job.Status)
	}
	return catalog.Export(job.Products(), format)
}
