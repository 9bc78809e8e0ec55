package scan

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/zombor/catalog-ocr/internal/catalog"
)

var (
	// ErrNotFound is returned when no scan exists for an ID.
	ErrNotFound = errors.New("scan not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid scan status transition")
)

// Status is the lifecycle state of a scan job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCorrected  Status = "corrected"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusCorrected},
}

// CanTransition reports whether a job in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// Terminal reports whether no further automatic transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCorrected
}

// ExtractedData holds the parsed products of a scan
type ExtractedData struct {
	Products []catalog.Product `json:"products"`
}

// Job represents one uploaded file and its OCR outcome
type Job struct {
	ID              string         `json:"id"`
	Filename        string         `json:"filename"`
	FilePath        string         `json:"file_path"`
	FileSize        int            `json:"file_size"`
	FileType        string         `json:"file_type"`
	Status          Status         `json:"status"`
	OCRText         string         `json:"ocr_text,omitempty"`
	ExtractedData   *ExtractedData `json:"extracted_data"`
	MethodUsed      string         `json:"method_used,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ProcessingTime  float64        `json:"processing_time,omitempty"` // seconds
	ItemsExtracted  int            `json:"items_extracted"`
	ConfidenceScore *float64       `json:"confidence_score"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at"`
}

// Products returns the job's extracted products, or nil if none were stored.
func (j *Job) Products() []catalog.Product {
	if j.ExtractedData == nil {
		return nil
	}
	return j.ExtractedData.Products
}

func (j *Job) transition(next Status, now time.Time) error {
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = now
	return nil
}
