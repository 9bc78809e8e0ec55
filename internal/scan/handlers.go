package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/catalog-ocr/internal/catalog"
	"github.com/zombor/catalog-ocr/internal/preprocess"
)

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body, with optional details
func writeError(w http.ResponseWriter, code int, message string, details error) {
	body := map[string]string{"error": message}
	if details != nil {
		body["details"] = details.Error()
	}
	writeJSON(w, code, body)
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNoProducts):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCorrection), errors.Is(err, catalog.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth reports the engine availability decided at startup
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	ready := false
	for _, a := range s.engines {
		ready = ready || a.IsAvailable()
	}
	if !ready {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"engines": s.engines,
	})
}

// handleUploadScan handles file upload and inline OCR
func (s *Server) handleUploadScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = fmt.Sprintf("File is too large. Maximum size is %dMB.", s.maxUploadBytes>>20)
		}
		writeError(w, http.StatusBadRequest, errorMsg, nil)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file provided", nil)
		return
	}
	defer f.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected", nil)
		return
	}
	if header.Size > s.maxUploadBytes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File is too large. Maximum size is %dMB.", s.maxUploadBytes>>20), nil)
		return
	}

	extType := preprocess.ContentTypeForExt(strings.ToLower(filepath.Ext(header.Filename)))
	if extType == "application/octet-stream" {
		writeError(w, http.StatusBadRequest, "File type not allowed", nil)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.", nil)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = extType
	}

	job, err := s.service.Upload(r.Context(), header.Filename, data, contentType)
	if err != nil {
		if job != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "OCR processing failed",
				"details": job.ErrorMessage,
				"scan":    job,
			})
			return
		}
		slog.Error("Upload failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Upload failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// handleListScans returns one page of scan history
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	result, err := s.service.List(page, perPage)
	if err != nil {
		slog.Error("Error listing scans", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetScan returns a single scan
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Get(r.PathValue("id"))
	if err != nil {
		code := statusFor(err)
		msg := "Failed to get scan"
		if code == http.StatusNotFound {
			msg = "Scan not found"
		}
		writeError(w, code, msg, nil)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetScanFile returns the uploaded file for a scan
func (s *Server) handleGetScanFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.File(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found", nil)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleCorrectScan stores manually corrected products
func (s *Server) handleCorrectScan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	products, err := DecodeCorrection(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	job, err := s.service.Correct(r.PathValue("id"), products)
	if err != nil {
		slog.Error("Error correcting scan", "scan_id", r.PathValue("id"), "error", err)
		writeError(w, statusFor(err), "Correction failed", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleDeleteScan deletes a scan
func (s *Server) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.PathValue("id")); err != nil {
		code := statusFor(err)
		msg := "Deletion failed"
		if code == http.StatusNotFound {
			msg = "Scan not found"
		}
		writeError(w, code, msg, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExportScan downloads a scan's products as a listing file
func (s *Server) handleExportScan(w http.ResponseWriter, r *http.Request) {
	format, err := catalog.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported export format", err)
		return
	}

	data, contentType, err := s.service.Export(r.PathValue("id"), format)
	if err != nil {
		writeError(w, statusFor(err), "Export failed", err)
		return
	}

	filename := fmt.Sprintf("marketplace-listings-%s.%s", time.Now().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}
