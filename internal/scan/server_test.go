package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/catalog-ocr/internal/scanning"
)

func multipartBody(field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(h)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		pipeline    *mockPipeline
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
		opts        []ServerOption
	)

	// do sends one request through the server under test
	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		ghttpServer.AppendHandlers(server.ServeHTTP)
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	upload := func() *http.Response {
		body, ct := multipartBody("file", "catalog.png", "image/png", []byte("png-bytes"))
		return do(http.MethodPost, "/api/scans", body, ct)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		pipeline = newMockPipeline()
		opts = nil
		ghttpServer = ghttp.NewServer()
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, pipeline, storage, &sequenceIDGenerator{}, &fixedTimeSource{})
		server = NewServerWithMux(service, http.NewServeMux(), opts...)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	Describe("GET /healthz", func() {
		BeforeEach(func() {
			opts = []ServerOption{WithEngineReport(map[string]scanning.Availability{
				"tesseract":     scanning.Available(),
				"tesseract_cli": scanning.Unavailable("tesseract not found"),
			})}
		})

		It("should report engine availability", func() {
			resp := do(http.MethodGet, "/healthz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(body).To(MatchJSON(`{"status":"ok","engines":{"tesseract":"available","tesseract_cli":"unavailable: tesseract not found"}}`))
		})
	})

	Describe("POST /api/scans", func() {
		When("OCR succeeds", func() {
			It("should return 201 with the completed scan", func() {
				resp := upload()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))

				var job Job
				decodeBody(resp, &job)
				Expect(job.ID).To(Equal("scan-1"))
				Expect(job.Status).To(Equal(StatusCompleted))
				Expect(job.ItemsExtracted).To(Equal(2))
				Expect(job.FileType).To(Equal("image/png"))
			})
		})

		When("OCR fails", func() {
			BeforeEach(func() {
				pipeline.err = scanning.ErrAllEnginesFailed
			})

			It("should return 500 with the failed scan", func() {
				resp := upload()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

				var body struct {
					Error   string `json:"error"`
					Details string `json:"details"`
					Scan    Job    `json:"scan"`
				}
				decodeBody(resp, &body)
				Expect(body.Error).To(Equal("OCR processing failed"))
				Expect(body.Details).To(Equal("all OCR methods failed"))
				Expect(body.Scan.Status).To(Equal(StatusFailed))
				Expect(body.Scan.ExtractedData).To(BeNil())
			})
		})

		When("storage fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("should return 500 upload failed", func() {
				resp := upload()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["error"]).To(Equal("Upload failed"))
			})
		})

		When("the file field is missing", func() {
			It("should return 400", func() {
				body, ct := multipartBody("other", "catalog.png", "image/png", []byte("x"))
				resp := do(http.MethodPost, "/api/scans", body, ct)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the extension is not allowed", func() {
			It("should return 400 without processing", func() {
				body, ct := multipartBody("file", "notes.txt", "text/plain", []byte("x"))
				resp := do(http.MethodPost, "/api/scans", body, ct)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
				Expect(pipeline.calls).To(BeZero())
			})
		})

		When("the file is too large", func() {
			BeforeEach(func() {
				opts = []ServerOption{WithMaxUploadBytes(1 << 20)}
			})

			It("should return 400", func() {
				body, ct := multipartBody("file", "big.png", "image/png", bytes.Repeat([]byte("x"), 3<<19))
				resp := do(http.MethodPost, "/api/scans", body, ct)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
				Expect(pipeline.calls).To(BeZero())
			})
		})

		When("the part has no content type", func() {
			It("should infer it from the extension", func() {
				body, ct := multipartBody("file", "scan.JPG", "", []byte("x"))
				resp := do(http.MethodPost, "/api/scans", body, ct)
				var job Job
				decodeBody(resp, &job)
				Expect(job.FileType).To(Equal("image/jpeg"))
			})
		})
	})

	Describe("GET /api/scans", func() {
		It("should return a page of scans", func() {
			upload().Body.Close()
			upload().Body.Close()

			resp := do(http.MethodGet, "/api/scans?page=1&per_page=1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var page Page
			decodeBody(resp, &page)
			Expect(page.Total).To(Equal(2))
			Expect(page.Pages).To(Equal(2))
			Expect(page.Scans).To(HaveLen(1))
			Expect(page.Scans[0].ID).To(Equal("scan-2"))
		})

		It("should return an empty array when there are no scans", func() {
			resp := do(http.MethodGet, "/api/scans", nil, "")
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(body).To(MatchJSON(`{"scans":[],"total":0,"page":1,"per_page":20,"pages":0}`))
		})
	})

	Describe("GET /api/scans/{id}", func() {
		It("should return the scan", func() {
			upload().Body.Close()
			resp := do(http.MethodGet, "/api/scans/scan-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var job Job
			decodeBody(resp, &job)
			Expect(job.ID).To(Equal("scan-1"))
		})

		It("should return 404 for unknown scans", func() {
			resp := do(http.MethodGet, "/api/scans/nope", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			var body map[string]any
			decodeBody(resp, &body)
			Expect(body["error"]).To(Equal("Scan not found"))
		})

		It("should not report a database failure as not found", func() {
			db.getErr = errors.New("disk on fire")
			resp := do(http.MethodGet, "/api/scans/scan-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			var body map[string]any
			decodeBody(resp, &body)
			Expect(body["error"]).To(Equal("Failed to get scan"))
		})
	})

	Describe("GET /api/scans/{id}/file", func() {
		It("should return the uploaded file", func() {
			upload().Body.Close()
			resp := do(http.MethodGet, "/api/scans/scan-1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			Expect(string(data)).To(Equal("png-bytes"))
		})
	})

	Describe("POST /api/scans/{id}/correct", func() {
		const correction = `{"corrected_data":{"products":[{"name":"Desk Lamp","price":24}]}}`

		It("should correct a completed scan", func() {
			upload().Body.Close()
			resp := do(http.MethodPost, "/api/scans/scan-1/correct", bytes.NewBufferString(correction), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var job Job
			decodeBody(resp, &job)
			Expect(job.Status).To(Equal(StatusCorrected))
			Expect(job.Products()).To(HaveLen(1))
		})

		It("should reject an invalid body", func() {
			upload().Body.Close()
			resp := do(http.MethodPost, "/api/scans/scan-1/correct", bytes.NewBufferString(`{"products":[]}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			var body map[string]string
			decodeBody(resp, &body)
			Expect(body["error"]).To(Equal("Validation failed"))
		})

		It("should return 409 for a scan that is not completed", func() {
			pipeline.err = errors.New("boom")
			upload().Body.Close()
			resp := do(http.MethodPost, "/api/scans/scan-1/correct", bytes.NewBufferString(correction), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			resp.Body.Close()
		})

		It("should return 404 for unknown scans", func() {
			resp := do(http.MethodPost, "/api/scans/nope/correct", bytes.NewBufferString(correction), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("DELETE /api/scans/{id}", func() {
		It("should delete the scan", func() {
			upload().Body.Close()
			resp := do(http.MethodDelete, "/api/scans/scan-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(db.jobs).To(BeEmpty())
		})

		It("should return 404 for unknown scans", func() {
			resp := do(http.MethodDelete, "/api/scans/nope", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("GET /api/scans/{id}/export", func() {
		It("should download CSV by default", func() {
			upload().Body.Close()
			resp := do(http.MethodGet, "/api/scans/scan-1/export", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/csv"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring(".csv"))
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			Expect(string(data)).To(HavePrefix("TITLE,PRICE"))
		})

		It("should honor the format parameter", func() {
			upload().Body.Close()
			resp := do(http.MethodGet, "/api/scans/scan-1/export?format=json", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			resp.Body.Close()
		})

		It("should download SQL inserts", func() {
			upload().Body.Close()
			resp := do(http.MethodGet, "/api/scans/scan-1/export?format=sql", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/plain; charset=utf-8"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring(".sql"))
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			Expect(string(data)).To(ContainSubstring("INSERT INTO marketplace_listings"))
		})

		It("should reject unknown formats", func() {
			upload().Body.Close()
			resp := do(http.MethodGet, "/api/scans/scan-1/export?format=pdf", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("should return 409 for a failed scan", func() {
			pipeline.err = errors.New("boom")
			upload().Body.Close()
			resp := do(http.MethodGet, "/api/scans/scan-1/export", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			resp.Body.Close()
		})
	})

	Describe("OPTIONS preflight", func() {
		It("should answer with CORS headers", func() {
			resp := do(http.MethodOptions, "/api/scans", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
			resp.Body.Close()
		})
	})
})
