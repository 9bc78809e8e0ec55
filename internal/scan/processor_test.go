package scan

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"iter"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/catalog-ocr/internal/preprocess"
	"github.com/zombor/catalog-ocr/internal/scanning"
)

type fakeRecognizer struct {
	text    string
	err     error
	labels  []string
	workDir string
}

func (f *fakeRecognizer) Select(ctx context.Context, variants iter.Seq2[string, image.Image]) (*scanning.Selection, error) {
	f.workDir, _ = scanning.WorkDirFromContext(ctx)
	for label := range variants {
		f.labels = append(f.labels, label)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &scanning.Selection{
		Candidate:  &scanning.Candidate{RawText: f.text, Confidence: 0.8, Engine: "fake"},
		Variant:    f.labels[0],
		MethodUsed: "fake_" + f.labels[0],
	}, nil
}

func pngBytes(w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Processor", func() {
	var (
		recognizer *fakeRecognizer
		processor  *Processor
		workDir    string
	)

	BeforeEach(func() {
		workDir = GinkgoT().TempDir()
		recognizer = &fakeRecognizer{text: "Solar Panel 300W $149.99\nBattery Pack 12V 89.50\nx\n"}
		processor = NewProcessor(recognizer, workDir)
	})

	It("should parse the selected text into products", func() {
		result, err := processor.Process(context.Background(), pngBytes(40, 30), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Products).To(HaveLen(2))
		Expect(result.Selection.MethodUsed).To(Equal("fake_original"))
		Expect(result.Elapsed).To(BeNumerically(">=", 0))
	})

	It("should hand every variant to the recognizer", func() {
		_, err := processor.Process(context.Background(), pngBytes(40, 30), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(recognizer.labels).To(Equal(preprocess.Labels(40, 30)))
	})

	It("should give the scan a private work dir and remove it afterwards", func() {
		_, err := processor.Process(context.Background(), pngBytes(8, 8), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(recognizer.workDir).To(HavePrefix(workDir))
		Expect(recognizer.workDir).NotTo(Equal(workDir))
		_, statErr := os.Stat(recognizer.workDir)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	It("should fail undecodable uploads before recognition", func() {
		_, err := processor.Process(context.Background(), []byte("not an image"), "image/png")
		Expect(err).To(MatchError(preprocess.ErrUnsupportedFormat))
		Expect(recognizer.labels).To(BeEmpty())
	})

	It("should propagate recognition failure", func() {
		recognizer.err = scanning.ErrAllEnginesFailed
		_, err := processor.Process(context.Background(), pngBytes(8, 8), "image/png")
		Expect(err).To(MatchError(scanning.ErrAllEnginesFailed))
	})

	It("should return no products when nothing parses", func() {
		recognizer.text = ""
		result, err := processor.Process(context.Background(), pngBytes(8, 8), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Products).To(BeEmpty())
	})
})

var _ = Describe("Processor with real selection", func() {
	It("should mark a job failed end to end when every engine fails", func() {
		failing := scanning.NewSelector(scanning.Engines{Primary: erroringEngine{}})
		db := newMockDB()
		service := NewService(db, NewProcessor(failing, GinkgoT().TempDir()), newMockStorage())

		job, err := service.Upload(context.Background(), "c.png", pngBytes(8, 8), "image/png")
		Expect(err).To(MatchError(scanning.ErrAllEnginesFailed))
		Expect(job.Status).To(Equal(StatusFailed))
		Expect(job.ErrorMessage).NotTo(BeEmpty())
		Expect(job.ExtractedData).To(BeNil())
	})
})

type erroringEngine struct{}

func (erroringEngine) Name() string { return "broken" }

func (erroringEngine) Recognize(context.Context, image.Image) (*scanning.Candidate, error) {
	return nil, errors.New("engine crashed")
}
