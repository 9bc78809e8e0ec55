package scanning

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func renderText(lines ...string) image.Image {
	img := image.NewGray(image.Rect(0, 0, 400, 30+20*len(lines)))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		d.Dot = fixed.P(10, 25+20*i)
		d.DrawString(l)
	}
	return img
}

var _ = Describe("Tesseract", func() {
	var engine *Tesseract

	BeforeEach(func() {
		engine = NewTesseract("eng")
		if a := engine.Probe(context.Background()); !a.IsAvailable() {
			Skip("libtesseract not usable: " + a.Reason)
		}
	})

	It("should recognize rendered lines with normalized confidence", func() {
		cand, err := engine.Recognize(context.Background(), renderText("SOLAR PANEL 149.99", "BATTERY PACK 89.50"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cand.Engine).To(Equal("tesseract"))
		Expect(cand.Confidence).To(BeNumerically(">=", 0))
		Expect(cand.Confidence).To(BeNumerically("<=", 1))
		for _, b := range cand.Blocks {
			Expect(b.Polygon).To(HaveLen(4))
		}
	})

	It("should succeed with no text on a blank page", func() {
		cand, err := engine.Recognize(context.Background(), renderText())
		Expect(err).NotTo(HaveOccurred())
		Expect(Score(cand)).To(BeNumerically(">=", 0))
	})
})
