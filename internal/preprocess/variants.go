package preprocess

import (
	"image"
	"image/color"
	"iter"

	"github.com/disintegration/imaging"
)

// Variant labels, in generation order.
const (
	LabelOriginal      = "original"
	LabelSharpened     = "sharpened"
	LabelEnhancedSharp = "enhanced_sharp"
	LabelContrastSharp = "contrast_sharp"
	Label150PctSharp   = "150pct_sharp"
	Label200PctSharp   = "200pct_sharp"
)

const contrastFactor = 1.5

// sharpenKernel is the classic 3x3 edge-sharpening kernel (centre 32, ring -2),
// normalized by its sum of 16.
var sharpenKernel = [9]float64{
	-2, -2, -2,
	-2, 32, -2,
	-2, -2, -2,
}

// Variant is one transformed copy of the source image.
type Variant struct {
	Label string
	Image image.Image
}

type recipe struct {
	label string
	// include gates the recipe on the source dimensions; nil means always.
	include func(w, h int) bool
	apply   func(src *image.NRGBA) image.Image
}

var recipes = []recipe{
	{
		label: LabelOriginal,
		apply: func(src *image.NRGBA) image.Image { return imaging.Clone(src) },
	},
	{
		label: LabelSharpened,
		apply: func(src *image.NRGBA) image.Image { return sharpen(src) },
	},
	{
		label: LabelEnhancedSharp,
		apply: func(src *image.NRGBA) image.Image { return sharpen(sharpen(src)) },
	},
	{
		label: LabelContrastSharp,
		apply: func(src *image.NRGBA) image.Image { return sharpen(enhanceContrast(src, contrastFactor)) },
	},
	{
		label:   Label150PctSharp,
		include: func(w, h int) bool { return w < 2000 || h < 2000 },
		apply:   func(src *image.NRGBA) image.Image { return sharpen(upscale(src, 1.5)) },
	},
	{
		label:   Label200PctSharp,
		include: func(w, h int) bool { return w < 1500 || h < 1500 },
		apply:   func(src *image.NRGBA) image.Image { return sharpen(upscale(src, 2.0)) },
	},
}

// Generate yields the fixed menu of preprocessed variants for src. Each
// variant is computed only when the consumer pulls it, and ranging over the
// sequence again recomputes every variant from scratch.
func Generate(src *SourceImage) iter.Seq2[string, image.Image] {
	return func(yield func(string, image.Image) bool) {
		w, h := src.Width(), src.Height()
		for _, r := range recipes {
			if r.include != nil && !r.include(w, h) {
				continue
			}
			if !yield(r.label, r.apply(src.img)) {
				return
			}
		}
	}
}

// Labels lists the variant labels Generate would emit for an image of the
// given size, without producing any pixels.
func Labels(w, h int) []string {
	labels := make([]string, 0, len(recipes))
	for _, r := range recipes {
		if r.include == nil || r.include(w, h) {
			labels = append(labels, r.label)
		}
	}
	return labels
}

// Collect materializes a variant sequence in order.
func Collect(seq iter.Seq2[string, image.Image]) []Variant {
	var variants []Variant
	for label, img := range seq {
		variants = append(variants, Variant{Label: label, Image: img})
	}
	return variants
}

func sharpen(img image.Image) *image.NRGBA {
	return imaging.Convolve3x3(img, sharpenKernel, &imaging.ConvolveOptions{Normalize: true})
}

func upscale(img *image.NRGBA, factor float64) *image.NRGBA {
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// enhanceContrast scales each channel's distance from the image's mean
// luminance by factor.
func enhanceContrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean := meanLuminance(img)
	stretch := func(v uint8) uint8 {
		return clamp(mean + factor*(float64(v)-mean))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: stretch(c.R), G: stretch(c.G), B: stretch(c.B), A: c.A}
	})
}

// meanLuminance uses ITU-R 601 luma weights, rounded to an integer level.
func meanLuminance(img *image.NRGBA) float64 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			sum += (299*float64(row[x]) + 587*float64(row[x+1]) + 114*float64(row[x+2])) / 1000
		}
	}
	return float64(int(sum/float64(n) + 0.5))
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
