package preprocess

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// SourceImage is a decoded upload flattened to opaque RGB. It is never
// modified after construction; every variant is derived into a fresh buffer.
type SourceImage struct {
	img *image.NRGBA
}

// NewSourceImage normalizes img by compositing it onto a white background,
// dropping any transparency.
func NewSourceImage(img image.Image) *SourceImage {
	b := img.Bounds()
	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return &SourceImage{img: imaging.Overlay(background, img, image.Pt(0, 0), 1.0)}
}

// Image returns the normalized pixels. Callers must treat it as read-only.
func (s *SourceImage) Image() image.Image { return s.img }

func (s *SourceImage) Width() int { return s.img.Bounds().Dx() }

func (s *SourceImage) Height() int { return s.img.Bounds().Dy() }
