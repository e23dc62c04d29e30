package pagekit

import (
	"image"
	stddraw "image/draw"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const bytesPerPixel = 4 // RGBA

// imageCost returns the byte cost of an image as width*height*bytesPerPixel,
// independent of the source pixel format. This matches what the image costs
// once normalized to RGBA.
func imageCost(img image.Image) int64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * bytesPerPixel
}

// toRGBA normalizes an image to *image.RGBA, copying only when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

// cloneRGBA deep-copies an RGBA image. The page cache hands out clones so
// callers never alias cache-owned pixels.
func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// scaleImage resamples src to width x height. The quality flag selects the
// interpolator: CatmullRom for final-quality renders, ApproxBiLinear for
// fast interactive ones.
func scaleImage(src image.Image, width, height int, highQuality bool) *image.RGBA {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return toRGBA(src)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	var scaler draw.Scaler = draw.ApproxBiLinear
	if highQuality {
		scaler = draw.CatmullRom
	}
	scaler.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// rotateImage rotates src clockwise by a right angle (0, 90, 180 or 270
// degrees). Right-angle rotation is a lossless coordinate transform, so the
// nearest-neighbor kernel is exact here.
func rotateImage(src image.Image, degrees int) *image.RGBA {
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	minX, minY := float64(b.Min.X), float64(b.Min.Y)

	var s2d f64.Aff3
	var dst *image.RGBA
	switch degrees {
	case 90:
		s2d = f64.Aff3{0, -1, h + minY, 1, 0, -minX}
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	case 180:
		s2d = f64.Aff3{-1, 0, w + minX, 0, -1, h + minY}
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	case 270:
		s2d = f64.Aff3{0, 1, -minY, -1, 0, w + minX}
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	default:
		return toRGBA(src)
	}
	draw.NearestNeighbor.Transform(dst, s2d, src, b, draw.Src, nil)
	return dst
}

// validRotation reports whether degrees is one of the supported right angles.
func validRotation(degrees int) bool {
	switch degrees {
	case 0, 90, 180, 270:
		return true
	}
	return false
}
