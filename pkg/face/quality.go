package face

import (
	"image"
	"image/color"
)

// measureQuality computes the quality metrics for the chosen face.
func measureQuality(img image.Image, d Detection) Quality {
	bounds := img.Bounds()
	imgArea := bounds.Dx() * bounds.Dy()

	var boxArea float32
	if imgArea > 0 {
		boxArea = float32(area(d.Box)) / float32(imgArea)
	}

	crop := d.Box.Intersect(bounds)
	return Quality{
		BoxArea:   boxArea,
		Sharpness: sharpness(img, crop),
		Pose:      d.Pose,
	}
}

// sharpness estimates focus quality as the variance of a 4-neighbor
// Laplacian over the grayscale face crop, squashed into [0, 1].
//
// Blurred crops have low local contrast and therefore a small Laplacian
// variance; the divisor below maps typical webcam values so that an
// in-focus face lands around 0.5-0.9.
func sharpness(img image.Image, r image.Rectangle) float32 {
	if r.Dx() < 3 || r.Dy() < 3 {
		return 0
	}

	w, h := r.Dx(), r.Dy()
	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray[y*w+x] = luminance(img.At(r.Min.X+x, r.Min.Y+y))
		}
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := 4*gray[y*w+x] - gray[y*w+x-1] - gray[y*w+x+1] - gray[(y-1)*w+x] - gray[(y+1)*w+x]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean

	// Squash: variance 0 → 0, ~500 → ~0.83, unbounded → 1.
	s := variance / (variance + 100)
	if s < 0 {
		return 0
	}
	return float32(s)
}

func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	// ITU-R BT.601 weights on 16-bit channel values.
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
}
