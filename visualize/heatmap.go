// Package visualize renders MFCC matrices as PNG heatmaps.
package visualize

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
)

// inferno anchor colours, evenly spaced over [0, 1]
var inferno = []color.RGBA{
	{0, 0, 4, 255},
	{40, 11, 84, 255},
	{101, 21, 110, 255},
	{159, 42, 99, 255},
	{212, 72, 66, 255},
	{245, 125, 21, 255},
	{250, 193, 39, 255},
	{252, 255, 164, 255},
}

var silenceColor = color.RGBA{255, 255, 0, 255}

type Options struct {
	Width  int
	Height int
	// SilenceMarkers, when set, paints silent frame columns yellow.
	SilenceMarkers []bool
	// SkipSilent leaves silent frames blank instead of drawing them.
	SkipSilent bool
}

// Colormap maps v, clamped to [-1, 1], onto the inferno palette.
func Colormap(v float32) color.RGBA {
	x := (math.Max(-1, math.Min(1, float64(v))) + 1) / 2
	pos := x * float64(len(inferno)-1)
	i := int(pos)
	if i >= len(inferno)-1 {
		return inferno[len(inferno)-1]
	}

	frac := pos - float64(i)
	a, b := inferno[i], inferno[i+1]
	lerp := func(p, q uint8) uint8 {
		return uint8(math.Round(float64(p) + (float64(q)-float64(p))*frac))
	}

	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

// Render draws m with frames along x and coefficients along y (c0 at the top).
func Render(m [][]float32, opts Options) (*image.RGBA, error) {
	if len(m) == 0 || len(m[0]) == 0 {
		return nil, fmt.Errorf("visualize: empty matrix")
	}
	if opts.SilenceMarkers != nil && len(opts.SilenceMarkers) != len(m) {
		return nil, fmt.Errorf("visualize: %d silence markers for %d frames", len(opts.SilenceMarkers), len(m))
	}

	frames, coeffs := len(m), len(m[0])
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = frames * 4
	}
	if height <= 0 {
		height = coeffs * 16
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	for i := 0; i < frames; i++ {
		x0, x1 := i*width/frames, (i+1)*width/frames
		silent := opts.SilenceMarkers != nil && opts.SilenceMarkers[i]

		if silent {
			if !opts.SkipSilent {
				draw.Draw(img, image.Rect(x0, 0, x1, height), &image.Uniform{C: silenceColor}, image.Point{}, draw.Src)
			}
			continue
		}

		for j := 0; j < coeffs && j < len(m[i]); j++ {
			y0, y1 := j*height/coeffs, (j+1)*height/coeffs
			draw.Draw(img, image.Rect(x0, y0, x1, y1), &image.Uniform{C: Colormap(m[i][j])}, image.Point{}, draw.Src)
		}
	}

	return img, nil
}

// WritePNG renders m and encodes it to w.
func WritePNG(w io.Writer, m [][]float32, opts Options) error {
	img, err := Render(m, opts)
	if err != nil {
		return err
	}

	return png.Encode(w, img)
}
