package visualize

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColormap(t *testing.T) {
	assert.Equal(t, inferno[0], Colormap(-1))
	assert.Equal(t, inferno[0], Colormap(-5), "values below -1 are clamped")
	assert.Equal(t, inferno[len(inferno)-1], Colormap(1))
	assert.Equal(t, inferno[len(inferno)-1], Colormap(9))
}

func TestRender(t *testing.T) {
	m := [][]float32{{-1, 1}, {1, -1}}

	t.Run("cells follow frames on x and coefficients on y", func(t *testing.T) {
		img, err := Render(m, Options{Width: 4, Height: 4})
		require.NoError(t, err)

		assert.Equal(t, inferno[0], img.RGBAAt(0, 0))
		assert.Equal(t, inferno[len(inferno)-1], img.RGBAAt(0, 3))
		assert.Equal(t, inferno[len(inferno)-1], img.RGBAAt(3, 0))
	})

	t.Run("silent frames can be skipped", func(t *testing.T) {
		img, err := Render(m, Options{Width: 4, Height: 4, SilenceMarkers: []bool{true, false}, SkipSilent: true})
		require.NoError(t, err)

		assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(0, 0))
		assert.Equal(t, inferno[len(inferno)-1], img.RGBAAt(3, 0))
	})

	t.Run("silent frames fill their whole column", func(t *testing.T) {
		img, err := Render(m, Options{Width: 4, Height: 4, SilenceMarkers: []bool{true, false}})
		require.NoError(t, err)

		for x := 0; x < 2; x++ {
			for y := 0; y < 4; y++ {
				assert.Equal(t, silenceColor, img.RGBAAt(x, y), "pixel %d,%d", x, y)
			}
		}
		assert.Equal(t, inferno[len(inferno)-1], img.RGBAAt(2, 0))
	})

	t.Run("default size scales with the matrix", func(t *testing.T) {
		img, err := Render(m, Options{})
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
		assert.Equal(t, 32, img.Bounds().Dy())
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := Render(nil, Options{})
		assert.Error(t, err)

		_, err = Render(m, Options{SilenceMarkers: []bool{true}})
		assert.Error(t, err)
	})
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, [][]float32{{0}}, Options{Width: 3, Height: 2}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
}
