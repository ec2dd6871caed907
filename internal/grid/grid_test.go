package grid

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func TestCompose_Dimensions2K(t *testing.T) {
	img := solidPNG(t, 64, 64, red)

	first, err := Compose([][]byte{img, img, img, img}, Resolution2K)
	require.NoError(t, err)
	second, err := Compose([][]byte{img, img, img, img}, Resolution2K)
	require.NoError(t, err)

	for _, c := range []*Composite{first, second} {
		bounds := decode(t, c.Data).Bounds()
		assert.Equal(t, 2056, bounds.Dx())
		assert.Equal(t, 2056, bounds.Dy())
		assert.False(t, c.Padded)
		assert.False(t, c.Degraded)
		assert.Equal(t, 1, c.Unique)
	}
}

func TestCompose_Dimensions4K(t *testing.T) {
	if testing.Short() {
		t.Skip("4K grid encode is slow")
	}
	img := solidPNG(t, 32, 32, green)

	c, err := Compose([][]byte{img, img, img, img}, Resolution4K)
	require.NoError(t, err)
	bounds := decode(t, c.Data).Bounds()
	assert.Equal(t, 4104, bounds.Dx())
	assert.Equal(t, 4104, bounds.Dy())
}

func TestCompose_QuadrantOrderAndGutter(t *testing.T) {
	images := [][]byte{
		solidPNG(t, 40, 40, red),
		solidPNG(t, 40, 40, green),
		solidPNG(t, 40, 40, blue),
		solidPNG(t, 40, 40, white),
	}

	c, err := Compose(images, Resolution2K)
	require.NoError(t, err)
	out := decode(t, c.Data)

	centre := 512
	assert.Equal(t, red, rgba(out.At(centre, centre)))
	assert.Equal(t, green, rgba(out.At(1032+centre, centre)))
	assert.Equal(t, blue, rgba(out.At(centre, 1032+centre)))
	assert.Equal(t, white, rgba(out.At(1032+centre, 1032+centre)))

	assert.Equal(t, Background, rgba(out.At(1027, 10)), "vertical gutter")
	assert.Equal(t, Background, rgba(out.At(10, 1027)), "horizontal gutter")
	assert.Equal(t, 4, c.Unique)
}

func TestCompose_PadsWithFirstImage(t *testing.T) {
	c, err := Compose([][]byte{solidPNG(t, 30, 30, blue), solidPNG(t, 30, 30, red)}, Resolution2K)
	require.NoError(t, err)
	assert.True(t, c.Padded)
	assert.Equal(t, 2, c.Unique)

	out := decode(t, c.Data)
	assert.Equal(t, blue, rgba(out.At(512, 512)))
	assert.Equal(t, red, rgba(out.At(1544, 512)))
	assert.Equal(t, blue, rgba(out.At(512, 1544)))
	assert.Equal(t, blue, rgba(out.At(1544, 1544)))
}

func TestCompose_EmptyInputIsBackground(t *testing.T) {
	c, err := Compose(nil, Resolution2K)
	require.NoError(t, err)
	assert.True(t, c.Padded)
	assert.Zero(t, c.Unique)

	out := decode(t, c.Data)
	assert.Equal(t, 2056, out.Bounds().Dx())
	assert.Equal(t, Background, rgba(out.At(512, 512)))
}

func TestCompose_UndecodableFallsBackToFirst(t *testing.T) {
	first := []byte("not an image at all")
	c, err := Compose([][]byte{first, solidPNG(t, 8, 8, red)}, Resolution2K)
	require.NoError(t, err)
	assert.True(t, c.Degraded)
	assert.Equal(t, first, c.Data)
}

func TestCompose_RejectsTooManyImages(t *testing.T) {
	img := solidPNG(t, 4, 4, red)
	_, err := Compose([][]byte{img, img, img, img, img}, Resolution2K)
	assert.Error(t, err)

	_, err = Compose([][]byte{img}, Resolution("8K"))
	assert.Error(t, err)
}

func TestCoverCrop(t *testing.T) {
	tests := []struct {
		name string
		src  image.Rectangle
		want image.Rectangle
	}{
		{"square", image.Rect(0, 0, 100, 100), image.Rect(0, 0, 100, 100)},
		{"wide", image.Rect(0, 0, 200, 100), image.Rect(50, 0, 150, 100)},
		{"tall", image.Rect(0, 0, 100, 300), image.Rect(0, 100, 100, 200)},
		{"offset", image.Rect(10, 10, 210, 110), image.Rect(60, 10, 160, 110)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoverCrop(tt.src, 1024, 1024))
		})
	}
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution("4k")
	require.NoError(t, err)
	assert.Equal(t, Resolution4K, r)
	assert.Equal(t, 4104, r.Edge())

	r, err = ParseResolution("")
	require.NoError(t, err)
	assert.Equal(t, Resolution2K, r)
	assert.Equal(t, 2056, r.Edge())

	_, err = ParseResolution("1080p")
	assert.Error(t, err)
}
