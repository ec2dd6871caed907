// Package grid composites up to four images into a 2x2 reference grid.
package grid

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Resolution selects the tile size of a grid.
type Resolution string

const (
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"

	Gap   = 8
	Tiles = 4
)

// Background shows through the gutters and any empty tile.
var Background = color.RGBA{R: 26, G: 35, B: 50, A: 255}

// ParseResolution accepts "2k"/"4k" in any case; empty means 2K.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(Resolution2K):
		return Resolution2K, nil
	case string(Resolution4K):
		return Resolution4K, nil
	default:
		return "", fmt.Errorf("unsupported resolution %q (supported: 2K, 4K)", s)
	}
}

// TileSize is the edge of one quadrant in pixels.
func (r Resolution) TileSize() int {
	if r == Resolution4K {
		return 2048
	}
	return 1024
}

// Edge is the edge of the finished grid in pixels.
func (r Resolution) Edge() int {
	return 2*r.TileSize() + Gap
}

func (r Resolution) String() string {
	if r == "" {
		return string(Resolution2K)
	}
	return string(r)
}

// Composite is an encoded grid.
type Composite struct {
	Data []byte
	// Padded is set when fewer than four inputs were supplied.
	Padded bool
	// Degraded is set when compositing failed and Data is the first input as-is.
	Degraded bool
	// Unique counts byte-distinct inputs. Below len(images) means the
	// provider returned duplicates.
	Unique int
}

// Origins returns the top-left corner of each quadrant in reading order.
func Origins(res Resolution) [Tiles]image.Point {
	step := res.TileSize() + Gap
	return [Tiles]image.Point{
		{X: 0, Y: 0},
		{X: step, Y: 0},
		{X: 0, Y: step},
		{X: step, Y: step},
	}
}

// Compose places images into a 2x2 grid at res. Short input is padded with
// the first image; with no input the grid is background only. When an image
// cannot be decoded or the result cannot be encoded, the first input is
// returned unmodified with Degraded set.
func Compose(images [][]byte, res Resolution) (*Composite, error) {
	if len(images) > Tiles {
		return nil, fmt.Errorf("grid holds at most %d images, got %d", Tiles, len(images))
	}
	if res == "" {
		res = Resolution2K
	}
	if res != Resolution2K && res != Resolution4K {
		return nil, fmt.Errorf("unsupported resolution %q", res)
	}

	out := &Composite{Padded: len(images) < Tiles, Unique: countDistinct(images)}

	decoded := make([]image.Image, 0, Tiles)
	for i, data := range images {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			slog.Warn("Grid image could not be decoded, returning first image", "index", i+1, "error", err)
			return degraded(images, out), nil
		}
		decoded = append(decoded, img)
	}
	decoded = pad(decoded)

	tile := res.TileSize()
	canvas := image.NewRGBA(image.Rect(0, 0, res.Edge(), res.Edge()))
	stddraw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: Background}, image.Point{}, stddraw.Src)

	for i, origin := range Origins(res) {
		if decoded[i] == nil {
			continue
		}
		dst := image.Rect(origin.X, origin.Y, origin.X+tile, origin.Y+tile)
		draw.CatmullRom.Scale(canvas, dst, decoded[i], CoverCrop(decoded[i].Bounds(), tile, tile), draw.Over, nil)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, canvas); err != nil {
		slog.Warn("Grid encode failed, returning first image", "error", err)
		return degraded(images, out), nil
	}

	out.Data = buf.Bytes()
	return out, nil
}

// pad repeats the first image until there are four. A nil entry leaves its
// tile empty.
func pad(images []image.Image) []image.Image {
	var first image.Image
	if len(images) > 0 {
		first = images[0]
	}
	for len(images) < Tiles {
		images = append(images, first)
	}
	return images
}

func countDistinct(images [][]byte) int {
	seen := make(map[[sha256.Size]byte]struct{}, len(images))
	for _, data := range images {
		seen[sha256.Sum256(data)] = struct{}{}
	}
	return len(seen)
}

func degraded(images [][]byte, out *Composite) *Composite {
	out.Degraded = true
	if len(images) > 0 {
		out.Data = images[0]
	}
	return out
}

// CoverCrop returns the centred region of src whose aspect matches w:h, so
// that scaling it to w x h fills the tile without distortion.
func CoverCrop(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 || w == 0 || h == 0 {
		return src
	}

	// compare sw/sh with w/h without floating point
	if sw*h > sh*w {
		cw := sh * w / h
		x0 := src.Min.X + (sw-cw)/2
		return image.Rect(x0, src.Min.Y, x0+cw, src.Max.Y)
	}
	ch := sw * h / w
	y0 := src.Min.Y + (sh-ch)/2
	return image.Rect(src.Min.X, y0, src.Max.X, y0+ch)
}
