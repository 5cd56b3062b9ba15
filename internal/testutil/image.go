package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

// SmallSize is the size of dataset images.
var SmallSize = ImageSize{320, 240}

// TextImage renders lines of black text centered on a white canvas.
func TextImage(size ImageSize, lines ...string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.Black},
		Face: face,
	}
	lineHeight := face.Metrics().Height.Ceil()
	startY := (size.Height - len(lines)*lineHeight) / 2
	for i, line := range lines {
		textWidth := font.MeasureString(face, line).Ceil()
		drawer.Dot = fixed.P((size.Width-textWidth)/2, startY+(i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

// CreateTestImage creates a solid image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// WritePNG renders lines with TextImage and encodes them to w.
func WritePNG(w io.Writer, lines ...string) error {
	return png.Encode(w, TextImage(SmallSize, lines...))
}

// EncodePNG returns img encoded as PNG.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// PNGWithText is EncodePNG(TextImage(SmallSize, lines...)).
func PNGWithText(t *testing.T, lines ...string) []byte {
	t.Helper()
	return EncodePNG(t, TextImage(SmallSize, lines...))
}
