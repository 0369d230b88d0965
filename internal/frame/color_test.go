package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colourskel/skeleton-server/pkg/types"
)

func TestColorImageSwapsChannels(t *testing.T) {
	p := &types.ColorPayload{Pixels: []byte{1, 2, 3, 0, 4, 5, 6, 0}, Width: 2, Height: 1}

	img := ColorImage(p, nil)

	require.NotNil(t, img)
	assert.Equal(t, color.RGBA{R: 3, G: 2, B: 1, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 6, G: 5, B: 4, A: 255}, img.RGBAAt(1, 0))
}

func TestColorImageReusesDestination(t *testing.T) {
	p := &types.ColorPayload{Pixels: make([]byte, 16), Width: 2, Height: 2}
	dst := image.NewRGBA(image.Rect(0, 0, 2, 2))

	assert.Same(t, dst, ColorImage(p, dst))

	p = &types.ColorPayload{Pixels: make([]byte, 36), Width: 3, Height: 3}
	got := ColorImage(p, dst)
	assert.NotSame(t, dst, got)
	assert.Equal(t, 3, got.Rect.Dx())
}

func TestColorImageRejectsShortPayload(t *testing.T) {
	assert.Nil(t, ColorImage(nil, nil))
	assert.Nil(t, ColorImage(&types.ColorPayload{Pixels: make([]byte, 3), Width: 1, Height: 1}, nil))
}
