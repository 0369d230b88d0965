package frame

import (
	"image"

	"github.com/colourskel/skeleton-server/pkg/types"
)

// ColorImage converts a BGRA colour payload into dst, reallocating dst only when
// the size changes. It returns nil for a nil or short payload.
func ColorImage(p *types.ColorPayload, dst *image.RGBA) *image.RGBA {
	if p == nil || p.Width <= 0 || p.Height <= 0 || len(p.Pixels) < p.Width*p.Height*4 {
		return nil
	}
	if dst == nil || dst.Rect.Dx() != p.Width || dst.Rect.Dy() != p.Height {
		dst = image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	}

	src := p.Pixels
	pix := dst.Pix
	for i := 0; i < p.Width*p.Height*4; i += 4 {
		pix[i] = src[i+2]
		pix[i+1] = src[i+1]
		pix[i+2] = src[i]
		pix[i+3] = 0xff
	}
	return dst
}
