package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Canvas is the drawing surface the Renderer paints on
type Canvas interface {
	// Reset starts a new frame. bg is drawn at the origin; nil clears to black.
	Reset(width, height int, bg image.Image)
	FillRect(x, y, w, h float64, c color.Color)
	Line(a, b types.ImagePoint, width float64, c color.Color)
	Dot(center types.ImagePoint, radius float64, c color.Color)
	Text(s string, x, y float64, c color.Color)
	// Image returns the finished frame. The caller owns it.
	Image() *image.RGBA
	Close() error
}

// GGCanvas draws with the gg software renderer
type GGCanvas struct {
	dc       *gg.Context
	font     *text.FontSource
	face     text.Face
	fontSize float64
}

// NewGGCanvas creates a canvas with the Go Regular font at fontSize points.
func NewGGCanvas(fontSize float64) (*GGCanvas, error) {
	src, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load label font: %w", err)
	}
	return &GGCanvas{
		font:     src,
		face:     src.Face(fontSize),
		fontSize: fontSize,
	}, nil
}

// Reset implements Canvas.
func (c *GGCanvas) Reset(width, height int, bg image.Image) {
	if c.dc == nil || c.dc.Width() != width || c.dc.Height() != height {
		if c.dc != nil {
			_ = c.dc.Close()
		}
		c.dc = gg.NewContext(width, height)
		c.dc.SetFont(c.face)
		logger.Debug("Overlay", "Canvas allocated at %dx%d", width, height)
	}

	c.dc.ClearWithColor(gg.RGB(0, 0, 0))
	if bg != nil {
		c.dc.DrawImage(gg.ImageBufFromImage(bg), 0, 0)
	}
}

func (c *GGCanvas) paint(op string, fn func() error) {
	if err := fn(); err != nil {
		logger.Debug("Overlay", "%s failed: %v", op, err)
	}
}

// FillRect implements Canvas.
func (c *GGCanvas) FillRect(x, y, w, h float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawRectangle(x, y, w, h)
	c.paint("fill rect", c.dc.Fill)
}

// Line implements Canvas.
func (c *GGCanvas) Line(a, b types.ImagePoint, width float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.SetLineWidth(width)
	c.dc.DrawLine(a.X, a.Y, b.X, b.Y)
	c.paint("stroke line", c.dc.Stroke)
}

// Dot implements Canvas.
func (c *GGCanvas) Dot(center types.ImagePoint, radius float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawCircle(center.X, center.Y, radius)
	c.paint("fill dot", c.dc.Fill)
}

// Text implements Canvas. y is the baseline.
func (c *GGCanvas) Text(s string, x, y float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawString(s, x, y)
}

// Image implements Canvas.
func (c *GGCanvas) Image() *image.RGBA {
	if c.dc == nil {
		return nil
	}
	c.paint("flush", c.dc.FlushGPU)
	img, ok := c.dc.Image().(*image.RGBA)
	if !ok {
		return nil
	}
	return img
}

// Close implements Canvas.
func (c *GGCanvas) Close() error {
	if c.dc != nil {
		_ = c.dc.Close()
		c.dc = nil
	}
	if c.font != nil {
		err := c.font.Close()
		c.font = nil
		return err
	}
	return nil
}
