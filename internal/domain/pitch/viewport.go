package pitch

import "github.com/okian/pepai/internal/domain/drill"

// Viewport is the on-screen rectangle the canvas occupies, in client pixels.
type Viewport struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ToLogical maps a client pixel to a clamped logical coordinate. A viewport
// with no area maps everything to the origin.
func (v Viewport) ToLogical(clientX, clientY float64) drill.Point {
	if v.Width <= 0 || v.Height <= 0 {
		return drill.Point{}
	}
	p := drill.Point{
		X: (clientX - v.Left) / v.Width * drill.MaxCoord,
		Y: (clientY - v.Top) / v.Height * drill.MaxCoord,
	}
	return p.Clamp()
}
