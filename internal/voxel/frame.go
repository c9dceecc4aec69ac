package voxel

import "pixelcraft.ai/internal/blocks"

// Frame is one 2D layer of the input. Coordinates are 0-based with (0,0) at
// the top-left pixel. The layout formulas below work on 1-based pixel
// coordinates; the translation happens once, in the builder loops.
type Frame interface {
	Width() int
	Height() int
	At(x, y int) blocks.Color
}

// RGBAFrame is an in-memory frame, row-major.
type RGBAFrame struct {
	W, H int
	Pix  []blocks.Color
}

func NewRGBAFrame(w, h int) *RGBAFrame {
	return &RGBAFrame{W: w, H: h, Pix: make([]blocks.Color, w*h)}
}

func (f *RGBAFrame) Width() int                   { return f.W }
func (f *RGBAFrame) Height() int                  { return f.H }
func (f *RGBAFrame) At(x, y int) blocks.Color     { return f.Pix[y*f.W+x] }
func (f *RGBAFrame) Set(x, y int, c blocks.Color) { f.Pix[y*f.W+x] = c }

func checkFrames(frames []Frame, lim Limits) (w, h, d int, err error) {
	if len(frames) == 0 {
		return 0, 0, 0, blocks.InvalidInput("no frames")
	}
	if frames[0] == nil {
		return 0, 0, 0, blocks.InvalidInput("frame 0 is nil")
	}
	w, h = frames[0].Width(), frames[0].Height()
	if w <= 0 || h <= 0 {
		return 0, 0, 0, blocks.InvalidInput("zero-sized frame %dx%d", w, h)
	}
	if lim.MaxWidth > 0 && w > lim.MaxWidth {
		return 0, 0, 0, blocks.InvalidInput("frame width %d exceeds limit %d", w, lim.MaxWidth)
	}
	if lim.MaxHeight > 0 && h > lim.MaxHeight {
		return 0, 0, 0, blocks.InvalidInput("frame height %d exceeds limit %d", h, lim.MaxHeight)
	}
	d = len(frames)
	if lim.MaxDepth > 0 && d > lim.MaxDepth {
		d = lim.MaxDepth
	}
	for z := 1; z < d; z++ {
		f := frames[z]
		if f == nil {
			return 0, 0, 0, blocks.InvalidInput("frame %d is nil", z)
		}
		if f.Width() != w || f.Height() != h {
			return 0, 0, 0, blocks.InvalidInput("frame %d is %dx%d, frame 0 is %dx%d", z, f.Width(), f.Height(), w, h)
		}
	}
	return w, h, d, nil
}
