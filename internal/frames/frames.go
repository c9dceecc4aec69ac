// Package frames adapts decoded images to voxel.Frame.
package frames

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/voxel"
)

// Image is a frame backed by a non-premultiplied RGBA buffer.
type Image struct {
	img *image.NRGBA
}

// FromImage copies any image into a frame. The image origin is moved to (0,0).
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return &Image{img: dst}
}

func (f *Image) Width() int  { return f.img.Rect.Dx() }
func (f *Image) Height() int { return f.img.Rect.Dy() }

func (f *Image) At(x, y int) blocks.Color {
	c := f.img.NRGBAAt(x, y)
	return blocks.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

// Decode reads a still image or an animated GIF. GIFs yield one frame per
// animation frame, composited the way a viewer would show them. Dimensions
// are checked against lim from the header before any pixel is decoded, and
// no more than lim.MaxDepth frames are produced.
func Decode(r io.Reader, lim voxel.Limits) ([]voxel.Frame, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(6)
	if bytes.HasPrefix(head, []byte("GIF8")) {
		return DecodeGIF(br, lim)
	}
	// DecodeConfig consumes the header; replay it for the full decode.
	var hdr bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(br, &hdr))
	if err != nil {
		return nil, blocks.InvalidInput("decode image: %v", err)
	}
	if err := CheckSize(cfg.Width, cfg.Height, lim); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(io.MultiReader(&hdr, br))
	if err != nil {
		return nil, blocks.InvalidInput("decode image: %v", err)
	}
	return []voxel.Frame{FromImage(img)}, nil
}

// CheckSize rejects a w*h frame outside lim. Zero limits are unbounded.
func CheckSize(w, h int, lim voxel.Limits) error {
	if w <= 0 || h <= 0 {
		return blocks.InvalidInput("frame is %dx%d", w, h)
	}
	if (lim.MaxWidth > 0 && w > lim.MaxWidth) || (lim.MaxHeight > 0 && h > lim.MaxHeight) {
		return blocks.InvalidInput("frame %dx%d exceeds %dx%d", w, h, lim.MaxWidth, lim.MaxHeight)
	}
	return nil
}

// Remaining is lim with MaxDepth lowered by the n frames already decoded.
// ok is false once the cap is reached.
func Remaining(lim voxel.Limits, n int) (voxel.Limits, bool) {
	if lim.MaxDepth <= 0 {
		return lim, true
	}
	lim.MaxDepth -= n
	return lim, lim.MaxDepth > 0
}

// DecodeFile opens path and calls Decode.
func DecodeFile(path string, lim voxel.Limits) ([]voxel.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out, err := Decode(f, lim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// DecodeFiles decodes each path as one still frame, in order. Paths past
// lim.MaxDepth are not opened.
func DecodeFiles(paths []string, lim voxel.Limits) ([]voxel.Frame, error) {
	out := make([]voxel.Frame, 0, len(paths))
	for _, p := range paths {
		if _, ok := Remaining(lim, len(out)); !ok {
			break
		}
		fs, err := DecodeFile(p, lim)
		if err != nil {
			return nil, err
		}
		out = append(out, fs[0])
	}
	return out, nil
}

// DecodeGIF composites the frames of an animation onto the logical screen,
// honoring each frame's disposal method. It stops after lim.MaxDepth frames.
func DecodeGIF(r io.Reader, lim voxel.Limits) ([]voxel.Frame, error) {
	br := bufio.NewReader(r)
	var hdr bytes.Buffer
	cfg, err := gif.DecodeConfig(io.TeeReader(br, &hdr))
	if err != nil {
		return nil, blocks.InvalidInput("decode gif: %v", err)
	}
	if err := CheckSize(cfg.Width, cfg.Height, lim); err != nil {
		return nil, err
	}
	g, err := gif.DecodeAll(io.MultiReader(&hdr, br))
	if err != nil {
		return nil, blocks.InvalidInput("decode gif: %v", err)
	}
	if len(g.Image) == 0 {
		return nil, blocks.InvalidInput("decode gif: no frames")
	}
	w, h := g.Config.Width, g.Config.Height
	n := len(g.Image)
	if lim.MaxDepth > 0 && n > lim.MaxDepth {
		n = lim.MaxDepth
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	out := make([]voxel.Frame, 0, n)
	for i, p := range g.Image[:n] {
		var prev *image.NRGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			prev = image.NewNRGBA(canvas.Rect)
			copy(prev.Pix, canvas.Pix)
		}
		draw.Draw(canvas, p.Bounds(), p, p.Bounds().Min, draw.Over)

		snap := image.NewNRGBA(canvas.Rect)
		copy(snap.Pix, canvas.Pix)
		out = append(out, &Image{img: snap})

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, p.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			copy(canvas.Pix, prev.Pix)
		}
	}
	return out, nil
}
