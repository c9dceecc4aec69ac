package voxel

import (
	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/blocks/palette"
	"pixelcraft.ai/internal/voxel/rotate"
)

// Limits caps the grid dimensions. Zero means unlimited. Frames beyond
// MaxDepth are ignored; oversize frames are rejected.
type Limits struct {
	MaxWidth  int `yaml:"max_width" json:"max_width"`
	MaxHeight int `yaml:"max_height" json:"max_height"`
	MaxDepth  int `yaml:"max_depth" json:"max_depth"`
}

// DefaultLimits bound a single conversion to a few million voxels.
var DefaultLimits = Limits{MaxWidth: 256, MaxHeight: 256, MaxDepth: 64}

// Builder builds grids from frames. It holds configuration only; every call
// gets its own palette registry.
type Builder struct {
	Limits  Limits
	Palette palette.Config
	// Workers bounds the parallel nearest-color search. <= 1 searches serially.
	Workers int
}

// DenseKey is the structure-grid layout: 1-based pixel (x,y) of frame z in a
// w*h*d grid. It flips the image vertically and mirrors it horizontally.
func DenseKey(x, y, z, w, h, d int) int {
	dy := y - h
	if dy < 0 {
		dy = -dy
	}
	return (dy*w+(w-x))*d + z
}

// SparsePos is the position-list layout for 1-based pixel (x,y) of frame z.
func SparsePos(x, y, z int) [3]int32 {
	return [3]int32{int32(y - 1), int32(z), int32(x - 1)}
}

// Build runs a fresh registry over source and returns the rotated dense grid.
func (b *Builder) Build(frames []Frame, source []blocks.BlockSpec, axis rotate.Axis) (*Grid, error) {
	reg, err := palette.New(b.Palette, source)
	if err != nil {
		return nil, err
	}
	return b.BuildWith(reg, frames, axis)
}

// BuildWith builds the dense grid using a caller-owned registry, so the caller
// can inspect it afterwards (UsedDefault). The registry must not be shared
// between concurrent builds.
func (b *Builder) BuildWith(reg *palette.Registry, frames []Frame, axis rotate.Axis) (*Grid, error) {
	w, h, d, err := checkFrames(frames, b.Limits)
	if err != nil {
		return nil, err
	}
	if err := reg.Prime(collect(frames[:d]), b.Workers); err != nil {
		return nil, err
	}

	n := w * h * d
	primary := make([]int32, n)
	secondary := make([]int32, n)
	for i := range primary {
		primary[i] = Empty
		secondary[i] = Empty
	}
	for z := 0; z < d; z++ {
		f := frames[z]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				_, idx, err := reg.Resolve(f.At(x, y))
				if err != nil {
					return nil, err
				}
				key := DenseKey(x+1, y+1, z, w, h, d)
				if key < 0 || key >= n {
					return nil, blocks.IndexOutOfRange("dense key %d for pixel (%d,%d) frame %d outside [0,%d)", key, x+1, y+1, z, n)
				}
				primary[key] = int32(idx)
			}
		}
	}

	g := &Grid{Size: [3]int{w, h, d}, Primary: primary, Secondary: secondary, Palette: reg.Entries()}
	g, err = g.Rotate(axis)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// SparseBlock is one placed voxel of a position-list structure.
type SparseBlock struct {
	Pos   [3]int32 `json:"pos"`
	State int32    `json:"state"`
}

// Sparse is a position-list structure. Size is [h, d, w], matching SparsePos.
type Sparse struct {
	Size    [3]int         `json:"size"`
	Blocks  []SparseBlock  `json:"blocks"`
	Palette []blocks.Entry `json:"palette"`
}

// BuildSparse builds the position-list layout. Pixels below the alpha
// threshold are left out entirely: they get neither a position nor a palette
// slot.
func (b *Builder) BuildSparse(frames []Frame, source []blocks.BlockSpec) (*Sparse, error) {
	reg, err := palette.New(b.Palette, source)
	if err != nil {
		return nil, err
	}
	return b.BuildSparseWith(reg, frames)
}

func (b *Builder) BuildSparseWith(reg *palette.Registry, frames []Frame) (*Sparse, error) {
	w, h, d, err := checkFrames(frames, b.Limits)
	if err != nil {
		return nil, err
	}
	if err := reg.Prime(collect(frames[:d]), b.Workers); err != nil {
		return nil, err
	}
	out := &Sparse{Size: [3]int{h, d, w}}
	for z := 0; z < d; z++ {
		f := frames[z]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := f.At(x, y)
				if c.A < palette.AlphaThreshold {
					continue
				}
				_, idx, err := reg.Resolve(c)
				if err != nil {
					return nil, err
				}
				out.Blocks = append(out.Blocks, SparseBlock{Pos: SparsePos(x+1, y+1, z), State: int32(idx)})
			}
		}
	}
	out.Palette = reg.Entries()
	return out, nil
}

func collect(frames []Frame) []blocks.Color {
	var out []blocks.Color
	for _, f := range frames {
		for y := 0; y < f.Height(); y++ {
			for x := 0; x < f.Width(); x++ {
				out = append(out, f.At(x, y))
			}
		}
	}
	return out
}
