// Package voxel turns stacked frames into block grids.
package voxel

import (
	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/voxel/rotate"
)

// Empty marks a voxel with no block.
const Empty int32 = -1

// Grid is a dense indexed voxel grid. Primary holds palette offsets; Secondary
// is the liquid layer, always Empty, kept for dual-layer containers.
type Grid struct {
	Size      [3]int         `json:"size"`
	Primary   []int32        `json:"primary"`
	Secondary []int32        `json:"secondary"`
	Palette   []blocks.Entry `json:"palette"`
}

func (g *Grid) Volume() int { return g.Size[0] * g.Size[1] * g.Size[2] }

// Coord decodes a flat index in structure order (x outermost, z innermost):
// i = x*S1*S2 + y*S2 + z.
func (g *Grid) Coord(i int) (x, y, z int) {
	s12 := g.Size[1] * g.Size[2]
	x = i / s12
	r := i % s12
	return x, r / g.Size[2], r % g.Size[2]
}

// Index is the inverse of Coord.
func (g *Grid) Index(x, y, z int) int {
	return x*g.Size[1]*g.Size[2] + y*g.Size[2] + z
}

// Validate checks the layer lengths and that every primary value is Empty or
// a palette offset.
func (g *Grid) Validate() error {
	n := g.Volume()
	if n <= 0 {
		return blocks.InvalidInput("grid: bad size %v", g.Size)
	}
	if len(g.Primary) != n {
		return blocks.LengthMismatch("grid: primary has %d voxels, want %d", len(g.Primary), n)
	}
	if len(g.Secondary) != len(g.Primary) {
		return blocks.LengthMismatch("grid: secondary has %d voxels, primary %d", len(g.Secondary), len(g.Primary))
	}
	for i, v := range g.Primary {
		if v != Empty && (v < 0 || int(v) >= len(g.Palette)) {
			return blocks.IndexOutOfRange("grid: voxel %d references palette %d of %d", i, v, len(g.Palette))
		}
	}
	return nil
}

// Rotate applies the axis transform to both layers.
func (g *Grid) Rotate(a rotate.Axis) (*Grid, error) {
	size, primary, err := rotate.Apply(a, g.Size, g.Primary)
	if err != nil {
		return nil, err
	}
	size2, secondary, err := rotate.Apply(a, g.Size, g.Secondary)
	if err != nil {
		return nil, err
	}
	if size != size2 || len(primary) != len(secondary) {
		return nil, blocks.LengthMismatch("rotate: layers diverged (%d vs %d)", len(primary), len(secondary))
	}
	return &Grid{Size: size, Primary: primary, Secondary: secondary, Palette: g.Palette}, nil
}

// Counts returns how many voxels reference each palette entry.
func (g *Grid) Counts() []int {
	out := make([]int, len(g.Palette))
	for _, v := range g.Primary {
		if v >= 0 && int(v) < len(out) {
			out[v]++
		}
	}
	return out
}
