// Package tagtree lays finished grids out as the generic tag trees of each
// container format. It does not produce bytes; see nbtio.
package tagtree

import (
	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/voxel"
)

// MCStructure is the Bedrock structure file: both index layers plus the
// block palette.
func MCStructure(g *voxel.Grid, origin [3]int32) (map[string]any, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	pal := make([]map[string]any, len(g.Palette))
	for i, e := range g.Palette {
		pal[i] = map[string]any{
			"name":    e.Name,
			"states":  statesOrEmpty(e.States),
			"version": e.Version,
		}
	}
	return map[string]any{
		"format_version": int32(1),
		"size":           []int32{int32(g.Size[0]), int32(g.Size[1]), int32(g.Size[2])},
		"structure": map[string]any{
			"block_indices": [][]int32{g.Primary, g.Secondary},
			"entities":      []map[string]any{},
			"palette": map[string]any{
				"default": map[string]any{
					"block_palette":       pal,
					"block_position_data": map[string]any{},
				},
			},
		},
		"structure_world_origin": []int32{origin[0], origin[1], origin[2]},
	}, nil
}

// JavaStructure is the Java structure-block file. Palette states are strings.
func JavaStructure(s *voxel.Sparse, dataVersion int32) (map[string]any, error) {
	pal := make([]map[string]any, len(s.Palette))
	for i, e := range s.Palette {
		m := map[string]any{"Name": e.Name}
		if len(e.States) > 0 {
			props := make(map[string]any, len(e.States))
			for k, v := range blocks.StringifyStates(e.States) {
				props[k] = v
			}
			m["Properties"] = props
		}
		pal[i] = m
	}
	list := make([]map[string]any, len(s.Blocks))
	for i, b := range s.Blocks {
		if b.State < 0 || int(b.State) >= len(s.Palette) {
			return nil, blocks.IndexOutOfRange("structure: block %d references palette %d of %d", i, b.State, len(s.Palette))
		}
		list[i] = map[string]any{
			"pos":   []int32{b.Pos[0], b.Pos[1], b.Pos[2]},
			"state": b.State,
		}
	}
	return map[string]any{
		"DataVersion": dataVersion,
		"size":        []int32{int32(s.Size[0]), int32(s.Size[1]), int32(s.Size[2])},
		"palette":     pal,
		"blocks":      list,
		"entities":    []map[string]any{},
	}, nil
}

// Schematic is the classic MCEdit layout: flat byte arrays indexed
// (y*Length+z)*Width+x with numeric ids. Empty voxels are air (id 0).
func Schematic(g *voxel.Grid) (map[string]any, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	w, h, l := g.Size[0], g.Size[1], g.Size[2]
	for _, v := range g.Size {
		if v > 32767 {
			return nil, blocks.InvalidInput("schematic: dimension %d exceeds 32767", v)
		}
	}
	ids := make([]byte, g.Volume())
	data := make([]byte, g.Volume())
	for i, v := range g.Primary {
		if v == voxel.Empty {
			continue
		}
		x, y, z := g.Coord(i)
		j := (y*l+z)*w + x
		if j < 0 || j >= len(ids) {
			return nil, blocks.IndexOutOfRange("schematic: index %d outside [0,%d)", j, len(ids))
		}
		e := g.Palette[v]
		ids[j] = e.LegacyID
		data[j] = e.LegacyData
	}
	return map[string]any{
		"Width":        int16(w),
		"Height":       int16(h),
		"Length":       int16(l),
		"Materials":    "Alpha",
		"Blocks":       ids,
		"Data":         data,
		"Entities":     []map[string]any{},
		"TileEntities": []map[string]any{},
	}, nil
}

func statesOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
