package tagtree

import (
	"errors"
	"testing"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/voxel"
)

func grid() *voxel.Grid {
	return &voxel.Grid{
		Size:      [3]int{2, 1, 2},
		Primary:   []int32{0, 1, voxel.Empty, 1},
		Secondary: []int32{voxel.Empty, voxel.Empty, voxel.Empty, voxel.Empty},
		Palette: []blocks.Entry{
			{Name: "minecraft:wool", States: map[string]any{"color": "red"}, Version: 5, LegacyID: 35, LegacyData: 14},
			{Name: "minecraft:stone", Version: 5, LegacyID: 1},
		},
	}
}

func TestMCStructure_Layout(t *testing.T) {
	m, err := MCStructure(grid(), [3]int32{1, 2, 3})
	if err != nil {
		t.Fatalf("MCStructure: %v", err)
	}
	if m["format_version"] != int32(1) {
		t.Fatalf("format_version=%v", m["format_version"])
	}
	size := m["size"].([]int32)
	if size[0] != 2 || size[1] != 1 || size[2] != 2 {
		t.Fatalf("size=%v", size)
	}
	st := m["structure"].(map[string]any)
	layers := st["block_indices"].([][]int32)
	if len(layers) != 2 || len(layers[0]) != 4 || layers[1][0] != -1 {
		t.Fatalf("block_indices=%v", layers)
	}
	pal := st["palette"].(map[string]any)["default"].(map[string]any)["block_palette"].([]map[string]any)
	if len(pal) != 2 || pal[1]["name"] != "minecraft:stone" {
		t.Fatalf("palette=%v", pal)
	}
	if states := pal[1]["states"].(map[string]any); states == nil {
		t.Fatalf("nil states must be written as an empty compound")
	}
	origin := m["structure_world_origin"].([]int32)
	if origin[2] != 3 {
		t.Fatalf("origin=%v", origin)
	}
}

func TestMCStructure_RejectsBrokenGrid(t *testing.T) {
	g := grid()
	g.Secondary = g.Secondary[:3]
	if _, err := MCStructure(g, [3]int32{}); !errors.Is(err, blocks.ErrLengthMismatch) {
		t.Fatalf("err=%v", err)
	}
}

func TestJavaStructure_Layout(t *testing.T) {
	s := &voxel.Sparse{
		Size: [3]int{1, 1, 2},
		Blocks: []voxel.SparseBlock{
			{Pos: [3]int32{0, 0, 0}, State: 0},
			{Pos: [3]int32{0, 0, 1}, State: 1},
		},
		Palette: []blocks.Entry{
			{Name: "minecraft:red_wool"},
			{Name: "minecraft:lamp", States: map[string]any{"lit": uint8(1), "level": int32(4)}},
		},
	}
	m, err := JavaStructure(s, 3953)
	if err != nil {
		t.Fatalf("JavaStructure: %v", err)
	}
	if m["DataVersion"] != int32(3953) {
		t.Fatalf("DataVersion=%v", m["DataVersion"])
	}
	pal := m["palette"].([]map[string]any)
	if _, ok := pal[0]["Properties"]; ok {
		t.Fatalf("stateless block carries Properties")
	}
	props := pal[1]["Properties"].(map[string]any)
	if props["lit"] != "true" || props["level"] != "4" {
		t.Fatalf("Properties=%v", props)
	}
	list := m["blocks"].([]map[string]any)
	if len(list) != 2 || list[1]["pos"].([]int32)[2] != 1 {
		t.Fatalf("blocks=%v", list)
	}

	s.Blocks[0].State = 7
	if _, err := JavaStructure(s, 3953); !errors.Is(err, blocks.ErrIndexOutOfRange) {
		t.Fatalf("err=%v", err)
	}
}

func TestSchematic_Indexing(t *testing.T) {
	m, err := Schematic(grid())
	if err != nil {
		t.Fatalf("Schematic: %v", err)
	}
	if m["Width"] != int16(2) || m["Height"] != int16(1) || m["Length"] != int16(2) {
		t.Fatalf("dims=%v %v %v", m["Width"], m["Height"], m["Length"])
	}
	// Grid order is x*2+z; schematic order is z*2+x.
	ids := m["Blocks"].([]byte)
	data := m["Data"].([]byte)
	want := []byte{35, 0, 1, 1}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Blocks=%v want %v", ids, want)
		}
	}
	if data[0] != 14 {
		t.Fatalf("Data=%v", data)
	}
}

func TestLevelDat_Fields(t *testing.T) {
	m := LevelDat(World{Name: "art", Spawn: [3]int32{0, 64, 0}, StorageFormat: 10, GameVersion: [5]int32{1, 21, 0, 3, 0}, FlatLayers: FlatLayersVoid})
	if m["LevelName"] != "art" || m["SpawnY"] != int32(64) || m["StorageVersion"] != int32(10) {
		t.Fatalf("level=%v", m)
	}
	if v := m["lastOpenedWithVersion"].([]int32); v[1] != 21 {
		t.Fatalf("version=%v", v)
	}
}
