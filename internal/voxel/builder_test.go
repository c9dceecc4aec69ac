package voxel

import (
	"errors"
	"reflect"
	"testing"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/blocks/palette"
	"pixelcraft.ai/internal/voxel/rotate"
)

var (
	white = blocks.RGBA(255, 255, 255, 255)
	red   = blocks.RGBA(255, 0, 0, 255)
)

func testBuilder() *Builder {
	return &Builder{
		Limits: DefaultLimits,
		Palette: palette.Config{
			Backend:      palette.Bedrock,
			Mask:         blocks.BlockSpec{ID: "minecraft:structure_void"},
			Default:      blocks.BlockSpec{ID: "minecraft:stone"},
			BlockVersion: 18153475,
		},
		Workers: 2,
	}
}

func whiteRed() []blocks.BlockSpec {
	return []blocks.BlockSpec{
		{ID: "block:white", Hex: "#ffffff"},
		{ID: "block:red", Hex: "#ff0000"},
	}
}

// 2x2 frame: top row white, bottom row c.
func twoByTwo(bottom blocks.Color) Frame {
	f := NewRGBAFrame(2, 2)
	f.Set(0, 0, white)
	f.Set(1, 0, white)
	f.Set(0, 1, bottom)
	f.Set(1, 1, bottom)
	return f
}

func TestDenseKey_Layout(t *testing.T) {
	// 2x2x1: the top-left pixel lands at the far end, the bottom-right at 0.
	cases := []struct{ x, y, want int }{
		{1, 1, 3},
		{2, 1, 2},
		{1, 2, 1},
		{2, 2, 0},
	}
	for _, c := range cases {
		if got := DenseKey(c.x, c.y, 0, 2, 2, 1); got != c.want {
			t.Fatalf("DenseKey(%d,%d)=%d want %d", c.x, c.y, got, c.want)
		}
	}
	// Depth is innermost.
	if got := DenseKey(1, 1, 2, 2, 2, 3); got != 3*3+2 {
		t.Fatalf("DenseKey with depth: %d", got)
	}
}

func TestSparsePos(t *testing.T) {
	if got := SparsePos(3, 5, 2); got != [3]int32{4, 2, 2} {
		t.Fatalf("SparsePos=%v", got)
	}
}

func TestBuild_WhiteRed(t *testing.T) {
	g, err := testBuilder().Build([]Frame{twoByTwo(red)}, whiteRed(), rotate.X)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Palette) != 2 || g.Palette[0].Name != "block:white" || g.Palette[1].Name != "block:red" {
		t.Fatalf("palette=%+v", g.Palette)
	}
	if len(g.Primary) != 4 || len(g.Secondary) != 4 {
		t.Fatalf("layer lengths %d/%d", len(g.Primary), len(g.Secondary))
	}
	if want := []int32{1, 1, 0, 0}; !reflect.DeepEqual(g.Primary, want) {
		t.Fatalf("primary=%v want %v", g.Primary, want)
	}
	distinct := map[int32]bool{}
	for _, v := range g.Primary {
		if v == Empty {
			t.Fatalf("unexpected empty voxel")
		}
		distinct[v] = true
	}
	if len(distinct) != 2 {
		t.Fatalf("distinct=%v", distinct)
	}
	for _, v := range g.Secondary {
		if v != Empty {
			t.Fatalf("secondary layer carries %d", v)
		}
	}
	if g.Size != [3]int{1, 2, 2} {
		t.Fatalf("size=%v", g.Size)
	}
}

func TestBuild_TransparentPixelUsesMask(t *testing.T) {
	g, err := testBuilder().Build([]Frame{twoByTwo(blocks.RGBA(255, 0, 0, 0))}, whiteRed(), rotate.X)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Palette) != 2 {
		t.Fatalf("palette=%+v", g.Palette)
	}
	mask := g.Palette[1]
	if mask.Name != "minecraft:structure_void" {
		t.Fatalf("mask entry=%+v", mask)
	}
	counts := g.Counts()
	if counts[0] != 2 || counts[1] != 2 {
		t.Fatalf("counts=%v", counts)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	frames := make([]Frame, 3)
	for z := range frames {
		f := NewRGBAFrame(7, 5)
		for y := 0; y < 5; y++ {
			for x := 0; x < 7; x++ {
				f.Set(x, y, blocks.RGBA(uint8(x*36), uint8(y*50), uint8(z*80), uint8(255-z*70)))
			}
		}
		frames[z] = f
	}
	b := testBuilder()
	for _, a := range []rotate.Axis{rotate.X, rotate.Y, rotate.Z} {
		g1, err := b.Build(frames, whiteRed(), a)
		if err != nil {
			t.Fatalf("Build %s: %v", a, err)
		}
		g2, err := b.Build(frames, whiteRed(), a)
		if err != nil {
			t.Fatalf("Build %s: %v", a, err)
		}
		if !reflect.DeepEqual(g1, g2) {
			t.Fatalf("axis %s: builds differ", a)
		}
		if g1.Volume() != 7*5*3 {
			t.Fatalf("axis %s: volume %d", a, g1.Volume())
		}
	}
}

func TestBuild_DepthCap(t *testing.T) {
	b := testBuilder()
	b.Limits.MaxDepth = 2
	frames := []Frame{twoByTwo(red), twoByTwo(red), twoByTwo(red)}
	g, err := b.Build(frames, whiteRed(), rotate.Z)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Volume() != 8 {
		t.Fatalf("volume=%d want 8", g.Volume())
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	b := testBuilder()
	b.Limits.MaxWidth = 4
	cases := map[string][]Frame{
		"no frames":  nil,
		"zero size":  {NewRGBAFrame(0, 3)},
		"too wide":   {NewRGBAFrame(5, 1)},
		"mismatched": {NewRGBAFrame(2, 2), NewRGBAFrame(2, 3)},
		"nil frame":  {NewRGBAFrame(2, 2), nil},
	}
	for name, frames := range cases {
		_, err := b.Build(frames, whiteRed(), rotate.X)
		if !errors.Is(err, blocks.ErrInvalidInput) {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}

func TestBuild_EmptySourceDefault(t *testing.T) {
	b := testBuilder()
	reg, err := palette.New(b.Palette, nil)
	if err != nil {
		t.Fatalf("palette.New: %v", err)
	}
	g, err := b.BuildWith(reg, []Frame{twoByTwo(red)}, rotate.X)
	if err != nil {
		t.Fatalf("BuildWith: %v", err)
	}
	if !reg.UsedDefault() {
		t.Fatalf("expected default fallback")
	}
	if len(g.Palette) != 1 || g.Palette[0].Name != "minecraft:stone" {
		t.Fatalf("palette=%+v", g.Palette)
	}
}

func TestBuildSparse_OmitsTransparent(t *testing.T) {
	s, err := testBuilder().BuildSparse([]Frame{twoByTwo(blocks.RGBA(255, 0, 0, 0))}, whiteRed())
	if err != nil {
		t.Fatalf("BuildSparse: %v", err)
	}
	if s.Size != [3]int{2, 1, 2} {
		t.Fatalf("size=%v", s.Size)
	}
	if len(s.Palette) != 1 || s.Palette[0].Name != "block:white" {
		t.Fatalf("palette=%+v", s.Palette)
	}
	want := []SparseBlock{
		{Pos: [3]int32{0, 0, 0}, State: 0},
		{Pos: [3]int32{0, 0, 1}, State: 0},
	}
	if !reflect.DeepEqual(s.Blocks, want) {
		t.Fatalf("blocks=%+v", s.Blocks)
	}
}

func TestGrid_CoordIndex(t *testing.T) {
	g := &Grid{Size: [3]int{3, 4, 5}}
	for i := 0; i < g.Volume(); i++ {
		x, y, z := g.Coord(i)
		if g.Index(x, y, z) != i {
			t.Fatalf("round trip %d -> (%d,%d,%d)", i, x, y, z)
		}
	}
}

func TestGrid_ValidateRejectsBadIndex(t *testing.T) {
	g := &Grid{
		Size:      [3]int{1, 1, 2},
		Primary:   []int32{0, 3},
		Secondary: []int32{Empty, Empty},
		Palette:   []blocks.Entry{{Name: "a"}},
	}
	if err := g.Validate(); !errors.Is(err, blocks.ErrIndexOutOfRange) {
		t.Fatalf("err=%v", err)
	}
	g.Primary = []int32{0}
	if err := g.Validate(); !errors.Is(err, blocks.ErrLengthMismatch) {
		t.Fatalf("err=%v", err)
	}
}
