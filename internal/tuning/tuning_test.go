package tuning

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"pixelcraft.ai/internal/blocks/palette"
)

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Mask.ID != "minecraft:structure_void" || got.Limits.MaxDepth != 64 {
		t.Fatalf("defaults=%+v", got)
	}
}

func TestNormalize_Workers(t *testing.T) {
	tu := Defaults()
	tu.Normalize()
	if tu.Workers != runtime.GOMAXPROCS(0) {
		t.Fatalf("workers=%d want GOMAXPROCS", tu.Workers)
	}
	tu.Workers = 3
	tu.Normalize()
	if tu.Workers != 3 {
		t.Fatalf("explicit workers overwritten: %d", tu.Workers)
	}
}

func TestLoad_OverridesAndPalette(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := `
limits:
  max_width: 64
  max_height: 32
  max_depth: 4
block_version: 17959425
mask:
  id: " minecraft:barrier "
  legacy_id: 166
world:
  origin: [10, 0, -5]
`
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Limits.MaxWidth != 64 || got.Limits.MaxDepth != 4 {
		t.Fatalf("limits=%+v", got.Limits)
	}
	if got.Mask.ID != "minecraft:barrier" {
		t.Fatalf("mask not trimmed: %q", got.Mask.ID)
	}
	if got.Default.ID != "minecraft:stone" || got.JavaDataVersion != 3953 {
		t.Fatalf("defaults lost: %+v", got)
	}
	pc := got.Palette(palette.Legacy)
	if pc.Backend != palette.Legacy || pc.Mask.LegacyID != 166 || pc.BlockVersion != 17959425 {
		t.Fatalf("palette config=%+v", pc)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"no mask":    "mask:\n  id: \"\"\n",
		"bad origin": "world:\n  origin: [0, 999, 0]\n",
		"bad legacy": "default_block:\n  id: x\n  legacy_id: 300\n",
		"bad yaml":   "limits: [",
	}
	for name, raw := range cases {
		p := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
		if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
