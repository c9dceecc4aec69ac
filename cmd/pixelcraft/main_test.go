package main

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/voxel"
)

func writePNG(t *testing.T, path string, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestExpandInputs_DirectorySortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), color.NRGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(dir, "a.png"), color.NRGBA{G: 255, A: 255})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	paths, err := expandInputs(dir)
	if err != nil {
		t.Fatalf("expandInputs: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.png" || filepath.Base(paths[1]) != "b.png" {
		t.Fatalf("paths=%v", paths)
	}

	frs, err := readFrames(paths, voxel.Limits{})
	if err != nil {
		t.Fatalf("readFrames: %v", err)
	}
	if len(frs) != 2 || frs[0].Width() != 2 || frs[0].Height() != 2 {
		t.Fatalf("frames=%d", len(frs))
	}
	if c := frs[0].At(0, 0); c.G != 255 || c.R != 0 {
		t.Fatalf("first frame should be a.png, got %+v", c)
	}

	frs, err = readFrames(paths, voxel.Limits{MaxDepth: 1})
	if err != nil || len(frs) != 1 {
		t.Fatalf("depth cap: frames=%d err=%v", len(frs), err)
	}
	if _, err := readFrames(paths, voxel.Limits{MaxWidth: 1}); !errors.Is(err, blocks.ErrInvalidInput) {
		t.Fatalf("width cap: %v", err)
	}
}

func TestExpandInputs_CommaListAndErrors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	writePNG(t, a, color.NRGBA{B: 255, A: 255})
	paths, err := expandInputs(a + ", ," + a)
	if err != nil || len(paths) != 2 {
		t.Fatalf("paths=%v err=%v", paths, err)
	}
	if _, err := expandInputs(filepath.Join(dir, "missing.png")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := expandInputs(t.TempDir()); err == nil {
		t.Fatalf("expected empty directory error")
	}
}

func TestLoadTuning_FallsBackToDefaults(t *testing.T) {
	tune, err := loadTuning(t.TempDir(), "")
	if err != nil {
		t.Fatalf("loadTuning: %v", err)
	}
	if tune.Default.ID != "minecraft:stone" {
		t.Fatalf("default block=%q", tune.Default.ID)
	}
}

func TestLoadPalette_ExplicitFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "p.json")
	raw := `[{"id":"minecraft:white_wool","hex":"#ffffff"},{"id":"minecraft:black_wool","hex":"#000000"}]`
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := loadPalette("", p, "")
	if err != nil {
		t.Fatalf("loadPalette: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("len=%d", cat.Len())
	}
}
