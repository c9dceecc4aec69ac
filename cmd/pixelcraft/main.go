package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pixelcraft.ai/internal/catalogs"
	"pixelcraft.ai/internal/frames"
	"pixelcraft.ai/internal/persistence/gridsnap"
	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/tuning"
	"pixelcraft.ai/internal/voxel"
	"pixelcraft.ai/internal/voxel/rotate"
)

func main() {
	var (
		in          = flag.String("in", "", "input image, animated gif, directory of frames, or comma separated frame list")
		format      = flag.String("format", "mcstructure", "mcstructure|structure|schematic|mcworld")
		axis        = flag.String("axis", "x", "stacking axis: x|y|z")
		outPath     = flag.String("out", "", "output path (default: <name><ext> in the current directory)")
		name        = flag.String("name", "", "output name (default: first input file name)")
		configDir   = flag.String("configs", "./configs", "config directory (blocks.json, tuning.yaml)")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml when present)")
		palettePath = flag.String("palette", "", "candidate palette json (default: <configs>/blocks.json)")
		schemaPath  = flag.String("schema", "./schemas/palette.schema.json", "palette schema (empty to skip validation)")
		dumpPath    = flag.String("dump", "", "also write the built grid to this .zst dump (dense formats)")
		verify      = flag.Bool("verify", false, "decode the written output and print its summary")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[pixelcraft] ", log.LstdFlags|log.Lmicroseconds)

	if strings.TrimSpace(*in) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}
	f, err := pipeline.ParseFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -format:", err)
		os.Exit(2)
	}
	ax, err := rotate.ParseAxis(*axis)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -axis:", err)
		os.Exit(2)
	}

	tune, err := loadTuning(*configDir, *tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	cat, err := loadPalette(*configDir, *palettePath, *schemaPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load palette:", err)
		os.Exit(1)
	}

	paths, err := expandInputs(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "inputs:", err)
		os.Exit(1)
	}
	frs, err := readFrames(paths, tune.Limits)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}

	n := *name
	if strings.TrimSpace(n) == "" {
		n = filepath.Base(paths[0])
	}
	conv := pipeline.New(tune, cat, logger)
	res, err := conv.Convert(context.Background(), pipeline.Request{
		Frames: frs,
		Format: f,
		Axis:   ax,
		Name:   n,
		Progress: func(stage string, done, total int) {
			logger.Printf("%s %d/%d", stage, done, total)
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "convert:", err)
		os.Exit(1)
	}

	dst := *outPath
	if dst == "" {
		dst = res.Filename
	}
	if err := os.WriteFile(dst, res.Bytes, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	if *dumpPath != "" && res.Grid != nil {
		h := gridsnap.Header{Format: f.String(), Axis: ax.String()}
		if err := gridsnap.Write(*dumpPath, h, res.Grid); err != nil {
			fmt.Fprintln(os.Stderr, "dump:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("%s: %s size=%v palette=%d frames=%d\n", dst, f, res.Size, res.PaletteLen, len(frs))

	if *verify {
		s, err := pipeline.Inspect(f, res.Bytes)
		if err != nil {
			fmt.Fprintln(os.Stderr, "verify:", err)
			os.Exit(1)
		}
		fmt.Printf("verify ok: size=%v palette=%d blocks=%d chunks=%d subchunks=%d\n",
			s.Size, s.PaletteLen, s.Blocks, s.Chunks, s.Subchunks)
	}
}

func loadTuning(configDir, path string) (tuning.Tuning, error) {
	if strings.TrimSpace(path) != "" {
		return tuning.Load(path)
	}
	p := filepath.Join(configDir, "tuning.yaml")
	if _, err := os.Stat(p); err != nil {
		return tuning.Load("")
	}
	return tuning.Load(p)
}

func loadPalette(configDir, path, schemaPath string) (*catalogs.BlockCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return catalogs.Load(configDir, schemaPath)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	schema, err := catalogs.CompileSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	return catalogs.Parse(raw, schema)
}

var frameExts = map[string]bool{".png": true, ".gif": true, ".jpg": true, ".jpeg": true}

// expandInputs turns -in into an ordered path list. A directory yields its
// image files sorted by name.
func expandInputs(in string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(in, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		st, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			out = append(out, p)
			continue
		}
		ents, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range ents {
			if !e.IsDir() && frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, filepath.Join(p, n))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no input frames in %q", in)
	}
	return out, nil
}

// readFrames decodes a single input with every frame it holds, or several
// inputs as one still frame each. Frames are checked against lim as they
// are read.
func readFrames(paths []string, lim voxel.Limits) ([]voxel.Frame, error) {
	if len(paths) == 1 {
		return frames.DecodeFile(paths[0], lim)
	}
	return frames.DecodeFiles(paths, lim)
}
