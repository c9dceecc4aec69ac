package pipeline

import (
	"bytes"
	"fmt"
	"sort"

	"pixelcraft.ai/internal/persistence/archive"
	"pixelcraft.ai/internal/persistence/kv"
	"pixelcraft.ai/internal/tagtree/nbtio"
	"pixelcraft.ai/internal/world/region"
	"pixelcraft.ai/internal/world/subchunk"
)

// Summary describes an encoded output.
type Summary struct {
	Format     Format
	Size       [3]int
	PaletteLen int
	// Blocks counts placed, non-air voxels.
	Blocks int

	LevelName string
	Files     []string
	Chunks    int
	Subchunks int
}

// Inspect decodes an output produced by Convert.
func Inspect(f Format, data []byte) (*Summary, error) {
	s := &Summary{Format: f}
	var err error
	switch f {
	case MCStructure:
		err = inspectMCStructure(s, data)
	case Structure:
		err = inspectStructure(s, data)
	case Schematic:
		err = inspectSchematic(s, data)
	case MCWorld:
		err = inspectWorld(s, data)
	default:
		err = fmt.Errorf("unknown format %d", int(f))
	}
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", f, err)
	}
	return s, nil
}

func inspectMCStructure(s *Summary, data []byte) error {
	m, err := nbtio.UnmarshalLE(data)
	if err != nil {
		return err
	}
	if s.Size, err = size3(m["size"]); err != nil {
		return err
	}
	st, _ := m["structure"].(map[string]any)
	layers, _ := st["block_indices"].([]any)
	if len(layers) != 2 {
		return fmt.Errorf("block_indices: want 2 layers, got %d", len(layers))
	}
	primary, _ := layers[0].([]any)
	for _, v := range primary {
		if n, ok := toInt(v); ok && n >= 0 {
			s.Blocks++
		}
	}
	pal, _ := st["palette"].(map[string]any)
	def, _ := pal["default"].(map[string]any)
	entries, _ := def["block_palette"].([]any)
	s.PaletteLen = len(entries)
	return nil
}

func inspectStructure(s *Summary, data []byte) error {
	m, err := nbtio.ReadJavaGzip(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if s.Size, err = size3(m["size"]); err != nil {
		return err
	}
	list, _ := m["blocks"].([]any)
	pal, _ := m["palette"].([]any)
	s.Blocks, s.PaletteLen = len(list), len(pal)
	return nil
}

func inspectSchematic(s *Summary, data []byte) error {
	name, m, err := nbtio.ReadSchematic(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if name != "Schematic" {
		return fmt.Errorf("root tag %q", name)
	}
	for i, k := range []string{"Width", "Height", "Length"} {
		n, ok := toInt(m[k])
		if !ok {
			return fmt.Errorf("missing %s", k)
		}
		s.Size[i] = n
	}
	ids := byteSlice(m["Blocks"])
	seen := map[byte]struct{}{}
	for _, id := range ids {
		if id != 0 {
			s.Blocks++
			seen[id] = struct{}{}
		}
	}
	s.PaletteLen = len(seen)
	return nil
}

func inspectWorld(s *Summary, data []byte) error {
	files, err := archive.Unzip(data)
	if err != nil {
		return err
	}
	for name := range files {
		s.Files = append(s.Files, name)
	}
	sort.Strings(s.Files)

	lvl, ok := files["level.dat"]
	if !ok {
		return fmt.Errorf("missing level.dat")
	}
	_, root, err := nbtio.UnmarshalLevelDat(lvl)
	if err != nil {
		return err
	}
	s.LevelName, _ = root["LevelName"].(string)

	if _, ok := files[kv.DBDir+"/CURRENT"]; !ok {
		return fmt.Errorf("missing %s/CURRENT", kv.DBDir)
	}
	names := map[string]struct{}{}
	err = kv.ReadRecords(files, func(key, value []byte) error {
		k, err := region.ParseKey(key)
		if err != nil {
			return err
		}
		switch k.Tag {
		case region.TagVersion:
			s.Chunks++
		case region.TagSubChunk:
			s.Subchunks++
			rec, err := subchunk.Unpack(value)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			idx, err := rec.Indices()
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			for _, i := range idx {
				if i != 0 {
					s.Blocks++
				}
			}
			for _, e := range rec.Palette[1:] {
				names[e.Key()] = struct{}{}
			}
		}
		return nil
	})
	s.PaletteLen = len(names)
	return err
}

func size3(v any) ([3]int, error) {
	var out [3]int
	list, ok := v.([]any)
	if !ok {
		if arr, ok := v.([]int32); ok {
			for _, n := range arr {
				list = append(list, n)
			}
		}
	}
	if len(list) != 3 {
		return out, fmt.Errorf("size: want 3 values, got %v", v)
	}
	for i, e := range list {
		n, ok := toInt(e)
		if !ok {
			return out, fmt.Errorf("size[%d]: %T", i, e)
		}
		out[i] = n
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int8:
		return int(n), true
	case uint8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func byteSlice(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case []int8:
		out := make([]byte, len(b))
		for i, x := range b {
			out[i] = byte(x)
		}
		return out
	case []any:
		out := make([]byte, 0, len(b))
		for _, x := range b {
			n, _ := toInt(x)
			out = append(out, byte(n))
		}
		return out
	}
	return nil
}
