// Package pipeline is the one conversion entry point shared by the CLI, the
// HTTP and websocket handlers, and the background job worker.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/blocks/palette"
	"pixelcraft.ai/internal/catalogs"
	"pixelcraft.ai/internal/persistence/archive"
	"pixelcraft.ai/internal/persistence/kv"
	"pixelcraft.ai/internal/protocol"
	"pixelcraft.ai/internal/tagtree"
	"pixelcraft.ai/internal/tagtree/nbtio"
	"pixelcraft.ai/internal/tuning"
	"pixelcraft.ai/internal/voxel"
	"pixelcraft.ai/internal/voxel/rotate"
	"pixelcraft.ai/internal/world/region"
	"pixelcraft.ai/internal/world/subchunk"
)

const DefaultName = "pixelcraft"

type Request struct {
	Frames []voxel.Frame
	// Palette overrides the catalog when non-nil. An empty, non-nil palette
	// converts every opaque pixel to the default block.
	Palette []blocks.BlockSpec
	Format  Format
	Axis    rotate.Axis
	Name    string

	// Progress, when set, is called at stage boundaries.
	Progress func(stage string, done, total int)
}

type Result struct {
	Filename    string
	Bytes       []byte
	Size        [3]int
	PaletteLen  int
	UsedDefault bool
	Elapsed     time.Duration

	// Grid is the rotated dense grid. It is nil for Structure outputs, which
	// are built as position lists.
	Grid *voxel.Grid
}

// Converter holds the shared, read-only configuration. Convert is safe for
// concurrent use; every call builds its own palette registry.
type Converter struct {
	Tuning  tuning.Tuning
	Catalog *catalogs.BlockCatalog
	Logger  *log.Logger

	// WorldDir holds the scratch LevelDB directories of mcworld encodes.
	// Empty means the system temp dir.
	WorldDir string

	now func() time.Time
}

func New(t tuning.Tuning, cat *catalogs.BlockCatalog, logger *log.Logger) *Converter {
	t.Normalize()
	return &Converter{Tuning: t, Catalog: cat, Logger: logger, now: time.Now}
}

func (c *Converter) source(req Request) []blocks.BlockSpec {
	if req.Palette != nil {
		return req.Palette
	}
	if c.Catalog != nil {
		return c.Catalog.Specs
	}
	return nil
}

func (c *Converter) Convert(ctx context.Context, req Request) (*Result, error) {
	start := c.clock()
	if len(req.Frames) == 0 {
		return nil, blocks.InvalidInput("no frames")
	}
	name := SanitizeName(req.Name)
	progress := func(stage string, done, total int) {
		if req.Progress != nil {
			req.Progress(stage, done, total)
		}
	}

	reg, err := palette.New(c.Tuning.Palette(req.Format.Backend()), c.source(req))
	if err != nil {
		return nil, err
	}
	b := voxel.Builder{
		Limits:  c.Tuning.Limits,
		Palette: c.Tuning.Palette(req.Format.Backend()),
		Workers: c.Tuning.Workers,
	}

	res := &Result{Filename: name + req.Format.Ext()}
	var out []byte
	progress(protocol.StageBuild, 0, 1)
	switch req.Format {
	case Structure:
		sp, err := b.BuildSparseWith(reg, req.Frames)
		if err != nil {
			return nil, err
		}
		res.Size, res.PaletteLen = sp.Size, len(sp.Palette)
		progress(protocol.StageBuild, 1, 1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(protocol.StageEncode, 0, 1)
		out, err = c.encodeStructure(sp)
		if err != nil {
			return nil, err
		}

	case MCStructure, Schematic, MCWorld:
		g, err := b.BuildWith(reg, req.Frames, req.Axis)
		if err != nil {
			return nil, err
		}
		res.Grid, res.Size, res.PaletteLen = g, g.Size, len(g.Palette)
		progress(protocol.StageBuild, 1, 1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(protocol.StageEncode, 0, 1)
		out, err = c.Encode(ctx, req.Format, g, name)
		if err != nil {
			return nil, err
		}

	default:
		return nil, blocks.InvalidInput("unknown format %d", int(req.Format))
	}
	progress(protocol.StageEncode, 1, 1)

	res.Bytes = out
	res.UsedDefault = reg.UsedDefault()
	res.Elapsed = c.clock().Sub(start)
	if res.UsedDefault {
		c.printf("convert name=%s: empty source palette, every opaque pixel uses %s", name, c.Tuning.Default.ID)
	}
	c.printf("convert name=%s format=%s axis=%s frames=%d size=%v palette=%d out=%s elapsed=%s",
		name, req.Format, req.Axis, len(req.Frames), res.Size, res.PaletteLen,
		humanize.Bytes(uint64(len(out))), res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// Encode writes an already built dense grid in one of the dense formats.
// Structure outputs need a position list and are rejected.
func (c *Converter) Encode(ctx context.Context, f Format, g *voxel.Grid, name string) ([]byte, error) {
	switch f {
	case MCStructure:
		return EncodeMCStructure(g)
	case Schematic:
		return EncodeSchematic(g)
	case MCWorld:
		return c.encodeWorld(ctx, g, SanitizeName(name))
	}
	return nil, blocks.InvalidInput("format %s cannot be encoded from a dense grid", f)
}

func EncodeMCStructure(g *voxel.Grid) ([]byte, error) {
	tree, err := tagtree.MCStructure(g, [3]int32{})
	if err != nil {
		return nil, err
	}
	return nbtio.MarshalLE(tree)
}

func EncodeSchematic(g *voxel.Grid) ([]byte, error) {
	tree, err := tagtree.Schematic(g)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := nbtio.WriteSchematic(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Converter) encodeStructure(sp *voxel.Sparse) ([]byte, error) {
	tree, err := tagtree.JavaStructure(sp, c.Tuning.JavaDataVersion)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := nbtio.WriteJavaGzip(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeWorld places the grid at the configured origin and packs the world
// into a .mcworld archive. Mask voxels stay air.
func (c *Converter) encodeWorld(ctx context.Context, g *voxel.Grid, name string) ([]byte, error) {
	origin := c.Tuning.World.Origin
	w := region.New()
	mask := c.Tuning.Mask.ID
	if err := w.PlaceGrid(g, origin, func(e blocks.Entry) bool { return e.Name == mask }); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sink, done, err := c.openSink()
	if err != nil {
		return nil, err
	}
	defer done()
	st, err := w.Encode(sink, subchunk.Encoder{BlockVersion: c.Tuning.BlockVersion}, c.Tuning.Workers)
	if err != nil {
		return nil, err
	}
	files, err := sink.ToFiles()
	if err != nil {
		return nil, err
	}

	level, err := nbtio.MarshalLevelDat(tagtree.LevelDat(tagtree.World{
		Name:          name,
		Spawn:         [3]int32{int32(origin[0] + g.Size[0]/2), int32(origin[1] + g.Size[1]), int32(origin[2] - 2)},
		LastPlayed:    c.clock().Unix(),
		GameVersion:   c.Tuning.World.GameVersion,
		FlatLayers:    tagtree.FlatLayersVoid,
		StorageFormat: nbtio.LevelDatVersion,
	}))
	if err != nil {
		return nil, err
	}
	files["level.dat"] = level
	files["levelname.txt"] = []byte(name)

	out, err := archive.Zip(files)
	if err != nil {
		return nil, err
	}
	c.printf("world name=%s chunks=%d subchunks=%d records=%s", name, st.Chunks, st.Subchunks, humanize.Bytes(uint64(st.Bytes)))
	return out, nil
}

// openSink creates the world database in a scratch directory under
// WorldDir, or the system temp dir when WorldDir is empty.
func (c *Converter) openSink() (*kv.LevelDB, func(), error) {
	if c.WorldDir != "" {
		if err := os.MkdirAll(c.WorldDir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	dir, err := os.MkdirTemp(c.WorldDir, "world-*")
	if err != nil {
		return nil, nil, err
	}
	s, err := kv.Open(filepath.Join(dir, kv.DBDir))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("world store: %w", err)
	}
	return s, func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	}, nil
}

// SanitizeName keeps a file-name-safe subset of name.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	if b.Len() == 0 {
		return DefaultName
	}
	return b.String()
}

func (c *Converter) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Converter) printf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}
