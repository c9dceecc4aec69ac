// Package region assembles blocks into chunk records for the world backend.
package region

import (
	"encoding/binary"
	"sort"

	"golang.org/x/sync/errgroup"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/voxel"
	"pixelcraft.ai/internal/world/subchunk"
)

const (
	MinY = -64
	MaxY = 320

	// ChunkVersion is the value of the version record.
	ChunkVersion = 40
	// FinalizedDone marks a chunk as fully generated.
	FinalizedDone = 2
	// BiomePlains fills the 2D biome map.
	BiomePlains = 1
)

// Sink receives encoded records.
type Sink interface {
	Put(key, value []byte) error
}

type ChunkPos struct{ X, Z int32 }

type chunk struct {
	subs   map[int8][]subchunk.Block
	height [256]int16
}

// World collects blocks by chunk. It is not safe for concurrent Set calls.
type World struct {
	chunks map[ChunkPos]*chunk
	count  int
}

func New() *World {
	return &World{chunks: map[ChunkPos]*chunk{}}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Set places a block at world coordinates.
func (w *World) Set(x, y, z int, e blocks.Entry) error {
	if y < MinY || y >= MaxY {
		return blocks.InvalidInput("world: y=%d outside [%d,%d)", y, MinY, MaxY)
	}
	if e.Name == "" {
		return blocks.InvalidInput("world: block at (%d,%d,%d) has no name", x, y, z)
	}
	cx, cz := floorDiv(x, 16), floorDiv(z, 16)
	pos := ChunkPos{X: int32(cx), Z: int32(cz)}
	c := w.chunks[pos]
	if c == nil {
		c = &chunk{subs: map[int8][]subchunk.Block{}}
		w.chunks[pos] = c
	}
	lx, lz := x-cx*16, z-cz*16
	sy := floorDiv(y, 16)
	c.subs[int8(sy)] = append(c.subs[int8(sy)], subchunk.Block{
		X: lx, Y: y - sy*16, Z: lz,
		Name: e.Name, States: e.States, Version: e.Version,
	})
	if h := int16(y - MinY + 1); h > c.height[lz*16+lx] {
		c.height[lz*16+lx] = h
	}
	w.count++
	return nil
}

// PlaceGrid copies a dense grid into the world with its (0,0,0) corner at
// origin. Empty voxels and entries for which skip returns true are left as air.
func (w *World) PlaceGrid(g *voxel.Grid, origin [3]int, skip func(blocks.Entry) bool) error {
	if err := g.Validate(); err != nil {
		return err
	}
	for i, v := range g.Primary {
		if v == voxel.Empty {
			continue
		}
		e := g.Palette[v]
		if skip != nil && skip(e) {
			continue
		}
		x, y, z := g.Coord(i)
		if err := w.Set(origin[0]+x, origin[1]+y, origin[2]+z, e); err != nil {
			return err
		}
	}
	return nil
}

// Len is the number of Set calls accepted.
func (w *World) Len() int { return w.count }

// Chunks returns chunk positions sorted by X then Z.
func (w *World) Chunks() []ChunkPos {
	out := make([]ChunkPos, 0, len(w.chunks))
	for p := range w.chunks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Z < out[j].Z
	})
	return out
}

// Heightmap returns the 2D height record for a chunk: 256 LE int16 values
// indexed z*16+x (topmost block y-MinY+1, 0 for an empty column) followed by
// 256 biome bytes.
func (w *World) Heightmap(p ChunkPos) []byte {
	c := w.chunks[p]
	out := make([]byte, 512+256)
	for i := 512; i < len(out); i++ {
		out[i] = BiomePlains
	}
	if c == nil {
		return out
	}
	for i, h := range c.height {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(h))
	}
	return out
}

// Stats summarizes an Encode call.
type Stats struct {
	Chunks    int
	Subchunks int
	Bytes     int
}

type packed struct {
	key   ChunkKey
	value []byte
}

// Encode packs every subchunk, spreading the work over workers goroutines,
// then writes all records to sink in key order.
func (w *World) Encode(sink Sink, enc subchunk.Encoder, workers int) (Stats, error) {
	var st Stats
	type job struct {
		key    ChunkKey
		blocks []subchunk.Block
	}
	var jobs []job
	positions := w.Chunks()
	for _, p := range positions {
		c := w.chunks[p]
		ys := make([]int, 0, len(c.subs))
		for y := range c.subs {
			ys = append(ys, int(y))
		}
		sort.Ints(ys)
		for _, y := range ys {
			jobs = append(jobs, job{
				key:    ChunkKey{X: p.X, Z: p.Z, Tag: TagSubChunk, SubY: int8(y)},
				blocks: c.subs[int8(y)],
			})
		}
	}

	out := make([]packed, len(jobs))
	var eg errgroup.Group
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i := range jobs {
		i := i
		eg.Go(func() error {
			b, err := enc.Pack(jobs[i].blocks)
			if err != nil {
				return err
			}
			out[i] = packed{key: jobs[i].key, value: b}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return st, err
	}

	put := func(k ChunkKey, v []byte) error {
		st.Bytes += len(v)
		return sink.Put(k.Bytes(), v)
	}
	var fin [4]byte
	binary.LittleEndian.PutUint32(fin[:], FinalizedDone)
	j := 0
	for _, p := range positions {
		if err := put(ChunkKey{X: p.X, Z: p.Z, Tag: TagVersion}, []byte{ChunkVersion}); err != nil {
			return st, err
		}
		for j < len(out) && out[j].key.X == p.X && out[j].key.Z == p.Z {
			if err := put(out[j].key, out[j].value); err != nil {
				return st, err
			}
			st.Subchunks++
			j++
		}
		if err := put(ChunkKey{X: p.X, Z: p.Z, Tag: TagData2D}, w.Heightmap(p)); err != nil {
			return st, err
		}
		if err := put(ChunkKey{X: p.X, Z: p.Z, Tag: TagFinalizedState}, append([]byte(nil), fin[:]...)); err != nil {
			return st, err
		}
		st.Chunks++
	}
	return st, nil
}
