// Package subchunk packs one 16x16x16 cube of blocks into the on-disk
// paletted storage format.
package subchunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sandertv/gophertunnel/minecraft/nbt"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/tagtree/nbtio"
)

const (
	Edge  = 16
	Slots = Edge * Edge * Edge

	// Version is the storage version byte written in front of every record.
	Version = 8
	// MaxBits is the widest index the format addresses.
	MaxBits = 16

	AirName = "minecraft:air"
)

// Block places one block at local coordinates in [0,16).
type Block struct {
	X, Y, Z int
	Name    string
	States  map[string]any
	Version int32
}

// Slot is the storage index of a local coordinate.
func Slot(x, y, z int) int { return x*256 + z*16 + y }

// Record is a decoded subchunk. Palette[0] is always air.
type Record struct {
	Version uint8
	Bits    int
	Words   []uint32
	Palette []blocks.Entry
}

// Encoder packs subchunks. The zero value writes version 0 on palette
// entries that carry none.
type Encoder struct {
	BlockVersion int32
}

// Encode builds the record for a set of blocks. Later blocks at the same
// coordinate overwrite earlier ones.
func (e Encoder) Encode(in []Block) (*Record, error) {
	air := blocks.Entry{Name: AirName, States: map[string]any{}, Version: e.BlockVersion}
	pal := []blocks.Entry{air}
	seen := map[string]int{air.Key(): 0}
	indices := make([]uint16, Slots)

	for _, b := range in {
		if b.X < 0 || b.X >= Edge || b.Y < 0 || b.Y >= Edge || b.Z < 0 || b.Z >= Edge {
			return nil, blocks.InvalidInput("subchunk: local coordinate (%d,%d,%d) outside [0,16)", b.X, b.Y, b.Z)
		}
		if b.Name == "" {
			return nil, blocks.InvalidInput("subchunk: block at (%d,%d,%d) has no name", b.X, b.Y, b.Z)
		}
		states := b.States
		if states == nil {
			states = map[string]any{}
		}
		v := b.Version
		if v == 0 {
			v = e.BlockVersion
		}
		ent := blocks.Entry{Name: b.Name, States: states, Version: v}
		k := ent.Key()
		idx, ok := seen[k]
		if !ok {
			idx = len(pal)
			if idx >= 1<<MaxBits {
				return nil, blocks.PaletteExhausted("subchunk: more than %d distinct blocks", 1<<MaxBits)
			}
			pal = append(pal, ent)
			seen[k] = idx
		}
		indices[Slot(b.X, b.Y, b.Z)] = uint16(idx)
	}

	nbits := BitsPerBlock(len(pal))
	if nbits > MaxBits {
		return nil, blocks.PaletteExhausted("subchunk: palette of %d needs %d bits", len(pal), nbits)
	}
	words, err := PackWords(indices, nbits)
	if err != nil {
		return nil, err
	}
	return &Record{Version: Version, Bits: nbits, Words: words, Palette: pal}, nil
}

// Pack encodes and serializes in one step.
func (e Encoder) Pack(in []Block) ([]byte, error) {
	r, err := e.Encode(in)
	if err != nil {
		return nil, err
	}
	return r.MarshalBinary()
}

// Indices unpacks the per-slot palette offsets.
func (r *Record) Indices() ([]uint16, error) {
	return UnpackWords(r.Words, r.Bits)
}

// At returns the palette entry stored at a local coordinate.
func (r *Record) At(x, y, z int) (blocks.Entry, error) {
	if x < 0 || x >= Edge || y < 0 || y >= Edge || z < 0 || z >= Edge {
		return blocks.Entry{}, blocks.InvalidInput("subchunk: local coordinate (%d,%d,%d) outside [0,16)", x, y, z)
	}
	idx, err := r.Indices()
	if err != nil {
		return blocks.Entry{}, err
	}
	i := int(idx[Slot(x, y, z)])
	if i >= len(r.Palette) {
		return blocks.Entry{}, blocks.IndexOutOfRange("subchunk: slot references palette %d of %d", i, len(r.Palette))
	}
	return r.Palette[i], nil
}

// MarshalBinary writes: version, storage count (1), bits<<1, the packed words,
// the palette length and one little-endian NBT compound per palette entry.
func (r *Record) MarshalBinary() ([]byte, error) {
	if r.Bits < 1 || r.Bits > MaxBits {
		return nil, blocks.PaletteExhausted("subchunk: %d bits per block", r.Bits)
	}
	if len(r.Palette) > 1<<r.Bits {
		return nil, blocks.PaletteExhausted("subchunk: palette of %d does not fit %d bits", len(r.Palette), r.Bits)
	}
	var buf bytes.Buffer
	buf.Grow(3 + 4*len(r.Words) + 4 + 48*len(r.Palette))
	buf.WriteByte(r.Version)
	buf.WriteByte(1)
	buf.WriteByte(byte(r.Bits << 1))
	var w [4]byte
	for _, word := range r.Words {
		binary.LittleEndian.PutUint32(w[:], word)
		buf.Write(w[:])
	}
	binary.LittleEndian.PutUint32(w[:], uint32(int32(len(r.Palette))))
	buf.Write(w[:])

	enc := nbt.NewEncoderWithEncoding(&buf, nbt.LittleEndian)
	for i, p := range r.Palette {
		states := p.States
		if states == nil {
			states = map[string]any{}
		}
		tag := map[string]any{
			"name":    p.Name,
			"states":  states,
			"version": p.Version,
		}
		if err := enc.Encode(nbtio.Ordered(tag)); err != nil {
			return nil, fmt.Errorf("subchunk: palette entry %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Unpack parses bytes produced by MarshalBinary. Only the first storage layer
// is read.
func Unpack(b []byte) (*Record, error) {
	rd := bytes.NewReader(b)
	var hdr [3]byte
	if _, err := io.ReadFull(rd, hdr[:]); err != nil {
		return nil, blocks.InvalidInput("subchunk: short header: %v", err)
	}
	if hdr[0] != Version {
		return nil, blocks.InvalidInput("subchunk: unsupported version %d", hdr[0])
	}
	if hdr[1] < 1 {
		return nil, blocks.InvalidInput("subchunk: no storage layers")
	}
	if hdr[2]&1 != 0 {
		return nil, blocks.InvalidInput("subchunk: runtime palette not supported")
	}
	nbits := int(hdr[2] >> 1)
	if nbits < 1 || nbits > MaxBits {
		return nil, blocks.InvalidInput("subchunk: %d bits per block", nbits)
	}
	words := make([]uint32, WordCount(nbits))
	if err := binary.Read(rd, binary.LittleEndian, words); err != nil {
		return nil, blocks.InvalidInput("subchunk: short word data: %v", err)
	}
	var n int32
	if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
		return nil, blocks.InvalidInput("subchunk: missing palette length: %v", err)
	}
	if n < 1 || int(n) > 1<<nbits {
		return nil, blocks.InvalidInput("subchunk: palette length %d for %d bits", n, nbits)
	}
	dec := nbt.NewDecoderWithEncoding(rd, nbt.LittleEndian)
	pal := make([]blocks.Entry, 0, n)
	for i := 0; i < int(n); i++ {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return nil, blocks.InvalidInput("subchunk: palette entry %d: %v", i, err)
		}
		name, _ := m["name"].(string)
		states, _ := m["states"].(map[string]any)
		version, _ := m["version"].(int32)
		pal = append(pal, blocks.Entry{Name: name, States: states, Version: version})
	}
	return &Record{Version: hdr[0], Bits: nbits, Words: words, Palette: pal}, nil
}
