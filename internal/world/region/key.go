package region

import (
	"encoding/binary"
	"fmt"

	"pixelcraft.ai/internal/blocks"
)

// Tag identifies the record type stored under a chunk key.
type Tag byte

const (
	TagData2D         Tag = 45
	TagSubChunk       Tag = 47
	TagVersion        Tag = 44
	TagFinalizedState Tag = 54
)

func (t Tag) String() string {
	switch t {
	case TagData2D:
		return "data2d"
	case TagSubChunk:
		return "subchunk"
	case TagVersion:
		return "version"
	case TagFinalizedState:
		return "finalized_state"
	default:
		return fmt.Sprintf("tag(%d)", byte(t))
	}
}

// ChunkKey addresses one stored record. SubY is only present for subchunk
// records.
type ChunkKey struct {
	X, Z int32
	Tag  Tag
	SubY int8
}

func (k ChunkKey) hasSubY() bool { return k.Tag == TagSubChunk }

// Bytes is LE32(X) ++ LE32(Z) ++ tag [++ subY].
func (k ChunkKey) Bytes() []byte {
	n := 9
	if k.hasSubY() {
		n = 10
	}
	b := make([]byte, n)
	binary.LittleEndian.PutUint32(b[0:4], uint32(k.X))
	binary.LittleEndian.PutUint32(b[4:8], uint32(k.Z))
	b[8] = byte(k.Tag)
	if k.hasSubY() {
		b[9] = byte(k.SubY)
	}
	return b
}

func (k ChunkKey) String() string {
	if k.hasSubY() {
		return fmt.Sprintf("%d,%d/%s/%d", k.X, k.Z, k.Tag, k.SubY)
	}
	return fmt.Sprintf("%d,%d/%s", k.X, k.Z, k.Tag)
}

// ParseKey reverses Bytes for overworld keys.
func ParseKey(b []byte) (ChunkKey, error) {
	if len(b) != 9 && len(b) != 10 {
		return ChunkKey{}, blocks.InvalidInput("chunk key: %d bytes", len(b))
	}
	k := ChunkKey{
		X:   int32(binary.LittleEndian.Uint32(b[0:4])),
		Z:   int32(binary.LittleEndian.Uint32(b[4:8])),
		Tag: Tag(b[8]),
	}
	if k.hasSubY() != (len(b) == 10) {
		return ChunkKey{}, blocks.InvalidInput("chunk key: tag %s with %d bytes", k.Tag, len(b))
	}
	if len(b) == 10 {
		k.SubY = int8(b[9])
	}
	return k, nil
}
