package subchunk

import (
	"math/bits"

	"pixelcraft.ai/internal/blocks"
)

// BitsPerBlock is the packed width for a local palette of n entries:
// max(1, ceil(log2 n)).
func BitsPerBlock(n int) int {
	if n <= 1 {
		return 1
	}
	return bits.Len(uint(n - 1))
}

// WordCount is the number of 32-bit words holding Slots indices.
func WordCount(bitsPerBlock int) int {
	per := 32 / bitsPerBlock
	return (Slots + per - 1) / per
}

// PackWords packs indices at the given width, low bits first. Indices never
// straddle a word; the unused high bits of each word are zero.
func PackWords(indices []uint16, bitsPerBlock int) ([]uint32, error) {
	if bitsPerBlock < 1 || bitsPerBlock > MaxBits {
		return nil, blocks.PaletteExhausted("subchunk: %d bits per block", bitsPerBlock)
	}
	if len(indices) != Slots {
		return nil, blocks.LengthMismatch("subchunk: %d indices, want %d", len(indices), Slots)
	}
	per := 32 / bitsPerBlock
	limit := uint32(1) << bitsPerBlock
	words := make([]uint32, WordCount(bitsPerBlock))
	for i, v := range indices {
		if uint32(v) >= limit {
			return nil, blocks.IndexOutOfRange("subchunk: index %d does not fit %d bits", v, bitsPerBlock)
		}
		words[i/per] |= uint32(v) << (uint(i%per) * uint(bitsPerBlock))
	}
	return words, nil
}

// UnpackWords reverses PackWords.
func UnpackWords(words []uint32, bitsPerBlock int) ([]uint16, error) {
	if bitsPerBlock < 1 || bitsPerBlock > MaxBits {
		return nil, blocks.InvalidInput("subchunk: %d bits per block", bitsPerBlock)
	}
	if want := WordCount(bitsPerBlock); len(words) != want {
		return nil, blocks.LengthMismatch("subchunk: %d words, want %d", len(words), want)
	}
	per := 32 / bitsPerBlock
	mask := uint32(1)<<bitsPerBlock - 1
	out := make([]uint16, Slots)
	for i := range out {
		out[i] = uint16(words[i/per] >> (uint(i%per) * uint(bitsPerBlock)) & mask)
	}
	return out, nil
}
