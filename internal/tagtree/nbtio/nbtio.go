// Package nbtio serializes tag trees. Bedrock files are little-endian NBT,
// Java structures big-endian NBT under gzip, and classic schematics use the
// Java writer with byte-array tags.
package nbtio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	mcnbt "github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// LevelDatVersion is the storage version in the level.dat header.
const LevelDatVersion = 10

// MarshalLE encodes a root compound as little-endian NBT.
func MarshalLE(root map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteLE(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteLE(w io.Writer, root map[string]any) error {
	if err := nbt.NewEncoderWithEncoding(w, nbt.LittleEndian).Encode(Ordered(root)); err != nil {
		return fmt.Errorf("nbt le: %w", err)
	}
	return nil
}

// UnmarshalLE decodes little-endian NBT into a generic tree.
func UnmarshalLE(b []byte) (map[string]any, error) {
	var m map[string]any
	if err := nbt.UnmarshalEncoding(b, &m, nbt.LittleEndian); err != nil {
		return nil, fmt.Errorf("nbt le: %w", err)
	}
	return m, nil
}

// WriteJavaGzip writes big-endian NBT through gzip.
func WriteJavaGzip(w io.Writer, root map[string]any) error {
	zw := gzip.NewWriter(w)
	if err := nbt.NewEncoderWithEncoding(zw, nbt.BigEndian).Encode(Ordered(root)); err != nil {
		_ = zw.Close()
		return fmt.Errorf("nbt be: %w", err)
	}
	return zw.Close()
}

func ReadJavaGzip(r io.Reader) (map[string]any, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	var m map[string]any
	if err := nbt.NewDecoderWithEncoding(zr, nbt.BigEndian).Decode(&m); err != nil {
		return nil, fmt.Errorf("nbt be: %w", err)
	}
	return m, nil
}

// WriteSchematic writes a classic schematic: a gzip big-endian compound named
// "Schematic". Byte slices become TAG_Byte_Array.
func WriteSchematic(w io.Writer, root map[string]any) error {
	zw := gzip.NewWriter(w)
	if err := mcnbt.NewEncoder(zw).Encode(Ordered(root), "Schematic"); err != nil {
		_ = zw.Close()
		return fmt.Errorf("schematic: %w", err)
	}
	return zw.Close()
}

// ReadSchematic returns the root tag name and the decoded tree.
func ReadSchematic(r io.Reader) (string, map[string]any, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return "", nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	var m map[string]any
	name, err := mcnbt.NewDecoder(zr).Decode(&m)
	if err != nil {
		return "", nil, fmt.Errorf("schematic: %w", err)
	}
	return name, m, nil
}

// MarshalLevelDat prefixes the little-endian NBT body with the storage
// version and body length, both LE int32.
func MarshalLevelDat(root map[string]any) ([]byte, error) {
	body, err := MarshalLE(root)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint32(out[0:4], LevelDatVersion)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	return append(out, body...), nil
}

func UnmarshalLevelDat(b []byte) (int32, map[string]any, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("level.dat: short header")
	}
	version := int32(binary.LittleEndian.Uint32(b[0:4]))
	n := int(binary.LittleEndian.Uint32(b[4:8]))
	if n != len(b)-8 {
		return 0, nil, fmt.Errorf("level.dat: body length %d, have %d", n, len(b)-8)
	}
	m, err := UnmarshalLE(b[8:])
	if err != nil {
		return 0, nil, err
	}
	return version, m, nil
}
