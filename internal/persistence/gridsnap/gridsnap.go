// Package gridsnap stores built grids on disk so a conversion can be
// re-encoded or inspected later without the source frames.
package gridsnap

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/encoding"
	"pixelcraft.ai/internal/voxel"
)

const Version = 1

type Header struct {
	Version    int    `json:"version"`
	JobID      string `json:"job_id,omitempty"`
	Format     string `json:"format"`
	Axis       string `json:"axis"`
	Size       [3]int `json:"size"`
	PaletteLen int    `json:"palette_len"`
	CreatedAt  int64  `json:"created_at"`
}

type dumpV1 struct {
	Header    Header
	Palette   []blocks.Entry
	Primary   []byte
	Secondary []byte
}

// Write stores g at path: a JSON header line followed by a gob body, all
// zstd-compressed. Index layers are run-length encoded.
func Write(path string, h Header, g *voxel.Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	h.Version = Version
	h.Size = g.Size
	h.PaletteLen = len(g.Palette)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	d := dumpV1{
		Header:    h,
		Palette:   g.Palette,
		Primary:   encoding.AppendLayer(nil, g.Primary),
		Secondary: encoding.AppendLayer(nil, g.Secondary),
	}
	if err := gob.NewEncoder(bw).Encode(&d); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func Read(path string) (Header, *voxel.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return Header{}, nil, fmt.Errorf("header: %w", err)
	}
	var d dumpV1
	if err := gob.NewDecoder(br).Decode(&d); err != nil {
		return Header{}, nil, fmt.Errorf("gob decode: %w", err)
	}
	if d.Header.Version != Version {
		return d.Header, nil, fmt.Errorf("unsupported dump version %d", d.Header.Version)
	}
	n := d.Header.Size[0] * d.Header.Size[1] * d.Header.Size[2]
	primary, err := encoding.ParseLayer(d.Primary, n)
	if err != nil {
		return d.Header, nil, fmt.Errorf("primary layer: %w", err)
	}
	secondary, err := encoding.ParseLayer(d.Secondary, n)
	if err != nil {
		return d.Header, nil, fmt.Errorf("secondary layer: %w", err)
	}
	g := &voxel.Grid{Size: d.Header.Size, Primary: primary, Secondary: secondary, Palette: d.Palette}
	if err := g.Validate(); err != nil {
		return d.Header, nil, err
	}
	return d.Header, g, nil
}
