package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeLayer encodes an index layer as base64(varint pairs): (value, run)
// repeated. Values are zigzag varints so the -1 empty marker stays one byte.
func EncodeLayer(layer []int32) string {
	return base64.StdEncoding.EncodeToString(AppendLayer(nil, layer))
}

// AppendLayer appends the raw varint pairs without base64.
func AppendLayer(dst []byte, layer []int32) []byte {
	buf := bytes.NewBuffer(dst)
	var tmp [binary.MaxVarintLen64]byte
	for i := 0; i < len(layer); {
		v := layer[i]
		run := 1
		for j := i + 1; j < len(layer) && layer[j] == v && run < 1<<31; j++ {
			run++
		}
		n := binary.PutVarint(tmp[:], int64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return buf.Bytes()
}

func DecodeLayer(b64 string, want int) ([]int32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return ParseLayer(raw, want)
}

// ParseLayer decodes raw varint pairs. want is the expected voxel count;
// a negative want skips the check.
func ParseLayer(raw []byte, want int) ([]int32, error) {
	var out []int32
	if want > 0 {
		out = make([]int32, 0, want)
	}
	for i := 0; i < len(raw); {
		v, n := binary.Varint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v < -1<<31 || v > 1<<31-1 {
			return nil, fmt.Errorf("value out of int32 range: %d", v)
		}
		if want >= 0 && len(out)+int(run) > want {
			return nil, fmt.Errorf("layer longer than %d", want)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, int32(v))
		}
	}
	if want >= 0 && len(out) != want {
		return nil, fmt.Errorf("layer has %d values, want %d", len(out), want)
	}
	return out, nil
}
