package blocks

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// BlockSpec is one candidate of the caller-supplied source palette.
type BlockSpec struct {
	ID      string         `json:"id"`
	Hex     string         `json:"hex,omitempty"`
	RGB     []int          `json:"rgb,omitempty"` // 3 or 4 channels, 0..255
	States  map[string]any `json:"states,omitempty"`
	Version int32          `json:"version,omitempty"`

	// Java edition identity, when it differs from the Bedrock one.
	JavaID         string            `json:"java_id,omitempty"`
	JavaProperties map[string]string `json:"java_properties,omitempty"`

	// Pre-flattening numeric identity used by classic schematics.
	LegacyID   int `json:"legacy_id,omitempty"`
	LegacyData int `json:"legacy_data,omitempty"`
}

// Color resolves the spec's color. RGB wins over Hex when both are set.
func (b BlockSpec) Color() (Color, error) {
	if len(b.RGB) > 0 {
		if len(b.RGB) != 3 && len(b.RGB) != 4 {
			return Color{}, InvalidInput("block %q: rgb needs 3 or 4 channels, got %d", b.ID, len(b.RGB))
		}
		var ch [4]uint8
		ch[3] = 0xFF
		for i, v := range b.RGB {
			if v < 0 || v > 255 {
				return Color{}, InvalidInput("block %q: channel %d out of range: %d", b.ID, i, v)
			}
			ch[i] = uint8(v)
		}
		return Color{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
	}
	if b.Hex != "" {
		c, err := ParseHex(b.Hex)
		if err != nil {
			return Color{}, InvalidInput("block %q: %v", b.ID, err)
		}
		return c, nil
	}
	return Color{}, InvalidInput("block %q: no color", b.ID)
}

// Entry is one slot of the compacted output palette. Two entries are the same
// block when Key() matches.
type Entry struct {
	Name    string         `json:"name"`
	States  map[string]any `json:"states,omitempty"`
	Version int32          `json:"version,omitempty"`

	LegacyID   uint8 `json:"legacy_id,omitempty"`
	LegacyData uint8 `json:"legacy_data,omitempty"`
}

// Key is the dedup key: the block name plus its canonical state set.
func (e Entry) Key() string {
	return e.Name + "|" + StateKey(e.States)
}

// StateKey serializes a state map independent of key order. Values keep
// their type so that 1, "1" and true never collide.
func StateKey(states map[string]any) string {
	if len(states) == 0 {
		return ""
	}
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte('=')
		switch v := states[k].(type) {
		case string:
			sb.WriteString(strconv.Quote(v))
		case uint8:
			sb.WriteString("b" + strconv.Itoa(int(v)))
		case int32:
			sb.WriteString("i" + strconv.Itoa(int(v)))
		case bool:
			sb.WriteString(strconv.FormatBool(v))
		default:
			// Unnormalized values still get a stable rendering.
			sb.WriteString("?" + strconv.Quote(fmt.Sprint(v)))
		}
	}
	return sb.String()
}

// NormalizeStates converts a state map into the Bedrock scalar set: string,
// byte (uint8, also used for booleans) and int32. JSON numbers must be
// integral and fit in an int32. Anything else is a malformed state map.
func NormalizeStates(states map[string]any) (map[string]any, error) {
	if len(states) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(states))
	for k, v := range states {
		if k == "" {
			return nil, InvalidInput("state map: empty key")
		}
		n, err := normalizeScalar(v)
		if err != nil {
			return nil, InvalidInput("state %q: %v", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func normalizeScalar(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		if x {
			return uint8(1), nil
		}
		return uint8(0), nil
	case uint8:
		return x, nil
	case int32:
		return x, nil
	case int:
		return intToInt32(int64(x))
	case int64:
		return intToInt32(x)
	case int16:
		return int32(x), nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integral number %s", x)
		}
		return intToInt32(i)
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, fmt.Errorf("non-integral number %v", x)
		}
		return intToInt32(int64(x))
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func intToInt32(v int64) (any, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return nil, fmt.Errorf("integer %d overflows int32", v)
	}
	return int32(v), nil
}

// StringifyStates renders normalized states as Java block properties.
func StringifyStates(states map[string]any) map[string]string {
	if len(states) == 0 {
		return nil
	}
	out := make(map[string]string, len(states))
	for k, v := range states {
		switch x := v.(type) {
		case string:
			out[k] = x
		case uint8:
			// Booleans were normalized to bytes.
			if x == 1 {
				out[k] = "true"
			} else if x == 0 {
				out[k] = "false"
			} else {
				out[k] = strconv.Itoa(int(x))
			}
		case int32:
			out[k] = strconv.Itoa(int(x))
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
