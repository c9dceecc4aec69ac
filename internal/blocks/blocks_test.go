package blocks

import (
	"errors"
	"testing"
)

func TestParseHex(t *testing.T) {
	cases := []struct {
		in   string
		want Color
	}{
		{"#ffffff", Color{255, 255, 255, 255}},
		{"ff0000", Color{255, 0, 0, 255}},
		{"#00ff0080", Color{0, 255, 0, 128}},
	}
	for _, tc := range cases {
		got, err := ParseHex(tc.in)
		if err != nil {
			t.Fatalf("ParseHex(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseHex(%q)=%+v want %+v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseHex("#fff"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short hex: expected invalid input, got %v", err)
	}
	if _, err := ParseHex("#gggggg"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad digits: expected invalid input, got %v", err)
	}
}

func TestColor_PackedRoundTrip(t *testing.T) {
	c := RGBA(1, 2, 3, 4)
	if c.Packed() != 0x01020304 {
		t.Fatalf("packed=%#x", c.Packed())
	}
	if Unpacked(c.Packed()) != c {
		t.Fatalf("unpacked mismatch")
	}
	if RGBA(255, 0, 16, 255).Hex() != "#ff0010" {
		t.Fatalf("hex=%s", RGBA(255, 0, 16, 255).Hex())
	}
}

func TestBlockSpec_Color(t *testing.T) {
	c, err := BlockSpec{ID: "a", RGB: []int{10, 20, 30}}.Color()
	if err != nil || c != (Color{10, 20, 30, 255}) {
		t.Fatalf("rgb color=%+v err=%v", c, err)
	}
	if _, err := (BlockSpec{ID: "a", RGB: []int{10, 256, 30}}).Color(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("out of range channel: %v", err)
	}
	if _, err := (BlockSpec{ID: "a", RGB: []int{-1, 0, 0}}).Color(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative channel: %v", err)
	}
	if _, err := (BlockSpec{ID: "a"}).Color(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing color: %v", err)
	}
	c, err = BlockSpec{ID: "a", Hex: "#102030"}.Color()
	if err != nil || c != (Color{16, 32, 48, 255}) {
		t.Fatalf("hex color=%+v err=%v", c, err)
	}
}

func TestStateKey_OrderIndependent(t *testing.T) {
	a := map[string]any{"color": "red", "age": int32(3)}
	b := map[string]any{"age": int32(3), "color": "red"}
	if StateKey(a) != StateKey(b) {
		t.Fatalf("key depends on insertion order: %q vs %q", StateKey(a), StateKey(b))
	}
	if StateKey(map[string]any{"v": "1"}) == StateKey(map[string]any{"v": int32(1)}) {
		t.Fatalf("string and int states collide")
	}
	e1 := Entry{Name: "minecraft:wool", States: a}
	e2 := Entry{Name: "minecraft:wool", States: b}
	if e1.Key() != e2.Key() {
		t.Fatalf("entry keys differ")
	}
	if (Entry{Name: "minecraft:stone"}).Key() == (Entry{Name: "minecraft:wool"}).Key() {
		t.Fatalf("different names share a key")
	}
}

func TestNormalizeStates(t *testing.T) {
	got, err := NormalizeStates(map[string]any{
		"color":  "white",
		"lit":    true,
		"age":    float64(2),
		"facing": 5,
	})
	if err != nil {
		t.Fatalf("NormalizeStates: %v", err)
	}
	if got["lit"] != uint8(1) || got["age"] != int32(2) || got["facing"] != int32(5) || got["color"] != "white" {
		t.Fatalf("unexpected normalized states: %#v", got)
	}

	bad := []map[string]any{
		{"": "x"},
		{"age": 1.5},
		{"nested": map[string]any{"a": 1}},
		{"big": float64(1 << 40)},
	}
	for _, m := range bad {
		if _, err := NormalizeStates(m); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NormalizeStates(%v): expected invalid input, got %v", m, err)
		}
	}
}

func TestStringifyStates(t *testing.T) {
	got := StringifyStates(map[string]any{"lit": uint8(1), "age": int32(7), "axis": "y"})
	if got["lit"] != "true" || got["age"] != "7" || got["axis"] != "y" {
		t.Fatalf("unexpected properties: %#v", got)
	}
}

func TestCodeOf(t *testing.T) {
	err := PaletteExhausted("too many")
	if CodeOf(err) != CodePaletteExhausted {
		t.Fatalf("code=%q", CodeOf(err))
	}
	if !errors.Is(err, ErrPaletteExhausted) || errors.Is(err, ErrInvalidInput) {
		t.Fatalf("errors.Is mismatch")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("plain error has a code")
	}
}
