package quantize

import (
	"errors"
	"testing"

	"pixelcraft.ai/internal/blocks"
)

func specs() []blocks.BlockSpec {
	return []blocks.BlockSpec{
		{ID: "block:white", Hex: "#ffffff"},
		{ID: "block:red", Hex: "#ff0000"},
		{ID: "block:black", RGB: []int{0, 0, 0}},
	}
}

func TestNearest_PicksClosest(t *testing.T) {
	cases := []struct {
		c    blocks.Color
		want string
	}{
		{blocks.RGBA(250, 250, 250, 255), "block:white"},
		{blocks.RGBA(200, 10, 10, 255), "block:red"},
		{blocks.RGBA(10, 10, 10, 255), "block:black"},
		// Alpha is ignored.
		{blocks.RGBA(255, 0, 0, 0), "block:red"},
	}
	for _, tc := range cases {
		got, err := NearestSpec(tc.c, specs())
		if err != nil {
			t.Fatalf("NearestSpec: %v", err)
		}
		if got.ID != tc.want {
			t.Fatalf("NearestSpec(%+v)=%s want %s", tc.c, got.ID, tc.want)
		}
	}
}

func TestNearest_TieKeepsFirst(t *testing.T) {
	s := []blocks.BlockSpec{
		{ID: "first", RGB: []int{0, 0, 0}},
		{ID: "second", RGB: []int{20, 0, 0}},
		{ID: "third", RGB: []int{0, 0, 0}},
	}
	got, err := NearestSpec(blocks.RGBA(10, 0, 0, 255), s)
	if err != nil {
		t.Fatalf("NearestSpec: %v", err)
	}
	if got.ID != "first" {
		t.Fatalf("tie resolved to %s, want first", got.ID)
	}
}

func TestNearest_EmptyCandidates(t *testing.T) {
	if _, err := Nearest(blocks.RGBA(0, 0, 0, 255), nil); !errors.Is(err, blocks.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPrepare_RejectsBadColor(t *testing.T) {
	_, err := Prepare([]blocks.BlockSpec{{ID: "x", RGB: []int{0, 300, 0}}})
	if !errors.Is(err, blocks.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestNearestAll_MatchesSequential(t *testing.T) {
	cands, err := Prepare(specs())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	colors := make([]blocks.Color, 0, 300)
	for i := 0; i < 300; i++ {
		colors = append(colors, blocks.RGBA(uint8(i), uint8(i*7), uint8(i*13), 255))
	}
	seq, err := NearestAll(colors, cands, 1)
	if err != nil {
		t.Fatalf("NearestAll seq: %v", err)
	}
	par, err := NearestAll(colors, cands, 8)
	if err != nil {
		t.Fatalf("NearestAll par: %v", err)
	}
	for i := range seq {
		if seq[i] != par[i] {
			t.Fatalf("mismatch at %d: %d vs %d", i, seq[i], par[i])
		}
	}
}
