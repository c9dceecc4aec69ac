// Package palette builds the compacted output palette of one conversion.
//
// A Registry is per-call state: it owns the color memo and the output palette
// and must never be shared between conversions.
package palette

import (
	"fmt"
	"strings"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/blocks/quantize"
)

// AlphaThreshold is the visibility cutoff. Pixels with alpha below it resolve
// to the mask block without consulting the quantizer.
const AlphaThreshold = 128

// Backend selects how a winning BlockSpec is turned into a palette entry.
type Backend int

const (
	Bedrock Backend = iota
	Java
	Legacy
)

func (b Backend) String() string {
	switch b {
	case Bedrock:
		return "bedrock"
	case Java:
		return "java"
	case Legacy:
		return "legacy"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bedrock", "":
		return Bedrock, nil
	case "java":
		return Java, nil
	case "legacy":
		return Legacy, nil
	}
	return 0, blocks.InvalidInput("unknown backend %q", s)
}

type Config struct {
	Backend Backend
	// Mask is substituted for pixels below AlphaThreshold.
	Mask blocks.BlockSpec
	// Default is used for every opaque pixel when the source palette is empty.
	Default blocks.BlockSpec
	// BlockVersion is written on Bedrock entries whose spec has no version.
	BlockVersion int32
}

type Registry struct {
	cfg   Config
	specs []blocks.BlockSpec
	cands []quantize.Candidate

	memo    map[uint32]int // packed color -> output index
	winners map[uint32]int // packed color -> candidate position, filled by Prime
	byKey   map[string]int // entry key -> output index
	entries []blocks.Entry

	maskIndex   int
	usedDefault bool
}

// New validates the source palette and returns an empty registry for one
// conversion call.
func New(cfg Config, source []blocks.BlockSpec) (*Registry, error) {
	if strings.TrimSpace(cfg.Mask.ID) == "" {
		return nil, blocks.InvalidInput("palette: mask block not configured")
	}
	cands, err := quantize.Prepare(source)
	if err != nil {
		return nil, err
	}
	for _, s := range source {
		if strings.TrimSpace(s.ID) == "" {
			return nil, blocks.InvalidInput("palette: block with empty id")
		}
	}
	if len(source) == 0 && strings.TrimSpace(cfg.Default.ID) == "" {
		return nil, blocks.InvalidInput("palette: empty source palette and no default block")
	}
	return &Registry{
		cfg:       cfg,
		specs:     source,
		cands:     cands,
		memo:      map[uint32]int{},
		byKey:     map[string]int{},
		maskIndex: -1,
	}, nil
}

// Prime runs the quantizer for a batch of colors ahead of Resolve, spreading
// the searches over workers goroutines. Palette order is still decided by the
// order of Resolve calls.
func (r *Registry) Prime(colors []blocks.Color, workers int) error {
	if len(r.cands) == 0 {
		return nil
	}
	todo := make([]blocks.Color, 0, len(colors))
	seen := make(map[uint32]struct{}, len(colors))
	for _, c := range colors {
		if c.A < AlphaThreshold {
			continue
		}
		p := c.Packed()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		todo = append(todo, c)
	}
	won, err := quantize.NearestAll(todo, r.cands, workers)
	if err != nil {
		return err
	}
	if r.winners == nil {
		r.winners = make(map[uint32]int, len(todo))
	}
	for i, c := range todo {
		r.winners[c.Packed()] = won[i]
	}
	return nil
}

// Resolve returns the output palette entry for a pixel color and its index.
// The first occurrence of a block appends it; repeats return the same index.
func (r *Registry) Resolve(c blocks.Color) (blocks.Entry, int, error) {
	p := c.Packed()
	if i, ok := r.memo[p]; ok {
		return r.entries[i], i, nil
	}

	var spec blocks.BlockSpec
	switch {
	case c.A < AlphaThreshold:
		if r.maskIndex >= 0 {
			r.memo[p] = r.maskIndex
			return r.entries[r.maskIndex], r.maskIndex, nil
		}
		spec = r.cfg.Mask
	case len(r.cands) == 0:
		r.usedDefault = true
		spec = r.cfg.Default
	default:
		w, ok := r.winners[p]
		if !ok {
			var err error
			if w, err = quantize.Nearest(c, r.cands); err != nil {
				return blocks.Entry{}, -1, err
			}
		}
		spec = r.specs[r.cands[w].Index]
	}

	e, err := r.entryFor(spec)
	if err != nil {
		return blocks.Entry{}, -1, err
	}
	i := r.add(e)
	if c.A < AlphaThreshold {
		r.maskIndex = i
	}
	r.memo[p] = i
	return e, i, nil
}

// Mask resolves the mask block directly.
func (r *Registry) Mask() (blocks.Entry, int, error) {
	return r.Resolve(blocks.Color{})
}

func (r *Registry) add(e blocks.Entry) int {
	k := e.Key()
	if i, ok := r.byKey[k]; ok {
		return i
	}
	i := len(r.entries)
	r.entries = append(r.entries, e)
	r.byKey[k] = i
	return i
}

// Entries returns the output palette in first-seen order.
func (r *Registry) Entries() []blocks.Entry {
	out := make([]blocks.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) Len() int { return len(r.entries) }

// UsedDefault reports whether the empty-palette fallback was taken.
func (r *Registry) UsedDefault() bool { return r.usedDefault }

func (r *Registry) Backend() Backend { return r.cfg.Backend }
