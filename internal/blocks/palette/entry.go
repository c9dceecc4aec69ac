package palette

import (
	"pixelcraft.ai/internal/blocks"
)

// entryFor maps a BlockSpec onto the structural entry of the configured
// backend.
func (r *Registry) entryFor(s blocks.BlockSpec) (blocks.Entry, error) {
	states, err := blocks.NormalizeStates(s.States)
	if err != nil {
		return blocks.Entry{}, blocks.InvalidInput("block %q: %v", s.ID, err)
	}
	switch r.cfg.Backend {
	case Java:
		return javaEntry(s, states), nil
	case Legacy:
		return legacyEntry(s, states)
	default:
		v := s.Version
		if v == 0 {
			v = r.cfg.BlockVersion
		}
		return blocks.Entry{Name: s.ID, States: states, Version: v}, nil
	}
}

func javaEntry(s blocks.BlockSpec, states map[string]any) blocks.Entry {
	name := s.ID
	if s.JavaID != "" {
		name = s.JavaID
	}
	var props map[string]any
	src := s.JavaProperties
	if src == nil {
		src = blocks.StringifyStates(states)
	}
	if len(src) > 0 {
		props = make(map[string]any, len(src))
		for k, v := range src {
			props[k] = v
		}
	}
	return blocks.Entry{Name: name, States: props}
}

func legacyEntry(s blocks.BlockSpec, states map[string]any) (blocks.Entry, error) {
	if s.LegacyID < 0 || s.LegacyID > 255 {
		return blocks.Entry{}, blocks.InvalidInput("block %q: legacy id %d out of range", s.ID, s.LegacyID)
	}
	if s.LegacyData < 0 || s.LegacyData > 15 {
		return blocks.Entry{}, blocks.InvalidInput("block %q: legacy data %d out of range", s.ID, s.LegacyData)
	}
	return blocks.Entry{
		Name:       s.ID,
		States:     states,
		LegacyID:   uint8(s.LegacyID),
		LegacyData: uint8(s.LegacyData),
	}, nil
}
