package pipeline

import (
	"strings"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/blocks/palette"
)

// Format is an output container.
type Format int

const (
	MCStructure Format = iota
	Structure
	Schematic
	MCWorld
)

var formatNames = [...]string{"mcstructure", "structure", "schematic", "mcworld"}
var formatExts = [...]string{".mcstructure", ".nbt", ".schematic", ".mcworld"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "?"
	}
	return formatNames[f]
}

// Ext is the file extension of the format, with the dot.
func (f Format) Ext() string {
	if f < 0 || int(f) >= len(formatExts) {
		return ".bin"
	}
	return formatExts[f]
}

// Backend is the palette flavor the format stores.
func (f Format) Backend() palette.Backend {
	switch f {
	case Structure:
		return palette.Java
	case Schematic:
		return palette.Legacy
	default:
		return palette.Bedrock
	}
}

func ParseFormat(s string) (Format, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	switch s {
	case "", "mcstructure":
		return MCStructure, nil
	case "structure", "nbt":
		return Structure, nil
	case "schematic", "schem":
		return Schematic, nil
	case "mcworld", "world":
		return MCWorld, nil
	}
	return MCStructure, blocks.InvalidInput("unknown format %q", s)
}

// FormatOf guesses the format from a file name.
func FormatOf(name string) (Format, error) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return MCStructure, blocks.InvalidInput("no extension on %q", name)
	}
	return ParseFormat(name[i:])
}
