package tuning

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/blocks/palette"
	"pixelcraft.ai/internal/voxel"
)

type Tuning struct {
	Limits voxel.Limits `yaml:"limits"`
	// Workers bounds per-conversion parallelism. Normalize turns <= 0 into
	// GOMAXPROCS.
	Workers int `yaml:"workers"`

	BlockVersion    int32 `yaml:"block_version"`
	JavaDataVersion int32 `yaml:"java_data_version"`

	Mask    BlockRef `yaml:"mask"`
	Default BlockRef `yaml:"default_block"`

	World WorldConfig `yaml:"world"`
	Jobs  JobsConfig  `yaml:"jobs"`
}

// BlockRef names one block across all backends.
type BlockRef struct {
	ID         string `yaml:"id"`
	JavaID     string `yaml:"java_id,omitempty"`
	LegacyID   int    `yaml:"legacy_id"`
	LegacyData int    `yaml:"legacy_data"`
}

func (b BlockRef) Spec() blocks.BlockSpec {
	return blocks.BlockSpec{ID: b.ID, JavaID: b.JavaID, LegacyID: b.LegacyID, LegacyData: b.LegacyData}
}

type WorldConfig struct {
	Name        string   `yaml:"name"`
	Origin      [3]int   `yaml:"origin"`
	GameVersion [5]int32 `yaml:"game_version"`
}

type JobsConfig struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
	// KeepOutputs bounds how many finished outputs stay on disk. 0 keeps all.
	KeepOutputs int `yaml:"keep_outputs"`
}

func Defaults() Tuning {
	return Tuning{
		Limits:          voxel.DefaultLimits,
		BlockVersion:    18153475,
		JavaDataVersion: 3953,
		Mask:            BlockRef{ID: "minecraft:structure_void", LegacyID: 217},
		Default:         BlockRef{ID: "minecraft:stone", LegacyID: 1},
		World: WorldConfig{
			Name:        "pixelcraft",
			Origin:      [3]int{0, 64, 0},
			GameVersion: [5]int32{1, 21, 0, 3, 0},
		},
		Jobs: JobsConfig{Workers: 2, QueueDepth: 64},
	}
}

// Load reads a tuning file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.Mask.ID = strings.TrimSpace(t.Mask.ID)
	t.Default.ID = strings.TrimSpace(t.Default.ID)
	if t.World.Name == "" {
		t.World.Name = "pixelcraft"
	}
	if t.Workers <= 0 {
		t.Workers = runtime.GOMAXPROCS(0)
	}
	if t.Jobs.Workers <= 0 {
		t.Jobs.Workers = 1
	}
	if t.Jobs.QueueDepth <= 0 {
		t.Jobs.QueueDepth = 16
	}
}

func (t Tuning) Validate() error {
	if t.Limits.MaxWidth < 0 || t.Limits.MaxHeight < 0 || t.Limits.MaxDepth < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if t.Mask.ID == "" {
		return fmt.Errorf("mask.id is required")
	}
	if t.Default.ID == "" {
		return fmt.Errorf("default_block.id is required")
	}
	for _, r := range []BlockRef{t.Mask, t.Default} {
		if r.LegacyID < 0 || r.LegacyID > 255 || r.LegacyData < 0 || r.LegacyData > 15 {
			return fmt.Errorf("block %s: legacy id/data out of range", r.ID)
		}
	}
	if t.World.Origin[1] < -64 || t.World.Origin[1] >= 320 {
		return fmt.Errorf("world.origin y=%d outside [-64,320)", t.World.Origin[1])
	}
	return nil
}

// Palette returns the registry configuration for a backend.
func (t Tuning) Palette(b palette.Backend) palette.Config {
	return palette.Config{
		Backend:      b,
		Mask:         t.Mask.Spec(),
		Default:      t.Default.Spec(),
		BlockVersion: t.BlockVersion,
	}
}
