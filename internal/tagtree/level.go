package tagtree

// World describes the level.dat of a generated world.
type World struct {
	Name          string
	Spawn         [3]int32
	LastPlayed    int64
	Seed          int64
	GameVersion   [5]int32
	FlatLayers    string
	StorageFormat int32
}

// FlatLayersVoid is a flat generator preset with no layers, so the world
// holds nothing but the converted structure.
const FlatLayersVoid = `{"biome_id":1,"block_layers":[],"encoding_version":6,"structure_options":null,"world_version":"version.post_1_18"}`

// LevelDat is the root compound of level.dat: a creative flat world with
// cheats on and the daylight cycle stopped.
func LevelDat(w World) map[string]any {
	v := w.GameVersion
	return map[string]any{
		"LevelName":             w.Name,
		"StorageVersion":        w.StorageFormat,
		"NetworkVersion":        int32(685),
		"GameType":              int32(1),
		"Generator":             int32(2),
		"Difficulty":            int32(0),
		"FlatWorldLayers":       w.FlatLayers,
		"SpawnX":                w.Spawn[0],
		"SpawnY":                w.Spawn[1],
		"SpawnZ":                w.Spawn[2],
		"LastPlayed":            w.LastPlayed,
		"RandomSeed":            w.Seed,
		"commandsEnabled":       uint8(1),
		"cheatsEnabled":         uint8(1),
		"doDaylightCycle":       uint8(0),
		"spawnMobs":             uint8(0),
		"lastOpenedWithVersion": []int32{v[0], v[1], v[2], v[3], v[4]},
	}
}
