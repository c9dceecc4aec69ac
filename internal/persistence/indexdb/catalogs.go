package indexdb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"pixelcraft.ai/internal/catalogs"
	"pixelcraft.ai/internal/tuning"
)

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

// catalogRows lists the configuration a server applies: the raw block
// definitions, the candidate ids in palette order and the tuning.
func catalogRows(configDir string, cat *catalogs.BlockCatalog, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	if cat != nil {
		if configDir != "" {
			if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil {
				rows = append(rows, catalogRow{name: "blocks_defs", digest: cat.DefsDigest, json: b})
			}
		}
		ids := make([]string, len(cat.Specs))
		for i, sp := range cat.Specs {
			ids[i] = sp.ID
		}
		if b, _ := json.Marshal(ids); len(b) > 0 {
			rows = append(rows, catalogRow{name: "blocks_palette", digest: cat.PaletteDigest, json: b})
		}
	}
	b, _ := json.Marshal(tune)
	sum := sha256.Sum256(b)
	rows = append(rows, catalogRow{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	return rows
}
