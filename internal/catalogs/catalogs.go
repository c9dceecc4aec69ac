package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"pixelcraft.ai/internal/blocks"
)

// BlockCatalog is a validated candidate palette. Specs keep file order, which
// decides quantizer ties.
type BlockCatalog struct {
	Specs []blocks.BlockSpec
	Index map[string]int // id -> first spec with that id

	// DefsDigest hashes the raw file; PaletteDigest hashes the id list.
	DefsDigest    string
	PaletteDigest string
}

func (c *BlockCatalog) Len() int { return len(c.Specs) }

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CompileSchema compiles the palette schema. An empty path disables
// validation.
func CompileSchema(path string) (*jsonschema.Schema, error) {
	if path == "" {
		return nil, nil
	}
	s, err := jsonschema.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("palette schema: %w", err)
	}
	return s, nil
}

// Load reads configDir/blocks.json, validating it against schemaPath when set.
func Load(configDir, schemaPath string) (*BlockCatalog, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "blocks.json"))
	if err != nil {
		return nil, err
	}
	schema, err := CompileSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw, schema)
	if err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	return c, nil
}

// Parse validates and decodes a palette document. schema may be nil.
func Parse(raw []byte, schema *jsonschema.Schema) (*BlockCatalog, error) {
	if schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, blocks.InvalidInput("palette: %v", err)
		}
		if err := schema.Validate(doc); err != nil {
			return nil, blocks.InvalidInput("palette: %v", err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var specs []blocks.BlockSpec
	if err := dec.Decode(&specs); err != nil {
		return nil, blocks.InvalidInput("palette: %v", err)
	}
	return New(specs, sha256Hex(raw))
}

// New checks specs and builds the catalog.
func New(specs []blocks.BlockSpec, digest string) (*BlockCatalog, error) {
	c := &BlockCatalog{Specs: specs, Index: make(map[string]int, len(specs)), DefsDigest: digest}
	seen := map[string]int{}
	ids := make([]string, 0, len(specs))
	for i := range specs {
		s := &specs[i]
		if s.ID == "" {
			return nil, blocks.InvalidInput("palette: entry %d has empty id", i)
		}
		if _, err := s.Color(); err != nil {
			return nil, err
		}
		states, err := blocks.NormalizeStates(s.States)
		if err != nil {
			return nil, blocks.InvalidInput("palette: %s: %v", s.ID, err)
		}
		s.States = states
		k := s.ID + "|" + blocks.StateKey(states)
		if j, ok := seen[k]; ok {
			return nil, blocks.InvalidInput("palette: entry %d duplicates entry %d (%s)", i, j, s.ID)
		}
		seen[k] = i
		if _, ok := c.Index[s.ID]; !ok {
			c.Index[s.ID] = i
		}
		ids = append(ids, s.ID)
	}
	palJSON, _ := json.Marshal(ids)
	c.PaletteDigest = sha256Hex(palJSON)
	return c, nil
}
