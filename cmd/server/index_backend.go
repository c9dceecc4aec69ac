package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pixelcraft.ai/internal/catalogs"
	"pixelcraft.ai/internal/persistence/indexdb"
	"pixelcraft.ai/internal/service"
	"pixelcraft.ai/internal/tuning"
)

type jobIndex interface {
	service.Index
	Close() error
	Stats() indexdb.Stats
	UpsertCatalogs(configDir string, cat *catalogs.BlockCatalog, tune tuning.Tuning) error
}

func openJobIndex(dataDir string, disableDB bool, logger *log.Logger) (jobIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("PC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "jobs.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("PC_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("PC_INDEX_BACKEND=d1 but PC_INDEX_D1_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("PC_INDEX_D1_INGEST_TOKEN")),
			Instance:      strings.TrimSpace(os.Getenv("PC_INDEX_D1_INSTANCE")),
			BatchSize:     envInt("PC_INDEX_D1_BATCH_SIZE", 64),
			FlushInterval: time.Duration(envInt("PC_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported PC_INDEX_BACKEND: %s", backend)
	}
}
