package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"pixelcraft.ai/internal/persistence/r2s3"
)

// buildMirror returns nil when PC_R2_MIRROR is off.
func buildMirror(dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("PC_R2_MIRROR", false) {
		return nil, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("PC_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("PC_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("PC_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("PC_R2_SECRET_ACCESS_KEY"))
	prefix := strings.TrimSpace(os.Getenv("PC_R2_PREFIX"))

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("PC_R2_MIRROR=true but PC_R2_ENDPOINT/PC_R2_BUCKET/PC_R2_ACCESS_KEY_ID/PC_R2_SECRET_ACCESS_KEY are not fully set")
	}
	client, err := r2s3.New(endpoint, bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	return r2s3.NewMirror(client, dataDir, r2s3.MirrorOptions{
		Prefix:        prefix,
		Workers:       envInt("PC_R2_UPLOAD_WORKERS", 2),
		QueueCapacity: envInt("PC_R2_QUEUE", 256),
		EnqueueWait:   time.Duration(envInt("PC_R2_ENQUEUE_WAIT_MS", 25)) * time.Millisecond,
		Logger:        logger,
	}), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
