package indexdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pixelcraft.ai/internal/catalogs"
	"pixelcraft.ai/internal/tuning"
)

// ErrWriteOnly is returned by lookups on an index that only ships rows to a
// remote ingest endpoint.
var ErrWriteOnly = errors.New("indexdb: write-only backend")

type D1Config struct {
	Endpoint string
	Token    string
	// Instance tags every event so several servers can share one database.
	Instance      string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	QueueCapacity int
	Logger        *log.Logger
}

// D1Index batches job rows and catalog rows to an HTTP ingest worker in
// front of a Cloudflare D1 database. It is write-only: reads are served by
// the job manager's in-memory view.
type D1Index struct {
	cfg        D1Config
	httpClient *http.Client
	retryWait  time.Duration

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropJobTotal    atomic.Uint64
	flushFailTotal  atomic.Uint64
	sentEventsTotal atomic.Uint64
}

type d1Event struct {
	Kind     string `json:"kind"`
	Instance string `json:"instance"`
	Payload  any    `json:"payload"`
}

type d1CatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

type d1Batch struct {
	Events []d1Event `json:"events"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Instance = strings.TrimSpace(cfg.Instance)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.Instance == "" {
		cfg.Instance = "pixelcraft"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 4096
	}

	d := &D1Index{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		retryWait:  100 * time.Millisecond,
		ch:         make(chan d1Event, cfg.QueueCapacity),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

// Close flushes queued events and stops the sender.
func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(d.ch),
		QueueCapacity:  cap(d.ch),
		DropJobTotal:   d.dropJobTotal.Load(),
		SentTotal:      d.sentEventsTotal.Load(),
		FlushFailTotal: d.flushFailTotal.Load(),
	}
}

// RecordJob queues a job row for the next batch. The ingest side upserts by
// id, so later states replace earlier ones.
func (d *D1Index) RecordJob(j JobRow) {
	if d == nil || d.closed.Load() || j.ID == "" {
		return
	}
	if j.UpdatedAt == "" {
		j.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if j.CreatedAt == "" {
		j.CreatedAt = j.UpdatedAt
	}
	d.enqueue(d1Event{Kind: "job", Instance: d.cfg.Instance, Payload: j})
}

func (d *D1Index) GetJob(ctx context.Context, id string) (JobRow, bool, error) {
	return JobRow{}, false, ErrWriteOnly
}

func (d *D1Index) ListJobs(ctx context.Context, state string, limit int) ([]JobRow, error) {
	return nil, ErrWriteOnly
}

func (d *D1Index) UpsertCatalogs(configDir string, cat *catalogs.BlockCatalog, tune tuning.Tuning) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range catalogRows(configDir, cat, tune) {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		d.enqueue(d1Event{Kind: "catalog", Instance: d.cfg.Instance, Payload: d1CatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.json),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (d *D1Index) enqueue(ev d1Event) {
	defer func() {
		// Close raced with the send.
		_ = recover()
	}()
	select {
	case d.ch <- ev:
	default:
		d.dropJobTotal.Add(1)
		d.printf("d1 index queue full; drop kind=%s", ev.Kind)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.send(batch); err != nil {
			d.flushFailTotal.Add(1)
			d.printf("d1 index flush failed batch=%d err=%v", len(batch), err)
		} else {
			d.sentEventsTotal.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) send(events []d1Event) error {
	buf, err := json.Marshal(d1Batch{Events: events})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(d.retryWait << (attempt - 1))
		}
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("X-Pc-Index-Token", d.cfg.Token)
		}
		resp, err := d.httpClient.Do(req)
		if err == nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
			// Client errors will not succeed on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return err
			}
		}
		lastErr = err
	}
	return lastErr
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
