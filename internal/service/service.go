// Package service runs conversions as background jobs: it queues
// submissions, stores finished outputs under the data directory and keeps
// the job index and conversion log current.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/persistence/archive"
	"pixelcraft.ai/internal/persistence/gridsnap"
	"pixelcraft.ai/internal/persistence/indexdb"
	plog "pixelcraft.ai/internal/persistence/log"
	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/protocol"
	"pixelcraft.ai/internal/voxel"
	"pixelcraft.ai/internal/voxel/rotate"
)

// Job states.
const (
	StateQueued  = "QUEUED"
	StateRunning = "RUNNING"
	StateDone    = "DONE"
	StateFailed  = "FAILED"
)

var (
	ErrQueueFull = errors.New("service: job queue full")
	ErrClosed    = errors.New("service: closed")
)

// Index is the persistent job table.
type Index interface {
	RecordJob(j indexdb.JobRow)
	GetJob(ctx context.Context, id string) (indexdb.JobRow, bool, error)
	ListJobs(ctx context.Context, state string, limit int) ([]indexdb.JobRow, error)
}

// Mirror receives finished files for upload.
type Mirror interface {
	Enqueue(localPath string)
}

// ConversionLog records one line per finished conversion.
type ConversionLog interface {
	WriteConversion(e plog.ConversionEntry) error
}

type Submission struct {
	Frames  []voxel.Frame
	Palette []blocks.BlockSpec
	Format  pipeline.Format
	Axis    rotate.Axis
	Name    string
	// Source names the input for logs (file name, remote address).
	Source string
}

type Config struct {
	Converter   *pipeline.Converter
	DataDir     string
	Workers     int
	QueueDepth  int
	KeepOutputs int

	Index   Index
	Mirror  Mirror
	ConvLog ConversionLog
	Logger  *log.Logger
}

type task struct {
	row indexdb.JobRow
	sub Submission
}

type Manager struct {
	cfg Config

	queue chan task
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
	jobs   map[string]indexdb.JobRow
	order  []string

	now func() time.Time
}

// maxCachedJobs bounds the in-memory view. Older jobs are served from the
// index.
const maxCachedJobs = 1024

func New(cfg Config) (*Manager, error) {
	if cfg.Converter == nil {
		return nil, fmt.Errorf("service: converter is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, fmt.Errorf("service: data dir is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 16
	}
	m := &Manager{
		cfg:   cfg,
		queue: make(chan task, cfg.QueueDepth),
		jobs:  map[string]indexdb.JobRow{},
		now:   time.Now,
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for t := range m.queue {
				m.run(t)
			}
		}()
	}
	return m, nil
}

// Submit queues a conversion and returns its job row. It never blocks: a
// full queue is reported as ErrQueueFull.
func (m *Manager) Submit(sub Submission) (indexdb.JobRow, error) {
	if len(sub.Frames) == 0 {
		return indexdb.JobRow{}, blocks.InvalidInput("no frames")
	}
	now := m.stamp()
	row := indexdb.JobRow{
		ID:        uuid.NewString(),
		State:     StateQueued,
		Source:    sub.Source,
		Format:    sub.Format.String(),
		Axis:      sub.Axis.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return indexdb.JobRow{}, ErrClosed
	}
	// Senders hold mu, so a free slot stays free until the send below.
	if len(m.queue) == cap(m.queue) {
		return indexdb.JobRow{}, ErrQueueFull
	}
	// QUEUED must reach the index before a worker can record RUNNING.
	m.putLocked(row)
	if m.cfg.Index != nil {
		m.cfg.Index.RecordJob(row)
	}
	m.queue <- task{row: row, sub: sub}
	return row, nil
}

// Convert runs a conversion synchronously and logs it like a job.
func (m *Manager) Convert(ctx context.Context, sub Submission, progress func(stage string, done, total int)) (*pipeline.Result, error) {
	start := m.now()
	res, err := m.cfg.Converter.Convert(ctx, pipeline.Request{
		Frames:   sub.Frames,
		Palette:  sub.Palette,
		Format:   sub.Format,
		Axis:     sub.Axis,
		Name:     sub.Name,
		Progress: progress,
	})
	m.logConversion("", sub, res, err, m.now().Sub(start))
	return res, err
}

func (m *Manager) run(t task) {
	row := t.row
	row.State = StateRunning
	row.UpdatedAt = m.stamp()
	m.put(row)

	start := m.now()
	res, err := m.cfg.Converter.Convert(context.Background(), pipeline.Request{
		Frames:  t.sub.Frames,
		Palette: t.sub.Palette,
		Format:  t.sub.Format,
		Axis:    t.sub.Axis,
		Name:    t.sub.Name,
	})
	if err == nil {
		err = m.store(&row, t.sub, res)
	}
	elapsed := m.now().Sub(start)
	m.logConversion(row.ID, t.sub, res, err, elapsed)

	row.UpdatedAt = m.stamp()
	if err != nil {
		row.State = StateFailed
		row.ErrorCode = protocol.CodeFor(err)
		row.Error = err.Error()
		m.printf("job %s failed code=%s err=%v", row.ID, row.ErrorCode, err)
		m.put(row)
		return
	}
	row.State = StateDone
	m.put(row)
	m.printf("job %s done format=%s out=%s elapsed=%s", row.ID, row.Format, humanize.Bytes(uint64(row.Bytes)), elapsed.Round(time.Millisecond))

	if m.cfg.Mirror != nil {
		m.cfg.Mirror.Enqueue(row.OutputPath)
		if row.DumpPath != "" {
			m.cfg.Mirror.Enqueue(row.DumpPath)
		}
	}
	if m.cfg.KeepOutputs > 0 {
		if n, err := archive.Prune(m.cfg.DataDir, m.cfg.KeepOutputs); err != nil {
			m.printf("prune outputs: %v", err)
		} else if n > 0 {
			m.printf("pruned %d old outputs", n)
		}
	}
}

// store writes the output, its meta.json and, for dense outputs, a grid dump.
func (m *Manager) store(row *indexdb.JobRow, sub Submission, res *pipeline.Result) error {
	out, err := archive.StoreOutput(m.cfg.DataDir, res.Filename, res.Bytes, archive.OutputMeta{
		JobID:      row.ID,
		Source:     sub.Source,
		Format:     row.Format,
		Axis:       row.Axis,
		Size:       res.Size,
		PaletteLen: res.PaletteLen,
		CreatedAt:  row.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("store output: %w", err)
	}
	row.OutputPath = out
	row.SizeX, row.SizeY, row.SizeZ = res.Size[0], res.Size[1], res.Size[2]
	row.PaletteLen = res.PaletteLen
	row.Bytes = int64(len(res.Bytes))

	if res.Grid != nil {
		dump := filepath.Join(filepath.Dir(out), "grid.zst")
		err := gridsnap.Write(dump, gridsnap.Header{
			JobID:     row.ID,
			Format:    row.Format,
			Axis:      row.Axis,
			CreatedAt: m.now().Unix(),
		}, res.Grid)
		if err != nil {
			return fmt.Errorf("grid dump: %w", err)
		}
		row.DumpPath = dump
	}
	return nil
}

// MarkMirrored records the bucket key of an uploaded output. It is meant as
// the mirror's upload callback.
func (m *Manager) MarkMirrored(localPath, key string) {
	id := filepath.Base(filepath.Dir(localPath))
	m.mu.Lock()
	row, ok := m.jobs[id]
	if !ok || row.OutputPath != localPath {
		m.mu.Unlock()
		return
	}
	row.MirrorKey = key
	row.UpdatedAt = m.stamp()
	m.putLocked(row)
	m.mu.Unlock()
	if m.cfg.Index != nil {
		m.cfg.Index.RecordJob(row)
	}
}

// Get returns a job from memory, falling back to the index.
func (m *Manager) Get(ctx context.Context, id string) (indexdb.JobRow, bool) {
	m.mu.Lock()
	row, ok := m.jobs[id]
	m.mu.Unlock()
	if ok || m.cfg.Index == nil {
		return row, ok
	}
	row, ok, err := m.cfg.Index.GetJob(ctx, id)
	if err != nil {
		if !errors.Is(err, indexdb.ErrWriteOnly) {
			m.printf("job %s lookup: %v", id, err)
		}
		return indexdb.JobRow{}, false
	}
	return row, ok
}

// List returns recent jobs, newest first, optionally filtered by state.
func (m *Manager) List(ctx context.Context, state string, limit int) ([]indexdb.JobRow, error) {
	if m.cfg.Index != nil {
		rows, err := m.cfg.Index.ListJobs(ctx, state, limit)
		if !errors.Is(err, indexdb.ErrWriteOnly) {
			return rows, err
		}
	}
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []indexdb.JobRow
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		row := m.jobs[m.order[i]]
		if state == "" || row.State == state {
			out = append(out, row)
		}
	}
	return out, nil
}

// Close stops accepting jobs and waits for queued ones to finish.
// Limits reports the frame limits submissions are decoded against.
func (m *Manager) Limits() voxel.Limits {
	return m.cfg.Converter.Tuning.Limits
}

func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) put(row indexdb.JobRow) {
	m.mu.Lock()
	m.putLocked(row)
	m.mu.Unlock()
	if m.cfg.Index != nil {
		m.cfg.Index.RecordJob(row)
	}
}

func (m *Manager) putLocked(row indexdb.JobRow) {
	if _, ok := m.jobs[row.ID]; !ok {
		m.order = append(m.order, row.ID)
		if len(m.order) > maxCachedJobs {
			delete(m.jobs, m.order[0])
			m.order = m.order[1:]
		}
	}
	m.jobs[row.ID] = row
}

func (m *Manager) logConversion(jobID string, sub Submission, res *pipeline.Result, err error, elapsed time.Duration) {
	if m.cfg.ConvLog == nil {
		return
	}
	e := plog.ConversionEntry{
		Time:       m.now().UTC(),
		JobID:      jobID,
		Source:     sub.Source,
		Format:     sub.Format.String(),
		Axis:       sub.Axis.String(),
		Frames:     len(sub.Frames),
		DurationMs: elapsed.Milliseconds(),
	}
	if res != nil {
		e.Size, e.PaletteLen, e.UsedDefault, e.Bytes = res.Size, res.PaletteLen, res.UsedDefault, len(res.Bytes)
	}
	if err != nil {
		e.ErrorCode, e.Error = protocol.CodeFor(err), err.Error()
	}
	if werr := m.cfg.ConvLog.WriteConversion(e); werr != nil {
		m.printf("conversion log: %v", werr)
	}
}

func (m *Manager) stamp() string {
	return m.now().UTC().Format(time.RFC3339Nano)
}

func (m *Manager) printf(format string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Printf(format, args...)
	}
}
