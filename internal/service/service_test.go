package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/persistence/gridsnap"
	"pixelcraft.ai/internal/persistence/indexdb"
	plog "pixelcraft.ai/internal/persistence/log"
	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/protocol"
	"pixelcraft.ai/internal/tuning"
	"pixelcraft.ai/internal/voxel"
)

type memLog struct {
	mu      sync.Mutex
	entries []plog.ConversionEntry
}

func (l *memLog) WriteConversion(e plog.ConversionEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

type memMirror struct {
	mu    sync.Mutex
	paths []string
}

func (m *memMirror) Enqueue(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, p)
}

func frame(w, h int) voxel.Frame {
	f := voxel.NewRGBAFrame(w, h)
	for i := range f.Pix {
		f.Pix[i] = blocks.Color{R: 200, G: 10, B: 10, A: 255}
	}
	return f
}

func testSubmission() Submission {
	return Submission{
		Frames:  []voxel.Frame{frame(3, 2), frame(3, 2)},
		Palette: []blocks.BlockSpec{{ID: "minecraft:red_wool", Hex: "#c80a0a"}},
		Format:  pipeline.MCStructure,
		Name:    "red",
		Source:  "test",
	}
}

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Converter == nil {
		cfg.Converter = pipeline.New(tuning.Defaults(), nil, nil)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestManager_JobLifecycle(t *testing.T) {
	convLog := &memLog{}
	mirror := &memMirror{}
	m := newManager(t, Config{ConvLog: convLog, Mirror: mirror})

	row, err := m.Submit(testSubmission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if row.State != StateQueued || row.ID == "" {
		t.Fatalf("row=%+v", row)
	}
	m.Close()

	got, ok := m.Get(context.Background(), row.ID)
	if !ok || got.State != StateDone {
		t.Fatalf("job=%+v ok=%v", got, ok)
	}
	if got.PaletteLen != 1 || got.Bytes == 0 || filepath.Base(got.OutputPath) != "red.mcstructure" {
		t.Fatalf("job=%+v", got)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(got.OutputPath), "meta.json")); err != nil {
		t.Fatalf("meta.json: %v", err)
	}
	h, err := gridsnap.ReadHeader(got.DumpPath)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.JobID != row.ID || h.PaletteLen != 1 {
		t.Fatalf("header=%+v", h)
	}
	if len(convLog.entries) != 1 || convLog.entries[0].JobID != row.ID || convLog.entries[0].Frames != 2 {
		t.Fatalf("log=%+v", convLog.entries)
	}
	if len(mirror.paths) != 2 || mirror.paths[0] != got.OutputPath || mirror.paths[1] != got.DumpPath {
		t.Fatalf("mirror=%v", mirror.paths)
	}

	m.MarkMirrored(got.OutputPath, "outputs/"+row.ID+"/red.mcstructure")
	if got, _ := m.Get(context.Background(), row.ID); got.MirrorKey == "" {
		t.Fatalf("mirror key not recorded")
	}

	if _, err := m.Submit(testSubmission()); !errors.Is(err, ErrClosed) {
		t.Fatalf("submit after close: %v", err)
	}
}

func TestManager_FailedJobCarriesCode(t *testing.T) {
	m := newManager(t, Config{})
	sub := testSubmission()
	sub.Frames = []voxel.Frame{frame(3, 2), frame(2, 2)}
	row, err := m.Submit(sub)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Close()
	got, _ := m.Get(context.Background(), row.ID)
	if got.State != StateFailed || got.ErrorCode != blocks.CodeInvalidInput {
		t.Fatalf("job=%+v", got)
	}
}

func TestManager_QueueFull(t *testing.T) {
	m := &Manager{
		cfg:   Config{Converter: pipeline.New(tuning.Defaults(), nil, nil), DataDir: t.TempDir()},
		queue: make(chan task, 1),
		jobs:  map[string]indexdb.JobRow{},
		now:   time.Now,
	}
	if _, err := m.Submit(testSubmission()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := m.Submit(testSubmission()); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, err := m.Submit(Submission{}); !errors.Is(err, blocks.ErrInvalidInput) {
		t.Fatalf("empty submission: %v", err)
	}
	m.Close()
}

func TestManager_IndexBackedLookups(t *testing.T) {
	dir := t.TempDir()
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "pixelcraft.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	m := newManager(t, Config{DataDir: dir, Index: idx, Workers: 2})
	var ids []string
	for i := 0; i < 3; i++ {
		row, err := m.Submit(testSubmission())
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, row.ID)
	}
	m.Close()

	ctx := context.Background()
	for _, id := range ids {
		row, ok, err := idx.GetJob(ctx, id)
		if err != nil || !ok || row.State != StateDone {
			t.Fatalf("GetJob(%s)=%+v ok=%v err=%v", id, row, ok, err)
		}
	}
	rows, err := m.List(ctx, StateDone, 10)
	if err != nil || len(rows) != 3 {
		t.Fatalf("List=%d err=%v", len(rows), err)
	}
}

func TestManager_ConvertLogsSynchronousRuns(t *testing.T) {
	convLog := &memLog{}
	m := newManager(t, Config{ConvLog: convLog})
	defer m.Close()
	res, err := m.Convert(context.Background(), testSubmission(), nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.PaletteLen != 1 || len(convLog.entries) != 1 || convLog.entries[0].JobID != "" {
		t.Fatalf("res=%+v log=%+v", res, convLog.entries)
	}
}

// orderIndex keeps every recorded row in arrival order.
type orderIndex struct {
	mu   sync.Mutex
	rows []indexdb.JobRow
}

func (x *orderIndex) RecordJob(j indexdb.JobRow) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rows = append(x.rows, j)
}

func (x *orderIndex) GetJob(ctx context.Context, id string) (indexdb.JobRow, bool, error) {
	return indexdb.JobRow{}, false, nil
}

func (x *orderIndex) ListJobs(ctx context.Context, state string, limit int) ([]indexdb.JobRow, error) {
	return nil, nil
}

func TestManager_QueuedRecordedBeforeRunning(t *testing.T) {
	idx := &orderIndex{}
	m := newManager(t, Config{Index: idx, Workers: 4, QueueDepth: 32})
	for i := 0; i < 32; i++ {
		if _, err := m.Submit(testSubmission()); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	m.Close()

	seen := map[string][]string{}
	for _, r := range idx.rows {
		seen[r.ID] = append(seen[r.ID], r.State)
	}
	if len(seen) != 32 {
		t.Fatalf("jobs=%d", len(seen))
	}
	for id, states := range seen {
		if len(states) != 3 || states[0] != StateQueued || states[1] != StateRunning || states[2] != StateDone {
			t.Fatalf("job %s states=%v", id, states)
		}
	}
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestFromConvert_AppliesLimits(t *testing.T) {
	lim := voxel.Limits{MaxWidth: 8, MaxHeight: 8, MaxDepth: 2}
	small := pngBase64(t, 4, 4)

	msg := protocol.ConvertMsg{Format: "mcstructure", Frames: []string{small, small, small, "not base64 at all"}}
	sub, err := FromConvert(msg, "test", lim)
	if err != nil {
		t.Fatalf("FromConvert: %v", err)
	}
	if len(sub.Frames) != 2 {
		t.Fatalf("frames=%d want 2", len(sub.Frames))
	}

	msg.Frames = []string{pngBase64(t, 64, 4)}
	if _, err := FromConvert(msg, "test", lim); !errors.Is(err, blocks.ErrInvalidInput) {
		t.Fatalf("oversize frame: %v", err)
	}

	msg.Frames = []string{pngBase64(t, 64, 4)}
	if sub, err := FromConvert(msg, "test", voxel.Limits{}); err != nil || len(sub.Frames) != 1 {
		t.Fatalf("unlimited: frames=%d err=%v", len(sub.Frames), err)
	}
}

type writeOnlyIndex struct{ orderIndex }

func (x *writeOnlyIndex) GetJob(ctx context.Context, id string) (indexdb.JobRow, bool, error) {
	return indexdb.JobRow{}, false, indexdb.ErrWriteOnly
}

func (x *writeOnlyIndex) ListJobs(ctx context.Context, state string, limit int) ([]indexdb.JobRow, error) {
	return nil, indexdb.ErrWriteOnly
}

func TestManager_WriteOnlyIndexFallsBackToMemory(t *testing.T) {
	idx := &writeOnlyIndex{}
	m := newManager(t, Config{Index: idx})
	row, err := m.Submit(testSubmission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Close()

	ctx := context.Background()
	rows, err := m.List(ctx, StateDone, 10)
	if err != nil || len(rows) != 1 || rows[0].ID != row.ID {
		t.Fatalf("List=%+v err=%v", rows, err)
	}
	if _, ok := m.Get(ctx, "missing"); ok {
		t.Fatalf("missing job found")
	}
	if len(idx.rows) != 3 {
		t.Fatalf("index rows=%d", len(idx.rows))
	}
}
