package r2s3

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Uploader is the part of Client the mirror needs.
type Uploader interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	EnqueuedTotal       uint64
	QueueSaturatedTotal uint64
	DroppedTotal        uint64
	UploadSuccessTotal  uint64
	UploadFailTotal     uint64
	UploadedBytesTotal  uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

// MirrorOptions tunes a Mirror. Zero values pick the defaults.
type MirrorOptions struct {
	// Prefix is prepended to every object key.
	Prefix        string
	Workers       int
	QueueCapacity int
	// EnqueueWait is how long Enqueue may block on a full queue before the
	// file is dropped.
	EnqueueWait time.Duration
	Logger      *log.Logger
}

const (
	uploadAttempts = 4
	uploadTimeout  = 2 * time.Minute
)

type mirrorCounters struct {
	enqueued  atomic.Uint64
	saturated atomic.Uint64
	dropped   atomic.Uint64
	ok        atomic.Uint64
	failed    atomic.Uint64
	bytes     atomic.Uint64
	lastOK    atomic.Int64
	lastFail  atomic.Int64
}

// Mirror copies finished outputs and grid dumps from the data directory to
// the bucket. Uploads run on background workers; the object key is the
// file's path below the data directory.
type Mirror struct {
	up     Uploader
	root   string
	prefix string
	wait   time.Duration
	log    *log.Logger

	// OnUploaded, when set, is called from a worker after each successful
	// upload.
	OnUploaded func(localPath, key string)

	pending chan string
	backoff time.Duration
	wg      sync.WaitGroup
	n       mirrorCounters
}

func NewMirror(up Uploader, dataDir string, opt MirrorOptions) *Mirror {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.QueueCapacity <= 0 {
		opt.QueueCapacity = 256
	}
	if opt.EnqueueWait <= 0 {
		opt.EnqueueWait = 25 * time.Millisecond
	}
	m := &Mirror{
		up:      up,
		root:    dataDir,
		prefix:  strings.Trim(filepath.ToSlash(opt.Prefix), "/"),
		wait:    opt.EnqueueWait,
		log:     opt.Logger,
		pending: make(chan string, opt.QueueCapacity),
		backoff: 200 * time.Millisecond,
	}
	m.wg.Add(opt.Workers)
	for i := 0; i < opt.Workers; i++ {
		go m.work()
	}
	return m
}

func (m *Mirror) work() {
	defer m.wg.Done()
	for p := range m.pending {
		m.mirror(p)
	}
}

// Enqueue schedules localPath for upload. A full queue delays the caller
// by at most the configured wait, then the file is dropped.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.up == nil {
		return
	}
	m.n.enqueued.Add(1)
	select {
	case m.pending <- localPath:
		return
	default:
		m.n.saturated.Add(1)
	}

	t := time.NewTimer(m.wait)
	defer t.Stop()
	select {
	case m.pending <- localPath:
	case <-t.C:
		m.printf("mirror: queue full, dropped %s (total dropped %d)", localPath, m.n.dropped.Add(1))
	}
}

// Close drains the queue and waits for in-flight uploads.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.pending)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(m.pending),
		QueueCapacity:       cap(m.pending),
		EnqueuedTotal:       m.n.enqueued.Load(),
		QueueSaturatedTotal: m.n.saturated.Load(),
		DroppedTotal:        m.n.dropped.Load(),
		UploadSuccessTotal:  m.n.ok.Load(),
		UploadFailTotal:     m.n.failed.Load(),
		UploadedBytesTotal:  m.n.bytes.Load(),
		LastSuccessUnix:     m.n.lastOK.Load(),
		LastErrorUnix:       m.n.lastFail.Load(),
	}
}

func (m *Mirror) mirror(localPath string) {
	st, err := os.Stat(localPath)
	if err != nil {
		m.printf("mirror: skip %s: %v", localPath, err)
		return
	}
	key, err := m.ObjectKey(localPath)
	if err != nil {
		m.printf("mirror: skip %s: %v", localPath, err)
		return
	}

	if err := m.put(key, localPath); err != nil {
		m.n.failed.Add(1)
		m.n.lastFail.Store(time.Now().Unix())
		m.printf("mirror: %s failed after %d attempts: %v", key, uploadAttempts, err)
		return
	}
	m.n.ok.Add(1)
	m.n.bytes.Add(uint64(st.Size()))
	m.n.lastOK.Store(time.Now().Unix())
	m.printf("mirror: %s (%s)", key, humanize.Bytes(uint64(st.Size())))
	if m.OnUploaded != nil {
		m.OnUploaded(localPath, key)
	}
}

// put retries with quadratic backoff: 1, 4, 9 times the base delay.
func (m *Mirror) put(key, localPath string) error {
	var err error
	for i := 1; i <= uploadAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		err = m.up.PutFile(ctx, key, localPath)
		cancel()
		if err == nil || i == uploadAttempts {
			break
		}
		time.Sleep(time.Duration(i*i) * m.backoff)
	}
	return err
}

// ObjectKey maps a file under the data directory to its bucket key.
func (m *Mirror) ObjectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	root, err := filepath.Abs(m.root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is not under %s", abs, root)
	}
	return path.Join(m.prefix, rel), nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}
