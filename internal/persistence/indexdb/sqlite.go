package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"pixelcraft.ai/internal/catalogs"
	"pixelcraft.ai/internal/tuning"
)

// ErrClosed is returned by queries issued after Close.
var ErrClosed = errors.New("indexdb: closed")

// JobRow is the indexed state of one conversion job.
type JobRow struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Source     string `json:"source"`
	Format     string `json:"format"`
	Axis       string `json:"axis"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	SizeX      int    `json:"size_x"`
	SizeY      int    `json:"size_y"`
	SizeZ      int    `json:"size_z"`
	PaletteLen int    `json:"palette_len"`
	Bytes      int64  `json:"bytes"`
	OutputPath string `json:"output_path,omitempty"`
	DumpPath   string `json:"dump_path,omitempty"`
	MirrorKey  string `json:"mirror_key,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropJobTotal atomic.Uint64
}

type reqKind int

const (
	reqJob reqKind = iota + 1
	reqRead
)

type req struct {
	kind reqKind

	job  JobRow
	read func(tx *sql.Tx) error
	done chan error
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropJobTotal  uint64 `json:"drop_job_total"`
	// Remote backends only.
	SentTotal      uint64 `json:"sent_total,omitempty"`
	FlushFailTotal uint64 `json:"flush_fail_total,omitempty"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			source TEXT NOT NULL,
			format TEXT NOT NULL,
			axis TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			size_x INTEGER NOT NULL,
			size_y INTEGER NOT NULL,
			size_z INTEGER NOT NULL,
			palette_len INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			output_path TEXT,
			dump_path TEXT,
			mirror_key TEXT,
			error_code TEXT,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state_created ON jobs(state, created_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropJobTotal:  s.dropJobTotal.Load(),
	}
}

// RecordJob upserts a job row. It never blocks: when the writer falls behind
// the row is dropped and counted.
func (s *SQLiteIndex) RecordJob(j JobRow) {
	if s == nil || s.closed.Load() || j.ID == "" {
		return
	}
	if j.UpdatedAt == "" {
		j.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if j.CreatedAt == "" {
		j.CreatedAt = j.UpdatedAt
	}
	select {
	case s.ch <- req{kind: reqJob, job: j}:
	default:
		s.dropJobTotal.Add(1)
	}
}

// view runs fn on the writer goroutine after every queued write has been
// committed.
func (s *SQLiteIndex) view(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	done := make(chan error, 1)
	defer func() {
		// Close raced with the send.
		if recover() != nil {
			err = ErrClosed
		}
	}()
	select {
	case s.ch <- req{kind: reqRead, read: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

const jobColumns = `id,state,source,format,axis,created_at,updated_at,size_x,size_y,size_z,palette_len,bytes,
	COALESCE(output_path,''),COALESCE(dump_path,''),COALESCE(mirror_key,''),COALESCE(error_code,''),COALESCE(error,'')`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (JobRow, error) {
	var j JobRow
	err := sc.Scan(&j.ID, &j.State, &j.Source, &j.Format, &j.Axis, &j.CreatedAt, &j.UpdatedAt,
		&j.SizeX, &j.SizeY, &j.SizeZ, &j.PaletteLen, &j.Bytes,
		&j.OutputPath, &j.DumpPath, &j.MirrorKey, &j.ErrorCode, &j.Error)
	return j, err
}

// GetJob returns the job and whether it exists.
func (s *SQLiteIndex) GetJob(ctx context.Context, id string) (JobRow, bool, error) {
	var (
		j  JobRow
		ok bool
	)
	err := s.view(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
		var err error
		j, err = scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		ok = err == nil
		return err
	})
	return j, ok, err
}

// ListJobs returns the newest jobs first. An empty state matches all.
func (s *SQLiteIndex) ListJobs(ctx context.Context, state string, limit int) ([]JobRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []JobRow
	err := s.view(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE (?='' OR state=?) ORDER BY created_at DESC, id LIMIT ?`, state, state, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			j, err := scanJob(rows)
			if err != nil {
				return err
			}
			out = append(out, j)
		}
		return rows.Err()
	})
	return out, err
}

// UpsertCatalogs stores the palette and tuning actually applied, keyed by
// digest, so a job can be traced back to its configuration.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cat *catalogs.BlockCatalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := catalogRows(configDir, cat, tune)

	return s.view(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if r.name == "" || r.digest == "" || len(r.json) == 0 {
				continue
			}
			if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertJob, _ := s.db.Prepare(`INSERT INTO jobs(id,state,source,format,axis,created_at,updated_at,size_x,size_y,size_z,palette_len,bytes,output_path,dump_path,mirror_key,error_code,error)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET state=excluded.state, updated_at=excluded.updated_at,
			size_x=excluded.size_x, size_y=excluded.size_y, size_z=excluded.size_z,
			palette_len=excluded.palette_len, bytes=excluded.bytes, output_path=excluded.output_path,
			dump_path=excluded.dump_path, mirror_key=excluded.mirror_key,
			error_code=excluded.error_code, error=excluded.error`)
	defer func() {
		if upsertJob != nil {
			_ = upsertJob.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var (
			r  req
			ok bool
		)
		select {
		case r, ok = <-s.ch:
		case <-ticker.C:
			commit()
			continue
		}
		if !ok {
			break
		}
		if r.kind == reqRead {
			// Reads run in their own transaction after pending writes land.
			commit()
			rtx, err := s.db.BeginTx(ctx, nil)
			if err == nil {
				if err = r.read(rtx); err != nil {
					_ = rtx.Rollback()
				} else {
					err = rtx.Commit()
				}
			}
			r.done <- err
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		if r.kind == reqJob && upsertJob != nil {
			j := r.job
			if _, err := tx.Stmt(upsertJob).Exec(
				j.ID, j.State, j.Source, j.Format, j.Axis, j.CreatedAt, j.UpdatedAt,
				j.SizeX, j.SizeY, j.SizeZ, j.PaletteLen, j.Bytes,
				j.OutputPath, j.DumpPath, j.MirrorKey, j.ErrorCode, j.Error,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
