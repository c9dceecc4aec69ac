// Package kv holds the LevelDB store the world backend writes chunk records
// into. The files it emits are the db/ directory of a Bedrock world.
package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/util"
)

// Sink stores records and renders them as files of the output archive.
type Sink interface {
	Put(key, value []byte) error
	ToFiles() (map[string][]byte, error)
}

// DBDir is the archive directory holding the database files.
const DBDir = "db"

var ErrClosed = errors.New("kv: store closed")

// Bedrock compresses table blocks with raw zlib.
func options() *opt.Options {
	return &opt.Options{
		Compression: opt.FlateCompression,
		BlockSize:   16 * opt.KiB,
		NoSync:      true,
	}
}

// LevelDB is a Sink backed by an on-disk database in a scratch directory.
// ToFiles finalizes it; later Puts fail.
type LevelDB struct {
	dir string

	mu     sync.Mutex
	db     *leveldb.DB
	closed bool
}

// Open creates a new database in dir. dir must not hold one already.
func Open(dir string) (*LevelDB, error) {
	if dir == "" {
		return nil, fmt.Errorf("kv: empty dir")
	}
	o := options()
	o.ErrorIfExist = true
	db, err := leveldb.OpenFile(dir, o)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", dir, err)
	}
	return &LevelDB{dir: dir, db: db}, nil
}

func (s *LevelDB) Put(key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Put(key, value, nil)
}

func (s *LevelDB) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	return v, err == nil, err
}

// ToFiles flushes the memtable into sorted tables, closes the database and
// returns its files under DBDir. The lock file and info logs are left out.
func (s *LevelDB) ToFiles() (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		if err := s.db.CompactRange(util.Range{}); err != nil {
			return nil, fmt.Errorf("kv: compact: %w", err)
		}
		s.closed = true
		if err := s.db.Close(); err != nil {
			return nil, err
		}
	}
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(ents))
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || name == "LOCK" || strings.HasPrefix(name, "LOG") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		out[DBDir+"/"+name] = b
	}
	return out, nil
}

func (s *LevelDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// ReadRecords opens the database held in files (as returned by ToFiles or
// read back from an archive) and calls fn for every record in key order.
// key and value are only valid during the call.
func ReadRecords(files map[string][]byte, fn func(key, value []byte) error) error {
	tmp, err := os.MkdirTemp("", "pixelcraft-db-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	names := make([]string, 0, len(files))
	for name := range files {
		if strings.HasPrefix(name, DBDir+"/") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("kv: no %s/ files", DBDir)
	}
	sort.Strings(names)
	for _, name := range names {
		base := strings.TrimPrefix(name, DBDir+"/")
		if base == "" || strings.ContainsAny(base, `/\`) {
			return fmt.Errorf("kv: bad db file name %q", name)
		}
		if err := os.WriteFile(filepath.Join(tmp, base), files[name], 0o644); err != nil {
			return err
		}
	}

	o := options()
	o.ReadOnly = true
	o.ErrorIfMissing = true
	db, err := leveldb.OpenFile(tmp, o)
	if err != nil {
		return fmt.Errorf("kv: open: %w", err)
	}
	defer db.Close()

	it := db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}
