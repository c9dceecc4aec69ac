package kv

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelDB_ToFilesAndReadBack(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Put([]byte("b"), []byte("2"))
	_ = s.Put([]byte("a"), []byte("1"))
	_ = s.Put([]byte("b"), []byte("3"))
	if err := s.Put(nil, []byte("x")); err == nil {
		t.Fatalf("empty key accepted")
	}
	if v, ok, err := s.Get([]byte("b")); err != nil || !ok || string(v) != "3" {
		t.Fatalf("Get(b)=%q %v %v", v, ok, err)
	}
	if _, ok, err := s.Get([]byte("zz")); err != nil || ok {
		t.Fatalf("Get(zz) ok=%v err=%v", ok, err)
	}

	files, err := s.ToFiles()
	if err != nil {
		t.Fatalf("ToFiles: %v", err)
	}
	var current, manifest, tables int
	for name := range files {
		switch {
		case name == "db/CURRENT":
			current++
		case strings.HasPrefix(name, "db/MANIFEST-"):
			manifest++
		case strings.HasSuffix(name, ".ldb"):
			tables++
		case name == "db/LOCK" || strings.HasPrefix(name, "db/LOG"):
			t.Fatalf("unexpected file %s", name)
		}
	}
	if current != 1 || manifest != 1 || tables == 0 {
		t.Fatalf("files=%v", keysOf(files))
	}

	if err := s.Put([]byte("c"), []byte("4")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Put after ToFiles: %v", err)
	}

	var keys, vals []string
	err = ReadRecords(files, func(k, v []byte) error {
		keys = append(keys, string(k))
		vals = append(vals, string(v))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if strings.Join(keys, ",") != "a,b" || strings.Join(vals, ",") != "1,3" {
		t.Fatalf("keys=%v vals=%v", keys, vals)
	}
}

func TestLevelDB_OpenRejectsExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := Open(dir); err == nil {
		t.Fatalf("expected error reopening an existing db")
	}
}

func TestReadRecords_BinaryKeys(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0, 0x2f, 0xfc}
	val := bytes.Repeat([]byte{7}, 5000)
	if err := s.Put(key, val); err != nil {
		t.Fatalf("Put: %v", err)
	}
	files, err := s.ToFiles()
	if err != nil {
		t.Fatalf("ToFiles: %v", err)
	}
	n := 0
	err = ReadRecords(files, func(k, v []byte) error {
		n++
		if !bytes.Equal(k, key) || !bytes.Equal(v, val) {
			t.Fatalf("record mismatch: key=%x len(v)=%d", k, len(v))
		}
		return nil
	})
	if err != nil || n != 1 {
		t.Fatalf("ReadRecords n=%d err=%v", n, err)
	}
	if err := ReadRecords(map[string][]byte{"level.dat": nil}, func(k, v []byte) error { return nil }); err == nil {
		t.Fatalf("expected error without db files")
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
