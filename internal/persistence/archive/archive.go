package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"
)

// zipEpoch is stamped on every entry so identical inputs give identical
// archives.
var zipEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Zip packs files (archive path -> content) into a deflated zip, entries in
// name order.
func Zip(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteZip(&buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteZip(w io.Writer, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, name := range names {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     filepath.ToSlash(name),
			Method:   zip.Deflate,
			Modified: zipEpoch,
		})
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := fw.Write(files[name]); err != nil {
			_ = zw.Close()
			return fmt.Errorf("zip %s: %w", name, err)
		}
	}
	return zw.Close()
}

// Unzip reads every entry of a zip into memory.
func Unzip(b []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("unzip %s: %w", f.Name, err)
		}
		out[f.Name] = data
	}
	return out, nil
}

type OutputMeta struct {
	JobID      string `json:"job_id"`
	Source     string `json:"source"`
	Format     string `json:"format"`
	Axis       string `json:"axis"`
	Size       [3]int `json:"size"`
	PaletteLen int    `json:"palette_len"`
	File       string `json:"file"`
	Bytes      int    `json:"bytes"`
	SHA256     string `json:"sha256"`
	CreatedAt  string `json:"created_at"`
}

// StoreOutput writes body to dataDir/outputs/<jobID>/<name> next to a
// meta.json describing it, and returns the output path.
func StoreOutput(dataDir, name string, body []byte, meta OutputMeta) (string, error) {
	if meta.JobID == "" || name == "" {
		return "", fmt.Errorf("job id and file name are required")
	}
	dir := filepath.Join(dataDir, "outputs", meta.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(name))
	if err := writeFileAtomic(dst, body); err != nil {
		return "", err
	}

	sum := sha256.Sum256(body)
	meta.File = filepath.Base(dst)
	meta.Bytes = len(body)
	meta.SHA256 = hex.EncodeToString(sum[:])
	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// ReadMeta loads the meta.json of a stored output.
func ReadMeta(dataDir, jobID string) (OutputMeta, error) {
	var m OutputMeta
	b, err := os.ReadFile(filepath.Join(dataDir, "outputs", jobID, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Prune keeps the newest keep output directories (by meta.json mtime) and
// removes the rest. keep <= 0 keeps everything.
func Prune(dataDir string, keep int) (removed int, err error) {
	if keep <= 0 {
		return 0, nil
	}
	root := filepath.Join(dataDir, "outputs")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	type dirAge struct {
		name string
		mod  time.Time
	}
	var dirs []dirAge
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := os.Stat(filepath.Join(root, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		dirs = append(dirs, dirAge{name: e.Name(), mod: st.ModTime()})
	}
	if len(dirs) <= keep {
		return 0, nil
	}
	sort.Slice(dirs, func(i, j int) bool {
		if !dirs[i].mod.Equal(dirs[j].mod) {
			return dirs[i].mod.After(dirs[j].mod)
		}
		return dirs[i].name < dirs[j].name
	})
	for _, d := range dirs[keep:] {
		if err := os.RemoveAll(filepath.Join(root, d.name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func writeFileAtomic(dst string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
