package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"pixelcraft.ai/internal/persistence/archive"
	"pixelcraft.ai/internal/persistence/gridsnap"
	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/tuning"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "dump":
			dumpCmd(os.Args[2:])
			return
		case "reencode":
			reencodeCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "meta":
			metaCmd(os.Args[2:])
			return
		case "status":
			statusCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints stored outputs, newest first.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "outputs"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var metas []archive.OutputMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := archive.ReadMeta(*dataDir, e.Name())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", e.Name(), err)
			continue
		}
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt > metas[j].CreatedAt })
	for _, m := range metas {
		fmt.Printf("%s  %-11s %-5s %v  %8s  %s\n", m.JobID, m.Format, m.Axis, m.Size, humanize.Bytes(uint64(m.Bytes)), m.File)
	}
}

func metaCmd(args []string) {
	fs := flag.NewFlagSet("meta", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin meta [-data ./data] JOB_ID")
		os.Exit(2)
	}
	m, err := archive.ReadMeta(*dataDir, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "meta:", err)
		os.Exit(1)
	}
	printJSON(m)
}

func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	full := fs.Bool("full", false, "decode the whole grid and print block counts")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin dump [-full] PATH/grid.zst")
		os.Exit(2)
	}
	if !*full {
		h, err := gridsnap.ReadHeader(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	h, g, err := gridsnap.Read(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read dump:", err)
		os.Exit(1)
	}
	type blockCount struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	out := struct {
		gridsnap.Header
		Blocks []blockCount `json:"blocks"`
	}{Header: h}
	for i, n := range g.Counts() {
		if n == 0 {
			continue
		}
		out.Blocks = append(out.Blocks, blockCount{Name: g.Palette[i].Name, Count: n})
	}
	printJSON(out)
}

// reencodeCmd writes a stored grid dump in another dense format without the
// source frames.
func reencodeCmd(args []string) {
	fs := flag.NewFlagSet("reencode", flag.ExitOnError)
	format := fs.String("format", "mcstructure", "mcstructure|schematic|mcworld")
	outPath := fs.String("out", "", "output path (default: next to the dump)")
	tuningPath := fs.String("tuning", "", "tuning.yaml for mcworld placement (optional)")
	name := fs.String("name", "", "world or file name (default: job id)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin reencode [-format F] [-out PATH] PATH/grid.zst")
		os.Exit(2)
	}
	f, err := pipeline.ParseFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -format:", err)
		os.Exit(2)
	}
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	h, g, err := gridsnap.Read(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read dump:", err)
		os.Exit(1)
	}
	n := strings.TrimSpace(*name)
	if n == "" {
		n = h.JobID
	}
	n = pipeline.SanitizeName(n)
	body, err := pipeline.New(tune, nil, nil).Encode(context.Background(), f, g, n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	if *outPath == "" {
		*outPath = filepath.Join(filepath.Dir(fs.Arg(0)), n+f.Ext())
	}
	if err := os.WriteFile(*outPath, body, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Printf("reencode ok: dump=%s format=%s size=%v palette=%d bytes=%s out=%s\n",
		filepath.Base(fs.Arg(0)), f, g.Size, len(g.Palette), humanize.Bytes(uint64(len(body))), *outPath)
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	format := fs.String("format", "", "override format (default: from file extension)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin inspect [-format F] FILE")
		os.Exit(2)
	}
	path := fs.Arg(0)
	var (
		f   pipeline.Format
		err error
	)
	if strings.TrimSpace(*format) != "" {
		f, err = pipeline.ParseFormat(*format)
	} else {
		f, err = pipeline.FormatOf(path)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "format:", err)
		os.Exit(2)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	s, err := pipeline.Inspect(f, data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(1)
	}
	printJSON(struct {
		Format string `json:"format"`
		*pipeline.Summary
	}{Format: f.String(), Summary: s})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
