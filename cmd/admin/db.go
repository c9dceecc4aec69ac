package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	state := fs.String("state", "", "job state filter (jobs)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "jobs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "jobs.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "jobs":
		query := `SELECT id,state,source,format,axis,created_at,size_x,size_y,size_z,palette_len,bytes,COALESCE(mirror_key,''),COALESCE(error_code,'') FROM jobs ORDER BY created_at DESC LIMIT ?`
		qargs := []any{*limit}
		if s := strings.ToUpper(strings.TrimSpace(*state)); s != "" {
			query = `SELECT id,state,source,format,axis,created_at,size_x,size_y,size_z,palette_len,bytes,COALESCE(mirror_key,''),COALESCE(error_code,'') FROM jobs WHERE state=? ORDER BY created_at DESC LIMIT ?`
			qargs = []any{s, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID         string `json:"id"`
				State      string `json:"state"`
				Source     string `json:"source"`
				Format     string `json:"format"`
				Axis       string `json:"axis"`
				CreatedAt  string `json:"created_at"`
				Size       [3]int `json:"size"`
				PaletteLen int    `json:"palette_len"`
				Bytes      int64  `json:"bytes"`
				MirrorKey  string `json:"mirror_key,omitempty"`
				ErrorCode  string `json:"error_code,omitempty"`
			}
			if err := rows.Scan(&r.ID, &r.State, &r.Source, &r.Format, &r.Axis, &r.CreatedAt,
				&r.Size[0], &r.Size[1], &r.Size[2], &r.PaletteLen, &r.Bytes, &r.MirrorKey, &r.ErrorCode); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "job":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: admin db job JOB_ID")
			os.Exit(2)
		}
		var r struct {
			ID         string `json:"id"`
			State      string `json:"state"`
			UpdatedAt  string `json:"updated_at"`
			OutputPath string `json:"output_path,omitempty"`
			DumpPath   string `json:"dump_path,omitempty"`
			MirrorKey  string `json:"mirror_key,omitempty"`
			ErrorCode  string `json:"error_code,omitempty"`
			Error      string `json:"error,omitempty"`
		}
		row := db.QueryRow(`SELECT id,state,updated_at,COALESCE(output_path,''),COALESCE(dump_path,''),COALESCE(mirror_key,''),COALESCE(error_code,''),COALESCE(error,'') FROM jobs WHERE id=?`, fs.Arg(1))
		if err := row.Scan(&r.ID, &r.State, &r.UpdatedAt, &r.OutputPath, &r.DumpPath, &r.MirrorKey, &r.ErrorCode, &r.Error); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		printJSON(r)

	case "states":
		rows, err := db.Query(`SELECT state,COUNT(*) FROM jobs GROUP BY state ORDER BY state`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				State string `json:"state"`
				Count int    `json:"count"`
			}
			if err := rows.Scan(&r.State, &r.Count); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,json,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string          `json:"name"`
				Digest    string          `json:"digest"`
				JSON      json.RawMessage `json:"json"`
				UpdatedAt string          `json:"updated_at"`
			}
			var raw string
			if err := rows.Scan(&r.Name, &r.Digest, &raw, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.JSON = json.RawMessage(raw)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-state S] [-limit N] jobs|job ID|states|catalogs")
		os.Exit(2)
	}
}
