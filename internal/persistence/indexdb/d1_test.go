package indexdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pixelcraft.ai/internal/catalogs"
	"pixelcraft.ai/internal/tuning"
)

type ingestRecorder struct {
	mu      sync.Mutex
	batches [][]map[string]any
	tokens  []string
	status  int
}

func (r *ingestRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Events []map[string]any `json:"events"`
	}
	_ = json.NewDecoder(req.Body).Decode(&body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, req.Header.Get("X-Pc-Index-Token"))
	if r.status != 0 {
		w.WriteHeader(r.status)
		return
	}
	r.batches = append(r.batches, body.Events)
}

func TestD1Index_BatchesJobsAndCatalogs(t *testing.T) {
	rec := &ingestRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d, err := OpenD1(D1Config{Endpoint: srv.URL, Token: "tok", Instance: "edge-1", BatchSize: 2, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("OpenD1: %v", err)
	}
	d.RecordJob(JobRow{ID: "j1", State: "queued"})
	d.RecordJob(JobRow{ID: "j1", State: "done", Bytes: 42})
	d.RecordJob(JobRow{ID: ""})
	cat, err := catalogs.Parse([]byte(`[{"id":"a","hex":"#ffffff"}]`), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := d.UpsertCatalogs("", cat, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	// Two jobs fill the first batch; Close flushes the two catalog rows.
	if len(rec.batches) != 2 || len(rec.batches[0]) != 2 || len(rec.batches[1]) != 2 {
		t.Fatalf("batches=%v", rec.batches)
	}
	first := rec.batches[0][0]
	payload, _ := first["payload"].(map[string]any)
	if first["kind"] != "job" || first["instance"] != "edge-1" || payload["id"] != "j1" || payload["created_at"] == "" {
		t.Fatalf("first event=%v", first)
	}
	if last := rec.batches[0][1]["payload"].(map[string]any); last["state"] != "done" || last["bytes"] != float64(42) {
		t.Fatalf("second event=%v", last)
	}
	names := map[string]bool{}
	for _, ev := range rec.batches[1] {
		if ev["kind"] != "catalog" {
			t.Fatalf("catalog event=%v", ev)
		}
		names[ev["payload"].(map[string]any)["name"].(string)] = true
	}
	if !names["blocks_palette"] || !names["tuning"] {
		t.Fatalf("catalog names=%v", names)
	}
	for _, tok := range rec.tokens {
		if tok != "tok" {
			t.Fatalf("token=%q", tok)
		}
	}
	if st := d.Stats(); st.SentTotal != 4 || st.FlushFailTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}

	d.RecordJob(JobRow{ID: "late"})
	if _, _, err := d.GetJob(context.Background(), "j1"); !errors.Is(err, ErrWriteOnly) {
		t.Fatalf("GetJob: %v", err)
	}
}

func TestD1Index_FlushIntervalAndRejects(t *testing.T) {
	rec := &ingestRecorder{status: http.StatusUnauthorized}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d, err := OpenD1(D1Config{Endpoint: srv.URL, FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("OpenD1: %v", err)
	}
	defer d.Close()
	d.retryWait = time.Millisecond
	d.RecordJob(JobRow{ID: "j1"})

	deadline := time.Now().Add(5 * time.Second)
	for d.Stats().FlushFailTotal == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ticker never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec.mu.Lock()
	attempts := len(rec.tokens)
	rec.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("4xx retried: attempts=%d", attempts)
	}
}

func TestOpenD1_RequiresEndpoint(t *testing.T) {
	if _, err := OpenD1(D1Config{Endpoint: "  "}); err == nil {
		t.Fatalf("empty endpoint accepted")
	}
}
