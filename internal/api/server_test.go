package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"galleria/internal/config"
	internaldb "galleria/internal/db"
	"galleria/internal/gallery"
	"galleria/internal/media"
	"galleria/internal/scan"
	"galleria/internal/scheduler"
	"galleria/internal/store"
	"galleria/internal/thumb"
)

type testEnv struct {
	ts    *httptest.Server
	db    *sql.DB
	root  string
	coord *scan.Coordinator
	prov  *gallery.Provider
}

// newTestEnv stands up the full stack over a temp media root and DB.
func newTestEnv(tb testing.TB) *testEnv {
	tb.Helper()

	dir := tb.TempDir()
	root := filepath.Join(dir, "media")
	if err := os.MkdirAll(root, 0o755); err != nil {
		tb.Fatal(err)
	}

	db, err := internaldb.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	tb.Cleanup(func() { db.Close() })

	cfg, err := config.Load(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		tb.Fatal(err)
	}
	cfg.MediaRoots = []string{root}

	st := store.New(db)
	cache := thumb.New(cfg.Thumbnail.Width, cfg.Thumbnail.Height, cfg.Thumbnail.JPEGQuality)
	prov := gallery.New(st, cache)
	notifier := scan.NewNotifier()
	coord := scan.NewCoordinator(db, st, notifier, func() *media.Classifier {
		images, videos := cfg.ExtensionSets()
		return media.NewClassifier(images, videos)
	}, nil)
	sched := scheduler.New()

	srv := New(":0", db, st, cfg, coord, notifier, prov, cache, sched, "test")
	ts := httptest.NewServer(srv.Handler())
	tb.Cleanup(ts.Close)

	return &testEnv{ts: ts, db: db, root: root, coord: coord, prov: prov}
}

func (e *testEnv) get(tb testing.TB, path string) (*http.Response, []byte) {
	tb.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		tb.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body) //nolint:errcheck
	return resp, buf.Bytes()
}

func (e *testEnv) do(tb testing.TB, method, path string, body []byte) (*http.Response, []byte) {
	tb.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, bytes.NewReader(body))
	if err != nil {
		tb.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		tb.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body) //nolint:errcheck
	return resp, buf.Bytes()
}

func decodeJSON(tb testing.TB, data []byte, into any) {
	tb.Helper()
	if err := json.Unmarshal(data, into); err != nil {
		tb.Fatalf("decode %q: %v", data, err)
	}
}

// waitIdle polls the coordinator until the current scan releases the slot.
func (e *testEnv) waitIdle(tb testing.TB) {
	tb.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if e.coord.Session().Status == scan.StatusIdle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	tb.Fatal("scan did not finish within 10s")
}

func TestStatusEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.get(t, "/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d: %s", resp.StatusCode, body)
	}

	var status struct {
		Version      string `json:"version"`
		IndexedFiles int64  `json:"indexed_files"`
		GalleryRows  int    `json:"gallery_rows"`
		Scan         struct {
			Status string `json:"status"`
		} `json:"scan"`
	}
	decodeJSON(t, body, &status)

	if status.Version != "test" {
		t.Errorf("version = %q", status.Version)
	}
	if status.IndexedFiles != 0 || status.GalleryRows != 0 {
		t.Errorf("fresh instance reports %d files / %d rows", status.IndexedFiles, status.GalleryRows)
	}
	if status.Scan.Status != "idle" {
		t.Errorf("scan status = %q, want idle", status.Scan.Status)
	}
}

func TestScanLifecycleOverAPI(t *testing.T) {
	e := newTestEnv(t)

	for i, name := range []string{"a.jpg", "b.mp4", "c.txt"} {
		path := filepath.Join(e.root, name)
		if err := os.WriteFile(path, []byte(fmt.Sprintf("content-%d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	resp, body := e.do(t, http.MethodPost, "/api/scans", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /api/scans: %d %s", resp.StatusCode, body)
	}
	var sess struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	decodeJSON(t, body, &sess)
	if sess.Status != "running" {
		t.Errorf("session status = %q, want running", sess.Status)
	}

	e.waitIdle(t)

	resp, body = e.get(t, fmt.Sprintf("/api/scans/%d", sess.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/scans/%d: %d %s", sess.ID, resp.StatusCode, body)
	}
	var detail struct {
		Status        string `json:"status"`
		FilesSeen     int64  `json:"files_seen"`
		FilesInserted int64  `json:"files_inserted"`
	}
	decodeJSON(t, body, &detail)
	if detail.Status != "completed" {
		t.Errorf("history status = %q, want completed", detail.Status)
	}
	if detail.FilesSeen != 3 || detail.FilesInserted != 3 {
		t.Errorf("seen=%d inserted=%d, want 3/3", detail.FilesSeen, detail.FilesInserted)
	}

	// The gallery snapshot is stale until refreshed.
	resp, body = e.do(t, http.MethodPost, "/api/gallery/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: %d %s", resp.StatusCode, body)
	}

	resp, body = e.get(t, "/api/gallery?limit=10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/gallery: %d %s", resp.StatusCode, body)
	}
	var page struct {
		Items []struct {
			Index    int    `json:"index"`
			Filename string `json:"filename"`
			FileType string `json:"file_type"`
		} `json:"items"`
		Total int `json:"total"`
	}
	decodeJSON(t, body, &page)
	if page.Total != 3 || len(page.Items) != 3 {
		t.Fatalf("gallery page total=%d items=%d, want 3/3", page.Total, len(page.Items))
	}

	types := map[string]string{}
	for _, it := range page.Items {
		types[it.Filename] = it.FileType
	}
	if types["a.jpg"] != "image" || types["b.mp4"] != "video" || types["c.txt"] != "unknown" {
		t.Errorf("classified types = %v", types)
	}
}

func TestScanMissingRootRejected(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, "/api/scans?root=/definitely/not/here", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422: %s", resp.StatusCode, body)
	}
	var sess struct {
		Status string `json:"status"`
	}
	decodeJSON(t, body, &sess)
	if sess.Status != "failed" {
		t.Errorf("session status = %q, want failed", sess.Status)
	}
}

func TestCancelWithoutActiveScan(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodDelete, "/api/scans/current", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404: %s", resp.StatusCode, body)
	}
	var apiErr struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, body, &apiErr)
	if apiErr.Error.Code != "NO_ACTIVE_SCAN" {
		t.Errorf("error code = %q", apiErr.Error.Code)
	}
}

func TestThumbnailEndpoint(t *testing.T) {
	e := newTestEnv(t)

	// Out of range on an empty gallery.
	resp, _ := e.get(t, "/api/gallery/0/thumbnail")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("empty gallery thumbnail: status %d, want 404", resp.StatusCode)
	}

	if err := os.WriteFile(filepath.Join(e.root, "clip.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if resp, body := e.do(t, http.MethodPost, "/api/scans", nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("scan: %d %s", resp.StatusCode, body)
	}
	e.waitIdle(t)
	e.do(t, http.MethodPost, "/api/gallery/refresh", nil)

	resp, body := e.get(t, "/api/gallery/0/thumbnail")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("thumbnail: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if st := resp.Header.Get("X-Thumbnail-State"); st != "ready" {
		t.Errorf("X-Thumbnail-State = %q, want ready for a video row", st)
	}
	if len(body) == 0 {
		t.Error("thumbnail body is empty")
	}
}

func TestConfigPatch(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPatch, "/api/config",
		[]byte(`{"action":"add","media_type":"image","extension":".xyz"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: %d %s", resp.StatusCode, body)
	}
	var sets struct {
		ImageExtensions []string `json:"image_extensions"`
	}
	decodeJSON(t, body, &sets)
	found := false
	for _, ext := range sets.ImageExtensions {
		if ext == ".xyz" {
			found = true
		}
	}
	if !found {
		t.Error(".xyz missing from the returned image set")
	}

	// Duplicate add is a no-change.
	resp, _ = e.do(t, http.MethodPatch, "/api/config",
		[]byte(`{"action":"add","media_type":"image","extension":".xyz"}`))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("duplicate add: status %d, want 422", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPatch, "/api/config",
		[]byte(`{"action":"explode","media_type":"image","extension":".xyz"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad action: status %d, want 400", resp.StatusCode)
	}
}

func TestMediaInfoNotFound(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.get(t, "/api/media/12345/info")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}
