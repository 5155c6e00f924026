package thumb

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"galleria/internal/media"
)

// writePNG writes a small solid-color PNG and returns its path.
func writePNG(tb testing.TB, dir, name string, w, h int) string {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode PNG: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		tb.Fatalf("write PNG: %v", err)
	}
	return path
}

// waitReady polls until Get returns a non-pending state for path.
func waitReady(tb testing.TB, c *Cache, path string) ([]byte, State) {
	tb.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, state := c.Get(path, media.FileTypeImage)
		if state != StatePending {
			return data, state
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("thumbnail for %s still pending after 5s", path)
	return nil, StatePending
}

func TestGetVideoSynchronous(t *testing.T) {
	c := New(200, 200, 80)

	data, state := c.Get("/does/not/exist.mp4", media.FileTypeVideo)
	if state != StateReady {
		t.Fatalf("video state = %v, want StateReady", state)
	}
	if len(data) == 0 {
		t.Fatal("video icon is empty")
	}
	// Videos never occupy cache entries.
	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d after video Get, want 0", got)
	}

	again, _ := c.Get("/other.mkv", media.FileTypeVideo)
	if !bytes.Equal(data, again) {
		t.Error("video icon differs between calls")
	}
}

func TestGetUnknownReturnsFailedIcon(t *testing.T) {
	c := New(200, 200, 80)

	_, state := c.Get("/notes.txt", media.FileTypeUnknown)
	if state != StateFailed {
		t.Errorf("unknown-type state = %v, want StateFailed", state)
	}
}

func TestGetImageDecodesOnce(t *testing.T) {
	c := New(64, 64, 80)
	path := writePNG(t, t.TempDir(), "a.png", 300, 120)

	var ready atomic.Int64
	done := make(chan struct{}, 1)
	c.SetOnReady(func(string) {
		ready.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
	})

	data, state := c.Get(path, media.FileTypeImage)
	if state != StatePending {
		t.Fatalf("first Get state = %v, want StatePending", state)
	}
	if len(data) == 0 {
		t.Fatal("pending placeholder is empty")
	}

	<-done
	data, state = c.Get(path, media.FileTypeImage)
	if state != StateReady {
		t.Fatalf("post-decode state = %v, want StateReady", state)
	}
	if len(data) == 0 {
		t.Fatal("decoded thumbnail is empty")
	}

	// Decoded output must be JPEG regardless of the source format.
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("thumbnail format = %q, want jpeg", format)
	}
	if cfg.Width > 64 || cfg.Height > 64 {
		t.Errorf("thumbnail %dx%d exceeds 64x64 bounding box", cfg.Width, cfg.Height)
	}

	if n := ready.Load(); n != 1 {
		t.Errorf("onReady fired %d times, want 1", n)
	}
}

// TestConcurrentGetsCoalesce fires many Gets for the same uncached path and
// verifies exactly one decode runs.
func TestConcurrentGetsCoalesce(t *testing.T) {
	c := New(64, 64, 80)
	path := writePNG(t, t.TempDir(), "b.png", 100, 100)

	var decodes atomic.Int64
	c.SetOnReady(func(string) { decodes.Add(1) })

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(path, media.FileTypeImage)
		}()
	}
	wg.Wait()

	waitReady(t, c, path)

	// Give any stray decode goroutine time to surface.
	time.Sleep(50 * time.Millisecond)
	if n := decodes.Load(); n != 1 {
		t.Errorf("decode ran %d times for one path, want 1", n)
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestCorruptImageFailsOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(path, []byte("not an image at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(64, 64, 80)
	var ready atomic.Int64
	c.SetOnReady(func(string) { ready.Add(1) })

	if _, state := c.Get(path, media.FileTypeImage); state != StatePending {
		t.Fatalf("first Get state = %v, want StatePending", state)
	}

	data, state := waitReady(t, c, path)
	if state != StateFailed {
		t.Fatalf("corrupt-file state = %v, want StateFailed", state)
	}
	if len(data) == 0 {
		t.Fatal("failure placeholder is empty")
	}

	// Repeat Gets stay failed without re-decoding.
	for i := 0; i < 3; i++ {
		if _, s := c.Get(path, media.FileTypeImage); s != StateFailed {
			t.Fatalf("repeat Get state = %v, want StateFailed", s)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if n := ready.Load(); n != 1 {
		t.Errorf("decode attempted %d times, want 1", n)
	}
}

func TestDistinctPathsDistinctEntries(t *testing.T) {
	c := New(64, 64, 80)
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 50, 50)
	b := writePNG(t, dir, "b.png", 50, 50)

	c.Get(a, media.FileTypeImage)
	c.Get(b, media.FileTypeImage)
	waitReady(t, c, a)
	waitReady(t, c, b)

	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}
