package gallery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	internaldb "galleria/internal/db"
	"galleria/internal/media"
	"galleria/internal/store"
	"galleria/internal/thumb"
)

func newTestProvider(tb testing.TB) (*Provider, *store.Store) {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	db, err := internaldb.Open(dbPath)
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	tb.Cleanup(func() { db.Close() })

	st := store.New(db)
	return New(st, thumb.New(64, 64, 80)), st
}

func insertRecords(tb testing.TB, st *store.Store, n int) {
	tb.Helper()
	ctx := context.Background()
	base := time.Unix(20000, 0)
	for i := 0; i < n; i++ {
		rec := store.MediaRecord{
			Path:         fmt.Sprintf("/media/img%04d.jpg", i),
			Filename:     fmt.Sprintf("img%04d.jpg", i),
			Extension:    ".jpg",
			FileType:     media.FileTypeImage,
			FileSize:     100,
			ModifiedAt:   base,
			DiscoveredAt: base.Add(time.Duration(i) * time.Second),
		}
		if _, err := st.Upsert(ctx, rec); err != nil {
			tb.Fatalf("seed record %d: %v", i, err)
		}
	}
}

func TestProviderEmptyUntilRefresh(t *testing.T) {
	p, st := newTestProvider(t)
	insertRecords(t, st, 5)

	if got := p.RowCount(); got != 0 {
		t.Errorf("RowCount before Refresh = %d, want 0", got)
	}
	if _, err := p.RowAt(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("RowAt on empty snapshot: got %v, want ErrIndexOutOfRange", err)
	}

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := p.RowCount(); got != 5 {
		t.Errorf("RowCount after Refresh = %d, want 5", got)
	}
}

func TestRowAtOrderAndBounds(t *testing.T) {
	p, st := newTestProvider(t)
	insertRecords(t, st, 3)
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		rec, err := p.RowAt(i)
		if err != nil {
			t.Fatalf("RowAt(%d): %v", i, err)
		}
		want := fmt.Sprintf("/media/img%04d.jpg", i)
		if rec.Path != want {
			t.Errorf("RowAt(%d).Path = %q, want %q", i, rec.Path, want)
		}
	}

	for _, idx := range []int{-1, 3, 100} {
		if _, err := p.RowAt(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("RowAt(%d): got %v, want ErrIndexOutOfRange", idx, err)
		}
	}
}

func TestRowsClamped(t *testing.T) {
	p, st := newTestProvider(t)
	insertRecords(t, st, 10)
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		offset, limit, want int
	}{
		{0, 4, 4},
		{8, 4, 2},
		{10, 4, 0},
		{-1, 4, 0},
		{0, 100, 10},
		{0, 0, 0},
		{3, -5, 0},
	}
	for _, tc := range cases {
		got := p.Rows(tc.offset, tc.limit)
		if len(got) != tc.want {
			t.Errorf("Rows(%d, %d) returned %d rows, want %d", tc.offset, tc.limit, len(got), tc.want)
		}
	}
}

// TestConcurrentRefreshAndRead exercises the snapshot swap under a reader
// hammering RowAt; every read must see a coherent snapshot.
func TestConcurrentRefreshAndRead(t *testing.T) {
	p, st := newTestProvider(t)
	insertRecords(t, st, 20)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			n := p.RowCount()
			if n == 0 {
				continue
			}
			rec, err := p.RowAt(n - 1)
			if err != nil {
				// A Refresh can shrink the snapshot between RowCount
				// and RowAt only if the store shrank; here it never
				// does, so any error is a real failure.
				t.Errorf("RowAt(%d): %v", n-1, err)
				return
			}
			if rec.Path == "" {
				t.Error("read a zero record from a live snapshot")
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		if err := p.Refresh(context.Background()); err != nil {
			t.Errorf("Refresh: %v", err)
			break
		}
	}
	close(stop)
	wg.Wait()
}

func TestThumbnailForOutOfRange(t *testing.T) {
	p, _ := newTestProvider(t)

	if _, _, err := p.ThumbnailFor(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("ThumbnailFor(0) on empty provider: got %v, want ErrIndexOutOfRange", err)
	}
}

func TestThumbnailForVideoRow(t *testing.T) {
	p, st := newTestProvider(t)
	rec := store.MediaRecord{
		Path:         "/media/clip.mp4",
		Filename:     "clip.mp4",
		Extension:    ".mp4",
		FileType:     media.FileTypeVideo,
		FileSize:     100,
		ModifiedAt:   time.Unix(20000, 0),
		DiscoveredAt: time.Unix(20000, 0),
	}
	if _, err := st.Upsert(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, state, err := p.ThumbnailFor(0)
	if err != nil {
		t.Fatalf("ThumbnailFor: %v", err)
	}
	if state != thumb.StateReady {
		t.Errorf("video thumbnail state = %v, want StateReady", state)
	}
	if len(data) == 0 {
		t.Error("video thumbnail is empty")
	}
}
