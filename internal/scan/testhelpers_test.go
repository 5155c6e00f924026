package scan

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"galleria/internal/config"
	internaldb "galleria/internal/db"
	"galleria/internal/media"
	"galleria/internal/store"
)

// mustOpenDB opens a temp-file SQLite database with the full schema applied.
func mustOpenDB(tb testing.TB) *sql.DB {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	db, err := internaldb.Open(dbPath)
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

// testClassifier uses the default extension sets.
func testClassifier() *media.Classifier {
	return media.NewClassifier(config.DefaultImageExtensions, config.DefaultVideoExtensions)
}

// newTestCoordinator wires a Coordinator over a fresh DB and returns it with
// its store and notifier.
func newTestCoordinator(tb testing.TB) (*Coordinator, *store.Store, *Notifier) {
	tb.Helper()
	db := mustOpenDB(tb)
	st := store.New(db)
	notifier := NewNotifier()
	coord := NewCoordinator(db, st, notifier, testClassifier, nil)
	return coord, st, notifier
}

// writeFiles creates each named file (with parent dirs) under root with
// trivial content and returns their absolute paths.
func writeFiles(tb testing.TB, root string, names ...string) []string {
	tb.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			tb.Fatalf("mkdir for %q: %v", name, err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			tb.Fatalf("write %q: %v", name, err)
		}
		paths = append(paths, p)
	}
	return paths
}

// noErrors is an ErrorReporter that fails the test if invoked.
func noErrors(tb testing.TB) ErrorReporter {
	return func(path, stage, errMsg string) {
		tb.Errorf("unexpected walk error: path=%q stage=%q err=%q", path, stage, errMsg)
	}
}

// waitTerminal drains events until the first terminal event and returns it
// along with every event seen (terminal included).
func waitTerminal(tb testing.TB, events <-chan Event) (Event, []Event) {
	tb.Helper()
	var all []Event
	for ev := range events {
		all = append(all, ev)
		if ev.Terminal() {
			return ev, all
		}
	}
	tb.Fatal("event channel closed before a terminal event")
	return Event{}, nil
}
