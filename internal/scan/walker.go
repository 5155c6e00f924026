package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"galleria/internal/media"
)

// DiscoveredFile is a filesystem entry emitted by the walker. Files with an
// unrecognized extension are emitted with FileTypeUnknown rather than
// dropped — filtering is the consumer's decision, not the walker's.
type DiscoveredFile struct {
	Path     string
	FileType media.FileType
	Size     int64
	ModTime  time.Time
}

// ErrorReporter records a per-entry traversal error. The walker never aborts
// on one; it reports and continues with siblings.
type ErrorReporter func(path, stage, errMsg string)

// Walk traverses root depth-first and sends every regular file it finds to
// out, classified by extension. Walk closes out when done.
//
// Entries are processed in the sorted order os.ReadDir returns, so the
// emission order is deterministic for an unchanged tree. Symlinks to files
// are skipped; symlinks to directories are followed, but each directory's
// resolved real path is visited at most once per walk, so cycles terminate.
// Each call is an independent traversal — no state is shared between calls.
func Walk(ctx context.Context, root string, classify *media.Classifier, excludes map[string]struct{}, out chan<- DiscoveredFile, report ErrorReporter) {
	defer close(out)

	visited := make(map[string]struct{})
	walkDir(ctx, root, classify, excludes, visited, out, report)
}

// walkDir handles one directory: marks its real path visited, emits its
// files, and recurses into subdirectories.
func walkDir(ctx context.Context, dir string, classify *media.Classifier, excludes map[string]struct{}, visited map[string]struct{}, out chan<- DiscoveredFile, report ErrorReporter) {
	if ctx.Err() != nil {
		return
	}

	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		report(dir, "walk", err.Error())
		return
	}
	if _, seen := visited[real]; seen {
		return
	}
	visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		report(dir, "walk", err.Error())
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		path := filepath.Join(dir, entry.Name())
		if _, excluded := excludes[path]; excluded {
			continue
		}

		if entry.IsDir() {
			walkDir(ctx, path, classify, excludes, visited, out, report)
			continue
		}

		if entry.Type()&fs.ModeSymlink != 0 {
			// A symlink to a directory is traversed (cycle-guarded above);
			// a symlink to a file is skipped — its target is found on its
			// own path.
			if target, err := os.Stat(path); err == nil && target.IsDir() {
				walkDir(ctx, path, classify, excludes, visited, out, report)
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			report(path, "stat", err.Error())
			continue
		}

		select {
		case <-ctx.Done():
			return
		case out <- DiscoveredFile{
			Path:     path,
			FileType: classify.ClassifyPath(path),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		}:
		}
	}
}
