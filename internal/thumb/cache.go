package thumb

import (
	"bytes"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"galleria/internal/media"
	"galleria/internal/metrics"
)

// State describes what Get returned for a path.
type State int

const (
	// StateReady means the returned bytes are the real thumbnail (or the
	// fixed video icon).
	StateReady State = iota
	// StatePending means a decode is in flight; the returned bytes are a
	// placeholder and a later Get will return the real thumbnail.
	StatePending
	// StateFailed means the file could not be decoded; the returned bytes
	// are a failure placeholder and the path will not be retried.
	StateFailed
)

// maxConcurrentDecodes bounds decode parallelism so a burst of visible rows
// doesn't saturate the machine. Matches the source's small worker pool.
const maxConcurrentDecodes = 2

type entryState int

const (
	entryPending entryState = iota
	entryReady
	entryFailed
)

type entry struct {
	state entryState
	data  []byte // JPEG bytes; nil while pending
}

// Cache memoizes decoded, size-bounded preview images keyed by file path.
// Entries live for the process lifetime — there is no eviction; memory is
// bounded only by the number of distinct paths requested. That is a known
// limitation, not a bug.
//
// The entry map doubles as the in-flight coalescing map: a pending entry
// means a decode is already scheduled, so concurrent Gets for the same
// uncached path trigger exactly one decode. It is the only structure here
// mutated from two contexts (lookups vs. decode completions) and sits
// behind mu.
type Cache struct {
	width   int
	height  int
	quality int

	// onReady, when set, is called (off the caller's goroutine) after a
	// decode finishes. Optional: the HTTP server leaves it unset and lets
	// clients poll instead; an embedding view can use it to repaint a row.
	onReady func(path string)

	mu      sync.Mutex
	entries map[string]*entry

	sem chan struct{}

	videoIcon   []byte
	pendingIcon []byte
	failedIcon  []byte
}

// New creates a Cache producing thumbnails that fit within width x height.
func New(width, height, jpegQuality int) *Cache {
	return &Cache{
		width:       width,
		height:      height,
		quality:     jpegQuality,
		entries:     make(map[string]*entry),
		sem:         make(chan struct{}, maxConcurrentDecodes),
		videoIcon:   renderVideoIcon(width, height, jpegQuality),
		pendingIcon: renderFlatIcon(width, height, jpegQuality, pendingFill),
		failedIcon:  renderFlatIcon(width, height, jpegQuality, failedFill),
	}
}

// SetOnReady registers the optional decode-completion hook, for embedders
// that repaint on completion rather than polling Get. Must be called before
// the cache is shared across goroutines.
func (c *Cache) SetOnReady(fn func(path string)) {
	c.onReady = fn
}

// Get returns a thumbnail for path. Cached entries return synchronously.
// Videos return the fixed generic icon synchronously — no decode. An
// uncached image schedules an asynchronous decode and returns a pending
// placeholder immediately; once the decode finishes, all future Gets for
// the path return the result (or a failure placeholder, never retried).
func (c *Cache) Get(path string, fileType media.FileType) ([]byte, State) {
	if fileType != media.FileTypeImage {
		// Unknown files get the failure placeholder: there is nothing to
		// decode for them either.
		if fileType == media.FileTypeVideo {
			metrics.ThumbnailRequests.WithLabelValues("video").Inc()
			return c.videoIcon, StateReady
		}
		metrics.ThumbnailRequests.WithLabelValues("failed").Inc()
		return c.failedIcon, StateFailed
	}

	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		defer c.mu.Unlock()
		switch e.state {
		case entryReady:
			metrics.ThumbnailRequests.WithLabelValues("hit").Inc()
			return e.data, StateReady
		case entryFailed:
			metrics.ThumbnailRequests.WithLabelValues("failed").Inc()
			return c.failedIcon, StateFailed
		default:
			metrics.ThumbnailRequests.WithLabelValues("pending").Inc()
			return c.pendingIcon, StatePending
		}
	}

	// First request for this path: mark in flight, then decode off the
	// caller's goroutine.
	c.entries[path] = &entry{state: entryPending}
	metrics.ThumbnailCacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	go c.decode(path)

	metrics.ThumbnailRequests.WithLabelValues("pending").Inc()
	return c.pendingIcon, StatePending
}

// decode produces the thumbnail for path and stores the result.
func (c *Cache) decode(path string) {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	data, err := c.render(path)

	c.mu.Lock()
	e := c.entries[path]
	if err != nil {
		e.state = entryFailed
	} else {
		e.state = entryReady
		e.data = data
	}
	c.mu.Unlock()

	if err != nil {
		metrics.ThumbnailDecodes.WithLabelValues("error").Inc()
		slog.Debug("thumbnail decode failed", "path", path, "error", err)
	} else {
		metrics.ThumbnailDecodes.WithLabelValues("ok").Inc()
	}

	if c.onReady != nil {
		c.onReady(path)
	}
}

// render decodes the image at path and scales it down to fit the bounding
// box. EXIF orientation is applied; webp/bmp/tiff decode through the
// registered x/image decoders when imaging's own open path declines.
func (c *Cache) render(path string) ([]byte, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		img, err = openGeneric(path)
		if err != nil {
			return nil, err
		}
	}

	fit := imaging.Fit(img, c.width, c.height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fit, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Len returns the number of entries currently held (any state).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// openGeneric decodes through the image registry, which includes the
// webp/bmp/tiff decoders registered above — formats imaging.Open declines.
func openGeneric(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
