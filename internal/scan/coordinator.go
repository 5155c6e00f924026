package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"galleria/internal/media"
	"galleria/internal/metrics"
	"galleria/internal/store"
)

// ErrAlreadyRunning is returned when a scan is started while one is in progress.
var ErrAlreadyRunning = errors.New("a scan is already in progress")

// ErrNoActiveScan is returned when Cancel is called with no scan running.
var ErrNoActiveScan = errors.New("no scan is currently running")

// Status is a scan session's lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusCancelling Status = "cancelling"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Session is a point-in-time snapshot of a scan. Zero sessions (Status
// Idle) are returned between scans.
type Session struct {
	ID            int64     `json:"id"`
	RootPath      string    `json:"root_path"`
	Status        Status    `json:"status"`
	CurrentTarget string    `json:"current_target,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	TriggeredBy   string    `json:"triggered_by"`
	FilesSeen     int64     `json:"files_seen"`
	FilesInserted int64     `json:"files_inserted"`
	Errors        int64     `json:"errors"`
}

// progress holds live counters updated by the scan goroutine and read from
// HTTP handlers without locks.
type progress struct {
	filesSeen     atomic.Int64
	filesInserted atomic.Int64
	errors        atomic.Int64
	currentTarget atomic.Value // string
}

// ClassifierSource yields the classifier a new scan should use, so runtime
// extension-set edits apply to the next scan without restarting.
type ClassifierSource func() *media.Classifier

// progressInterval coalesces progress events: at most one per interval,
// except the terminal event which is always emitted.
const progressInterval = 100 * time.Millisecond

// Coordinator owns at most one walker execution at a time. It bridges
// discovered files to the store (write path) and to the Notifier (read path
// for observers), and exposes cooperative cancellation. Safe for concurrent
// use.
type Coordinator struct {
	db         *sql.DB
	st         *store.Store
	notifier   *Notifier
	classifier ClassifierSource
	excludes   []string

	mu       sync.Mutex
	active   *Session // nil when idle
	prog     *progress
	cancelFn context.CancelFunc
}

// NewCoordinator creates a Coordinator. classifier is called once per scan.
func NewCoordinator(db *sql.DB, st *store.Store, notifier *Notifier, classifier ClassifierSource, excludes []string) *Coordinator {
	return &Coordinator{
		db:         db,
		st:         st,
		notifier:   notifier,
		classifier: classifier,
		excludes:   excludes,
	}
}

// Start launches an asynchronous scan of root and returns immediately.
// Returns ErrAlreadyRunning while a scan is active. A root that does not
// exist (or is not a directory) fails fast: the session is recorded as
// failed, a failure event is published, and the store is untouched.
func (c *Coordinator) Start(parentCtx context.Context, root, triggeredBy string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return Session{}, ErrAlreadyRunning
	}

	startedAt := time.Now()

	// Root-level failure never transitions to Running.
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		reason := fmt.Sprintf("root path %q is not a readable directory", root)
		if err != nil {
			reason = err.Error()
		}
		scanID, herr := insertScanRecord(c.db, root, startedAt, triggeredBy)
		if herr == nil {
			finaliseScanRecord(c.db, scanID, StatusFailed, startedAt, &progress{}) //nolint:errcheck
		}
		metrics.ScansTotal.WithLabelValues(string(StatusFailed)).Inc()
		c.notifier.Publish(Event{
			Kind:     EventFailed,
			ScanID:   scanID,
			RootPath: root,
			Reason:   reason,
		})
		return Session{ID: scanID, RootPath: root, Status: StatusFailed, StartedAt: startedAt, TriggeredBy: triggeredBy},
			fmt.Errorf("start scan: %s", reason)
	}

	scanID, err := insertScanRecord(c.db, root, startedAt, triggeredBy)
	if err != nil {
		return Session{}, fmt.Errorf("create scan record: %w", err)
	}

	prog := &progress{}
	prog.currentTarget.Store("")
	scanCtx, cancel := context.WithCancel(parentCtx)

	active := &Session{
		ID:          scanID,
		RootPath:    root,
		Status:      StatusRunning,
		StartedAt:   startedAt,
		TriggeredBy: triggeredBy,
	}
	c.active = active
	c.prog = prog
	c.cancelFn = cancel

	classify := c.classifier()
	excludes := make(map[string]struct{}, len(c.excludes))
	for _, p := range c.excludes {
		excludes[p] = struct{}{}
	}

	go func() {
		defer cancel()
		c.run(scanCtx, scanID, root, classify, excludes, startedAt, prog)

		c.mu.Lock()
		c.active = nil
		c.prog = nil
		c.cancelFn = nil
		c.mu.Unlock()
	}()

	snap := *active
	return snap, nil
}

// Cancel transitions a running scan to Cancelling. The scan stops at the
// next file boundary — after the in-flight upsert finishes, never mid-write.
func (c *Coordinator) Cancel() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return Session{}, ErrNoActiveScan
	}

	c.active.Status = StatusCancelling
	c.cancelFn()
	return c.snapshotLocked(), nil
}

// Session returns a snapshot of the current session. Between scans the
// snapshot is the zero session with Status Idle.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return Session{Status: StatusIdle}
	}
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Session {
	snap := *c.active
	snap.FilesSeen = c.prog.filesSeen.Load()
	snap.FilesInserted = c.prog.filesInserted.Load()
	snap.Errors = c.prog.errors.Load()
	if t, ok := c.prog.currentTarget.Load().(string); ok {
		snap.CurrentTarget = t
	}
	return snap
}

// run consumes the walker's stream on the scan goroutine. Ingestion is
// ordered: a file's progress event is only published after its upsert
// attempt finished, so a crash never loses a record already reported past.
func (c *Coordinator) run(ctx context.Context, scanID int64, root string, classify *media.Classifier, excludes map[string]struct{}, startedAt time.Time, prog *progress) {
	slog.Info("scan started", "id", scanID, "root", root)

	report := c.errorReporter(scanID, prog)

	out := make(chan DiscoveredFile, 256)
	go Walk(ctx, root, classify, excludes, out, report)

	lastEmit := time.Time{}
	for f := range out {
		prog.filesSeen.Add(1)
		prog.currentTarget.Store(f.Path)
		metrics.FilesSeen.Inc()

		rec := store.MediaRecord{
			Path:         f.Path,
			Filename:     filepath.Base(f.Path),
			Extension:    filepath.Ext(f.Path),
			FileType:     f.FileType,
			FileSize:     f.Size,
			ModifiedAt:   f.ModTime,
			DiscoveredAt: time.Now(),
		}
		// Upsert with a background context: cancellation is honored at the
		// file boundary below, never mid-write.
		inserted, err := c.st.Upsert(context.Background(), rec)
		if err != nil {
			report(f.Path, "upsert", err.Error())
		} else if inserted {
			prog.filesInserted.Add(1)
			metrics.FilesInserted.Inc()
		}

		if now := time.Now(); now.Sub(lastEmit) >= progressInterval {
			lastEmit = now
			c.notifier.Publish(Event{
				Kind:          EventProgress,
				ScanID:        scanID,
				RootPath:      root,
				CurrentTarget: f.Path,
				FilesSeen:     prog.filesSeen.Load(),
				FilesInserted: prog.filesInserted.Load(),
				Errors:        prog.errors.Load(),
			})
		}

		if ctx.Err() != nil {
			break
		}
	}

	status := StatusCompleted
	kind := EventCompleted
	if ctx.Err() != nil {
		status = StatusCancelled
		kind = EventCancelled
	}

	if err := finaliseScanRecord(c.db, scanID, status, startedAt, prog); err != nil {
		slog.Error("finalise scan record", "id", scanID, "error", err)
	}
	metrics.ScansTotal.WithLabelValues(string(status)).Inc()

	// The terminal event is never throttled and is always the session's
	// last notification.
	c.notifier.Publish(Event{
		Kind:          kind,
		ScanID:        scanID,
		RootPath:      root,
		FilesSeen:     prog.filesSeen.Load(),
		FilesInserted: prog.filesInserted.Load(),
		Errors:        prog.errors.Load(),
	})

	slog.Info("scan finished", "id", scanID, "status", status,
		"files_seen", prog.filesSeen.Load(),
		"files_inserted", prog.filesInserted.Load(),
		"errors", prog.errors.Load())
}

// errorReporter returns an ErrorReporter that counts, logs, and persists
// per-file failures without aborting the scan.
func (c *Coordinator) errorReporter(scanID int64, prog *progress) ErrorReporter {
	return func(path, stage, errMsg string) {
		prog.errors.Add(1)
		metrics.ScanErrors.WithLabelValues(stage).Inc()
		slog.Warn("scan error", "scan_id", scanID, "path", path, "stage", stage, "error", errMsg)
		if _, err := c.db.Exec(`
			INSERT INTO scan_errors (scan_id, path, stage, error, occurred_at)
			VALUES (?, ?, ?, ?, ?)`,
			scanID, path, stage, errMsg, time.Now().Unix()); err != nil {
			slog.Warn("persist scan error", "scan_id", scanID, "error", err)
		}
	}
}

// MarkStaleScansFailed marks any scan_history rows still in 'running' state
// as 'failed'. Called once at startup in case a previous process crashed
// mid-scan; committed media records from such scans are kept.
func MarkStaleScansFailed(db *sql.DB) error {
	res, err := db.Exec(`
		UPDATE scan_history
		SET status = ?, finished_at = ?
		WHERE status = ?`,
		string(StatusFailed), time.Now().Unix(), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("mark stale scans failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale scans as failed", "count", n)
	}
	return nil
}

func insertScanRecord(db *sql.DB, root string, startedAt time.Time, triggeredBy string) (int64, error) {
	now := startedAt.Unix()
	res, err := db.Exec(`
		INSERT INTO scan_history (root_path, started_at, status, triggered_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		root, now, string(StatusRunning), triggeredBy, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func finaliseScanRecord(db *sql.DB, scanID int64, status Status, startedAt time.Time, prog *progress) error {
	finishedAt := time.Now()
	_, err := db.Exec(`
		UPDATE scan_history
		SET status           = ?,
		    finished_at      = ?,
		    duration_seconds = ?,
		    files_seen       = ?,
		    files_inserted   = ?,
		    errors           = ?
		WHERE id = ?`,
		string(status),
		finishedAt.Unix(),
		int64(finishedAt.Sub(startedAt).Seconds()),
		prog.filesSeen.Load(),
		prog.filesInserted.Load(),
		prog.errors.Load(),
		scanID)
	return err
}
