package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"galleria/internal/store"
	"galleria/internal/thumb"
)

// ErrIndexOutOfRange is returned by RowAt/ThumbnailFor for indexes outside
// [0, RowCount).
var ErrIndexOutOfRange = errors.New("row index out of range")

// Provider is a windowed, index-addressable view over the store's current
// contents, for a virtualized view that asks only for visible rows.
//
// The row index is an immutable snapshot swapped atomically by Refresh, so
// RowAt is safe to call while Refresh runs concurrently: a reader sees the
// old snapshot or the new one, never a torn mix.
type Provider struct {
	st    *store.Store
	cache *thumb.Cache

	rows atomic.Pointer[[]store.MediaRecord]
}

// New creates an empty Provider. Call Refresh to populate it.
func New(st *store.Store, cache *thumb.Cache) *Provider {
	p := &Provider{st: st, cache: cache}
	empty := []store.MediaRecord{}
	p.rows.Store(&empty)
	return p
}

// Refresh re-reads the full record list from the store and replaces the
// snapshot. Typically called once at startup and after each completed scan.
func (p *Provider) Refresh(ctx context.Context) error {
	recs, err := p.st.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh gallery: %w", err)
	}
	if recs == nil {
		recs = []store.MediaRecord{}
	}
	p.rows.Store(&recs)
	return nil
}

// RowCount returns the number of rows in the current snapshot.
func (p *Provider) RowCount() int {
	return len(*p.rows.Load())
}

// RowAt returns the record at index.
func (p *Provider) RowAt(index int) (store.MediaRecord, error) {
	rows := *p.rows.Load()
	if index < 0 || index >= len(rows) {
		return store.MediaRecord{}, fmt.Errorf("%w: %d (rows: %d)", ErrIndexOutOfRange, index, len(rows))
	}
	return rows[index], nil
}

// Rows returns the slice [offset, offset+limit) of the current snapshot,
// clamped to its bounds. Used by the paging API.
func (p *Provider) Rows(offset, limit int) []store.MediaRecord {
	rows := *p.rows.Load()
	if offset < 0 || offset >= len(rows) || limit <= 0 {
		return []store.MediaRecord{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

// ThumbnailFor returns the thumbnail (or placeholder) for the row at index.
func (p *Provider) ThumbnailFor(index int) ([]byte, thumb.State, error) {
	rec, err := p.RowAt(index)
	if err != nil {
		return nil, thumb.StateFailed, err
	}
	data, state := p.cache.Get(rec.Path, rec.FileType)
	return data, state, nil
}
