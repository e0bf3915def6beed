// Package reports keeps the audit trail of risk reports produced by the
// protocol tracker.
package reports

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/suiguard/suiguard/internal/pagination"
	"github.com/suiguard/suiguard/internal/tracker"
)

var ErrNotFound = errors.New("reports: not found")

// DefaultLimit caps list queries that pass a non-positive limit.
const DefaultLimit = 50

// Page is one slice of a newest-first listing. NextCursor is empty on the
// last page.
type Page struct {
	Reports    []*tracker.Report `json:"reports"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// Store persists reports. Lists are ordered by (analyzed_at, id) descending
// and resume strictly after the given cursor, which may be nil.
type Store interface {
	Save(ctx context.Context, r *tracker.Report) error
	Get(ctx context.Context, id string) (*tracker.Report, error)
	ListByPackage(ctx context.Context, packageID string, after *pagination.Cursor, limit int) (*Page, error)
	ListRecent(ctx context.Context, after *pagination.Cursor, limit int) (*Page, error)
}

var _ Store = (*MemoryStore)(nil)

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultLimit {
		return DefaultLimit
	}
	return limit
}

// MemoryStore is an in-memory Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	reports []*tracker.Report
	byID    map[string]*tracker.Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*tracker.Report)}
}

func (m *MemoryStore) Save(_ context.Context, r *tracker.Report) error {
	if r == nil || r.ID == "" {
		return errors.New("reports: report id required")
	}
	cp := *r
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[r.ID]; ok {
		for i, existing := range m.reports {
			if existing.ID == r.ID {
				m.reports[i] = &cp
			}
		}
	} else {
		m.reports = append(m.reports, &cp)
	}
	m.byID[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*tracker.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListByPackage(_ context.Context, packageID string, after *pagination.Cursor, limit int) (*Page, error) {
	return m.list(after, limit, func(r *tracker.Report) bool { return r.PackageID == packageID }), nil
}

func (m *MemoryStore) ListRecent(_ context.Context, after *pagination.Cursor, limit int) (*Page, error) {
	return m.list(after, limit, func(*tracker.Report) bool { return true }), nil
}

func (m *MemoryStore) list(after *pagination.Cursor, limit int, keep func(*tracker.Report) bool) *Page {
	m.mu.RLock()
	var out []*tracker.Report
	for _, r := range m.reports {
		if keep(r) && after.Follows(r.AnalyzedAt, r.ID) {
			cp := *r
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AnalyzedAt.Equal(out[j].AnalyzedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].AnalyzedAt.After(out[j].AnalyzedAt)
	})
	limit = normalizeLimit(limit)
	if len(out) > limit+1 {
		out = out[:limit+1]
	}
	return newPage(out, limit)
}

// newPage trims rows fetched with limit+1 into a Page.
func newPage(rows []*tracker.Report, limit int) *Page {
	rows, next := pagination.ComputePage(rows, limit, func(r *tracker.Report) (time.Time, string) {
		return r.AnalyzedAt, r.ID
	})
	if rows == nil {
		rows = []*tracker.Report{}
	}
	return &Page{Reports: rows, NextCursor: next}
}
