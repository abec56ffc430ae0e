package grievance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"nivaran.org/internal/api"
)

// API is the slice of the authenticated transport the domain uses.
type API interface {
	Do(ctx context.Context, method, path string, opts ...api.RequestOption) (*api.Response, error)
}

// Snapshot is one bucket's content as fetched at a point in time. Buckets
// are fetched independently; two snapshots are only as consistent as their
// RefreshedAt markers say.
type Snapshot struct {
	Items       []Grievance
	RefreshedAt time.Time
}

const defaultStaleAfter = 5 * time.Minute

// Store caches the four per-status bucket views and the server-reported
// totals for one department. Each bucket is populated lazily by its own
// fetch; refreshing one never touches another.
type Store struct {
	api        API
	department string
	buckets    *gocache.Cache
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	stats   Stats
	statsAt time.Time
}

// StoreOption configures Store behavior.
type StoreOption func(*Store)

// WithStaleAfter overrides how old a snapshot may get before Stale reports
// it.
func WithStaleAfter(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithStoreClock overrides the wall clock. Intended for tests.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty store for the given department.
func NewStore(a API, department string, opts ...StoreOption) *Store {
	s := &Store{
		api:        a,
		department: department,
		buckets:    gocache.New(gocache.NoExpiration, 0),
		staleAfter: defaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Department returns the department this store is scoped to.
func (s *Store) Department() string { return s.department }

// Refresh fetches one bucket from the server and replaces its snapshot and
// the aggregate stats. Other buckets are left exactly as they were.
func (s *Store) Refresh(ctx context.Context, bucket Status) (Snapshot, error) {
	if !bucket.Valid() {
		return Snapshot{}, fmt.Errorf("grievance: unknown bucket %q", bucket)
	}

	path := "/api/grievances/department/" + url.PathEscape(s.department) + "/" + string(bucket)
	resp, err := s.api.Do(ctx, http.MethodGet, path)
	if err != nil {
		return Snapshot{}, err
	}

	var body struct {
		Grievances []Grievance `json:"grievances"`
		Stats      *Stats      `json:"stats"`
	}
	if err := resp.Decode(&body); err != nil {
		return Snapshot{}, fmt.Errorf("grievance: decode bucket %s: %w", bucket, err)
	}

	snap := Snapshot{Items: body.Grievances, RefreshedAt: s.now()}
	s.buckets.Set(string(bucket), snap, gocache.NoExpiration)

	if body.Stats != nil {
		s.mu.Lock()
		s.stats = *body.Stats
		s.statsAt = snap.RefreshedAt
		s.mu.Unlock()
	}
	return snap, nil
}

// Snapshot returns the cached view of a bucket, if it has ever been
// fetched.
func (s *Store) Snapshot(bucket Status) (Snapshot, bool) {
	v, ok := s.buckets.Get(string(bucket))
	if !ok {
		return Snapshot{}, false
	}
	return v.(Snapshot), true
}

// Stale reports whether a bucket has never been fetched or its snapshot is
// older than the staleness horizon.
func (s *Store) Stale(bucket Status) bool {
	snap, ok := s.Snapshot(bucket)
	if !ok {
		return true
	}
	return s.now().Sub(snap.RefreshedAt) > s.staleAfter
}

// Stats returns the last server-reported totals and when they were seen.
func (s *Store) Stats() (Stats, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.statsAt
}

// Invalidate drops every snapshot and the cached stats, typically on
// logout.
func (s *Store) Invalidate() {
	s.buckets.Flush()
	s.mu.Lock()
	s.stats = Stats{}
	s.statsAt = time.Time{}
	s.mu.Unlock()
}
