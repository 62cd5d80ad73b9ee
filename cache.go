package terralens

import (
	"sync"
	"time"
)

// artifactCache holds fetched ResultArtifacts for the session, keyed by job
// id. Artifacts are immutable once stored; re-fetch only on explicit refresh.
type artifactCache struct {
	mu      sync.RWMutex
	entries map[string]*ResultArtifact
}

func newArtifactCache() *artifactCache {
	return &artifactCache{entries: make(map[string]*ResultArtifact)}
}

func (c *artifactCache) get(jobID string) (*ResultArtifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[jobID]
	return a, ok
}

func (c *artifactCache) set(jobID string, a *ResultArtifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[jobID] = a
}

// LastStatus is the most recent successfully polled job status. Stale is set
// when later polls have failed repeatedly, so readers know the snapshot may
// lag the server.
type LastStatus struct {
	Status JobStatus
	At     time.Time
	Stale  bool
}

// statusCache is a single-slot last-known-good store for the polling
// fallback, with an explicit staleness flag instead of an implicit side
// variable.
type statusCache struct {
	mu   sync.RWMutex
	last *LastStatus
}

func (c *statusCache) store(s JobStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = &LastStatus{Status: s, At: time.Now()}
}

func (c *statusCache) markStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != nil {
		c.last.Stale = true
	}
}

func (c *statusCache) get() (LastStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return LastStatus{}, false
	}
	return *c.last, true
}

func (c *statusCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = nil
}
