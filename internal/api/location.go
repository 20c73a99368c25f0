package api

import (
	"sync"

	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

// LocationCache stores the latest reported position per crew.
type LocationCache struct {
	mu sync.Mutex
	m  map[string]model.CrewLocation
}

// NewLocationCache constructs a LocationCache.
func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]model.CrewLocation{}} }

// Upsert stores or replaces the location for crewID. Empty ids are ignored.
func (c *LocationCache) Upsert(crewID string, p geo.Point, ts string) {
	if crewID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[crewID] = model.CrewLocation{CrewID: crewID, Location: p, TS: ts}
}

// Get returns the last location of crewID.
func (c *LocationCache) Get(crewID string) (model.CrewLocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.m[crewID]
	return l, ok
}
