package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"fitness-planner/internal/planservice"

	log "github.com/sirupsen/logrus"
)

// Fetcher loads the stored plans of one kind for a user.
type Fetcher interface {
	History(ctx context.Context, kind planservice.Kind, email string) ([]planservice.HistoryEntry, error)
}

// Cache holds the most recently fetched history of one plan kind.
type Cache struct {
	kind    planservice.Kind
	fetcher Fetcher

	mu        sync.RWMutex
	email     string
	entries   []planservice.HistoryEntry
	refreshed time.Time
}

// NewCache creates an empty cache for kind.
func NewCache(kind planservice.Kind, fetcher Fetcher) *Cache {
	return &Cache{kind: kind, fetcher: fetcher}
}

// Kind returns the plan kind this cache holds.
func (c *Cache) Kind() planservice.Kind {
	return c.kind
}

// Refresh replaces the cached list with the service's current list for email.
// An empty email disables history and does nothing. Failures are logged; they
// keep the list of the same email and clear the list of any other.
func (c *Cache) Refresh(ctx context.Context, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}

	entries, err := c.fetcher.History(ctx, c.kind, email)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"kind":  c.kind,
			"email": email,
		}).Warn("failed to refresh history")

		c.mu.Lock()
		if c.email != email {
			c.email = ""
			c.entries = nil
			c.refreshed = time.Time{}
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.email = email
	c.entries = entries
	c.refreshed = time.Now()
	c.mu.Unlock()

	log.WithFields(log.Fields{"kind": c.kind, "entries": len(entries)}).Debug("history refreshed")
}

// List returns the cached entries, most recent first.
func (c *Cache) List() []planservice.HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]planservice.HistoryEntry(nil), c.entries...)
}

// Email returns the user of the cached list, or "" when nothing is cached.
func (c *Cache) Email() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.email
}

// RefreshedAt returns when the list was last replaced, or the zero time.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}
