// Package memorydeny provides an in-process denylist for single-node
// deployments and tests.
package memorydeny

import (
	"context"
	"sync"
	"time"

	"github.com/authgate-io/authgate/denylist"
)

type Denylist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func New() *Denylist {
	return &Denylist{entries: map[string]time.Time{}}
}

func (d *Denylist) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	d.mu.Lock()
	d.entries[tokenID] = time.Now().Add(ttl)
	d.mu.Unlock()
	return nil
}

func (d *Denylist) Contains(_ context.Context, tokenID string) (bool, error) {
	d.mu.RLock()
	exp, ok := d.entries[tokenID]
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		// Lazily drop expired markers.
		d.mu.Lock()
		if cur, ok := d.entries[tokenID]; ok && time.Now().After(cur) {
			delete(d.entries, tokenID)
		}
		d.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Interface compliance
var _ denylist.Denylist = (*Denylist)(nil)
