package cache

import (
	"log"

	api "github.com/krisalay/dashcache/api"
)

// Resetter is anything holding per-session state that must be dropped at logout.
type Resetter interface {
	Reset()
}

/*
SessionHook ties the shared caches to the session lifecycle.

The host calls EndSession on logout so one user's datasets, loader states
and cached balances never show up in the next session on the same device.
*/
type SessionHook struct {
	cache  api.Cache
	others []Resetter
}

func NewSessionHook(c api.Cache, others ...Resetter) *SessionHook {
	return &SessionHook{cache: c, others: others}
}

// EndSession clears the store first, then every other registered cache.
func (h *SessionHook) EndSession() {
	removed := h.cache.Clear()
	for _, r := range h.others {
		r.Reset()
	}
	log.Printf("[INFO] session ended: dropped %d cached entries", removed)
}
