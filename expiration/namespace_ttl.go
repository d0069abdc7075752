package expiration

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/krisalay/dashcache/types"
)

// DefaultTTL is the floor used for a namespace with no table entry.
const DefaultTTL = time.Minute

// NamespaceSeparator splits a key into "<namespace>:<variant>".
const NamespaceSeparator = ":"

/*
NamespaceTTL implements "expire after write" with one freshness window per
logical dataset.

A key such as "members:page=2&sort=name" belongs to the "members"
namespace and gets the "members" TTL. A key with no separator is its own
namespace.

When a namespace has no table entry the Default is used. The default is
always finite: a missing table entry re-fetches too often instead of never
re-fetching. The gap is logged once per namespace since it usually means
somebody forgot to add a table entry.
*/
type NamespaceTTL struct {

	// Table maps a namespace to its freshness window.
	Table map[string]time.Duration

	// Default is used for namespaces missing from Table.
	// Zero or negative means DefaultTTL.
	Default time.Duration

	warned sync.Map // namespace → struct{}
}

// NewNamespaceTTL copies the table so later edits by the caller have no effect.
func NewNamespaceTTL(table map[string]time.Duration, def time.Duration) *NamespaceTTL {
	t := make(map[string]time.Duration, len(table))
	for ns, ttl := range table {
		t[ns] = ttl
	}
	return &NamespaceTTL{Table: t, Default: def}
}

// Namespace returns the dataset name a key belongs to.
func Namespace(key string) string {
	if i := strings.Index(key, NamespaceSeparator); i >= 0 {
		return key[:i]
	}
	return key
}

// TTLFor resolves the table entry for the key's namespace.
func (n *NamespaceTTL) TTLFor(key string) time.Duration {
	ns := Namespace(key)
	if ttl, ok := n.Table[ns]; ok && ttl > 0 {
		return ttl
	}

	if _, seen := n.warned.LoadOrStore(ns, struct{}{}); !seen {
		log.Printf("[WARN] cache: no TTL configured for namespace %q, using default %s", ns, n.fallback())
	}
	return n.fallback()
}

func (n *NamespaceTTL) fallback() time.Duration {
	if n.Default > 0 {
		return n.Default
	}
	return DefaultTTL
}

// IsExpired reports whether more than ttl has passed since the entry was written.
// An entry exactly ttl old is still fresh.
func (n *NamespaceTTL) IsExpired(ent *types.CacheEntry, ttl time.Duration, now time.Time) bool {
	return ent.Age(now) > ttl
}
