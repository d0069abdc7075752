package engine

import (
	"testing"
	"time"

	"github.com/krisalay/dashcache/expiration"
	"github.com/stretchr/testify/assert"
)

func TestEffectiveTTL(t *testing.T) {
	e := NewCacheEngine(expiration.NewNamespaceTTL(map[string]time.Duration{"stats": time.Minute}, 10*time.Second), nil)

	assert.Equal(t, 5*time.Second, e.EffectiveTTL("stats", 5*time.Second), "override wins")
	assert.Equal(t, time.Minute, e.EffectiveTTL("stats", 0))
	assert.Equal(t, time.Minute, e.EffectiveTTL("stats", -time.Second))
	assert.Equal(t, 10*time.Second, e.EffectiveTTL("other", 0))
}

func TestNewEntryUsesClock(t *testing.T) {
	e := NewCacheEngine(nil, nil)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e.Clock = func() time.Time { return at }

	ent := e.NewEntry("k", 1)
	assert.Equal(t, at, ent.CreatedAt)

	e.Clock = func() time.Time { return at.Add(expiration.DefaultTTL + time.Second) }
	assert.True(t, e.IsExpired(ent, e.EffectiveTTL("k", 0)))
}
