package service

import (
	"context"
	"time"

	"guardbot/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type exemptKey struct {
	scope   domain.ScopeID
	channel domain.ChannelID
	actor   domain.ActorID
}

// ExemptCache memoizes permission lookups for a short while. Failed
// lookups are not cached.
type ExemptCache struct {
	inner PermissionResolver
	cache *expirable.LRU[exemptKey, bool]
}

func NewExemptCache(inner PermissionResolver, capacity int, ttl time.Duration) *ExemptCache {
	return &ExemptCache{
		inner: inner,
		cache: expirable.NewLRU[exemptKey, bool](capacity, nil, ttl),
	}
}

func (c *ExemptCache) IsExempt(ctx context.Context, scope domain.ScopeID, channel domain.ChannelID, actor domain.ActorID) (bool, error) {
	k := exemptKey{scope, channel, actor}
	if v, ok := c.cache.Get(k); ok {
		return v, nil
	}
	v, err := c.inner.IsExempt(ctx, scope, channel, actor)
	if err != nil {
		return false, err
	}
	c.cache.Add(k, v)
	return v, nil
}

// Forget drops cached answers for actor, e.g. after a role change.
func (c *ExemptCache) Forget(actor domain.ActorID) {
	for _, k := range c.cache.Keys() {
		if k.actor == actor {
			c.cache.Remove(k)
		}
	}
}
