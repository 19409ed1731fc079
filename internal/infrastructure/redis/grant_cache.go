package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yourorg/campuscore/internal/domain"
)

const grantCacheTTL = 2 * time.Minute

// GrantCache caches privilege grant sets in Redis, keyed by principal.
// The TTL is short and every grant or revoke invalidates the key, so a
// stale positive can only survive briefly on a different instance.
type GrantCache struct {
	client *Client
	logger *slog.Logger
}

// NewGrantCache creates a new Redis-backed grant cache
func NewGrantCache(client *Client, logger *slog.Logger) *GrantCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantCache{client: client, logger: logger}
}

// cachedGrant is the wire form; domain.Scope is opaque and round-trips
// through its string form.
type cachedGrant struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Scope      string             `json:"scope"`
	Privileges []domain.Privilege `json:"privileges"`
	GrantedBy  string             `json:"granted_by"`
}

func grantKey(id domain.PrincipalID) string {
	return "grants:" + string(id)
}

// GetGrants returns the cached grant set, with ok=false on miss or any
// decode problem. Cache failures never fail an authorization check.
func (c *GrantCache) GetGrants(ctx context.Context, id domain.PrincipalID) ([]*domain.PrivilegeGrant, bool) {
	raw, err := c.client.Get(ctx, grantKey(id))
	if err != nil {
		return nil, false
	}

	var cached []cachedGrant
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		c.logger.Warn("corrupt grant cache entry, dropping",
			slog.String("principal_id", string(id)),
			slog.String("error", err.Error()),
		)
		_ = c.client.Delete(ctx, grantKey(id))
		return nil, false
	}

	grants := make([]*domain.PrivilegeGrant, 0, len(cached))
	for _, cg := range cached {
		scope, err := domain.ParseScope(cg.Scope)
		if err != nil {
			return nil, false
		}
		grants = append(grants, &domain.PrivilegeGrant{
			ID:         cg.ID,
			UserID:     domain.PrincipalID(cg.UserID),
			Scope:      scope,
			Privileges: cg.Privileges,
			GrantedBy:  domain.PrincipalID(cg.GrantedBy),
		})
	}
	return grants, true
}

// SetGrants stores the grant set. Best-effort.
func (c *GrantCache) SetGrants(ctx context.Context, id domain.PrincipalID, grants []*domain.PrivilegeGrant) {
	cached := make([]cachedGrant, 0, len(grants))
	for _, g := range grants {
		cached = append(cached, cachedGrant{
			ID:         g.ID,
			UserID:     string(g.UserID),
			Scope:      g.Scope.String(),
			Privileges: g.Privileges,
			GrantedBy:  string(g.GrantedBy),
		})
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, grantKey(id), data, grantCacheTTL); err != nil {
		c.logger.Debug("grant cache write failed", slog.String("error", err.Error()))
	}
}

// Invalidate drops the cached grant set for a principal.
func (c *GrantCache) Invalidate(ctx context.Context, id domain.PrincipalID) {
	if err := c.client.Delete(ctx, grantKey(id)); err != nil {
		c.logger.Warn("grant cache invalidation failed",
			slog.String("principal_id", string(id)),
			slog.String("error", err.Error()),
		)
	}
}
