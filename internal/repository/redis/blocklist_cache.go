package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/client"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

const (
	accountLockPrefix  = "security:account_lock:"
	suspiciousIPPrefix = "security:suspicious_ip:"
	blockedIPSetKey    = "security:blocked_ips"

	opTimeout = 5 * time.Second
)

// BlocklistCache persists remediation state in Redis. Account locks and
// suspicious (rate-limited) IPs live as keys with a TTL so Redis handles
// their expiry; blocked IPs live in a plain set because only an
// administrator removes them.
type BlocklistCache struct {
	client *client.RedisClient
}

func NewBlocklistCache(c *client.RedisClient) *BlocklistCache {
	return &BlocklistCache{client: c}
}

// ===================== ACCOUNT LOCKS =====================

// Lock sets a temporary lock for the account. An existing lock is left
// untouched so repeated auto fixes never extend the original expiry.
func (c *BlocklistCache) Lock(ctx context.Context, email string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := accountLockPrefix + email
	created, err := c.client.SetNX(ctx, key, "locked", ttl)
	if err != nil {
		util.Error("Failed to set account lock",
			zap.String("email", email),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to set account lock: %w", err)
	}
	if !created {
		util.Debug("Account lock already present", zap.String("email", email))
		return nil
	}

	util.Debug("Account lock set", zap.String("email", email), zap.Duration("ttl", ttl))
	return nil
}

func (c *BlocklistCache) IsLocked(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	exists, err := c.client.Exists(ctx, accountLockPrefix+email)
	if err != nil {
		util.Error("Failed to check account lock",
			zap.String("email", email),
			zap.Error(err))
		return false, fmt.Errorf("failed to check account lock: %w", err)
	}
	return exists, nil
}

func (c *BlocklistCache) Unlock(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Del(ctx, accountLockPrefix+email); err != nil {
		return fmt.Errorf("failed to remove account lock: %w", err)
	}
	return nil
}

// ===================== IP STATE MIRROR =====================

func (c *BlocklistCache) AddBlockedIP(ctx context.Context, ip string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.SAdd(ctx, blockedIPSetKey, ip); err != nil {
		return fmt.Errorf("failed to persist blocked IP: %w", err)
	}
	return nil
}

func (c *BlocklistCache) AddSuspiciousIP(ctx context.Context, ip string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, suspiciousIPPrefix+ip, "rate_limited", ttl); err != nil {
		return fmt.Errorf("failed to persist suspicious IP: %w", err)
	}
	return nil
}

func (c *BlocklistCache) RemoveIP(ctx context.Context, ip string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.SRem(ctx, blockedIPSetKey, ip); err != nil {
		return fmt.Errorf("failed to remove blocked IP: %w", err)
	}
	if err := c.client.Del(ctx, suspiciousIPPrefix+ip); err != nil {
		return fmt.Errorf("failed to remove suspicious IP: %w", err)
	}
	return nil
}

func (c *BlocklistCache) LoadBlockedIPs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ips, err := c.client.SMembers(ctx, blockedIPSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocked IPs: %w", err)
	}
	return ips, nil
}

func (c *BlocklistCache) LoadSuspiciousIPs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys, err := c.client.Scan(ctx, suspiciousIPPrefix+"*", 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to scan suspicious IPs: %w", err)
	}

	ips := make([]string, 0, len(keys))
	for _, key := range keys {
		ips = append(ips, strings.TrimPrefix(key, suspiciousIPPrefix))
	}
	return ips, nil
}
