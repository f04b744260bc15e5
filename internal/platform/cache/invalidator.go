package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ownerVersionKeyFmt = "ledger:%s:version"
	bumpChannel        = "ledger.bump"
)

// Invalidator signals "ledger data for this owner changed" to interested
// caches. The signal is fire-and-forget: a failed bump is logged and never
// fails the write that triggered it.
type Invalidator struct {
	client *redis.Client
	logger *slog.Logger
}

// NewInvalidator builds an Invalidator. A nil client disables signalling.
func NewInvalidator(client *redis.Client, logger *slog.Logger) *Invalidator {
	return &Invalidator{client: client, logger: logger}
}

// LedgerChanged bumps the owner's cache version and publishes the change.
func (i *Invalidator) LedgerChanged(ctx context.Context, ownerID string) {
	if i == nil || i.client == nil || ownerID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	key := fmt.Sprintf(ownerVersionKeyFmt, ownerID)
	if err := i.client.Incr(ctx, key).Err(); err != nil {
		if i.logger != nil {
			i.logger.Warn("bump ledger version", slog.String("owner_id", ownerID), slog.Any("error", err))
		}
		return
	}
	if err := i.client.Publish(ctx, bumpChannel, ownerID).Err(); err != nil && i.logger != nil {
		i.logger.Warn("publish ledger bump", slog.String("owner_id", ownerID), slog.Any("error", err))
	}
}

// OwnerVersion returns the owner's current cache version, initialising it
// when missing.
func OwnerVersion(ctx context.Context, client *redis.Client, ownerID string) (int64, error) {
	if client == nil {
		return 0, nil
	}
	key := fmt.Sprintf(ownerVersionKeyFmt, ownerID)
	ver, err := client.Get(ctx, key).Int64()
	if err == redis.Nil {
		if err := client.Set(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}
