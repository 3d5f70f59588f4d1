package dedup

import (
	"context"
	"strings"

	"logistics/internal/general/config"
	"logistics/internal/general/logger"
)

// FromConfig returns the Redis store when an address is configured and the
// in-process store otherwise. The returned func releases the connection.
func FromConfig(ctx context.Context, cfg config.RedisConfig, logger *logger.Logger) (Store, func(), error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		logger.Info(ctx, "dedup_store_selected", "Using in-process dedup store", map[string]any{
			"ttl": cfg.DedupTTL.String(),
		})
		return NewMemory(cfg.DedupTTL), func() {}, nil
	}

	client, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "dedup_store_selected", "Using Redis dedup store", map[string]any{
		"addr": cfg.Addr,
		"ttl":  cfg.DedupTTL.String(),
	})
	return NewRedis(client, cfg.DedupTTL), func() { _ = client.Close() }, nil
}
