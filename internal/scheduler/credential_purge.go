package scheduler

import (
	"context"
	"time"

	"processhub_backend/internal/auth"
	"processhub_backend/platform/logger"
)

const defaultCredentialPurgeInterval = time.Hour

// CredentialPurge periodically deletes expired magic-link and refresh
// credentials.
type CredentialPurge struct {
	purger   auth.Purger
	log      *logger.Logger
	interval time.Duration
}

func NewCredentialPurge(purger auth.Purger, log *logger.Logger, interval time.Duration) *CredentialPurge {
	if interval <= 0 {
		interval = defaultCredentialPurgeInterval
	}
	return &CredentialPurge{purger: purger, log: log, interval: interval}
}

func (c *CredentialPurge) Run(ctx context.Context) {
	if c == nil || c.purger == nil {
		return
	}

	c.purge(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.purge(ctx)
		}
	}
}

func (c *CredentialPurge) purge(ctx context.Context) {
	if err := c.purgeOnce(ctx); err != nil {
		c.log.Warn("credential purge failed", "error", err)
	}
}

func (c *CredentialPurge) purgeOnce(ctx context.Context) error {
	result, err := c.purger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if result.MagicLinks > 0 || result.RefreshTokens > 0 {
		c.log.Info("credential purge deleted expired records",
			"magicLinks", result.MagicLinks,
			"refreshTokens", result.RefreshTokens,
		)
	}
	return nil
}
