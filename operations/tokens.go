package operations

import (
	"context"
	"time"

	"github.com/goliatone/go-crmbridge/core"
)

// TokenRefresh is the data of a refresh_token envelope. The token itself is
// never returned.
type TokenRefresh struct {
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	ValiditySeconds int64     `json:"validity_seconds"`
}

// RefreshToken forces a token exchange under the same lock as the lazy
// path.
func (c *Catalog) RefreshToken(ctx context.Context) core.Envelope {
	return c.observe(ctx, OpRefreshToken, func() core.Envelope {
		if c.tokens == nil {
			return core.FailureFromError("", "", errCatalogNotConfigured)
		}
		result, err := c.tokens.Refresh(ctx)
		if err != nil {
			return core.FailureFromError("", "", err)
		}
		return core.Success(TokenRefresh{
			IssuedAt:        result.IssuedAt.UTC(),
			ExpiresAt:       result.ExpiresAt.UTC(),
			ValiditySeconds: int64(result.ValidityWindow / time.Second),
		}).WithMessage("Access token refreshed")
	})
}
