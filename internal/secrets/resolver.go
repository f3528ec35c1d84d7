package secrets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/internal/metrics"
	"github.com/dropified/suredone-adapter/pkg/secrets"
)

// AdminCredentials holds the platform-level SureDone partner credentials used
// for account registration and token issuance.
type AdminCredentials struct {
	APIUser   string
	APIToken  string
	PartnerID string
}

// Resolver loads admin credentials from the secrets provider, caching the
// result so the secret is not re-fetched on every token refresh.
type Resolver struct {
	provider   secrets.Provider
	secretName string
	cache      *secrets.Cache[AdminCredentials]
	logger     *zap.Logger
}

func NewResolver(provider secrets.Provider, secretName string, ttl time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		provider:   provider,
		secretName: secretName,
		cache:      secrets.NewCache[AdminCredentials](ttl),
		logger:     logger,
	}
}

// Resolve returns the admin credentials. The secret is expected to carry
// api_user, api_token and partner_id keys.
func (r *Resolver) Resolve(ctx context.Context) (AdminCredentials, error) {
	if cached, ok := r.cache.Get(r.secretName); ok {
		metrics.OptionsCacheAccess.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.OptionsCacheAccess.WithLabelValues("miss").Inc()

	values, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		r.logger.Error("secrets.resolver.fetch_failed",
			zap.String("secret", r.secretName),
			zap.Error(err))
		return AdminCredentials{}, fmt.Errorf("resolve admin credentials: %w", err)
	}

	creds := AdminCredentials{
		APIUser:   values["api_user"],
		APIToken:  values["api_token"],
		PartnerID: values["partner_id"],
	}
	if creds.APIUser == "" || creds.APIToken == "" {
		return AdminCredentials{}, fmt.Errorf("secret %s missing api_user or api_token", r.secretName)
	}

	r.cache.Put(r.secretName, creds)
	return creds, nil
}

// Invalidate drops the cached secret, forcing a re-read on next use.
func (r *Resolver) Invalidate() {
	r.cache.Bust(r.secretName)
}
