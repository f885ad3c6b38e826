package application

import (
	"context"
	"fmt"

	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/ports"
)

type AuthorizationCoordinator struct {
	entitlement ports.EntitlementChecker
	settings    ports.SettingsStore
}

func NewAuthorizationCoordinator(entitlement ports.EntitlementChecker, settings ports.SettingsStore) *AuthorizationCoordinator {
	return &AuthorizationCoordinator{entitlement: entitlement, settings: settings}
}

// CheckAuthorization resolves feature against the entitlement service and
// records the answer under the preview features setting. Only the premium
// preview feature is ever looked up; every other feature is unauthorised.
func (c *AuthorizationCoordinator) CheckAuthorization(ctx context.Context, feature domain.FeatureID) (bool, error) {
	authorised := false
	if feature == domain.FeaturePremiumPreview {
		ok, err := c.entitlement.CheckAuthorised(ctx)
		if err != nil {
			return false, fmt.Errorf("check entitlement for %q: %w", feature, err)
		}
		authorised = ok
	}

	if err := c.settings.StoreBoolean(ctx, domain.PreviewFeaturesSettingKey, authorised); err != nil {
		return authorised, fmt.Errorf("store %s: %w", domain.PreviewFeaturesSettingKey, err)
	}

	return authorised, nil
}
