package domain

type FeatureID string

const (
	FeaturePremiumPreview FeatureID = "premium_preview"

	PreviewFeaturesSettingKey = "preview_features_enabled"
)
