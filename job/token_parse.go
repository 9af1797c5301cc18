package job

import (
	"fmt"

	"webpconv/models"
	"webpconv/utils"
)

// ParseToken verifies a signed batch manifest and decodes it strictly.
func ParseToken(tokenString string, cfg utils.VerifyConfig) (*models.Manifest, error) {
	payload, err := utils.VerifyManifestToken(tokenString, cfg)
	if err != nil {
		return nil, fmt.Errorf("manifest token rejected: %w", err)
	}
	return ParseManifest(payload)
}
