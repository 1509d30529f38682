package device

import (
	"fmt"

	"rental-thermostat-backend/internal/model"
)

// NewAdapter builds the vendor adapter for a registered thermostat.
func NewAdapter(t *model.Thermostat) (Adapter, error) {
	switch t.Brand {
	case model.BrandNest:
		// The SDM API addresses devices under an enterprise project path.
		path := fmt.Sprintf("enterprises/%s/devices/%s", t.APIKey, t.DeviceID)
		return newNestAdapter(path, t.APIToken), nil
	case model.BrandCielo:
		return newCieloAdapter(t.DeviceID, t.APIToken), nil
	case model.BrandPioneer:
		return newPioneerAdapter(t.DeviceID, t.APIKey, t.APIToken), nil
	default:
		return nil, fmt.Errorf("unsupported thermostat brand %q", t.Brand)
	}
}
