package core

import (
	"strings"

	"crime_service/internal/domain/model"
)

// NormalizeArea turns a URL path segment ("greater-manchester") into the key
// used to match stored force names ("greater manchester").
func NormalizeArea(raw string) (model.AreaKey, error) {
	area := strings.TrimSpace(raw)
	if area == "" {
		return "", areaNotFound()
	}
	area = strings.ReplaceAll(area, "-", " ")
	return model.AreaKey(strings.ToLower(area)), nil
}
