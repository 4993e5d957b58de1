package model

// Bounds is a lat/lng bounding box used to fit the map viewport.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// Center returns the midpoint of the box.
func (b Bounds) Center() LatLng {
	return LatLng{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// AreaBoundary is a police force boundary resolved from OpenStreetMap.
type AreaBoundary struct {
	OSMID  int64  `json:"osmId"`
	Name   string `json:"name"`
	Bounds Bounds `json:"bounds"`
}
