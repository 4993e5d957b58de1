package core

import (
	"iter"
	"math"
	"strconv"
	"strings"

	"crime_service/internal/domain/model"
)

// DefaultChunkSize is the number of points sent per incremental chunk.
const DefaultChunkSize = 100

// MaxChunkSize is the largest chunk a client may request.
const MaxChunkSize = 1000

// ParseCoordinates parses a record's text coordinates. ok is false when either
// value is missing, malformed or not finite.
func ParseCoordinates(r model.CrimeRecord) (model.LatLng, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(r.Latitude), 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return model.LatLng{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(r.Longitude), 64)
	if err != nil || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return model.LatLng{}, false
	}
	return model.LatLng{Lat: lat, Lng: lng}, true
}

func HasCoordinates(r model.CrimeRecord) bool {
	_, ok := ParseCoordinates(r)
	return ok
}

// PointKey is the marker identity of a record.
func PointKey(r model.CrimeRecord) string {
	return strings.Join([]string{
		r.CrimeID,
		r.CrimeType,
		r.Month,
		r.FallsWithin,
		r.Latitude,
		r.Longitude,
		r.Location,
		r.LSOACode,
		r.LSOAName,
		r.LastOutcomeCategory,
	}, "-")
}

// ExtractPoints yields one map point per distinct plottable record, in input
// order. Records without usable coordinates are skipped; later records with an
// already seen key are dropped. Each iteration starts from the beginning.
func ExtractPoints(records []model.CrimeRecord) iter.Seq[model.GeoPoint] {
	return func(yield func(model.GeoPoint) bool) {
		seen := make(map[string]struct{})
		for _, r := range records {
			loc, ok := ParseCoordinates(r)
			if !ok {
				continue
			}
			key := PointKey(r)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if !yield(model.GeoPoint{Key: key, Location: loc, LocationNear: r.Location}) {
				return
			}
		}
	}
}

// Chunk groups a point sequence into slices of at most size points.
func Chunk(points iter.Seq[model.GeoPoint], size int) iter.Seq[[]model.GeoPoint] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]model.GeoPoint) bool) {
		capacity := min(size, DefaultChunkSize)
		batch := make([]model.GeoPoint, 0, capacity)
		for p := range points {
			batch = append(batch, p)
			if len(batch) == size {
				if !yield(batch) {
					return
				}
				batch = make([]model.GeoPoint, 0, capacity)
			}
		}
		if len(batch) > 0 {
			yield(batch)
		}
	}
}

// PointBounds returns the box enclosing all points.
func PointBounds(points []model.GeoPoint) (model.Bounds, bool) {
	if len(points) == 0 {
		return model.Bounds{}, false
	}

	b := model.Bounds{
		MinLat: points[0].Location.Lat,
		MinLng: points[0].Location.Lng,
		MaxLat: points[0].Location.Lat,
		MaxLng: points[0].Location.Lng,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Location.Lat)
		b.MinLng = math.Min(b.MinLng, p.Location.Lng)
		b.MaxLat = math.Max(b.MaxLat, p.Location.Lat)
		b.MaxLng = math.Max(b.MaxLng, p.Location.Lng)
	}
	return b, true
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(a, b model.LatLng) float64 {
	const R = 6371 // km
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// SpanKm is the diagonal of the box, used to pick an initial map zoom.
func SpanKm(b model.Bounds) float64 {
	return Haversine(
		model.LatLng{Lat: b.MinLat, Lng: b.MinLng},
		model.LatLng{Lat: b.MaxLat, Lng: b.MaxLng},
	)
}
