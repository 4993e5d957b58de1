package model

import "strings"

// CrimeRecord is a single incident row as published by police.uk.
// Coordinates stay text-encoded: the source data has blanks and junk in them.
type CrimeRecord struct {
	CrimeID             string `json:"crimeId"`
	CrimeType           string `json:"crimeType"`
	Month               string `json:"month"`
	ReportedBy          string `json:"reportedBy,omitempty"`
	FallsWithin         string `json:"fallsWithinArea"`
	LSOACode            string `json:"lsoaCode"`
	LSOAName            string `json:"lsoaName"`
	Latitude            string `json:"latitude"`
	Longitude           string `json:"longitude"`
	Location            string `json:"location"`
	LastOutcomeCategory string `json:"lastOutcomeCategory"`
	Context             string `json:"context,omitempty"`
}

// AreaKey is a normalized area identifier ("greater manchester").
// It matches stored area names by case-insensitive substring containment, so
// one key may cover several distinct force names.
type AreaKey string

// Matches reports whether fallsWithin contains the key, ignoring case.
func (k AreaKey) Matches(fallsWithin string) bool {
	return strings.Contains(strings.ToLower(fallsWithin), string(k))
}

func (k AreaKey) String() string {
	return string(k)
}

type CrimeTypeCount struct {
	CrimeType string `json:"crimeType"`
	Count     int    `json:"count"`
}

// CrimeSummary is the result of aggregating one record set.
// Total counts every non-blank crime type, not only the ranked ones.
type CrimeSummary struct {
	TopCrimeTypes []CrimeTypeCount `json:"data"`
	Total         int              `json:"total"`
}

// MonthlyTotals maps "YYYY-MM" to the number of crimes in that month.
type MonthlyTotals map[string]int

type AreaOverview struct {
	LastMonthTopCrimes       []CrimeTypeCount `json:"lastMonthTopCrimes"`
	LastYearTotalsByMonth    MonthlyTotals    `json:"lastYearTotalsByMonth"`
	TopIncreaseFromPrevMonth float64          `json:"topIncreaseFromPrevMonth"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoPoint is a map marker. Key identifies the marker across duplicate rows.
type GeoPoint struct {
	Key          string `json:"key"`
	Location     LatLng `json:"location"`
	LocationNear string `json:"locationNear"`
}

// RecordFilter narrows a RecordStore query. Empty fields are not applied.
type RecordFilter struct {
	Area AreaKey
	// Month is matched exactly when MonthExact is set, as a substring otherwise.
	Month      string
	MonthExact bool
	// CrimeType is a substring match.
	CrimeType         string
	ExcludeUnknownIDs bool
	Distinct          bool
}
