package core

import (
	"sort"
	"strings"

	"crime_service/internal/domain/model"
)

// DefaultTopN is how many crime types the overview ranks.
const DefaultTopN = 5

// Aggregate counts records per crime type and ranks them.
//
// Records with a blank crime type are ignored. Types are ordered by count,
// descending; equal counts keep the order in which each type was first seen.
// Only the first topN types are returned (topN <= 0 returns all of them), but
// Total always covers every counted record.
func Aggregate(records []model.CrimeRecord, topN int) model.CrimeSummary {
	counts := make(map[string]int)
	order := make([]string, 0)

	for _, r := range records {
		crimeType := r.CrimeType
		if strings.TrimSpace(crimeType) == "" {
			continue
		}
		if _, exists := counts[crimeType]; !exists {
			order = append(order, crimeType)
		}
		counts[crimeType]++
	}

	ranked := make([]model.CrimeTypeCount, 0, len(order))
	total := 0
	for _, crimeType := range order {
		ranked = append(ranked, model.CrimeTypeCount{CrimeType: crimeType, Count: counts[crimeType]})
		total += counts[crimeType]
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	return model.CrimeSummary{
		TopCrimeTypes: ranked,
		Total:         total,
	}
}

// TopSum is the number of crimes covered by the ranked types.
func TopSum(s model.CrimeSummary) int {
	sum := 0
	for _, c := range s.TopCrimeTypes {
		sum += c.Count
	}
	return sum
}
