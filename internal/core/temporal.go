package core

import (
	"fmt"
	"math"
	"sort"
	"time"

	"crime_service/internal/domain/model"
)

const monthLayout = "2006-01"

// Concentration is the share of a period's crimes covered by its top-N types,
// as a percentage. A period with no crimes has a concentration of 0.
func Concentration(s model.CrimeSummary) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(TopSum(s)) / float64(s.Total) * 100
}

// TrendDelta is the percentage change in concentration from previous to current.
//
// The delta is 0 whenever it would otherwise be undefined: either period has
// no crimes, or the previous concentration is 0. It is never NaN or Inf.
func TrendDelta(current, previous model.CrimeSummary) float64 {
	if current.Total == 0 || previous.Total == 0 {
		return 0
	}

	cc := Concentration(current)
	cp := Concentration(previous)
	if cp == 0 {
		return 0
	}

	delta := (cc - cp) / cp * 100
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0
	}
	return delta
}

// YearMonths returns "YYYY-01" through "YYYY-12".
func YearMonths(year string) []string {
	months := make([]string, 0, 12)
	for m := 1; m <= 12; m++ {
		months = append(months, fmt.Sprintf("%s-%02d", year, m))
	}
	return months
}

// TrailingMonths returns n months ending at latest, oldest first.
func TrailingMonths(latest string, n int) ([]string, error) {
	end, err := time.Parse(monthLayout, latest)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", latest, err)
	}

	months := make([]string, n)
	for i := 0; i < n; i++ {
		months[n-1-i] = end.AddDate(0, -i, 0).Format(monthLayout)
	}
	return months, nil
}

// ZeroFilledTotals builds the totals map for the requested months, keeping a
// zero entry for months that have no summary.
func ZeroFilledTotals(months []string, summaries []model.CrimeSummary) model.MonthlyTotals {
	totals := make(model.MonthlyTotals, len(months))
	for i, month := range months {
		totals[month] = 0
		if i < len(summaries) {
			totals[month] = summaries[i].Total
		}
	}
	return totals
}

// LatestMonth returns the greatest "YYYY-MM" value, ignoring malformed ones.
func LatestMonth(months []string) (string, bool) {
	valid := make([]string, 0, len(months))
	for _, m := range months {
		if _, err := time.Parse(monthLayout, m); err == nil {
			valid = append(valid, m)
		}
	}
	if len(valid) == 0 {
		return "", false
	}
	sort.Strings(valid)
	return valid[len(valid)-1], true
}
