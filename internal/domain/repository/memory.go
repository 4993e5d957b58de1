package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"crime_service/internal/domain/model"
)

// MemoryRepository serves crime records held in memory. It applies the same
// matching rules as PostgresRepository and never modifies its records.
type MemoryRepository struct {
	records []model.CrimeRecord
}

func NewMemoryRepository(records []model.CrimeRecord) *MemoryRepository {
	cp := make([]model.CrimeRecord, len(records))
	copy(cp, records)
	return &MemoryRepository{records: cp}
}

// LoadCSVFile reads a police.uk street-level crime CSV export.
func LoadCSVFile(path string) (*MemoryRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open crime CSV: %w", err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return NewMemoryRepository(records), nil
}

// csvColumns maps normalized header names to record setters. Both the
// police.uk headers ("Crime ID") and the table's column names ("crime_id")
// are accepted.
var csvColumns = map[string]func(*model.CrimeRecord, string){
	"crime_id":              func(r *model.CrimeRecord, v string) { r.CrimeID = v },
	"crime_type":            func(r *model.CrimeRecord, v string) { r.CrimeType = v },
	"month":                 func(r *model.CrimeRecord, v string) { r.Month = v },
	"reported_by":           func(r *model.CrimeRecord, v string) { r.ReportedBy = v },
	"falls_within":          func(r *model.CrimeRecord, v string) { r.FallsWithin = v },
	"lsoa_code":             func(r *model.CrimeRecord, v string) { r.LSOACode = v },
	"lsoa_name":             func(r *model.CrimeRecord, v string) { r.LSOAName = v },
	"latitude":              func(r *model.CrimeRecord, v string) { r.Latitude = v },
	"longitude":             func(r *model.CrimeRecord, v string) { r.Longitude = v },
	"location":              func(r *model.CrimeRecord, v string) { r.Location = v },
	"last_outcome_category": func(r *model.CrimeRecord, v string) { r.LastOutcomeCategory = v },
	"context":               func(r *model.CrimeRecord, v string) { r.Context = v },
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

// ReadCSV parses crime records from CSV with a header row. Unknown columns
// are ignored.
func ReadCSV(r io.Reader) ([]model.CrimeRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	setters := make([]func(*model.CrimeRecord, string), len(header))
	known := 0
	for i, h := range header {
		if set, ok := csvColumns[normalizeHeader(h)]; ok {
			setters[i] = set
			known++
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("no crime columns in header %v", header)
	}

	var records []model.CrimeRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(records)+2, err)
		}

		var rec model.CrimeRecord
		for i, v := range row {
			if i < len(setters) && setters[i] != nil {
				setters[i](&rec, v)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *MemoryRepository) ListAreas(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	areas := make([]string, 0)
	for _, rec := range r.records {
		if rec.FallsWithin == "" {
			continue
		}
		if _, ok := seen[rec.FallsWithin]; !ok {
			seen[rec.FallsWithin] = struct{}{}
			areas = append(areas, rec.FallsWithin)
		}
	}
	sort.Strings(areas)
	return areas, nil
}

func (r *MemoryRepository) ListMonths(ctx context.Context, area model.AreaKey) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	months := make([]string, 0)
	for _, rec := range r.records {
		if rec.Month == "" || !area.Matches(rec.FallsWithin) {
			continue
		}
		if _, ok := seen[rec.Month]; !ok {
			seen[rec.Month] = struct{}{}
			months = append(months, rec.Month)
		}
	}
	sort.Strings(months)
	return months, nil
}

func (r *MemoryRepository) FindRecords(ctx context.Context, f model.RecordFilter) ([]model.CrimeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var seen map[model.CrimeRecord]struct{}
	if f.Distinct {
		seen = make(map[model.CrimeRecord]struct{})
	}

	out := make([]model.CrimeRecord, 0)
	for _, rec := range r.records {
		if !matchesFilter(rec, f) {
			continue
		}
		if seen != nil {
			if _, dup := seen[rec]; dup {
				continue
			}
			seen[rec] = struct{}{}
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		if out[i].FallsWithin != out[j].FallsWithin {
			return out[i].FallsWithin < out[j].FallsWithin
		}
		return out[i].CrimeID < out[j].CrimeID
	})
	return out, nil
}

func matchesFilter(rec model.CrimeRecord, f model.RecordFilter) bool {
	if f.ExcludeUnknownIDs {
		// Blank ids are NULL in the database and never satisfy NOT LIKE.
		if rec.CrimeID == "" || strings.Contains(strings.ToLower(rec.CrimeID), "unknown") {
			return false
		}
	}
	if f.Area != "" && !f.Area.Matches(rec.FallsWithin) {
		return false
	}
	if f.Month != "" {
		if f.MonthExact && rec.Month != f.Month {
			return false
		}
		if !f.MonthExact && !strings.Contains(rec.Month, f.Month) {
			return false
		}
	}
	if f.CrimeType != "" && !strings.Contains(rec.CrimeType, f.CrimeType) {
		return false
	}
	return true
}
