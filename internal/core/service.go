package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"crime_service/internal/domain/model"
	"crime_service/internal/infrastructure/cache"

	"golang.org/x/sync/errgroup"
)

// AllCrimeTypes disables the crime type filter of GeoPoints.
const AllCrimeTypes = "all"

type Options struct {
	// TopN is the number of crime types ranked by Overview. Default 5.
	TopN int
	// LatestMonth pins the last month shown by Overview ("2024-12"). When
	// empty the latest month stored for the area is used.
	LatestMonth string
	// EvictOnAreaSwitch drops the cached results of the previously served
	// area whenever a request names a different one.
	EvictOnAreaSwitch bool
	// Bounds resolves area boundaries. AreaBounds is unavailable when nil.
	Bounds BoundsLocator
	Now    func() time.Time
}

// CrimeService answers dashboard queries over a RecordStore, memoizing every
// result in a ResultCache.
type CrimeService struct {
	store         RecordStore
	results       *cache.ResultCache
	bounds        BoundsLocator
	topN          int
	latestMonth   string
	evictOnSwitch bool
	now           func() time.Time

	lastArea atomic.Pointer[string]
}

func NewCrimeService(store RecordStore, results *cache.ResultCache, opts Options) *CrimeService {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if results == nil {
		results = cache.New()
	}
	return &CrimeService{
		store:         store,
		results:       results,
		bounds:        opts.Bounds,
		topN:          opts.TopN,
		latestMonth:   opts.LatestMonth,
		evictOnSwitch: opts.EvictOnAreaSwitch,
		now:           opts.Now,
	}
}

// ListAreas returns every distinct force name in the store.
func (s *CrimeService) ListAreas(ctx context.Context) ([]string, error) {
	key := cache.Key(cache.GlobalScope, "areas")
	return cache.GetOrCompute(s.results, key, func() ([]string, error) {
		areas, err := s.store.ListAreas(ctx)
		if err != nil {
			return nil, upstream("list areas", err)
		}
		if areas == nil {
			areas = []string{}
		}
		return areas, nil
	})
}

// AreaMonths returns the months that have data for the area.
func (s *CrimeService) AreaMonths(ctx context.Context, rawArea string) ([]string, error) {
	area, err := s.prepareArea(areaRequest{Area: strings.TrimSpace(rawArea)}, rawArea)
	if err != nil {
		return nil, err
	}

	key := cache.Key(area.String(), "months")
	return cache.GetOrCompute(s.results, key, func() ([]string, error) {
		months, err := s.store.ListMonths(ctx, area)
		if err != nil {
			return nil, upstream("list months", err)
		}
		if months == nil {
			months = []string{}
		}
		return months, nil
	})
}

// Overview summarizes the twelve months ending at the reference month: the
// top crime types of the last month, the monthly totals, and the change in
// top-N concentration from the month before.
func (s *CrimeService) Overview(ctx context.Context, rawArea string) (*model.AreaOverview, error) {
	area, err := s.prepareArea(areaRequest{Area: strings.TrimSpace(rawArea)}, rawArea)
	if err != nil {
		return nil, err
	}

	key := cache.Key(area.String(), "overview")
	return cache.GetOrCompute(s.results, key, func() (*model.AreaOverview, error) {
		latest, err := s.referenceMonth(ctx, area)
		if err != nil {
			return nil, err
		}
		months, err := TrailingMonths(latest, 12)
		if err != nil {
			return nil, err
		}

		summaries, err := s.summariesByMonth(ctx, area, months)
		if err != nil {
			return nil, err
		}

		current := summaries[len(summaries)-1]
		previous := summaries[len(summaries)-2]

		slog.Debug("computed area overview",
			"area", area.String(),
			"latest_month", latest,
			"latest_total", current.Total,
		)

		return &model.AreaOverview{
			LastMonthTopCrimes:       current.TopCrimeTypes,
			LastYearTotalsByMonth:    ZeroFilledTotals(months, summaries),
			TopIncreaseFromPrevMonth: TrendDelta(current, previous),
		}, nil
	})
}

// MonthlyTotals counts crimes for each month of the year. All twelve months
// are present, zero when there is no data.
func (s *CrimeService) MonthlyTotals(ctx context.Context, rawArea, year string) (model.MonthlyTotals, error) {
	year = strings.TrimSpace(year)
	area, err := s.prepareArea(yearRequest{Area: strings.TrimSpace(rawArea), Year: year}, rawArea)
	if err != nil {
		return nil, err
	}

	key := cache.Key(area.String(), "monthly", year)
	return cache.GetOrCompute(s.results, key, func() (model.MonthlyTotals, error) {
		months := YearMonths(year)
		summaries, err := s.summariesByMonth(ctx, area, months)
		if err != nil {
			return nil, err
		}
		return ZeroFilledTotals(months, summaries), nil
	})
}

// Breakdown ranks every crime type recorded in one month. Only records with a
// known crime id and plottable coordinates are counted.
func (s *CrimeService) Breakdown(ctx context.Context, rawArea, month string) (*model.CrimeSummary, error) {
	month = strings.TrimSpace(month)
	area, err := s.prepareArea(monthRequest{Area: strings.TrimSpace(rawArea), Month: month}, rawArea)
	if err != nil {
		return nil, err
	}

	key := cache.Key(area.String(), "breakdown", month)
	return cache.GetOrCompute(s.results, key, func() (*model.CrimeSummary, error) {
		records, err := s.store.FindRecords(ctx, model.RecordFilter{
			Area:              area,
			Month:             month,
			MonthExact:        true,
			ExcludeUnknownIDs: true,
			Distinct:          true,
		})
		if err != nil {
			return nil, upstream("query crime breakdown", err)
		}

		plottable := make([]model.CrimeRecord, 0, len(records))
		for _, r := range records {
			if HasCoordinates(r) {
				plottable = append(plottable, r)
			}
		}
		summary := Aggregate(plottable, 0)
		return &summary, nil
	})
}

// GeoPoints returns the map points for an area, month (or year) and crime
// type. crimeType "all" matches every type.
func (s *CrimeService) GeoPoints(ctx context.Context, rawArea, month, crimeType string) ([]model.GeoPoint, error) {
	month = strings.TrimSpace(month)
	crimeType = strings.TrimSpace(crimeType)
	area, err := s.prepareArea(pointsRequest{
		Area:      strings.TrimSpace(rawArea),
		Month:     month,
		CrimeType: crimeType,
	}, rawArea)
	if err != nil {
		return nil, err
	}

	key := cache.Key(area.String(), "points", month, crimeType)
	return cache.GetOrCompute(s.results, key, func() ([]model.GeoPoint, error) {
		filter := model.RecordFilter{
			Area:              area,
			Month:             month,
			ExcludeUnknownIDs: true,
			Distinct:          true,
		}
		if !strings.EqualFold(crimeType, AllCrimeTypes) {
			filter.CrimeType = crimeType
		}

		records, err := s.store.FindRecords(ctx, filter)
		if err != nil {
			return nil, upstream("query crime locations", err)
		}

		points := slices.Collect(ExtractPoints(records))
		if points == nil {
			points = []model.GeoPoint{}
		}
		return points, nil
	})
}

// StreamGeoPoints delivers the points of GeoPoints in chunks of size, in
// order. It stops at the first error returned by send.
func (s *CrimeService) StreamGeoPoints(ctx context.Context, rawArea, month, crimeType string, size int, send func([]model.GeoPoint) error) error {
	points, err := s.GeoPoints(ctx, rawArea, month, crimeType)
	if err != nil {
		return err
	}

	for chunk := range Chunk(slices.Values(points), size) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := send(chunk); err != nil {
			return err
		}
	}
	return nil
}

// AreaBounds resolves the map boundary of an area.
func (s *CrimeService) AreaBounds(ctx context.Context, rawArea string) (*model.AreaBoundary, error) {
	area, err := s.prepareArea(areaRequest{Area: strings.TrimSpace(rawArea)}, rawArea)
	if err != nil {
		return nil, err
	}
	if s.bounds == nil {
		return nil, ErrBoundsUnavailable
	}

	key := cache.Key(area.String(), "bounds")
	return cache.GetOrCompute(s.results, key, func() (*model.AreaBoundary, error) {
		boundary, err := s.bounds.GetAreaBoundary(ctx, area)
		if err != nil {
			return nil, upstream("lookup area boundary", err)
		}
		return boundary, nil
	})
}

// prepareArea validates req, normalizes the area and records it as the area
// currently being served.
func (s *CrimeService) prepareArea(req any, rawArea string) (model.AreaKey, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	area, err := NormalizeArea(rawArea)
	if err != nil {
		return "", err
	}
	s.switchArea(area)
	return area, nil
}

func (s *CrimeService) switchArea(area model.AreaKey) {
	if !s.evictOnSwitch {
		return
	}
	current := area.String()
	prev := s.lastArea.Swap(&current)
	if prev == nil || *prev == current {
		return
	}
	removed := s.results.Invalidate(cache.AreaPrefix(*prev))
	slog.Debug("evicted cached results of previous area",
		"previous_area", *prev,
		"area", current,
		"entries", removed,
	)
}

// referenceMonth is the last month covered by Overview.
func (s *CrimeService) referenceMonth(ctx context.Context, area model.AreaKey) (string, error) {
	if s.latestMonth != "" {
		return s.latestMonth, nil
	}
	months, err := s.store.ListMonths(ctx, area)
	if err != nil {
		return "", upstream("list months", err)
	}
	if latest, ok := LatestMonth(months); ok {
		return latest, nil
	}
	return s.now().UTC().Format(monthLayout), nil
}

// summariesByMonth aggregates each month concurrently. Results are indexed
// like months regardless of which query finishes first.
func (s *CrimeService) summariesByMonth(ctx context.Context, area model.AreaKey, months []string) ([]model.CrimeSummary, error) {
	summaries := make([]model.CrimeSummary, len(months))

	g, gctx := errgroup.WithContext(ctx)
	for i, month := range months {
		g.Go(func() error {
			records, err := s.store.FindRecords(gctx, model.RecordFilter{
				Area:  area,
				Month: month,
			})
			if err != nil {
				return upstream(fmt.Sprintf("query crimes for %s", month), err)
			}
			summaries[i] = Aggregate(records, s.topN)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}
