package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"crime_service/internal/domain/model"
	"crime_service/internal/domain/repository"
	"crime_service/internal/infrastructure/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	manchester = "Greater Manchester Police"
	merseyside = "Merseyside Police"
)

// countingStore wraps a MemoryRepository, counting calls and optionally
// failing FindRecords for one month (or every month when failMonth is empty).
type countingStore struct {
	*repository.MemoryRepository
	finds      atomic.Int32
	listMonths atomic.Int32
	listAreas  atomic.Int32
	failMonth  string
	err        error
}

func (s *countingStore) FindRecords(ctx context.Context, f model.RecordFilter) ([]model.CrimeRecord, error) {
	s.finds.Add(1)
	if s.err != nil && (s.failMonth == "" || s.failMonth == f.Month) {
		return nil, s.err
	}
	return s.MemoryRepository.FindRecords(ctx, f)
}

func (s *countingStore) ListAreas(ctx context.Context) ([]string, error) {
	s.listAreas.Add(1)
	return s.MemoryRepository.ListAreas(ctx)
}

func (s *countingStore) ListMonths(ctx context.Context, area model.AreaKey) ([]string, error) {
	s.listMonths.Add(1)
	return s.MemoryRepository.ListMonths(ctx, area)
}

type stubLocator struct {
	boundary *model.AreaBoundary
	err      error
	calls    atomic.Int32
}

func (l *stubLocator) GetAreaBoundary(_ context.Context, _ model.AreaKey) (*model.AreaBoundary, error) {
	l.calls.Add(1)
	return l.boundary, l.err
}

func crime(id, crimeType, month, area, lat, lng string) model.CrimeRecord {
	return model.CrimeRecord{
		CrimeID:     id,
		CrimeType:   crimeType,
		Month:       month,
		FallsWithin: area,
		Latitude:    lat,
		Longitude:   lng,
		Location:    "On or near " + id,
	}
}

// fixture: Dec 2024 has 3 violence + 1 burglary, Nov 2024 has 2 + 2,
// Jun 2024 has one shoplifting; Merseyside has a single record.
func fixture() []model.CrimeRecord {
	return []model.CrimeRecord{
		crime("d1", "Violence and sexual offences", "2024-12", manchester, "53.48", "-2.24"),
		crime("d2", "Violence and sexual offences", "2024-12", manchester, "53.49", "-2.25"),
		crime("d3", "Violence and sexual offences", "2024-12", manchester, "53.50", "-2.26"),
		crime("d4", "Burglary", "2024-12", manchester, "", ""),
		crime("n1", "Violence and sexual offences", "2024-11", manchester, "53.40", "-2.20"),
		crime("n2", "Burglary", "2024-11", manchester, "53.41", "-2.21"),
		crime("n3", "Violence and sexual offences", "2024-11", manchester, "53.42", "-2.22"),
		crime("n4", "Burglary", "2024-11", manchester, "53.43", "-2.23"),
		crime("Unknown-1", "Burglary", "2024-11", manchester, "53.44", "-2.24"),
		crime("j1", "Shoplifting", "2024-06", manchester, "53.45", "-2.25"),
		crime("m1", "Drugs", "2024-12", merseyside, "53.40", "-2.99"),
	}
}

func newTestService(t *testing.T, opts Options) (*CrimeService, *countingStore, *cache.ResultCache) {
	t.Helper()
	store := &countingStore{MemoryRepository: repository.NewMemoryRepository(fixture())}
	results := cache.New()
	return NewCrimeService(store, results, opts), store, results
}

func TestCrimeService_Overview(t *testing.T) {
	svc, _, _ := newTestService(t, Options{TopN: 1, LatestMonth: "2024-12"})

	overview, err := svc.Overview(context.Background(), "greater-manchester")
	require.NoError(t, err)

	assert.Equal(t, []model.CrimeTypeCount{{CrimeType: "Violence and sexual offences", Count: 3}}, overview.LastMonthTopCrimes)

	require.Len(t, overview.LastYearTotalsByMonth, 12)
	assert.Equal(t, 4, overview.LastYearTotalsByMonth["2024-12"])
	assert.Equal(t, 5, overview.LastYearTotalsByMonth["2024-11"])
	assert.Equal(t, 1, overview.LastYearTotalsByMonth["2024-06"])
	assert.Equal(t, 0, overview.LastYearTotalsByMonth["2024-01"])
	assert.NotContains(t, overview.LastYearTotalsByMonth, "2023-12")

	// Dec: 3/4 = 75%, Nov: 3/5 = 60% (Burglary ranks first: 3 vs 2)
	assert.InDelta(t, 25.0, overview.TopIncreaseFromPrevMonth, 1e-9)
}

func TestCrimeService_OverviewUsesLatestStoredMonth(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})

	overview, err := svc.Overview(context.Background(), "merseyside")
	require.NoError(t, err)

	assert.Equal(t, int32(1), store.listMonths.Load())
	assert.Contains(t, overview.LastYearTotalsByMonth, "2024-12")
	assert.Contains(t, overview.LastYearTotalsByMonth, "2024-01")
	assert.Equal(t, 1, overview.LastYearTotalsByMonth["2024-12"])
	// November is empty, so the trend collapses to zero.
	assert.Equal(t, 0.0, overview.TopIncreaseFromPrevMonth)
}

func TestCrimeService_OverviewFallsBackToCurrentMonth(t *testing.T) {
	now := func() time.Time { return time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC) }
	svc, _, _ := newTestService(t, Options{Now: now})

	overview, err := svc.Overview(context.Background(), "nowhere")
	require.NoError(t, err)

	assert.Contains(t, overview.LastYearTotalsByMonth, "2025-03")
	assert.Contains(t, overview.LastYearTotalsByMonth, "2024-04")
	assert.Empty(t, overview.LastMonthTopCrimes)
	assert.Equal(t, 0.0, overview.TopIncreaseFromPrevMonth)
}

func TestCrimeService_OverviewFanOutFailure(t *testing.T) {
	svc, store, results := newTestService(t, Options{LatestMonth: "2024-12"})
	driverErr := errors.New("connection reset by peer")
	store.failMonth = "2024-06"
	store.err = driverErr

	_, err := svc.Overview(context.Background(), "greater-manchester")
	require.Error(t, err)

	var uqe *UpstreamQueryError
	require.ErrorAs(t, err, &uqe)
	assert.ErrorIs(t, err, driverErr)
	assert.Equal(t, 0, results.Len(), "failures must not be cached")
}

func TestCrimeService_MonthlyTotals(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	totals, err := svc.MonthlyTotals(context.Background(), "greater-manchester", "2024")
	require.NoError(t, err)

	require.Len(t, totals, 12)
	for m := 1; m <= 12; m++ {
		assert.Contains(t, totals, fmt.Sprintf("2024-%02d", m))
	}
	assert.Equal(t, 4, totals["2024-12"])
	assert.Equal(t, 0, totals["2024-02"])
}

func TestCrimeService_MonthlyTotalsIsCached(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	ctx := context.Background()

	first, err := svc.MonthlyTotals(ctx, "greater-manchester", "2024")
	require.NoError(t, err)
	calls := store.finds.Load()
	assert.Equal(t, int32(12), calls)

	second, err := svc.MonthlyTotals(ctx, "greater-manchester", "2024")
	require.NoError(t, err)
	assert.Equal(t, calls, store.finds.Load())
	assert.Equal(t, first, second)
}

func TestCrimeService_Breakdown(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	summary, err := svc.Breakdown(context.Background(), "greater-manchester", "2024-11")
	require.NoError(t, err)

	// Unknown-1 is excluded.
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, []model.CrimeTypeCount{
		{CrimeType: "Violence and sexual offences", Count: 2},
		{CrimeType: "Burglary", Count: 2},
	}, summary.TopCrimeTypes)
}

func TestCrimeService_BreakdownSkipsRecordsWithoutCoordinates(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	summary, err := svc.Breakdown(context.Background(), "greater-manchester", "2024-12")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, []model.CrimeTypeCount{{CrimeType: "Violence and sexual offences", Count: 3}}, summary.TopCrimeTypes)
}

func TestCrimeService_ValidationRunsBeforeStore(t *testing.T) {
	svc, store, results := newTestService(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		status  int
		message string
	}{
		{"overview without area", func() error { _, err := svc.Overview(ctx, " "); return err }, http.StatusNotFound, "Area is required"},
		{"year missing", func() error { _, err := svc.MonthlyTotals(ctx, "greater-manchester", ""); return err }, http.StatusBadRequest, "Year is required"},
		{"year malformed", func() error { _, err := svc.MonthlyTotals(ctx, "greater-manchester", "20x4"); return err }, http.StatusBadRequest, "Invalid year"},
		{"month missing", func() error { _, err := svc.Breakdown(ctx, "greater-manchester", ""); return err }, http.StatusBadRequest, "Month is required"},
		{"month malformed", func() error { _, err := svc.Breakdown(ctx, "greater-manchester", "2024-13"); return err }, http.StatusBadRequest, "Invalid month"},
		{"crime type missing", func() error { _, err := svc.GeoPoints(ctx, "greater-manchester", "2024-12", ""); return err }, http.StatusBadRequest, "Crime type is required"},
		{"points without area", func() error { _, err := svc.GeoPoints(ctx, "", "2024-12", "all"); return err }, http.StatusNotFound, "Area is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve, ok := IsValidation(tt.call())
			require.True(t, ok)
			assert.Equal(t, tt.status, ve.Status)
			assert.Equal(t, tt.message, ve.Message)
		})
	}

	assert.Equal(t, int32(0), store.finds.Load())
	assert.Equal(t, int32(0), store.listMonths.Load())
	assert.Equal(t, 0, results.Len())
}

func TestCrimeService_GeoPoints(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	all, err := svc.GeoPoints(ctx, "greater-manchester", "2024", "all")
	require.NoError(t, err)
	// d4 has no coordinates and Unknown-1 is excluded.
	assert.Len(t, all, 8)

	burglaries, err := svc.GeoPoints(ctx, "greater-manchester", "2024-11", "Burglary")
	require.NoError(t, err)
	require.Len(t, burglaries, 2)
	assert.Equal(t, "On or near n2", burglaries[0].LocationNear)
	assert.Equal(t, "On or near n4", burglaries[1].LocationNear)

	none, err := svc.GeoPoints(ctx, "greater-manchester", "2023", "all")
	require.NoError(t, err)
	require.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCrimeService_StreamGeoPoints(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	var sizes []int
	var streamed []model.GeoPoint
	err := svc.StreamGeoPoints(context.Background(), "greater-manchester", "2024", "all", 3,
		func(chunk []model.GeoPoint) error {
			sizes = append(sizes, len(chunk))
			streamed = append(streamed, chunk...)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 2}, sizes)

	all, err := svc.GeoPoints(context.Background(), "greater-manchester", "2024", "all")
	require.NoError(t, err)
	assert.Equal(t, all, streamed)
}

func TestCrimeService_StreamGeoPointsStopsOnSendError(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	sendErr := errors.New("client went away")

	calls := 0
	err := svc.StreamGeoPoints(context.Background(), "greater-manchester", "2024", "all", 2,
		func([]model.GeoPoint) error {
			calls++
			return sendErr
		})

	assert.ErrorIs(t, err, sendErr)
	assert.Equal(t, 1, calls)
}

func TestCrimeService_EvictsPreviousAreaOnSwitch(t *testing.T) {
	svc, _, results := newTestService(t, Options{EvictOnAreaSwitch: true})
	ctx := context.Background()

	_, err := svc.Breakdown(ctx, "greater-manchester", "2024-12")
	require.NoError(t, err)
	_, err = svc.MonthlyTotals(ctx, "greater-manchester", "2024")
	require.NoError(t, err)
	assert.Equal(t, 2, results.Len())

	_, err = svc.Breakdown(ctx, "merseyside", "2024-12")
	require.NoError(t, err)

	assert.Equal(t, 1, results.Len())
	_, ok := results.Get(cache.Key("greater manchester", "breakdown", "2024-12"))
	assert.False(t, ok)
	_, ok = results.Get(cache.Key("merseyside", "breakdown", "2024-12"))
	assert.True(t, ok)
}

func TestCrimeService_KeepsEntriesWithoutEviction(t *testing.T) {
	svc, store, results := newTestService(t, Options{EvictOnAreaSwitch: false})
	ctx := context.Background()

	_, err := svc.Breakdown(ctx, "greater-manchester", "2024-12")
	require.NoError(t, err)
	_, err = svc.Breakdown(ctx, "merseyside", "2024-12")
	require.NoError(t, err)
	_, err = svc.Breakdown(ctx, "greater-manchester", "2024-12")
	require.NoError(t, err)

	assert.Equal(t, 2, results.Len())
	assert.Equal(t, int32(2), store.finds.Load())
}

func TestCrimeService_ListAreasAndMonths(t *testing.T) {
	svc, _, _ := newTestService(t, Options{EvictOnAreaSwitch: true})
	ctx := context.Background()

	areas, err := svc.ListAreas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{manchester, merseyside}, areas)

	months, err := svc.AreaMonths(ctx, "greater-manchester")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06", "2024-11", "2024-12"}, months)

	// Area listing is not tied to an area and survives a switch.
	_, err = svc.AreaMonths(ctx, "merseyside")
	require.NoError(t, err)
	_, ok := svc.results.Get(cache.Key(cache.GlobalScope, "areas"))
	assert.True(t, ok)
}

func TestCrimeService_SwitchFromWildcardAreaKeepsAreaListing(t *testing.T) {
	svc, store, _ := newTestService(t, Options{EvictOnAreaSwitch: true})
	ctx := context.Background()

	_, err := svc.ListAreas(ctx)
	require.NoError(t, err)
	_, err = svc.AreaMonths(ctx, "*")
	require.NoError(t, err)
	_, err = svc.AreaMonths(ctx, "merseyside")
	require.NoError(t, err)

	_, err = svc.ListAreas(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.listAreas.Load())
}

func TestCrimeService_AreaBounds(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newTestService(t, Options{})
	_, err := svc.AreaBounds(ctx, "greater-manchester")
	assert.ErrorIs(t, err, ErrBoundsUnavailable)

	locator := &stubLocator{boundary: &model.AreaBoundary{
		OSMID:  42,
		Name:   "Greater Manchester",
		Bounds: model.Bounds{MinLat: 53.3, MinLng: -2.7, MaxLat: 53.7, MaxLng: -1.9},
	}}
	svc, _, _ = newTestService(t, Options{Bounds: locator})

	for range 2 {
		boundary, err := svc.AreaBounds(ctx, "greater-manchester")
		require.NoError(t, err)
		assert.Equal(t, int64(42), boundary.OSMID)
	}
	assert.Equal(t, int32(1), locator.calls.Load())
}

func TestCrimeService_AreaBoundsWrapsLocatorError(t *testing.T) {
	lookupErr := errors.New("overpass unavailable")
	svc, _, _ := newTestService(t, Options{Bounds: &stubLocator{err: lookupErr}})

	_, err := svc.AreaBounds(context.Background(), "greater-manchester")

	var uqe *UpstreamQueryError
	require.ErrorAs(t, err, &uqe)
	assert.ErrorIs(t, err, lookupErr)
}
