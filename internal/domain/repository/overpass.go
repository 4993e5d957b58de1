package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"crime_service/internal/domain/model"

	"github.com/serjvanilla/go-overpass"
)

// ErrBoundaryNotFound means OSM has no police boundary matching the area.
var ErrBoundaryNotFound = errors.New("police boundary not found")

type OverpassRepository struct {
	client  *overpass.Client
	timeout time.Duration
}

func NewOverpassRepository(endpoint string, timeout time.Duration) *OverpassRepository {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &OverpassRepository{
		client:  &client,
		timeout: timeout,
	}
}

// GetAreaBoundary finds the police force boundary relation whose name
// contains the area key and returns its bounding box.
func (r *OverpassRepository) GetAreaBoundary(ctx context.Context, area model.AreaKey) (*model.AreaBoundary, error) {
	result, err := r.executeQuery(ctx, boundaryQuery(area))
	if err != nil {
		return nil, fmt.Errorf("failed to execute boundary query: %w", err)
	}

	boundary, ok := pickBoundary(result, area)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBoundaryNotFound, area)
	}
	return boundary, nil
}

var unsafeQueryChars = strings.NewReplacer(`"`, "", `\`, "", "\n", " ")

func boundaryQuery(area model.AreaKey) string {
	name := regexp.QuoteMeta(unsafeQueryChars.Replace(area.String()))
	return fmt.Sprintf(`
		[out:json][timeout:25];
		relation["boundary"="police"]["name"~"%s",i];
		out tags bb;
	`, name)
}

func (r *OverpassRepository) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type response struct {
		result overpass.Result
		err    error
	}
	done := make(chan response, 1)
	go func() {
		result, err := r.client.Query(query)
		done <- response{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("overpass query abandoned: %w", ctx.Err())
	case resp := <-done:
		if resp.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", resp.err)
		}
		return &resp.result, nil
	}
}

// pickBoundary prefers an exact (case-insensitive) name match, then the
// lowest relation id, so repeated lookups resolve the same relation.
func pickBoundary(result *overpass.Result, area model.AreaKey) (*model.AreaBoundary, bool) {
	if result == nil {
		return nil, false
	}

	ids := make([]int64, 0, len(result.Relations))
	for id, rel := range result.Relations {
		if rel == nil || rel.Bounds == nil {
			continue
		}
		if !area.Matches(rel.Tags["name"]) {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, false
	}

	sort.Slice(ids, func(i, j int) bool {
		ei := strings.EqualFold(result.Relations[ids[i]].Tags["name"], area.String())
		ej := strings.EqualFold(result.Relations[ids[j]].Tags["name"], area.String())
		if ei != ej {
			return ei
		}
		return ids[i] < ids[j]
	})

	rel := result.Relations[ids[0]]
	return &model.AreaBoundary{
		OSMID: rel.ID,
		Name:  rel.Tags["name"],
		Bounds: model.Bounds{
			MinLat: rel.Bounds.Min.Lat,
			MinLng: rel.Bounds.Min.Lon,
			MaxLat: rel.Bounds.Max.Lat,
			MaxLng: rel.Bounds.Max.Lon,
		},
	}, true
}
