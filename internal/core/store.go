package core

import (
	"context"

	"crime_service/internal/domain/model"
)

// RecordStore is the read-only source of crime records.
type RecordStore interface {
	// ListAreas returns distinct force names, sorted.
	ListAreas(ctx context.Context) ([]string, error)
	// ListMonths returns distinct months with records for the area, sorted.
	ListMonths(ctx context.Context, area model.AreaKey) ([]string, error)
	// FindRecords returns records matching the filter, in no guaranteed order.
	FindRecords(ctx context.Context, filter model.RecordFilter) ([]model.CrimeRecord, error)
}

// BoundsLocator resolves the map boundary of a policing area.
type BoundsLocator interface {
	GetAreaBoundary(ctx context.Context, area model.AreaKey) (*model.AreaBoundary, error)
}
