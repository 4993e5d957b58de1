package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"crime_service/internal/domain/model"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCrimeTable is where the police.uk import lands.
const DefaultCrimeTable = "big_data.crime_data"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var tracer = otel.Tracer("crime_service/repository")

const recordColumns = `crime_id, crime_type, month, reported_by, falls_within,
			lsoa_code, lsoa_name, latitude, longitude, location,
			last_outcome_category, context`

// crimeRow mirrors the table; every column is nullable text.
type crimeRow struct {
	CrimeID             sql.NullString `db:"crime_id"`
	CrimeType           sql.NullString `db:"crime_type"`
	Month               sql.NullString `db:"month"`
	ReportedBy          sql.NullString `db:"reported_by"`
	FallsWithin         sql.NullString `db:"falls_within"`
	LSOACode            sql.NullString `db:"lsoa_code"`
	LSOAName            sql.NullString `db:"lsoa_name"`
	Latitude            sql.NullString `db:"latitude"`
	Longitude           sql.NullString `db:"longitude"`
	Location            sql.NullString `db:"location"`
	LastOutcomeCategory sql.NullString `db:"last_outcome_category"`
	Context             sql.NullString `db:"context"`
}

func (r crimeRow) toModel() model.CrimeRecord {
	return model.CrimeRecord{
		CrimeID:             r.CrimeID.String,
		CrimeType:           r.CrimeType.String,
		Month:               r.Month.String,
		ReportedBy:          r.ReportedBy.String,
		FallsWithin:         r.FallsWithin.String,
		LSOACode:            r.LSOACode.String,
		LSOAName:            r.LSOAName.String,
		Latitude:            r.Latitude.String,
		Longitude:           r.Longitude.String,
		Location:            r.Location.String,
		LastOutcomeCategory: r.LastOutcomeCategory.String,
		Context:             r.Context.String,
	}
}

type PostgresRepository struct {
	db    *sqlx.DB
	table string
}

func NewPostgresRepository(ctx context.Context, connStr, table string) (*PostgresRepository, error) {
	if table == "" {
		table = DefaultCrimeTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid crime table name %q", table)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewPostgresRepositoryFromDB(db, table), nil
}

// NewPostgresRepositoryFromDB wraps an existing connection pool.
func NewPostgresRepositoryFromDB(db *sqlx.DB, table string) *PostgresRepository {
	return &PostgresRepository{db: db, table: table}
}

func (r *PostgresRepository) ListAreas(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.ListAreas")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT DISTINCT falls_within
		FROM %s
		WHERE falls_within IS NOT NULL
		ORDER BY falls_within`, r.table)

	var areas []string
	if err := r.db.SelectContext(ctx, &areas, query); err != nil {
		return nil, r.fail(span, "failed to list areas", err)
	}
	return areas, nil
}

func (r *PostgresRepository) ListMonths(ctx context.Context, area model.AreaKey) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.ListMonths")
	defer span.End()
	span.SetAttributes(attribute.String("crime.area", area.String()))

	query := r.db.Rebind(fmt.Sprintf(`
		SELECT DISTINCT month
		FROM %s
		WHERE lower(falls_within) LIKE ? ESCAPE '\'
		AND month IS NOT NULL
		ORDER BY month`, r.table))

	var months []string
	if err := r.db.SelectContext(ctx, &months, query, containsPattern(area.String())); err != nil {
		return nil, r.fail(span, "failed to list months", err)
	}
	return months, nil
}

func (r *PostgresRepository) FindRecords(ctx context.Context, filter model.RecordFilter) ([]model.CrimeRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.FindRecords")
	defer span.End()
	span.SetAttributes(
		attribute.String("crime.area", filter.Area.String()),
		attribute.String("crime.month", filter.Month),
		attribute.String("crime.type", filter.CrimeType),
	)

	query, args := buildRecordQuery(r.table, filter)

	var rows []crimeRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, r.fail(span, "failed to query crime records", err)
	}

	records := make([]model.CrimeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toModel())
	}
	span.SetAttributes(attribute.Int("crime.rows", len(records)))
	return records, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) fail(span trace.Span, msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		slog.Error(msg,
			"sqlstate", string(pqErr.Code),
			"condition", pqErr.Code.Name(),
			"table", r.table,
		)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return fmt.Errorf("%s: %w", msg, err)
}

// buildRecordQuery renders the record query with '?' placeholders.
func buildRecordQuery(table string, f model.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.ExcludeUnknownIDs {
		// NULL ids fall out here as well, matching the CSV import where blank ids become NULL.
		conds = append(conds, `lower(crime_id) NOT LIKE '%unknown%'`)
	}
	if f.Area != "" {
		conds = append(conds, `lower(falls_within) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(f.Area.String()))
	}
	if f.Month != "" {
		if f.MonthExact {
			conds = append(conds, `month = ?`)
			args = append(args, f.Month)
		} else {
			conds = append(conds, `month LIKE ? ESCAPE '\'`)
			args = append(args, containsPattern(f.Month))
		}
	}
	if f.CrimeType != "" {
		conds = append(conds, `crime_type LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(f.CrimeType))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if f.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(recordColumns)
	b.WriteString("\n\t\tFROM ")
	b.WriteString(table)
	if len(conds) > 0 {
		b.WriteString("\n\t\tWHERE ")
		b.WriteString(strings.Join(conds, "\n\t\tAND "))
	}
	b.WriteString("\n\t\tORDER BY month, falls_within, crime_id")

	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
