package repository

import (
	"strings"
	"testing"

	"crime_service/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRecordQuery_AllFilters(t *testing.T) {
	query, args := buildRecordQuery(DefaultCrimeTable, model.RecordFilter{
		Area:              "greater manchester",
		Month:             "2024-12",
		MonthExact:        true,
		CrimeType:         "Burglary",
		ExcludeUnknownIDs: true,
		Distinct:          true,
	})

	assert.True(t, strings.HasPrefix(query, "SELECT DISTINCT crime_id"))
	assert.Contains(t, query, "FROM big_data.crime_data")
	assert.Contains(t, query, `lower(crime_id) NOT LIKE '%unknown%'`)
	assert.Contains(t, query, `lower(falls_within) LIKE ? ESCAPE '\'`)
	assert.Contains(t, query, "month = ?")
	assert.Contains(t, query, `crime_type LIKE ? ESCAPE '\'`)
	assert.True(t, strings.HasSuffix(query, "ORDER BY month, falls_within, crime_id"))
	assert.Equal(t, 3, strings.Count(query, "?"))

	assert.Equal(t, []any{"%greater manchester%", "2024-12", "%Burglary%"}, args)
}

func TestBuildRecordQuery_PartialMonth(t *testing.T) {
	query, args := buildRecordQuery("crimes", model.RecordFilter{
		Area:  "merseyside",
		Month: "2024",
	})

	assert.True(t, strings.HasPrefix(query, "SELECT crime_id"))
	assert.Contains(t, query, `month LIKE ? ESCAPE '\'`)
	assert.NotContains(t, query, "unknown")
	assert.NotContains(t, query, "crime_type LIKE")
	assert.Equal(t, []any{"%merseyside%", "%2024%"}, args)
}

func TestBuildRecordQuery_NoFilters(t *testing.T) {
	query, args := buildRecordQuery("crimes", model.RecordFilter{})

	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}

func TestContainsPattern_EscapesLikeMetacharacters(t *testing.T) {
	assert.Equal(t, `%100\% sure%`, containsPattern("100% sure"))
	assert.Equal(t, `%a\_b%`, containsPattern("a_b"))
	assert.Equal(t, `%c:\\path%`, containsPattern(`c:\path`))
}

func TestTableNamePattern(t *testing.T) {
	for _, table := range []string{"crimes; DROP TABLE x", "a.b.c", "1crimes", "crime data"} {
		assert.False(t, tableName.MatchString(table), table)
	}
	for _, table := range []string{"crimes", DefaultCrimeTable, "_stage.crime_2024"} {
		require.True(t, tableName.MatchString(table), table)
	}
}
