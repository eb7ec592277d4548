package gold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ems-pipeline/internal/model"
)

func TestDateKey(t *testing.T) {
	assert.Equal(t, 20240315, DateKey(time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)))
	assert.Equal(t, 20240101, DateKey(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 19991231, DateKey(time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC)))
}

func TestDateRowAttributes(t *testing.T) {
	// 2024-03-15 is a Friday.
	row := dateRowFor(time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC))

	assert.Equal(t, 20240315, row.DateKey)
	assert.Equal(t, 2024, row.Year)
	assert.Equal(t, 1, row.Quarter)
	assert.Equal(t, 3, row.Month)
	assert.Equal(t, 15, row.Day)
	assert.Equal(t, 6, row.DayOfWeek)
	assert.Equal(t, "Friday", row.DayName)
	assert.Equal(t, "March", row.MonthName)
	assert.False(t, row.IsWeekend)

	// 2024-03-16 is a Saturday, 2024-03-17 a Sunday.
	sat := dateRowFor(time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 7, sat.DayOfWeek)
	assert.True(t, sat.IsWeekend)

	sun := dateRowFor(time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, sun.DayOfWeek)
	assert.True(t, sun.IsWeekend)
}

func TestQuarters(t *testing.T) {
	for month, want := range map[time.Month]int{
		time.January: 1, time.March: 1, time.April: 2, time.June: 2,
		time.July: 3, time.September: 3, time.October: 4, time.December: 4,
	} {
		row := dateRowFor(time.Date(2024, month, 10, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, want, row.Quarter, "month %s", month)
	}
}

func TestDeriveDates(t *testing.T) {
	incident := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	arrived := time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC)
	sameDay := time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)

	records := []model.CleanRecord{
		{IncidentDttm: &incident, UnitArrivedOnSceneDttm: &sameDay},
		{IncidentDttm: &arrived},
		{}, // all-null timestamps contribute nothing
	}

	rows := DeriveDates(records)
	require.Len(t, rows, 2)
	assert.Equal(t, 20240315, rows[0].DateKey)
	assert.Equal(t, 20240316, rows[1].DateKey)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rows[0].FullDate)
}
