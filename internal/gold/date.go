package gold

import (
	"sort"
	"time"

	"github.com/sells-group/ems-pipeline/internal/model"
)

// DateKey encodes a calendar date as yyyymmdd.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// dateRowFor derives the DimDate attributes for a calendar date.
// DayOfWeek is 1=Sunday through 7=Saturday.
func dateRowFor(t time.Time) model.DateRow {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	dow := int(day.Weekday()) + 1
	return model.DateRow{
		DateKey:   DateKey(day),
		FullDate:  day,
		Year:      day.Year(),
		Quarter:   (int(day.Month())-1)/3 + 1,
		Month:     int(day.Month()),
		Day:       day.Day(),
		DayOfWeek: dow,
		DayName:   day.Weekday().String(),
		MonthName: day.Month().String(),
		IsWeekend: dow == 1 || dow == 7,
	}
}

// timestamps returns the clean record's six date-bearing columns.
func timestamps(c *model.CleanRecord) []*time.Time {
	return []*time.Time{
		c.IncidentDttm,
		c.UnitNotifiedByDispatchDttm,
		c.UnitArrivedOnSceneDttm,
		c.UnitArrivedToPatientDttm,
		c.UnitLeftSceneDttm,
		c.PatientArrivedDestinationDttm,
	}
}

// DeriveDates collects the distinct calendar dates referenced by any
// date-bearing column of the clean rows, in date key order.
func DeriveDates(records []model.CleanRecord) []model.DateRow {
	seen := make(map[int]model.DateRow)
	for i := range records {
		for _, ts := range timestamps(&records[i]) {
			if ts == nil {
				continue
			}
			row := dateRowFor(*ts)
			if _, ok := seen[row.DateKey]; !ok {
				seen[row.DateKey] = row
			}
		}
	}

	rows := make([]model.DateRow, 0, len(seen))
	for _, row := range seen {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DateKey < rows[j].DateKey })
	return rows
}
