// Package planner splits the interval between the watermark and today into
// calendar-month windows so each extraction stays bounded.
package planner

import (
	"time"

	"github.com/geo-ambiental/seia-sync/internal/models"
)

// Date truncates t to its civil date, expressed as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Plan returns the month-aligned ranges covering [first day of the watermark's
// month, today]. It is empty when the watermark is not before today.
func Plan(watermark, today time.Time) []models.DateRange {
	watermark = Date(watermark)
	today = Date(today)
	if !watermark.Before(today) {
		return nil
	}

	var ranges []models.DateRange
	current := time.Date(watermark.Year(), watermark.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !current.After(today) {
		nextMonth := current.AddDate(0, 1, 0)
		upper := nextMonth.AddDate(0, 0, -1)
		if upper.After(today) {
			upper = today
		}

		if !current.After(upper) {
			ranges = append(ranges, models.DateRange{From: current, To: upper})
		}

		current = nextMonth
	}

	return ranges
}
