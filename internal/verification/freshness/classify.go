package freshness

import (
	"fmt"
	"time"

	id "corecompliance/pkg/domain"
)

// daysPerMonth is the fixed average-month divisor. It must stay exactly
// 30.44 so classifications reproduce historical results bit-for-bit.
const daysPerMonth = 30.44

// yearlyBoundaryMonths is the upper tier boundary. It is deliberately a
// constant rather than derived from the threshold: a rule with a threshold
// of 12 months or more degenerates straight from up_to_date to
// very_outdated with no outdated band in between. That tiering is the
// product's, not an accident of this implementation.
const yearlyBoundaryMonths = 12

// Classification is a freshness tier with its supporting numbers.
type Classification struct {
	Status    id.FileStatus
	AgeMonths float64
	Message   string
}

// Classify maps the most recent date in a document and the rule's required
// recency onto a freshness tier. Idempotent: identical inputs always yield
// the identical tier and message.
//
// Boundaries are strict on the lower bound: an age exactly equal to the
// threshold is already outdated, and an age of exactly 12 months is already
// very_outdated.
func Classify(mostRecent time.Time, thresholdMonths float64, today time.Time) Classification {
	days := daysBetween(mostRecent, today)
	ageMonths := float64(days) / daysPerMonth

	var (
		status  id.FileStatus
		summary string
	)
	switch {
	case ageMonths < thresholdMonths:
		status = id.FileStatusUpToDate
		summary = "Registros al día"
	case ageMonths < yearlyBoundaryMonths:
		status = id.FileStatusOutdated
		summary = "Registros desactualizados"
	default:
		status = id.FileStatusVeryOutdated
		summary = "Registros no están al día"
	}

	return Classification{
		Status:    status,
		AgeMonths: ageMonths,
		Message: fmt.Sprintf("%s (última fecha: %s, diferencia: %d meses)",
			summary, mostRecent.Format("2006-01-02"), int(ageMonths)),
	}
}

// daysBetween counts whole days between two instants treated as dates.
func daysBetween(from, to time.Time) int {
	fromDate := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDate := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDate.Sub(fromDate) / (24 * time.Hour))
}
