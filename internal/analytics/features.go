package analytics

import (
	"context"
	"sort"
	"time"

	"eduetl/internal/warehouse"
)

// FeatureVector is the per-student input surface for downstream success
// prediction. Scoring is out of scope; this package only produces the
// features. Slopes are per-month, from a least-squares fit over the
// student's monthly buckets.
type FeatureVector struct {
	StudentKey       string  `json:"student_key"`
	GPATrendSlope    float64 `json:"gpa_trend_slope"`
	AttendanceSlope  float64 `json:"attendance_trend_slope"`
	CreditVelocity   float64 `json:"credit_velocity"`
	MonthsObserved   int     `json:"months_observed"`
	InsufficientData bool    `json:"insufficient_data"`
}

// StudentFeatures computes the feature vector for one student. Fewer than
// two observed months cannot support a slope; the vector is returned
// zero-valued with insufficient_data set.
func (a *Aggregator) StudentFeatures(ctx context.Context, studentKey string, f warehouse.Filter) (*FeatureVector, error) {
	f.StudentKey = studentKey
	perf, err := a.repo.QueryPerformanceFacts(ctx, f)
	if err != nil {
		return nil, err
	}

	type month struct {
		start    time.Time
		gradeSum float64
		graded   int64
		attSum   float64
		attCount int64
		credits  float64
	}
	byMonth := make(map[time.Time]*month)
	for _, p := range perf {
		k := bucketStart(p.Date, PeriodMonthly)
		m := byMonth[k]
		if m == nil {
			m = &month{start: k}
			byMonth[k] = m
		}
		m.graded++
		m.gradeSum += p.GradePoints
		if p.AttendancePct != nil {
			m.attSum += *p.AttendancePct
			m.attCount++
		}
		if p.IsPass {
			m.credits += p.CreditsEarned
		}
	}

	fv := &FeatureVector{StudentKey: studentKey, MonthsObserved: len(byMonth)}
	if len(byMonth) < 2 {
		fv.InsufficientData = true
		return fv, nil
	}

	months := make([]*month, 0, len(byMonth))
	for _, m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].start.Before(months[j].start) })

	// x is the month index relative to the first observed month, so gaps
	// between observed months still count as elapsed time.
	first := months[0].start
	xs := make([]float64, len(months))
	gpas := make([]float64, len(months))
	// Attendance is fit only over months that actually carry attendance
	// observations; a month without any is a gap, not a zero reading.
	attXs := make([]float64, 0, len(months))
	atts := make([]float64, 0, len(months))
	var totalCredits float64
	for i, m := range months {
		xs[i] = monthsBetween(first, m.start)
		gpas[i] = m.gradeSum / float64(m.graded)
		if m.attCount > 0 {
			attXs = append(attXs, xs[i])
			atts = append(atts, m.attSum/float64(m.attCount))
		}
		totalCredits += m.credits
	}

	fv.GPATrendSlope = leastSquaresSlope(xs, gpas)
	fv.AttendanceSlope = leastSquaresSlope(attXs, atts)

	span := monthsBetween(first, months[len(months)-1].start) + 1
	fv.CreditVelocity = totalCredits / span
	return fv, nil
}

// monthsBetween counts whole calendar months from a to b (both month
// starts, b >= a).
func monthsBetween(a, b time.Time) float64 {
	return float64((b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()))
}

// leastSquaresSlope fits y = a + b*x and returns b. A degenerate x spread
// returns 0.
func leastSquaresSlope(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}
