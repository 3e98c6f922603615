package analytics

import (
	"fmt"
	"sort"
	"time"

	"eduetl/internal/warehouse"
)

// Period is the bucket width for trend series.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// ParsePeriod validates a period string from a caller.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown period %q (want daily, weekly, monthly or yearly)", s)
}

// bucketStart truncates t to the start of its bucket. Weeks start Monday.
func bucketStart(t time.Time, p Period) time.Time {
	t = t.UTC()
	switch p {
	case PeriodDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeekly:
		back := (int(t.Weekday()) + 6) % 7
		d := t.AddDate(0, 0, -back)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // yearly
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

// nextBucket advances a bucket start by one period.
func nextBucket(t time.Time, p Period) time.Time {
	switch p {
	case PeriodDaily:
		return t.AddDate(0, 0, 1)
	case PeriodWeekly:
		return t.AddDate(0, 0, 7)
	case PeriodMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(1, 0, 0)
	}
}

// TrendMetric selects the value computed per trend bucket.
type TrendMetric string

const (
	TrendAvgGradePoints TrendMetric = "avg_grade_points"
	TrendPassRate       TrendMetric = "pass_rate"
	TrendCreditsEarned  TrendMetric = "credits_earned"
	TrendFactCount      TrendMetric = "fact_count"
	TrendAvgAttendance  TrendMetric = "avg_attendance"
	TrendEnrollments    TrendMetric = "enrollments"
)

// ParseTrendMetric validates a trend metric string from a caller.
func ParseTrendMetric(s string) (TrendMetric, error) {
	switch TrendMetric(s) {
	case TrendAvgGradePoints, TrendPassRate, TrendCreditsEarned,
		TrendFactCount, TrendAvgAttendance, TrendEnrollments:
		return TrendMetric(s), nil
	}
	return "", fmt.Errorf("unknown trend metric %q", s)
}

// TrendPoint is one bucket of a trend series.
type TrendPoint struct {
	BucketStart time.Time `json:"bucket_start"`
	Value       float64   `json:"value"`
	Count       int64     `json:"count"`
}

// TrendSeries is a contiguous, zero-filled series of buckets. Buckets with
// no facts are present with Value 0 and Count 0, never omitted.
type TrendSeries struct {
	Metric           TrendMetric  `json:"metric"`
	Period           Period       `json:"period"`
	Points           []TrendPoint `json:"points"`
	InsufficientData bool         `json:"insufficient_data"`
}

// bucketAgg accumulates one bucket's raw sums before the metric is derived.
type bucketAgg struct {
	facts       int64
	passing     int64
	gradeSum    float64
	creditsEarn float64
	attSum      float64
	attCount    int64
	enrollments int64
}

func (b *bucketAgg) addPerformance(f warehouse.PerformanceFact) {
	b.facts++
	b.gradeSum += f.GradePoints
	if f.IsPass {
		b.passing++
		b.creditsEarn += f.CreditsEarned
	}
	if f.AttendancePct != nil {
		b.attSum += *f.AttendancePct
		b.attCount++
	}
}

func (b *bucketAgg) value(m TrendMetric) (float64, int64) {
	switch m {
	case TrendAvgGradePoints:
		if b.facts == 0 {
			return 0, 0
		}
		return b.gradeSum / float64(b.facts), b.facts
	case TrendPassRate:
		if b.facts == 0 {
			return 0, 0
		}
		return float64(b.passing) / float64(b.facts), b.facts
	case TrendCreditsEarned:
		return b.creditsEarn, b.facts
	case TrendFactCount:
		return float64(b.facts), b.facts
	case TrendAvgAttendance:
		if b.attCount == 0 {
			return 0, 0
		}
		return b.attSum / float64(b.attCount), b.attCount
	default: // enrollments
		return float64(b.enrollments), b.enrollments
	}
}

// buildSeries zero-fills buckets from the earliest to the latest observed
// (or requested) bucket and derives the metric per bucket.
func buildSeries(metric TrendMetric, period Period, buckets map[time.Time]*bucketAgg, from, to time.Time) TrendSeries {
	series := TrendSeries{Metric: metric, Period: period}
	if len(buckets) == 0 && (from.IsZero() || to.IsZero()) {
		series.InsufficientData = true
		series.Points = []TrendPoint{}
		return series
	}

	first, last := rangeBounds(buckets, from, to, period)
	for cur := first; !cur.After(last); cur = nextBucket(cur, period) {
		p := TrendPoint{BucketStart: cur}
		if b := buckets[cur]; b != nil {
			p.Value, p.Count = b.value(metric)
		}
		series.Points = append(series.Points, p)
	}
	if len(buckets) == 0 {
		series.InsufficientData = true
	}
	return series
}

// rangeBounds picks the series extent: the caller's range when given,
// otherwise the observed data extent.
func rangeBounds(buckets map[time.Time]*bucketAgg, from, to time.Time, period Period) (time.Time, time.Time) {
	var first, last time.Time
	if !from.IsZero() {
		first = bucketStart(from, period)
	}
	if !to.IsZero() {
		last = bucketStart(to, period)
	}
	if first.IsZero() || last.IsZero() {
		keys := make([]time.Time, 0, len(buckets))
		for k := range buckets {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
		if first.IsZero() {
			first = keys[0]
		}
		if last.IsZero() {
			last = keys[len(keys)-1]
		}
	}
	if last.Before(first) {
		last = first
	}
	return first, last
}
