package analytics

import (
	"context"
	"testing"
	"time"

	"eduetl/internal/warehouse"
)

func TestBucketStart(t *testing.T) {
	// 2024-05-15 is a Wednesday.
	ts := time.Date(2024, 5, 15, 13, 45, 0, 0, time.UTC)

	cases := []struct {
		period Period
		want   time.Time
	}{
		{PeriodDaily, day("2024-05-15")},
		{PeriodWeekly, day("2024-05-13")}, // Monday
		{PeriodMonthly, day("2024-05-01")},
		{PeriodYearly, day("2024-01-01")},
	}
	for _, c := range cases {
		if got := bucketStart(ts, c.period); !got.Equal(c.want) {
			t.Errorf("bucketStart(%s) = %v, want %v", c.period, got, c.want)
		}
	}

	// A Monday is its own week start.
	mon := day("2024-05-13")
	if got := bucketStart(mon, PeriodWeekly); !got.Equal(mon) {
		t.Errorf("bucketStart(monday) = %v, want %v", got, mon)
	}
}

func TestParsePeriod(t *testing.T) {
	if _, err := ParsePeriod("monthly"); err != nil {
		t.Errorf("monthly: %v", err)
	}
	if _, err := ParsePeriod("hourly"); err == nil {
		t.Error("hourly accepted, want error")
	}
}

// A monthly series over facts in January and April must contain February
// and March as explicit zero buckets, never a gap.
func TestTrendZeroFillsEmptyBuckets(t *testing.T) {
	repo := &stubRepo{perf: []warehouse.PerformanceFact{
		{StudentKey: "S1", CourseKey: "C1", Date: day("2024-01-10"), GradePoints: 3.0, IsPass: true},
		{StudentKey: "S1", CourseKey: "C1", Date: day("2024-04-20"), GradePoints: 4.0, IsPass: true},
	}}
	agg := New(repo)

	series, err := agg.Trend(context.Background(), TrendAvgGradePoints, PeriodMonthly, warehouse.Filter{})
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(series.Points) != 4 {
		t.Fatalf("points = %d, want 4 (jan..apr)", len(series.Points))
	}
	for i := 1; i < len(series.Points); i++ {
		prev, cur := series.Points[i-1].BucketStart, series.Points[i].BucketStart
		if !cur.Equal(nextBucket(prev, PeriodMonthly)) {
			t.Errorf("gap between %v and %v", prev, cur)
		}
	}
	if v := series.Points[0].Value; v != 3.0 {
		t.Errorf("jan value = %v, want 3.0", v)
	}
	if v := series.Points[1].Value; v != 0 {
		t.Errorf("feb value = %v, want 0", v)
	}
	if c := series.Points[2].Count; c != 0 {
		t.Errorf("mar count = %d, want 0", c)
	}
	if v := series.Points[3].Value; v != 4.0 {
		t.Errorf("apr value = %v, want 4.0", v)
	}
	if series.InsufficientData {
		t.Error("insufficient_data set with facts present")
	}
}

// An explicit filter range extends the series beyond the observed data.
func TestTrendHonorsRequestedRange(t *testing.T) {
	repo := &stubRepo{perf: []warehouse.PerformanceFact{
		{StudentKey: "S1", CourseKey: "C1", Date: day("2024-02-10"), GradePoints: 3.0, IsPass: true},
	}}
	agg := New(repo)

	f := warehouse.Filter{From: day("2024-01-01"), To: day("2024-03-31")}
	series, err := agg.Trend(context.Background(), TrendFactCount, PeriodMonthly, f)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(series.Points) != 3 {
		t.Fatalf("points = %d, want 3 (jan..mar)", len(series.Points))
	}
	if series.Points[0].Value != 0 || series.Points[2].Value != 0 {
		t.Errorf("edge buckets not zero: %+v", series.Points)
	}
	if series.Points[1].Value != 1 {
		t.Errorf("feb fact count = %v, want 1", series.Points[1].Value)
	}
}

func TestTrendEmptyWarehouseWithRange(t *testing.T) {
	agg := New(&stubRepo{})
	f := warehouse.Filter{From: day("2024-01-01"), To: day("2024-02-28")}
	series, err := agg.Trend(context.Background(), TrendPassRate, PeriodMonthly, f)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if !series.InsufficientData {
		t.Error("insufficient_data not set for empty warehouse")
	}
	if len(series.Points) != 2 {
		t.Fatalf("points = %d, want 2 zero buckets", len(series.Points))
	}
	for _, p := range series.Points {
		if p.Value != 0 || p.Count != 0 {
			t.Errorf("bucket %v not zero: %+v", p.BucketStart, p)
		}
	}
}

func TestTrendEnrollmentsMetric(t *testing.T) {
	repo := &stubRepo{enroll: []warehouse.EnrollmentFact{
		{StudentKey: "S1", CourseKey: "C1", Date: day("2024-01-05")},
		{StudentKey: "S2", CourseKey: "C1", Date: day("2024-01-25")},
	}}
	agg := New(repo)

	series, err := agg.Trend(context.Background(), TrendEnrollments, PeriodMonthly, warehouse.Filter{})
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(series.Points) != 1 {
		t.Fatalf("points = %d, want 1", len(series.Points))
	}
	if series.Points[0].Value != 2 {
		t.Errorf("enrollments = %v, want 2", series.Points[0].Value)
	}
}
