package analyze

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/model"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

var testDBSeq atomic.Int64

// now is the frozen analysis time: a Monday at noon UTC.
var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer(t *testing.T, loc *time.Location) (*Analyzer, store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:analyze_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Facility{}, &model.Observation{},
		&model.CollectionRun{}, &model.CollectionOutcome{},
	))

	registry, err := store.NewRegistry([]config.FacilityConfig{
		{ID: "gym-a", DisplayName: "Gym A"},
	})
	require.NoError(t, err)
	s := store.NewGormStore(db, registry)

	cfg := &config.AnalysisConfig{
		MinSamples:       1,
		ConfidentSamples: 2,
		TopSlots:         5,
	}
	return New(s, cfg, loc, clockwork.NewFakeClockAt(now)), s
}

func appendPct(t *testing.T, s store.Store, at time.Time, pct float64, status model.FacilityStatus) {
	t.Helper()
	require.NoError(t, s.Append(context.Background(), model.Observation{
		FacilityID:       "gym-a",
		CollectedAt:      at,
		OccupancyPercent: &pct,
		Status:           status,
	}))
}

func TestRecommend_NoQualifyingData(t *testing.T) {
	a, _ := newTestAnalyzer(t, time.UTC)

	_, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRecommend_UnknownFacility(t *testing.T) {
	a, _ := newTestAnalyzer(t, time.UTC)

	_, err := a.Recommend(context.Background(), "no-such-gym", 7*24*time.Hour)
	assert.ErrorIs(t, err, store.ErrUnknownFacility)
}

func TestRecommend_SingleObservation(t *testing.T) {
	a, s := newTestAnalyzer(t, time.UTC)
	appendPct(t, s, now.Add(-2*time.Hour), 40, model.StatusOpen)

	rec, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.SampleCount)
	require.Len(t, rec.BestTimes, 1)
	assert.Equal(t, 1, rec.BestTimes[0].SampleCount)
	assert.True(t, rec.BestTimes[0].LowConfidence, "a single sample is below the confidence threshold")
	assert.InDelta(t, 40, rec.BestTimes[0].MeanPercent, 1e-9)
	assert.InDelta(t, 40, rec.OverallMeanPercent, 1e-9)
}

func TestRecommend_BestAndWorstHours(t *testing.T) {
	a, s := newTestAnalyzer(t, time.UTC)

	// Two distinct days: quiet 7am readings, packed 6pm readings.
	day1 := time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC) // Tuesday
	day2 := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC) // Wednesday
	appendPct(t, s, day1.Add(7*time.Hour), 10, model.StatusOpen)
	appendPct(t, s, day2.Add(7*time.Hour+10*time.Minute), 12, model.StatusOpen)
	appendPct(t, s, day1.Add(18*time.Hour), 80, model.StatusOpen)
	appendPct(t, s, day2.Add(18*time.Hour+5*time.Minute), 85, model.StatusOpen)

	rec, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 4, rec.SampleCount)
	assert.InDelta(t, 46.75, rec.OverallMeanPercent, 1e-9)

	require.NotEmpty(t, rec.BestTimes)
	best := rec.BestTimes[0]
	assert.Equal(t, 7, best.Hour)
	assert.InDelta(t, 10, best.MeanPercent, 1e-9)

	require.NotEmpty(t, rec.WorstTimes)
	worst := rec.WorstTimes[0]
	assert.Equal(t, 18, worst.Hour)
	assert.InDelta(t, 85, worst.MeanPercent, 1e-9)

	// Aggregated across days, hour 7 averages ~11% and hour 18 ~82.5%.
	assert.InDelta(t, 11, rec.HourlyPatterns[7], 1e-9)
	assert.InDelta(t, 82.5, rec.HourlyPatterns[18], 1e-9)
}

func TestRecommend_ClosedSamplesExcluded(t *testing.T) {
	a, s := newTestAnalyzer(t, time.UTC)

	// A closed facility with a low reading must not masquerade as a quiet hour.
	appendPct(t, s, now.Add(-3*time.Hour), 2, model.StatusClosed)
	appendPct(t, s, now.Add(-2*time.Hour), 55, model.StatusOpen)

	rec, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.SampleCount)
	assert.InDelta(t, 55, rec.OverallMeanPercent, 1e-9)
	for _, slot := range rec.BestTimes {
		assert.NotEqual(t, 2.0, slot.MeanPercent)
	}
}

func TestRecommend_NullPercentExcluded(t *testing.T) {
	a, s := newTestAnalyzer(t, time.UTC)

	require.NoError(t, s.Append(context.Background(), model.Observation{
		FacilityID:  "gym-a",
		CollectedAt: now.Add(-time.Hour),
		Status:      model.StatusOpen,
	}))

	_, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRecommend_WindowExcludesOldObservations(t *testing.T) {
	a, s := newTestAnalyzer(t, time.UTC)

	appendPct(t, s, now.Add(-8*24*time.Hour), 99, model.StatusOpen) // outside 7d window
	appendPct(t, s, now.Add(-time.Hour), 30, model.StatusOpen)

	rec, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.SampleCount)
	assert.InDelta(t, 30, rec.OverallMeanPercent, 1e-9)
}

func TestRecommend_TieBreaksPreferMoreSamplesThenEarlierHour(t *testing.T) {
	a, s := newTestAnalyzer(t, time.UTC)
	day := time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC) // Tuesday

	// Hour 9 and hour 14 both average 20%, but hour 14 has two samples.
	appendPct(t, s, day.Add(9*time.Hour), 20, model.StatusOpen)
	appendPct(t, s, day.Add(14*time.Hour), 18, model.StatusOpen)
	appendPct(t, s, day.Add(14*time.Hour+30*time.Minute), 22, model.StatusOpen)
	// Hours 6 and 11, one 20% sample each: equal mean and count, earlier wins.
	appendPct(t, s, day.Add(6*time.Hour), 20, model.StatusOpen)
	appendPct(t, s, day.Add(11*time.Hour), 20, model.StatusOpen)

	rec, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)

	require.Len(t, rec.BestTimes, 4)
	assert.Equal(t, 14, rec.BestTimes[0].Hour, "more samples wins the tie")
	assert.False(t, rec.BestTimes[0].LowConfidence)
	assert.Equal(t, 6, rec.BestTimes[1].Hour, "earlier hour wins among equals")
	assert.Equal(t, 9, rec.BestTimes[2].Hour)
	assert.Equal(t, 11, rec.BestTimes[3].Hour)
}

func TestRecommend_BucketsInFacilityLocalTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Indiana/Indianapolis")
	require.NoError(t, err)
	a, s := newTestAnalyzer(t, loc)

	// 12:00 UTC on March 2, 2026 is 07:00 EST in Indiana.
	appendPct(t, s, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC).Add(-24*time.Hour), 15, model.StatusOpen)

	rec, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, rec.BestTimes, 1)
	assert.Equal(t, 7, rec.BestTimes[0].Hour)
	assert.Equal(t, time.Sunday.String(), rec.BestTimes[0].Day)
}

func TestRecommend_IsIdempotent(t *testing.T) {
	a, s := newTestAnalyzer(t, time.UTC)
	day := time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC)
	for i, pct := range []float64{10, 35, 80, 22, 61} {
		appendPct(t, s, day.Add(time.Duration(i)*3*time.Hour), pct, model.StatusOpen)
	}

	first, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)
	second, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRecommend_DailyPatterns(t *testing.T) {
	a, s := newTestAnalyzer(t, time.UTC)
	tuesday := time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC)
	wednesday := tuesday.Add(24 * time.Hour)

	appendPct(t, s, tuesday.Add(8*time.Hour), 20, model.StatusOpen)
	appendPct(t, s, tuesday.Add(17*time.Hour), 60, model.StatusOpen)
	appendPct(t, s, wednesday.Add(8*time.Hour), 30, model.StatusOpen)

	rec, err := a.Recommend(context.Background(), "gym-a", 7*24*time.Hour)
	require.NoError(t, err)

	assert.InDelta(t, 40, rec.DailyPatterns["Tuesday"], 1e-9)
	assert.InDelta(t, 30, rec.DailyPatterns["Wednesday"], 1e-9)
}
