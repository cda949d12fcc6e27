// Package analyze mines the observation time series for the least and most
// crowded times to visit a facility. Pure read-side computation: no writes,
// no shared mutable state, safe for any number of concurrent callers.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/model"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

// ErrInsufficientData indicates too little history to recommend anything.
// An expected condition for newly tracked facilities, not a system fault.
var ErrInsufficientData = errors.New("insufficient data for recommendation")

// Slot is one (weekday, hour) bucket with its aggregate occupancy.
type Slot struct {
	Weekday     time.Weekday `json:"-"`
	Day         string       `json:"day"`
	Hour        int          `json:"hour"`
	MeanPercent float64      `json:"meanOccupancyPercent"`
	SampleCount int          `json:"sampleCount"`
	// LowConfidence marks buckets with fewer samples than the configured
	// confidence threshold. They are reported, not hidden: sparse data for a
	// newly tracked facility is still real signal.
	LowConfidence bool `json:"lowConfidence"`
}

// Recommendation summarizes when a facility is least and most crowded.
type Recommendation struct {
	FacilityID         string             `json:"facilityId"`
	LookbackDays       int                `json:"lookbackDays"`
	SampleCount        int                `json:"sampleCount"`
	OverallMeanPercent float64            `json:"overallMeanOccupancyPercent"`
	BestTimes          []Slot             `json:"bestTimes"`
	WorstTimes         []Slot             `json:"worstTimes"`
	DailyPatterns      map[string]float64 `json:"dailyPatterns"`
	HourlyPatterns     map[int]float64    `json:"hourlyPatterns"`
}

// Analyzer computes recommendations from stored observations.
type Analyzer struct {
	store store.Store
	cfg   *config.AnalysisConfig
	loc   *time.Location
	clock clockwork.Clock
}

// New creates an analyzer. loc is the facilities' local timezone; buckets are
// derived in it so "7am" means 7am at the facility.
func New(s store.Store, cfg *config.AnalysisConfig, loc *time.Location, clock clockwork.Clock) *Analyzer {
	return &Analyzer{store: s, cfg: cfg, loc: loc, clock: clock}
}

// Recommend analyzes the facility's observations over the lookback window
// ending now. It is a pure function of the stored data and the window.
func (a *Analyzer) Recommend(ctx context.Context, facilityID string, lookback time.Duration) (*Recommendation, error) {
	if _, ok := a.store.Registry().Lookup(facilityID); !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownFacility, facilityID)
	}

	now := a.clock.Now().UTC()
	observations, err := a.store.Query(ctx, facilityID, now.Add(-lookback), now)
	if err != nil {
		return nil, err
	}

	// Closed-facility samples do not represent crowding and would bias the
	// ranking toward false lows; null percentages carry no signal.
	var samples []model.Observation
	for _, obs := range observations {
		if obs.Status != model.StatusOpen || obs.OccupancyPercent == nil {
			continue
		}
		samples = append(samples, obs)
	}

	if len(samples) < a.cfg.MinSamples {
		return nil, fmt.Errorf("%w: facility %q has %d qualifying observations, need %d",
			ErrInsufficientData, facilityID, len(samples), a.cfg.MinSamples)
	}

	type bucketKey struct {
		day  time.Weekday
		hour int
	}
	type bucketAgg struct {
		sum   float64
		count int
	}
	buckets := make(map[bucketKey]*bucketAgg)
	var overallSum float64
	for _, obs := range samples {
		local := obs.CollectedAt.In(a.loc)
		key := bucketKey{day: local.Weekday(), hour: local.Hour()}
		agg, ok := buckets[key]
		if !ok {
			agg = &bucketAgg{}
			buckets[key] = agg
		}
		agg.sum += *obs.OccupancyPercent
		agg.count++
		overallSum += *obs.OccupancyPercent
	}

	slots := make([]Slot, 0, len(buckets))
	for key, agg := range buckets {
		slots = append(slots, Slot{
			Weekday:       key.day,
			Day:           key.day.String(),
			Hour:          key.hour,
			MeanPercent:   agg.sum / float64(agg.count),
			SampleCount:   agg.count,
			LowConfidence: agg.count < a.cfg.ConfidentSamples,
		})
	}

	best := rankSlots(slots, true)
	worst := rankSlots(slots, false)

	rec := &Recommendation{
		FacilityID:         facilityID,
		LookbackDays:       int(lookback.Hours() / 24),
		SampleCount:        len(samples),
		OverallMeanPercent: overallSum / float64(len(samples)),
		BestTimes:          topN(best, a.cfg.TopSlots),
		WorstTimes:         topN(worst, a.cfg.TopSlots),
		DailyPatterns:      dailyPatterns(slots),
		HourlyPatterns:     hourlyPatterns(slots),
	}
	return rec, nil
}

// rankSlots orders buckets by mean occupancy, ascending for best times and
// descending for worst. Ties prefer the bucket with more samples, then the
// earlier hour, then the earlier weekday, so output is deterministic.
func rankSlots(slots []Slot, ascending bool) []Slot {
	ranked := append([]Slot(nil), slots...)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.MeanPercent != b.MeanPercent {
			if ascending {
				return a.MeanPercent < b.MeanPercent
			}
			return a.MeanPercent > b.MeanPercent
		}
		if a.SampleCount != b.SampleCount {
			return a.SampleCount > b.SampleCount
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return a.Weekday < b.Weekday
	})
	return ranked
}

func topN(slots []Slot, n int) []Slot {
	if len(slots) > n {
		slots = slots[:n]
	}
	return slots
}

// dailyPatterns averages the bucket means per weekday.
func dailyPatterns(slots []Slot) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range slots {
		sums[s.Day] += s.MeanPercent
		counts[s.Day]++
	}
	out := make(map[string]float64, len(sums))
	for day, sum := range sums {
		out[day] = sum / float64(counts[day])
	}
	return out
}

// hourlyPatterns averages the bucket means per hour across weekdays.
func hourlyPatterns(slots []Slot) map[int]float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, s := range slots {
		sums[s.Hour] += s.MeanPercent
		counts[s.Hour]++
	}
	out := make(map[int]float64, len(sums))
	for hour, sum := range sums {
		out[hour] = sum / float64(counts[hour])
	}
	return out
}
