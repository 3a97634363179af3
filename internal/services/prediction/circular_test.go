package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.UTC)
}

func TestIdenticalStartsAreHighConfidence(t *testing.T) {
	starts := []time.Time{at(1, 20, 0), at(2, 20, 0), at(3, 20, 0), at(4, 20, 0), at(5, 20, 0)}

	est := EstimateStarts(starts, now)

	assert.Equal(t, 20*60, est.MinuteOfDay)
	assert.InDelta(t, 1.0, est.Concentration, 1e-9)
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(est.Concentration))
	assert.Equal(t, 5, est.Samples)
}

func TestUniformSpreadIsLowConfidence(t *testing.T) {
	var starts []time.Time
	for h := 0; h < 24; h++ {
		starts = append(starts, at(1, h, 0))
	}

	est := EstimateStarts(starts, now)

	assert.Less(t, est.Concentration, 0.01)
	assert.Equal(t, ConfidenceLow, ConfidenceFor(est.Concentration))
}

func TestMeanWrapsAroundMidnight(t *testing.T) {
	starts := []time.Time{at(1, 23, 0), at(2, 1, 0), at(3, 23, 0), at(4, 1, 0)}

	est := EstimateStarts(starts, now)

	assert.Equal(t, 0, est.MinuteOfDay)
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(est.Concentration))
}

func TestQuarterCircleSpreadIsMedium(t *testing.T) {
	starts := []time.Time{at(1, 17, 0), at(2, 23, 0), at(3, 17, 0), at(4, 23, 0)}

	est := EstimateStarts(starts, now)

	assert.Equal(t, 20*60, est.MinuteOfDay)
	assert.InDelta(t, 0.7071, est.Concentration, 1e-3)
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(est.Concentration))
}

func TestRecentStartsWeighMore(t *testing.T) {
	starts := []time.Time{
		at(1, 10, 0), // nine days old
		at(9, 14, 0), // one day old
	}

	est := EstimateStarts(starts, now)

	assert.Greater(t, est.MinuteOfDay, 12*60)
	assert.Less(t, est.MinuteOfDay, 14*60)
}

func TestSampleWeightBoundary(t *testing.T) {
	assert.Equal(t, RecentWeight, sampleWeight(now.Add(-3*24*time.Hour), now))
	assert.Equal(t, RecentWeight, sampleWeight(now.Add(-(4*24*time.Hour - time.Minute)), now))
	assert.Equal(t, 1.0, sampleWeight(now.Add(-4*24*time.Hour), now))
	assert.Equal(t, RecentWeight, sampleWeight(now.Add(time.Hour), now))
}

func TestConfidenceThresholds(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(0.81))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(0.8))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(0.51))
	assert.Equal(t, ConfidenceLow, ConfidenceFor(0.5))
}

func TestNextOccurrence(t *testing.T) {
	assert.Equal(t, at(10, 20, 0), NextOccurrence(20*60, now))
	assert.Equal(t, at(11, 9, 30), NextOccurrence(9*60+30, now))
	assert.Equal(t, now, NextOccurrence(12*60, now))
}
