package prediction

import (
	"math"
	"time"
)

const (
	// MaxSamples is the number of most recent session starts considered
	MaxSamples = 50
	// MinSamples is the fewest starts a prediction needs
	MinSamples = 3
	// RecentWeight applies to starts within RecentDays whole days of now
	RecentWeight = 3.0
	RecentDays   = 3

	minutesPerDay = 24 * 60
)

// Confidence labels how tightly session starts cluster around the mean hour
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// ConfidenceFor maps a mean resultant length in [0, 1] to a label
func ConfidenceFor(r float64) Confidence {
	switch {
	case r > 0.8:
		return ConfidenceHigh
	case r > 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Estimate is the circular statistic over a set of start times
type Estimate struct {
	// MinuteOfDay is the predicted UTC time of day, in minutes after midnight
	MinuteOfDay int
	// Concentration is the weighted mean resultant length
	Concentration float64
	Samples       int
}

// sampleWeight favours starts from the last few days
func sampleWeight(start, now time.Time) float64 {
	age := now.Sub(start)
	if age < 0 {
		age = 0
	}
	if int(age/(24*time.Hour)) <= RecentDays {
		return RecentWeight
	}
	return 1.0
}

// EstimateStarts computes the weighted circular mean time of day of starts.
// The caller ensures starts is not empty.
func EstimateStarts(starts []time.Time, now time.Time) Estimate {
	var sumX, sumY, total float64
	for _, st := range starts {
		st = st.UTC()
		hour := float64(st.Hour()) + float64(st.Minute())/60.0
		angle := hour / 24.0 * 2 * math.Pi
		w := sampleWeight(st, now)
		sumX += math.Cos(angle) * w
		sumY += math.Sin(angle) * w
		total += w
	}

	meanX, meanY := sumX/total, sumY/total
	meanAngle := math.Atan2(meanY, meanX)
	if meanAngle < 0 {
		meanAngle += 2 * math.Pi
	}

	minute := int(math.Round(meanAngle/(2*math.Pi)*minutesPerDay)) % minutesPerDay
	return Estimate{
		MinuteOfDay:   minute,
		Concentration: math.Min(1, math.Hypot(meanX, meanY)),
		Samples:       len(starts),
	}
}

// NextOccurrence returns the first instant at or after now with the given
// UTC minute of day
func NextOccurrence(minuteOfDay int, now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	at := midnight.Add(time.Duration(minuteOfDay) * time.Minute)
	if at.Before(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
