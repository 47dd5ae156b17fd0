package domain

import "time"

// Reading is one timestamped water-level observation for a plant.
type Reading struct {
	ID              int64     `json:"id,omitempty"`
	PlantID         int64     `json:"plant_id"`
	ObservedAt      time.Time `json:"observed_at"`
	UpperBasinLevel *float64  `json:"upper_basin_level"`
	LowerBasinLevel *float64  `json:"lower_basin_level"`
	CreatedAt       time.Time `json:"created_at,omitzero"`
}

// ReadingKey is the reconciliation identity of a reading.
type ReadingKey struct {
	PlantID    int64
	ObservedAt time.Time
}

// Key returns the (plant, observation time) identity of the reading.
func (r Reading) Key() ReadingKey {
	return ReadingKey{PlantID: r.PlantID, ObservedAt: CanonicalTime(r.ObservedAt)}
}

// CanonicalTime converts an observation time to the form it is stored and
// compared in: UTC, second precision.
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Float returns a pointer to v. Handy for building readings and thresholds.
func Float(v float64) *float64 {
	return &v
}
