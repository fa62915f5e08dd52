package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// RawObservation is one record as served by the sensor-data API. Every
// physical field is nullable.
type RawObservation struct {
	ID          string   `json:"id"`
	Timestamp   float64  `json:"timestamp"`
	MissionID   string   `json:"mission_id,omitempty"`
	MissionName string   `json:"mission_name,omitempty"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Altitude    *float64 `json:"altitude"`
	Pressure    *float64 `json:"pressure"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	SpeedU      *float64 `json:"speed_u"`
	SpeedV      *float64 `json:"speed_v"`
}

// ErrNoPlatform is returned for records with neither a mission name nor id.
var ErrNoPlatform = errors.New("record has no platform identity")

// ErrNoPosition is returned for records without a latitude/longitude.
var ErrNoPosition = errors.New("record has no position")

// ParseRawObservation decodes one JSON record into an Observation.
func ParseRawObservation(data []byte) (Observation, error) {
	var rec RawObservation
	if err := json.Unmarshal(data, &rec); err != nil {
		return Observation{}, fmt.Errorf("parse raw observation: %w", err)
	}
	return rec.Observation()
}

// Observation converts the record, rejecting ones that cannot be placed in
// a stream: no platform, no position, or no timestamp.
func (r RawObservation) Observation() (Observation, error) {
	platform := strings.TrimSpace(r.MissionName)
	if platform == "" {
		platform = strings.TrimSpace(r.MissionID)
	}
	if platform == "" {
		return Observation{}, fmt.Errorf("record %q: %w", r.ID, ErrNoPlatform)
	}
	if r.Latitude == nil || r.Longitude == nil {
		return Observation{}, fmt.Errorf("record %q: %w", r.ID, ErrNoPosition)
	}
	if r.Timestamp <= 0 || math.IsNaN(r.Timestamp) || math.IsInf(r.Timestamp, 0) {
		return Observation{}, fmt.Errorf("record %q: invalid timestamp %v", r.ID, r.Timestamp)
	}

	return Observation{
		ID:          r.ID,
		Timestamp:   int64(math.Floor(r.Timestamp)),
		PlatformID:  platform,
		Latitude:    *r.Latitude,
		Longitude:   *r.Longitude,
		Altitude:    OptionalFromPtr(r.Altitude),
		Pressure:    OptionalFromPtr(r.Pressure),
		Temperature: OptionalFromPtr(r.Temperature),
		Humidity:    OptionalFromPtr(r.Humidity),
		SpeedU:      OptionalFromPtr(r.SpeedU),
		SpeedV:      OptionalFromPtr(r.SpeedV),
	}, nil
}

// Dedup drops records whose ID was already seen, keeping the first.
// Records without an ID are always kept.
func Dedup(obs []Observation) []Observation {
	seen := make(map[string]struct{}, len(obs))
	out := obs[:0:0]
	for _, o := range obs {
		if o.ID != "" {
			if _, ok := seen[o.ID]; ok {
				continue
			}
			seen[o.ID] = struct{}{}
		}
		out = append(out, o)
	}
	return out
}
