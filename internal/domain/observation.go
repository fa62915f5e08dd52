package domain

import (
	"fmt"
	"time"
)

// Observation is one sensor reading from a platform in the remote network.
type Observation struct {
	ID         string  `json:"id,omitempty"`
	Timestamp  int64   `json:"timestamp"` // unix seconds, UTC
	PlatformID string  `json:"platform_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`

	Altitude    Optional `json:"altitude"`    // m
	Pressure    Optional `json:"pressure"`    // hPa
	Temperature Optional `json:"temperature"` // °C
	Humidity    Optional `json:"humidity"`    // relative humidity, %
	SpeedU      Optional `json:"speed_u"`     // eastward wind, m/s
	SpeedV      Optional `json:"speed_v"`     // northward wind, m/s
}

// Time returns the observation timestamp as a UTC time.
func (o Observation) Time() time.Time {
	return time.Unix(o.Timestamp, 0).UTC()
}

// Ref identifies the observation in log and error messages.
func (o Observation) Ref() string {
	if o.ID != "" {
		return fmt.Sprintf("%s@%d (id %s)", o.PlatformID, o.Timestamp, o.ID)
	}
	return fmt.Sprintf("%s@%d", o.PlatformID, o.Timestamp)
}

// GroupByPlatform splits observations into per-platform streams, preserving
// input order within each stream. Keys are returned in first-seen order so
// output units are produced deterministically.
func GroupByPlatform(obs []Observation) ([]string, map[string][]Observation) {
	groups := make(map[string][]Observation)
	var keys []string
	for _, o := range obs {
		if _, ok := groups[o.PlatformID]; !ok {
			keys = append(keys, o.PlatformID)
		}
		groups[o.PlatformID] = append(groups[o.PlatformID], o)
	}
	return keys, groups
}
