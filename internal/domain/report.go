package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Destination format constants.
const (
	// MessageType is the PrepBUFR message type for upper-air reports.
	MessageType = "ADPUPA"

	// KinematicType and ThermoType are the report type codes of the wind
	// and mass sub-records.
	KinematicType = 232
	ThermoType    = 132

	// StationType is the fixed platform-class code written to every header.
	StationType = 1

	// PlatformIDWidth is the fixed width of the station identifier.
	PlatformIDWidth = 8

	// AltitudeError is the error assigned to reported altitude, m.
	AltitudeError = 4.0

	// SpecificHumidityScale converts dimensionless specific humidity to mg/kg.
	SpecificHumidityScale = 1e6
)

// QualityFlag is a PrepBUFR quality marker.
type QualityFlag int

const (
	QualityGood     QualityFlag = 1  // directly observed
	QualityDerived  QualityFlag = 2  // computed from other observed fields
	QualityRejected QualityFlag = 31 // missing or rejected
)

func (q QualityFlag) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDerived:
		return "derived"
	case QualityRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Valid reports whether q is one of the flags this pipeline produces.
func (q QualityFlag) Valid() bool {
	return q == QualityGood || q == QualityDerived || q == QualityRejected
}

// Header identifies and locates a report.
type Header struct {
	PlatformID  string  `json:"sid"`  // PlatformIDWidth chars, blank padded
	Longitude   float64 `json:"xob"`  // degrees
	Latitude    float64 `json:"yob"`  // degrees
	HoursOffset float64 `json:"dhr"`  // hours from the batch reference time
	ReportType  string  `json:"type"` // message type
	StationType int     `json:"tsb"`
}

// Field is one observed or derived value with its quality marker and, for
// fields that carry one, its error estimate.
type Field struct {
	Value   Optional    `json:"value"`
	Quality QualityFlag `json:"qm"`
	Error   Optional    `json:"oe"`
}

// KinematicRecord is the wind/position sub-record.
type KinematicRecord struct {
	Type     int   `json:"typ"`
	Pressure Field `json:"pob"` // hPa
	Altitude Field `json:"zob"` // m
	WindU    Field `json:"uob"` // m/s
	WindV    Field `json:"vob"` // m/s
}

// ThermoRecord is the temperature/moisture sub-record.
type ThermoRecord struct {
	Type             int   `json:"typ"`
	SpecificHumidity Field `json:"qob"` // mg/kg
	Temperature      Field `json:"tob"` // °C
}

// Report is the encoded form of one observation.
type Report struct {
	Header    Header          `json:"header"`
	Kinematic KinematicRecord `json:"kinematic"`
	Thermo    ThermoRecord    `json:"thermo"`
}

// ReportBatch is one output unit: the reports of one segment.
type ReportBatch struct {
	Name      string        `json:"name"`
	Group     string        `json:"group,omitempty"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration"`
	Label     time.Time     `json:"label"`
	RunID     string        `json:"run_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Reports   []Report      `json:"reports"`
}

// SubRecords returns the number of data sub-records in the batch.
func (b ReportBatch) SubRecords() int { return 2 * len(b.Reports) }

// PadPlatformID truncates or blank-pads id to PlatformIDWidth bytes.
// Truncation never splits a multi-byte character; the gap it leaves is
// blank-padded like a short id.
func PadPlatformID(id string) string {
	if len(id) > PlatformIDWidth {
		cut := PlatformIDWidth
		for cut > 0 && !utf8.RuneStart(id[cut]) {
			cut--
		}
		id = id[:cut]
	}
	return id + strings.Repeat(" ", PlatformIDWidth-len(id))
}

// CycleDate returns t as the integer YYYYMMDDHH used for message dates.
func CycleDate(t time.Time) int {
	t = t.UTC()
	return t.Year()*1000000 + int(t.Month())*10000 + t.Day()*100 + t.Hour()
}

// BatchName names an output unit after its group and label. The label is
// stamped to the hour for whole-hour windows and to the minute or second
// otherwise, so consecutive windows of one group never share a name.
// Combined batches have an empty group.
func BatchName(group string, label time.Time, d time.Duration) string {
	stamp := label.UTC().Format(stampLayout(d))
	if group == "" {
		return stamp
	}
	return sanitizeName(group) + "_" + stamp
}

func stampLayout(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return "2006010215"
	case d%time.Minute == 0:
		return "200601021504"
	default:
		return "20060102150405"
	}
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(s))
}
