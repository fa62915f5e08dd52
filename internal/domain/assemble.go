package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// batchClock stamps ReportBatch.CreatedAt.
var batchClock = clockwork.NewRealClock()

// SetClock replaces the clock used for batch creation times; nil restores
// the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	batchClock = c
}

// ErrOutOfWindow is returned when a segment holds an observation outside
// its own window.
var ErrOutOfWindow = errors.New("observation outside segment window")

// OrderingViolationError reports an observation whose timestamp is earlier
// than its predecessor's within one stream.
type OrderingViolationError struct {
	Observation Observation
	Previous    int64
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("ordering violation: %s precedes previous timestamp %d", e.Observation.Ref(), e.Previous)
}

// AssembleReport encodes one observation as a report relative to the
// batch reference time. The report is always fully populated; a non-nil
// error wraps ErrPressureIndeterminate and means the error estimates were
// left missing.
func AssembleReport(o Observation, tables *ErrorTables, reference time.Time) (Report, error) {
	errs, lookupErr := tables.ErrorsAt(o)
	if lookupErr != nil {
		lookupErr = fmt.Errorf("%s: %w", o.Ref(), lookupErr)
	}
	haveErrs := lookupErr == nil

	r := Report{
		Header: Header{
			PlatformID:  PadPlatformID(o.PlatformID),
			Longitude:   o.Longitude,
			Latitude:    o.Latitude,
			HoursOffset: float64(o.Timestamp-reference.Unix()) / 3600,
			ReportType:  MessageType,
			StationType: StationType,
		},
		Kinematic: KinematicRecord{
			Type:     KinematicType,
			Pressure: observed(o.Pressure, None()),
			Altitude: observed(o.Altitude, Some(AltitudeError)),
		},
		Thermo: ThermoRecord{Type: ThermoType},
	}

	windErr, tErr, qErr := None(), None(), None()
	if haveErrs {
		windErr, tErr, qErr = Some(errs.Wind), Some(errs.Temperature), Some(errs.Humidity)
	}
	r.Kinematic.WindU = observed(o.SpeedU, windErr)
	r.Kinematic.WindV = observed(o.SpeedV, windErr)
	r.Thermo.Temperature = observed(o.Temperature, tErr)

	if q, ok := SpecificHumidityOf(o).Get(); ok {
		r.Thermo.SpecificHumidity = Field{Value: Some(q * SpecificHumidityScale), Quality: QualityDerived, Error: qErr}
	} else {
		r.Thermo.SpecificHumidity = rejected()
	}

	return r, lookupErr
}

func observed(v, oe Optional) Field {
	if !v.Valid() {
		return rejected()
	}
	return Field{Value: v, Quality: QualityGood, Error: oe}
}

func rejected() Field {
	return Field{Quality: QualityRejected}
}

// AssembleSegment encodes every observation of a segment in order. It
// fails on structural problems (ordering, window membership) and returns
// per-observation warnings for reports whose error estimates are missing.
func AssembleSegment(seg Segment, tables *ErrorTables) (ReportBatch, []error, error) {
	if len(seg.Observations) == 0 {
		return ReportBatch{}, nil, ErrEmptyInput
	}

	ref := seg.Reference()
	batch := ReportBatch{
		Name:      BatchName(seg.Group, ref, seg.Duration),
		Group:     seg.Group,
		Start:     seg.Start,
		Duration:  seg.Duration,
		Label:     ref,
		CreatedAt: batchClock.Now().UTC(),
		Reports:   make([]Report, 0, len(seg.Observations)),
	}

	var warnings []error
	for i, o := range seg.Observations {
		if i > 0 && o.Timestamp < seg.Observations[i-1].Timestamp {
			return ReportBatch{}, nil, &OrderingViolationError{Observation: o, Previous: seg.Observations[i-1].Timestamp}
		}
		if !seg.Contains(o.Timestamp) {
			return ReportBatch{}, nil, fmt.Errorf("%w: %s not in [%s, %s)", ErrOutOfWindow, o.Ref(),
				seg.Start.Format(time.RFC3339), seg.End().Format(time.RFC3339))
		}
		r, err := AssembleReport(o, tables, ref)
		if err != nil {
			warnings = append(warnings, err)
		}
		batch.Reports = append(batch.Reports, r)
	}
	return batch, warnings, nil
}
