package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrPressureIndeterminate is returned when an observation carries neither a
// pressure nor an altitude, so no error table row can be selected.
var ErrPressureIndeterminate = errors.New("pressure indeterminate: no pressure or altitude")

// ErrorTable is a pressure-indexed table of two error magnitudes, sorted by
// ascending pressure. It is immutable after construction.
type ErrorTable struct {
	pressure []float64
	first    []float64
	second   []float64
}

// NewErrorTable builds a table from (pressure hPa, value, value) rows. Rows
// must be strictly ascending in pressure with finite, non-negative values.
func NewErrorTable(rows [][3]float64) (ErrorTable, error) {
	if len(rows) == 0 {
		return ErrorTable{}, errors.New("error table has no rows")
	}
	t := ErrorTable{
		pressure: make([]float64, len(rows)),
		first:    make([]float64, len(rows)),
		second:   make([]float64, len(rows)),
	}
	for i, r := range rows {
		for _, v := range r {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return ErrorTable{}, fmt.Errorf("error table row %d: invalid value %v", i, v)
			}
		}
		if i > 0 && r[0] <= rows[i-1][0] {
			return ErrorTable{}, fmt.Errorf("error table row %d: pressure %.1f not above %.1f", i, r[0], rows[i-1][0])
		}
		t.pressure[i], t.first[i], t.second[i] = r[0], r[1], r[2]
	}
	return t, nil
}

// Len returns the number of rows.
func (t ErrorTable) Len() int { return len(t.pressure) }

// Interpolate returns both tabulated values at pressure p (hPa), linearly
// interpolated between neighbouring rows. Pressures outside the table are
// clamped to the nearest endpoint row.
func (t ErrorTable) Interpolate(p float64) (float64, float64) {
	n := len(t.pressure)
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	if p <= t.pressure[0] {
		return t.first[0], t.second[0]
	}
	if p >= t.pressure[n-1] {
		return t.first[n-1], t.second[n-1]
	}

	// t.pressure[i-1] < p <= t.pressure[i]
	i := sort.SearchFloat64s(t.pressure, p)
	p0, p1 := t.pressure[i-1], t.pressure[i]
	w := (p - p0) / (p1 - p0)
	return lerp(t.first[i-1], t.first[i], w), lerp(t.second[i-1], t.second[i], w)
}

func lerp(a, b, w float64) float64 { return a + (b-a)*w }

// ErrorTables holds the thermodynamic (temperature K, humidity) and wind
// (u, v m/s) observation-error tables.
type ErrorTables struct {
	Thermo ErrorTable
	Wind   ErrorTable
}

// NewErrorTables validates and builds both tables.
func NewErrorTables(thermo, wind [][3]float64) (*ErrorTables, error) {
	th, err := NewErrorTable(thermo)
	if err != nil {
		return nil, fmt.Errorf("thermo table: %w", err)
	}
	wn, err := NewErrorTable(wind)
	if err != nil {
		return nil, fmt.Errorf("wind table: %w", err)
	}
	return &ErrorTables{Thermo: th, Wind: wn}, nil
}

// DefaultErrorTables returns the built-in upper-air error tables.
func DefaultErrorTables() *ErrorTables {
	t, err := NewErrorTables(DefaultThermoRows, DefaultWindRows)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultThermoRows are (pressure hPa, temperature error K, humidity error)
// rows for radiosonde-like platforms. Humidity error is in tenths of RH.
var DefaultThermoRows = [][3]float64{
	{10, 1.5, 0.30},
	{50, 1.5, 0.30},
	{100, 1.3, 0.30},
	{150, 1.2, 0.30},
	{200, 1.0, 0.30},
	{250, 0.9, 0.30},
	{300, 0.9, 0.30},
	{400, 0.8, 0.28},
	{500, 0.8, 0.25},
	{700, 0.9, 0.22},
	{850, 1.0, 0.20},
	{1000, 1.2, 0.20},
	{1100, 1.3, 0.20},
}

// DefaultWindRows are (pressure hPa, u error, v error) rows in m/s.
var DefaultWindRows = [][3]float64{
	{10, 2.2, 2.3},
	{50, 2.2, 2.2},
	{100, 2.3, 2.3},
	{150, 2.5, 2.5},
	{200, 2.6, 2.6},
	{250, 2.7, 2.7},
	{300, 2.6, 2.7},
	{400, 2.4, 2.4},
	{500, 2.1, 2.2},
	{700, 1.8, 1.8},
	{850, 1.6, 1.7},
	{1000, 1.5, 1.5},
	{1100, 1.4, 1.4},
}

// ObservationErrors are the error estimates assigned to one observation.
type ObservationErrors struct {
	Pressure        float64 // pressure used for the lookup, hPa
	PressureDerived bool    // true when Pressure was estimated from altitude
	Temperature     float64 // K
	Humidity        float64
	Wind            float64 // m/s, the larger of the u and v errors
}

// LookupPressure returns the observed pressure, or an altitude-derived
// estimate when pressure is missing.
func LookupPressure(o Observation) (p float64, derived bool, err error) {
	if p, ok := o.Pressure.Get(); ok {
		return p, false, nil
	}
	if h, ok := o.Altitude.Get(); ok {
		return PressureFromAltitude(h), true, nil
	}
	return 0, false, ErrPressureIndeterminate
}

// ErrorsAt assigns error estimates to an observation.
func (t *ErrorTables) ErrorsAt(o Observation) (ObservationErrors, error) {
	p, derived, err := LookupPressure(o)
	if err != nil {
		return ObservationErrors{}, err
	}
	tErr, qErr := t.Thermo.Interpolate(p)
	uErr, vErr := t.Wind.Interpolate(p)
	return ObservationErrors{
		Pressure:        p,
		PressureDerived: derived,
		Temperature:     tErr,
		Humidity:        qErr,
		Wind:            math.Max(uErr, vErr),
	}, nil
}
