package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTable_Interpolate(t *testing.T) {
	table, err := NewErrorTable([][3]float64{
		{100, 2.0, 20},
		{500, 1.0, 10},
		{1000, 3.0, 30},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	tests := []struct {
		name   string
		p      float64
		first  float64
		second float64
	}{
		{"below minimum clamps", 10, 2.0, 20},
		{"at minimum", 100, 2.0, 20},
		{"between rows", 300, 1.5, 15},
		{"on interior row", 500, 1.0, 10},
		{"upper segment", 750, 2.0, 20},
		{"at maximum", 1000, 3.0, 30},
		{"above maximum clamps", 1100, 3.0, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := table.Interpolate(tt.p)
			assert.InDelta(t, tt.first, a, 1e-12)
			assert.InDelta(t, tt.second, b, 1e-12)
		})
	}
}

func TestErrorTable_SingleRow(t *testing.T) {
	table, err := NewErrorTable([][3]float64{{500, 1.1, 2.2}})
	require.NoError(t, err)

	for _, p := range []float64{0, 500, 2000} {
		a, b := table.Interpolate(p)
		assert.Equal(t, 1.1, a)
		assert.Equal(t, 2.2, b)
	}
}

func TestNewErrorTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rows [][3]float64
	}{
		{"empty", nil},
		{"descending", [][3]float64{{500, 1, 1}, {100, 1, 1}}},
		{"duplicate pressure", [][3]float64{{500, 1, 1}, {500, 2, 2}}},
		{"negative value", [][3]float64{{500, -1, 1}}},
		{"NaN", [][3]float64{{500, math.NaN(), 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewErrorTable(tt.rows)
			assert.Error(t, err)
		})
	}
}

func TestNewErrorTables_WrapsTableName(t *testing.T) {
	_, err := NewErrorTables(DefaultThermoRows, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wind table")
}

func TestDefaultErrorTables(t *testing.T) {
	tables := DefaultErrorTables()
	assert.Equal(t, len(DefaultThermoRows), tables.Thermo.Len())
	assert.Equal(t, len(DefaultWindRows), tables.Wind.Len())
}

func TestErrorsAt(t *testing.T) {
	tables := DefaultErrorTables()

	t.Run("observed pressure", func(t *testing.T) {
		errs, err := tables.ErrorsAt(Observation{Pressure: Some(925), Altitude: Some(20000)})
		require.NoError(t, err)
		assert.False(t, errs.PressureDerived)
		assert.Equal(t, 925.0, errs.Pressure)
		assert.InDelta(t, 1.6, errs.Wind, 1e-9, "max of u=1.55 and v=1.6")
	})

	t.Run("altitude fallback", func(t *testing.T) {
		errs, err := tables.ErrorsAt(Observation{Altitude: Some(500)})
		require.NoError(t, err)
		assert.True(t, errs.PressureDerived)
		assert.InDelta(t, 954.61, errs.Pressure, 0.01)
		assert.InDelta(t, 1.5605, errs.Wind, 1e-4)
		assert.InDelta(t, 1.1395, errs.Temperature, 1e-4)
	})

	t.Run("indeterminate", func(t *testing.T) {
		_, err := tables.ErrorsAt(Observation{Temperature: Some(10)})
		assert.True(t, errors.Is(err, ErrPressureIndeterminate))
	})
}
