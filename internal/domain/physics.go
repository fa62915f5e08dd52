package domain

import "math"

// Physical constants used by the moisture and pressure derivations.
const (
	TriplePointK = 273.15 // ice triple point, K
	SteamPointK  = 373.15 // boiling point at 1 atm, K

	esBaseWater = 1013.246 // saturation vapor pressure over water at SteamPointK, hPa
	esBaseIce   = 6.1071   // saturation vapor pressure over ice at TriplePointK, hPa

	// blendBandK is the width of the mixed-phase band below the triple point.
	blendBandK = 20.0

	RDry   = 287.04 // gas constant of dry air, J/(kg·K)
	RVapor = 461.50 // gas constant of water vapor, J/(kg·K)
	Eps    = RDry / RVapor

	// Standard-atmosphere power law p = C*(H0-h)^k, with C chosen so that
	// p(0) = 1013.25 hPa.
	baroH0 = 44330.8
	baroK  = 5.25588
	baroP0 = 1013.25
)

// SaturationVaporPressure returns the saturation vapor pressure in hPa for
// a temperature in °C. Below -20°C the Goff-Gratch ice curve is used, at or
// above 0°C the liquid curve, and in between the two are blended linearly
// by position within the band.
func SaturationVaporPressure(tempC float64) float64 {
	t := tempC + TriplePointK

	switch {
	case t <= TriplePointK-blendBandK:
		return svpIce(t)
	case t >= TriplePointK:
		return svpWater(t)
	}

	w := (t - (TriplePointK - blendBandK)) / blendBandK
	return (1-w)*svpIce(t) + w*svpWater(t)
}

func svpIce(t float64) float64 {
	x := -9.09718*(TriplePointK/t-1.0) -
		3.56654*math.Log10(TriplePointK/t) +
		0.876793*(1.0-t/TriplePointK) +
		math.Log10(esBaseIce)
	return math.Pow(10, x)
}

func svpWater(t float64) float64 {
	x := -7.90298*(SteamPointK/t-1.0) +
		5.02808*math.Log10(SteamPointK/t) -
		1.3816e-07*(math.Pow(10, (1.0-t/SteamPointK)*11.344)-1.0) +
		8.1328e-03*(math.Pow(10, (SteamPointK/t-1.0)*(-3.49149))-1.0) +
		math.Log10(esBaseWater)
	return math.Pow(10, x)
}

// SpecificHumidity returns the dimensionless specific humidity for a
// temperature (°C), pressure (hPa) and relative humidity (%). Relative
// humidity is clamped to [0, 100].
func SpecificHumidity(tempC, pressureHPa, rhPct float64) float64 {
	e := SaturationVaporPressure(tempC) * clamp(rhPct/100, 0, 1)
	return Eps * e / (pressureHPa - (1-Eps)*e)
}

// SpecificHumidityOf derives specific humidity for an observation. It is
// missing unless temperature, pressure and humidity are all present.
func SpecificHumidityOf(o Observation) Optional {
	t, okT := o.Temperature.Get()
	p, okP := o.Pressure.Get()
	rh, okRH := o.Humidity.Get()
	if !okT || !okP || !okRH {
		return None()
	}
	return Some(SpecificHumidity(t, p, rh))
}

// PressureFromAltitude estimates pressure (hPa) from geometric altitude (m)
// with the standard-atmosphere power law. Altitudes at or above the law's
// zero-pressure height return 0.
func PressureFromAltitude(altitudeM float64) float64 {
	base := baroH0 - altitudeM
	if base <= 0 {
		return 0
	}
	return baroP0 * math.Pow(base/baroH0, baroK)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
