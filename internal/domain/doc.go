// Package domain turns balloon-borne sensor observations into PrepBUFR-style
// upper-air reports for numerical weather prediction assimilation.
//
// # Data Source
//
// Observations come from the WindBorne sensor-data API (or a Kafka topic or
// JSON fixture carrying the same records). Each record carries a mission
// name such as "W-1234", which becomes the platform identity, a unix
// timestamp, a position, and nullable physical fields:
//
//	altitude     m
//	pressure     hPa
//	temperature  °C
//	humidity     relative humidity, %
//	speed_u      eastward wind, m/s
//	speed_v      northward wind, m/s
//
// A null field is carried as a missing [Optional], never as 0.
//
// # Buckets
//
// A stream is split into fixed-width windows on the absolute epoch grid.
// With the default cycle alignment a 6 h width gives windows centred on
// 00Z, 06Z, 12Z and 18Z, i.e. [21Z, 03Z), [03Z, 09Z) and so on. Each
// window becomes one output unit labelled with its midpoint, and report
// time offsets (DHR) are hours relative to that midpoint, so they
// stay within ±width/2. Start alignment instead begins windows on multiples
// of the width.
//
// # Report Layout
//
// Each observation produces two sub-records sharing one header
// (SID, XOB, YOB, DHR, TYP, TSB):
//
//	232 kinematic      POB/PQM, ZOB/ZQM/ZOE, UOB VOB/WQM/WOE
//	132 thermodynamic  QOB/QQM/QOE, TOB/TQM/TOE
//
// Quality markers are 1 (observed), 2 (derived) and 31 (missing/rejected).
// Specific humidity (QOB, mg/kg) is derived from temperature, pressure and
// relative humidity and is only reported when all three are present.
//
// # Error Assignment
//
// Observation errors come from two pressure-indexed tables interpolated
// linearly and clamped at the ends. When pressure is missing it is
// estimated from altitude with the standard-atmosphere power law. The wind
// error is the larger of the tabulated u and v errors.
package domain
