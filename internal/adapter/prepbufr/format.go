// Package prepbufr writes and reads report batches in a PrepBUFR-style
// binary layout.
//
// A file is a sequence of messages, one per report. Each message is
//
//	"BUFR"                  magic
//	uint32                  byte length of the message body that follows
//	[8]byte                 message type, blank padded ("ADPUPA  ")
//	int32                   message date, YYYYMMDDHH
//	uint16                  subset count
//	subset...               HDR, OBS, DRF, OEF, QCF arrays
//	"7777"                  end marker
//
// Each array is a uint8 count followed by that many big-endian float64
// values, in the mnemonic order listed below. The SID slot of HDR holds
// the eight identifier bytes verbatim. Missing values are written as
// [Missing].
package prepbufr

import (
	"encoding/binary"
	"math"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
)

// Missing is the value written for absent data.
const Missing = 10e10

// Mnemonic order of each array.
var (
	HeaderMnemonics  = []string{"SID", "XOB", "YOB", "DHR", "TYP", "ELV", "SAID", "T29", "TSB"}
	ObsMnemonics     = []string{"POB", "QOB", "TOB", "ZOB", "UOB", "VOB", "PWO", "MXGS", "HOVI", "CAT", "PRSS", "TDO", "PMO"}
	DriftMnemonics   = []string{"XDR", "YDR", "HRDR"}
	ErrorMnemonics   = []string{"POE", "QOE", "TOE", "ZOE", "WOE", "NUL", "PWE"}
	QualityMnemonics = []string{"PQM", "QQM", "TQM", "ZQM", "WQM", "NUL", "PWQ", "PMQ"}
)

const (
	magic     = "BUFR"
	endMarker = "7777"
	typeWidth = 8
)

type slot struct {
	array int
	index int
}

// Array positions within a Subset.
const (
	arrHDR = iota
	arrOBS
	arrDRF
	arrOEF
	arrQCF
	numArrays
)

var mnemonicSlots = func() map[string]slot {
	m := make(map[string]slot)
	for a, names := range [numArrays][]string{HeaderMnemonics, ObsMnemonics, DriftMnemonics, ErrorMnemonics, QualityMnemonics} {
		for i, n := range names {
			if n == "NUL" || n == "SID" {
				continue
			}
			m[n] = slot{array: a, index: i}
		}
	}
	return m
}()

// Subset is one data sub-record: a report header with one level of
// observations, drift, errors and quality markers.
type Subset struct {
	SID     string
	Header  []float64
	Obs     []float64
	Drift   []float64
	Errors  []float64
	Quality []float64
}

func newSubset() Subset {
	return Subset{
		Header:  missingArray(len(HeaderMnemonics)),
		Obs:     missingArray(len(ObsMnemonics)),
		Drift:   missingArray(len(DriftMnemonics)),
		Errors:  missingArray(len(ErrorMnemonics)),
		Quality: missingArray(len(QualityMnemonics)),
	}
}

func missingArray(n int) []float64 {
	a := make([]float64, n)
	for i := range a {
		a[i] = Missing
	}
	return a
}

func (s *Subset) arrays() [numArrays][]float64 {
	return [numArrays][]float64{s.Header, s.Obs, s.Drift, s.Errors, s.Quality}
}

// Get returns the value stored under mnemonic, or false when it is
// missing or unknown.
func (s Subset) Get(mnemonic string) (float64, bool) {
	sl, ok := mnemonicSlots[mnemonic]
	if !ok {
		return 0, false
	}
	arr := s.arrays()[sl.array]
	if sl.index >= len(arr) || IsMissing(arr[sl.index]) {
		return 0, false
	}
	return arr[sl.index], true
}

func (s *Subset) set(mnemonic string, v float64) {
	sl := mnemonicSlots[mnemonic]
	s.arrays()[sl.array][sl.index] = v
}

func (s *Subset) setOptional(mnemonic string, v domain.Optional) {
	s.set(mnemonic, v.Or(Missing))
}

func (s *Subset) setField(value, quality, oe string, f domain.Field) {
	s.setOptional(value, f.Value)
	s.set(quality, float64(f.Quality))
	if oe != "" {
		s.setOptional(oe, f.Error)
	}
}

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v) || v >= Missing*0.99
}

// Subsets encodes a report as its kinematic and thermodynamic subsets.
// Both carry the shared header, drift, pressure and altitude. The wind
// fields are rejected in the thermodynamic subset and the mass fields in
// the kinematic one.
func Subsets(r domain.Report) (Subset, Subset) {
	base := newSubset()
	base.SID = domain.PadPlatformID(r.Header.PlatformID)
	base.set("XOB", r.Header.Longitude)
	base.set("YOB", r.Header.Latitude)
	base.set("DHR", r.Header.HoursOffset)
	base.set("TSB", float64(r.Header.StationType))
	base.set("XDR", r.Header.Longitude)
	base.set("YDR", r.Header.Latitude)
	base.set("HRDR", r.Header.HoursOffset)
	base.setField("POB", "PQM", "POE", r.Kinematic.Pressure)
	base.setField("ZOB", "ZQM", "ZOE", r.Kinematic.Altitude)

	kin := base.clone()
	kin.set("TYP", float64(r.Kinematic.Type))
	kin.setOptional("UOB", r.Kinematic.WindU.Value)
	kin.setOptional("VOB", r.Kinematic.WindV.Value)
	wind := windFlags(r.Kinematic)
	kin.set("WQM", float64(wind.Quality))
	kin.setOptional("WOE", wind.Error)
	kin.set("QQM", float64(domain.QualityRejected))
	kin.set("TQM", float64(domain.QualityRejected))

	th := base.clone()
	th.set("TYP", float64(r.Thermo.Type))
	th.setField("QOB", "QQM", "QOE", r.Thermo.SpecificHumidity)
	th.setField("TOB", "TQM", "TOE", r.Thermo.Temperature)
	th.set("WQM", float64(domain.QualityRejected))

	return kin, th
}

// windFlags picks the quality and error shared by UOB and VOB from
// whichever component was observed, preferring u.
func windFlags(k domain.KinematicRecord) domain.Field {
	if k.WindU.Value.Valid() {
		return k.WindU
	}
	return k.WindV
}

func (s Subset) clone() Subset {
	return Subset{
		SID:     s.SID,
		Header:  append([]float64(nil), s.Header...),
		Obs:     append([]float64(nil), s.Obs...),
		Drift:   append([]float64(nil), s.Drift...),
		Errors:  append([]float64(nil), s.Errors...),
		Quality: append([]float64(nil), s.Quality...),
	}
}

// sidBits packs an 8-character identifier into the HDR SID slot.
func sidBits(sid string) uint64 {
	var b [8]byte
	copy(b[:], domain.PadPlatformID(sid))
	return binary.BigEndian.Uint64(b[:])
}

func sidString(bits uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], bits)
	return string(b[:])
}
