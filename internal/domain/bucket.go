package domain

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// ErrEmptyInput is returned when there are no observations to bucket.
var ErrEmptyInput = errors.New("no observations to bucket")

// Alignment selects where bucket windows sit on the absolute epoch grid.
type Alignment int

const (
	// AlignStart starts windows on multiples of the bucket duration:
	// the window containing t begins at t - t mod D.
	AlignStart Alignment = iota
	// AlignCycle centres windows on multiples of the bucket duration, e.g.
	// 6 h windows [21Z, 03Z) around the 00Z cycle.
	AlignCycle
)

func (a Alignment) String() string {
	switch a {
	case AlignStart:
		return "start"
	case AlignCycle:
		return "cycle"
	default:
		return fmt.Sprintf("alignment(%d)", int(a))
	}
}

// ParseAlignment accepts "start" or "cycle". Empty selects start.
func ParseAlignment(s string) (Alignment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start", "":
		return AlignStart, nil
	case "cycle":
		return AlignCycle, nil
	default:
		return 0, fmt.Errorf("unknown bucket alignment %q", s)
	}
}

// Segment is one time bucket: the half-open window [Start, Start+Duration)
// and the observations that fall in it, in non-decreasing time order.
type Segment struct {
	Group        string
	Start        time.Time
	Duration     time.Duration
	Observations []Observation
}

// End returns the exclusive end of the window.
func (s Segment) End() time.Time { return s.Start.Add(s.Duration) }

// Reference is the nominal window midpoint. Report time offsets are
// measured from it and output units are labelled with it.
func (s Segment) Reference() time.Time { return s.Start.Add(s.Duration / 2) }

// Contains reports whether a unix timestamp falls inside the window.
func (s Segment) Contains(ts int64) bool {
	return ts >= s.Start.Unix() && ts < s.End().Unix()
}

// Bucketer partitions observation streams into fixed-width windows
// anchored to the epoch grid, so independent runs over the same absolute
// time range produce identical boundaries.
type Bucketer struct {
	Duration  time.Duration
	Alignment Alignment
}

// NewBucketer builds a Bucketer from a width in hours.
func NewBucketer(hours float64, align Alignment) (Bucketer, error) {
	if math.IsNaN(hours) || hours <= 0 {
		return Bucketer{}, fmt.Errorf("bucket width must be positive, got %v hours", hours)
	}
	d := time.Duration(math.Round(hours * float64(time.Hour)))
	if d < time.Second || d%time.Second != 0 {
		return Bucketer{}, fmt.Errorf("bucket width %v hours is not a whole number of seconds", hours)
	}
	return Bucketer{Duration: d, Alignment: align}, nil
}

func (b Bucketer) seconds() int64 { return int64(b.Duration / time.Second) }

func (b Bucketer) phase() int64 {
	if b.Alignment == AlignCycle {
		return -b.seconds() / 2
	}
	return 0
}

// WindowStart returns the start of the grid window containing ts.
func (b Bucketer) WindowStart(ts int64) int64 {
	d, ph := b.seconds(), b.phase()
	return floorDiv(ts-ph, d)*d + ph
}

// Segment sorts obs by timestamp (stable) and splits it into consecutive
// windows. Windows with no observations are skipped; the trailing window
// is always emitted. The input slice is not modified.
func (b Bucketer) Segment(group string, obs []Observation) ([]Segment, error) {
	if len(obs) == 0 {
		return nil, ErrEmptyInput
	}
	d := b.seconds()
	if d <= 0 {
		return nil, errors.New("bucketer has no duration")
	}

	sorted := slices.Clone(obs)
	slices.SortStableFunc(sorted, func(x, y Observation) int {
		return cmp.Compare(x.Timestamp, y.Timestamp)
	})

	start := b.WindowStart(sorted[0].Timestamp)
	begin := 0
	var segs []Segment
	for i, o := range sorted {
		if o.Timestamp < start+d {
			continue
		}
		segs = append(segs, b.segment(group, start, sorted[begin:i:i]))
		start += (o.Timestamp - start) / d * d
		begin = i
	}
	segs = append(segs, b.segment(group, start, sorted[begin:]))
	return segs, nil
}

func (b Bucketer) segment(group string, start int64, obs []Observation) Segment {
	return Segment{
		Group:        group,
		Start:        time.Unix(start, 0).UTC(),
		Duration:     b.Duration,
		Observations: obs,
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
