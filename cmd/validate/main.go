// Command validate checks a directory of written PrepBUFR batches for
// structural integrity: message layout, sub-record pairing, quality marker
// consistency and report time offsets within the bucket window.
//
// Usage:
//
//	go run ./cmd/validate -dir out -bucket-hours 6
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/prepbufr-etl/internal/adapter/prepbufr"
	"github.com/couchcryptid/prepbufr-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type batchFile struct {
	name string
	msgs []prepbufr.Message
}

// Pairs of observed value and quality marker that must agree: a missing
// value is always flagged rejected.
var valueFlags = [][2]string{
	{"POB", "PQM"},
	{"ZOB", "ZQM"},
}

func main() {
	dir := flag.String("dir", "out", "directory containing .prepbufr files")
	bucketHours := flag.Float64("bucket-hours", 6, "bucket width the files were written with")
	flag.Parse()

	if *bucketHours <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*dir, *bucketHours))
}

func run(dir string, bucketHours float64) int {
	fmt.Println("=== PrepBUFR Output Validation ===")
	fmt.Println()

	files, err := loadFiles(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no %s files in %s\n", prepbufr.Extension, dir)
		return 1
	}

	phases := []*phase{
		validateLayout(files),
		validateQuality(files),
		validateTiming(files, bucketHours/2),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	reports := 0
	for _, f := range files {
		reports += len(f.msgs)
	}
	fmt.Println()
	fmt.Printf("Files: %d, reports: %d, sub-records: %d\n", len(files), reports, 2*reports)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadFiles(dir string) ([]batchFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+prepbufr.Extension))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	files := make([]batchFile, 0, len(paths))
	for _, path := range paths {
		msgs, err := prepbufr.ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, batchFile{
			name: strings.TrimSuffix(filepath.Base(path), prepbufr.Extension),
			msgs: msgs,
		})
	}
	return files, nil
}

func validateLayout(files []batchFile) *phase {
	p := &phase{name: "Message layout"}
	for _, f := range files {
		if len(f.msgs) == 0 {
			p.errorf("%s: no messages", f.name)
		}
		for i, m := range f.msgs {
			if m.Type != domain.MessageType {
				p.errorf("%s[%d]: type %q, want %q", f.name, i, m.Type, domain.MessageType)
			}
			if len(m.Subsets) != 2 {
				p.errorf("%s[%d]: %d subsets, want 2", f.name, i, len(m.Subsets))
				continue
			}
			kin, thermo := m.Subsets[0], m.Subsets[1]
			if typ, _ := kin.Get("TYP"); typ != domain.KinematicType {
				p.errorf("%s[%d]: first subset TYP %v, want %d", f.name, i, typ, domain.KinematicType)
			}
			if typ, _ := thermo.Get("TYP"); typ != domain.ThermoType {
				p.errorf("%s[%d]: second subset TYP %v, want %d", f.name, i, typ, domain.ThermoType)
			}
			if kin.SID != thermo.SID {
				p.errorf("%s[%d]: SID mismatch %q vs %q", f.name, i, kin.SID, thermo.SID)
			}
			for _, mn := range []string{"XOB", "YOB", "DHR"} {
				kv, kok := kin.Get(mn)
				tv, tok := thermo.Get(mn)
				if !kok || !tok || kv != tv {
					p.errorf("%s[%d]: header %s differs between subsets", f.name, i, mn)
				}
			}
		}
	}
	return p
}

func validateQuality(files []batchFile) *phase {
	p := &phase{name: "Quality markers"}
	for _, f := range files {
		for i, m := range f.msgs {
			if len(m.Subsets) != 2 {
				continue
			}
			kin, thermo := m.Subsets[0], m.Subsets[1]

			for _, s := range m.Subsets {
				for _, mn := range []string{"PQM", "QQM", "TQM", "ZQM", "WQM"} {
					v, ok := s.Get(mn)
					if !ok || !domain.QualityFlag(v).Valid() {
						p.errorf("%s[%d]: %s=%v is not a valid flag", f.name, i, mn, v)
					}
				}
				for _, pair := range valueFlags {
					checkPair(p, f.name, i, s, pair[0], pair[1])
				}
			}
			checkWind(p, f.name, i, kin)
			checkPair(p, f.name, i, thermo, "TOB", "TQM")
			checkPair(p, f.name, i, thermo, "QOB", "QQM")

			if q, _ := kin.Get("QQM"); q != float64(domain.QualityRejected) {
				p.errorf("%s[%d]: kinematic subset carries moisture flag %v", f.name, i, q)
			}
			if w, _ := thermo.Get("WQM"); w != float64(domain.QualityRejected) {
				p.errorf("%s[%d]: thermodynamic subset carries wind flag %v", f.name, i, w)
			}
		}
	}
	return p
}

// checkPair requires that a value is present exactly when its flag is not
// rejected.
func checkPair(p *phase, file string, i int, s prepbufr.Subset, value, qm string) {
	_, present := s.Get(value)
	q, _ := s.Get(qm)
	rejected := q == float64(domain.QualityRejected)
	if present == rejected {
		p.errorf("%s[%d]: %s present=%t but %s=%v", file, i, value, present, qm, q)
	}
}

// checkWind requires WQM to be rejected exactly when neither wind
// component is present.
func checkWind(p *phase, file string, i int, kin prepbufr.Subset) {
	_, u := kin.Get("UOB")
	_, v := kin.Get("VOB")
	q, _ := kin.Get("WQM")
	rejected := q == float64(domain.QualityRejected)
	if (u || v) == rejected {
		p.errorf("%s[%d]: wind present=%t but WQM=%v", file, i, u || v, q)
	}
}

func validateTiming(files []batchFile, halfWindow float64) *phase {
	p := &phase{name: "Report times"}
	for _, f := range files {
		stamp := f.name
		if idx := strings.LastIndexByte(stamp, '_'); idx >= 0 {
			stamp = stamp[idx+1:]
		}
		// Sub-hour windows append minutes or seconds to the label hour.
		if len(stamp) > 10 {
			stamp = stamp[:10]
		}
		want, err := strconv.Atoi(stamp)
		if err != nil || len(stamp) != 10 {
			err = fmt.Errorf("bad label %q", stamp)
			p.errorf("%s: file name does not end in a YYYYMMDDHH label", f.name)
		}
		for i, m := range f.msgs {
			if err == nil && m.Date != want {
				p.errorf("%s[%d]: message date %d, want %d", f.name, i, m.Date, want)
			}
			if len(m.Subsets) == 0 {
				continue
			}
			dhr, ok := m.Subsets[0].Get("DHR")
			if !ok {
				p.errorf("%s[%d]: DHR missing", f.name, i)
				continue
			}
			if math.Abs(dhr) > halfWindow+1e-9 {
				p.errorf("%s[%d]: DHR %.3f outside ±%.1f h", f.name, i, dhr, halfWindow)
			}
			if i > 0 && len(f.msgs[i-1].Subsets) > 0 {
				if prev, ok := f.msgs[i-1].Subsets[0].Get("DHR"); ok && dhr < prev {
					p.errorf("%s[%d]: DHR %.3f precedes previous %.3f", f.name, i, dhr, prev)
				}
			}
		}
	}
	return p
}
