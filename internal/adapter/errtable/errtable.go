// Package errtable loads observation error tables from a TOML file.
//
// The file holds two arrays of (pressure hPa, first, second) rows:
//
//	# pressure, temperature error (K), humidity error
//	thermo = [
//	  [  10.0, 1.5, 0.30],
//	  [1100.0, 1.3, 0.20],
//	]
//	# pressure, u error, v error (m/s)
//	wind = [
//	  [  10.0, 2.5, 2.5],
//	  [1100.0, 1.5, 1.5],
//	]
//
// An omitted table keeps the built-in default.
package errtable

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
)

type file struct {
	Thermo [][]float64 `toml:"thermo"`
	Wind   [][]float64 `toml:"wind"`
}

// Load reads and validates the tables at path. An empty path returns the
// built-in defaults.
func Load(path string) (*domain.ErrorTables, error) {
	if path == "" {
		return domain.DefaultErrorTables(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("error table file: %w", err)
	}

	var f file
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decode error table file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("error table file: unknown key %q", undecoded[0].String())
	}

	thermo := domain.DefaultThermoRows
	if md.IsDefined("thermo") {
		if thermo, err = rows(f.Thermo); err != nil {
			return nil, fmt.Errorf("thermo table: %w", err)
		}
	}
	wind := domain.DefaultWindRows
	if md.IsDefined("wind") {
		if wind, err = rows(f.Wind); err != nil {
			return nil, fmt.Errorf("wind table: %w", err)
		}
	}

	return domain.NewErrorTables(thermo, wind)
}

func rows(in [][]float64) ([][3]float64, error) {
	if len(in) == 0 {
		return nil, errors.New("no rows")
	}
	out := make([][3]float64, len(in))
	for i, r := range in {
		if len(r) != 3 {
			return nil, fmt.Errorf("row %d: want 3 values, got %d", i, len(r))
		}
		out[i] = [3]float64{r[0], r[1], r[2]}
	}
	return out, nil
}
