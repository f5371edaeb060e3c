// Package datafile reads the plain-text observation files orbitfit consumes:
// whitespace-separated columns, one observation per line, with '#' comments.
package datafile

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/astrokit/orbitfit/pkg/observations"
)

// ReadRV reads a radial-velocity file with columns: epoch velocity error.
func ReadRV(path string) ([]observations.RV, error) {
	var out []observations.RV
	err := readColumns(path, 3, func(line int, cols []float64) error {
		out = append(out, observations.RV{
			Epoch:    cols[0],
			Velocity: cols[1],
			Sigma:    cols[2],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadAS reads an astrometric file with columns: epoch, two position
// coordinates, then the error ellipse's semi-major axis, semi-minor axis and
// position angle. With polar set, the position columns are separation and
// position angle east of north; otherwise east and north separations.
func ReadAS(path string, polar bool) ([]observations.AS, error) {
	var out []observations.AS
	err := readColumns(path, 6, func(line int, cols []float64) error {
		if polar {
			out = append(out, observations.ASFromPolar(
				cols[0], cols[1], cols[2], cols[3], cols[4], cols[5]))
			return nil
		}
		out = append(out, observations.AS{
			Epoch: cols[0],
			East:  cols[1],
			North: cols[2],
			Major: cols[3],
			Minor: cols[4],
			Angle: cols[5],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readColumns streams a file line by line, parsing exactly n float columns
// per non-empty, non-comment line.
func readColumns(path string, n int, emit func(line int, cols []float64) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < n {
			return fmt.Errorf("%s:%d: expected %d columns, found %d", path, lineNo, n, len(fields))
		}
		cols := make([]float64, n)
		for i := 0; i < n; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return fmt.Errorf("%s:%d: column %d: %w", path, lineNo, i+1, err)
			}
			cols[i] = v
		}
		if err := emit(lineNo, cols); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading data file: %w", err)
	}
	return nil
}
