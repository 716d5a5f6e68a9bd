// Package calibration maps pixel coordinates into the robot/PLC frame.
//
// The mapping is a 3x3 planar transform stored row-major in a plain text
// file, one row per line, values separated by commas:
//
//	0.12,0.00,0.0
//	0.00,0.12,0.0
//	-40.0,-25.0,1.0
//
// A point is treated as the row vector [px py 1] and multiplied on the left
// of the matrix. Both results are negated because pixel Y grows downward
// while robot Y grows upward; the sign flip is fixed.
package calibration

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Mapper converts pixel coordinates to robot coordinates. It is immutable
// after construction and safe for concurrent use.
type Mapper struct {
	m *mat.Dense
}

// Identity returns a mapper over the 3x3 identity matrix.
func Identity() *Mapper {
	return &Mapper{m: mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})}
}

// New wraps a row-major 3x3 matrix.
func New(rows [3][3]float64) *Mapper {
	data := make([]float64, 0, 9)
	for _, r := range rows {
		data = append(data, r[:]...)
	}
	return &Mapper{m: mat.NewDense(3, 3, data)}
}

// Load reads the matrix at path. A missing file, a grid that is not 3x3, or
// a value that does not parse is logged as a warning and the identity matrix
// is used instead; Load never fails.
func Load(path string, log zerolog.Logger) *Mapper {
	rows, err := parseMatrix(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("calibration unavailable, using identity matrix")
		return Identity()
	}
	log.Info().Str("path", path).Msg("calibration matrix loaded")
	return New(rows)
}

func parseMatrix(path string) ([3][3]float64, error) {
	var rows [3][3]float64

	f, err := os.Open(path)
	if err != nil {
		return rows, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if n == 3 {
			return rows, fmt.Errorf("calibration matrix has more than 3 rows")
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return rows, fmt.Errorf("calibration row %d has %d values, want 3", n+1, len(fields))
		}
		for j, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return rows, fmt.Errorf("calibration row %d: %w", n+1, err)
			}
			rows[n][j] = v
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return rows, fmt.Errorf("failed to read calibration file: %w", err)
	}
	if n != 3 {
		return rows, fmt.Errorf("calibration matrix has %d rows, want 3", n)
	}
	return rows, nil
}

// Transform maps a pixel coordinate to robot coordinates:
//
//	rx = -(px*M[0,0] + py*M[1,0] + M[2,0])
//	ry = -(px*M[0,1] + py*M[1,1] + M[2,1])
func (m *Mapper) Transform(px, py float64) (rx, ry float64) {
	var out mat.VecDense
	out.MulVec(m.m.T(), mat.NewVecDense(3, []float64{px, py, 1}))
	return -out.AtVec(0), -out.AtVec(1)
}

// Matrix returns a copy of the matrix in row-major order.
func (m *Mapper) Matrix() [3][3]float64 {
	var rows [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rows[i][j] = m.m.At(i, j)
		}
	}
	return rows
}
