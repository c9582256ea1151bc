package grid

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Region is the GMT -R string covering the surface's cells.
func (s *Surface) Region() string {
	return fmt.Sprintf("0/%g/0/%g", float64(s.Cols)*s.CellRange, float64(s.Rows)*s.CellAzimuth)
}

// Increment is the GMT -I string for the surface's cells.
func (s *Surface) Increment() string {
	return fmt.Sprintf("%g/%g", s.CellRange, s.CellAzimuth)
}

// WriteXYZ writes one "x y z" line per node at cell centres, storage row
// by storage row. Storage row k is labelled with the k-th y from the top,
// so a RasterOrder surface converted by xyz2grd yields a grid whose
// stored rows run from azimuth 0, as the image-formation tool reads it.
func (s *Surface) WriteXYZ(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for k := 0; k < s.Rows; k++ {
		y := (float64(s.Rows-k) - 0.5) * s.CellAzimuth
		row := s.Data.RawRowView(k)
		for c, z := range row {
			x := (float64(c) + 0.5) * s.CellRange
			if _, err := fmt.Fprintf(bw, "%.6f %.6f %.6f\n", x, y, z); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteXYZFile writes the surface nodes to path.
func (s *Surface) WriteXYZFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.WriteXYZ(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
