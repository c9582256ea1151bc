// Package catalog parses the acquisition list (data.in) into ordered
// acquisition lines and fixes the run's super-master.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Mission is the stem prefix for Sentinel-1 products.
const Mission = "S1"

var (
	// ErrEmpty is returned for a catalog without acquisition lines.
	ErrEmpty = errors.New("catalog has no acquisition lines")
	// ErrOutOfOrder is returned when a line's images are not in ascending time order.
	ErrOutOfOrder = errors.New("images not in ascending acquisition time order")
	// ErrBadIdentifier is returned for an image name that is too short to carry date, time and subswath.
	ErrBadIdentifier = errors.New("malformed image identifier")
)

// Role is the part a subswath image plays in the run.
type Role int

const (
	RoleSlave Role = iota
	RoleLineMaster
	RoleSuperMaster
)

func (r Role) String() string {
	switch r {
	case RoleSuperMaster:
		return "super-master"
	case RoleLineMaster:
		return "line-master"
	default:
		return "slave"
	}
}

// SubswathImage is one subswath frame of one acquisition.
type SubswathImage struct {
	// ID is the raw product name, e.g. s1a-iw1-slc-vv-20150626t162003-...-001.
	ID       string
	Date     string // YYYYMMDD
	Time     string // HHMMSS
	Subswath string // "1".."3"
	Role     Role
}

// ParseImage extracts identity fields from a product name.
func ParseImage(id string) (SubswathImage, error) {
	id = strings.TrimSpace(id)
	if len(id) < 30 {
		return SubswathImage{}, fmt.Errorf("%w: %q", ErrBadIdentifier, id)
	}
	img := SubswathImage{
		ID:       id,
		Subswath: id[6:7],
		Date:     id[15:23],
		Time:     id[24:30],
	}
	if !isDigits(img.Date) || !isDigits(img.Time) || !isDigits(img.Subswath) {
		return SubswathImage{}, fmt.Errorf("%w: %q", ErrBadIdentifier, id)
	}
	return img, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Stem is the per-frame product name, S1_<date>_<time>_F<n>.
func (s SubswathImage) Stem() string {
	return fmt.Sprintf("%s_%s_%s_F%s", Mission, s.Date, s.Time, s.Subswath)
}

// LineStem is the stitched product name, S1_<date>_ALL_F<n>.
func (s SubswathImage) LineStem() string {
	return fmt.Sprintf("%s_%s_ALL_F%s", Mission, s.Date, s.Subswath)
}

// Annotation is the XML annotation file for the image.
func (s SubswathImage) Annotation() string { return s.ID + ".xml" }

// Pixels is the TIFF measurement file for the image.
func (s SubswathImage) Pixels() string { return s.ID + ".tiff" }

func (s SubswathImage) acquired() string { return s.Date + s.Time }

// OrbitFile is a precise-orbit file attached to a line.
type OrbitFile struct {
	Path string
}

// AcquisitionLine is one temporal scene: its frames in time order and the
// orbit they share.
type AcquisitionLine struct {
	Index  int
	Images []SubswathImage
	Orbit  OrbitFile
}

// Master is the line's first image.
func (l AcquisitionLine) Master() SubswathImage { return l.Images[0] }

// Stem is the name of the line's stitched product.
func (l AcquisitionLine) Stem() string { return l.Images[0].LineStem() }

// Date of the acquisition.
func (l AcquisitionLine) Date() string { return l.Images[0].Date }

// Catalog is a parsed acquisition list.
type Catalog struct {
	Lines []AcquisitionLine
}

// SuperMaster is the first image of the first line.
func (c *Catalog) SuperMaster() SubswathImage { return c.Lines[0].Images[0] }

// SuperMasterStem is the stitched super-master product every line is aligned to.
func (c *Catalog) SuperMasterStem() string { return c.Lines[0].Stem() }

// IsSuperMasterLine reports whether l is the super-master's line.
func (c *Catalog) IsSuperMasterLine(l AcquisitionLine) bool { return l.Index == c.Lines[0].Index }

// Parse reads a catalog. Blank lines and lines starting with '#' are ignored.
func Parse(r io.Reader) (*Catalog, error) {
	cat := &Catalog{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		line, err := parseLine(text, len(cat.Lines))
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", lineNo, err)
		}
		cat.Lines = append(cat.Lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if len(cat.Lines) == 0 {
		return nil, ErrEmpty
	}

	cat.Lines[0].Images[0].Role = RoleSuperMaster
	for i := 1; i < len(cat.Lines); i++ {
		cat.Lines[i].Images[0].Role = RoleLineMaster
	}
	return cat, nil
}

func parseLine(text string, index int) (AcquisitionLine, error) {
	fields := strings.Split(text, ":")
	if len(fields) < 2 {
		return AcquisitionLine{}, fmt.Errorf("need at least one image and an orbit file, got %q", text)
	}
	line := AcquisitionLine{
		Index: index,
		Orbit: OrbitFile{Path: strings.TrimSpace(fields[len(fields)-1])},
	}
	if line.Orbit.Path == "" {
		return AcquisitionLine{}, fmt.Errorf("empty orbit field in %q", text)
	}
	for _, f := range fields[:len(fields)-1] {
		img, err := ParseImage(f)
		if err != nil {
			return AcquisitionLine{}, err
		}
		if n := len(line.Images); n > 0 && img.acquired() <= line.Images[n-1].acquired() {
			return AcquisitionLine{}, fmt.Errorf("%w: %s after %s", ErrOutOfOrder, img.ID, line.Images[n-1].ID)
		}
		line.Images = append(line.Images, img)
	}
	return line, nil
}

// Load parses the catalog file at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
