package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/topsalign/internal/catalog"
	"github.com/banshee-data/topsalign/internal/exttool"
	"github.com/banshee-data/topsalign/internal/gmtsar"
	"github.com/banshee-data/topsalign/internal/prm"
)

const (
	fakePRF         = 486.486
	fakeRangeBins   = 160
	fakeLineBins    = 80
	fakeEarthRadius = "6372354.873"
)

// toolchain simulates the GMTSAR and GMT binaries inside a workdir. DEM
// point (lon, lat) lands at range 8*lon+4, azimuth 4*lat+2 in the
// super-master geometry and is offset by (slaveRange, slaveAzimuth) in
// every other image.
type toolchain struct {
	dir   string
	super string

	slaveRange   float64
	slaveAzimuth float64
	// demSide is the number of DEM nodes along each axis.
	demSide int
	// failOn makes a tool fail when any argument contains the substring.
	failOn map[string]string
	// emptyDoppler makes calc_dop_orb exit cleanly with an empty output
	// file for records whose input_file contains the substring.
	emptyDoppler string

	mu         sync.Mutex
	stitchList []string
	gridsSeen  []string
}

func newToolchain(dir, superStem string) *toolchain {
	return &toolchain{dir: dir, super: superStem, slaveRange: 1.5, slaveAzimuth: 0.5, demSide: 20, failOn: map[string]string{}}
}

func (tc *toolchain) path(call exttool.MockCall, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(call.Dir, p)
}

func (tc *toolchain) handle(call exttool.MockCall) (*exttool.Result, error) {
	if sub, ok := tc.failOn[call.Name]; ok {
		for _, a := range call.Args {
			if strings.Contains(a, sub) {
				return nil, &exttool.ToolError{Tool: call.Name, Args: call.Args, ExitCode: 1, Stderr: "simulated failure"}
			}
		}
	}

	switch call.Name {
	case gmtsar.ToolMakeTops:
		return nil, tc.makeTops(call)
	case gmtsar.ToolExtOrb:
		if _, err := os.Stat(tc.path(call, call.Args[0])); err != nil {
			return nil, err
		}
		return nil, nil
	case gmtsar.ToolCalcDopOrb:
		if tc.emptyDoppler != "" {
			rec, err := prm.ReadFile(call.Args[0])
			if err != nil {
				return nil, err
			}
			if input, _ := rec.String(prm.KeyInputFile); strings.Contains(input, tc.emptyDoppler) {
				return nil, os.WriteFile(call.Args[1], nil, 0o644)
			}
		}
		radius := call.Args[2]
		if radius == "0" {
			radius = fakeEarthRadius
		}
		return nil, os.WriteFile(call.Args[1], []byte("fd1 = 0.0\nearth_radius = "+radius+"\n"), 0o644)
	case gmtsar.ToolSATBaseline:
		return &exttool.Result{Stdout: []byte("B_parallel = 0.0\nlon_tie_point = 10\nlat_tie_point = 10\n")}, nil
	case gmtsar.ToolSATllt2rat:
		return tc.project(call)
	case gmtsar.ToolStitchTops:
		return nil, tc.stitch(call)
	case gmtsar.ToolResamp:
		if err := copyFile(tc.path(call, call.Args[1]), tc.path(call, call.Args[2])); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(tc.path(call, call.Args[3]), []byte("resampled"), 0o644)
	case gmtsar.ToolFitOffset:
		return &exttool.Result{Stdout: []byte("rshift = 1\nsub_int_r = 0.5\nstretch_r = 0.0\na_stretch_r = 0.0\nashift = 0\nsub_int_a = 0.5\nstretch_a = 0.0\na_stretch_a = 0.0\n")}, nil
	case gmtsar.ToolBaselineTable:
		return tc.baselineRow(call)
	case gmtsar.ToolGMT:
		return tc.gmt(call)
	}
	return nil, fmt.Errorf("unexpected tool %s", call.Name)
}

func (tc *toolchain) makeTops(call exttool.MockCall) error {
	id := strings.TrimSuffix(call.Args[0], ".xml")
	img, err := catalog.ParseImage(id)
	if err != nil {
		return err
	}
	stem := call.Args[2]
	day, err := time.Parse("20060102150405", img.Date+img.Time)
	if err != nil {
		return err
	}
	clock := float64(day.YearDay()) + float64(day.Hour()*3600+day.Minute()*60+day.Second())/86400
	sc := float64(day.Year()*1000) + clock
	text := fmt.Sprintf(`input_file = %s.raw
SLC_file = %s.SLC
led_file = %s.LED
num_rng_bins = %d
num_lines = %d
PRF = %v
SC_clock_start = %.10f
SC_clock_stop = %.10f
clock_start = %.10f
clock_stop = %.10f
`, stem, stem, stem, fakeRangeBins, fakeLineBins, fakePRF, sc, sc+0.0002, clock, clock+0.0002)
	if err := os.WriteFile(filepath.Join(call.Dir, stem+".PRM"), []byte(text), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(call.Dir, stem+".LED"), []byte("led "+stem+"\n"), 0o644); err != nil {
		return err
	}
	if call.Args[3] == "1" {
		if len(call.Args) == 6 {
			for _, g := range call.Args[4:] {
				if _, err := os.Stat(g); err != nil {
					return fmt.Errorf("shift grid: %w", err)
				}
			}
			tc.mu.Lock()
			tc.gridsSeen = append(tc.gridsSeen, stem)
			tc.mu.Unlock()
		}
		return os.WriteFile(filepath.Join(call.Dir, stem+".SLC"), []byte("slc "+stem), 0o644)
	}
	return nil
}

func (tc *toolchain) project(call exttool.MockCall) (*exttool.Result, error) {
	rec, err := prm.ReadFile(call.Args[0])
	if err != nil {
		return nil, err
	}
	input, _ := rec.String(prm.KeyInputFile)
	dr, da := tc.slaveRange, tc.slaveAzimuth
	if input == tc.super+".raw" {
		dr, da = 0, 0
	}
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(call.Stdin))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 3 {
			continue
		}
		lon, _ := strconv.ParseFloat(f[0], 64)
		lat, _ := strconv.ParseFloat(f[1], 64)
		fmt.Fprintf(&out, "%.6f %.6f %s %s %s\n", 8*lon+4+dr, 4*lat+2+da, f[2], f[0], f[1])
	}
	return &exttool.Result{Stdout: out.Bytes()}, nil
}

func (tc *toolchain) stitch(call exttool.MockCall) error {
	b, err := os.ReadFile(call.Args[0])
	if err != nil {
		return err
	}
	stems := strings.Fields(string(b))
	tc.mu.Lock()
	tc.stitchList = stems
	tc.mu.Unlock()

	out := call.Args[1]
	rec, err := prm.ReadFile(filepath.Join(call.Dir, stems[0]+".PRM"))
	if err != nil {
		return err
	}
	rec.Set(prm.KeyInputFile, out+".raw")
	rec.Set(prm.KeySLCFile, out+".SLC")
	rec.Set(prm.KeyLEDFile, out+".LED")
	rec.SetInt(prm.KeyNumLines, fakeLineBins*len(stems))
	if err := prm.WriteFile(filepath.Join(call.Dir, out+".PRM"), rec); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(call.Dir, out+".LED"), []byte("led "+out+"\n"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(call.Dir, out+".SLC"), []byte("slc "+out), 0o644)
}

func (tc *toolchain) baselineRow(call exttool.MockCall) (*exttool.Result, error) {
	rec, err := prm.ReadFile(tc.path(call, call.Args[1]))
	if err != nil {
		return nil, err
	}
	sc, err := rec.Float(prm.KeySCClockStart)
	if err != nil {
		return nil, err
	}
	clock, err := rec.Float(prm.KeyClockStart)
	if err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(call.Args[1], ".PRM")
	days := 365 + int(clock)
	row := fmt.Sprintf("%s %.4f %d %.2f %.2f\n", stem, sc, days, 0.0, clock-177)
	return &exttool.Result{Stdout: []byte(row)}, nil
}

func (tc *toolchain) gmt(call exttool.MockCall) (*exttool.Result, error) {
	switch call.Args[0] {
	case "grdfilter", "xyz2grd":
		for _, a := range call.Args {
			if strings.HasPrefix(a, "-G") {
				return nil, os.WriteFile(tc.path(call, a[2:]), []byte(call.Args[0]), 0o644)
			}
		}
		return nil, fmt.Errorf("%s without -G", call.Args[0])
	case "grd2xyz":
		var out bytes.Buffer
		for lat := 0; lat < tc.demSide; lat++ {
			for lon := 0; lon < tc.demSide; lon++ {
				fmt.Fprintf(&out, "%d.000000 %d.000000 0.000000\n", lon, lat)
			}
		}
		return &exttool.Result{Stdout: out.Bytes()}, nil
	}
	return nil, fmt.Errorf("unexpected gmt module %s", call.Args[0])
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0o644)
}

func (tc *toolchain) stitched() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]string(nil), tc.stitchList...)
}

func (tc *toolchain) gridded() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]string(nil), tc.gridsSeen...)
}
