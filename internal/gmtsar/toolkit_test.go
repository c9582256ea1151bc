package gmtsar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/topsalign/internal/exttool"
	"github.com/banshee-data/topsalign/internal/fsutil"
	"github.com/banshee-data/topsalign/internal/grid"
	"github.com/banshee-data/topsalign/internal/offsets"
	"github.com/banshee-data/topsalign/internal/prm"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKit(t *testing.T, handler func(call exttool.MockCall) (*exttool.Result, error)) (*Toolkit, *exttool.MockRunner) {
	t.Helper()
	work := t.TempDir()
	scratch, err := fsutil.NewScratch(work, "test")
	require.NoError(t, err)
	m := exttool.NewMockRunner(handler)
	return New(m, work, scratch), m
}

func sampleRecord(t *testing.T) *prm.Record {
	t.Helper()
	rec, err := prm.Parse(strings.NewReader("led_file = S1_20150626_162003_F1.LED\nPRF = 486.486\nclock_start = 177.675\n"), "S1_20150626_162003_F1.PRM")
	require.NoError(t, err)
	return rec
}

func TestDoppler(t *testing.T) {
	kit, m := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return nil, os.WriteFile(call.Args[1], []byte("fd1 = 12.5\nearth_radius = 6372354.873\n"), 0o644)
	})
	rec := sampleRecord(t)

	out, err := kit.Doppler(context.Background(), rec, 0)
	require.NoError(t, err)
	r, err := out.Float(prm.KeyEarthRadius)
	require.NoError(t, err)
	assert.Equal(t, 6372354.873, r)
	assert.False(t, rec.Has("fd1"))

	_, err = kit.Doppler(context.Background(), rec, 6372354.873)
	require.NoError(t, err)

	calls := m.CallsTo(ToolCalcDopOrb)
	require.Len(t, calls, 2)
	assert.Equal(t, kit.Workdir, calls[0].Dir)
	assert.Equal(t, []string{"0", "0"}, calls[0].Args[2:])
	assert.Equal(t, []string{"6372354.873", "0"}, calls[1].Args[2:])
	assert.True(t, strings.HasPrefix(calls[0].Args[0], kit.Scratch.Dir))

	written, err := prm.ReadFile(calls[0].Args[0])
	require.NoError(t, err)
	assert.True(t, written.Has(prm.KeyLEDFile))
}

func TestDoppler_IncompleteOutput(t *testing.T) {
	tests := []struct {
		name  string
		write func(path string) error
	}{
		{"empty file", func(path string) error { return os.WriteFile(path, nil, 0o644) }},
		{"no file", func(string) error { return nil }},
		{"no earth radius", func(path string) error { return os.WriteFile(path, []byte("fd1 = 12.5\n"), 0o644) }},
		{"no centroid", func(path string) error { return os.WriteFile(path, []byte("earth_radius = 6372354.873\n"), 0o644) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kit, _ := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
				return nil, tt.write(call.Args[1])
			})
			out, err := kit.Doppler(context.Background(), sampleRecord(t), 6372354.873)
			assert.Nil(t, out)
			var te *exttool.ToolError
			require.True(t, errors.As(err, &te), "got %v", err)
			assert.Equal(t, ToolCalcDopOrb, te.Tool)
			assert.True(t, errors.Is(err, exttool.ErrNoOutput))
		})
	}
}

func TestTiePoint(t *testing.T) {
	kit, _ := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return &exttool.Result{Stdout: []byte("B_parallel = 12.1\nlon_tie_point = -115.25\nlat_tie_point = 32.5\n")}, nil
	})
	lon, lat, err := kit.TiePoint(context.Background(), sampleRecord(t), sampleRecord(t))
	require.NoError(t, err)
	assert.Equal(t, -115.25, lon)
	assert.Equal(t, 32.5, lat)
}

func TestTiePoint_MissingKey(t *testing.T) {
	kit, _ := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return &exttool.Result{Stdout: []byte("B_parallel = 12.1\n")}, nil
	})
	_, _, err := kit.TiePoint(context.Background(), sampleRecord(t), sampleRecord(t))
	var pe *prm.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "lon_tie_point", pe.Key)
}

func TestProject(t *testing.T) {
	kit, m := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return &exttool.Result{Stdout: []byte("1200.5 340.25 0 -115.25 32.5\n\n1300 350 0 -115.2 32.6\n")}, nil
	})
	pts, err := kit.Project(context.Background(), sampleRecord(t), strings.NewReader("-115.25 32.5 0\n"))
	require.NoError(t, err)
	want := []offsets.Point{{Range: 1200.5, Azimuth: 340.25}, {Range: 1300, Azimuth: 350}}
	if diff := cmp.Diff(want, pts); diff != "" {
		t.Errorf("projection mismatch (-want +got):\n%s", diff)
	}

	call := m.CallsTo(ToolSATllt2rat)[0]
	assert.Equal(t, "1", call.Args[1])
	assert.Equal(t, "-115.25 32.5 0\n", string(call.Stdin))
}

func TestProject_Errors(t *testing.T) {
	kit, _ := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return &exttool.Result{Stdout: []byte("1200.5\n")}, nil
	})
	_, err := kit.Project(context.Background(), sampleRecord(t), strings.NewReader("0 0 0\n"))
	assert.Error(t, err)

	kit, _ = newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return nil, &exttool.ToolError{Tool: call.Name, ExitCode: 1}
	})
	_, err = kit.Project(context.Background(), sampleRecord(t), strings.NewReader("0 0 0\n"))
	var te *exttool.ToolError
	assert.True(t, errors.As(err, &te))

	kit, _ = newKit(t, nil)
	_, err = kit.Project(context.Background(), sampleRecord(t), strings.NewReader("0 0 0\n"))
	assert.True(t, errors.Is(err, exttool.ErrNoOutput))
}

func TestFormImageAndOrbit(t *testing.T) {
	kit, m := newKit(t, nil)
	id := "s1a-iw1-slc-vv-20150720t162003-20150720t162028-006526-00893c-001"
	require.NoError(t, kit.FormImage(context.Background(), id+".xml", id+".tiff", "S1_20150720_162003_F1", 1, "r.grd", "a.grd"))
	require.NoError(t, kit.ApplyOrbit(context.Background(), "S1_20150720_162003_F1", "orbit.EOF"))

	require.Len(t, m.Calls, 2)
	assert.Equal(t, []string{id + ".xml", id + ".tiff", "S1_20150720_162003_F1", "1", "r.grd", "a.grd"}, m.Calls[0].Args)
	assert.Equal(t, []string{"S1_20150720_162003_F1.PRM", "orbit.EOF", "S1_20150720_162003_F1"}, m.Calls[1].Args)
}

func TestCombineAndResample(t *testing.T) {
	var list string
	kit, m := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		if call.Name == ToolStitchTops {
			b, err := os.ReadFile(call.Args[0])
			list = string(b)
			return nil, err
		}
		return nil, nil
	})
	require.NoError(t, kit.Combine(context.Background(), []string{"a", "b", "c"}, "S1_20150720_ALL_F1"))
	assert.Equal(t, "a\nb\nc\n", list)
	assert.Equal(t, "S1_20150720_ALL_F1", m.Calls[0].Args[1])

	require.NoError(t, kit.Resample(context.Background(), "m.PRM", "s.PRM", "s.PRMresamp", "s.SLCresamp"))
	assert.Equal(t, []string{"m.PRM", "s.PRM", "s.PRMresamp", "s.SLCresamp", "1"}, m.Calls[1].Args)
}

func TestBaselineRow(t *testing.T) {
	kit, m := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return &exttool.Result{Stdout: []byte("S1_20150720_ALL_F1 2015201.6757 565 -12.5 48.25\n")}, nil
	})
	row, err := kit.BaselineRow(context.Background(), "S1_20150626_ALL_F1", "S1_20150720_ALL_F1")
	require.NoError(t, err)
	assert.Equal(t, "S1_20150720_ALL_F1", row.Stem)
	assert.Equal(t, 48.25, row.BPerp)
	assert.Equal(t, []string{"S1_20150626_ALL_F1.PRM", "S1_20150720_ALL_F1.PRM"}, m.Calls[0].Args)
}

func TestSampleDEM(t *testing.T) {
	kit, m := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		if call.Args[0] == "grd2xyz" {
			return &exttool.Result{Stdout: []byte("-115.1 32.1 10.5\n")}, nil
		}
		return nil, nil
	})
	out := filepath.Join(kit.Scratch.Dir, "topo.llt")
	require.NoError(t, kit.SampleDEM(context.Background(), "dem.grd", "2", "12s", out))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "-115.1 32.1 10.5\n", string(got))

	require.Len(t, m.Calls, 2)
	assert.Equal(t, []string{"grdfilter", "dem.grd", "-D2", "-Fg2", "-I12s"}, m.Calls[0].Args[:5])
	assert.Equal(t, "--FORMAT_FLOAT_OUT=%lf", m.Calls[1].Args[1])
}

func TestWriteGrid(t *testing.T) {
	kit, m := newKit(t, nil)
	s := grid.NewSurface(3, 2, grid.DefaultSpec(), grid.RasterOrder)
	require.NoError(t, kit.WriteGrid(context.Background(), s, "r.grd"))

	args := m.Calls[0].Args
	assert.Equal(t, "xyz2grd", args[0])
	assert.Equal(t, []string{"-R0/24/0/8", "-I8/4", "-r", "-Gr.grd"}, args[2:])
	xyz, err := os.ReadFile(args[1])
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(xyz)), "\n"), 6)
}

func TestOffsetFitter(t *testing.T) {
	kit, m := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return &exttool.Result{Stdout: []byte("rshift = 1\nsub_int_r = 0.25\nstretch_r = 0.0\na_stretch_r = 0.0\nashift = -3\nsub_int_a = -0.75\nstretch_a = 0.0\na_stretch_a = 0.0\n")}, nil
	})
	f := &OffsetFitter{Kit: kit, RangeParams: 3, AzimuthParams: 3, SNRThreshold: 20}
	rec, err := f.Fit(context.Background(), offsets.Table{{Range: 1, DRange: 1, Azimuth: 1, DAzimuth: 1, SNR: 100}})
	require.NoError(t, err)
	v, err := rec.Float(prm.KeySubIntA)
	require.NoError(t, err)
	assert.Equal(t, -0.75, v)

	args := m.Calls[0].Args
	assert.Equal(t, []string{"3", "3"}, args[:2])
	assert.Equal(t, "20", args[3])
	table, err := offsets.ReadFile(args[2])
	require.NoError(t, err)
	assert.Len(t, table, 1)

	kit2, _ := newKit(t, func(call exttool.MockCall) (*exttool.Result, error) {
		return &exttool.Result{Stdout: []byte("nothing useful\n")}, nil
	})
	_, err = (&OffsetFitter{Kit: kit2, RangeParams: 3, AzimuthParams: 3}).Fit(context.Background(), offsets.Table{})
	assert.Error(t, err)
}
