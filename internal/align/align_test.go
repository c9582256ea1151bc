package align

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/banshee-data/topsalign/internal/monitoring"
	"github.com/banshee-data/topsalign/internal/offsets"
	"github.com/banshee-data/topsalign/internal/prm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPRF   = 486.486
	baseClock = 177.5
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func daysForLines(lines float64) float64 { return lines / testPRF / 86400.0 }

func makeRecord(t *testing.T, clock float64) *prm.Record {
	t.Helper()
	text := fmt.Sprintf(`num_rng_bins = 20000
num_lines = 5000
PRF = %v
SC_clock_start = %.12f
SC_clock_stop = %.12f
clock_start = %.12f
clock_stop = %.12f
`, testPRF, 2015000+clock, 2015000+clock+0.0003, clock, clock+0.0003)
	rec, err := prm.Parse(strings.NewReader(text), "test.PRM")
	require.NoError(t, err)
	return rec
}

// fakeGeometry maps (lon, lat) to range = lon and azimuth = lat minus the
// number of lines the record's clock sits after baseClock.
type fakeGeometry struct {
	doppler   int
	tiePoints int
	projected int
	tieLon    float64
	tieLat    float64
	err       error
}

func (g *fakeGeometry) Doppler(ctx context.Context, rec *prm.Record, earthRadius float64) (*prm.Record, error) {
	g.doppler++
	out := rec.Clone()
	out.SetFloat(prm.KeyEarthRadius, earthRadius)
	out.Set("fd1", "0.0")
	return out, nil
}

func (g *fakeGeometry) TiePoint(ctx context.Context, master, slave *prm.Record) (float64, float64, error) {
	g.tiePoints++
	if g.err != nil {
		return 0, 0, g.err
	}
	return g.tieLon, g.tieLat, nil
}

func (g *fakeGeometry) Project(ctx context.Context, rec *prm.Record, llt io.Reader) ([]offsets.Point, error) {
	g.projected++
	clock, err := rec.Float(prm.KeyClockStart)
	if err != nil {
		return nil, err
	}
	prf, err := rec.Float(prm.KeyPRF)
	if err != nil {
		return nil, err
	}
	lines := (clock - baseClock) * prf * 86400.0

	var pts []offsets.Point
	sc := bufio.NewScanner(llt)
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		lon, _ := strconv.ParseFloat(f[0], 64)
		lat, _ := strconv.ParseFloat(f[1], 64)
		pts = append(pts, offsets.Point{Range: lon, Azimuth: lat - lines})
	}
	return pts, sc.Err()
}

func writeDEM(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topo.llt")
	content := "1000 1700 0\n2000 1800 0\n30000 1700 0\n3000 1900 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestEstimateTimeShift(t *testing.T) {
	ref := makeRecord(t, baseClock)
	target := makeRecord(t, baseClock+daysForLines(123.7))

	nl, err := EstimateTimeShift(ref, target)
	require.NoError(t, err)
	assert.Equal(t, 123, nl)

	back, err := EstimateTimeShift(target, ref)
	require.NoError(t, err)
	assert.Equal(t, -124, back)
	assert.LessOrEqual(t, abs(nl+back), 1)
}

func TestEstimateTimeShift_Antisymmetric(t *testing.T) {
	ref := makeRecord(t, baseClock)
	for _, lines := range []float64{0, 1, 100, 1499.5, 2500.01, -730.3} {
		target := makeRecord(t, baseClock+daysForLines(lines))
		a, err := EstimateTimeShift(ref, target)
		require.NoError(t, err)
		b, err := EstimateTimeShift(target, ref)
		require.NoError(t, err)
		assert.LessOrEqual(t, abs(a+b), 1, "lines=%v a=%d b=%d", lines, a, b)
	}
}

func TestEstimateTimeShift_MissingKey(t *testing.T) {
	ref, err := prm.Parse(strings.NewReader("SC_clock_start = 2015177.5\nPRF = 486.486\n"), "ref.PRM")
	require.NoError(t, err)
	_, err = EstimateTimeShift(ref, makeRecord(t, baseClock))

	var pe *prm.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "clock_start", pe.Key)
	assert.Equal(t, "ref.PRM", pe.File)
}

func TestPolicyFor(t *testing.T) {
	tests := []struct {
		tmpDA int
		want  OffsetPolicy
	}{
		{0, SmallOffset},
		{999, SmallOffset},
		{1000, LargeOffset},
		{1001, LargeOffset},
		{-999, SmallOffset},
		{-1000, LargeOffset},
		{-1001, LargeOffset},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.tmpDA), func(t *testing.T) {
			assert.Equal(t, tt.want, PolicyFor(tt.tmpDA))
		})
	}
	assert.Equal(t, 0, SmallOffset.AzimuthShift(999))
	assert.Equal(t, 1001, LargeOffset.AzimuthShift(1001))
	assert.Equal(t, "large", LargeOffset.String())
	assert.Equal(t, "small", SmallOffset.String())
}

func TestLineCache(t *testing.T) {
	var c LineCache
	_, ok := c.Get()
	assert.False(t, ok)

	c.Set(0)
	v, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
}

func TestCoarseEstimator(t *testing.T) {
	geo := &fakeGeometry{tieLon: 100, tieLat: 5000}
	est := &CoarseEstimator{Geo: geo, EarthRadius: 6371000}

	master := makeRecord(t, baseClock)
	slave := makeRecord(t, baseClock+daysForLines(1500.3))
	da, err := est.Estimate(context.Background(), master, slave)
	require.NoError(t, err)
	assert.Equal(t, -1500, da)
	assert.Equal(t, 2, geo.doppler)
	assert.Equal(t, 1, geo.tiePoints)
}

func TestCoarseEstimator_TiePointError(t *testing.T) {
	geo := &fakeGeometry{err: errors.New("no overlap")}
	est := &CoarseEstimator{Geo: geo}
	_, err := est.Estimate(context.Background(), makeRecord(t, baseClock), makeRecord(t, baseClock))
	assert.ErrorContains(t, err, "no overlap")
}

func TestAligner_SmallOffset(t *testing.T) {
	geo := &fakeGeometry{tieLon: 100, tieLat: 5000}
	a := NewAligner(geo, 6371000)
	dem := writeDEM(t)

	ref := makeRecord(t, baseClock)
	slave := makeRecord(t, baseClock+daysForLines(10.4))
	cache := &LineCache{}

	res, err := a.Align(context.Background(), Input{Reference: ref, LineMaster: slave, Slave: slave, DEM: dem, Cache: cache})
	require.NoError(t, err)
	assert.Equal(t, 0, res.NL)
	assert.Equal(t, -10, res.TmpDA)
	assert.Equal(t, SmallOffset, res.Policy)

	// The third DEM point falls outside the image in range.
	require.Len(t, res.Samples, 3)
	for _, s := range res.Samples {
		assert.InDelta(t, 0, s.DRange, 1e-9)
		assert.InDelta(t, -10.4, s.DAzimuth, 1e-3)
		assert.Equal(t, float64(offsets.DefaultSNR), s.SNR)
	}
	assert.InDelta(t, 1700, res.Samples[0].Azimuth, 1e-3)

	v, ok := cache.Get()
	assert.True(t, ok)
	assert.Equal(t, -10, v)
	assert.True(t, res.Slave.Has("fd1"))
	assert.False(t, slave.Has("fd1"), "input slave record must not be mutated")
	assert.False(t, ref.Has("fd1"))
}

func TestAligner_LargeOffsetReshiftsMaster(t *testing.T) {
	geo := &fakeGeometry{tieLon: 100, tieLat: 5000}
	a := NewAligner(geo, 6371000)
	dem := writeDEM(t)

	ref := makeRecord(t, baseClock)
	slave := makeRecord(t, baseClock+daysForLines(1500.3))

	res, err := a.Align(context.Background(), Input{Reference: ref, LineMaster: slave, Slave: slave, DEM: dem, Cache: &LineCache{}})
	require.NoError(t, err)
	assert.Equal(t, -1500, res.TmpDA)
	assert.Equal(t, LargeOffset, res.Policy)
	require.Len(t, res.Samples, 3)
	for _, s := range res.Samples {
		// The master clone was moved 1500 lines later, leaving the fractional residual.
		assert.InDelta(t, -0.3, s.DAzimuth, 1e-3)
	}
	assert.InDelta(t, 200, res.Samples[0].Azimuth, 1e-3)
}

func TestAligner_CacheComputedOncePerLine(t *testing.T) {
	geo := &fakeGeometry{tieLon: 100, tieLat: 5000}
	a := NewAligner(geo, 6371000)
	dem := writeDEM(t)

	ref := makeRecord(t, baseClock)
	first := makeRecord(t, baseClock)
	second := makeRecord(t, baseClock+daysForLines(1250))
	cache := &LineCache{}

	res1, err := a.Align(context.Background(), Input{Reference: ref, LineMaster: first, Slave: first, DEM: dem, Cache: cache})
	require.NoError(t, err)
	assert.Equal(t, 0, res1.TmpDA)

	res2, err := a.Align(context.Background(), Input{Reference: ref, LineMaster: first, Slave: second, DEM: dem, Cache: cache})
	require.NoError(t, err)
	assert.Equal(t, 1250, res2.NL)
	assert.Equal(t, 0, res2.TmpDA, "a cached zero must be reused")
	assert.Equal(t, 1, geo.tiePoints)
	for _, s := range res2.Samples {
		// The clone was shifted by nl, so the two geometries agree.
		assert.InDelta(t, 0, s.DAzimuth, 1e-3)
	}
}

func TestAligner_MissingDEM(t *testing.T) {
	a := NewAligner(&fakeGeometry{}, 6371000)
	rec := makeRecord(t, baseClock)
	_, err := a.Align(context.Background(), Input{Reference: rec, LineMaster: rec, Slave: rec, DEM: filepath.Join(t.TempDir(), "none.llt"), Cache: &LineCache{}})
	assert.Error(t, err)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
