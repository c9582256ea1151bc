package offsets

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPair(t *testing.T) {
	master := []Point{{Range: 100, Azimuth: 50}, {Range: 200, Azimuth: 60}}
	slave := []Point{{Range: 101.5, Azimuth: 48}, {Range: 199, Azimuth: 61.25}}

	got, err := Pair(master, slave, DefaultSNR)
	require.NoError(t, err)

	want := Table{
		{Range: 100, DRange: 1.5, Azimuth: 50, DAzimuth: -2, SNR: 100},
		{Range: 200, DRange: -1, Azimuth: 60, DAzimuth: 1.25, SNR: 100},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Pair mismatch (-want +got):\n%s", diff)
	}

	_, err = Pair(master, slave[:1], DefaultSNR)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestWithin_StrictBounds(t *testing.T) {
	tbl := Table{
		{Range: 0, Azimuth: 10},
		{Range: 10, Azimuth: 0},
		{Range: 1, Azimuth: 1},
		{Range: 99.9, Azimuth: 49.9},
		{Range: 100, Azimuth: 10},
		{Range: 10, Azimuth: 50},
		{Range: -3, Azimuth: 10},
	}
	got := tbl.Within(100, 50)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Range)
	assert.Equal(t, 99.9, got[1].Range)
}

func TestWriteParse(t *testing.T) {
	tbl := Table{{Range: 1.25, DRange: -0.5, Azimuth: 3, DAzimuth: 0.125, SNR: 100}}
	var buf bytes.Buffer
	_, err := tbl.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "1.250000 -0.500000 3.000000 0.125000 100\n", buf.String())

	got, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl, got)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader("1 2 3 4\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("1 2 3 x 5\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("1 2 3 4 -1\n"))
	assert.Error(t, err)
}

func TestMap(t *testing.T) {
	tbl := Table{{Azimuth: 1}, {Azimuth: 2}}
	shifted := tbl.Map(func(s Sample) Sample { s.Azimuth += 10; return s })
	assert.Equal(t, 11.0, shifted[0].Azimuth)
	assert.Equal(t, 1.0, tbl[0].Azimuth)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offset.dat")
	tbl := Table{{Range: 5, DRange: 1, Azimuth: 6, DAzimuth: 2, SNR: 100}}
	require.NoError(t, tbl.WriteFile(path))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tbl, got)
}
