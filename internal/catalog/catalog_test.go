package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageID(sw, date, hms string) string {
	return fmt.Sprintf("s1a-iw%s-slc-vv-%st%s-%st%s-006526-00893c-001", sw, date, hms, date, hms)
}

func TestParseImage(t *testing.T) {
	img, err := ParseImage(imageID("2", "20150626", "162003"))
	require.NoError(t, err)

	assert.Equal(t, "20150626", img.Date)
	assert.Equal(t, "162003", img.Time)
	assert.Equal(t, "2", img.Subswath)
	assert.Equal(t, "S1_20150626_162003_F2", img.Stem())
	assert.Equal(t, "S1_20150626_ALL_F2", img.LineStem())
	assert.True(t, strings.HasSuffix(img.Annotation(), "-001.xml"))
	assert.True(t, strings.HasSuffix(img.Pixels(), "-001.tiff"))
}

func TestParseImage_Malformed(t *testing.T) {
	for _, id := range []string{"", "s1a-iw1", "s1a-iwX-slc-vv-20150626t162003-x"} {
		_, err := ParseImage(id)
		assert.ErrorIs(t, err, ErrBadIdentifier, id)
	}
}

func TestParse_SuperMasterFromFirstLine(t *testing.T) {
	first := imageID("1", "20150626", "162003")
	tests := []struct {
		name string
		body string
	}{
		{"single line", first + ":orb1.EOF\n"},
		{"two lines", first + ":orb1.EOF\n" + imageID("1", "20150720", "162004") + ":orb2.EOF\n"},
		{"multi frame first line", first + ":" + imageID("1", "20150626", "162030") + ":orb1.EOF\n" +
			imageID("1", "20150514", "162001") + ":orb0.EOF\n"},
		{"comments and blanks", "# header\n\n" + first + ":orb1.EOF\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := Parse(strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, first, cat.SuperMaster().ID)
			assert.Equal(t, "S1_20150626_ALL_F1", cat.SuperMasterStem())
			assert.Equal(t, RoleSuperMaster, cat.Lines[0].Images[0].Role)
			assert.True(t, cat.IsSuperMasterLine(cat.Lines[0]))
		})
	}
}

func TestParse_LineStructure(t *testing.T) {
	a := imageID("1", "20150720", "162003")
	b := imageID("1", "20150720", "162028")
	c := imageID("1", "20150720", "162053")
	body := imageID("1", "20150626", "162003") + ":m.EOF\n" + a + ":" + b + ":" + c + ":S1A_OPER_AUX_POEORB.EOF\n"

	cat, err := Parse(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, cat.Lines, 2)

	line := cat.Lines[1]
	assert.Equal(t, 1, line.Index)
	require.Len(t, line.Images, 3)
	assert.Equal(t, "S1A_OPER_AUX_POEORB.EOF", line.Orbit.Path)
	assert.Equal(t, RoleLineMaster, line.Images[0].Role)
	assert.Equal(t, RoleSlave, line.Images[1].Role)
	assert.Equal(t, "S1_20150720_ALL_F1", line.Stem())
	assert.False(t, cat.IsSuperMasterLine(line))
}

func TestParse_Errors(t *testing.T) {
	late := imageID("1", "20150720", "162053")
	early := imageID("1", "20150720", "162003")

	_, err := Parse(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrEmpty))

	_, err = Parse(strings.NewReader(late + ":" + early + ":orb.EOF\n"))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	_, err = Parse(strings.NewReader(early + "\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader(early + ":\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.in")
	require.NoError(t, os.WriteFile(path, []byte(imageID("3", "20150626", "162003")+":o.EOF\n"), 0644))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "S1_20150626_ALL_F3", cat.SuperMasterStem())

	_, err = Load(filepath.Join(t.TempDir(), "missing.in"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
