package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/imagingrc/omero-intake/internal/errors"
)

func writeTSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const basicForm = "OMERO user:\tdjme\n" +
	"OMERO group:\tResearch IT\n" +
	"\t\n" +
	"\t\n" +
	"filename\tproject\tdataset\tstain\n" +
	"a.tif\tP\tD1\tDAPI\n" +
	"b.tif\tP\tD2\tGFP\n"

func TestLoadTSV(t *testing.T) {
	dir := t.TempDir()
	path := writeTSV(t, dir, "import_me.tsv", basicForm)

	table, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "djme", table.User)
	assert.Equal(t, "Research IT", table.Group)
	assert.Equal(t, []string{"filename", "project", "dataset", "stain"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "a.tif", table.Rows[0].Filename)
	assert.Equal(t, "P", table.Rows[0].Project)
	assert.Equal(t, "D1", table.Rows[0].Dataset)
	assert.Equal(t, map[string]string{"stain": "DAPI"}, table.Rows[0].Extra)
	assert.False(t, table.ScreenMode())
}

func TestLoadTrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	form := "OMERO user:\t  djme \n" +
		"OMERO group:\t Research IT \n" +
		"\t\n" +
		"\t\n" +
		"filename\tproject\tdataset\n" +
		" a.tif \t P \t D1 \n"
	path := writeTSV(t, dir, "form.tsv", form)

	table, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "djme", table.User)
	assert.Equal(t, "Research IT", table.Group)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "a.tif", table.Rows[0].Filename)
	assert.Equal(t, "P", table.Rows[0].Project)
}

func TestLoadDropsBlankRowsAndIncompleteRows(t *testing.T) {
	dir := t.TempDir()
	form := "OMERO user:\tdjme\n" +
		"OMERO group:\tResearch IT\n" +
		"\t\n" +
		"\t\n" +
		"filename\tproject\tdataset\n" +
		"a.tif\tP\tD1\n" +
		"\t\t\n" +
		"b.tif\t\tD2\n" + // missing project, cannot become a target
		"c.tif\tP\tD3\n"
	path := writeTSV(t, dir, "form.tsv", form)

	table, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.tif", "c.tif"}, table.Filenames())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.tsv"), "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "form.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Load(path, "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFormat))
}

func TestLoadDetectsShiftedHeaderFields(t *testing.T) {
	dir := t.TempDir()
	// Header labels shifted one column right, values unreachable.
	form := "\tOMERO user:\tdjme\n" +
		"\tOMERO group:\tResearch IT\n" +
		"\t\n" +
		"\t\n" +
		"filename\tproject\tdataset\n" +
		"a.tif\tP\tD1\n"
	path := writeTSV(t, dir, "form.tsv", form)

	_, err := Load(path, "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategorySchema))
}

func TestLoadScreenMode(t *testing.T) {
	dir := t.TempDir()
	form := "OMERO user:\tdjme\n" +
		"OMERO group:\tHCS Core\n" +
		"\t\n" +
		"\t\n" +
		"filename\tscreen\tcompound\n" +
		"plate1.h5\tScreen A\taspirin\n" +
		"plate2.h5\tScreen A\tibuprofen\n"
	path := writeTSV(t, dir, "form.tsv", form)

	table, err := Load(path, "")
	require.NoError(t, err)
	assert.True(t, table.ScreenMode())
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Screen A", table.Rows[0].Screen)
	assert.Equal(t, "aspirin", table.Rows[0].Extra["compound"])
}

func TestLoadXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "import_me.xlsx")

	f := excelize.NewFile()
	sheet := "Submission Form"
	_, err := f.NewSheet(sheet)
	require.NoError(t, err)
	rows := [][]any{
		{"OMERO user:", "djme"},
		{"OMERO group:", "Research IT"},
		{"", ""},
		{"", ""},
		{"filename", "project", "dataset", "stain"},
		{"a.tif", "P", "D1", "DAPI"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := Load(path, sheet)
	require.NoError(t, err)
	assert.Equal(t, "djme", table.User)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "DAPI", table.Rows[0].Extra["stain"])
}

func TestFindMetadataFile(t *testing.T) {
	dir := t.TempDir()
	writeTSV(t, dir, "a.tif", "not metadata")
	path := writeTSV(t, dir, "import_me.xlsx", "stub")

	found, err := FindMetadataFile(dir)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestFindMetadataFileNone(t *testing.T) {
	dir := t.TempDir()
	writeTSV(t, dir, "a.tif", "image data")

	_, err := FindMetadataFile(dir)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestFindMetadataFileAmbiguous(t *testing.T) {
	dir := t.TempDir()
	writeTSV(t, dir, "one.xlsx", "stub")
	writeTSV(t, dir, "two.tsv", "stub")

	_, err := FindMetadataFile(dir)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestRowExtraKeyOrder(t *testing.T) {
	var r Row
	r.SetExtra("stain", "DAPI")
	r.SetExtra("magnification", "40x")
	r.SetExtra("stain", "GFP") // overwrite keeps position
	assert.Equal(t, []string{"stain", "magnification"}, r.ExtraKeys())
	assert.Equal(t, "GFP", r.Extra["stain"])
}
