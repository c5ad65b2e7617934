package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagingrc/omero-intake/internal/metadata"
)

func flatTable(rows ...metadata.Row) *metadata.Table {
	return &metadata.Table{
		User:       "djme",
		Group:      "Research IT",
		Columns:    []string{"filename", "project", "dataset"},
		Rows:       rows,
		SourceFile: "/drop/batch/import_me.xlsx",
	}
}

func row(filename, project, dataset string) metadata.Row {
	return metadata.Row{Filename: filename, Project: project, Dataset: dataset}
}

func TestValidateCleanTable(t *testing.T) {
	table := flatTable(row("a.tif", "P", "D"), row("b.tif", "P", "D"))
	report := Validate(table, []string{"a.tif", "b.tif"})
	assert.True(t, report.Valid())
}

func TestValidateDuplicateFilenames(t *testing.T) {
	table := flatTable(row("a.tif", "P", "D"), row("a.tif", "P", "D"))
	report := Validate(table, []string{"a.tif"})
	require.False(t, report.Valid())
	dups := report.ByKind(ProblemDuplicateFilename)
	require.Len(t, dups, 1)
	assert.Contains(t, dups[0].Detail, "a.tif")
}

func TestValidateFileWithoutMetadata(t *testing.T) {
	table := flatTable(row("a.tif", "P", "D"))
	report := Validate(table, []string{"a.tif", "b.tif"})
	require.False(t, report.Valid())
	missing := report.ByKind(ProblemFileWithoutMetadata)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0].Detail, "b.tif")
}

func TestValidateMetadataWithoutFile(t *testing.T) {
	table := flatTable(row("a.tif", "P", "D"), row("gone.tif", "P", "D"))
	report := Validate(table, []string{"a.tif"})
	require.False(t, report.Valid())
	missing := report.ByKind(ProblemMetadataWithoutFile)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0].Detail, "gone.tif")
}

func TestValidateIgnoresSidecarFiles(t *testing.T) {
	table := flatTable(row("a.tif", "P", "D"))
	listing := []string{
		"a.tif",
		"import_me.xlsx", // the form itself, matched by extension
		"import.json",
		"files.tsv",
		"import.yml",
		"20240101_120000.log",
	}
	report := Validate(table, listing)
	assert.True(t, report.Valid(), report.Summary())
}

func TestValidateBlankAndNanCells(t *testing.T) {
	table := flatTable(
		row("a.tif", "P", "D"),
		row("b.tif", "nan", "D"),
		row("c.tif", "P", ""),
	)
	report := Validate(table, []string{"a.tif", "b.tif", "c.tif"})
	require.False(t, report.Valid())
	blanks := report.ByKind(ProblemBlankCell)
	require.Len(t, blanks, 2)
	assert.Contains(t, blanks[0].Detail, "project")
	assert.Contains(t, blanks[1].Detail, "dataset")
}

func TestValidateMissingColumnHaltsColumnChecks(t *testing.T) {
	table := &metadata.Table{
		Columns:    []string{"filename", "project"},
		Rows:       []metadata.Row{{Filename: "a.tif", Project: "P"}},
		SourceFile: "/drop/batch/form.xlsx",
	}
	report := Validate(table, []string{"a.tif"})
	require.False(t, report.Valid())

	missing := report.ByKind(ProblemMissingColumn)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0].Detail, "dataset")
	// No per-row blank findings for the absent column.
	assert.Empty(t, report.ByKind(ProblemBlankCell))
}

func TestValidateScreenModeSkipsListingCrossCheck(t *testing.T) {
	table := &metadata.Table{
		Columns: []string{"filename", "screen"},
		Rows: []metadata.Row{
			{Filename: "plate1.h5", Screen: "Screen A"},
		},
	}
	// Extra companion files on disk are expected for plate formats.
	report := Validate(table, []string{"plate1.h5", "plate1_meta.bin"})
	assert.True(t, report.Valid(), report.Summary())
}

func TestValidateAccumulatesAllProblems(t *testing.T) {
	table := flatTable(
		row("a.tif", "P", "D"),
		row("a.tif", "", "D"),
		row("lost.tif", "P", "D"),
	)
	report := Validate(table, []string{"a.tif", "stray.tif"})
	require.False(t, report.Valid())
	assert.NotEmpty(t, report.ByKind(ProblemDuplicateFilename))
	assert.NotEmpty(t, report.ByKind(ProblemBlankCell))
	assert.NotEmpty(t, report.ByKind(ProblemFileWithoutMetadata))
	assert.NotEmpty(t, report.ByKind(ProblemMetadataWithoutFile))
}
