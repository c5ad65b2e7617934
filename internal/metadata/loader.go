package metadata

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/logging"
)

// SupportedExtensions lists the metadata file types accepted at intake.
var SupportedExtensions = []string{".xlsx", ".xls", ".tsv"}

// Header field labels as they appear in the submission form. The header
// block occupies the rows above the column header row.
const (
	headerFieldUser  = "OMERO user:"
	headerFieldGroup = "OMERO group:"
	headerRowCount   = 4
)

// FindMetadataFile looks for exactly one metadata file in the top level
// of dir. Zero candidates or more than one is an error, the caller
// cannot guess which form the submitter meant.
func FindMetadataFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.New(err).
			Component("metadata").
			Category(errors.CategoryFileIO).
			Context("directory", dir).
			Build()
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isSupportedExtension(filepath.Ext(entry.Name())) {
			candidates = append(candidates, filepath.Join(dir, entry.Name()))
		}
	}

	switch len(candidates) {
	case 0:
		return "", errors.Newf("no metadata file found in %s", dir).
			Component("metadata").
			Category(errors.CategoryNotFound).
			Build()
	case 1:
		return candidates[0], nil
	default:
		return "", errors.Newf("%d metadata files found in %s, cannot process", len(candidates), dir).
			Component("metadata").
			Category(errors.CategoryValidation).
			Context("candidates", candidates).
			Build()
	}
}

// Load reads a metadata form into a normalized Table. The sheet argument
// selects the worksheet for spreadsheet files and is ignored for tsv.
func Load(path, sheet string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Newf("no such metadata file: %s", path).
			Component("metadata").
			Category(errors.CategoryNotFound).
			Build()
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !isSupportedExtension(ext) {
		return nil, errors.Newf("unsupported metadata file type %q, expected one of %v", ext, SupportedExtensions).
			Component("metadata").
			Category(errors.CategoryFormat).
			FileContext(path).
			Build()
	}

	var grid [][]string
	var err error
	if ext == ".tsv" {
		grid, err = readTSV(path)
	} else {
		grid, err = readWorksheet(path, sheet)
	}
	if err != nil {
		return nil, err
	}

	table, err := parseGrid(grid)
	if err != nil {
		return nil, err
	}
	table.SourceFile = path
	return table, nil
}

func isSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

func readWorksheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("metadata").
			Category(errors.CategoryFormat).
			FileContext(path).
			Build()
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.Newf("workbook %s has no worksheets", path).
				Component("metadata").
				Category(errors.CategoryFormat).
				Build()
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Newf("worksheet %q not readable in %s: %w", sheet, path, err).
			Component("metadata").
			Category(errors.CategorySchema).
			Build()
	}
	return rows, nil
}

func readTSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("metadata").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	grid, err := reader.ReadAll()
	if err != nil {
		return nil, errors.New(err).
			Component("metadata").
			Category(errors.CategoryFormat).
			FileContext(path).
			Build()
	}
	return grid, nil
}

// parseGrid turns the raw cell grid into a Table: header fields from the
// header block, column names from the first row after it, data rows
// below. Whitespace is trimmed everywhere, stray blank rows and columns
// are dropped rather than reported.
func parseGrid(grid [][]string) (*Table, error) {
	if len(grid) <= headerRowCount {
		return nil, errors.Newf("metadata form too short: expected header block of %d rows plus a column header row", headerRowCount).
			Component("metadata").
			Category(errors.CategorySchema).
			Build()
	}

	table := &Table{}
	for _, row := range grid[:headerRowCount] {
		label := strings.TrimSpace(cellAt(row, 0))
		value := strings.TrimSpace(cellAt(row, 1))
		switch label {
		case headerFieldUser:
			table.User = value
		case headerFieldGroup:
			table.Group = value
		}
	}
	if table.User == "" {
		return nil, missingHeaderField(headerFieldUser)
	}
	if table.Group == "" {
		return nil, missingHeaderField(headerFieldGroup)
	}

	headerRow := grid[headerRowCount]
	dataRows := grid[headerRowCount+1:]

	// Keep a column if it has a header or any non-blank data cell.
	type column struct {
		name  string
		index int
	}
	var columns []column
	for i := 0; i < len(headerRow); i++ {
		name := strings.ToLower(strings.TrimSpace(cellAt(headerRow, i)))
		if name == "" && columnEmpty(dataRows, i) {
			continue
		}
		if name == "" {
			return nil, errors.Newf("column %d has data but no header, the form is misaligned", i+1).
				Component("metadata").
				Category(errors.CategorySchema).
				Build()
		}
		columns = append(columns, column{name: name, index: i})
	}

	for _, col := range columns {
		table.Columns = append(table.Columns, col.name)
	}

	log := logging.ForService("metadata")
	flatMode := table.HasColumn(ColProject) || table.HasColumn(ColDataset)

	for _, raw := range dataRows {
		if rowEmpty(raw) {
			continue
		}
		var row Row
		for _, col := range columns {
			value := strings.TrimSpace(cellAt(raw, col.index))
			switch col.name {
			case ColFilename:
				row.Filename = value
			case ColProject:
				row.Project = value
			case ColDataset:
				row.Dataset = value
			case ColScreen:
				row.Screen = value
			default:
				row.SetExtra(col.name, value)
			}
		}

		// Tolerate half-filled author mistakes: a row missing a
		// structural field cannot become an import target, so it is
		// dropped here and surfaced later as a file without metadata.
		if flatMode && (row.Filename == "" || row.Project == "" || row.Dataset == "") {
			log.Debug("dropping row with missing structural fields",
				"filename", row.Filename, "project", row.Project, "dataset", row.Dataset)
			continue
		}
		if !flatMode && table.ScreenMode() && (row.Filename == "" || row.Screen == "") {
			log.Debug("dropping row with missing structural fields",
				"filename", row.Filename, "screen", row.Screen)
			continue
		}

		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func missingHeaderField(field string) error {
	return errors.Newf("header field %q not found, check the worksheet and header cells", field).
		Component("metadata").
		Category(errors.CategorySchema).
		Build()
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func columnEmpty(rows [][]string, i int) bool {
	for _, row := range rows {
		if strings.TrimSpace(cellAt(row, i)) != "" {
			return false
		}
	}
	return true
}
