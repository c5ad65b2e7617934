package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imagingrc/omero-intake/internal/metadata"
)

// ProblemKind classifies one validation finding.
type ProblemKind string

const (
	ProblemMissingColumn       ProblemKind = "missing-column"
	ProblemBlankCell           ProblemKind = "blank-cell"
	ProblemDuplicateFilename   ProblemKind = "duplicate-filename"
	ProblemFileWithoutMetadata ProblemKind = "file-without-metadata"
	ProblemMetadataWithoutFile ProblemKind = "metadata-without-file"
)

// Problem is one user-fixable validation finding.
type Problem struct {
	Kind   ProblemKind
	Detail string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Kind, p.Detail)
}

// Report accumulates every problem found in one validation pass. The
// batch is only valid when the report is empty; individual findings are
// never fatal on their own so the submitter sees all of them at once.
type Report struct {
	Problems []Problem
}

func (r *Report) add(kind ProblemKind, format string, args ...any) {
	r.Problems = append(r.Problems, Problem{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

// Valid reports whether the validation pass found no problems.
func (r *Report) Valid() bool {
	return len(r.Problems) == 0
}

// ByKind returns the findings of one kind, in discovery order.
func (r *Report) ByKind(kind ProblemKind) []Problem {
	var out []Problem
	for _, p := range r.Problems {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Summary renders the report for operator output, one finding per line.
func (r *Report) Summary() string {
	if r.Valid() {
		return "metadata valid"
	}
	var sb strings.Builder
	for _, p := range r.Problems {
		sb.WriteString(p.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Validate checks the table against the required-column schema and the
// source directory listing. Checks are independent: a missing required
// column halts only that column's per-row checks.
func Validate(table *metadata.Table, listing []string) *Report {
	report := &Report{}

	required := []string{metadata.ColFilename, metadata.ColProject, metadata.ColDataset}
	if table.ScreenMode() {
		required = []string{metadata.ColFilename, metadata.ColScreen}
	}

	present := make(map[string]bool, len(required))
	for _, col := range required {
		if table.HasColumn(col) {
			present[col] = true
			continue
		}
		report.add(ProblemMissingColumn, "required column %q not found", col)
	}

	for i := range table.Rows {
		row := &table.Rows[i]
		for _, col := range required {
			if !present[col] {
				continue
			}
			if blankCell(structuralValue(row, col)) {
				report.add(ProblemBlankCell, "row %d: %s cannot be empty/blank", i+1, col)
			}
		}
	}

	seen := make(map[string]int, len(table.Rows))
	for i := range table.Rows {
		name := table.Rows[i].Filename
		if name == "" {
			continue
		}
		if first, dup := seen[name]; dup {
			report.add(ProblemDuplicateFilename, "filename %q appears in rows %d and %d", name, first+1, i+1)
			continue
		}
		seen[name] = i
	}

	if !table.ScreenMode() {
		crossCheckListing(report, table, listing)
	}

	return report
}

// crossCheckListing compares the metadata filenames against the literal
// directory listing, both directions. The metadata file itself, staging
// artifacts and sidecar logs are not import targets and are skipped.
func crossCheckListing(report *Report, table *metadata.Table, listing []string) {
	inTable := make(map[string]bool, len(table.Rows))
	for i := range table.Rows {
		inTable[table.Rows[i].Filename] = true
	}

	onDisk := make(map[string]bool, len(listing))
	for _, name := range listing {
		if sidecarFile(name, table.SourceFile) {
			continue
		}
		onDisk[name] = true
		if !inTable[name] {
			report.add(ProblemFileWithoutMetadata, "file without metadata: %s", name)
		}
	}

	for i := range table.Rows {
		name := table.Rows[i].Filename
		if name != "" && !onDisk[name] {
			report.add(ProblemMetadataWithoutFile, "metadata without file: %s", name)
		}
	}
}

// sidecarFile reports whether a directory entry is batch plumbing rather
// than image data: the metadata form (matched by its extension), the
// manifest and bulk-import companions, and log files.
func sidecarFile(name, metadataFile string) bool {
	base := filepath.Base(name)
	switch base {
	case ManifestFilename, FilesTSVName, ImportYMLName:
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".log" {
		return true
	}
	if metadataFile != "" && ext == strings.ToLower(filepath.Ext(metadataFile)) {
		return true
	}
	return false
}

func structuralValue(row *metadata.Row, col string) string {
	switch col {
	case metadata.ColFilename:
		return row.Filename
	case metadata.ColProject:
		return row.Project
	case metadata.ColDataset:
		return row.Dataset
	case metadata.ColScreen:
		return row.Screen
	}
	return ""
}

// blankCell matches both genuinely empty cells and the literal "nan"
// that spreadsheet exports produce for missing values.
func blankCell(value string) bool {
	return value == "" || value == "nan"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
