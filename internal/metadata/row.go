// Package metadata loads user-submitted metadata forms into a normalized
// in-memory table. One table row corresponds to one import target file.
package metadata

import "slices"

// Structural column names. Everything else in a row is free-form
// annotation data.
const (
	ColFilename = "filename"
	ColProject  = "project"
	ColDataset  = "dataset"
	ColScreen   = "screen"
)

// Row is one metadata form entry describing a single file.
type Row struct {
	Filename string
	Project  string
	Dataset  string
	Screen   string

	// Extra holds the non-structural columns. extraKeys preserves the
	// original column order so downstream output is deterministic.
	Extra     map[string]string
	extraKeys []string
}

// SetExtra records a non-structural column value, preserving first-set
// key order.
func (r *Row) SetExtra(key, value string) {
	if r.Extra == nil {
		r.Extra = make(map[string]string)
	}
	if _, seen := r.Extra[key]; !seen {
		r.extraKeys = append(r.extraKeys, key)
	}
	r.Extra[key] = value
}

// ExtraKeys returns the non-structural column names in form order.
func (r *Row) ExtraKeys() []string {
	return slices.Clone(r.extraKeys)
}

// Table is the normalized metadata table plus the two header fields that
// identify the owning account.
type Table struct {
	User    string   // owning user shortname, from the form header
	Group   string   // owning group, from the form header
	Columns []string // column names in form order, lower-cased
	Rows    []Row    // data rows in form order

	SourceFile string // path the table was loaded from
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// ScreenMode reports whether the form describes a screen/plate import
// rather than a project/dataset one.
func (t *Table) ScreenMode() bool {
	return t.HasColumn(ColScreen)
}

// Filenames returns the filename column values in row order.
func (t *Table) Filenames() []string {
	names := make([]string, 0, len(t.Rows))
	for i := range t.Rows {
		names = append(names, t.Rows[i].Filename)
	}
	return names
}
