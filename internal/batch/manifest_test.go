package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/metadata"
)

func readyBatch(t *testing.T) *Batch {
	t.Helper()
	b := New("/drop/djme_20240301")
	b.User = "djme"
	b.Group = "Research IT"
	b.UserEmail = "djme@example.org"
	b.ServerPath = "/hyperfile/omero/autoimport/research_it/djme_20240301_143005"
	b.Report = &Report{}

	r1 := metadata.Row{Filename: "a.tif", Project: "P", Dataset: "D1"}
	r1.SetExtra("stain", "DAPI")
	r1.SetExtra("magnification", "40x")
	r2 := metadata.Row{Filename: "b.tif", Project: "P", Dataset: "D2"}
	b.Targets = []ImportTarget{
		{Row: r1, Path: "/drop/djme_20240301/a.tif"},
		{Row: r2, Path: "/drop/djme_20240301/b.tif"},
	}
	return b
}

func TestBuildManifest(t *testing.T) {
	b := readyBatch(t)
	now := time.Date(2024, 3, 1, 14, 30, 5, 0, time.UTC)

	m, err := b.BuildManifest(now)
	require.NoError(t, err)
	assert.Equal(t, "djme", m.User)
	assert.Equal(t, "djme@example.org", m.UserEmail)
	require.Len(t, m.Targets, 2)
	assert.Equal(t, "a.tif", m.Targets[0].Filename)
	// Annotation pairs keep form column order.
	assert.Equal(t, []KV{{Key: "stain", Value: "DAPI"}, {Key: "magnification", Value: "40x"}}, m.Targets[0].Annotations)
	assert.False(t, m.ScreenMode())
}

func TestBuildManifestPreconditions(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name   string
		mutate func(*Batch)
	}{
		{"missing email", func(b *Batch) { b.UserEmail = "" }},
		{"missing server path", func(b *Batch) { b.ServerPath = "" }},
		{"invalid report", func(b *Batch) { b.Report.add(ProblemDuplicateFilename, "dup") }},
		{"no report", func(b *Batch) { b.Report = nil }},
		{"no targets", func(b *Batch) { b.Targets = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := readyBatch(t)
			tc.mutate(b)
			_, err := b.BuildManifest(now)
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryState))
		})
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := readyBatch(t)
	now := time.Date(2024, 3, 1, 14, 30, 5, 0, time.UTC)

	m, err := b.BuildManifest(now)
	require.NoError(t, err)
	path, err := m.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ManifestFilename), path)

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestManifestDeterministicBytes(t *testing.T) {
	b := readyBatch(t)
	now := time.Date(2024, 3, 1, 14, 30, 5, 0, time.UTC)

	dir1, dir2 := t.TempDir(), t.TempDir()
	m1, err := b.BuildManifest(now)
	require.NoError(t, err)
	m2, err := b.BuildManifest(now)
	require.NoError(t, err)

	p1, err := m1.Write(dir1)
	require.NoError(t, err)
	p2, err := m2.Write(dir2)
	require.NoError(t, err)

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestReadManifestMissing(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), ManifestFilename))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestWriteFilesTSV(t *testing.T) {
	dir := t.TempDir()
	b := readyBatch(t)
	m, err := b.BuildManifest(time.Now())
	require.NoError(t, err)

	path, err := m.WriteFilesTSV(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "Project:name:P/Dataset:name:D1\t" + m.ServerPath + "/a.tif\n" +
		"Project:name:P/Dataset:name:D2\t" + m.ServerPath + "/b.tif\n"
	assert.Equal(t, want, string(data))
}

func TestWriteFilesTSVScreenMode(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		ServerPath: "/hyperfile/omero/autoimport/hcs/plates_1",
		Targets: []ManifestTarget{
			{Filename: "plate1.h5", Screen: "Screen A"},
		},
	}
	path, err := m.WriteFilesTSV(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Screen:name:Screen A\t/hyperfile/omero/autoimport/hcs/plates_1/plate1.h5\n", string(data))
	assert.True(t, m.ScreenMode())
}

func TestWriteImportYML(t *testing.T) {
	dir := t.TempDir()
	b := readyBatch(t)
	m, err := b.BuildManifest(time.Now())
	require.NoError(t, err)

	path, err := m.WriteImportYML(dir, "/hyperfile/omero/import_base.yml")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "path: "+m.ServerPath+"/files.tsv")
	assert.Contains(t, text, "include: /hyperfile/omero/import_base.yml")
	assert.Contains(t, text, "- target")
	assert.Contains(t, text, "- path")
}
