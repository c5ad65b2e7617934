package batch

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imagingrc/omero-intake/internal/errors"
)

// WriteFilesTSV writes the bulk-import file listing into dir: one line
// per accepted target, tab-separated container target and staged file
// path. The bulk tool expects unquoted fields, so this is written by
// hand rather than through a csv writer.
func (m *Manifest) WriteFilesTSV(dir string) (string, error) {
	var sb strings.Builder
	for i := range m.Targets {
		t := &m.Targets[i]
		var container string
		if t.Screen != "" {
			container = fmt.Sprintf("Screen:name:%s", t.Screen)
		} else {
			container = fmt.Sprintf("Project:name:%s/Dataset:name:%s", t.Project, t.Dataset)
		}
		staged := path.Join(m.ServerPath, t.Filename)
		sb.WriteString(container)
		sb.WriteByte('\t')
		sb.WriteString(staged)
		sb.WriteByte('\n')
	}

	out := filepath.Join(dir, FilesTSVName)
	if err := os.WriteFile(out, []byte(sb.String()), 0o644); err != nil {
		return "", errors.New(err).
			Component("batch").
			Category(errors.CategoryFileIO).
			FileContext(out).
			Build()
	}
	return out, nil
}

// importYML is the bulk-import driver document layout.
type importYML struct {
	Path    string   `yaml:"path"`
	Include string   `yaml:"include,omitempty"`
	Columns []string `yaml:"columns"`
}

// WriteImportYML writes the bulk-import driver document into dir,
// pointing the tool at the staged files.tsv. includePath names the
// site-wide shared settings document and may be empty.
func (m *Manifest) WriteImportYML(dir, includePath string) (string, error) {
	doc := importYML{
		Path:    path.Join(m.ServerPath, FilesTSVName),
		Include: includePath,
		Columns: []string{"target", "path"},
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return "", errors.New(err).
			Component("batch").
			Category(errors.CategoryFileIO).
			Build()
	}
	data = append([]byte("---\n"), data...)

	out := filepath.Join(dir, ImportYMLName)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", errors.New(err).
			Component("batch").
			Category(errors.CategoryFileIO).
			FileContext(out).
			Build()
	}
	return out, nil
}
