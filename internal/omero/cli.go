package omero

import (
	"context"
	"os/exec"
	"strconv"

	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/logging"
)

// ImportCLI wraps the external bulk-import tool. The dry-run probe needs
// no session, it only checks that the file format is readable. The real
// import is session-bound and ingests pixel data in place.
type ImportCLI interface {
	// Probe runs a dry-run format check against a single file. A nil
	// return means the file is structurally importable.
	Probe(ctx context.Context, path string) error

	// Import ingests a staged file using an in-place transfer under the
	// given session.
	Import(ctx context.Context, sessionKey, host string, port int, path string) error
}

// runCommand is swapped out in tests.
type runCommand func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// CLIRunner is the exec-based ImportCLI implementation.
type CLIRunner struct {
	// Binary is the path to the import CLI executable.
	Binary string

	run runCommand
}

// NewCLIRunner returns a runner for the given binary path.
func NewCLIRunner(binary string) *CLIRunner {
	return &CLIRunner{Binary: binary, run: execRun}
}

func (c *CLIRunner) Probe(ctx context.Context, path string) error {
	if err := c.run(ctx, c.Binary, "import", "-f", path); err != nil {
		return errors.Newf("format probe rejected %s: %w", path, err).
			Component("import-cli").
			Category(errors.CategoryImportTool).
			FileContext(path).
			Build()
	}
	return nil
}

func (c *CLIRunner) Import(ctx context.Context, sessionKey, host string, port int, path string) error {
	log := logging.ForService("import-cli")
	log.Info("starting import", "path", path, "host", host)

	args := []string{
		"import",
		"-k", sessionKey,
		"-s", host,
		"-p", strconv.Itoa(port),
		"--transfer", "ln_s",
		path,
	}
	if err := c.run(ctx, c.Binary, args...); err != nil {
		return errors.Newf("import of %s failed: %w", path, err).
			Component("import-cli").
			Category(errors.CategoryImportTool).
			FileContext(path).
			Build()
	}
	log.Info("import finished", "path", path)
	return nil
}
