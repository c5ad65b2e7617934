package omero

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/logging"
)

// runOutput executes a command and returns its combined stdout. Swapped
// out in tests.
type runOutput func(ctx context.Context, name string, args ...string) (string, error)

func execOutput(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// CLIClient is the exec-based Gateway and ObjectAPI implementation. It
// drives the server CLI's hql and obj subcommands and parses their line
// output. The service account is expected to hold an open session
// before any stage runs, Connect only picks up its key.
type CLIClient struct {
	Binary string
	Host   string
	Port   int

	sessionKey string
	run        runOutput
}

// NewCLIClient returns a client for the given CLI binary and server.
func NewCLIClient(binary, host string, port int) *CLIClient {
	return &CLIClient{Binary: binary, Host: host, Port: port, run: execOutput}
}

// Connect picks up the key of the service account's open session.
func (c *CLIClient) Connect(ctx context.Context) error {
	out, err := c.run(ctx, c.Binary, "sessions", "key")
	if err != nil {
		return errors.Newf("no open session: %w", err).
			Component("omero").
			Category(errors.CategoryPrivilege).
			Build()
	}
	c.sessionKey = strings.TrimSpace(out)
	if c.sessionKey == "" {
		return errors.Newf("session key not reported by CLI").
			Component("omero").
			Category(errors.CategoryPrivilege).
			Build()
	}
	return nil
}

// SessionKey returns the key of the active session.
func (c *CLIClient) SessionKey() string {
	return c.sessionKey
}

// ActAs opens a delegated session for the given user within the given
// group, so that imported objects end up owned by the submitter.
func (c *CLIClient) ActAs(ctx context.Context, user, group string, ttl time.Duration) (Gateway, error) {
	args := []string{
		"login",
		"-s", c.Host,
		"-p", strconv.Itoa(c.Port),
		"-k", c.sessionKey,
		"--sudo",
		"-u", user,
		"-g", group,
		"--timeout", strconv.Itoa(int(ttl.Seconds())),
	}
	if _, err := c.run(ctx, c.Binary, args...); err != nil {
		return nil, errors.Newf("delegated login as %q in group %q failed: %w", user, group, err).
			Component("omero").
			Category(errors.CategoryPrivilege).
			Build()
	}

	out, err := c.run(ctx, c.Binary, "sessions", "key")
	if err != nil {
		return nil, errors.Newf("delegated session key not available: %w", err).
			Component("omero").
			Category(errors.CategoryPrivilege).
			Build()
	}

	logging.ForService("omero").Info("opened delegated session", "user", user, "group", group)
	return &CLIClient{
		Binary:     c.Binary,
		Host:       c.Host,
		Port:       c.Port,
		sessionKey: strings.TrimSpace(out),
		run:        c.run,
	}, nil
}

// GroupMembers returns the member shortnames of a group.
func (c *CLIClient) GroupMembers(ctx context.Context, group string) ([]string, error) {
	rows, err := c.hql(ctx, fmt.Sprintf(
		"select m.child.omeName from GroupExperimenterMap m where m.parent.name = '%s'",
		hqlEscape(group)))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Newf("group %q has no members or does not exist", group).
			Component("omero").
			Category(errors.CategoryNotFound).
			Build()
	}
	return rows, nil
}

// UserEmail returns the email address recorded for a user.
func (c *CLIClient) UserEmail(ctx context.Context, user string) (string, error) {
	rows, err := c.hql(ctx, fmt.Sprintf(
		"select e.email from Experimenter e where e.omeName = '%s'", hqlEscape(user)))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0] == "" {
		return "", errors.Newf("no email recorded for user %q", user).
			Component("omero").
			Category(errors.CategoryNotFound).
			Build()
	}
	return rows[0], nil
}

// Close ends the session this client holds.
func (c *CLIClient) Close() error {
	if c.sessionKey == "" {
		return nil
	}
	_, err := c.run(context.Background(), c.Binary, "sessions", "logout")
	c.sessionKey = ""
	return err
}

func (c *CLIClient) FindByName(ctx context.Context, kind, name string, opts FindOpts) ([]Object, error) {
	var query string
	if kind == KindDataset && opts.Project != 0 {
		query = fmt.Sprintf(
			"select d.id from Dataset d join d.projectLinks l where l.parent.id = %d and d.name = '%s'",
			opts.Project, hqlEscape(name))
	} else {
		query = fmt.Sprintf("select o.id from %s o where o.name = '%s'", kind, hqlEscape(name))
	}
	rows, err := c.hql(ctx, query)
	if err != nil {
		return nil, err
	}
	objs := make([]Object, 0, len(rows))
	for _, row := range rows {
		id, err := strconv.ParseInt(row, 10, 64)
		if err != nil {
			return nil, cliParseError(kind, row, err)
		}
		objs = append(objs, Object{ID: ObjectID(id), Kind: kind, Name: name})
	}
	return objs, nil
}

func (c *CLIClient) Create(ctx context.Context, kind, name string) (ObjectID, error) {
	out, err := c.sessionRun(ctx, "obj", "new", kind, "name="+name)
	if err != nil {
		return 0, errors.Newf("creating %s %q failed: %w", kind, name, err).
			Component("omero").
			Category(errors.CategoryImportTool).
			Build()
	}
	return parseObjRef(kind, out)
}

// linkKinds maps a parent/child kind pair to the link object joining
// them.
var linkKinds = map[[2]string]string{
	{KindProject, KindDataset}: "ProjectDatasetLink",
	{KindDataset, KindImage}:   "DatasetImageLink",
	{KindScreen, KindPlate}:    "ScreenPlateLink",
}

func (c *CLIClient) LinkChild(ctx context.Context, parent, child Object) error {
	linkKind, ok := linkKinds[[2]string{parent.Kind, child.Kind}]
	if !ok {
		return errors.Newf("no link between %s and %s", parent.Kind, child.Kind).
			Component("omero").
			Category(errors.CategoryReconciliation).
			Build()
	}
	_, err := c.sessionRun(ctx, "obj", "new", linkKind,
		fmt.Sprintf("parent=%s:%d", parent.Kind, parent.ID),
		fmt.Sprintf("child=%s:%d", child.Kind, child.ID))
	if err != nil {
		return errors.Newf("linking %s:%d under %s:%d failed: %w",
			child.Kind, child.ID, parent.Kind, parent.ID, err).
			Component("omero").
			Category(errors.CategoryReconciliation).
			Build()
	}
	return nil
}

func (c *CLIClient) AttachAnnotation(ctx context.Context, target Object, namespace string, pairs [][2]string) (ObjectID, error) {
	out, err := c.sessionRun(ctx, "obj", "new", "MapAnnotation", "ns="+namespace)
	if err != nil {
		return 0, annotationError(target, err)
	}
	annID, err := parseObjRef("MapAnnotation", out)
	if err != nil {
		return 0, err
	}
	annRef := fmt.Sprintf("MapAnnotation:%d", annID)
	for _, kv := range pairs {
		if _, err := c.sessionRun(ctx, "obj", "map-set", annRef, "mapValue", kv[0], kv[1]); err != nil {
			return 0, annotationError(target, err)
		}
	}
	_, err = c.sessionRun(ctx, "obj", "new", target.Kind+"AnnotationLink",
		fmt.Sprintf("parent=%s:%d", target.Kind, target.ID),
		"child="+annRef)
	if err != nil {
		return 0, annotationError(target, err)
	}
	return annID, nil
}

func (c *CLIClient) QueryByClientPath(ctx context.Context, kind, path string) ([]ObjectID, error) {
	var query string
	switch kind {
	case KindPlate:
		query = fmt.Sprintf(
			"select distinct p.id from Plate p join p.plateAcquisitions pa join pa.wellSample ws join ws.image i join i.fileset fs join fs.usedFiles u where u.clientPath = '%s'",
			hqlEscape(path))
	default:
		query = fmt.Sprintf(
			"select distinct i.id from Image i join i.fileset fs join fs.usedFiles u where u.clientPath = '%s'",
			hqlEscape(path))
	}
	rows, err := c.hql(ctx, query)
	if err != nil {
		return nil, err
	}
	ids := make([]ObjectID, 0, len(rows))
	for _, row := range rows {
		id, err := strconv.ParseInt(row, 10, 64)
		if err != nil {
			return nil, cliParseError(kind, row, err)
		}
		ids = append(ids, ObjectID(id))
	}
	return ids, nil
}

// hql runs a single-column query and returns the value of each result
// row. Plain style prints one "index,value" line per row.
func (c *CLIClient) hql(ctx context.Context, query string) ([]string, error) {
	out, err := c.sessionRun(ctx, "hql", "-q", "--style", "plain", query)
	if err != nil {
		return nil, errors.Newf("query failed: %w", err).
			Component("omero").
			Category(errors.CategoryImportTool).
			Context("query", query).
			Build()
	}
	var rows []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, value, found := strings.Cut(line, ","); found {
			rows = append(rows, value)
		} else {
			rows = append(rows, line)
		}
	}
	return rows, nil
}

func (c *CLIClient) sessionRun(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-s", c.Host, "-p", strconv.Itoa(c.Port), "-k", c.sessionKey}, args...)
	return c.run(ctx, c.Binary, full...)
}

// parseObjRef extracts the numeric id from an obj-new result line such
// as "Project:123".
func parseObjRef(kind, out string) (ObjectID, error) {
	line := strings.TrimSpace(out)
	_, numText, found := strings.Cut(line, ":")
	if !found {
		return 0, cliParseError(kind, line, nil)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(numText), 10, 64)
	if err != nil {
		return 0, cliParseError(kind, line, err)
	}
	return ObjectID(id), nil
}

func cliParseError(kind, text string, cause error) error {
	b := errors.Newf("unexpected CLI output for %s: %q", kind, text).
		Component("omero").
		Category(errors.CategoryFormat)
	if cause != nil {
		b = b.Context("cause", cause.Error())
	}
	return b.Build()
}

func annotationError(target Object, cause error) error {
	return errors.Newf("annotating %s:%d failed: %w", target.Kind, target.ID, cause).
		Component("omero").
		Category(errors.CategoryReconciliation).
		Build()
}

func hqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
