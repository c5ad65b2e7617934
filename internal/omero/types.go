// Package omero defines the boundary to the image-management server: the
// session gateway, the object query/management API and the bulk-import
// CLI. The pipeline only consumes these interfaces, it never reimplements
// the server side.
package omero

import (
	"context"
	"time"
)

// Object kinds used by the pipeline.
const (
	KindProject = "Project"
	KindDataset = "Dataset"
	KindScreen  = "Screen"
	KindPlate   = "Plate"
	KindImage   = "Image"
)

// ObjectID is a server-assigned object identifier.
type ObjectID int64

// Object is a minimal view of a server-side object.
type Object struct {
	ID   ObjectID
	Kind string
	Name string
}

// FindOpts narrows FindByName lookups. Zero values mean unscoped.
type FindOpts struct {
	// Project restricts dataset lookups to children of this project.
	Project ObjectID
}

// Gateway is an authenticated session with the server. Sessions support
// delegation so that server-side objects end up owned by the submitting
// user rather than the service account.
type Gateway interface {
	// ActAs opens a delegated session acting as the given user within
	// the given group.
	ActAs(ctx context.Context, user, group string, ttl time.Duration) (Gateway, error)

	// SessionKey returns the opaque key handed to the import CLI.
	SessionKey() string

	// GroupMembers returns the member shortnames of a group, or an
	// error if the group does not exist.
	GroupMembers(ctx context.Context, group string) ([]string, error)

	// UserEmail returns the email address recorded for a user.
	UserEmail(ctx context.Context, user string) (string, error)

	Close() error
}

// ObjectAPI is the object query/management surface used after import.
type ObjectAPI interface {
	FindByName(ctx context.Context, kind, name string, opts FindOpts) ([]Object, error)
	Create(ctx context.Context, kind, name string) (ObjectID, error)
	LinkChild(ctx context.Context, parent, child Object) error

	// AttachAnnotation creates a namespaced map annotation from ordered
	// key/value pairs and links it to the target object.
	AttachAnnotation(ctx context.Context, target Object, namespace string, pairs [][2]string) (ObjectID, error)

	// QueryByClientPath returns the ids of objects of the given kind
	// whose fileset was imported from the given client-side path.
	QueryByClientPath(ctx context.Context, kind, path string) ([]ObjectID, error)
}
