package omero

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachingObjectAPI memoizes FindByName lookups for the duration of a
// run. Organization touches the same handful of project and dataset
// names once per row, so repeated round-trips are pure waste. Writes
// (Create, LinkChild) invalidate the affected name so a find-or-create
// sequence stays coherent.
type CachingObjectAPI struct {
	inner ObjectAPI
	cache *gocache.Cache
}

// NewCachingObjectAPI wraps inner with a TTL lookup cache.
func NewCachingObjectAPI(inner ObjectAPI, ttl time.Duration) *CachingObjectAPI {
	return &CachingObjectAPI{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func lookupKey(kind, name string, opts FindOpts) string {
	return fmt.Sprintf("%s|%s|%d", kind, name, opts.Project)
}

func (c *CachingObjectAPI) FindByName(ctx context.Context, kind, name string, opts FindOpts) ([]Object, error) {
	key := lookupKey(kind, name, opts)
	if hit, ok := c.cache.Get(key); ok {
		return hit.([]Object), nil
	}
	objs, err := c.inner.FindByName(ctx, kind, name, opts)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, objs)
	return objs, nil
}

func (c *CachingObjectAPI) Create(ctx context.Context, kind, name string) (ObjectID, error) {
	id, err := c.inner.Create(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	// Drop every cached lookup for this name; scoped variants share it.
	c.cache.Flush()
	return id, nil
}

func (c *CachingObjectAPI) LinkChild(ctx context.Context, parent, child Object) error {
	if err := c.inner.LinkChild(ctx, parent, child); err != nil {
		return err
	}
	c.cache.Flush()
	return nil
}

func (c *CachingObjectAPI) AttachAnnotation(ctx context.Context, target Object, namespace string, pairs [][2]string) (ObjectID, error) {
	return c.inner.AttachAnnotation(ctx, target, namespace, pairs)
}

func (c *CachingObjectAPI) QueryByClientPath(ctx context.Context, kind, path string) ([]ObjectID, error) {
	return c.inner.QueryByClientPath(ctx, kind, path)
}
