// Package dircache maps absolute directory paths to gofile folder codes.
//
// The cache only ever grows: entries are inserted on successful folder
// lookups and never invalidated. Path resolution always confirms a cached
// code by fetching the folder's contents, so a stale code costs one extra
// API call rather than wrong results.
package dircache

import (
	gocache "github.com/patrickmn/go-cache"
)

// RootPath is the cache key of the exposed root folder: paths are stored
// with a leading slash and no trailing slash, which leaves the root itself
// as the empty string.
const RootPath = ""

// Cache is a concurrency-safe path to folder-code mapping.
type Cache struct {
	store *gocache.Cache
}

// New returns a cache pre-seeded with the root folder's code.
func New(rootCode string) *Cache {
	c := &Cache{store: gocache.New(gocache.NoExpiration, 0)}
	c.Insert(RootPath, rootCode)
	return c
}

// Find looks up the folder code for an absolute path.
func (c *Cache) Find(path string) (string, bool) {
	v, ok := c.store.Get(path)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Insert records the folder code for an absolute path, silently overwriting
// any previous value.
func (c *Cache) Insert(path, code string) {
	c.store.Set(path, code, gocache.NoExpiration)
}
