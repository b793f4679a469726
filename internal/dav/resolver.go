package dav

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/synthlace/gofile-dav/internal/gofile"
)

// normalizePath brings a request path into cache form: leading slash, no
// trailing slash, root as the empty string. Percent-decoding has already
// happened in the HTTP layer by the time a path reaches the filesystem, so
// only UTF-8 validity is checked here.
func normalizePath(name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", os.ErrInvalid
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	name = strings.TrimSuffix(name, "/")
	return name, nil
}

// splitPath returns the parent path and leaf name of a normalized,
// non-root path.
func splitPath(p string) (parent, leaf string) {
	i := strings.LastIndex(p, "/")
	return p[:i], p[i+1:]
}

// search resolves a path to its entry, walking down from the deepest cached
// ancestor. It returns (nil, nil) when the path does not exist.
//
// The cache stores only folder→code mappings and is never trusted for
// listings: every successful search of a folder path ends in a live fetch
// of that folder, and a stale cached code simply behaves like a deleted
// folder. Child folders seen along the way are cached under their absolute
// paths. File children that cannot be served (inaccessible or frozen) are
// dropped before anything is matched or returned.
func (fs *FileSystem) search(ctx context.Context, name string) (gofile.Entry, error) {
	p, err := normalizePath(name)
	if err != nil {
		return nil, err
	}

	// Longest-prefix cache lookup. The root is inserted at construction,
	// so the loop always terminates with a hit.
	current := p
	var code string
	for {
		if c, ok := fs.cache.Find(current); ok {
			code = c
			break
		}
		i := strings.LastIndex(current, "/")
		if i < 0 {
			return nil, fmt.Errorf("path %q has no cached ancestor", p)
		}
		current = current[:i]
	}

	for {
		entry, err := fs.client.GetContents(ctx, gofile.ParseContentID(code))
		if errors.Is(err, gofile.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		folder, ok := entry.(*gofile.FolderEntry)
		if !ok {
			// A cached folder code resolved to a file. Valid only when the
			// file itself was the target.
			if current == p {
				return entry, nil
			}
			return nil, nil
		}

		filterChildren(folder)
		for _, child := range folder.Children {
			if cf, ok := child.(*gofile.FolderEntry); ok {
				fs.cache.Insert(current+"/"+cf.Name, cf.Code)
			}
		}

		if current == p {
			return folder, nil
		}

		rest := strings.TrimPrefix(strings.TrimPrefix(p, current), "/")
		segment, _, _ := strings.Cut(rest, "/")

		var found gofile.Entry
		for _, child := range folder.Children {
			if entryName(child) == segment {
				found = child
				break
			}
		}
		if found == nil {
			return nil, nil
		}

		childPath := current + "/" + segment
		if file, ok := found.(*gofile.FileEntry); ok {
			if childPath == p {
				return file, nil
			}
			// A file cannot have path components below it.
			return nil, nil
		}

		current = childPath
		code = found.(*gofile.FolderEntry).Code
	}
}

// filterChildren removes file children the server cannot deliver.
func filterChildren(folder *gofile.FolderEntry) {
	for id, child := range folder.Children {
		if file, ok := child.(*gofile.FileEntry); ok {
			if !file.CanAccess || file.IsFrozen {
				delete(folder.Children, id)
			}
		}
	}
}

func entryName(e gofile.Entry) string {
	switch e := e.(type) {
	case *gofile.FileEntry:
		return e.Name
	case *gofile.FolderEntry:
		return e.Name
	}
	return ""
}

func entryID(e gofile.Entry) string {
	switch e := e.(type) {
	case *gofile.FileEntry:
		return e.ID.String()
	case *gofile.FolderEntry:
		return e.ID.String()
	}
	return ""
}
