package dav

import (
	"context"
	"os"
	"time"

	"golang.org/x/net/webdav"

	"github.com/synthlace/gofile-dav/internal/gofile"
)

// fileInfo adapts a gofile entry to os.FileInfo. It also implements the
// webdav handler's optional ContentTyper and ETager interfaces, serving the
// mimetype and MD5 the API already delivered instead of having the handler
// sniff or synthesize them.
type fileInfo struct {
	name        string
	size        int64
	mode        os.FileMode
	modTime     time.Time
	contentType string
	etag        string
}

func newFileInfo(e gofile.Entry) *fileInfo {
	switch e := e.(type) {
	case *gofile.FileEntry:
		return &fileInfo{
			name:        e.Name,
			size:        int64(e.Size),
			mode:        0o644,
			modTime:     time.Unix(e.ModTime, 0),
			contentType: e.Mimetype,
			etag:        e.MD5,
		}
	case *gofile.FolderEntry:
		name := e.Name
		if name == "" {
			name = "/"
		}
		return &fileInfo{
			name:    name,
			size:    int64(e.TotalSize),
			mode:    os.ModeDir | 0o755,
			modTime: time.Unix(e.ModTime, 0),
		}
	}
	return &fileInfo{name: "?", mode: 0}
}

func uploadedInfo(u *gofile.FileUploaded) *fileInfo {
	return &fileInfo{
		name:        u.Name,
		size:        int64(u.Size),
		mode:        0o644,
		modTime:     time.Unix(u.ModTime, 0),
		contentType: u.Mimetype,
		etag:        u.MD5,
	}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *fileInfo) Sys() any           { return nil }

// ContentType implements webdav.ContentTyper.
func (fi *fileInfo) ContentType(ctx context.Context) (string, error) {
	if fi.contentType == "" {
		return "", webdav.ErrNotImplemented
	}
	return fi.contentType, nil
}

// ETag implements webdav.ETager.
func (fi *fileInfo) ETag(ctx context.Context) (string, error) {
	if fi.etag == "" {
		return "", webdav.ErrNotImplemented
	}
	return `"` + fi.etag + `"`, nil
}
