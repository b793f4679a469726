// Package dav exposes a gofile folder tree as a webdav.FileSystem.
//
// Every callback resolves its path through the directory cache and a live
// fetch, translates the verb into gofile API calls, and maps gofile errors
// onto the os sentinels the webdav handler turns into HTTP statuses.
package dav

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/net/webdav"

	"github.com/synthlace/gofile-dav/internal/dircache"
	"github.com/synthlace/gofile-dav/internal/gofile"
)

// copyChunkSize is the buffer size used when a cross-directory move has to
// fall back to stream copying.
const copyChunkSize = 16384

// FileSystem implements webdav.FileSystem on top of the gofile API.
type FileSystem struct {
	client   *gofile.Client
	cache    *dircache.Cache
	readOnly bool
	logger   zerolog.Logger
}

var _ webdav.FileSystem = (*FileSystem)(nil)

// NewFileSystem builds the filesystem façade. The cache must be seeded with
// the code of the folder to expose as the root.
func NewFileSystem(client *gofile.Client, cache *dircache.Cache, readOnly bool, logger zerolog.Logger) *FileSystem {
	return &FileSystem{client: client, cache: cache, readOnly: readOnly, logger: logger}
}

// mapError converts client errors into the sentinels the webdav handler
// understands; anything unrecognized passes through and surfaces as a
// general failure.
func (fs *FileSystem) mapError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gofile.ErrNotFound):
		return os.ErrNotExist
	case gofile.IsPasswordError(err):
		return os.ErrPermission
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission), errors.Is(err, os.ErrInvalid):
		return err
	default:
		fs.logger.Error().Err(err).Str("op", op).Str("path", name).Msg("remote operation failed")
		return err
	}
}

// Mkdir implements webdav.FileSystem. Creating a directory that already
// exists is a successful no-op.
func (fs *FileSystem) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	if fs.readOnly {
		return os.ErrPermission
	}
	p, err := normalizePath(name)
	if err != nil {
		return err
	}
	if p == "" {
		return os.ErrExist
	}

	parentPath, leaf := splitPath(p)
	entry, err := fs.search(ctx, parentPath)
	if err != nil {
		return fs.mapError("mkdir", name, err)
	}
	if entry == nil {
		return os.ErrNotExist
	}
	folder, ok := entry.(*gofile.FolderEntry)
	if !ok {
		return os.ErrNotExist
	}

	for _, child := range folder.Children {
		if entryName(child) == leaf {
			return nil
		}
	}

	created, err := fs.client.CreateFolder(ctx, folder.ID.String(), leaf)
	if err != nil {
		return fs.mapError("mkdir", name, err)
	}
	fs.cache.Insert(p, created.Code)
	return nil
}

// OpenFile implements webdav.FileSystem. Read opens resolve immediately;
// write opens make no API call until the first write or the flush, and a
// flush without any write uploads an empty file. Appends and partial
// overwrites are not supported, the upload API only ever creates whole files.
func (fs *FileSystem) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	p, err := normalizePath(name)
	if err != nil {
		return nil, err
	}

	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		if fs.readOnly {
			return nil, os.ErrPermission
		}
		if flag&os.O_APPEND != 0 {
			return nil, os.ErrInvalid
		}
		if p == "" {
			return nil, os.ErrPermission
		}
		return newWriteFile(ctx, fs, p), nil
	}

	entry, err := fs.search(ctx, p)
	if err != nil {
		return nil, fs.mapError("open", name, err)
	}
	if entry == nil {
		return nil, os.ErrNotExist
	}
	switch e := entry.(type) {
	case *gofile.FileEntry:
		return newReadFile(ctx, fs.client, e), nil
	case *gofile.FolderEntry:
		return newDirFile(e), nil
	}
	return nil, os.ErrInvalid
}

// RemoveAll implements webdav.FileSystem. Despite the interface name,
// deletion is not recursive: removing a non-empty directory is refused, and
// the exposed root can never be removed.
func (fs *FileSystem) RemoveAll(ctx context.Context, name string) error {
	if fs.readOnly {
		return os.ErrPermission
	}
	p, err := normalizePath(name)
	if err != nil {
		return err
	}
	if p == "" {
		return os.ErrPermission
	}

	entry, err := fs.search(ctx, p)
	if err != nil {
		return fs.mapError("remove", name, err)
	}
	if entry == nil {
		return os.ErrNotExist
	}
	if folder, ok := entry.(*gofile.FolderEntry); ok && len(folder.Children) > 0 {
		return os.ErrPermission
	}

	return fs.deleteByID(ctx, name, entryID(entry))
}

func (fs *FileSystem) deleteByID(ctx context.Context, name string, id string) error {
	results, err := fs.client.DeleteContents(ctx, []string{id})
	if err != nil {
		return fs.mapError("remove", name, err)
	}
	for _, result := range results {
		if err := result.Err(); err != nil {
			return fs.mapError("remove", name, err)
		}
	}
	return nil
}

// Rename implements webdav.FileSystem. Within one directory it is a name
// update on the API, replacing a same-named destination file. Across
// directories the API cannot move anything, so files are stream-copied and
// the source deleted; folders are refused.
func (fs *FileSystem) Rename(ctx context.Context, oldName, newName string) error {
	if fs.readOnly {
		return os.ErrPermission
	}
	oldPath, err := normalizePath(oldName)
	if err != nil {
		return err
	}
	newPath, err := normalizePath(newName)
	if err != nil {
		return err
	}
	if oldPath == "" || newPath == "" {
		return os.ErrPermission
	}
	if oldPath == newPath {
		return nil
	}

	src, err := fs.search(ctx, oldPath)
	if err != nil {
		return fs.mapError("rename", oldName, err)
	}
	if src == nil {
		return os.ErrNotExist
	}
	dst, err := fs.search(ctx, newPath)
	if err != nil {
		return fs.mapError("rename", newName, err)
	}

	oldParent, _ := splitPath(oldPath)
	newParent, newLeaf := splitPath(newPath)

	if dst != nil {
		// Only a plain file may be replaced, and only by a file.
		if dst.IsDir() || src.IsDir() {
			return os.ErrExist
		}
	}

	if oldParent == newParent {
		if err := fs.client.RenameContent(ctx, entryID(src), newLeaf); err != nil {
			return fs.mapError("rename", oldName, err)
		}
		if srcFolder, ok := src.(*gofile.FolderEntry); ok {
			fs.cache.Insert(newPath, srcFolder.Code)
		}
		if dst != nil {
			return fs.deleteByID(ctx, newName, entryID(dst))
		}
		return nil
	}

	srcFile, ok := src.(*gofile.FileEntry)
	if !ok {
		// No server-side move exists for folders.
		return webdav.ErrNotImplemented
	}
	if err := fs.copyFile(ctx, srcFile, newPath); err != nil {
		return err
	}
	return fs.deleteByID(ctx, oldName, srcFile.ID.String())
}

// copyFile streams a file's bytes into a fresh upload at dstPath. The write
// handle's replace-by-name pass takes care of an existing destination file.
func (fs *FileSystem) copyFile(ctx context.Context, src *gofile.FileEntry, dstPath string) error {
	reader := newReadFile(ctx, fs.client, src)
	defer reader.Close()

	writer := newWriteFile(ctx, fs, dstPath)
	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(writer, reader, buf); err != nil {
		writer.abort()
		return fs.mapError("copy", dstPath, err)
	}
	if err := writer.finish(); err != nil {
		return fs.mapError("copy", dstPath, err)
	}
	return nil
}

// Stat implements webdav.FileSystem.
func (fs *FileSystem) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	entry, err := fs.search(ctx, name)
	if err != nil {
		return nil, fs.mapError("stat", name, err)
	}
	if entry == nil {
		return nil, os.ErrNotExist
	}
	return newFileInfo(entry), nil
}

// dirFile is the handle returned for folders, serving directory listings
// out of the snapshot the resolver produced.
type dirFile struct {
	entry *gofile.FolderEntry
	infos []os.FileInfo
	off   int
}

func newDirFile(entry *gofile.FolderEntry) *dirFile {
	infos := make([]os.FileInfo, 0, len(entry.Children))
	for _, child := range entry.Children {
		infos = append(infos, newFileInfo(child))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return &dirFile{entry: entry, infos: infos}
}

func (d *dirFile) Readdir(count int) ([]os.FileInfo, error) {
	if count <= 0 {
		rest := d.infos[d.off:]
		d.off = len(d.infos)
		return rest, nil
	}
	if d.off >= len(d.infos) {
		return nil, io.EOF
	}
	end := d.off + count
	if end > len(d.infos) {
		end = len(d.infos)
	}
	batch := d.infos[d.off:end]
	d.off = end
	return batch, nil
}

func (d *dirFile) Stat() (os.FileInfo, error) {
	return newFileInfo(d.entry), nil
}

func (d *dirFile) Read(p []byte) (int, error)  { return 0, os.ErrInvalid }
func (d *dirFile) Write(p []byte) (int, error) { return 0, os.ErrPermission }

func (d *dirFile) Seek(offset int64, whence int) (int64, error) {
	return 0, os.ErrInvalid
}

func (d *dirFile) Close() error { return nil }
