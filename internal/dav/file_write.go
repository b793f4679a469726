package dav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/synthlace/gofile-dav/internal/gofile"
)

// writeFile is an open file handle that streams written bytes into a
// multipart upload running in a background goroutine. Chunks travel through
// a single-slot channel, so the writer can never run ahead of the uploader
// by more than one chunk. Closing the handle signals EOF, waits for the
// upload to finish, and then deletes any same-named file siblings, which
// gives PUT its overwrite semantics on a service that has none.
type writeFile struct {
	ctx context.Context
	fs  *FileSystem

	// name is the normalized target path.
	name string

	started     bool
	ch          chan []byte
	done        chan uploadResult
	result      uploadResult
	resultReady bool

	finished  bool
	finishErr error
	uploaded  *gofile.FileUploaded

	parentID   string
	parentPath string
	leaf       string
}

type uploadResult struct {
	info *gofile.FileUploaded
	err  error
}

func newWriteFile(ctx context.Context, fs *FileSystem, name string) *writeFile {
	return &writeFile{ctx: ctx, fs: fs, name: name}
}

// start resolves the parent folder and launches the background upload.
func (f *writeFile) start() error {
	parentPath, leaf := splitPath(f.name)
	if leaf == "" {
		return os.ErrInvalid
	}
	entry, err := f.fs.search(f.ctx, parentPath)
	if err != nil {
		return f.fs.mapError("write", f.name, err)
	}
	if entry == nil {
		return os.ErrNotExist
	}
	folder, ok := entry.(*gofile.FolderEntry)
	if !ok {
		return os.ErrNotExist
	}

	f.parentID = folder.ID.String()
	f.parentPath = parentPath
	f.leaf = leaf
	f.ch = make(chan []byte, 1)
	f.done = make(chan uploadResult, 1)
	f.started = true

	go func() {
		info, err := f.fs.client.UploadFile(f.ctx, f.parentID, f.leaf, &chunkReader{ch: f.ch})
		f.done <- uploadResult{info: info, err: err}
	}()
	return nil
}

func (f *writeFile) Write(p []byte) (int, error) {
	if f.finished {
		return 0, os.ErrClosed
	}
	if !f.started {
		if err := f.start(); err != nil {
			return 0, err
		}
	}

	// The handler reuses p, so the chunk must be copied before it crosses
	// the channel.
	chunk := append([]byte(nil), p...)

	select {
	case f.ch <- chunk:
		return len(p), nil
	case res := <-f.done:
		// The uploader only finishes early when the upload failed.
		f.result = res
		f.resultReady = true
		if res.err != nil {
			return 0, res.err
		}
		return 0, errors.New("upload completed before all data was written")
	case <-f.ctx.Done():
		return 0, f.ctx.Err()
	}
}

// finish flushes the handle: EOF to the uploader, wait for its result, then
// replace-by-name. A handle that was never written to still produces a
// zero-byte file. Idempotent; the first outcome sticks.
func (f *writeFile) finish() error {
	if f.finished {
		return f.finishErr
	}
	f.finished = true
	f.finishErr = f.doFinish()
	return f.finishErr
}

func (f *writeFile) doFinish() error {
	if !f.started {
		if err := f.start(); err != nil {
			return err
		}
	}
	close(f.ch)

	res := f.result
	if !f.resultReady {
		select {
		case res = <-f.done:
		case <-f.ctx.Done():
			return f.ctx.Err()
		}
	}
	if res.err != nil {
		return res.err
	}
	f.uploaded = res.info

	return f.replaceByName()
}

// replaceByName deletes every file sibling that shares the target name but
// is not the freshly uploaded file.
func (f *writeFile) replaceByName() error {
	entry, err := f.fs.search(f.ctx, f.parentPath)
	if err != nil {
		return f.fs.mapError("write", f.name, err)
	}
	folder, ok := entry.(*gofile.FolderEntry)
	if !ok {
		return os.ErrNotExist
	}

	var stale []string
	for _, child := range folder.Children {
		file, ok := child.(*gofile.FileEntry)
		if !ok {
			continue
		}
		if file.Name == f.leaf && file.ID != f.uploaded.ID {
			stale = append(stale, file.ID.String())
		}
	}
	if len(stale) == 0 {
		return nil
	}

	results, err := f.fs.client.DeleteContents(f.ctx, stale)
	if err != nil {
		return f.fs.mapError("write", f.name, err)
	}
	for id, result := range results {
		if err := result.Err(); err != nil {
			return fmt.Errorf("deleting replaced file %s: %w", id, err)
		}
	}
	return nil
}

// abort shuts the uploader down without replace-by-name. Used when a copy
// into this handle failed midway: the partial upload is orphaned, no
// rollback is attempted.
func (f *writeFile) abort() {
	if f.finished || !f.started {
		f.finished = true
		f.finishErr = os.ErrClosed
		return
	}
	f.finished = true
	f.finishErr = os.ErrClosed
	close(f.ch)
	if !f.resultReady {
		<-f.done
	}
}

func (f *writeFile) Close() error {
	return f.finish()
}

// Stat reports the uploaded file's metadata. The handler asks for it after
// writing the request body, so the flush happens here and Close becomes a
// no-op.
func (f *writeFile) Stat() (os.FileInfo, error) {
	if err := f.finish(); err != nil {
		return nil, err
	}
	return uploadedInfo(f.uploaded), nil
}

func (f *writeFile) Read(p []byte) (int, error) {
	return 0, os.ErrPermission
}

func (f *writeFile) Seek(offset int64, whence int) (int64, error) {
	return 0, os.ErrInvalid
}

func (f *writeFile) Readdir(count int) ([]os.FileInfo, error) {
	return nil, os.ErrInvalid
}

// chunkReader adapts the chunk channel to io.Reader for the multipart body.
// A closed channel reads as EOF.
type chunkReader struct {
	ch   <-chan []byte
	rest []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		chunk, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.rest = chunk
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}
