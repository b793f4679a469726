package dav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/synthlace/gofile-dav/internal/gofile"
)

// readFile is an open file handle backed by a range GET against the file's
// download link. The HTTP body is opened lazily on the first read at the
// current position and discarded whenever a seek moves elsewhere, so a
// plain sequential GET costs exactly one upstream request.
type readFile struct {
	ctx    context.Context
	client *gofile.Client
	file   *gofile.FileEntry

	pos  int64
	body io.ReadCloser
}

func newReadFile(ctx context.Context, client *gofile.Client, file *gofile.FileEntry) *readFile {
	return &readFile{ctx: ctx, client: client, file: file}
}

func (f *readFile) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.pos >= int64(f.file.Size) {
		return 0, io.EOF
	}
	if f.body == nil {
		if err := f.openStream(); err != nil {
			return 0, err
		}
	}
	n, err := f.body.Read(p)
	f.pos += int64(n)
	return n, err
}

// openStream issues the range GET starting at the current position. The
// bearer token stays off requests to bypass proxy links.
func (f *readFile) openStream() error {
	req, err := f.client.DownloadRequest(f.ctx, f.file.Link, f.file.Bypassed)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", f.pos))

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return fmt.Errorf("download of %s: unexpected status %d", f.file.ID, resp.StatusCode)
	}
	f.body = resp.Body
	return nil
}

func (f *readFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = int64(f.file.Size)
	default:
		return 0, os.ErrInvalid
	}

	pos := base + offset
	if pos < 0 || pos > int64(f.file.Size) {
		return 0, fmt.Errorf("seek position out of bounds: %w", os.ErrInvalid)
	}
	if pos != f.pos && f.body != nil {
		f.body.Close()
		f.body = nil
	}
	f.pos = pos
	return pos, nil
}

func (f *readFile) Stat() (os.FileInfo, error) {
	return newFileInfo(f.file), nil
}

func (f *readFile) Write(p []byte) (int, error) {
	return 0, os.ErrPermission
}

func (f *readFile) Readdir(count int) ([]os.FileInfo, error) {
	return nil, os.ErrInvalid
}

func (f *readFile) Close() error {
	if f.body != nil {
		err := f.body.Close()
		f.body = nil
		return err
	}
	return nil
}
