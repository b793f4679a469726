package gofile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// UploadFile streams content as a multipart POST to the upload origin,
// creating a file named name in the folder with id folderID. The body is
// consumed as it is sent; nothing is buffered on disk. Because the body
// cannot be replayed, upload requests are not retried.
func (c *Client) UploadFile(ctx context.Context, folderID, name string, content io.Reader) (*FileUploaded, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(form, token, folderID, name, content)
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", refererURL)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}
	if resp.StatusCode >= 500 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	data, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	var uploaded FileUploaded
	if err := json.Unmarshal(data, &uploaded); err != nil {
		return nil, fmt.Errorf("gofile: decoding upload result: %w", err)
	}
	return &uploaded, nil
}

func writeUploadForm(form *multipart.Writer, token, folderID, name string, content io.Reader) error {
	if err := form.WriteField("token", token); err != nil {
		return err
	}
	if err := form.WriteField("folderId", folderID); err != nil {
		return err
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return form.Close()
}
