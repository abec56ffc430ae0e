package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// NewMultipartBody builds a single-file multipart form body and returns it
// with its boundary-bearing content type.
func NewMultipartBody(field, filename string, content io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", fmt.Errorf("api: create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", fmt.Errorf("api: copy form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("api: finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
