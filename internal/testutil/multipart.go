// multipart.go - Multipart request builders for handler tests
package testutil

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

// FilePart is one file attached to a multipart body.
type FilePart struct {
	Filename string
	Data     []byte
}

// File is shorthand for a FilePart with text content.
func File(filename, content string) FilePart {
	return FilePart{Filename: filename, Data: []byte(content)}
}

// MultipartBody encodes parts under field and returns the body and its
// Content-Type header value.
func MultipartBody(t testing.TB, field string, parts ...FilePart) (*bytes.Buffer, string) {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, p := range parts {
		part, err := writer.CreateFormFile(field, p.Filename)
		if err != nil {
			t.Fatalf("creating form file %q: %v", p.Filename, err)
		}
		if _, err := part.Write(p.Data); err != nil {
			t.Fatalf("writing form file %q: %v", p.Filename, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

// NewUploadRequest builds a POST request carrying parts under field.
func NewUploadRequest(t testing.TB, target, field string, parts ...FilePart) *http.Request {
	t.Helper()

	body, contentType := MultipartBody(t, field, parts...)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	return req
}
