// handlers_upload_test.go - Tests for upload handlers
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/draganddrop/backend/internal/models"
	"github.com/draganddrop/backend/internal/testutil"
	"github.com/draganddrop/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// classifierFunc adapts a function to the Classifier interface.
type classifierFunc func(ctx context.Context, src upload.Source) (*models.UploadResponse, error)

func (f classifierFunc) ClassifySource(ctx context.Context, src upload.Source) (*models.UploadResponse, error) {
	return f(ctx, src)
}

var binary = string([]byte{0xff, 0xfe, 0xfd, 0x00, 0x80})

func TestUploadHandler_HandleUpload(t *testing.T) {
	tests := []struct {
		name  string
		parts []testutil.FilePart
		want  []models.FileContent
	}{
		{
			name:  "all text files keep input order",
			parts: []testutil.FilePart{testutil.File("a.txt", "hello"), testutil.File("b.py", "print(1)\n")},
			want: []models.FileContent{
				{Filename: "a.txt", Content: "hello"},
				{Filename: "b.py", Content: "print(1)\n"},
			},
		},
		{
			name:  "undecodable file gets placeholder",
			parts: []testutil.FilePart{testutil.File("notes.txt", binary)},
			want:  []models.FileContent{{Filename: "notes.txt", Content: upload.Placeholder}},
		},
		{
			name:  "only a compiled python file",
			parts: []testutil.FilePart{testutil.File("module.pyc", binary)},
			want:  []models.FileContent{},
		},
		{
			name: "compiled python file is dropped from the middle",
			parts: []testutil.FilePart{
				testutil.File("A", "hello"),
				testutil.File("x.pyc", binary),
				testutil.File("C", "world"),
			},
			want: []models.FileContent{
				{Filename: "A", Content: "hello"},
				{Filename: "C", Content: "world"},
			},
		},
		{
			name: "decoded files precede placeholders",
			parts: []testutil.FilePart{
				testutil.File("a.txt", binary),
				testutil.File("B", "ok"),
			},
			want: []models.FileContent{
				{Filename: "B", Content: "ok"},
				{Filename: "a.txt", Content: upload.Placeholder},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewUploadHandler(upload.NewClassifier(), 0)

			e := echo.New()
			req := testutil.NewUploadRequest(t, "/api/upload", FilesField, tt.parts...)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, handler.HandleUpload(c))
			assert.Equal(t, http.StatusOK, rec.Code)

			var response models.UploadResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Equal(t, tt.want, response.Files)
		})
	}
}

func TestUploadHandler_EmptyFilesSerializeAsArray(t *testing.T) {
	handler := NewUploadHandler(upload.NewClassifier(), 0)

	e := echo.New()
	req := testutil.NewUploadRequest(t, "/api/upload", FilesField, testutil.File("only.pyo", binary))
	rec := httptest.NewRecorder()

	require.NoError(t, handler.HandleUpload(e.NewContext(req, rec)))
	assert.JSONEq(t, `{"files":[]}`, rec.Body.String())
}

func TestUploadHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name        string
		request     func(t *testing.T) *http.Request
		wantStatus  int
		wantMessage string
	}{
		{
			name: "wrong field name",
			request: func(t *testing.T) *http.Request {
				return testutil.NewUploadRequest(t, "/api/upload", "file", testutil.File("a.txt", "x"))
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "No files provided.",
		},
		{
			name: "no parts",
			request: func(t *testing.T) *http.Request {
				return testutil.NewUploadRequest(t, "/api/upload", FilesField)
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "No files provided.",
		},
		{
			name: "not multipart",
			request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"files":[]}`))
				req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
				return req
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "No files provided.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewUploadHandler(classifierFunc(func(context.Context, upload.Source) (*models.UploadResponse, error) {
				called = true
				return models.NewUploadResponse(nil), nil
			}), 0)

			e := echo.New()
			rec := httptest.NewRecorder()
			err := handler.HandleUpload(e.NewContext(tt.request(t), rec))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Detail)
			assert.False(t, called)
		})
	}
}

func TestUploadHandler_PassesClassifierErrorThrough(t *testing.T) {
	want := &upload.Error{Kind: upload.KindFileTooLarge, Filename: "a.txt", Detail: "File a.txt is too large to process."}
	handler := NewUploadHandler(classifierFunc(func(_ context.Context, src upload.Source) (*models.UploadResponse, error) {
		item, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, "a.txt", item.Filename)

		rc, err := item.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(data))

		_, err = src.Next()
		assert.ErrorIs(t, err, io.EOF)
		return nil, want
	}), 0)

	e := echo.New()
	req := testutil.NewUploadRequest(t, "/api/upload", FilesField, testutil.File("a.txt", "abc"))
	rec := httptest.NewRecorder()

	err := handler.HandleUpload(e.NewContext(req, rec))
	assert.Same(t, want, err)
	assert.Empty(t, rec.Body.String())
}

func TestUploadHandler_SkipsOtherFormFields(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("note", "ignored"))
	part, err := writer.CreateFormFile(FilesField, "a.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("other", "ignored"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()

	require.NoError(t, NewUploadHandler(upload.NewClassifier(), 0).HandleUpload(echo.New().NewContext(req, rec)))
	assert.JSONEq(t, `{"files":[{"filename":"a.txt","content":"hello"}]}`, rec.Body.String())
}

func TestUploadHandler_BodyLimitNamesFile(t *testing.T) {
	tests := []struct {
		name       string
		parts      []testutil.FilePart
		wantDetail string
	}{
		{
			name: "second file crosses the limit",
			parts: []testutil.FilePart{
				testutil.File("ok.txt", "hi"),
				testutil.File("foo.bin", strings.Repeat("x", 4096)),
				testutil.File("after.txt", "never read"),
			},
			wantDetail: "File foo.bin is too large to process.",
		},
		{
			name:       "single oversized file",
			parts:      []testutil.FilePart{testutil.File("big.txt", strings.Repeat("y", 8192))},
			wantDetail: "File big.txt is too large to process.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewUploadHandler(upload.NewClassifier(), 1024)

			req := testutil.NewUploadRequest(t, "/api/upload", FilesField, tt.parts...)
			rec := httptest.NewRecorder()
			err := handler.HandleUpload(echo.New().NewContext(req, rec))

			var uerr *upload.Error
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, upload.KindFileTooLarge, uerr.Kind)
			assert.Equal(t, http.StatusBadRequest, uerr.StatusCode())
			assert.Equal(t, tt.wantDetail, uerr.Detail)
			assert.Empty(t, rec.Body.String())
		})
	}
}

func TestUploadHandler_Msgpack(t *testing.T) {
	handler := NewUploadHandler(upload.NewClassifier(), 0)

	e := echo.New()
	req := testutil.NewUploadRequest(t, "/api/upload", FilesField,
		testutil.File("bin.dat", binary),
		testutil.File("a.txt", "hello"),
	)
	req.Header.Set(echo.HeaderAccept, "application/msgpack;q=1.0, application/json;q=0.5")
	rec := httptest.NewRecorder()

	require.NoError(t, handler.HandleUpload(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MIMEApplicationMsgpack, rec.Header().Get(echo.HeaderContentType))

	var response models.UploadResponse
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, []models.FileContent{
		{Filename: "a.txt", Content: "hello"},
		{Filename: "bin.dat", Content: upload.Placeholder},
	}, response.Files)
}

func TestAcceptsMsgpack(t *testing.T) {
	assert.True(t, acceptsMsgpack("application/msgpack"))
	assert.True(t, acceptsMsgpack("text/html, application/x-msgpack;q=0.9"))
	assert.False(t, acceptsMsgpack(""))
	assert.False(t, acceptsMsgpack("application/json"))
	assert.False(t, acceptsMsgpack("*/*"))
}

func TestIsBodyTooLarge(t *testing.T) {
	assert.True(t, isBodyTooLarge(&http.MaxBytesError{Limit: 1}))
	assert.True(t, isBodyTooLarge(echo.ErrStatusRequestEntityTooLarge))
	assert.False(t, isBodyTooLarge(http.ErrNotMultipart))
	assert.False(t, isBodyTooLarge(errors.New("other")))
}
