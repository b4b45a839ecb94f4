// handlers_upload.go - File upload operation handlers
package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/draganddrop/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// FilesField is the multipart field carrying the uploaded files.
const FilesField = "files"

// MIMEApplicationMsgpack is the media type clients send in Accept to get a
// MessagePack body instead of JSON.
const MIMEApplicationMsgpack = "application/msgpack"

// noFilesDetail is returned when the request carries no file parts.
const noFilesDetail = "No files provided."

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	classifier  Classifier
	maxBodySize int64
}

// NewUploadHandler creates a new upload handler instance. maxBodySize caps
// the request body while it is streamed; zero leaves it uncapped.
func NewUploadHandler(classifier Classifier, maxBodySize int64) UploadHandler {
	return &UploadHandlerImpl{
		classifier:  classifier,
		maxBodySize: maxBodySize,
	}
}

// HandleUpload streams a multipart batch under the "files" field and returns
// the decoded content of every file. Parts are read one at a time, so a body
// that outgrows the limit is reported against the file being read.
func (h *UploadHandlerImpl) HandleUpload(c echo.Context) error {
	req := c.Request()
	if h.maxBodySize > 0 {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, h.maxBodySize)
	}

	reader, err := req.MultipartReader()
	if err != nil {
		return NewBadRequestError(noFilesDetail)
	}

	src := &partSource{reader: reader}
	if !src.peek() {
		return NewBadRequestError(noFilesDetail)
	}

	resp, err := h.classifier.ClassifySource(req.Context(), src)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, resp)
}

// partSource yields the "files" parts of a multipart body as classifier
// items. Each part is read in place, so an item must be consumed before the
// next one is requested.
type partSource struct {
	reader     *multipart.Reader
	pending    *upload.Item
	pendingErr error
}

// peek reads ahead to the first file part. It reports false when the body
// holds no file parts or is not a readable multipart stream.
func (s *partSource) peek() bool {
	item, err := s.next()
	switch {
	case err == nil:
		s.pending = &item
	case isBodyTooLarge(err):
		s.pendingErr = err
	default:
		return false
	}
	return true
}

func (s *partSource) Next() (upload.Item, error) {
	if s.pending != nil {
		item := *s.pending
		s.pending = nil
		return item, nil
	}
	if s.pendingErr != nil {
		err := s.pendingErr
		s.pendingErr = nil
		return upload.Item{}, err
	}
	return s.next()
}

func (s *partSource) next() (upload.Item, error) {
	for {
		part, err := s.reader.NextPart()
		if err != nil {
			return upload.Item{}, err
		}
		if part.FormName() != FilesField {
			continue
		}
		return upload.Item{
			Filename: part.FileName(),
			Open: func() (io.ReadCloser, error) {
				return part, nil
			},
		}, nil
	}
}

// respond writes payload as JSON, or as MessagePack when the client asks for it.
func respond(c echo.Context, status int, payload interface{}) error {
	if !acceptsMsgpack(c.Request().Header.Get(echo.HeaderAccept)) {
		return c.JSON(status, payload)
	}

	data, err := msgpack.Marshal(payload)
	if err != nil {
		return err
	}
	return c.Blob(status, MIMEApplicationMsgpack, data)
}

func acceptsMsgpack(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mediaType == MIMEApplicationMsgpack || mediaType == "application/x-msgpack" {
			return true
		}
	}
	return false
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	var httpErr *echo.HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge
}
