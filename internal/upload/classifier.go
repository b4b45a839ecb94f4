// Package upload turns a batch of uploaded files into their decoded text.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/draganddrop/backend/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// Placeholder replaces the content of files that are not valid UTF-8.
const Placeholder = "File is not a valid UTF-8 encoded text file. Will add this functionality later."

// DefaultDroppedSuffixes lists compiled Python artifacts. Undecodable files
// with these suffixes are left out of the response entirely.
var DefaultDroppedSuffixes = []string{".pyc", ".pyo"}

// outcome is what happened to a single item of a batch.
type outcome string

const (
	outcomeDecoded     outcome = "decoded"
	outcomeUndecodable outcome = "undecodable"
	outcomeDropped     outcome = "dropped"
)

// Item is one file of an upload batch. Open is called at most once and
// only when the item is reached, so an aborted batch never reads later files.
// Size is zero when the length is not known up front.
type Item struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// Source yields the items of a batch in order. Next returns io.EOF after
// the last item. An item's content must be consumed before Next is called
// again when the source streams from a single body.
type Source interface {
	Next() (Item, error)
}

// Items adapts a slice to a Source.
func Items(items ...Item) Source {
	return &sliceSource{items: items}
}

type sliceSource struct {
	items []Item
}

func (s *sliceSource) Next() (Item, error) {
	if len(s.items) == 0 {
		return Item{}, io.EOF
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item, nil
}

// BytesItem builds an Item backed by an in-memory payload.
func BytesItem(filename string, data []byte) Item {
	return Item{
		Filename: filename,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Classifier decodes upload batches. It holds no per-request state and is
// safe for concurrent use.
type Classifier struct {
	maxFileSize     int64
	droppedSuffixes []string
	logger          zerolog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMaxFileSize limits how many bytes are read per file. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(c *Classifier) {
		c.maxFileSize = n
	}
}

// WithDroppedSuffixes replaces the suffixes of undecodable files that are
// omitted from the response.
func WithDroppedSuffixes(suffixes ...string) Option {
	return func(c *Classifier) {
		c.droppedSuffixes = append([]string(nil), suffixes...)
	}
}

// WithLogger sets the logger used for per-item debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// NewClassifier creates a Classifier.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		droppedSuffixes: DefaultDroppedSuffixes,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify decodes every item in order. Decoded files come first in the
// response, followed by the undecodable ones, each group keeping input order.
// The first failing item aborts the batch and no response is produced.
func (c *Classifier) Classify(ctx context.Context, items []Item) (*models.UploadResponse, error) {
	return c.ClassifySource(ctx, Items(items...))
}

// ClassifySource is Classify over a streamed batch. A read limit hit while
// the source looks for the next item is charged to the item read last.
func (c *Classifier) ClassifySource(ctx context.Context, src Source) (*models.UploadResponse, error) {
	decoded := make([]models.FileContent, 0)
	var undecodable []models.FileContent
	var last string

	for {
		item, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, c.abort(sourceError(last, err))
		}
		last = item.Filename

		if err := ctx.Err(); err != nil {
			return nil, c.abort(errInternal(item.Filename, err))
		}

		content, result, failure := c.classifyItem(item)
		if failure != nil {
			return nil, c.abort(failure)
		}

		switch result {
		case outcomeDecoded:
			decoded = append(decoded, content)
		case outcomeUndecodable:
			undecodable = append(undecodable, content)
		}
	}

	return models.NewUploadResponse(append(decoded, undecodable...)), nil
}

func (c *Classifier) abort(err *Error) *Error {
	c.logger.Debug().
		Str("filename", err.Filename).
		Str("kind", err.Kind.String()).
		Err(err.Err).
		Msg("upload batch aborted")
	return err
}

func (c *Classifier) classifyItem(item Item) (content models.FileContent, result outcome, failure *Error) {
	defer func() {
		if r := recover(); r != nil {
			failure = errInternal(item.Filename, fmt.Errorf("panic: %v", r))
		}
	}()

	if item.Filename == "" || strings.ContainsRune(item.Filename, 0) {
		return content, "", errInvalidFileType(item.Filename)
	}

	data, err := c.read(item)
	if err != nil {
		if isTooLarge(err) {
			return content, "", errTooLarge(item.Filename, err)
		}
		return content, "", errProcessing(item.Filename, err)
	}

	if utf8.Valid(data) {
		return models.FileContent{Filename: item.Filename, Content: string(data)}, outcomeDecoded, nil
	}

	log := c.logger.Debug().
		Str("filename", item.Filename).
		Str("mime", mimetype.Detect(data).String())
	if c.isDropped(item.Filename) {
		log.Str("outcome", string(outcomeDropped)).Msg("skipping undecodable file")
		return content, outcomeDropped, nil
	}
	log.Str("outcome", string(outcomeUndecodable)).Msg("file is not valid UTF-8")
	return models.FileContent{Filename: item.Filename, Content: Placeholder}, outcomeUndecodable, nil
}

func (c *Classifier) read(item Item) ([]byte, error) {
	if c.maxFileSize > 0 && item.Size > c.maxFileSize {
		return nil, ErrFileTooLarge
	}
	if item.Open == nil {
		return nil, errors.New("no content source")
	}

	rc, err := item.Open()
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if c.maxFileSize > 0 {
		r = io.LimitReader(rc, c.maxFileSize+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if c.maxFileSize > 0 && int64(len(data)) > c.maxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func (c *Classifier) isDropped(filename string) bool {
	for _, suffix := range c.droppedSuffixes {
		if strings.HasSuffix(filename, suffix) {
			return true
		}
	}
	return false
}
