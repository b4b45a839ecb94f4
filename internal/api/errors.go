// errors.go - Translation of handler errors into HTTP responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/draganddrop/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// APIError is a client-facing error raised by the transport layer itself,
// before any file is classified. Its body is the bare detail string.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Detail
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(detail string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Detail: detail}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(detail string) *APIError {
	return &APIError{Status: http.StatusNotFound, Detail: detail}
}

// InternalErrorBody is the body of every 5xx response.
type InternalErrorBody struct {
	Code int    `json:"code"`
	Err  string `json:"err"`
}

const redactedInternalError = "internal server error"

// NewErrorHandler returns the echo error handler. Client errors are written
// as a JSON string holding the detail; everything else becomes a 500 with
// an InternalErrorBody. When exposeInternal is false the fault text is
// replaced by a generic message.
func NewErrorHandler(logger zerolog.Logger, exposeInternal bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, detail := resolveError(err)

		if status >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("path", c.Request().URL.Path).
				Msg("request failed")

			if !exposeInternal {
				detail = redactedInternalError
			}
			writeError(c, status, InternalErrorBody{Code: status, Err: detail})
			return
		}

		writeError(c, status, detail)
	}
}

// resolveError maps err to a status code and the text shown to the client.
func resolveError(err error) (int, string) {
	var uploadErr *upload.Error
	var apiErr *APIError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &uploadErr):
		return uploadErr.StatusCode(), uploadErr.Detail
	case errors.As(err, &apiErr):
		return apiErr.Status, apiErr.Detail
	case errors.As(err, &httpErr):
		if httpErr.Internal != nil && httpErr.Code >= http.StatusInternalServerError {
			return httpErr.Code, httpErr.Internal.Error()
		}
		return httpErr.Code, fmt.Sprintf("%v", httpErr.Message)
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeError(c echo.Context, status int, body interface{}) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		c.Logger().Error(err)
	}
}
