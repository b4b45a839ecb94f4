// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/draganddrop/backend/internal/models"
	"github.com/draganddrop/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// UploadHandler handles file upload operations
type UploadHandler interface {
	HandleUpload(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Classifier decodes an upload batch read from a stream of items.
// This allows mocking in tests
type Classifier interface {
	ClassifySource(ctx context.Context, src upload.Source) (*models.UploadResponse, error)
}
