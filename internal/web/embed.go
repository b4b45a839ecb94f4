// Package web serves the bundled frontend build when one was embedded.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// dist holds the frontend build. The .keep file makes the pattern match
// before a build has been copied in.
//
//go:embed dist/*
var dist embed.FS

// Assets returns the embedded build with dist as its root.
func Assets() (fs.FS, error) {
	return fs.Sub(dist, "dist")
}

// HasEmbeddedFiles reports whether a frontend build with an index.html was embedded.
func HasEmbeddedFiles() bool {
	return hasIndex(dist)
}

func hasIndex(fsys fs.FS) bool {
	_, err := fs.Stat(fsys, "dist/index.html")
	return err == nil
}

// RegisterStaticRoutes serves assets for every path outside /api. Unknown
// paths fall back to index.html so the single-page app can route them.
func RegisterStaticRoutes(e *echo.Echo, assets fs.FS) {
	e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
		Root:       ".",
		Filesystem: http.FS(assets),
		HTML5:      true,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/api")
		},
	}))
}
