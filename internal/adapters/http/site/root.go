// Package site handles the embedded documentation site.
package site

import (
	"context"
	"net/http"
)

// Register attaches the embedded documentation site routes to mux.
// Pages live under /docs/; the bare /docs path gets the usual ServeMux
// trailing-slash redirect.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.Handle("/docs/", files)
}
