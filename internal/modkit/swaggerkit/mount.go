// Package swaggerkit mounts the Swagger UI and the JSON spec of the job API
package swaggerkit

import (
	"net/http"

	phttp "rangeload/internal/platform/net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Mount the Swagger UI under /docs when enabled
func Mount(r phttp.Router, enabled bool) {
	if !enabled {
		return
	}
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/", http.StatusPermanentRedirect)
	})
	r.Get("/docs/doc.json", serveDocJSON())
	r.Handle("/docs/*", httpSwagger.Handler(
		httpSwagger.InstanceName("ingest"),
		httpSwagger.URL("/docs/doc.json"),
	))
}
