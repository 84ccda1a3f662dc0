package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func userID(r *http.Request) string {
	// Authn lives in front of this service; the gateway forwards the caller
	// identity in a header.
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "local"
}
