package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"zeex-stream/work/client"
	"zeex-stream/work/proxy"
)

// HandleStream serves GET /stream/{token}: the ranged byte-proxy path.
func HandleStream(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		sp.ServeStream(client.NewCustomResponseWriter(w), r, vars["token"], false)
	}
}

// HandleStreamHead serves HEAD /stream/{token}: identical headers to GET,
// zero-length body, no upstream byte fetch.
func HandleStreamHead(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		sp.ServeStream(client.NewCustomResponseWriter(w), r, vars["token"], true)
	}
}
