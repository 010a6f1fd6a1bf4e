package www

import (
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

// You can disable this when running unit tests
var EnableRateLimiting = true

// HandleRateLimited adds a protected route that allows each client IP at most
// requestLimit requests per windowLength. Excess requests receive a 429.
func HandleRateLimited(log logs.Log, router *httprouter.Router, method, path string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
	if !EnableRateLimiting || requestLimit <= 0 {
		Handle(log, router, method, path, handle)
		return
	}
	// We don't need httprate.KeyByEndpoint, because we create a unique rate limiter for each endpoint.
	limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))

	Handle(log, router, method, path, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(w, r, params)
		})).ServeHTTP(w, r)
	})
}
