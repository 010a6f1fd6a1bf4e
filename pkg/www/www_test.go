package www

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/pkg/errs"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", path, nil)
	r.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(w, r)
	return w
}

func TestRunProtected(t *testing.T) {
	log := logs.NewTestingLog(t)
	router := httprouter.New()
	Handle(log, router, "GET", "/bad", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		PanicBadRequestf("Missing %v", "thing")
	})
	Handle(log, router, "GET", "/user", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		Check(fmt.Errorf("%w: no images", errs.ErrMissingUpload))
	})
	Handle(log, router, "GET", "/engine", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		Check(fmt.Errorf("%w: exit status 1", errs.ErrInferenceFailure))
	})
	Handle(log, router, "GET", "/nil", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var m map[string]int
		m["x"] = 1
	})
	Handle(log, router, "GET", "/gone", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		PanicNotFound()
	})
	Handle(log, router, "GET", "/string", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		panic("something odd")
	})
	Handle(log, router, "GET", "/ok", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		SendJSON(w, map[string]int{"a": 1})
	})

	w := get(router, "/bad")
	require.Equal(t, 400, w.Code)
	require.Equal(t, "Missing thing", w.Body.String())

	w = get(router, "/user")
	require.Equal(t, 400, w.Code)

	w = get(router, "/engine")
	require.Equal(t, 500, w.Code)
	require.Contains(t, w.Body.String(), "Inference failed")

	w = get(router, "/nil")
	require.Equal(t, 500, w.Code)

	w = get(router, "/gone")
	require.Equal(t, 404, w.Code)
	require.Equal(t, "Not Found", w.Body.String())

	w = get(router, "/string")
	require.Equal(t, 500, w.Code)
	require.Equal(t, "something odd", w.Body.String())

	w = get(router, "/ok")
	require.Equal(t, 200, w.Code)
	require.Equal(t, `{"a":1}`, w.Body.String())
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, 400, StatusFor(fmt.Errorf("%w: pick a model", errs.ErrInvalidConfiguration)))
	require.Equal(t, 400, StatusFor(errs.ErrMissingUpload))
	require.Equal(t, 500, StatusFor(fmt.Errorf("%w: disk full", errs.ErrStagingFailure)))
	require.Equal(t, 500, StatusFor(errs.ErrInferenceFailure))
	require.Equal(t, 500, StatusFor(fmt.Errorf("unknown")))
	require.Equal(t, 413, StatusFor(fmt.Errorf("wrapped: %w", HTTPError{413, "too big"})))
}

func TestRateLimited(t *testing.T) {
	log := logs.NewTestingLog(t)
	router := httprouter.New()
	HandleRateLimited(log, router, "GET", "/upload", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		SendJSON(w, "OK")
	}, 2, time.Minute)

	require.Equal(t, 200, get(router, "/upload").Code)
	require.Equal(t, 200, get(router, "/upload").Code)
	require.Equal(t, 429, get(router, "/upload").Code)
}
