package server

import (
	"embed"
	"net/http"
	"time"

	"github.com/cyclopcam/staticfiles"
	"github.com/cyclopcam/visiondemo/pkg/www"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Home page and stylesheet
//
//go:embed public
var staticPublic embed.FS

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// Uploads run the inference engine, so we limit how often each client can submit one
	upload := func(route string, handle httprouter.Handle) {
		www.HandleRateLimited(s.Log, router, "POST", route, handle, s.cfg.Upload.RequestsPerMinute, time.Minute)
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/models", s.httpModels)

	handle("GET", "/image-prediction.html", s.httpImagePrediction)
	upload("/image-prediction.html", s.httpImagePrediction)

	handle("GET", "/video-object-detection.html", s.httpVideoDetection)
	upload("/video-object-detection.html", s.httpVideoDetection)

	handle("GET", "/files/:area/:name", s.httpStagedFile)

	router.Handler("GET", "/metrics", promhttp.Handler())

	// Everything else is a static file. Unknown paths get the home page.
	static, err := staticfiles.NewCachedStaticFileServer(staticPublic, "public", []string{"/api/", "/files/", "/metrics"}, s.Log, true, nil)
	if err != nil {
		return err
	}
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" || r.Method == "HEAD":
			static.ServeHTTP(w, r)
		case r.Method == "POST" && r.URL.Path == "/":
			// The home page accepts a POST, and ignores the body
			home := r.Clone(r.Context())
			home.Method = "GET"
			static.ServeHTTP(w, home)
		default:
			www.SendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	s.httpRouter = router
	return nil
}
