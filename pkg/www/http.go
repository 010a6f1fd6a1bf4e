package www

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/pkg/kibi"
	"github.com/julienschmidt/httprouter"
)

// RunProtected runs handler inside a panic handler that recognizes HTTPError and
// the error kinds in errs, and sends the appropriate HTTP response if a panic does occur.
func RunProtected(log logs.Log, w http.ResponseWriter, r *http.Request, handler func()) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		var err error
		switch v := rec.(type) {
		case HTTPError:
			err = v
		case *HTTPError:
			err = *v
		case runtime.Error:
			// Show stack trace on runtime error
			log.Errorf("Runtime panic %v: %v\nStack Trace: %v", r.URL.Path, v, string(debug.Stack()))
			SendError(w, v.Error(), http.StatusInternalServerError)
			return
		case error:
			err = v
		default:
			err = fmt.Errorf("%v", v)
		}

		code := StatusFor(err)
		msg := err.Error()
		if hErr, ok := err.(HTTPError); ok {
			msg = hErr.Message
		}
		if code >= http.StatusInternalServerError {
			log.Errorf("Failed request %v: %v %v", r.URL.Path, code, msg)
		} else {
			log.Infof("Failed request %v: %v %v", r.URL.Path, code, msg)
		}
		SendError(w, msg, code)
	}()

	handler()
}

// Handle adds a protected HTTP route to router (ie handle will run inside RunProtected, so you get a panic handler).
func Handle(log logs.Log, router *httprouter.Router, method, path string, handle httprouter.Handle) {
	wrapper := func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		RunProtected(log, w, r, func() { handle(w, r, p) })
	}
	router.Handle(method, path, wrapper)
}

// Set cache headers instructing the client never to cache
func CacheNever(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "max-age=0")
}

// SendError is identical to the standard library http.Error(), except that we don't append a \n to the message body
func SendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	w.Write([]byte(message))
}

// SendJSON encodes 'obj' to JSON, and sends it as an HTTP application/json response.
func SendJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(obj)
	Check(err)
	w.Write(b)
}

// SendHTML sends a rendered page with the given status code
func SendHTML(w http.ResponseWriter, code int, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	w.Write(page)
}

// SendFile sends a file (as direct content, not download)
func SendFile(w http.ResponseWriter, r *http.Request, filename string) {
	// http.ServeFile implements ranges, which is critical for some features, eg <video> playback
	http.ServeFile(w, r, filename)
}

// SendFileDownload sends a file as an attachment, with the given download name
func SendFileDownload(w http.ResponseWriter, r *http.Request, filename, downloadName string) {
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%v"`, downloadName))
	http.ServeFile(w, r, filename)
}

// ParseMultipartForm reads a multipart form, limiting the total body size.
// Files larger than maxMemory are spooled to disk by the standard library.
// A body that exceeds maxBodyBytes causes a 413.
func ParseMultipartForm(w http.ResponseWriter, r *http.Request, maxBodyBytes, maxMemory int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			Panicf(http.StatusRequestEntityTooLarge, "Upload is larger than %v", kibi.FormatBytes(tooBig.Limit))
		}
		if errors.Is(err, http.ErrNotMultipart) {
			// A plain urlencoded POST has no files. Let the caller report the missing upload.
			return
		}
		PanicBadRequestf("Failed to read form: %v", err)
	}
}
