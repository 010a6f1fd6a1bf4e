package www

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cyclopcam/visiondemo/pkg/errs"
)

// HTTPError can be panic'ed from inside a handler, and RunProtected will
// respond with Code and Message.
type HTTPError struct {
	Code    int
	Message string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("%v %v", e.Code, e.Message)
}

func Panicf(code int, format string, args ...any) {
	panic(HTTPError{code, fmt.Sprintf(format, args...)})
}

func PanicBadRequestf(format string, args ...any) {
	Panicf(http.StatusBadRequest, format, args...)
}

func PanicNotFound() {
	panic(HTTPError{http.StatusNotFound, "Not Found"})
}

func PanicServerErrorf(format string, args ...any) {
	Panicf(http.StatusInternalServerError, format, args...)
}

// Check panics if err is not nil. The response status is chosen by StatusFor.
func Check(err error) {
	if err != nil {
		panic(err)
	}
}

// StatusFor returns the HTTP status that err should be reported with.
// Bad uploads and bad model choices are the client's fault. Staging and
// inference failures, and anything unrecognized, are ours.
func StatusFor(err error) int {
	var hErr HTTPError
	if errors.As(err, &hErr) {
		return hErr.Code
	}
	if errs.IsUserError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
