// Package errs holds the error kinds that the request pipeline distinguishes.
// Wrap these with fmt.Errorf("...: %w", errs.ErrX) and test with errors.Is.
package errs

import "errors"

var (
	ErrMissingUpload        = errors.New("No file uploaded")
	ErrInvalidConfiguration = errors.New("Invalid configuration")
	ErrStagingFailure       = errors.New("Staging failed")
	ErrInferenceFailure     = errors.New("Inference failed")
)

// IsUserError returns true if err is something the user can fix by
// resubmitting the form (as opposed to a server-side failure).
func IsUserError(err error) bool {
	return errors.Is(err, ErrMissingUpload) || errors.Is(err, ErrInvalidConfiguration)
}
