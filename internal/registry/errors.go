package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUpstreamDown indicates the registry is unreachable or failing.
var ErrUpstreamDown = errors.New("registry unavailable")

// NotFoundError indicates the requested package does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package not found: %s", e.Name)
}

// IsNotFound reports whether the error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// HTTPError indicates a non-200 registry response.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsNotFound reports whether the response was a 404.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IntegrityError indicates a downloaded tarball failed its checksum.
type IntegrityError struct {
	Name string
	Want string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s (want %s)", e.Name, e.Want)
}
