package subdomain

import (
	"errors"
	"fmt"

	"github.com/velemoonkon/subprobe/pkg/httpclient"
)

var errInvalidDomain = errors.New("invalid domain name")

// EnumerationError reports that a discovery source could not be queried.
// It is fatal for the scan: without hosts there is nothing to probe.
type EnumerationError struct {
	Source     string
	Domain     string
	StatusCode int // HTTP status when the source answered with a non-2xx code, otherwise 0
	Err        error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerating %s via %s: %v", e.Domain, e.Source, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// parseError marks a body that could not be decoded
type parseError struct {
	err error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.err)
}

func (e *parseError) Unwrap() error {
	return e.err
}

// newEnumerationError wraps a source failure
func newEnumerationError(source, domain string, err error) *EnumerationError {
	ee := &EnumerationError{Source: source, Domain: domain, Err: err}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		ee.StatusCode = statusErr.StatusCode
	}
	return ee
}

// IsMalformed reports whether err was caused by an undecodable source response
func IsMalformed(err error) bool {
	var pe *parseError
	return errors.As(err, &pe)
}
