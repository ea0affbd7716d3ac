package enrich

import (
	"errors"
	"fmt"
)

// UnavailableError reports that an enricher could not produce its fields
// for a finding. It is tolerated: the fields stay unknown and the
// enricher is listed as degraded.
type UnavailableError struct {
	Enricher string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("enrich: %s unavailable: %v", e.Enricher, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err for enricher name, leaving an existing
// *UnavailableError as it is.
func Unavailable(name string, err error) error {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Enricher: name, Err: err}
}
