package loader

import (
	"errors"
	"fmt"

	"github.com/paraita/dspot/types"
)

// ErrArtifactNotFound is returned when no search path root contains the artifact
var ErrArtifactNotFound = errors.New("test artifact not found on search path")

// LoadError reports that a requested artifact could not be loaded. It is fatal
// for the whole run: no partial set of artifacts is ever executed.
type LoadError struct {
	Name types.TestArtifactRef
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load test artifact %q: %v", e.Name, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError checks if the error is or wraps a LoadError
func IsLoadError(err error) bool {
	var loadErr *LoadError
	return err != nil && errors.As(err, &loadErr)
}
