package model

import (
	"errors"
	"fmt"
)

// ArtifactLoadError reports a model artifact that could not be loaded. It is
// fatal at startup.
type ArtifactLoadError struct {
	Path   string
	reason error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load model artifact %s: %v", e.Path, e.reason)
}

func (e *ArtifactLoadError) Unwrap() error {
	return e.reason
}

func IsArtifactLoadError(err error) bool {
	var le *ArtifactLoadError
	return errors.As(err, &le)
}

func errWidth(want, got int) error {
	return fmt.Errorf("expected %d features, got %d", want, got)
}
