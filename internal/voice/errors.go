package voice

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrMissingCredentials     = errors.New("missing voice provider credentials")
	ErrGenerationFailed       = errors.New("audio generation failed")
)

// GenerationError is a non-2xx reply from the synthesis endpoint.
type GenerationError struct {
	Status int
	Body   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("voice provider error: %d - %s", e.Status, e.Body)
}

func (e *GenerationError) Unwrap() error {
	return ErrGenerationFailed
}
