package adapter

import (
	"context"
	"fmt"
	"time"

	"riq-studio-api/modules/availability/entity"
)

// SourceAdapter produces candidate availability facts from one upstream
// system. Implementations return an empty slice (not an error) when the
// upstream has no data in the window, and a *FetchError on network, auth or
// parse failures so the engine can log the outcome without poisoning stored
// facts.
type SourceAdapter interface {
	Source() string
	Fetch(ctx context.Context, from, to time.Time) ([]entity.AvailabilityFact, error)
}

// FetchError marks an upstream fetch failure, distinguishable from an empty
// result via errors.As.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func NewFetchError(source string, err error) *FetchError {
	return &FetchError{Source: source, Err: err}
}
