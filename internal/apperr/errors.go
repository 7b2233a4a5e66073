// Package apperr defines the error kinds that cross stage boundaries.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// InputError is a missing field or absent file/column. The run never starts.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Input(field, format string, args ...any) error {
	return &InputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ResolutionError records a provider that could not be loaded. It is recovered by a
// fallback chain unless every provider fails.
type ResolutionError struct {
	Chain    string
	Provider string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: provider %q unavailable: %v", e.Chain, e.Provider, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

type FitError struct {
	Stage string
	Err   error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("model fit failed at %s stage: %v", e.Stage, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }

func Fit(stage string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FitError
	if errors.As(err, &fe) {
		return err
	}
	return &FitError{Stage: stage, Err: err}
}

// VisualizationError never leaves the visualization stage; it becomes an artifact status.
type VisualizationError struct {
	Chart  string
	Reason string
}

func (e *VisualizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Chart, e.Reason)
}

type ExportError struct {
	Kind string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s failed: %v", e.Kind, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// HTTPStatus maps an error to the status code returned by the API.
func HTTPStatus(err error) int {
	var in *InputError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &in):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func IsInput(err error) bool {
	var in *InputError
	return errors.As(err, &in)
}
