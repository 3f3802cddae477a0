package analysis

import (
	"errors"
	"fmt"
)

// ErrDatasetNotFound is returned when a run names a dataset the registry
// does not hold.
var ErrDatasetNotFound = errors.New("dataset not found")

// InvalidParameterError reports a caller-supplied parameter the engine
// refuses to run with. It is returned before any index query executes, so
// the caller can fix the request and retry.
type InvalidParameterError struct {
	Name   string
	Value  interface{}
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Name, e.Value, e.Reason)
}

// EngineError reports an internal correlation failure. The run that hit it
// produces no report; partial results are never returned.
type EngineError struct {
	FeatureID string
	PatientID string
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("correlation failed at feature %q (patient %q): %v", e.FeatureID, e.PatientID, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
