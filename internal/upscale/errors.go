package upscale

import "fmt"

// GenericErrorMessage is shown when the service fails without saying why.
const GenericErrorMessage = "An unknown error occurred."

// ValidationError is raised before anything is sent to the service.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// ServiceError is a non-2xx or {"error": ...} response.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("upscale service error (status %d): %s", e.Status, e.Message)
}

// TransportError is a request that never produced a response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("failed to %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }
