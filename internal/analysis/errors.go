package analysis

import "fmt"

// ServiceError is an explicit error reported by the analysis service. The
// message is shown to the user as-is.
type ServiceError struct {
	Message    string
	StatusCode int
}

func (e *ServiceError) Error() string {
	return e.Message
}

// ConnectivityError wraps any failure to get a usable answer from the
// analysis service: unreachable host, timeout, or an unparseable body.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("error connecting to analysis service: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}
