package planservice

import "fmt"

// ServiceError is a structured error returned by the plan service.
type ServiceError struct {
	Message    string
	StatusCode int
}

func (e *ServiceError) Error() string {
	return e.Message
}

// EmptyResultError means the call succeeded but carried no usable plan.
type EmptyResultError struct {
	Kind Kind
	Err  error
}

func (e *EmptyResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no %s plan returned: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("no %s plan returned", e.Kind)
}

func (e *EmptyResultError) Unwrap() error {
	return e.Err
}

// NetworkError is a transport failure, a timeout or a failed response without
// a structured error. StatusCode is zero when no response arrived.
type NetworkError struct {
	Op         string
	Err        error
	StatusCode int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RequestError means the request could not be built, so nothing was sent.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
