package form

import (
	"errors"

	"eyecheck-web/internal/predict"
)

// MsgNoFile is shown when the user submits before choosing a file.
const MsgNoFile = "Please select an image file first."

// ValidationError is returned by Submit when no file is selected. No request
// is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ServerError is a response from the prediction service outside 2xx.
type ServerError struct {
	Status *predict.StatusError
}

func (e *ServerError) Error() string {
	return e.Status.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Status
}

func (e *ServerError) StatusCode() int {
	return e.Status.Code
}

// TransportError is a network or decoding failure talking to the service.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func classifyError(err error) error {
	var statusErr *predict.StatusError
	if errors.As(err, &statusErr) {
		return &ServerError{Status: statusErr}
	}
	return &TransportError{Err: err}
}

// DisplayMessage turns a submission error into the single string the page
// shows. Validation messages are shown as is, everything else gets an
// "Error: " prefix.
func DisplayMessage(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	return "Error: " + err.Error()
}
