// Package errs defines the error kinds shared by the admin services and
// mapped to HTTP status codes by the API layer.
package errs

import "fmt"

// Validation reports a malformed or incomplete request.
type Validation struct{ Msg string }

func (e *Validation) Error() string { return e.Msg }

// Conflict reports that the target of an operation already exists.
type Conflict struct{ Msg string }

func (e *Conflict) Error() string { return e.Msg }

// NotFound reports a missing post, category or trash file.
type NotFound struct{ Msg string }

func (e *NotFound) Error() string { return e.Msg }

// InUse is returned when a category cannot be removed because posts still
// reference it. Checklist carries the remediation payload sent to clients.
type InUse struct {
	Msg       string
	Checklist any
}

func (e *InUse) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &Validation{Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Conflict{Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &NotFound{Msg: fmt.Sprintf(format, args...)}
}
