package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Request-time kinds map onto HTTP status codes at the transport boundary.
var (
	ErrConfig                = errors.New("configuration error")
	ErrUnconstructable       = errors.New("request type cannot be flattened")
	ErrEncoding              = errors.New("malformed parameter encoding")
	ErrUnsupportedConversion = errors.New("unsupported parameter conversion")
	ErrMissingParameter      = errors.New("missing required parameter")
	ErrMalformedRequest      = errors.New("malformed request message")
	ErrInternal              = errors.New("internal invariant violation")
	ErrMethodNotFound        = errors.New("method not found")
	ErrMethodNotImplemented  = errors.New("method not implemented")
	ErrInvalidDocument       = errors.New("invalid OpenAPI document")
)

// ConfigError reports a bad configuration tag or an inconsistent method configuration.
type ConfigError struct {
	Method string
	Tag    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Method != "" {
		fmt.Fprintf(&b, " for method `%s`", e.Method)
	}
	if e.Tag != "" {
		fmt.Fprintf(&b, " in tag '%s'", e.Tag)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func (e *ConfigError) Unwrap() error { return e.Err }

// UnconstructableFieldError names the field which prevents a request type from
// being synthesized out of individual HTTP parameters.
type UnconstructableFieldError struct {
	Method string
	Field  string
	Type   string
	Reason string
}

func (e *UnconstructableFieldError) Error() string {
	method := e.Method
	if method == "" {
		method = "unknown"
	}
	return fmt.Sprintf(
		"method `%s`: the request must be passed as a blob, since member `%s` has non-flattable type `%s` (%s); configure it with `%s:blob`",
		method, e.Field, e.Type, e.Reason, method)
}

func (e *UnconstructableFieldError) Is(target error) bool { return target == ErrUnconstructable }

// IsClientError reports whether err was caused by the caller's parameters.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEncoding) ||
		errors.Is(err, ErrUnsupportedConversion) ||
		errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrMalformedRequest)
}
