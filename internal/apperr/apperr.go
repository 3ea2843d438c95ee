// Package apperr defines the error kinds surfaced by panel operations and
// their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	CredentialsNotProvisioned Kind = "credentials_not_provisioned"
	PanelLoginFailed          Kind = "panel_login_failed"
	PanelUnreachable          Kind = "panel_unreachable"
	PanelNotConfigured        Kind = "panel_not_configured"
	UnexpectedPanelResponse   Kind = "unexpected_panel_response"
	InsufficientFunds         Kind = "insufficient_funds"
	PlanNotFound              Kind = "plan_not_found"
	PanelNotFound             Kind = "panel_not_found"
	TemplateNotFound          Kind = "template_not_found"
	NotFound                  Kind = "not_found"
	RemoteRejected            Kind = "remote_rejected"
	Unauthorized              Kind = "unauthorized"
	Forbidden                 Kind = "forbidden"
	InvalidInput              Kind = "invalid_input"
	Conflict                  Kind = "conflict"
	Internal                  Kind = "internal"
)

var statusByKind = map[Kind]int{
	CredentialsNotProvisioned: http.StatusForbidden,
	PanelLoginFailed:          http.StatusBadGateway,
	PanelUnreachable:          http.StatusBadGateway,
	PanelNotConfigured:        http.StatusConflict,
	UnexpectedPanelResponse:   http.StatusBadGateway,
	InsufficientFunds:         http.StatusPaymentRequired,
	PlanNotFound:              http.StatusNotFound,
	PanelNotFound:             http.StatusNotFound,
	TemplateNotFound:          http.StatusNotFound,
	NotFound:                  http.StatusNotFound,
	RemoteRejected:            http.StatusBadGateway,
	Unauthorized:              http.StatusUnauthorized,
	Forbidden:                 http.StatusForbidden,
	InvalidInput:              http.StatusBadRequest,
	Conflict:                  http.StatusConflict,
	Internal:                  http.StatusInternalServerError,
}

// HTTPStatus maps a kind to its transport status. Unknown kinds are 500.
func HTTPStatus(k Kind) int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a classified failure. RemoteStatus and RemoteBody are set when a
// remote panel answered with a definitive rejection.
type Error struct {
	Kind         Kind
	Message      string
	RemoteStatus int
	RemoteBody   string
	Meta         map[string]interface{}
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the HTTP status the error should be rendered with.
func (e *Error) Status() int { return HTTPStatus(e.Kind) }

// With attaches a metadata entry and returns the same error.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Meta == nil {
		e.Meta = map[string]interface{}{}
	}
	e.Meta[key] = value
	return e
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Remote builds a RemoteRejected error carrying the panel's answer verbatim.
func Remote(msg string, status int, body string) *Error {
	return &Error{Kind: RemoteRejected, Message: msg, RemoteStatus: status, RemoteBody: body}
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, Internal for unclassified errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
