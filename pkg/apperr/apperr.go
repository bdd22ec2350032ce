// Package apperr 定义了对外可见的错误分类，格式为 "kind:scope"。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误的类别。
type Kind string

const (
	KindBadRequest      Kind = "bad_request"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindRateLimit       Kind = "rate_limit"
	KindGenerationEmpty Kind = "generation_empty"
	KindTimeout         Kind = "timeout"
	KindInternal        Kind = "internal"
)

// Scope 是错误发生的业务范围。
type Scope string

const (
	ScopeAPI      Scope = "api"
	ScopeChat     Scope = "chat"
	ScopeStream   Scope = "stream"
	ScopeDocument Scope = "document"
	ScopeAuth     Scope = "auth"
	ScopeHistory  Scope = "history"
)

// Error 是可以安全返回给客户端的错误。内部原因只用于日志，不会被序列化。
type Error struct {
	Kind  Kind
	Scope Scope
	cause error
}

// New 创建一个 Error，cause 可以为 nil。
func New(kind Kind, scope Scope, cause error) *Error {
	return &Error{Kind: kind, Scope: scope, cause: cause}
}

func BadRequest(scope Scope, cause error) *Error { return New(KindBadRequest, scope, cause) }
func Unauthorized(scope Scope) *Error            { return New(KindUnauthorized, scope, nil) }
func Forbidden(scope Scope) *Error               { return New(KindForbidden, scope, nil) }
func NotFound(scope Scope) *Error                { return New(KindNotFound, scope, nil) }
func RateLimit(scope Scope) *Error               { return New(KindRateLimit, scope, nil) }
func GenerationEmpty(scope Scope) *Error         { return New(KindGenerationEmpty, scope, nil) }
func Timeout(scope Scope, cause error) *Error    { return New(KindTimeout, scope, cause) }
func Internal(scope Scope, cause error) *Error   { return New(KindInternal, scope, cause) }

// Code 返回 "kind:scope" 形式的错误码。
func (e *Error) Code() string {
	return string(e.Kind) + ":" + string(e.Scope)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code(), e.cause)
	}
	return e.Code()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// StatusCode 返回与错误类别对应的 HTTP 状态码。
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Message 返回面向用户的描述，不包含任何内部细节。
func (e *Error) Message() string {
	switch e.Kind {
	case KindBadRequest:
		return "The request couldn't be processed. Please check your input and try again."
	case KindUnauthorized:
		return "You need to sign in before continuing."
	case KindForbidden:
		return "You do not have access to this resource."
	case KindNotFound:
		return "The requested resource was not found."
	case KindRateLimit:
		return "You have exceeded your maximum number of messages for the day. Please try again later."
	case KindGenerationEmpty:
		return "The model did not produce a response. Please try again."
	case KindTimeout:
		return "The response took too long and was stopped."
	default:
		return "Something went wrong. Please try again later."
	}
}

// From 将任意错误归一化为 *Error，未知错误统一折叠为 internal:chat。
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(ScopeChat, err)
}
