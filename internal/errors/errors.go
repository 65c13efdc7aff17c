package errors

import "fmt"

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeUsage          ErrCode = "USAGE"
	ErrCodeOwnerNotFound  ErrCode = "OWNER_NOT_FOUND"
	ErrCodeDiscovery      ErrCode = "DISCOVERY_FAILED"
	ErrCodeNotFound       ErrCode = "NOT_FOUND"
	ErrCodeRateLimited    ErrCode = "RATE_LIMITED"
	ErrCodeInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrCodeUnauthorized   ErrCode = "UNAUTHORIZED"
	ErrCodeInternal       ErrCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewUsageError creates a new usage error
func NewUsageError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUsage,
		Message: message,
	}
}

// NewOwnerNotFoundError creates a new owner not found error
func NewOwnerNotFoundError(owner string) *AppError {
	return &AppError{
		Code:    ErrCodeOwnerNotFound,
		Message: fmt.Sprintf("owner %s not found", owner),
	}
}

// NewDiscoveryError creates a new repository discovery error
func NewDiscoveryError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeDiscovery,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
		Err:     err,
	}
}

// NewInvalidPayloadError creates a new invalid payload error
func NewInvalidPayloadError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidPayload,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// code extracts the AppError code from err, if any
func code(err error) (ErrCode, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code, true
	}
	return "", false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	c, ok := code(err)
	return ok && c == ErrCodeNotFound
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	c, ok := code(err)
	return ok && c == ErrCodeRateLimited
}

// IsOwnerNotFound checks if the error is an owner not found error
func IsOwnerNotFound(err error) bool {
	c, ok := code(err)
	return ok && c == ErrCodeOwnerNotFound
}

// IsDiscovery checks if the error is a repository discovery error
func IsDiscovery(err error) bool {
	c, ok := code(err)
	return ok && c == ErrCodeDiscovery
}

// IsInvalidPayload checks if the error is an invalid payload error
func IsInvalidPayload(err error) bool {
	c, ok := code(err)
	return ok && c == ErrCodeInvalidPayload
}
