package nlp

import "errors"

// Common client errors
var (
	// ErrRateLimit indicates the rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrEmptyResponse indicates the model returned an empty response.
	ErrEmptyResponse = errors.New("the model returned an empty response")
)

// RateLimitError is a rate limit failure with an optional provider message.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded"
	}
	return e.Message
}

// Is lets errors.Is match any RateLimitError regardless of message.
func (e *RateLimitError) Is(target error) bool {
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError creates a rate limit error with an optional message.
func NewRateLimitError(message ...string) *RateLimitError {
	err := &RateLimitError{}
	if len(message) > 0 {
		err.Message = message[0]
	}
	return err
}

// EmptyResponseError is returned when a completion carries no content.
type EmptyResponseError struct {
	Message string
}

func (e *EmptyResponseError) Error() string {
	return e.Message
}

// Is lets errors.Is match any EmptyResponseError regardless of message.
func (e *EmptyResponseError) Is(target error) bool {
	_, ok := target.(*EmptyResponseError)
	return ok
}

// NewEmptyResponseError creates a new empty response error.
func NewEmptyResponseError(message string) *EmptyResponseError {
	return &EmptyResponseError{Message: message}
}
