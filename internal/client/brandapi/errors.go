package brandapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrBatchFailed matches any execution that ended failed or canceled.
	ErrBatchFailed = errors.New("batch execution failed")
	// ErrPollTimeout is returned once MaxAttempts polls saw no terminal status.
	ErrPollTimeout = errors.New("batch execution did not finish in time")
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("brandapi: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("brandapi: HTTP %d", e.StatusCode)
}

// APIError is a 2xx response carrying success:false.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "brandapi: request unsuccessful"
	}
	return "brandapi: " + e.Message
}

// BatchError reports an execution that ended without completing.
type BatchError struct {
	ExecutionID string
	Status      string
	Message     string
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("batch execution %s %s", e.ExecutionID, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *BatchError) Is(target error) bool { return target == ErrBatchFailed }

// UserMessage turns any client error into text fit for an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		httpErr  *HTTPError
		apiErr   *APIError
		batchErr *BatchError
	)
	switch {
	case errors.As(err, &batchErr):
		if batchErr.Status == "canceled" {
			return "The analysis was canceled."
		}
		if batchErr.Message != "" {
			return "The analysis failed: " + batchErr.Message
		}
		return "The analysis failed. Please try again."
	case errors.Is(err, ErrPollTimeout):
		return "The analysis is taking longer than expected. Please check back in a few minutes."
	case errors.As(err, &httpErr):
		if httpErr.Message != "" && httpErr.StatusCode < http.StatusInternalServerError {
			return httpErr.Message
		}
		if httpErr.StatusCode >= http.StatusInternalServerError {
			return "The server is having trouble right now. Please try again later."
		}
		return fmt.Sprintf("The request failed (HTTP %d).", httpErr.StatusCode)
	case errors.As(err, &apiErr):
		if strings.TrimSpace(apiErr.Message) != "" {
			return apiErr.Message
		}
		return "The request was rejected by the server."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was canceled."
	}
	return "Something went wrong. Please try again."
}
