package gateway

import (
	"errors"
	"net/http"

	"encore.dev/beta/errs"

	"aceit.app/pkg/studyapi"
)

// toAPIError maps client errors onto API error codes.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *studyapi.HTTPError
	switch {
	case errors.Is(err, studyapi.ErrNoAccessToken):
		return &errs.Error{Code: errs.Unauthenticated, Message: "access token is not set"}
	case errors.Is(err, studyapi.ErrUnauthorized):
		return &errs.Error{Code: errs.Unauthenticated, Message: "session expired, please sign in again"}
	case errors.Is(err, studyapi.ErrInvalidTimeframe):
		return &errs.Error{Code: errs.InvalidArgument, Message: "period must be WEEK, MONTH, or TERM"}
	case studyapi.IsCanceled(err):
		return &errs.Error{Code: errs.Canceled, Message: "request superseded"}
	case errors.As(err, &httpErr):
		return &errs.Error{Code: upstreamCode(httpErr.StatusCode), Message: upstreamMessage(httpErr)}
	default:
		return &errs.Error{Code: errs.Unavailable, Message: "study assistant is unavailable"}
	}
}

func upstreamCode(status int) errs.ErrCode {
	switch status {
	case http.StatusBadRequest:
		return errs.InvalidArgument
	case http.StatusForbidden:
		return errs.PermissionDenied
	case http.StatusNotFound:
		return errs.NotFound
	case http.StatusTooManyRequests:
		return errs.ResourceExhausted
	default:
		return errs.Unavailable
	}
}

func upstreamMessage(err *studyapi.HTTPError) string {
	if err.Message != "" {
		return err.Message
	}
	return http.StatusText(err.StatusCode)
}

// invalidArgument builds an InvalidArgument error for request validation.
func invalidArgument(msg string) error {
	return &errs.Error{Code: errs.InvalidArgument, Message: msg}
}
