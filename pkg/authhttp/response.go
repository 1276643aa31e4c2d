package authhttp

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/validator"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code     string              `json:"code"`
	Message  string              `json:"message,omitempty"`
	Details  map[string][]string `json:"details,omitempty"`
	Recovery *Recovery           `json:"recovery,omitempty"`
}

// Recovery is auth.Recovery with the delay in whole seconds.
type Recovery struct {
	Action       auth.RecoveryAction `json:"action"`
	DelaySeconds int                 `json:"delay_seconds,omitempty"`
	RetryAllowed bool                `json:"retry_allowed"`
	Message      string              `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// errorResponse converts err to a status and an error body. Flow errors carry
// their recovery policy.
func errorResponse(err error) (int, *ErrorDetail) {
	var flowErr *auth.Error
	switch {
	case errors.As(err, &flowErr):
		rec := auth.RecoveryFor(flowErr)
		detail := &ErrorDetail{
			Code:    string(flowErr.Code),
			Message: flowErr.Message,
			Recovery: &Recovery{
				Action:       rec.Action,
				DelaySeconds: int(math.Ceil(rec.Delay.Seconds())),
				RetryAllowed: rec.RetryAllowed,
				Message:      rec.Message,
			},
		}
		if ve := validator.ExtractValidationErrors(err); len(ve) > 0 {
			detail.Details = ve.Map()
		}
		return statusFor(flowErr.Code), detail

	case errors.Is(err, ErrInvalidTicket):
		return http.StatusBadRequest, &ErrorDetail{Code: "INVALID_SIGNUP_TICKET", Message: "signup ticket is invalid or expired"}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, &ErrorDetail{Code: "PAYLOAD_TOO_LARGE", Message: "request body is too large"}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, &ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()}
	default:
		return http.StatusInternalServerError, &ErrorDetail{Code: "INTERNAL_ERROR", Message: http.StatusText(http.StatusInternalServerError)}
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorMeta(w, err, nil)
}

// writeErrorMeta writes err with meta attached. A wait recovery sets
// Retry-After.
func writeErrorMeta(w http.ResponseWriter, err error, meta map[string]any) {
	status, detail := errorResponse(err)
	if detail.Recovery != nil && detail.Recovery.Action == auth.RecoveryWait && detail.Recovery.DelaySeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(detail.Recovery.DelaySeconds))
	}
	writeJSON(w, status, Envelope{Error: detail, Meta: meta})
}

func statusFor(code auth.ErrorCode) int {
	switch code {
	case auth.CodeMissingCode, auth.CodeProviderError, auth.CodeMissingStored, auth.CodeCodeExpired:
		return http.StatusBadRequest
	case auth.CodeCSRFMismatch:
		return http.StatusForbidden
	case auth.CodeSignupInProgress:
		return http.StatusConflict
	case auth.CodeIdentityLost:
		return http.StatusGone
	case auth.CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case auth.CodeRateLimited:
		return http.StatusTooManyRequests
	case auth.CodeProviderURLUnavailable, auth.CodeNetworkFailure, auth.CodeUnexpectedResponse:
		return http.StatusBadGateway
	case auth.CodeStateUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
