package storefront

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/validator"
)

var errUnauthorized = errors.New("storefront: unauthorized")

// expiredMarkers identify a 400 from the exchange endpoint that means the
// code was already used or timed out at the provider.
var expiredMarkers = []string{"KOE320", "invalid_grant", "expired", "already used", "만료"}

// StatusError carries the HTTP status and the server's detail text.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("storefront: status %d", e.Status)
	}
	return fmt.Sprintf("storefront: status %d: %s", e.Status, e.Detail)
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldIssue struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// classify maps a non-2xx response to an *auth.Error.
func classify(resp *http.Response, raw []byte, exchange bool, now time.Time) error {
	detail, fields := parseDetail(raw)
	statusErr := &StatusError{Status: resp.StatusCode, Detail: detail}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := auth.NewError(auth.CodeRateLimited, detail, statusErr)
		e.RetryAfter = retryAfter(resp.Header.Get("Retry-After"), now)
		return e

	case resp.StatusCode == http.StatusUnauthorized:
		return auth.NewError(auth.CodeValidationFailed, detail, errors.Join(errUnauthorized, statusErr))

	case resp.StatusCode == http.StatusRequestTimeout:
		return auth.NewError(auth.CodeNetworkFailure, detail, statusErr)

	case exchange && resp.StatusCode == http.StatusBadRequest && isExpired(detail):
		return auth.NewError(auth.CodeCodeExpired, detail, statusErr)

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if len(fields) > 0 {
			return auth.NewError(auth.CodeValidationFailed, detail, errors.Join(fields, statusErr))
		}
		return auth.NewError(auth.CodeValidationFailed, detail, statusErr)

	default:
		return auth.NewError(auth.CodeNetworkFailure, detail, statusErr)
	}
}

// parseDetail reads the "detail" member, which is a string, a field to
// message object, or a list of {loc, msg} issues.
func parseDetail(raw []byte) (string, validator.ValidationErrors) {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return strings.TrimSpace(string(raw)), nil
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return text, nil
	}

	var byField map[string]string
	if err := json.Unmarshal(body.Detail, &byField); err == nil {
		keys := make([]string, 0, len(byField))
		for k := range byField {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		errs := make(validator.ValidationErrors, 0, len(keys))
		msgs := make([]string, 0, len(keys))
		for _, k := range keys {
			errs = append(errs, validator.ValidationError{Field: k, Message: byField[k]})
			msgs = append(msgs, byField[k])
		}
		return strings.Join(msgs, " "), errs
	}

	var issues []fieldIssue
	if err := json.Unmarshal(body.Detail, &issues); err == nil {
		errs := make(validator.ValidationErrors, 0, len(issues))
		msgs := make([]string, 0, len(issues))
		for _, is := range issues {
			field := ""
			if n := len(is.Loc); n > 0 {
				field = fmt.Sprint(is.Loc[n-1])
			}
			errs = append(errs, validator.ValidationError{Field: field, Message: is.Msg})
			msgs = append(msgs, is.Msg)
		}
		return strings.Join(msgs, " "), errs
	}

	return string(body.Detail), nil
}

func isExpired(detail string) bool {
	lower := strings.ToLower(detail)
	for _, m := range expiredMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// retryAfter accepts delta-seconds or an HTTP date and falls back to
// auth.DefaultRateLimitWait.
func retryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return auth.DefaultRateLimitWait
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return auth.DefaultRateLimitWait
}
