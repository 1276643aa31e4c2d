package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the local account identifier under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// ExternalID records the identity provider's subject under the key "external_id".
func ExternalID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("external_id", id)
}

// ClientID records the browser/client identifier under the key "client_id".
func ClientID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("client_id", id)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Provider records the identity provider name under the key "provider".
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// Secret records a truncated form of a credential (state token, authorization
// code) so that log lines can be correlated without leaking the value.
func Secret(key, value string) slog.Attr {
	const visible = 6
	if value == "" {
		return slog.String(key, "")
	}
	if len(value) <= visible {
		return slog.String(key, "***")
	}
	return slog.String(key, value[:visible]+"...")
}

// Transition records a state machine transition under the key "transition".
func Transition(from, to string) slog.Attr {
	return Group("transition", slog.String("from", from), slog.String("to", to))
}

// Tier records a storage tier name under the key "tier".
func Tier(name string) slog.Attr {
	return slog.String("tier", name)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
