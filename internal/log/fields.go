package log

import (
	"github.com/shopspring/decimal"

	"monthly-spend/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldEventID    = "event_id"
	FieldEventKind  = "event_kind"
	FieldUserID     = "user_id"
	FieldYear       = "year"
	FieldMonth      = "month"
	FieldSign       = "sign"
	FieldDelta      = "delta"
	FieldValue      = "value"
	FieldCardID     = "card_id"
	FieldParts      = "parts"
	FieldTouched    = "touched"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentExpense      = "expense"
	ComponentSubscription = "subscription"
	ComponentDispatcher   = "dispatcher"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentWorker       = "worker"
	ComponentCache        = "cache"
	ComponentBackend      = "backend"
)

// Operations
const (
	OpApply    = "apply"
	OpReverse  = "reverse"
	OpRead     = "read"
	OpPut      = "put"
	OpDispatch = "dispatch"
	OpConsume  = "consume"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithEvent adds the change event identity.
func (f LogFields) WithEvent(id string, kind core.EventKind, op core.EventOp) LogFields {
	if id != "" {
		f[FieldEventID] = id
	}
	f[FieldEventKind] = string(kind)
	f[FieldOperation] = string(op)
	return f
}

// WithMonth adds the aggregate key.
func (f LogFields) WithMonth(key core.MonthKey) LogFields {
	f[FieldUserID] = key.UserID
	f[FieldYear] = key.Year
	f[FieldMonth] = key.Month
	return f
}

// WithDelta adds the sign and the signed amount written.
func (f LogFields) WithDelta(sign core.Sign, delta decimal.Decimal) LogFields {
	f[FieldSign] = sign.String()
	f[FieldDelta] = delta.String()
	return f
}

func (f LogFields) WithHTTPRequest(method, path string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
