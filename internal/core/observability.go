package core

import (
	"context"
	"time"
)

// Logger is the minimal structured logging surface the service depends on.
// *slog.Logger satisfies it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface. A nil function falls
// back to the wall clock in UTC.
type ClockFunc func() time.Time

// Now returns the clock's current time.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f()
}

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan terminates a single traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer opens spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// AuditStatus marks whether an audited operation succeeded.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records one service operation for the audit trail.
type AuditEntry struct {
	Operation string      `json:"operation"`
	Status    AuditStatus `json:"status"`
	EntityID  string      `json:"entity_id,omitempty"`
	Actor     string      `json:"actor,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	At        time.Time   `json:"at"`
}

// AuditRecorder receives audit entries for completed operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type serviceOptions struct {
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	policy  Policy
}

// ServiceOption customizes service construction.
type ServiceOption func(*serviceOptions)

// WithLogger attaches a structured logger to the service.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetricsRecorder attaches a metrics sink to service operations.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer attaches a tracer to service operations.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder attaches an audit sink to service operations.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithPolicy overrides the engine policy constants.
func WithPolicy(policy Policy) ServiceOption {
	return func(o *serviceOptions) {
		if policy.StalenessWorkdays > 0 {
			o.policy.StalenessWorkdays = policy.StalenessWorkdays
		}
		if policy.CapacityPageSize > 0 {
			o.policy.CapacityPageSize = policy.CapacityPageSize
		}
	}
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger: noopLogger{},
		clock:  ClockFunc(nil),
		policy: DefaultPolicy(),
	}
}
