package audit

import (
	"context"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the sink
	Close() error
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }

func (NopLogger) Close() error { return nil }

// LogLogger writes audit events through the structured application logger,
// so they land in the same stream as everything else with audit=true
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates an audit logger on top of logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger.WithField("audit", true)}
}

// Log writes the event at info, or warn for failures
func (l *LogLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	for k, v := range map[string]string{
		"subject":    event.Subject,
		"role":       event.Role,
		"route":      event.Route,
		"method":     event.Method,
		"path":       event.Path,
		"client_ip":  event.ClientIP,
		"request_id": event.RequestID,
		"kind":       event.Kind,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	if len(event.Fields) > 0 {
		fields["fields"] = event.Fields
	}
	for k, v := range event.Details {
		fields["detail_"+k] = v
	}

	entry := observability.UpdateLoggerWithTraceContext(ctx, l.logger).WithFields(fields)
	if event.Status == EventStatusFailure {
		entry.Warn(event.Message)
	} else {
		entry.Info(event.Message)
	}
	return nil
}

// Close is a no-op; the application logger outlives the audit trail
func (l *LogLogger) Close() error {
	return nil
}
