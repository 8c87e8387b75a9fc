package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Observer logs one line per operation and appends an entry to the
// activity sink. Sink failures are logged and never change the result.
type Observer struct {
	logger Logger
	sink   ActivitySink
	now    func() time.Time
}

func NewObserver(logger Logger, sink ActivitySink) *Observer {
	return &Observer{logger: logger, sink: sink, now: time.Now}
}

// WithClock replaces the clock used for durations and entry timestamps.
func (o *Observer) WithClock(now func() time.Time) *Observer {
	if o == nil || now == nil {
		return o
	}
	o.now = now
	return o
}

func (o *Observer) Observe(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	envelope Envelope,
	fields map[string]any,
) {
	if o == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	now := o.clock()
	duration := now.Sub(startedAt)
	if duration < 0 {
		duration = 0
	}

	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["status"] = string(envelope.Status)
	contextFields["duration_ms"] = duration.Milliseconds()
	if envelope.Module != "" {
		contextFields["module"] = envelope.Module
	}
	if envelope.RecordID != "" {
		contextFields["record_id"] = envelope.RecordID
	}
	if !envelope.IsSuccess() {
		if envelope.Code != 0 {
			contextFields["code"] = envelope.Code
		}
		if envelope.ErrorType != "" {
			contextFields["error_type"] = envelope.ErrorType
		}
		contextFields["error"] = envelope.Message
		o.logWithLevel(ctx, "error", operation+" failed", contextFields)
	} else {
		o.logWithLevel(ctx, "info", operation+" succeeded", contextFields)
	}

	if o.sink == nil {
		return
	}
	entry := ActivityEntry{
		Operation:  operation,
		Module:     envelope.Module,
		RecordID:   envelope.RecordID,
		Status:     ActivityStatusOK,
		DurationMS: duration.Milliseconds(),
		CreatedAt:  now.UTC(),
	}
	if !envelope.IsSuccess() {
		entry.Status = ActivityStatusError
		entry.Code = envelope.Code
		entry.ErrorType = envelope.ErrorType
		entry.Message = envelope.Message
	}
	if err := o.sink.Record(ctx, entry); err != nil {
		o.logWithLevel(ctx, "warn", "activity record failed", map[string]any{
			"operation": operation,
			"error":     err.Error(),
		})
	}
}

// Debug writes a debug line through the observer's logger.
func (o *Observer) Debug(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "debug", message, fields)
}

func (o *Observer) clock() time.Time {
	if o == nil || o.now == nil {
		return time.Now()
	}
	return o.now()
}

func (o *Observer) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if o == nil || o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	fields = RedactSensitiveMap(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
		fields = nil
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}

func stringField(value any) string {
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "<nil>" {
		return ""
	}
	return text
}
